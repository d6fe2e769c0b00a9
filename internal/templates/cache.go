package templates

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"memegen-bot/internal/memeapi"
)

// Source is the slice of the backend the cache needs.
type Source interface {
	ListKeys(ctx context.Context) ([]string, error)
	GetInfo(ctx context.Context, key string) (memeapi.TemplateInfo, error)
}

type CacheOptions struct {
	Source Source
	// Path of the snapshot file. Empty disables persistence.
	Path string
	// Eager makes Refresh fetch full metadata for every key; otherwise
	// metadata is filled on first use.
	Eager bool
	// MetadataTimeout bounds each individual source call. Zero leaves
	// the caller's context deadline in charge.
	MetadataTimeout time.Duration
	Logger          *slog.Logger
}

// Cache holds the last-fetched template list in insertion order.
// Reads are concurrent; Refresh is the only wholesale writer and is
// single-flight.
type Cache struct {
	source          Source
	path            string
	eager           bool
	metadataTimeout time.Duration
	logger          *slog.Logger

	group singleflight.Group

	mu        sync.RWMutex
	entries   []entry
	index     map[string]int
	fetchedAt time.Time
}

type entry struct {
	info   memeapi.TemplateInfo
	loaded bool
}

func NewCache(opts CacheOptions) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Cache{
		source:          opts.Source,
		path:            opts.Path,
		eager:           opts.Eager,
		metadataTimeout: opts.MetadataTimeout,
		logger:          logger,
		index:           make(map[string]int),
	}

	if opts.Path != "" {
		snap, err := readSnapshot(opts.Path)
		if err != nil {
			logger.Warn("template snapshot unusable, starting empty", "path", opts.Path, "err", err)
		} else if snap != nil {
			c.replace(snap.Templates, time.UnixMilli(snap.FetchedAt))
			logger.Info("template snapshot loaded", "count", len(snap.Templates), "path", opts.Path)
		}
	}

	return c
}

// Refresh re-fetches the template list wholesale. Overlapping calls
// coalesce into one in-flight fetch. A single template's failed info
// fetch is logged and the bare key retained; it never aborts the
// refresh.
func (c *Cache) Refresh(ctx context.Context) (int, error) {
	count, err, _ := c.group.Do("refresh", func() (any, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return 0, err
	}
	return count.(int), nil
}

// sourceCtx derives the context for one metadata fetch. Each call gets
// its own short deadline so a stalled backend cannot hold the caller
// for the full request budget.
func (c *Cache) sourceCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.metadataTimeout > 0 {
		return context.WithTimeout(ctx, c.metadataTimeout)
	}
	return ctx, func() {}
}

func (c *Cache) refresh(ctx context.Context) (int, error) {
	var infos []memeapi.TemplateInfo

	if bulk, ok := c.source.(memeapi.BulkInfoLister); ok && c.eager {
		bulkCtx, cancel := c.sourceCtx(ctx)
		all, err := bulk.AllInfos(bulkCtx)
		cancel()
		if err != nil {
			return 0, err
		}
		infos = all
	} else {
		listCtx, cancel := c.sourceCtx(ctx)
		keys, err := c.source.ListKeys(listCtx)
		cancel()
		if err != nil {
			return 0, err
		}

		infos = make([]memeapi.TemplateInfo, 0, len(keys))
		for _, key := range keys {
			if !c.eager {
				infos = append(infos, memeapi.TemplateInfo{Key: key})
				continue
			}

			infoCtx, cancel := c.sourceCtx(ctx)
			info, err := c.source.GetInfo(infoCtx, key)
			cancel()
			if err != nil {
				c.logger.Warn("template info fetch failed, keeping bare key", "key", key, "err", err)
				infos = append(infos, memeapi.TemplateInfo{Key: key})
				continue
			}
			infos = append(infos, info)
		}
	}

	fetchedAt := time.Now()
	c.replace(infos, fetchedAt)

	if c.path != "" {
		if err := writeSnapshot(c.path, &snapshot{
			FetchedAt: fetchedAt.UnixMilli(),
			Templates: infos,
		}); err != nil {
			c.logger.Warn("template snapshot write failed", "path", c.path, "err", err)
		}
	}

	c.logger.Info("template cache refreshed", "count", len(infos))
	return len(infos), nil
}

func (c *Cache) replace(infos []memeapi.TemplateInfo, fetchedAt time.Time) {
	entries := make([]entry, len(infos))
	index := make(map[string]int, len(infos))
	for i, info := range infos {
		entries[i] = entry{info: info, loaded: hasMetadata(info)}
		if _, ok := index[info.Key]; !ok {
			index[info.Key] = i
		}
	}

	c.mu.Lock()
	c.entries = entries
	c.index = index
	c.fetchedAt = fetchedAt
	c.mu.Unlock()
}

// Get returns the cached info for an exact key, without triggering a
// lazy metadata fetch.
func (c *Cache) Get(key string) (memeapi.TemplateInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.index[key]
	if !ok {
		return memeapi.TemplateInfo{}, false
	}
	return c.entries[i].info, true
}

// Load returns the info for an exact key, fetching full metadata from
// the source the first time a lazily-cached entry is used.
func (c *Cache) Load(ctx context.Context, key string) (memeapi.TemplateInfo, bool, error) {
	c.mu.RLock()
	i, ok := c.index[key]
	if !ok {
		c.mu.RUnlock()
		return memeapi.TemplateInfo{}, false, nil
	}
	e := c.entries[i]
	c.mu.RUnlock()

	if e.loaded {
		return e.info, true, nil
	}

	infoCtx, cancel := c.sourceCtx(ctx)
	info, err := c.source.GetInfo(infoCtx, key)
	cancel()
	if err != nil {
		return e.info, true, err
	}
	if info.Key == "" {
		info.Key = key
	}

	c.mu.Lock()
	if j, ok := c.index[key]; ok {
		c.entries[j] = entry{info: info, loaded: true}
	}
	c.mu.Unlock()

	return info, true, nil
}

// All returns a copy of the cached template list in insertion order.
func (c *Cache) All() []memeapi.TemplateInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]memeapi.TemplateInfo, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.info
	}
	return out
}

func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) FetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}

// Exhaustive reports whether every cached entry carries full metadata,
// in which case a lookup miss is final and no direct fetch fallback is
// warranted.
func (c *Cache) Exhaustive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.entries) == 0 {
		return false
	}
	for _, e := range c.entries {
		if !e.loaded {
			return false
		}
	}
	return true
}

func hasMetadata(info memeapi.TemplateInfo) bool {
	return len(info.Keywords) > 0 || len(info.Tags) > 0 ||
		len(info.DefaultTexts) > 0 || len(info.Options) > 0 || len(info.Shortcuts) > 0 ||
		info.MinImages > 0 || info.MaxImages > 0 || info.MinTexts > 0 || info.MaxTexts > 0
}
