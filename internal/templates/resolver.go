package templates

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"memegen-bot/internal/memeapi"
)

// NotFoundError means no template matched the query, or the matched
// template is denied in the current scope.
type NotFoundError struct {
	Query string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no template matches %q", e.Query)
}

// Match is a successful resolution. ShortcutArgs is non-nil only when
// the query hit a shortcut pattern and carries its expanded arguments.
type Match struct {
	Info         memeapi.TemplateInfo
	ShortcutArgs []string
}

type ResolverOptions struct {
	Cache  *Cache
	Source Source
	// MetadataTimeout bounds the direct info fetch taken on a cache
	// miss. Zero leaves the caller's deadline in charge.
	MetadataTimeout time.Duration
	Logger          *slog.Logger
}

// Resolver maps a possibly-fuzzy user key to exactly one template.
type Resolver struct {
	cache           *Cache
	source          Source
	metadataTimeout time.Duration
	logger          *slog.Logger
}

func NewResolver(opts ResolverOptions) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Resolver{
		cache:           opts.Cache,
		source:          opts.Source,
		metadataTimeout: opts.MetadataTimeout,
		logger:          logger,
	}
}

// Match tiers, best first. Ties within a tier go to the first-inserted
// cache entry. Short queries can land on an unintended template via the
// substring tiers; that matches long-standing behavior and is accepted.
const (
	tierExact = iota + 1
	tierKeywordContainsQuery
	tierQueryContainsKeyword
	tierQueryInKey
	tierTag
	tierShortcut
	tierNone
)

// Resolve finds the single template for query. Keys in deny are
// treated as not found regardless of match quality. When the cache is
// non-exhaustive and every tier misses, one direct info fetch is
// attempted and its result labeled with the literal query.
func (r *Resolver) Resolve(ctx context.Context, query string, deny map[string]struct{}) (Match, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Match{}, &NotFoundError{Query: query}
	}

	q := strings.ToLower(query)

	best := tierNone
	var bestInfo memeapi.TemplateInfo
	var bestArgs []string

	for _, info := range r.cache.All() {
		if _, denied := deny[info.Key]; denied {
			continue
		}

		tier, args := matchTier(info, q)
		if tier < best {
			best = tier
			bestInfo = info
			bestArgs = args
		}
		if best == tierExact {
			break
		}
	}

	if best == tierNone {
		return r.fallbackFetch(ctx, query, deny)
	}

	info, ok, err := r.cache.Load(ctx, bestInfo.Key)
	if err != nil {
		r.logger.Warn("template metadata load failed, using bare key", "key", bestInfo.Key, "err", err)
	}
	if ok {
		bestInfo = info
	}

	return Match{Info: bestInfo, ShortcutArgs: bestArgs}, nil
}

func matchTier(info memeapi.TemplateInfo, q string) (int, []string) {
	key := strings.ToLower(info.Key)
	if q == key {
		return tierExact, nil
	}

	tier := tierNone
	for _, kw := range info.Keywords {
		k := strings.ToLower(kw)
		switch {
		case q == k:
			return tierExact, nil
		case strings.Contains(k, q):
			if tierKeywordContainsQuery < tier {
				tier = tierKeywordContainsQuery
			}
		case strings.Contains(q, k):
			if tierQueryContainsKeyword < tier {
				tier = tierQueryContainsKeyword
			}
		}
	}

	if tier > tierQueryInKey && strings.Contains(key, q) {
		tier = tierQueryInKey
	}

	if tier > tierTag {
		for _, tag := range info.Tags {
			if strings.Contains(strings.ToLower(tag), q) {
				tier = tierTag
				break
			}
		}
	}

	if tier > tierShortcut {
		for _, sc := range info.Shortcuts {
			re, err := regexp.Compile("^(?:" + sc.Pattern + ")$")
			if err != nil {
				continue
			}
			m := re.FindStringSubmatchIndex(q)
			if m == nil {
				continue
			}

			args := make([]string, 0, len(sc.Args))
			for _, arg := range sc.Args {
				args = append(args, string(re.ExpandString(nil, arg, q, m)))
			}
			return tierShortcut, args
		}
	}

	return tier, nil
}

func (r *Resolver) fallbackFetch(ctx context.Context, query string, deny map[string]struct{}) (Match, error) {
	if r.cache.Exhaustive() || r.source == nil {
		return Match{}, &NotFoundError{Query: query}
	}
	if _, denied := deny[query]; denied {
		return Match{}, &NotFoundError{Query: query}
	}

	if r.metadataTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.metadataTimeout)
		defer cancel()
	}

	info, err := r.source.GetInfo(ctx, query)
	if err != nil {
		r.logger.Debug("direct template fetch missed", "query", query, "err", err)
		return Match{}, &NotFoundError{Query: query}
	}

	info.Key = query
	return Match{Info: info}, nil
}
