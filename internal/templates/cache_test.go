package templates

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"memegen-bot/internal/memeapi"
)

func TestRefreshSurvivesPartialInfoFailure(t *testing.T) {
	source := newFakeSource(
		memeapi.TemplateInfo{Key: "a", MinImages: 1},
		memeapi.TemplateInfo{Key: "b", MinImages: 1},
		memeapi.TemplateInfo{Key: "c", MinImages: 1},
	)
	source.fail["b"] = true

	cache := NewCache(CacheOptions{Source: source, Eager: true})
	count, err := cache.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, count)

	// The failed key stays resolvable, with empty metadata.
	info, ok := cache.Get("b")
	require.True(t, ok)
	require.Equal(t, "b", info.Key)
	require.Zero(t, info.MinImages)

	info, ok = cache.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, info.MinImages)
}

func TestRefreshListFailureAborts(t *testing.T) {
	cache := NewCache(CacheOptions{Source: failListSource{}})

	_, err := cache.Refresh(context.Background())
	require.Error(t, err)
	require.Zero(t, cache.Count())
}

type failListSource struct{}

func (failListSource) ListKeys(ctx context.Context) ([]string, error) {
	return nil, &memeapi.BackendError{Stage: memeapi.StageList, Message: "down"}
}

func (failListSource) GetInfo(ctx context.Context, key string) (memeapi.TemplateInfo, error) {
	return memeapi.TemplateInfo{}, &memeapi.BackendError{Stage: memeapi.StageInfo, Message: "down"}
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.json")
	source := newFakeSource(
		memeapi.TemplateInfo{Key: "drake", Keywords: []string{"drakeposting"}, MinImages: 1, MaxImages: 1, MinTexts: 2, MaxTexts: 2},
	)

	cache := NewCache(CacheOptions{Source: source, Path: path, Eager: true})
	_, err := cache.Refresh(context.Background())
	require.NoError(t, err)

	// A fresh cache starts from the snapshot, no network needed.
	reloaded := NewCache(CacheOptions{Source: failListSource{}, Path: path})
	require.Equal(t, 1, reloaded.Count())

	info, ok := reloaded.Get("drake")
	require.True(t, ok)
	require.Equal(t, []string{"drakeposting"}, info.Keywords)
	require.Equal(t, 2, info.MinTexts)
	require.False(t, reloaded.FetchedAt().IsZero())
}

func TestMissingSnapshotIsNonFatal(t *testing.T) {
	cache := NewCache(CacheOptions{
		Source: failListSource{},
		Path:   filepath.Join(t.TempDir(), "nope", "templates.json"),
	})
	require.Zero(t, cache.Count())
}

func TestCorruptSnapshotIsNonFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	cache := NewCache(CacheOptions{Source: failListSource{}, Path: path})
	require.Zero(t, cache.Count())
}

type blockingSource struct {
	release chan struct{}
	calls   atomic.Int64
}

func (s *blockingSource) ListKeys(ctx context.Context) ([]string, error) {
	s.calls.Add(1)
	<-s.release
	return []string{"a"}, nil
}

func (s *blockingSource) GetInfo(ctx context.Context, key string) (memeapi.TemplateInfo, error) {
	return memeapi.TemplateInfo{Key: key}, nil
}

func TestOverlappingRefreshesCoalesce(t *testing.T) {
	src := &blockingSource{release: make(chan struct{})}
	cache := NewCache(CacheOptions{Source: src, Eager: false})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Refresh(context.Background()); err != nil {
				t.Error(err)
			}
		}()
	}

	// Let every goroutine join the in-flight refresh before it
	// completes.
	time.Sleep(50 * time.Millisecond)
	close(src.release)
	wg.Wait()

	require.EqualValues(t, 1, src.calls.Load())
}

func TestLazyLoadFillsMetadataOnce(t *testing.T) {
	source := newFakeSource(
		memeapi.TemplateInfo{Key: "drake", MinImages: 1, Keywords: []string{"drakeposting"}},
	)

	cache := NewCache(CacheOptions{Source: source, Eager: false})
	_, err := cache.Refresh(context.Background())
	require.NoError(t, err)

	info, ok := cache.Get("drake")
	require.True(t, ok)
	require.Empty(t, info.Keywords)

	info, ok, err = cache.Load(context.Background(), "drake")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"drakeposting"}, info.Keywords)

	_, _, err = cache.Load(context.Background(), "drake")
	require.NoError(t, err)
	require.Equal(t, 1, source.infoCalls["drake"])
}

// stalledSource blocks until the per-call context expires.
type stalledSource struct{}

func (stalledSource) ListKeys(ctx context.Context) ([]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stalledSource) GetInfo(ctx context.Context, key string) (memeapi.TemplateInfo, error) {
	<-ctx.Done()
	return memeapi.TemplateInfo{}, ctx.Err()
}

func TestRefreshBoundedByMetadataTimeout(t *testing.T) {
	cache := NewCache(CacheOptions{
		Source:          stalledSource{},
		MetadataTimeout: 20 * time.Millisecond,
	})

	start := time.Now()
	_, err := cache.Refresh(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestLazyLoadBoundedByMetadataTimeout(t *testing.T) {
	source := newFakeSource(memeapi.TemplateInfo{Key: "drake", MinImages: 1})
	cache := NewCache(CacheOptions{
		Source:          source,
		Eager:           false,
		MetadataTimeout: 20 * time.Millisecond,
	})
	_, err := cache.Refresh(context.Background())
	require.NoError(t, err)

	cache.source = stalledSource{}

	info, ok, err := cache.Load(context.Background(), "drake")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, ok)
	require.Equal(t, "drake", info.Key)
}
