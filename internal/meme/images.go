package meme

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"memegen-bot/internal/args"
)

// AvatarLookup converts a user identity into an image URL.
type AvatarLookup interface {
	AvatarURL(ctx context.Context, userID int64) (string, error)
}

// ImageFetchError fails the whole resolve: image arguments have no
// partial success.
type ImageFetchError struct {
	Ref args.ImageRef
	Err error
}

func (e *ImageFetchError) Error() string {
	if e.Ref.IsUser() {
		return fmt.Sprintf("fetch avatar of user %d: %v", e.Ref.UserID, e.Err)
	}
	return fmt.Sprintf("fetch image %s: %v", e.Ref.URL, e.Err)
}

func (e *ImageFetchError) Unwrap() error {
	return e.Err
}

type FetcherOptions struct {
	HTTPClient *http.Client
	Avatars    AvatarLookup
	// Timeout bounds each individual fetch.
	Timeout time.Duration
	// MaxBytes rejects oversized images. Zero means no guard.
	MaxBytes int64
	Logger   *slog.Logger
}

// Fetcher resolves image references to bytes. Each structurally
// distinct reference is fetched at most once, concurrently; results
// are expanded back to the original order.
type Fetcher struct {
	httpClient *http.Client
	avatars    AvatarLookup
	timeout    time.Duration
	maxBytes   int64
	logger     *slog.Logger
}

func NewFetcher(opts FetcherOptions) *Fetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Fetcher{
		httpClient: opts.HTTPClient,
		avatars:    opts.Avatars,
		timeout:    timeout,
		maxBytes:   opts.MaxBytes,
		logger:     logger,
	}
}

// Resolve fetches every reference and returns bytes in the original
// order. Any single failure fails the whole call.
func (f *Fetcher) Resolve(ctx context.Context, refs []args.ImageRef) ([][]byte, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	unique := make([]args.ImageRef, 0, len(refs))
	position := make(map[args.ImageRef]int, len(refs))
	for _, ref := range refs {
		if _, seen := position[ref]; seen {
			continue
		}
		position[ref] = len(unique)
		unique = append(unique, ref)
	}

	fetched := make([][]byte, len(unique))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, ref := range unique {
		i := i
		ref := ref
		eg.Go(func() error {
			data, err := f.fetchOne(egCtx, ref)
			if err != nil {
				return &ImageFetchError{Ref: ref, Err: err}
			}
			fetched[i] = data
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make([][]byte, len(refs))
	for i, ref := range refs {
		out[i] = fetched[position[ref]]
	}
	return out, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, ref args.ImageRef) ([]byte, error) {
	url := ref.URL
	if ref.IsUser() {
		if f.avatars == nil {
			return nil, errors.New("no avatar lookup configured")
		}
		resolved, err := f.avatars.AvatarURL(ctx, ref.UserID)
		if err != nil {
			return nil, err
		}
		url = resolved
	}

	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	reader := resp.Body
	if f.maxBytes > 0 {
		reader = io.NopCloser(io.LimitReader(resp.Body, f.maxBytes+1))
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", f.maxBytes)
	}

	return data, nil
}
