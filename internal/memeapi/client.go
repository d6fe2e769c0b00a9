package memeapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Detect probes the version endpoint once and returns the matching
// protocol client. A missing endpoint or a "v"-prefixed version string
// means the multipart service; a bare semver means the upload/id
// service. The choice is fixed for the returned instance's lifetime.
func Detect(ctx context.Context, opts Options) (Backend, error) {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		return nil, errors.New("backend base url is empty")
	}
	if opts.HTTPClient == nil {
		return nil, errors.New("http client is nil")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	cl := client{
		baseURL:    base,
		httpClient: opts.HTTPClient,
		logger:     logger,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/version", nil)
	if err != nil {
		return nil, fmt.Errorf("create probe request: %w", err)
	}

	resp, err := opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe version: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		logger.Info("backend detected", "variant", "multipart", "reason", "no version endpoint")
		return &multipartBackend{client: cl}, nil
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &BackendError{Stage: StageInfo, Message: fmt.Sprintf("version probe %s: %s", resp.Status, strings.TrimSpace(string(body)))}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}

	version := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if strings.HasPrefix(version, "v") {
		logger.Info("backend detected", "variant", "multipart", "version", version)
		return &multipartBackend{client: cl}, nil
	}

	logger.Info("backend detected", "variant", "upload", "version", version)
	return &uploadBackend{client: cl}, nil
}

// client carries the pieces both protocol variants share.
type client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func (c *client) getBytes(ctx context.Context, stage Stage, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, &BackendError{Stage: stage, Message: err.Error()}
	}
	return c.do(stage, req)
}

func (c *client) postJSON(ctx context.Context, stage Stage, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &BackendError{Stage: stage, Message: err.Error()}
	}
	req.Header.Set("content-type", "application/json")
	return c.do(stage, req)
}

func (c *client) newRequest(ctx context.Context, path string, body io.Reader) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
}

func (c *client) do(stage Stage, req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &BackendError{Stage: stage, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &BackendError{Stage: stage, Message: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode >= 400 {
		return nil, &BackendError{Stage: stage, Message: fmt.Sprintf("%s: %s", resp.Status, strings.TrimSpace(string(raw)))}
	}

	return raw, nil
}
