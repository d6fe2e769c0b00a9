package memeapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

var errEmptyImageID = errors.New("empty image_id")

// infosMemoTTL bounds how long one fetched metadata array is reused
// for per-key lookups, so a lazy cache filling many keys does not
// re-download the whole array every time.
const infosMemoTTL = 10 * time.Second

// uploadBackend talks to the service that wants every image uploaded
// first. Generation references the returned ids, yields an output id,
// and the rendered bytes are fetched in a final request. The protocol
// has no per-key info route; single-template lookups go through the
// bulk metadata array.
type uploadBackend struct {
	client

	mu        sync.Mutex
	memo      []TemplateInfo
	memoUntil time.Time
}

func (b *uploadBackend) ListKeys(ctx context.Context) ([]string, error) {
	infos, err := b.AllInfos(ctx)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		keys = append(keys, info.Key)
	}
	return keys, nil
}

// AllInfos returns metadata for every template in one call.
func (b *uploadBackend) AllInfos(ctx context.Context) ([]TemplateInfo, error) {
	b.mu.Lock()
	if b.memo != nil && time.Now().Before(b.memoUntil) {
		infos := b.memo
		b.mu.Unlock()
		return infos, nil
	}
	b.mu.Unlock()

	raw, err := b.getBytes(ctx, StageList, "/infos")
	if err != nil {
		return nil, err
	}

	var infos []TemplateInfo
	if err := json.Unmarshal(raw, &infos); err != nil {
		return nil, &MalformedResponseError{Stage: StageList, Err: err}
	}

	b.mu.Lock()
	b.memo = infos
	b.memoUntil = time.Now().Add(infosMemoTTL)
	b.mu.Unlock()

	return infos, nil
}

func (b *uploadBackend) GetInfo(ctx context.Context, key string) (TemplateInfo, error) {
	infos, err := b.AllInfos(ctx)
	if err != nil {
		return TemplateInfo{}, err
	}

	for _, info := range infos {
		if info.Key == key {
			return info, nil
		}
	}
	return TemplateInfo{}, &BackendError{Stage: StageInfo, Message: fmt.Sprintf("no template %q", key)}
}

func (b *uploadBackend) UploadImage(ctx context.Context, data []byte) (string, error) {
	body, err := json.Marshal(uploadRequest{
		Type: "data",
		Data: base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return "", &BackendError{Stage: StageUpload, Message: err.Error()}
	}

	raw, err := b.postJSON(ctx, StageUpload, "/image/upload", body)
	if err != nil {
		return "", err
	}

	var decoded imageIDResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", &MalformedResponseError{Stage: StageUpload, Err: err}
	}
	if decoded.ImageID == "" {
		return "", &MalformedResponseError{Stage: StageUpload, Err: errEmptyImageID}
	}
	return decoded.ImageID, nil
}

func (b *uploadBackend) Generate(ctx context.Context, key string, images [][]byte, texts []string, options map[string]any) ([]byte, error) {
	ids := make([]imageRef, len(images))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, img := range images {
		i := i
		img := img
		eg.Go(func() error {
			id, err := b.UploadImage(egCtx, img)
			if err != nil {
				return err
			}
			ids[i] = imageRef{ID: id}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if options == nil {
		options = map[string]any{}
	}
	if texts == nil {
		texts = []string{}
	}

	body, err := json.Marshal(generateRequest{
		Images:  ids,
		Texts:   texts,
		Options: options,
	})
	if err != nil {
		return nil, &BackendError{Stage: StageGenerate, Message: err.Error()}
	}

	raw, err := b.postJSON(ctx, StageGenerate, "/"+url.PathEscape(key), body)
	if err != nil {
		return nil, err
	}

	var decoded imageIDResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &MalformedResponseError{Stage: StageGenerate, Err: err}
	}
	if decoded.ImageID == "" {
		return nil, &MalformedResponseError{Stage: StageGenerate, Err: errEmptyImageID}
	}

	return b.getBytes(ctx, StageFetch, "/image/"+url.PathEscape(decoded.ImageID))
}

func (b *uploadBackend) Preview(ctx context.Context, key string) ([]byte, error) {
	raw, err := b.getBytes(ctx, StagePreview, "/"+url.PathEscape(key)+"/preview")
	if err != nil {
		return nil, err
	}

	var decoded imageIDResponse
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded.ImageID == "" {
		// The preview endpoint may return the bytes directly.
		return raw, nil
	}
	return b.getBytes(ctx, StageFetch, "/image/"+url.PathEscape(decoded.ImageID))
}

type uploadRequest struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type imageIDResponse struct {
	ImageID string `json:"image_id"`
}

type imageRef struct {
	ID string `json:"id"`
}

type generateRequest struct {
	Images  []imageRef     `json:"images"`
	Texts   []string       `json:"texts"`
	Options map[string]any `json:"options"`
}
