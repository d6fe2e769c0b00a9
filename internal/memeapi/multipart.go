package memeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/url"
)

// multipartBackend talks to the service that renders in a single
// request: images travel as raw multipart parts, texts as repeated
// fields, options as one JSON-encoded "args" field.
type multipartBackend struct {
	client
}

func (b *multipartBackend) ListKeys(ctx context.Context) ([]string, error) {
	raw, err := b.getBytes(ctx, StageList, "/keys")
	if err != nil {
		return nil, err
	}

	var keys []string
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, &MalformedResponseError{Stage: StageList, Err: err}
	}
	return keys, nil
}

func (b *multipartBackend) GetInfo(ctx context.Context, key string) (TemplateInfo, error) {
	raw, err := b.getBytes(ctx, StageInfo, "/"+url.PathEscape(key)+"/info")
	if err != nil {
		return TemplateInfo{}, err
	}

	var info TemplateInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return TemplateInfo{}, &MalformedResponseError{Stage: StageInfo, Err: err}
	}
	if info.Key == "" {
		info.Key = key
	}
	return info, nil
}

// UploadImage is not part of the multipart protocol; image bytes go
// straight into the generate request.
func (b *multipartBackend) UploadImage(ctx context.Context, data []byte) (string, error) {
	return "", &BackendError{Stage: StageUpload, Message: "multipart backend does not use image upload"}
}

func (b *multipartBackend) Generate(ctx context.Context, key string, images [][]byte, texts []string, options map[string]any) ([]byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	for _, text := range texts {
		if err := writer.WriteField("texts", text); err != nil {
			return nil, &BackendError{Stage: StageGenerate, Message: fmt.Sprintf("write text field: %v", err)}
		}
	}

	for i, img := range images {
		part, err := writer.CreateFormFile("images", fmt.Sprintf("image%d", i))
		if err != nil {
			return nil, &BackendError{Stage: StageGenerate, Message: fmt.Sprintf("create image part: %v", err)}
		}
		if _, err := part.Write(img); err != nil {
			return nil, &BackendError{Stage: StageGenerate, Message: fmt.Sprintf("write image part: %v", err)}
		}
	}

	if options == nil {
		options = map[string]any{}
	}
	args, err := json.Marshal(options)
	if err != nil {
		return nil, &BackendError{Stage: StageGenerate, Message: fmt.Sprintf("marshal args: %v", err)}
	}
	if err := writer.WriteField("args", string(args)); err != nil {
		return nil, &BackendError{Stage: StageGenerate, Message: fmt.Sprintf("write args field: %v", err)}
	}

	if err := writer.Close(); err != nil {
		return nil, &BackendError{Stage: StageGenerate, Message: fmt.Sprintf("close multipart body: %v", err)}
	}

	req, err := b.newRequest(ctx, "/"+url.PathEscape(key)+"/", &body)
	if err != nil {
		return nil, &BackendError{Stage: StageGenerate, Message: err.Error()}
	}
	req.Header.Set("content-type", writer.FormDataContentType())

	return b.do(StageGenerate, req)
}

func (b *multipartBackend) Preview(ctx context.Context, key string) ([]byte, error) {
	return b.getBytes(ctx, StagePreview, "/"+url.PathEscape(key)+"/preview")
}
