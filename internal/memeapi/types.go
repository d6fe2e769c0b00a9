package memeapi

import (
	"context"
	"fmt"
)

// TemplateInfo describes one meme template as reported by the rendering
// service. MaxImages/MaxTexts of zero or below mean unbounded.
type TemplateInfo struct {
	Key          string       `json:"key"`
	Keywords     []string     `json:"keywords,omitempty"`
	Tags         []string     `json:"tags,omitempty"`
	MinImages    int          `json:"min_images"`
	MaxImages    int          `json:"max_images"`
	MinTexts     int          `json:"min_texts"`
	MaxTexts     int          `json:"max_texts"`
	DefaultTexts []string     `json:"default_texts,omitempty"`
	Options      []OptionSpec `json:"options,omitempty"`
	Shortcuts    []Shortcut   `json:"shortcuts,omitempty"`
}

// OptionSpec declares one extra, named parameter a template accepts
// beyond images and texts.
type OptionSpec struct {
	Name        string   `json:"name"`
	Type        string   `json:"type,omitempty"`
	Default     any      `json:"default,omitempty"`
	Choices     []string `json:"choices,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Shortcut is a regex pattern that expands into preset arguments for
// its owning template.
type Shortcut struct {
	Pattern string   `json:"pattern"`
	Args    []string `json:"args,omitempty"`
}

// Option looks up a declared option spec by name.
func (t TemplateInfo) Option(name string) (OptionSpec, bool) {
	for _, o := range t.Options {
		if o.Name == name {
			return o, true
		}
	}
	return OptionSpec{}, false
}

// Backend is one rendering service instance. The wire protocol behind
// it is fixed at construction; callers never branch on it.
type Backend interface {
	ListKeys(ctx context.Context) ([]string, error)
	GetInfo(ctx context.Context, key string) (TemplateInfo, error)
	UploadImage(ctx context.Context, data []byte) (string, error)
	Generate(ctx context.Context, key string, images [][]byte, texts []string, options map[string]any) ([]byte, error)
	Preview(ctx context.Context, key string) ([]byte, error)
}

// BulkInfoLister is implemented by backends that can return metadata
// for every template in one call.
type BulkInfoLister interface {
	AllInfos(ctx context.Context) ([]TemplateInfo, error)
}

type Stage string

const (
	StageList     Stage = "list"
	StageInfo     Stage = "info"
	StageUpload   Stage = "upload"
	StageGenerate Stage = "generate"
	StageFetch    Stage = "fetch"
	StagePreview  Stage = "preview"
)

// BackendError reports a failed call against the rendering service.
type BackendError struct {
	Stage   Stage
	Message string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %s", e.Stage, e.Message)
}

// MalformedResponseError reports a response body that could not be
// decoded as the expected shape.
type MalformedResponseError struct {
	Stage Stage
	Err   error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("backend %s: malformed response: %v", e.Stage, e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}
