package meme

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"memegen-bot/internal/args"
	"memegen-bot/internal/memeapi"
	"memegen-bot/internal/templates"
)

type fakeBackend struct {
	infos map[string]memeapi.TemplateInfo

	generateErr error
	lastKey     string
	lastImages  [][]byte
	lastTexts   []string
	lastOptions map[string]any
}

func (b *fakeBackend) ListKeys(ctx context.Context) ([]string, error) {
	keys := make([]string, 0, len(b.infos))
	for key := range b.infos {
		keys = append(keys, key)
	}
	return keys, nil
}

func (b *fakeBackend) GetInfo(ctx context.Context, key string) (memeapi.TemplateInfo, error) {
	info, ok := b.infos[key]
	if !ok {
		return memeapi.TemplateInfo{}, &memeapi.BackendError{Stage: memeapi.StageInfo, Message: "no such template"}
	}
	return info, nil
}

func (b *fakeBackend) UploadImage(ctx context.Context, data []byte) (string, error) {
	return "id", nil
}

func (b *fakeBackend) Generate(ctx context.Context, key string, images [][]byte, texts []string, options map[string]any) ([]byte, error) {
	if b.generateErr != nil {
		return nil, b.generateErr
	}
	b.lastKey = key
	b.lastImages = images
	b.lastTexts = texts
	b.lastOptions = options
	return []byte("rendered"), nil
}

func (b *fakeBackend) Preview(ctx context.Context, key string) ([]byte, error) {
	return []byte("preview"), nil
}

type staticAvatars struct {
	url string
}

func (a staticAvatars) AvatarURL(ctx context.Context, userID int64) (string, error) {
	return a.url, nil
}

func newTestGenerator(t *testing.T, backend *fakeBackend, policy Policy) *Generator {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("avatar-bytes"))
	}))
	t.Cleanup(server.Close)

	cache := templates.NewCache(templates.CacheOptions{Source: backend, Eager: true})
	_, err := cache.Refresh(context.Background())
	require.NoError(t, err)

	resolver := templates.NewResolver(templates.ResolverOptions{Cache: cache, Source: backend})

	fetcher := NewFetcher(FetcherOptions{
		HTTPClient: server.Client(),
		Avatars:    staticAvatars{url: server.URL + "/avatar"},
		Timeout:    5 * time.Second,
	})

	return NewGenerator(GeneratorOptions{
		Backend:         backend,
		Resolver:        resolver,
		Fetcher:         fetcher,
		Policy:          policy,
		GenerateTimeout: 5 * time.Second,
	})
}

func TestCreateMemeEndToEnd(t *testing.T) {
	backend := &fakeBackend{infos: map[string]memeapi.TemplateInfo{
		"echo": {
			Key:       "echo",
			Keywords:  []string{"echoing"},
			MinImages: 1, MaxImages: 1,
			MinTexts: 1, MaxTexts: 2,
			Options: []memeapi.OptionSpec{{Name: "n", Type: "integer"}},
		},
	}}
	g := newTestGenerator(t, backend, Policy{})

	invoker := Invoker{UserID: 42, Username: "someone"}
	out, err := g.CreateMeme(context.Background(), invoker, "echo", []args.Node{args.Text("hello -n=3")}, nil)
	require.NoError(t, err)
	require.Equal(t, []byte("rendered"), out)

	require.Equal(t, "echo", backend.lastKey)
	// No image supplied and one required: the invoker's avatar fills in.
	require.Equal(t, [][]byte{[]byte("avatar-bytes")}, backend.lastImages)
	require.Equal(t, []string{"hello"}, backend.lastTexts)
	require.Equal(t, map[string]any{"n": 3}, backend.lastOptions)
}

func TestCreateMemeCountMismatchReply(t *testing.T) {
	backend := &fakeBackend{infos: map[string]memeapi.TemplateInfo{
		"pair": {Key: "pair", MinTexts: 2, MaxTexts: 4},
	}}
	g := newTestGenerator(t, backend, Policy{})

	_, err := g.CreateMeme(context.Background(), Invoker{UserID: 42}, "pair", []args.Node{args.Text("only")}, nil)

	var mismatch *CountMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, "❌ This template needs 2 to 4 texts, got 1.", UserMessage(err))
}

func TestCreateMemeNotFoundReply(t *testing.T) {
	backend := &fakeBackend{infos: map[string]memeapi.TemplateInfo{
		"echo": {Key: "echo", MinTexts: 1, MaxTexts: 1},
	}}
	g := newTestGenerator(t, backend, Policy{})

	_, err := g.CreateMeme(context.Background(), Invoker{UserID: 42}, "zzz", nil, nil)

	var notFound *templates.NotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Contains(t, UserMessage(err), `"zzz"`)
}

func TestCreateMemeDeniedTemplate(t *testing.T) {
	backend := &fakeBackend{infos: map[string]memeapi.TemplateInfo{
		"echo": {Key: "echo", MinTexts: 1, MaxTexts: 1},
	}}
	g := newTestGenerator(t, backend, Policy{})

	deny := map[string]struct{}{"echo": {}}
	_, err := g.CreateMeme(context.Background(), Invoker{UserID: 42}, "echo", []args.Node{args.Text("hi")}, deny)

	var notFound *templates.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestCreateMemeBackendFailureReply(t *testing.T) {
	backend := &fakeBackend{
		infos: map[string]memeapi.TemplateInfo{
			"echo": {Key: "echo", MinTexts: 1, MaxTexts: 1},
		},
		generateErr: &memeapi.BackendError{Stage: memeapi.StageGenerate, Message: "render crashed"},
	}
	g := newTestGenerator(t, backend, Policy{})

	_, err := g.CreateMeme(context.Background(), Invoker{UserID: 42}, "echo", []args.Node{args.Text("hi")}, nil)

	var backendErr *memeapi.BackendError
	require.ErrorAs(t, err, &backendErr)
	require.Equal(t, "❌ The meme service failed to render. Try again later.", UserMessage(err))
}

func TestCreateMemeShortcutArgs(t *testing.T) {
	backend := &fakeBackend{infos: map[string]memeapi.TemplateInfo{
		"petpet": {
			Key:      "petpet",
			MinTexts: 0, MaxTexts: 0,
			Shortcuts: []memeapi.Shortcut{{Pattern: `rub(\d+)`, Args: []string{"-speed=$1"}}},
		},
	}}
	g := newTestGenerator(t, backend, Policy{})

	_, err := g.CreateMeme(context.Background(), Invoker{UserID: 42}, "rub7", nil, nil)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"speed": 7}, backend.lastOptions)
}
