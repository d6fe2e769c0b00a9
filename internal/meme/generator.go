package meme

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"memegen-bot/internal/args"
	"memegen-bot/internal/memeapi"
	"memegen-bot/internal/templates"
)

// Invoker is the user running the command; their avatar backs the
// self-image fallback.
type Invoker struct {
	UserID   int64
	Username string
}

type GeneratorOptions struct {
	Backend  memeapi.Backend
	Resolver *templates.Resolver
	Fetcher  *Fetcher
	Policy   Policy
	// GenerateTimeout bounds the backend generate call; once
	// dispatched it runs to completion or to this timeout.
	GenerateTimeout time.Duration
	Logger          *slog.Logger
}

// Generator sequences resolve, parse, validate, fetch and generate.
// It is the only piece the command layer talks to.
type Generator struct {
	backend         memeapi.Backend
	resolver        *templates.Resolver
	fetcher         *Fetcher
	policy          Policy
	generateTimeout time.Duration
	logger          *slog.Logger
}

func NewGenerator(opts GeneratorOptions) *Generator {
	timeout := opts.GenerateTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Generator{
		backend:         opts.Backend,
		resolver:        opts.Resolver,
		fetcher:         opts.Fetcher,
		policy:          opts.Policy,
		generateTimeout: timeout,
		logger:          logger,
	}
}

// CreateMeme runs the whole pipeline for one invocation and returns
// the rendered bytes. Every returned error maps to one short reply via
// UserMessage.
func (g *Generator) CreateMeme(ctx context.Context, invoker Invoker, query string, nodes []args.Node, deny map[string]struct{}) ([]byte, error) {
	match, err := g.resolver.Resolve(ctx, query, deny)
	if err != nil {
		return nil, err
	}
	info := match.Info

	if len(match.ShortcutArgs) > 0 {
		quoted := make([]string, 0, len(match.ShortcutArgs))
		for _, arg := range match.ShortcutArgs {
			quoted = append(quoted, args.Quote(arg))
		}
		nodes = append([]args.Node{args.Text(strings.Join(quoted, " "))}, nodes...)
	}

	parsed := args.Parse(nodes, &info)

	self := args.ImageRef{UserID: invoker.UserID}
	if err := applyConstraints(&parsed, info, self, g.policy); err != nil {
		return nil, err
	}

	images, err := g.fetcher.Resolve(ctx, parsed.Images)
	if err != nil {
		return nil, err
	}

	genCtx, cancel := context.WithTimeout(ctx, g.generateTimeout)
	defer cancel()

	data, err := g.backend.Generate(genCtx, info.Key, images, parsed.Texts, parsed.Options)
	if err != nil {
		return nil, err
	}

	g.logger.Info("meme generated",
		"key", info.Key,
		"user", invoker.UserID,
		"images", len(images),
		"texts", len(parsed.Texts),
		"bytes", len(data))
	return data, nil
}

// UserMessage maps any pipeline error to one short user-facing reply.
// Full detail stays in the logs.
func UserMessage(err error) string {
	var notFound *templates.NotFoundError
	if errors.As(err, &notFound) {
		return fmt.Sprintf("❌ No template matches %q. Try /memes for the list.", notFound.Query)
	}

	var mismatch *CountMismatchError
	if errors.As(err, &mismatch) {
		noun := "images"
		if mismatch.Kind == "text" {
			noun = "texts"
		}
		if mismatch.Max <= 0 {
			return fmt.Sprintf("❌ This template needs at least %d %s, got %d.", mismatch.Min, noun, mismatch.Actual)
		}
		if mismatch.Min == mismatch.Max {
			return fmt.Sprintf("❌ This template needs exactly %d %s, got %d.", mismatch.Min, noun, mismatch.Actual)
		}
		return fmt.Sprintf("❌ This template needs %d to %d %s, got %d.", mismatch.Min, mismatch.Max, noun, mismatch.Actual)
	}

	var fetchErr *ImageFetchError
	if errors.As(err, &fetchErr) {
		return "❌ Couldn't fetch one of the images. Check the link or try again."
	}

	var malformed *memeapi.MalformedResponseError
	if errors.As(err, &malformed) {
		return "❌ The meme service returned something unexpected. Try again later."
	}

	var backendErr *memeapi.BackendError
	if errors.As(err, &backendErr) {
		return "❌ The meme service failed to render. Try again later."
	}

	return "❌ Something went wrong. Please try again."
}
