package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"memegen-bot/internal/args"
	"memegen-bot/internal/mediagroup"
	"memegen-bot/internal/meme"
	"memegen-bot/internal/memeapi"
	"memegen-bot/internal/telegram"
	"memegen-bot/internal/templates"
)

type Options struct {
	Telegram  *telegram.Client
	Generator *meme.Generator
	Cache     *templates.Cache
	Resolver  *templates.Resolver
	// Deny lists template keys hidden from this bot's scope.
	Deny   map[string]struct{}
	Logger *slog.Logger
}

type Handler struct {
	tg         *telegram.Client
	generator  *meme.Generator
	cache      *templates.Cache
	resolver   *templates.Resolver
	deny       map[string]struct{}
	logger     *slog.Logger
	aggregator *mediagroup.Aggregator
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		tg:        opts.Telegram,
		generator: opts.Generator,
		cache:     opts.Cache,
		resolver:  opts.Resolver,
		deny:      opts.Deny,
		logger:    logger,
	}
}

func (h *Handler) SetMediaGroupAggregator(ag *mediagroup.Aggregator) {
	h.aggregator = ag
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.Message == nil {
		return nil
	}
	msg := update.Message

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	// Album messages arrive one photo at a time and only one carries
	// the caption; collect them and handle the whole group once.
	if msg.MediaGroupID != "" && len(msg.Photo) > 0 && h.aggregator != nil {
		fileID, _ := bestPhoto(msg.Photo)
		h.aggregator.Add(mediagroup.Item{
			ChatID:       msg.Chat.ID,
			UserID:       msg.From.ID,
			Username:     msg.From.UserName,
			MessageID:    msg.MessageID,
			MediaGroupID: msg.MediaGroupID,
			Caption:      text,
			FileID:       fileID,
		})
		return nil
	}

	command, rest, ok := splitCommand(text)
	if !ok {
		return nil
	}

	switch command {
	case "start", "help":
		return h.sendHelp(msg.Chat.ID)
	case "memes":
		return h.handleList(msg.Chat.ID)
	case "meminfo":
		return h.handleInfo(ctx, msg, rest)
	case "refresh":
		return h.handleRefresh(ctx, msg.Chat.ID)
	case "meme":
		return h.handleMeme(ctx, msg, rest)
	default:
		return nil
	}
}

// HandleMediaGroup runs a /meme command whose images arrived as an
// album.
func (h *Handler) HandleMediaGroup(ctx context.Context, group mediagroup.Group) {
	command, rest, ok := splitCommand(group.Caption)
	if !ok || command != "meme" {
		return
	}

	query, body := splitQuery(rest)
	if query == "" {
		_ = h.tg.SendText(group.ChatID, "❌ Usage: /meme <template> [images] [texts] [-options]")
		return
	}

	var nodes []args.Node
	for _, fileID := range group.FileIDs {
		url, err := h.tg.FileURL(fileID)
		if err != nil {
			h.logger.Error("album photo url failed", "err", err)
			_ = h.tg.SendText(group.ChatID, "❌ Couldn't read the uploaded photos. Try again.")
			return
		}
		nodes = append(nodes, args.Image{URL: url})
	}
	if body != "" {
		nodes = append(nodes, args.Text(body))
	}

	invoker := meme.Invoker{UserID: group.UserID, Username: group.Username}
	h.generate(ctx, group.ChatID, group.MessageID, invoker, query, nodes)
}

func (h *Handler) handleMeme(ctx context.Context, msg *tgbotapi.Message, rest string) error {
	query, body := splitQuery(rest)
	if query == "" {
		return h.tg.SendText(msg.Chat.ID, "❌ Usage: /meme <template> [images] [texts] [-options]")
	}

	var nodes []args.Node

	// Images of a replied-to message lead the argument stream.
	if reply := msg.ReplyToMessage; reply != nil && len(reply.Photo) > 0 {
		if fileID, ok := bestPhoto(reply.Photo); ok {
			url, err := h.tg.FileURL(fileID)
			if err != nil {
				h.logger.Error("reply photo url failed", "err", err)
				return h.tg.SendText(msg.Chat.ID, "❌ Couldn't read the replied-to photo. Try again.")
			}
			nodes = append(nodes, args.Image{URL: url})
		}
	}

	if fileID, ok := bestPhoto(msg.Photo); ok {
		url, err := h.tg.FileURL(fileID)
		if err != nil {
			h.logger.Error("photo url failed", "err", err)
			return h.tg.SendText(msg.Chat.ID, "❌ Couldn't read the attached photo. Try again.")
		}
		nodes = append(nodes, args.Image{URL: url})
	}

	text := msg.Text
	entities := msg.Entities
	if text == "" {
		text = msg.Caption
		entities = msg.CaptionEntities
	}
	if body != "" {
		bodyOffset := 0
		if idx := strings.Index(text, body); idx >= 0 {
			bodyOffset = utf16Len(text[:idx])
		}
		nodes = append(nodes, commandNodes(body, bodyOffset, entities)...)
	}

	invoker := meme.Invoker{UserID: msg.From.ID, Username: msg.From.UserName}
	h.generate(ctx, msg.Chat.ID, msg.MessageID, invoker, query, nodes)
	return nil
}

func (h *Handler) generate(ctx context.Context, chatID int64, messageID int, invoker meme.Invoker, query string, nodes []args.Node) {
	h.tg.SendUploadingPhoto(chatID)

	data, err := h.generator.CreateMeme(ctx, invoker, query, nodes, h.deny)
	if err != nil {
		h.logger.Error("meme generation failed", "query", query, "user", invoker.UserID, "err", err)
		_ = h.tg.SendReply(chatID, messageID, meme.UserMessage(err))
		return
	}

	if err := h.tg.SendPhoto(chatID, data, ""); err != nil {
		h.logger.Error("send photo failed", "err", err)
		_ = h.tg.SendText(chatID, "❌ Generated the meme but couldn't send it.")
	}
}

func (h *Handler) handleList(chatID int64) error {
	listing := formatTemplateList(h.cache.All(), h.deny)
	if listing == "" {
		return h.tg.SendText(chatID, "No templates cached yet. Run /refresh first.")
	}
	return h.tg.SendText(chatID, listing)
}

// formatTemplateList renders the /memes listing. Denied keys are
// omitted from both the entries and the leading count; an empty
// string means nothing is visible.
func formatTemplateList(all []memeapi.TemplateInfo, deny map[string]struct{}) string {
	visible := make([]memeapi.TemplateInfo, 0, len(all))
	for _, info := range all {
		if _, denied := deny[info.Key]; denied {
			continue
		}
		visible = append(visible, info)
	}
	if len(visible) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d templates:\n", len(visible))
	for _, info := range visible {
		b.WriteString(info.Key)
		if len(info.Keywords) > 0 {
			b.WriteString(" — ")
			b.WriteString(info.Keywords[0])
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (h *Handler) handleInfo(ctx context.Context, msg *tgbotapi.Message, rest string) error {
	query, _ := splitQuery(rest)
	if query == "" {
		return h.tg.SendText(msg.Chat.ID, "❌ Usage: /meminfo <template>")
	}

	match, err := h.resolver.Resolve(ctx, query, h.deny)
	if err != nil {
		return h.tg.SendReply(msg.Chat.ID, msg.MessageID, meme.UserMessage(err))
	}
	info := match.Info

	var b strings.Builder
	fmt.Fprintf(&b, "Template: %s\n", info.Key)
	if len(info.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(info.Keywords, ", "))
	}
	if len(info.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(info.Tags, ", "))
	}
	fmt.Fprintf(&b, "Images: %s\n", rangeLabel(info.MinImages, info.MaxImages))
	fmt.Fprintf(&b, "Texts: %s\n", rangeLabel(info.MinTexts, info.MaxTexts))
	if len(info.DefaultTexts) > 0 {
		fmt.Fprintf(&b, "Default texts: %s\n", strings.Join(info.DefaultTexts, " | "))
	}
	for _, opt := range info.Options {
		fmt.Fprintf(&b, "Option -%s", opt.Name)
		if opt.Type != "" {
			fmt.Fprintf(&b, " (%s)", opt.Type)
		}
		if opt.Description != "" {
			fmt.Fprintf(&b, ": %s", opt.Description)
		}
		b.WriteByte('\n')
	}

	return h.tg.SendText(msg.Chat.ID, b.String())
}

func (h *Handler) handleRefresh(ctx context.Context, chatID int64) error {
	count, err := h.cache.Refresh(ctx)
	if err != nil {
		h.logger.Error("template refresh failed", "err", err)
		return h.tg.SendText(chatID, "❌ Refresh failed. The meme service may be down.")
	}
	return h.tg.SendText(chatID, fmt.Sprintf("✅ Refreshed %d templates.", count))
}

func (h *Handler) sendHelp(chatID int64) error {
	return h.tg.SendText(chatID,
		"Meme bot\n\n"+
			"/meme <template> [texts] [@user] [-option=value] — generate a meme.\n"+
			"Attach or reply to photos to use them as images.\n"+
			"/memes — list templates\n"+
			"/meminfo <template> — show a template's contract\n"+
			"/refresh — re-fetch templates from the rendering service",
	)
}

// splitQuery takes the template key off the front of the argument
// string.
func splitQuery(rest string) (query, body string) {
	query, body, _ = strings.Cut(strings.TrimSpace(rest), " ")
	return query, strings.TrimSpace(body)
}

func rangeLabel(min, max int) string {
	switch {
	case max <= 0 && min <= 0:
		return "any"
	case max <= 0:
		return fmt.Sprintf("%d or more", min)
	case min == max:
		return fmt.Sprintf("exactly %d", min)
	default:
		return fmt.Sprintf("%d to %d", min, max)
	}
}
