package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	gocache "github.com/patrickmn/go-cache"
)

// fallbackAvatarURL is deterministic per user id, for users without an
// accessible profile photo.
const fallbackAvatarURL = "https://api.dicebear.com/7.x/identicon/png?seed=%d"

type Options struct {
	Token      string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Debug      bool
	// AvatarTTL bounds how long resolved avatar URLs are reused.
	AvatarTTL time.Duration
}

// profileAPI is the slice of the Bot API used for avatar resolution.
type profileAPI interface {
	GetUserProfilePhotos(config tgbotapi.UserProfilePhotosConfig) (tgbotapi.UserProfilePhotos, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Client struct {
	bot     *tgbotapi.BotAPI
	profile profileAPI
	logger  *slog.Logger
	avatars *gocache.Cache
}

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if opts.HTTPClient == nil {
		return nil, errors.New("http client is nil")
	}

	bot, err := tgbotapi.NewBotAPIWithClient(opts.Token, tgbotapi.APIEndpoint, opts.HTTPClient)
	if err != nil {
		return nil, err
	}
	bot.Debug = opts.Debug

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ttl := opts.AvatarTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &Client{
		bot:     bot,
		profile: bot,
		logger:  logger,
		avatars: gocache.New(ttl, 2*ttl),
	}, nil
}

func (c *Client) Username() string {
	return c.bot.Self.UserName
}

type Update = tgbotapi.Update

type UpdatesOptions struct {
	Timeout time.Duration
}

func (c *Client) Updates(opts UpdatesOptions) tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	if opts.Timeout > 0 {
		u.Timeout = int(opts.Timeout.Seconds())
	} else {
		u.Timeout = 30
	}
	return c.bot.GetUpdatesChan(u)
}

func (c *Client) StopUpdates() {
	c.bot.StopReceivingUpdates()
}

func (c *Client) SendUploadingPhoto(chatID int64) {
	_, _ = c.bot.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatUploadPhoto))
}

func (c *Client) SendText(chatID int64, text string) error {
	parts := splitByBytes(text, 4096)
	for _, p := range parts {
		msg := tgbotapi.NewMessage(chatID, p)
		if _, err := c.bot.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

// SendReply sends one message quoting the message it answers.
func (c *Client) SendReply(chatID int64, replyTo int, text string) error {
	msg := tgbotapi.NewMessage(chatID, truncateByBytes(text, 4096))
	msg.ReplyToMessageID = replyTo
	_, err := c.bot.Send(msg)
	return err
}

// SendPhoto uploads rendered image bytes as a photo message.
func (c *Client) SendPhoto(chatID int64, data []byte, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{
		Name:  "meme.png",
		Bytes: data,
	})
	if caption != "" {
		photo.Caption = truncateByBytes(caption, 1024)
	}

	_, err := c.bot.Send(photo)
	if err != nil {
		// Animated results are rejected as photos; retry as document.
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
			Name:  "meme.gif",
			Bytes: data,
		})
		_, err = c.bot.Send(doc)
	}
	return err
}

// FileURL resolves a Telegram file id to a direct download URL.
func (c *Client) FileURL(fileID string) (string, error) {
	return c.bot.GetFileDirectURL(fileID)
}

// AvatarURL returns an image URL for the user's profile photo, or a
// deterministic fallback keyed by the user id when none is accessible.
// Results are cached with a TTL.
func (c *Client) AvatarURL(ctx context.Context, userID int64) (string, error) {
	key := strconv.FormatInt(userID, 10)
	if cached, ok := c.avatars.Get(key); ok {
		return cached.(string), nil
	}

	url := c.lookupAvatar(userID)
	c.avatars.SetDefault(key, url)
	return url, nil
}

func (c *Client) lookupAvatar(userID int64) string {
	photos, err := c.profile.GetUserProfilePhotos(tgbotapi.UserProfilePhotosConfig{
		UserID: userID,
		Limit:  1,
	})
	if err != nil || len(photos.Photos) == 0 || len(photos.Photos[0]) == 0 {
		if err != nil {
			c.logger.Debug("profile photo lookup failed, using fallback", "user", userID, "err", err)
		}
		return fmt.Sprintf(fallbackAvatarURL, userID)
	}

	sizes := photos.Photos[0]
	largest := sizes[len(sizes)-1]

	url, err := c.profile.GetFileDirectURL(largest.FileID)
	if err != nil {
		c.logger.Debug("profile photo file url failed, using fallback", "user", userID, "err", err)
		return fmt.Sprintf(fallbackAvatarURL, userID)
	}
	return url
}

func splitByBytes(text string, maxBytes int) []string {
	if len([]byte(text)) <= maxBytes || maxBytes <= 0 {
		return []string{text}
	}

	var out []string
	var buf strings.Builder
	buf.Grow(maxBytes)

	for _, r := range text {
		runeBytes := utf8.RuneLen(r)
		if runeBytes < 0 {
			runeBytes = len([]byte(string(r)))
		}

		if buf.Len() > 0 && buf.Len()+runeBytes > maxBytes {
			out = append(out, buf.String())
			buf.Reset()
		}
		buf.WriteRune(r)
	}

	if buf.Len() > 0 {
		out = append(out, buf.String())
	}

	return out
}

func truncateByBytes(text string, maxBytes int) string {
	if len([]byte(text)) <= maxBytes || maxBytes <= 0 {
		return text
	}

	var buf strings.Builder
	buf.Grow(maxBytes)
	for _, r := range text {
		runeBytes := utf8.RuneLen(r)
		if runeBytes < 0 {
			runeBytes = len([]byte(string(r)))
		}

		if buf.Len()+runeBytes > maxBytes {
			break
		}
		buf.WriteRune(r)
	}
	return buf.String()
}
