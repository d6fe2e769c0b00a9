package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	BotToken   string
	APIBaseURL string

	LogLevel string
	Debug    bool

	PreferIPv4 bool

	HTTPTimeout     time.Duration
	RequestTimeout  time.Duration
	MetadataTimeout time.Duration
	GenerateTimeout time.Duration
	ImageTimeout    time.Duration

	MaxImageBytes int64
	MaxConcurrent int

	CacheFile      string
	EagerRefresh   bool
	TolerateExcess bool
	DisabledMemes  []string

	MediaGroupDebounce time.Duration
	AvatarCacheTTL     time.Duration
}

func Load() (Config, error) {
	cfg := Config{
		LogLevel:           strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info"))),
		Debug:              getEnvBool("DEBUG", false),
		PreferIPv4:         getEnvBool("PREFER_IPV4", true),
		HTTPTimeout:        time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 120)) * time.Second,
		RequestTimeout:     time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 120)) * time.Second,
		MetadataTimeout:    time.Duration(getEnvInt("METADATA_TIMEOUT_SECONDS", 10)) * time.Second,
		GenerateTimeout:    time.Duration(getEnvInt("GENERATE_TIMEOUT_SECONDS", 60)) * time.Second,
		ImageTimeout:       time.Duration(getEnvInt("IMAGE_FETCH_TIMEOUT_SECONDS", 30)) * time.Second,
		MaxImageBytes:      int64(getEnvInt("MAX_IMAGE_BYTES", 10<<20)),
		MaxConcurrent:      getEnvInt("MAX_CONCURRENT", 4),
		CacheFile:          strings.TrimSpace(getEnv("CACHE_FILE", "data/templates.json")),
		EagerRefresh:       getEnvBool("EAGER_REFRESH", true),
		TolerateExcess:     getEnvBool("TOLERATE_EXCESS", true),
		MediaGroupDebounce: time.Duration(getEnvInt("MEDIA_GROUP_DEBOUNCE_MS", 1200)) * time.Millisecond,
		AvatarCacheTTL:     time.Duration(getEnvInt("AVATAR_CACHE_TTL_SECONDS", 600)) * time.Second,
	}

	cfg.BotToken = strings.TrimSpace(os.Getenv("BOT_TOKEN"))
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("MEME_API_BASE_URL")), "/")

	if raw := strings.TrimSpace(os.Getenv("DISABLED_MEMES")); raw != "" {
		for _, key := range strings.Split(raw, ",") {
			if key = strings.TrimSpace(key); key != "" {
				cfg.DisabledMemes = append(cfg.DisabledMemes, key)
			}
		}
	}

	switch {
	case cfg.BotToken == "":
		return Config{}, errors.New("BOT_TOKEN is required")
	case cfg.APIBaseURL == "":
		return Config{}, errors.New("MEME_API_BASE_URL is required")
	}

	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 120 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 120 * time.Second
	}
	if cfg.MetadataTimeout <= 0 {
		cfg.MetadataTimeout = 10 * time.Second
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = 60 * time.Second
	}
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = 30 * time.Second
	}
	if cfg.MaxImageBytes < 0 {
		cfg.MaxImageBytes = 0
	}

	return cfg, nil
}

// DenySet returns the disabled template keys as a lookup set.
func (c Config) DenySet() map[string]struct{} {
	if len(c.DisabledMemes) == 0 {
		return nil
	}
	deny := make(map[string]struct{}, len(c.DisabledMemes))
	for _, key := range c.DisabledMemes {
		deny[key] = struct{}{}
	}
	return deny
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
