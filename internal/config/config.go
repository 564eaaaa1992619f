package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	UploadClient string `envconfig:"UPLOAD_CLIENT" default:"telegram"`

	TelegramToken  string `envconfig:"TELEGRAM_TOKEN"`
	TelegramChatID string `envconfig:"TELEGRAM_CHAT_ID"`

	PutioToken  string `envconfig:"PUTIO_TOKEN"`
	PutioFolder string `envconfig:"PUTIO_FOLDER" default:"tg-utils"`

	MaxTransferSize    int64         `envconfig:"MAX_TRANSFER_SIZE" default:"2147483648"`
	MaxInlinePhotoSize int64         `envconfig:"MAX_INLINE_PHOTO_SIZE" default:"10485760"`
	ChunkSize          int           `envconfig:"CHUNK_SIZE" default:"8192"`
	ProgressInterval   time.Duration `envconfig:"PROGRESS_INTERVAL" default:"2s"`
	ProbeTimeout       time.Duration `envconfig:"PROBE_TIMEOUT" default:"10s"`
	StreamTimeout      time.Duration `envconfig:"STREAM_TIMEOUT" default:"300s"`

	LogLevel          string `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`
	DBPath            string `envconfig:"DB_PATH" default:"transfers.db"`

	API struct {
		Username string `split_words:"true"`
		Password string `split_words:"true"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:8080"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"true"`
		OTLPEndpoint string `envconfig:"TELEMETRY_OTLP_ENDPOINT"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
