package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server   ServerConfig
	Worker   WorkerConfig
	Storage  StorageConfig
	Clips    ClipsConfig
	Webhook  WebhookConfig
	RabbitMQ RabbitMQConfig
	Tools    ToolsConfig
}

type ServerConfig struct {
	Host string `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `envconfig:"PORT" default:"8080"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type WorkerConfig struct {
	Count          int `envconfig:"WORKER_COUNT" default:"2"`
	QueueSize      int `envconfig:"WORKER_QUEUE_SIZE" default:"16"`
	TimeoutSeconds int `envconfig:"TIMEOUT_SECONDS" default:"600"`
}

func (c WorkerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type StorageConfig struct {
	AccountID     string `envconfig:"R2_ACCOUNT_ID"`
	AccessKey     string `envconfig:"R2_ACCESS_KEY_ID"`
	SecretKey     string `envconfig:"R2_SECRET_ACCESS_KEY"`
	Bucket        string `envconfig:"R2_BUCKET_NAME"`
	Endpoint      string `envconfig:"R2_ENDPOINT"`
	PublicBaseURL string `envconfig:"R2_PUBLIC_BASE_URL"`
	Secure        bool   `envconfig:"R2_SECURE" default:"true"`
}

type ClipsConfig struct {
	PexelsAPIKey  string   `envconfig:"PEXELS_API_KEY"`
	PixabayAPIKey string   `envconfig:"PIXABAY_API_KEY"`
	MaxClips      int      `envconfig:"MAX_CLIPS" default:"5"`
	BannedTopics  []string `envconfig:"BANNED_TOPICS"`
}

type WebhookConfig struct {
	CallbackURL    string `envconfig:"N8N_CALLBACK_WEBHOOK_URL"`
	TimeoutSeconds int    `envconfig:"WEBHOOK_TIMEOUT_SECONDS" default:"10"`
}

func (c WebhookConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type RabbitMQConfig struct {
	URL       string `envconfig:"RABBITMQ_URL"`
	QueueName string `envconfig:"RABBITMQ_QUEUE" default:"render_jobs"`
}

type ToolsConfig struct {
	FfmpegPath         string `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	FfprobePath        string `envconfig:"FFPROBE_PATH" default:"ffprobe"`
	YtdlpPath          string `envconfig:"YTDLP_PATH" default:"yt-dlp"`
	MaxDurationSeconds int    `envconfig:"MAX_DURATION" default:"3600"`
}

func (c ToolsConfig) MaxDuration() time.Duration {
	return time.Duration(c.MaxDurationSeconds) * time.Second
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	// R2 endpoints derive from the account id unless set explicitly.
	if cfg.Storage.Endpoint == "" && cfg.Storage.AccountID != "" {
		cfg.Storage.Endpoint = fmt.Sprintf("%s.r2.cloudflarestorage.com", cfg.Storage.AccountID)
	}
	if cfg.Storage.PublicBaseURL == "" && cfg.Storage.AccountID != "" {
		cfg.Storage.PublicBaseURL = fmt.Sprintf("https://pub-%s.r2.dev", cfg.Storage.AccountID)
	}

	return &cfg, nil
}
