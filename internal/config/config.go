package config

import (
	"errors"
	"strings"
	"time"

	cenv "github.com/caarlos0/env/v11"
)

type Config struct {
	ListenAddr     string
	DubberBaseURL  string
	DubberAPIKey   string
	RequestTimeout time.Duration
	PollInterval   time.Duration
	PollTimeout    time.Duration
	MaxUploadBytes int64
	CharacterQuota int
	LogLevel       string
}

type envConfig struct {
	ListenAddr            string `env:"LISTEN_ADDR" envDefault:":8080"`
	DubberBaseURL         string `env:"DUBBER_BASE_URL" envDefault:"https://api.dubber.example/v1"`
	DubberAPIKey          string `env:"DUBBER_API_KEY"`
	RequestTimeoutSeconds int    `env:"REQUEST_TIMEOUT_SECONDS" envDefault:"25"`
	PollIntervalSeconds   int    `env:"POLL_INTERVAL_SECONDS" envDefault:"2"`
	PollTimeoutSeconds    int    `env:"POLL_TIMEOUT_SECONDS" envDefault:"300"`
	MaxUploadBytes        int64  `env:"MAX_UPLOAD_BYTES" envDefault:"26214400"`
	CharacterQuota        int    `env:"CHARACTER_QUOTA" envDefault:"2000"`
	LogLevel              string `env:"LOG_LEVEL" envDefault:"info"`
}

func Load() (Config, error) {
	var raw envConfig
	if err := cenv.Parse(&raw); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:     strings.TrimSpace(raw.ListenAddr),
		DubberBaseURL:  strings.TrimRight(strings.TrimSpace(raw.DubberBaseURL), "/"),
		DubberAPIKey:   strings.TrimSpace(raw.DubberAPIKey),
		RequestTimeout: time.Duration(raw.RequestTimeoutSeconds) * time.Second,
		PollInterval:   time.Duration(raw.PollIntervalSeconds) * time.Second,
		PollTimeout:    time.Duration(raw.PollTimeoutSeconds) * time.Second,
		MaxUploadBytes: raw.MaxUploadBytes,
		CharacterQuota: raw.CharacterQuota,
		LogLevel:       strings.ToLower(strings.TrimSpace(raw.LogLevel)),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("LISTEN_ADDR must not be empty")
	}
	if c.DubberBaseURL == "" {
		return errors.New("DUBBER_BASE_URL must not be empty")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT_SECONDS must be > 0")
	}
	if c.PollInterval <= 0 {
		return errors.New("POLL_INTERVAL_SECONDS must be > 0")
	}
	if c.PollTimeout <= c.PollInterval {
		return errors.New("POLL_TIMEOUT_SECONDS must exceed POLL_INTERVAL_SECONDS")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be > 0")
	}
	if c.CharacterQuota <= 0 {
		return errors.New("CHARACTER_QUOTA must be > 0")
	}
	return nil
}
