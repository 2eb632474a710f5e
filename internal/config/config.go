package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "VIDEOPLANET"
	defaultDatabasePath   = "videoplanet.db"
	defaultLogLevel       = "info"
	defaultHTTPTimeout    = 15 * time.Second
	defaultPollInterval   = 5 * time.Minute
	defaultSyncInterval   = 5 * time.Second
	defaultAccessTokenTTL = 15 * time.Minute
)

// AppConfig captures runtime configuration for the VideoPlanet client.
type AppConfig struct {
	APIBaseURL     string
	DatabasePath   string
	LogLevel       string
	HTTPTimeout    time.Duration
	PollInterval   time.Duration
	SyncInterval   time.Duration
	AccessTokenTTL time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("http.timeout", defaultHTTPTimeout)
	configViper.SetDefault("notify.poll_interval", defaultPollInterval)
	configViper.SetDefault("session.sync_interval", defaultSyncInterval)
	configViper.SetDefault("auth.access_token_ttl", defaultAccessTokenTTL)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		APIBaseURL:     configViper.GetString("api.base_url"),
		DatabasePath:   configViper.GetString("database.path"),
		LogLevel:       configViper.GetString("log.level"),
		HTTPTimeout:    configViper.GetDuration("http.timeout"),
		PollInterval:   configViper.GetDuration("notify.poll_interval"),
		SyncInterval:   configViper.GetDuration("session.sync_interval"),
		AccessTokenTTL: configViper.GetDuration("auth.access_token_ttl"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("notify.poll_interval must be positive")
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("session.sync_interval must be positive")
	}
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.access_token_ttl must be positive")
	}
	return nil
}
