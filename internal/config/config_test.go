package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("api.base_url", "https://api.videoplanet.example")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DatabasePath != "videoplanet.db" {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("unexpected log level: %q", cfg.LogLevel)
	}
	if cfg.HTTPTimeout != 15*time.Second {
		t.Fatalf("unexpected http timeout: %v", cfg.HTTPTimeout)
	}
	if cfg.PollInterval != 5*time.Minute {
		t.Fatalf("unexpected poll interval: %v", cfg.PollInterval)
	}
	if cfg.SyncInterval != 5*time.Second {
		t.Fatalf("unexpected sync interval: %v", cfg.SyncInterval)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("unexpected access token ttl: %v", cfg.AccessTokenTTL)
	}
}

func TestLoadRequiresBaseURL(t *testing.T) {
	if _, err := Load(NewViper()); err == nil {
		t.Fatalf("expected missing base url to fail validation")
	}
}

func TestLoadRejectsNonPositiveIntervals(t *testing.T) {
	configViper := NewViper()
	configViper.Set("api.base_url", "https://api.videoplanet.example")
	configViper.Set("notify.poll_interval", "0s")
	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected zero poll interval rejected")
	}

	configViper = NewViper()
	configViper.Set("api.base_url", "https://api.videoplanet.example")
	configViper.Set("session.sync_interval", "-1s")
	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected negative sync interval rejected")
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	configViper := NewViper()
	configViper.Set("api.base_url", "https://api.videoplanet.example")
	configViper.Set("database.path", "custom.db")
	configViper.Set("auth.access_token_ttl", "30m")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DatabasePath != "custom.db" {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath)
	}
	if cfg.AccessTokenTTL != 30*time.Minute {
		t.Fatalf("unexpected access token ttl: %v", cfg.AccessTokenTTL)
	}
}
