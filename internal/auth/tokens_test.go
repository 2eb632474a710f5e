package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTokenDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:tokens-%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&TokenRecord{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestSQLiteTokenStoreRoundTrip(t *testing.T) {
	store := NewSQLiteTokenStore(openTokenDatabase(t))
	expiresAt := time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC)
	saved := Tokens{AccessToken: "access-1", RefreshToken: "refresh-1"}

	if err := store.SaveTokens(context.Background(), saved, expiresAt); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, loadedExpiry, err := store.LoadTokens(context.Background())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded != saved {
		t.Fatalf("unexpected tokens: %#v", loaded)
	}
	if !loadedExpiry.Equal(expiresAt) {
		t.Fatalf("expected expiry preserved to the second, got %v", loadedExpiry)
	}
}

func TestSQLiteTokenStoreOverwritesSingleRow(t *testing.T) {
	store := NewSQLiteTokenStore(openTokenDatabase(t))
	first := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	if err := store.SaveTokens(context.Background(), Tokens{AccessToken: "access-1", RefreshToken: "refresh-1"}, first); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if err := store.SaveTokens(context.Background(), Tokens{AccessToken: "access-2", RefreshToken: "refresh-2"}, first.Add(time.Hour)); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	loaded, _, err := store.LoadTokens(context.Background())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.AccessToken != "access-2" {
		t.Fatalf("expected latest token set, got %#v", loaded)
	}
}

func TestSQLiteTokenStoreReportsMissingTokens(t *testing.T) {
	store := NewSQLiteTokenStore(openTokenDatabase(t))
	if _, _, err := store.LoadTokens(context.Background()); !errors.Is(err, ErrNoTokens) {
		t.Fatalf("expected ErrNoTokens, got %v", err)
	}
}

func TestSQLiteTokenStoreClearRemovesTokens(t *testing.T) {
	store := NewSQLiteTokenStore(openTokenDatabase(t))
	expiresAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if err := store.SaveTokens(context.Background(), Tokens{AccessToken: "access-1", RefreshToken: "refresh-1"}, expiresAt); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.ClearTokens(context.Background()); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if _, _, err := store.LoadTokens(context.Background()); !errors.Is(err, ErrNoTokens) {
		t.Fatalf("expected ErrNoTokens after clear, got %v", err)
	}
}
