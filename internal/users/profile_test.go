package users

import (
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openProfileDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:users-%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := NewCache(CacheConfig{Database: openProfileDatabase(t)})
	if err != nil {
		t.Fatalf("failed to build cache: %v", err)
	}
	return cache
}

func TestRememberStoresAndResolvesProfiles(t *testing.T) {
	cache := newTestCache(t)

	if err := cache.Remember(User{ID: "user-1", Email: "dana@example.com", DisplayName: "Dana Editor"}); err != nil {
		t.Fatalf("remember failed: %v", err)
	}
	if name := cache.DisplayName("user-1"); name != "Dana Editor" {
		t.Fatalf("expected display name resolved, got %q", name)
	}
}

func TestRememberBlankFieldsNeverOverwrite(t *testing.T) {
	cache := newTestCache(t)

	if err := cache.Remember(User{ID: "user-1", Email: "dana@example.com", DisplayName: "Dana Editor"}); err != nil {
		t.Fatalf("remember failed: %v", err)
	}
	// A payload that only carries the id, as session participant lists do.
	if err := cache.Remember(User{ID: "user-1"}); err != nil {
		t.Fatalf("remember failed: %v", err)
	}
	if name := cache.DisplayName("user-1"); name != "Dana Editor" {
		t.Fatalf("expected earlier profile preserved, got %q", name)
	}
}

func TestRememberUpdatesChangedFields(t *testing.T) {
	cache := newTestCache(t)

	if err := cache.Remember(User{ID: "user-1", DisplayName: "Dana"}); err != nil {
		t.Fatalf("remember failed: %v", err)
	}
	if err := cache.Remember(User{ID: "user-1", DisplayName: "Dana Editor"}); err != nil {
		t.Fatalf("remember failed: %v", err)
	}
	if name := cache.DisplayName("user-1"); name != "Dana Editor" {
		t.Fatalf("expected updated display name, got %q", name)
	}
}

func TestRememberIgnoresBlankID(t *testing.T) {
	cache := newTestCache(t)
	if err := cache.Remember(User{DisplayName: "Nameless"}); err != nil {
		t.Fatalf("expected blank id tolerated, got %v", err)
	}
}

func TestDisplayNameFallsBackToRawID(t *testing.T) {
	cache := newTestCache(t)
	if name := cache.DisplayName("user-unknown"); name != "user-unknown" {
		t.Fatalf("expected raw id fallback, got %q", name)
	}
	if name := cache.DisplayName(""); name != "" {
		t.Fatalf("expected empty input to stay empty, got %q", name)
	}
}

func TestDisplayNameSurvivesRestartViaDurableCopy(t *testing.T) {
	db := openProfileDatabase(t)
	first, err := NewCache(CacheConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build cache: %v", err)
	}
	if err := first.Remember(User{ID: "user-1", DisplayName: "Dana Editor"}); err != nil {
		t.Fatalf("remember failed: %v", err)
	}

	// A fresh cache over the same database resolves from the durable copy.
	second, err := NewCache(CacheConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build cache: %v", err)
	}
	if name := second.DisplayName("user-1"); name != "Dana Editor" {
		t.Fatalf("expected durable resolution, got %q", name)
	}
}
