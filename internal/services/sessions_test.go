package services_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/vlanet/videoplanet/internal/api"
	"github.com/vlanet/videoplanet/internal/backendtest"
	"github.com/vlanet/videoplanet/internal/services"
	"github.com/vlanet/videoplanet/internal/session"
	"github.com/vlanet/videoplanet/internal/users"
	"gorm.io/gorm"
)

func newSessionHarness(t *testing.T) (*backendtest.Backend, *services.SessionService) {
	t.Helper()
	backend := backendtest.New()
	server := httptest.NewServer(backend.Handler())
	t.Cleanup(server.Close)

	db, err := gorm.Open(sqlite.Open("file:sessions-"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&users.User{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	cache, err := users.NewCache(users.CacheConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build cache: %v", err)
	}

	access, _ := backend.IssueTokens("user-1")
	client, err := api.NewClient(api.ClientConfig{
		BaseURL: server.URL,
		Tokens:  staticTokenSource{token: access},
	})
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}
	return backend, services.NewSessionService(client, cache)
}

func TestJoinAndLeaveSession(t *testing.T) {
	backend, service := newSessionHarness(t)
	seeded := backend.SeedSession(session.Session{VideoID: "video-1", Title: "Review night"})

	joined, err := service.Join(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if len(joined.Participants) != 1 || joined.Participants[0].ID != "user-1" {
		t.Fatalf("expected the caller listed as participant, got %#v", joined.Participants)
	}

	if err := service.Leave(context.Background(), seeded.ID); err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	current, err := service.Get(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(current.Participants) != 0 {
		t.Fatalf("expected participant removed after leave, got %#v", current.Participants)
	}
}

func TestSyncPlaybackAppliesLastWriterWinsOnTheBackend(t *testing.T) {
	backend, service := newSessionHarness(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seeded := backend.SeedSession(session.Session{VideoID: "video-1"})
	backend.SetPlayback(seeded.ID, session.PlaybackState{
		CurrentTime: 50,
		LastUpdated: base.Add(10 * time.Second),
		UpdatedBy:   "user-remote",
	})

	// A stale local write loses; the authoritative state comes back.
	stale := session.PlaybackState{CurrentTime: 10, LastUpdated: base, UpdatedBy: "user-1"}
	authoritative, err := service.SyncPlayback(context.Background(), seeded.ID, stale)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if authoritative.UpdatedBy != "user-remote" || authoritative.CurrentTime != 50 {
		t.Fatalf("expected the newer remote state returned, got %#v", authoritative)
	}

	// A newer local write wins and becomes authoritative.
	newer := session.PlaybackState{CurrentTime: 75, LastUpdated: base.Add(time.Minute), UpdatedBy: "user-1"}
	authoritative, err = service.SyncPlayback(context.Background(), seeded.ID, newer)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if authoritative.UpdatedBy != "user-1" || authoritative.CurrentTime != 75 {
		t.Fatalf("expected the local write adopted, got %#v", authoritative)
	}

	if count := backend.SyncRequestCount(seeded.ID); count != 2 {
		t.Fatalf("expected 2 sync requests recorded, got %d", count)
	}
}

func TestPostCommentInfersTypeFromTimestamp(t *testing.T) {
	backend, service := newSessionHarness(t)
	seeded := backend.SeedSession(session.Session{VideoID: "video-1"})

	chat, err := service.PostComment(context.Background(), services.PostCommentRequest{
		SessionID: seeded.ID,
		Content:   "Starting in a minute",
	})
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if chat.Type != session.CommentChat {
		t.Fatalf("expected chat type inferred, got %q", chat.Type)
	}

	anchor := 42.5
	anchored, err := service.PostComment(context.Background(), services.PostCommentRequest{
		SessionID: seeded.ID,
		Content:   "Look at this frame",
		Timestamp: &anchor,
	})
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if anchored.Type != session.CommentTimestamp {
		t.Fatalf("expected timestamp type inferred, got %q", anchored.Type)
	}

	comments, err := service.ListComments(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("expected both comments listed, got %d", len(comments))
	}
}
