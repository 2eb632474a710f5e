package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vlanet/videoplanet/internal/events"
)

type fakeSyncer struct {
	mu          sync.Mutex
	session     Session
	remoteState PlaybackState
	joinCalls   int
	leaveCalls  int
	syncCalls   int
	lastPushed  PlaybackState
}

func (f *fakeSyncer) Join(_ context.Context, sessionID string) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joinCalls++
	joined := f.session
	joined.ID = sessionID
	return joined, nil
}

func (f *fakeSyncer) Leave(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaveCalls++
	return nil
}

func (f *fakeSyncer) SyncPlayback(_ context.Context, _ string, state PlaybackState) (PlaybackState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncCalls++
	f.lastPushed = state
	return f.remoteState, nil
}

func (f *fakeSyncer) counts() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joinCalls, f.leaveCalls, f.syncCalls
}

func newTestEngine(t *testing.T, syncer *fakeSyncer, bus *events.Bus, clock func() time.Time) *Engine {
	t.Helper()
	engine, err := NewEngine(EngineConfig{
		Syncer:       syncer,
		Bus:          bus,
		UserID:       "user-local",
		SyncInterval: time.Hour,
		Clock:        clock,
	})
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	return engine
}

func TestJoinIsIdempotent(t *testing.T) {
	syncer := &fakeSyncer{}
	engine := newTestEngine(t, syncer, nil, time.Now)

	if err := engine.Join(context.Background(), "session-1"); err != nil {
		t.Fatalf("first join failed: %v", err)
	}
	if err := engine.Join(context.Background(), "session-1"); err != nil {
		t.Fatalf("second join failed: %v", err)
	}

	joins, _, _ := syncer.counts()
	if joins != 1 {
		t.Fatalf("expected exactly one backend join, got %d", joins)
	}
}

func TestJoinRequiresSessionID(t *testing.T) {
	engine := newTestEngine(t, &fakeSyncer{}, nil, time.Now)
	if err := engine.Join(context.Background(), ""); err == nil {
		t.Fatalf("expected join without a session id to fail")
	}
}

func TestLeaveStopsSyncLoopAndNotifiesBackend(t *testing.T) {
	syncer := &fakeSyncer{session: Session{Settings: Settings{SyncPlayback: true}}}
	engine := newTestEngine(t, syncer, nil, time.Now)

	if err := engine.Join(context.Background(), "session-1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if err := engine.Leave(context.Background()); err != nil {
		t.Fatalf("leave failed: %v", err)
	}

	_, leaves, _ := syncer.counts()
	if leaves != 1 {
		t.Fatalf("expected one backend leave, got %d", leaves)
	}

	// A second leave without membership is a no-op.
	if err := engine.Leave(context.Background()); err != nil {
		t.Fatalf("repeated leave failed: %v", err)
	}
	_, leaves, _ = syncer.counts()
	if leaves != 1 {
		t.Fatalf("expected repeated leave to skip the backend, got %d calls", leaves)
	}
}

func TestLocalControlsStampAuthorAndInstant(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	engine := newTestEngine(t, &fakeSyncer{}, nil, func() time.Time { return now })

	if err := engine.Join(context.Background(), "session-1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	engine.Seek(37.5)
	engine.Play()
	engine.SetRate(1.5)

	state := engine.Playback()
	if state.CurrentTime != 37.5 || !state.IsPlaying || state.PlaybackRate != 1.5 {
		t.Fatalf("unexpected playback state: %#v", state)
	}
	if state.UpdatedBy != "user-local" {
		t.Fatalf("expected local writes attributed to user-local, got %q", state.UpdatedBy)
	}
	if !state.LastUpdated.Equal(now) {
		t.Fatalf("expected write stamped with the clock instant, got %v", state.LastUpdated)
	}
}

func TestSeekClampsNegativePlayhead(t *testing.T) {
	engine := newTestEngine(t, &fakeSyncer{}, nil, time.Now)
	engine.Seek(-10)
	if engine.Playback().CurrentTime != 0 {
		t.Fatalf("expected negative seek clamped to zero, got %.1f", engine.Playback().CurrentTime)
	}
}

func TestSetRateIgnoresNonPositiveValues(t *testing.T) {
	engine := newTestEngine(t, &fakeSyncer{}, nil, time.Now)
	engine.SetRate(1.5)
	engine.SetRate(0)
	engine.SetRate(-2)
	if engine.Playback().PlaybackRate != 1.5 {
		t.Fatalf("expected non-positive rates ignored, got %.2f", engine.Playback().PlaybackRate)
	}
}

func TestSyncAdoptsNewerRemoteStateAndPublishes(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	syncer := &fakeSyncer{
		remoteState: PlaybackState{
			CurrentTime: 90,
			IsPlaying:   true,
			LastUpdated: base.Add(10 * time.Second),
			UpdatedBy:   "user-remote",
		},
	}
	bus := events.NewBus()
	engine := newTestEngine(t, syncer, bus, func() time.Time { return base })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, unsubscribe := bus.Subscribe(ctx)
	defer unsubscribe()

	if err := engine.Join(ctx, "session-1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	engine.Seek(10)
	engine.syncOnce(ctx)

	state := engine.Playback()
	if state.UpdatedBy != "user-remote" || state.CurrentTime != 90 {
		t.Fatalf("expected remote state adopted, got %#v", state)
	}

	select {
	case event := <-stream:
		if event.Entity != "playback" || event.EntityID != "session-1" {
			t.Fatalf("unexpected change event: %#v", event)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a playback change event on the bus")
	}
}

func TestSyncKeepsLocalStateWhenRemoteIsStale(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	syncer := &fakeSyncer{
		remoteState: PlaybackState{
			CurrentTime: 90,
			LastUpdated: base.Add(-10 * time.Second),
			UpdatedBy:   "user-remote",
		},
	}
	engine := newTestEngine(t, syncer, nil, func() time.Time { return base })

	if err := engine.Join(context.Background(), "session-1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	engine.Seek(10)
	engine.syncOnce(context.Background())

	state := engine.Playback()
	if state.UpdatedBy != "user-local" || state.CurrentTime != 10 {
		t.Fatalf("expected local state retained, got %#v", state)
	}

	_, _, syncs := syncer.counts()
	if syncs != 1 {
		t.Fatalf("expected one sync push, got %d", syncs)
	}
	syncer.mu.Lock()
	pushed := syncer.lastPushed
	syncer.mu.Unlock()
	if pushed.CurrentTime != 10 {
		t.Fatalf("expected local state pushed to the backend, got %#v", pushed)
	}
}

func TestNotifyFeedbackCreatedPausesWhenSessionAsksForIt(t *testing.T) {
	syncer := &fakeSyncer{session: Session{Settings: Settings{AutoPauseOnFeedback: true}}}
	engine := newTestEngine(t, syncer, nil, time.Now)

	if err := engine.Join(context.Background(), "session-1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	engine.Play()
	engine.NotifyFeedbackCreated()
	if engine.Playback().IsPlaying {
		t.Fatalf("expected playback paused after feedback landed")
	}
}

func TestNotifyFeedbackCreatedIgnoredWhenDisabled(t *testing.T) {
	syncer := &fakeSyncer{}
	engine := newTestEngine(t, syncer, nil, time.Now)

	if err := engine.Join(context.Background(), "session-1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	engine.Play()
	engine.NotifyFeedbackCreated()
	if !engine.Playback().IsPlaying {
		t.Fatalf("expected playback unaffected when auto-pause is off")
	}
}
