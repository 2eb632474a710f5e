package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vlanet/videoplanet/internal/events"
	"go.uber.org/zap"
)

const defaultSyncInterval = 5 * time.Second

var (
	errMissingSyncer    = errors.New("session: syncer required")
	errMissingSessionID = errors.New("session: session id required")
	// ErrNotJoined indicates an operation that requires an active session membership.
	ErrNotJoined = errors.New("session: not joined")
)

// Syncer is the network dependency of the engine, implemented by the
// sessions domain service.
type Syncer interface {
	Join(ctx context.Context, sessionID string) (Session, error)
	Leave(ctx context.Context, sessionID string) error
	SyncPlayback(ctx context.Context, sessionID string, state PlaybackState) (PlaybackState, error)
}

// EngineConfig describes the dependencies of the playback sync engine.
type EngineConfig struct {
	Syncer Syncer
	// Bus receives a playback update event whenever the remote state wins
	// reconciliation. Optional.
	Bus *events.Bus
	// UserID stamps locally-originated playback writes.
	UserID       string
	SyncInterval time.Duration
	Clock        func() time.Time
	Logger       *zap.Logger
}

// Engine mirrors local playback state into a named session and adopts the
// remote state when another participant wrote more recently. All methods
// are safe for concurrent use.
type Engine struct {
	syncer       Syncer
	bus          *events.Bus
	userID       string
	syncInterval time.Duration
	clock        func() time.Time
	logger       *zap.Logger

	mu       sync.Mutex
	session  Session
	playback PlaybackState
	joined   bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewEngine constructs the engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Syncer == nil {
		return nil, errMissingSyncer
	}
	syncInterval := cfg.SyncInterval
	if syncInterval <= 0 {
		syncInterval = defaultSyncInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		syncer:       cfg.Syncer,
		bus:          cfg.Bus,
		userID:       cfg.UserID,
		syncInterval: syncInterval,
		clock:        clock,
		logger:       logger,
	}, nil
}

// Join enters the session and, when the session enables playback sync,
// starts the sync loop. Joining an already-joined engine is a no-op, so a
// double Join is safe.
func (e *Engine) Join(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errMissingSessionID
	}
	e.mu.Lock()
	if e.joined {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	joined, err := e.syncer.Join(ctx, sessionID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.session = joined
	e.playback = joined.Playback
	e.joined = true
	startLoop := joined.Settings.SyncPlayback
	if startLoop {
		loopCtx, cancel := context.WithCancel(context.Background())
		e.cancel = cancel
		e.done = make(chan struct{})
		go e.syncLoop(loopCtx)
	}
	e.mu.Unlock()

	e.logger.Info("joined session",
		zap.String("session_id", joined.ID),
		zap.Bool("sync_playback", startLoop))
	return nil
}

// Leave stops the sync loop and exits the session. Leaving when not joined
// is a no-op.
func (e *Engine) Leave(ctx context.Context) error {
	e.mu.Lock()
	if !e.joined {
		e.mu.Unlock()
		return nil
	}
	sessionID := e.session.ID
	cancel := e.cancel
	done := e.done
	e.joined = false
	e.cancel = nil
	e.done = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return e.syncer.Leave(ctx, sessionID)
}

// Session returns the session as observed at join time.
func (e *Engine) Session() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// Playback returns the current reconciled playback state.
func (e *Engine) Playback() PlaybackState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playback
}

// Seek moves the local playhead.
func (e *Engine) Seek(seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	e.updateLocal(func(state *PlaybackState) {
		state.CurrentTime = seconds
	})
}

// Play resumes local playback.
func (e *Engine) Play() {
	e.updateLocal(func(state *PlaybackState) {
		state.IsPlaying = true
	})
}

// Pause halts local playback.
func (e *Engine) Pause() {
	e.updateLocal(func(state *PlaybackState) {
		state.IsPlaying = false
	})
}

// SetRate changes the local playback rate.
func (e *Engine) SetRate(rate float64) {
	if rate <= 0 {
		return
	}
	e.updateLocal(func(state *PlaybackState) {
		state.PlaybackRate = rate
	})
}

// NotifyFeedbackCreated pauses playback when the session asks for a pause
// whenever feedback lands.
func (e *Engine) NotifyFeedbackCreated() {
	e.mu.Lock()
	autoPause := e.joined && e.session.Settings.AutoPauseOnFeedback && e.playback.IsPlaying
	e.mu.Unlock()
	if autoPause {
		e.Pause()
	}
}

func (e *Engine) updateLocal(mutate func(state *PlaybackState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	mutate(&e.playback)
	e.playback.LastUpdated = e.clock().UTC()
	e.playback.UpdatedBy = e.userID
}

// syncLoop pushes the local playback state on every tick and adopts the
// returned remote state when it is newer.
func (e *Engine) syncLoop(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.syncOnce(ctx)
		}
	}
}

func (e *Engine) syncOnce(ctx context.Context) {
	e.mu.Lock()
	sessionID := e.session.ID
	local := e.playback
	e.mu.Unlock()

	remote, err := e.syncer.SyncPlayback(ctx, sessionID, local)
	if err != nil {
		e.logger.Warn("playback sync failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}

	resolved := resolvePlayback(local, remote)
	if resolved == local {
		return
	}

	e.mu.Lock()
	// Local writes made while the sync call was in flight win again.
	resolved = resolvePlayback(e.playback, resolved)
	adopted := resolved != e.playback
	e.playback = resolved
	e.mu.Unlock()

	if adopted && e.bus != nil {
		e.bus.Publish(events.ChangeEvent{
			Type:      events.ChangeUpdate,
			Entity:    "playback",
			EntityID:  sessionID,
			Payload:   resolved,
			Timestamp: resolved.LastUpdated,
		})
	}
}
