// Package auth holds the client-side token manager: it keeps the access
// token fresh without caller intervention, persists the token set durably,
// and broadcasts a definitive authentication failure so the rest of the
// application can tear down session state.
package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	defaultAccessTokenTTL = 15 * time.Minute
	refreshThreshold      = 60 * time.Second
	refreshLeeway         = 2 * time.Minute
	minRefreshDelay       = time.Minute
)

var (
	errMissingStore     = errors.New("auth: token store required")
	errMissingRefresher = errors.New("auth: refresher required")
)

// Refresher exchanges a refresh token for a fresh token set.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

// ManagerConfig describes the dependencies of the token manager.
type ManagerConfig struct {
	Store TokenStore
	// Refresher performs the backend refresh call. Required.
	Refresher Refresher
	// AccessTokenTTL is the assumed lifetime of an access token whose
	// expiry cannot be read from its claims. Defaults to 15 minutes.
	AccessTokenTTL time.Duration
	Clock          func() time.Time
	Logger         *zap.Logger
}

// Manager is the process-wide source of truth for auth tokens. It is
// injected wherever a bearer token is needed rather than reached for as a
// package-level singleton, so tests can substitute it freely.
type Manager struct {
	store     TokenStore
	refresher Refresher
	tokenTTL  time.Duration
	clock     func() time.Time
	logger    *zap.Logger

	mu          sync.Mutex
	tokens      Tokens
	expiresAt   time.Time
	refreshing  bool
	timer       *time.Timer
	closed      bool
	subscribers map[int64]chan struct{}
	nextSubID   int64
}

// NewManager constructs the manager and loads any persisted token set,
// scheduling a proactive refresh when one is present.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Refresher == nil {
		return nil, errMissingRefresher
	}
	tokenTTL := cfg.AccessTokenTTL
	if tokenTTL <= 0 {
		tokenTTL = defaultAccessTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	manager := &Manager{
		store:       cfg.Store,
		refresher:   cfg.Refresher,
		tokenTTL:    tokenTTL,
		clock:       clock,
		logger:      logger,
		subscribers: make(map[int64]chan struct{}),
	}

	tokens, expiresAt, err := cfg.Store.LoadTokens(context.Background())
	if err == nil && !tokens.Empty() {
		manager.mu.Lock()
		manager.tokens = tokens
		manager.expiresAt = expiresAt
		manager.scheduleRefreshLocked()
		manager.mu.Unlock()
	} else if err != nil && !errors.Is(err, ErrNoTokens) {
		logger.Warn("failed to load persisted tokens", zap.Error(err))
	}

	return manager, nil
}

// SetTokens stores a new token set, computes its expiry, persists it, and
// (re)schedules the proactive refresh timer. The expiry is read from the
// access token's exp claim when it parses as a JWT and falls back to the
// configured assumed lifetime otherwise.
func (m *Manager) SetTokens(ctx context.Context, tokens Tokens) error {
	now := m.clock().UTC()
	expiresAt := now.Add(m.tokenTTL)
	if claimExpiry, ok := accessTokenExpiry(tokens.AccessToken); ok {
		expiresAt = claimExpiry
	}

	if err := m.store.SaveTokens(ctx, tokens, expiresAt); err != nil {
		return err
	}

	m.mu.Lock()
	m.tokens = tokens
	m.expiresAt = expiresAt
	m.scheduleRefreshLocked()
	m.mu.Unlock()
	return nil
}

// AccessToken returns the current access token. When the token is within
// the refresh threshold of its expiry an asynchronous refresh is kicked
// off, but the old token is still returned immediately; one request may go
// out with a stale token while the refresh is in flight.
func (m *Manager) AccessToken(_ context.Context) (string, error) {
	m.mu.Lock()
	token := m.tokens.AccessToken
	needsRefresh := token != "" && m.clock().UTC().After(m.expiresAt.Add(-refreshThreshold))
	alreadyRefreshing := m.refreshing
	if needsRefresh && !alreadyRefreshing {
		m.refreshing = true
	}
	m.mu.Unlock()

	if needsRefresh && !alreadyRefreshing {
		go m.refresh()
	}
	return token, nil
}

// Subscribe registers for the definitive auth-failure signal. The returned
// channel receives one element when a refresh fails and the session is
// cleared; cancel the context or call the cleanup function to unregister.
func (m *Manager) Subscribe(ctx context.Context) (<-chan struct{}, func()) {
	m.mu.Lock()
	m.nextSubID++
	id := m.nextSubID
	stream := make(chan struct{}, 1)
	m.subscribers[id] = stream
	m.mu.Unlock()

	cleanup := func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return stream, cleanup
}

// Close stops the refresh timer. Tokens remain persisted.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// scheduleRefreshLocked arms the proactive refresh timer. The delay is
// expiry minus now minus the leeway, floored at one minute.
func (m *Manager) scheduleRefreshLocked() {
	if m.timer != nil {
		m.timer.Stop()
	}
	if m.closed || m.tokens.Empty() {
		return
	}
	delay := m.expiresAt.Sub(m.clock().UTC()) - refreshLeeway
	if delay < minRefreshDelay {
		delay = minRefreshDelay
	}
	m.timer = time.AfterFunc(delay, m.refreshFromTimer)
}

func (m *Manager) refreshFromTimer() {
	m.mu.Lock()
	if m.refreshing || m.closed || m.tokens.Empty() {
		m.mu.Unlock()
		return
	}
	m.refreshing = true
	m.mu.Unlock()
	m.refresh()
}

// refresh performs a single refresh attempt. Any failure, transport or
// explicit rejection alike, clears the session and broadcasts the failure;
// there is no retry.
func (m *Manager) refresh() {
	m.mu.Lock()
	refreshToken := m.tokens.RefreshToken
	m.mu.Unlock()

	tokens, err := m.refresher.Refresh(context.Background(), refreshToken)
	if err != nil {
		m.logger.Warn("token refresh failed, clearing session", zap.Error(err))
		m.failAuth()
		return
	}

	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}
	now := m.clock().UTC()
	expiresAt := now.Add(m.tokenTTL)
	if claimExpiry, ok := accessTokenExpiry(tokens.AccessToken); ok {
		expiresAt = claimExpiry
	}
	if err := m.store.SaveTokens(context.Background(), tokens, expiresAt); err != nil {
		m.logger.Warn("failed to persist refreshed tokens", zap.Error(err))
	}

	m.mu.Lock()
	m.tokens = tokens
	m.expiresAt = expiresAt
	m.refreshing = false
	m.scheduleRefreshLocked()
	m.mu.Unlock()
	m.logger.Debug("access token refreshed", zap.Time("expires_at", expiresAt))
}

// failAuth clears all token state and notifies subscribers exactly once per
// failure. Subscribers with a pending, unconsumed signal are skipped.
func (m *Manager) failAuth() {
	if err := m.store.ClearTokens(context.Background()); err != nil {
		m.logger.Warn("failed to clear persisted tokens", zap.Error(err))
	}

	m.mu.Lock()
	m.tokens = Tokens{}
	m.expiresAt = time.Time{}
	m.refreshing = false
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	streams := make([]chan struct{}, 0, len(m.subscribers))
	for _, stream := range m.subscribers {
		streams = append(streams, stream)
	}
	m.mu.Unlock()

	for _, stream := range streams {
		select {
		case stream <- struct{}{}:
		default:
		}
	}
}

// accessTokenExpiry reads the exp claim from a JWT-shaped access token
// without verifying its signature; the client never validates tokens, it
// only times their renewal.
func accessTokenExpiry(accessToken string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time.UTC(), true
}
