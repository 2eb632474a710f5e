// Package backendtest implements an in-process fake of the VideoPlanet
// backend REST API. The real backend is an opaque external collaborator, so
// every network-facing test runs against this fake instead. The surface
// mirrors production, including bearer auth and CORS.
package backendtest

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/vlanet/videoplanet/internal/feedback"
	"github.com/vlanet/videoplanet/internal/services"
	"github.com/vlanet/videoplanet/internal/session"
)

const (
	defaultSigningSecret = "backendtest-secret"
	defaultTokenTTL      = 30 * time.Minute
)

// Backend holds the fake's in-memory state. All methods are safe for
// concurrent use.
type Backend struct {
	mu sync.Mutex

	signingSecret []byte
	tokenTTL      time.Duration
	clock         func() time.Time

	refreshFails   bool
	failNextStatus int

	nextID       int64
	projects     []services.Project
	idempotency  map[string]string
	plans        []services.VideoPlan
	invitations  map[string]*services.Invitation
	events       map[string]*services.CalendarEvent
	feedbacks    map[string]*feedback.TimelineFeedback
	sessions     map[string]*session.Session
	comments     []session.RealtimeComment
	syncRequests map[string]int
}

// New constructs an empty fake backend.
func New() *Backend {
	return &Backend{
		signingSecret: []byte(defaultSigningSecret),
		tokenTTL:      defaultTokenTTL,
		clock:         time.Now,
		idempotency:   make(map[string]string),
		invitations:   make(map[string]*services.Invitation),
		events:        make(map[string]*services.CalendarEvent),
		feedbacks:     make(map[string]*feedback.TimelineFeedback),
		sessions:      make(map[string]*session.Session),
		syncRequests:  make(map[string]int),
	}
}

// SetClock replaces the fake's time source.
func (b *Backend) SetClock(clock func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clock = clock
}

// SetRefreshShouldFail makes subsequent refresh calls return 401.
func (b *Backend) SetRefreshShouldFail(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshFails = fail
}

// FailNextWith makes the next request short-circuit with the given status.
func (b *Backend) FailNextWith(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNextStatus = status
}

// IssueTokens mints a token pair for the given user, as login would.
func (b *Backend) IssueTokens(userID string) (string, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.issueTokensLocked(userID)
}

func (b *Backend) issueTokensLocked(userID string) (string, string) {
	now := b.clock().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    "videoplanet-test",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(b.tokenTTL)),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.signingSecret)
	if err != nil {
		panic(err)
	}
	refresh := "refresh-" + userID + "-" + fmt.Sprint(b.sequenceLocked())
	return access, refresh
}

func (b *Backend) sequenceLocked() int64 {
	b.nextID++
	return b.nextID
}

func (b *Backend) newIDLocked(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, b.sequenceLocked())
}

// SyncRequestCount reports how many playback sync calls a session has seen.
func (b *Backend) SyncRequestCount(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.syncRequests[sessionID]
}

// SeedEvent stores a calendar event, assigning an id when absent.
func (b *Backend) SeedEvent(calendarEvent services.CalendarEvent) services.CalendarEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if calendarEvent.ID == "" {
		calendarEvent.ID = b.newIDLocked("event")
	}
	b.events[calendarEvent.ID] = &calendarEvent
	return calendarEvent
}

// SeedInvitation stores an invitation, assigning an id when absent.
func (b *Backend) SeedInvitation(invitation services.Invitation) services.Invitation {
	b.mu.Lock()
	defer b.mu.Unlock()
	if invitation.ID == "" {
		invitation.ID = b.newIDLocked("invitation")
	}
	if invitation.Status == "" {
		invitation.Status = services.InvitationPending
	}
	b.invitations[invitation.ID] = &invitation
	return invitation
}

// SeedFeedback stores a feedback entry, assigning an id when absent.
func (b *Backend) SeedFeedback(entry feedback.TimelineFeedback) feedback.TimelineFeedback {
	b.mu.Lock()
	defer b.mu.Unlock()
	if entry.ID == "" {
		entry.ID = b.newIDLocked("feedback")
	}
	if entry.Status == "" {
		entry.Status = feedback.StatusActive
	}
	b.feedbacks[entry.ID] = &entry
	return entry
}

// SeedSession stores a session, assigning an id when absent.
func (b *Backend) SeedSession(videoSession session.Session) session.Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	if videoSession.ID == "" {
		videoSession.ID = b.newIDLocked("session")
	}
	b.sessions[videoSession.ID] = &videoSession
	return videoSession
}

// SetPlayback overwrites a session's authoritative playback state.
func (b *Backend) SetPlayback(sessionID string, state session.PlaybackState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if videoSession, ok := b.sessions[sessionID]; ok {
		videoSession.Playback = state
	}
}

// Projects returns a snapshot of the stored projects.
func (b *Backend) Projects() []services.Project {
	b.mu.Lock()
	defer b.mu.Unlock()
	snapshot := make([]services.Project, len(b.projects))
	copy(snapshot, b.projects)
	return snapshot
}

// Handler returns the fake's HTTP surface.
func (b *Backend) Handler() http.Handler {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Idempotency-Key"},
		MaxAge:       12 * time.Hour,
	}))
	router.Use(b.failureInjection)

	router.POST("/api/users/login/", b.handleLogin)
	router.POST("/api/auth/refresh/", b.handleRefresh)

	protected := router.Group("/")
	protected.Use(b.authorizeRequest)
	protected.GET("/api/projects/", b.handleListProjects)
	protected.POST("/api/projects/", b.handleCreateProject)
	protected.GET("/api/video-planning/", b.handleListPlans)
	protected.POST("/api/video-planning/", b.handleCreatePlan)
	protected.GET("/api/invitations/received/", b.handleListInvitations)
	protected.POST("/api/invitations/", b.handleSendInvitation)
	protected.POST("/api/invitations/:id/:action/", b.handleInvitationAction)
	protected.GET("/api/calendar/events/", b.handleListEvents)
	protected.POST("/api/calendar/events/", b.handleCreateEvent)
	protected.POST("/api/calendar/events/bulk/", b.handleBulkUpdateEvents)
	protected.PUT("/api/calendar/events/:id/", b.handleUpdateEvent)
	protected.DELETE("/api/calendar/events/:id/", b.handleDeleteEvent)
	protected.GET("/api/video-feedbacks/", b.handleListFeedbacks)
	protected.POST("/api/video-feedbacks/", b.handleCreateFeedback)
	protected.PUT("/api/video-feedbacks/:id/", b.handleUpdateFeedback)
	protected.DELETE("/api/video-feedbacks/:id/", b.handleDeleteFeedback)
	protected.POST("/api/video-feedbacks/:id/resolve/", b.handleResolveFeedback)
	protected.POST("/api/video-feedbacks/:id/replies/", b.handleReplyFeedback)
	protected.GET("/api/video-sessions/:id/", b.handleGetSession)
	protected.POST("/api/video-sessions/:id/:action/", b.handleSessionAction)
	protected.GET("/api/realtime-comments/", b.handleListComments)
	protected.POST("/api/realtime-comments/", b.handlePostComment)

	return router
}

func (b *Backend) failureInjection(c *gin.Context) {
	b.mu.Lock()
	status := b.failNextStatus
	b.failNextStatus = 0
	b.mu.Unlock()
	if status != 0 {
		c.AbortWithStatusJSON(status, gin.H{"message": "injected failure", "code": "injected"})
		return
	}
	c.Next()
}

func (b *Backend) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authorization required"})
		return
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
		}
		return b.signingSecret, nil
	}, jwt.WithTimeFunc(func() time.Time {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.clock()
	}))
	if err != nil || claims.Subject == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
		return
	}
	c.Set("user_id", claims.Subject)
	c.Next()
}
