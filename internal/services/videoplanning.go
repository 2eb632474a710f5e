package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/vlanet/videoplanet/internal/api"
	"github.com/vlanet/videoplanet/internal/outbox"
	"go.uber.org/zap"
)

// OutboxKindVideoPlan identifies video plan creations in the outbox.
const OutboxKindVideoPlan = "video_plan"

// VideoPlan is a planning document for a video within a project.
type VideoPlan struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Title     string    `json:"title"`
	Outline   string    `json:"outline,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// SyncState is client-only; see Project.SyncState.
	SyncState outbox.State `json:"-"`
}

// CreateVideoPlanRequest is the payload for a new video plan.
type CreateVideoPlanRequest struct {
	ProjectID string `json:"project_id"`
	Title     string `json:"title"`
	Outline   string `json:"outline,omitempty"`
}

// VideoPlanningService shapes the video planning endpoints with the same
// offline degradation as projects.
type VideoPlanningService struct {
	client *api.Client
	queue  *outbox.Queue
	clock  func() time.Time
	logger *zap.Logger
}

// NewVideoPlanningService constructs the planning service.
func NewVideoPlanningService(cfg ProjectServiceConfig) *VideoPlanningService {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VideoPlanningService{client: cfg.Client, queue: cfg.Queue, clock: clock, logger: logger}
}

// List returns the video plans of a project.
func (s *VideoPlanningService) List(ctx context.Context, projectID string) ([]VideoPlan, error) {
	var plans []VideoPlan
	if err := s.client.Get(ctx, "/api/video-planning/?project_id="+url.QueryEscape(projectID), &plans); err != nil {
		return nil, err
	}
	for i := range plans {
		plans[i].SyncState = outbox.StateSynced
	}
	return plans, nil
}

// Create creates a video plan, degrading to a fabricated pending_sync
// record on transport failure.
func (s *VideoPlanningService) Create(ctx context.Context, request CreateVideoPlanRequest) (VideoPlan, error) {
	idempotencyKey := uuid.NewString()
	created, err := s.create(ctx, request, idempotencyKey)
	if err == nil {
		created.SyncState = outbox.StateSynced
		return created, nil
	}
	if s.queue == nil || !errors.Is(err, api.ErrNetwork) {
		return VideoPlan{}, err
	}

	payload, marshalErr := json.Marshal(request)
	if marshalErr != nil {
		return VideoPlan{}, marshalErr
	}
	record, queueErr := s.queue.Enqueue(ctx, OutboxKindVideoPlan, string(payload), idempotencyKey)
	if queueErr != nil {
		return VideoPlan{}, queueErr
	}

	s.logger.Warn("video plan creation degraded to local record",
		zap.String("local_id", record.LocalID),
		zap.Error(err))
	now := s.clock().UTC()
	return VideoPlan{
		ID:        record.LocalID,
		ProjectID: request.ProjectID,
		Title:     request.Title,
		Outline:   request.Outline,
		CreatedAt: now,
		UpdatedAt: now,
		SyncState: outbox.StatePendingSync,
	}, nil
}

// Replay re-issues a queued creation with its original idempotency key.
func (s *VideoPlanningService) Replay(ctx context.Context, payloadJSON string, idempotencyKey string) error {
	var request CreateVideoPlanRequest
	if err := json.Unmarshal([]byte(payloadJSON), &request); err != nil {
		return err
	}
	_, err := s.create(ctx, request, idempotencyKey)
	return err
}

func (s *VideoPlanningService) create(ctx context.Context, request CreateVideoPlanRequest, idempotencyKey string) (VideoPlan, error) {
	var created VideoPlan
	apiRequest := api.Request{
		Method:         "POST",
		Path:           "/api/video-planning/",
		Body:           request,
		IdempotencyKey: idempotencyKey,
	}
	if err := s.client.Do(ctx, apiRequest, &created); err != nil {
		return VideoPlan{}, err
	}
	return created, nil
}
