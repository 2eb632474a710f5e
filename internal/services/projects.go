package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/vlanet/videoplanet/internal/api"
	"github.com/vlanet/videoplanet/internal/outbox"
	"go.uber.org/zap"
)

// OutboxKindProject identifies project creations in the outbox.
const OutboxKindProject = "project"

// Project is a production project.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	// SyncState is client-only: pending_sync marks a fabricated record the
	// backend has not yet acknowledged.
	SyncState outbox.State `json:"-"`
}

// CreateProjectRequest is the payload for a new project.
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ProjectService shapes the project endpoints. Creation attaches an
// idempotency key, and when the backend is unreachable it degrades to a
// fabricated local record queued in the outbox for later reconciliation.
type ProjectService struct {
	client *api.Client
	queue  *outbox.Queue
	clock  func() time.Time
	logger *zap.Logger
}

// ProjectServiceConfig describes the dependencies of the project service.
type ProjectServiceConfig struct {
	Client *api.Client
	// Queue enables the offline fallback; without it, network failures
	// surface as hard errors.
	Queue  *outbox.Queue
	Clock  func() time.Time
	Logger *zap.Logger
}

// NewProjectService constructs the project service.
func NewProjectService(cfg ProjectServiceConfig) *ProjectService {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectService{client: cfg.Client, queue: cfg.Queue, clock: clock, logger: logger}
}

// List returns every project visible to the current user.
func (s *ProjectService) List(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := s.client.Get(ctx, "/api/projects/", &projects); err != nil {
		return nil, err
	}
	for i := range projects {
		projects[i].SyncState = outbox.StateSynced
	}
	return projects, nil
}

// Create creates a project with a per-call idempotency key. On a transport
// failure the request is enqueued and a fabricated pending_sync record is
// returned so the UI stays usable offline.
func (s *ProjectService) Create(ctx context.Context, request CreateProjectRequest) (Project, error) {
	idempotencyKey := uuid.NewString()
	created, err := s.create(ctx, request, idempotencyKey)
	if err == nil {
		created.SyncState = outbox.StateSynced
		return created, nil
	}
	if s.queue == nil || !errors.Is(err, api.ErrNetwork) {
		return Project{}, err
	}

	payload, marshalErr := json.Marshal(request)
	if marshalErr != nil {
		return Project{}, marshalErr
	}
	record, queueErr := s.queue.Enqueue(ctx, OutboxKindProject, string(payload), idempotencyKey)
	if queueErr != nil {
		return Project{}, queueErr
	}

	s.logger.Warn("project creation degraded to local record",
		zap.String("local_id", record.LocalID),
		zap.Error(err))
	now := s.clock().UTC()
	return Project{
		ID:          record.LocalID,
		Name:        request.Name,
		Description: request.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
		SyncState:   outbox.StatePendingSync,
	}, nil
}

// Replay re-issues a queued creation with its original idempotency key. It
// is registered with the outbox queue at wiring time.
func (s *ProjectService) Replay(ctx context.Context, payloadJSON string, idempotencyKey string) error {
	var request CreateProjectRequest
	if err := json.Unmarshal([]byte(payloadJSON), &request); err != nil {
		return err
	}
	_, err := s.create(ctx, request, idempotencyKey)
	return err
}

func (s *ProjectService) create(ctx context.Context, request CreateProjectRequest, idempotencyKey string) (Project, error) {
	var created Project
	apiRequest := api.Request{
		Method:         "POST",
		Path:           "/api/projects/",
		Body:           request,
		IdempotencyKey: idempotencyKey,
	}
	if err := s.client.Do(ctx, apiRequest, &created); err != nil {
		return Project{}, err
	}
	return created, nil
}
