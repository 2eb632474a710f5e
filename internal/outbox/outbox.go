// Package outbox gives fabricated local records an explicit lifecycle.
// When a creation call cannot reach the backend the record is kept here as
// pending_sync instead of silently mutating an in-memory list, and a
// reconciliation pass replays it, with its original idempotency key, once
// connectivity returns.
package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/vlanet/videoplanet/internal/api"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// State is the sync lifecycle of a fabricated record.
type State string

const (
	// StatePendingSync marks a record created locally and not yet accepted
	// by the backend.
	StatePendingSync State = "pending_sync"
	// StateSynced marks a record the backend has accepted.
	StateSynced State = "synced"
	// StateFailed marks a record the backend rejected terminally.
	StateFailed State = "failed"
)

var (
	errMissingDatabase = errors.New("outbox: database connection required")
	// ErrUnknownKind indicates a pending record without a registered replayer.
	ErrUnknownKind = errors.New("outbox: no replayer registered for kind")
)

// Record is a locally fabricated creation awaiting backend acknowledgement.
type Record struct {
	LocalID          string `gorm:"column:local_id;primaryKey;size:190;not null"`
	Kind             string `gorm:"column:kind;size:64;not null;index"`
	IdempotencyKey   string `gorm:"column:idempotency_key;size:190;not null"`
	PayloadJSON      string `gorm:"column:payload_json;type:text;not null"`
	State            State  `gorm:"column:state;size:32;not null;index"`
	LastError        string `gorm:"column:last_error;type:text"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName exposes the table backing outbox records.
func (Record) TableName() string {
	return "outbox_records"
}

// ReplayFunc re-issues the original creation request. It must attach the
// supplied idempotency key so the backend can deduplicate the retry.
type ReplayFunc func(ctx context.Context, payloadJSON string, idempotencyKey string) error

// QueueConfig describes the dependencies of the outbox queue.
type QueueConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Queue persists pending records and replays them on reconciliation.
type Queue struct {
	db        *gorm.DB
	clock     func() time.Time
	logger    *zap.Logger
	replayers map[string]ReplayFunc
}

// NewQueue constructs the queue.
func NewQueue(cfg QueueConfig) (*Queue, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		db:        cfg.Database,
		clock:     clock,
		logger:    logger,
		replayers: make(map[string]ReplayFunc),
	}, nil
}

// RegisterReplayer binds the replay function for a record kind.
func (q *Queue) RegisterReplayer(kind string, replay ReplayFunc) {
	q.replayers[kind] = replay
}

// Enqueue stores a fabricated record as pending_sync and returns it.
func (q *Queue) Enqueue(ctx context.Context, kind string, payloadJSON string, idempotencyKey string) (Record, error) {
	now := q.clock().UTC().Unix()
	record := Record{
		LocalID:          "local-" + uuid.NewString(),
		Kind:             kind,
		IdempotencyKey:   idempotencyKey,
		PayloadJSON:      payloadJSON,
		State:            StatePendingSync,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	if err := q.db.WithContext(ctx).Create(&record).Error; err != nil {
		return Record{}, err
	}
	return record, nil
}

// Pending lists records still awaiting backend acknowledgement, oldest first.
func (q *Queue) Pending(ctx context.Context) ([]Record, error) {
	var records []Record
	err := q.db.WithContext(ctx).
		Where("state = ?", StatePendingSync).
		Order("created_at_s asc").
		Find(&records).Error
	return records, err
}

// Reconcile replays every pending record. A transport failure stops the
// pass and leaves the remaining records pending; a terminal rejection marks
// the record failed and the pass continues.
func (q *Queue) Reconcile(ctx context.Context) error {
	pending, err := q.Pending(ctx)
	if err != nil {
		return err
	}

	for _, record := range pending {
		replay, ok := q.replayers[record.Kind]
		if !ok {
			q.logger.Warn("pending record has no replayer", zap.String("kind", record.Kind))
			continue
		}

		err := replay(ctx, record.PayloadJSON, record.IdempotencyKey)
		switch {
		case err == nil:
			if err := q.transition(ctx, record.LocalID, StateSynced, ""); err != nil {
				return err
			}
			q.logger.Info("pending record reconciled",
				zap.String("kind", record.Kind),
				zap.String("local_id", record.LocalID))
		case errors.Is(err, api.ErrNetwork):
			// Still offline; keep the record pending and come back later.
			return err
		default:
			if err := q.transition(ctx, record.LocalID, StateFailed, err.Error()); err != nil {
				return err
			}
			q.logger.Warn("pending record rejected",
				zap.String("kind", record.Kind),
				zap.String("local_id", record.LocalID),
				zap.Error(err))
		}
	}
	return nil
}

func (q *Queue) transition(ctx context.Context, localID string, state State, lastError string) error {
	return q.db.WithContext(ctx).Model(&Record{}).
		Where("local_id = ?", localID).
		Updates(map[string]interface{}{
			"state":        state,
			"last_error":   lastError,
			"updated_at_s": q.clock().UTC().Unix(),
		}).Error
}
