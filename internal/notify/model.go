// Package notify derives local alerts from polled calendar and invitation
// state. Alerts exist only on this client: they are generated here,
// deduplicated against the in-memory list, and persisted wholesale to the
// local store.
package notify

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Type enumerates the alert kinds the aggregator can emit.
type Type string

const (
	TypeEventDue           Type = "event_due"
	TypeEventOverdue       Type = "event_overdue"
	TypeInvitationReceived Type = "invitation_received"
	TypeInvitationAccepted Type = "invitation_accepted"
	TypeProjectDeadline    Type = "project_deadline"
)

// Priority ranks an alert for presentation.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Notification is a locally generated alert.
type Notification struct {
	ID        string
	Type      Type
	Title     string
	Message   string
	ActionURL string
	Priority  Priority
	IsRead    bool
	CreatedAt time.Time
}

// DedupKey identifies the condition behind an alert; at most one alert per
// key exists in the list.
func (n Notification) DedupKey() string {
	return string(n.Type) + "|" + n.ActionURL
}

// Record is the durable copy of a notification. Creation instants are
// stored as unix seconds, so a round trip preserves them to the second.
type Record struct {
	ID               string `gorm:"column:id;primaryKey;size:190;not null"`
	Type             string `gorm:"column:type;size:64;not null"`
	Title            string `gorm:"column:title;type:text;not null"`
	Message          string `gorm:"column:message;type:text"`
	ActionURL        string `gorm:"column:action_url;size:512"`
	Priority         string `gorm:"column:priority;size:32;not null"`
	IsRead           bool   `gorm:"column:is_read;not null;default:false"`
	DedupKey         string `gorm:"column:dedup_key;size:600;not null;index"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName exposes the table backing persisted notifications.
func (Record) TableName() string {
	return "notifications"
}

// ListStore reads and writes the notification list wholesale, mirroring the
// last-writer-wins, whole-list granularity of the underlying storage.
type ListStore interface {
	LoadNotifications(ctx context.Context) ([]Notification, error)
	SaveNotifications(ctx context.Context, list []Notification) error
}

// SQLiteListStore persists the list in the local database.
type SQLiteListStore struct {
	db *gorm.DB
}

// NewSQLiteListStore binds a list store to the provided database handle.
func NewSQLiteListStore(db *gorm.DB) *SQLiteListStore {
	return &SQLiteListStore{db: db}
}

// LoadNotifications returns the persisted list in creation order.
func (s *SQLiteListStore) LoadNotifications(ctx context.Context) ([]Notification, error) {
	var records []Record
	err := s.db.WithContext(ctx).Order("created_at_s asc, id asc").Find(&records).Error
	if err != nil {
		return nil, err
	}
	list := make([]Notification, 0, len(records))
	for _, record := range records {
		list = append(list, Notification{
			ID:        record.ID,
			Type:      Type(record.Type),
			Title:     record.Title,
			Message:   record.Message,
			ActionURL: record.ActionURL,
			Priority:  Priority(record.Priority),
			IsRead:    record.IsRead,
			CreatedAt: time.Unix(record.CreatedAtSeconds, 0).UTC(),
		})
	}
	return list, nil
}

// SaveNotifications replaces the persisted list wholesale.
func (s *SQLiteListStore) SaveNotifications(ctx context.Context, list []Notification) error {
	records := make([]Record, 0, len(list))
	for _, notification := range list {
		records = append(records, Record{
			ID:               notification.ID,
			Type:             string(notification.Type),
			Title:            notification.Title,
			Message:          notification.Message,
			ActionURL:        notification.ActionURL,
			Priority:         string(notification.Priority),
			IsRead:           notification.IsRead,
			DedupKey:         notification.DedupKey(),
			CreatedAtSeconds: notification.CreatedAt.Unix(),
		})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&Record{}).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		return tx.Create(&records).Error
	})
}
