package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vlanet/videoplanet/internal/services"
	"go.uber.org/zap"
)

const (
	defaultPollInterval = 5 * time.Minute

	// dueHorizonHours is how far ahead an event qualifies as due.
	dueHorizonHours = 24
	// dueUrgentHours is the window inside which a due alert becomes high priority.
	dueUrgentHours = 4
	// overdueHorizonHours is how far back an event still qualifies as overdue.
	overdueHorizonHours = 48
)

var (
	errMissingEventSource      = errors.New("notify: calendar source required")
	errMissingInvitationSource = errors.New("notify: invitation source required")
	errMissingListStore        = errors.New("notify: list store required")
	// ErrUnknownNotification indicates an id not present in the list.
	ErrUnknownNotification = errors.New("notify: unknown notification")
)

// EventSource supplies calendar events, implemented by the calendar service.
type EventSource interface {
	ListEvents(ctx context.Context) ([]services.CalendarEvent, error)
}

// InvitationSource supplies received invitations, implemented by the
// invitation service.
type InvitationSource interface {
	ListReceived(ctx context.Context) ([]services.Invitation, error)
}

// ToastFunc surfaces a transient toast. Invoked for high-priority alerts at
// creation time.
type ToastFunc func(notification Notification)

// AggregatorConfig describes the dependencies of the aggregator.
type AggregatorConfig struct {
	Events       EventSource
	Invitations  InvitationSource
	Store        ListStore
	PollInterval time.Duration
	Clock        func() time.Time
	Logger       *zap.Logger
	Toast        ToastFunc
	IDProvider   func() string
}

// Aggregator synthesizes alerts from the polled sources. Polling runs as a
// single scheduled task: interval ticks and Wake calls feed one runner, and
// a pass mutex serializes direct Poll calls, so two triggers can never race
// a pass against itself.
type Aggregator struct {
	events       EventSource
	invitations  InvitationSource
	store        ListStore
	pollInterval time.Duration
	clock        func() time.Time
	logger       *zap.Logger
	toast        ToastFunc
	newID        func() string

	passMu sync.Mutex
	listMu sync.Mutex
	list   []Notification

	wake chan struct{}
}

// NewAggregator constructs the aggregator and loads the persisted alert list.
func NewAggregator(cfg AggregatorConfig) (*Aggregator, error) {
	if cfg.Events == nil {
		return nil, errMissingEventSource
	}
	if cfg.Invitations == nil {
		return nil, errMissingInvitationSource
	}
	if cfg.Store == nil {
		return nil, errMissingListStore
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	newID := cfg.IDProvider
	if newID == nil {
		newID = uuid.NewString
	}

	aggregator := &Aggregator{
		events:       cfg.Events,
		invitations:  cfg.Invitations,
		store:        cfg.Store,
		pollInterval: pollInterval,
		clock:        clock,
		logger:       logger,
		toast:        cfg.Toast,
		newID:        newID,
		wake:         make(chan struct{}, 1),
	}

	persisted, err := cfg.Store.LoadNotifications(context.Background())
	if err != nil {
		logger.Warn("failed to load persisted notifications", zap.Error(err))
	} else {
		aggregator.list = persisted
	}
	return aggregator, nil
}

// Run polls once immediately, then on every interval tick and every Wake,
// until the context is cancelled.
func (a *Aggregator) Run(ctx context.Context) {
	a.Poll(ctx)

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Poll(ctx)
		case <-a.wake:
			a.Poll(ctx)
		}
	}
}

// Wake requests an out-of-band pass, as the browser app does when the
// window regains focus. Pending wakes coalesce.
func (a *Aggregator) Wake() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// Poll runs one aggregation pass. Passes are mutually exclusive; a pass
// that finds a source unreachable logs and moves on, it never fails the
// whole pass.
func (a *Aggregator) Poll(ctx context.Context) {
	a.passMu.Lock()
	defer a.passMu.Unlock()

	now := a.clock().UTC()
	created := make([]Notification, 0)

	calendarEvents, err := a.events.ListEvents(ctx)
	if err != nil {
		a.logger.Warn("calendar poll failed", zap.Error(err))
	} else {
		for _, calendarEvent := range calendarEvents {
			if notification, ok := a.deriveEventAlert(calendarEvent, now); ok {
				created = append(created, notification)
			}
		}
	}

	invitations, err := a.invitations.ListReceived(ctx)
	if err != nil {
		a.logger.Warn("invitation poll failed", zap.Error(err))
	} else {
		for _, invitation := range invitations {
			if notification, ok := a.deriveInvitationAlert(invitation, now); ok {
				created = append(created, notification)
			}
		}
	}

	if len(created) == 0 {
		return
	}

	a.listMu.Lock()
	snapshot := a.snapshotLocked()
	a.listMu.Unlock()

	if err := a.store.SaveNotifications(ctx, snapshot); err != nil {
		a.logger.Warn("failed to persist notifications", zap.Error(err))
	}
	for _, notification := range created {
		if notification.Priority == PriorityHigh && a.toast != nil {
			a.toast(notification)
		}
	}
	a.logger.Debug("notification pass emitted alerts", zap.Int("count", len(created)))
}

// deriveEventAlert applies the due/overdue rules to one calendar event.
func (a *Aggregator) deriveEventAlert(calendarEvent services.CalendarEvent, now time.Time) (Notification, bool) {
	hoursUntilStart := calendarEvent.StartAt.Sub(now).Hours()
	actionURL := "/calendar/events/" + calendarEvent.ID

	switch {
	case hoursUntilStart > 0 && hoursUntilStart <= dueHorizonHours:
		priority := PriorityMedium
		if hoursUntilStart <= dueUrgentHours {
			priority = PriorityHigh
		}
		return a.emit(Notification{
			Type:      TypeEventDue,
			Title:     "Upcoming: " + calendarEvent.Title,
			Message:   fmt.Sprintf("%q starts in %.0f hours", calendarEvent.Title, hoursUntilStart),
			ActionURL: actionURL,
			Priority:  priority,
		}, now)
	case hoursUntilStart < 0 && -hoursUntilStart <= overdueHorizonHours:
		return a.emit(Notification{
			Type:      TypeEventOverdue,
			Title:     "Overdue: " + calendarEvent.Title,
			Message:   fmt.Sprintf("%q started %.0f hours ago", calendarEvent.Title, -hoursUntilStart),
			ActionURL: actionURL,
			Priority:  PriorityHigh,
		}, now)
	default:
		return Notification{}, false
	}
}

// deriveInvitationAlert emits an alert for every pending, unexpired invitation.
func (a *Aggregator) deriveInvitationAlert(invitation services.Invitation, now time.Time) (Notification, bool) {
	if invitation.Status != services.InvitationPending || invitation.Expired(now) {
		return Notification{}, false
	}
	return a.emit(Notification{
		Type:      TypeInvitationReceived,
		Title:     "Invitation from " + invitation.SenderName,
		Message:   invitation.Message,
		ActionURL: "/invitations/" + invitation.ID,
		Priority:  PriorityMedium,
	}, now)
}

// emit fills the generated fields, suppresses duplicates by dedup key, and
// appends the alert to the list so later emissions in the same pass see it.
func (a *Aggregator) emit(notification Notification, now time.Time) (Notification, bool) {
	a.listMu.Lock()
	defer a.listMu.Unlock()
	key := notification.DedupKey()
	for _, existing := range a.list {
		if existing.DedupKey() == key {
			return Notification{}, false
		}
	}
	notification.ID = a.newID()
	notification.CreatedAt = now
	a.list = append(a.list, notification)
	return notification, true
}

// List returns a copy of the current alert list.
func (a *Aggregator) List() []Notification {
	a.listMu.Lock()
	defer a.listMu.Unlock()
	return a.snapshotLocked()
}

// MarkRead flags a notification read and persists the list.
func (a *Aggregator) MarkRead(ctx context.Context, notificationID string) error {
	return a.mutate(ctx, notificationID, func(list []Notification, index int) []Notification {
		list[index].IsRead = true
		return list
	})
}

// Dismiss removes a notification, the only path by which the list shrinks.
func (a *Aggregator) Dismiss(ctx context.Context, notificationID string) error {
	return a.mutate(ctx, notificationID, func(list []Notification, index int) []Notification {
		return append(list[:index], list[index+1:]...)
	})
}

func (a *Aggregator) mutate(ctx context.Context, notificationID string, apply func(list []Notification, index int) []Notification) error {
	a.listMu.Lock()
	index := -1
	for i, notification := range a.list {
		if notification.ID == notificationID {
			index = i
			break
		}
	}
	if index < 0 {
		a.listMu.Unlock()
		return ErrUnknownNotification
	}
	a.list = apply(a.list, index)
	snapshot := a.snapshotLocked()
	a.listMu.Unlock()
	return a.store.SaveNotifications(ctx, snapshot)
}

func (a *Aggregator) snapshotLocked() []Notification {
	snapshot := make([]Notification, len(a.list))
	copy(snapshot, a.list)
	return snapshot
}
