package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vlanet/videoplanet/internal/services"
	"go.uber.org/zap"
)

type fakeEventSource struct {
	mu     sync.Mutex
	events []services.CalendarEvent
	err    error
}

func (f *fakeEventSource) ListEvents(_ context.Context) ([]services.CalendarEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events, f.err
}

type fakeInvitationSource struct {
	mu          sync.Mutex
	invitations []services.Invitation
	err         error
}

func (f *fakeInvitationSource) ListReceived(_ context.Context) ([]services.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invitations, f.err
}

type memoryListStore struct {
	mu    sync.Mutex
	list  []Notification
	saves int
}

func (s *memoryListStore) LoadNotifications(_ context.Context) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]Notification, len(s.list))
	copy(snapshot, s.list)
	return snapshot, nil
}

func (s *memoryListStore) SaveNotifications(_ context.Context, list []Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = make([]Notification, len(list))
	copy(s.list, list)
	s.saves++
	return nil
}

func sequentialIDs() func() string {
	next := 0
	return func() string {
		next++
		return fmt.Sprintf("notif-%d", next)
	}
}

func newTestAggregator(t *testing.T, events *fakeEventSource, invitations *fakeInvitationSource, store *memoryListStore, now time.Time, toast ToastFunc) *Aggregator {
	t.Helper()
	aggregator, err := NewAggregator(AggregatorConfig{
		Events:      events,
		Invitations: invitations,
		Store:       store,
		Clock:       func() time.Time { return now },
		Logger:      zap.NewNop(),
		Toast:       toast,
		IDProvider:  sequentialIDs(),
	})
	if err != nil {
		t.Fatalf("failed to build aggregator: %v", err)
	}
	return aggregator
}

func TestPollEmitsDueAlertForEventsInsideTheHorizon(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	events := &fakeEventSource{events: []services.CalendarEvent{
		{ID: "event-soon", Title: "Rough cut review", StartAt: now.Add(3 * time.Hour)},
		{ID: "event-later", Title: "Final delivery", StartAt: now.Add(10 * time.Hour)},
		{ID: "event-distant", Title: "Kickoff", StartAt: now.Add(30 * time.Hour)},
	}}
	aggregator := newTestAggregator(t, events, &fakeInvitationSource{}, &memoryListStore{}, now, nil)

	aggregator.Poll(context.Background())

	list := aggregator.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 alerts inside the 24h horizon, got %d", len(list))
	}
	if list[0].Type != TypeEventDue || list[0].Priority != PriorityHigh {
		t.Fatalf("expected a high-priority due alert within 4 hours, got %#v", list[0])
	}
	if list[0].ActionURL != "/calendar/events/event-soon" {
		t.Fatalf("unexpected action url: %q", list[0].ActionURL)
	}
	if list[1].Priority != PriorityMedium {
		t.Fatalf("expected a medium-priority due alert beyond 4 hours, got %#v", list[1])
	}
}

func TestPollEmitsOverdueAlertForRecentlyMissedEvents(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	events := &fakeEventSource{events: []services.CalendarEvent{
		{ID: "event-missed", Title: "Client sign-off", StartAt: now.Add(-2 * time.Hour)},
		{ID: "event-ancient", Title: "Old deadline", StartAt: now.Add(-72 * time.Hour)},
	}}
	aggregator := newTestAggregator(t, events, &fakeInvitationSource{}, &memoryListStore{}, now, nil)

	aggregator.Poll(context.Background())

	list := aggregator.List()
	if len(list) != 1 {
		t.Fatalf("expected one overdue alert inside the 48h window, got %d", len(list))
	}
	if list[0].Type != TypeEventOverdue || list[0].Priority != PriorityHigh {
		t.Fatalf("expected a high-priority overdue alert, got %#v", list[0])
	}
}

func TestPollEmitsInvitationAlertsForPendingUnexpiredOnly(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	lapsed := now.Add(-time.Hour)
	invitations := &fakeInvitationSource{invitations: []services.Invitation{
		{ID: "inv-pending", SenderName: "Dana", Status: services.InvitationPending, Message: "Join the launch film"},
		{ID: "inv-accepted", SenderName: "Lee", Status: services.InvitationAccepted},
		{ID: "inv-expired", SenderName: "Kim", Status: services.InvitationPending, ExpiresAt: &lapsed},
	}}
	aggregator := newTestAggregator(t, &fakeEventSource{}, invitations, &memoryListStore{}, now, nil)

	aggregator.Poll(context.Background())

	list := aggregator.List()
	if len(list) != 1 {
		t.Fatalf("expected one invitation alert, got %d", len(list))
	}
	if list[0].Type != TypeInvitationReceived || list[0].Priority != PriorityMedium {
		t.Fatalf("unexpected invitation alert: %#v", list[0])
	}
	if list[0].ActionURL != "/invitations/inv-pending" {
		t.Fatalf("unexpected action url: %q", list[0].ActionURL)
	}
}

func TestPollIsIdempotentAcrossPasses(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	events := &fakeEventSource{events: []services.CalendarEvent{
		{ID: "event-soon", Title: "Rough cut review", StartAt: now.Add(3 * time.Hour)},
	}}
	aggregator := newTestAggregator(t, events, &fakeInvitationSource{}, &memoryListStore{}, now, nil)

	aggregator.Poll(context.Background())
	aggregator.Poll(context.Background())
	aggregator.Poll(context.Background())

	list := aggregator.List()
	if len(list) != 1 {
		t.Fatalf("expected repeated polls to emit once per condition, got %d alerts", len(list))
	}
}

func TestPollToleratesAFailingSource(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	events := &fakeEventSource{err: errors.New("calendar unreachable")}
	invitations := &fakeInvitationSource{invitations: []services.Invitation{
		{ID: "inv-pending", SenderName: "Dana", Status: services.InvitationPending},
	}}
	aggregator := newTestAggregator(t, events, invitations, &memoryListStore{}, now, nil)

	aggregator.Poll(context.Background())

	list := aggregator.List()
	if len(list) != 1 {
		t.Fatalf("expected the healthy source to still emit, got %d alerts", len(list))
	}
}

func TestPollToastsHighPriorityAlertsOnly(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	events := &fakeEventSource{events: []services.CalendarEvent{
		{ID: "event-soon", Title: "Rough cut review", StartAt: now.Add(3 * time.Hour)},
		{ID: "event-later", Title: "Final delivery", StartAt: now.Add(10 * time.Hour)},
	}}
	var toasted []Notification
	aggregator := newTestAggregator(t, events, &fakeInvitationSource{}, &memoryListStore{}, now, func(notification Notification) {
		toasted = append(toasted, notification)
	})

	aggregator.Poll(context.Background())

	if len(toasted) != 1 {
		t.Fatalf("expected one toast, got %d", len(toasted))
	}
	if toasted[0].Priority != PriorityHigh {
		t.Fatalf("expected only high-priority alerts toasted, got %#v", toasted[0])
	}
}

func TestPollPersistsTheWholeListOnEmission(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	events := &fakeEventSource{events: []services.CalendarEvent{
		{ID: "event-soon", Title: "Rough cut review", StartAt: now.Add(3 * time.Hour)},
	}}
	store := &memoryListStore{}
	aggregator := newTestAggregator(t, events, &fakeInvitationSource{}, store, now, nil)

	aggregator.Poll(context.Background())

	persisted, err := store.LoadNotifications(context.Background())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(persisted) != 1 {
		t.Fatalf("expected the emitted alert persisted, got %d", len(persisted))
	}
}

func TestNewAggregatorLoadsPersistedList(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := &memoryListStore{list: []Notification{
		{ID: "notif-old", Type: TypeEventDue, ActionURL: "/calendar/events/event-1", Priority: PriorityMedium, CreatedAt: now.Add(-time.Hour)},
	}}
	aggregator := newTestAggregator(t, &fakeEventSource{}, &fakeInvitationSource{}, store, now, nil)

	list := aggregator.List()
	if len(list) != 1 || list[0].ID != "notif-old" {
		t.Fatalf("expected persisted list restored, got %#v", list)
	}
}

func TestMarkReadAndDismissPersistTheChange(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	events := &fakeEventSource{events: []services.CalendarEvent{
		{ID: "event-soon", Title: "Rough cut review", StartAt: now.Add(3 * time.Hour)},
		{ID: "event-later", Title: "Final delivery", StartAt: now.Add(10 * time.Hour)},
	}}
	store := &memoryListStore{}
	aggregator := newTestAggregator(t, events, &fakeInvitationSource{}, store, now, nil)
	aggregator.Poll(context.Background())

	list := aggregator.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(list))
	}

	if err := aggregator.MarkRead(context.Background(), list[0].ID); err != nil {
		t.Fatalf("mark read failed: %v", err)
	}
	if !aggregator.List()[0].IsRead {
		t.Fatalf("expected alert flagged as read")
	}

	if err := aggregator.Dismiss(context.Background(), list[1].ID); err != nil {
		t.Fatalf("dismiss failed: %v", err)
	}
	if remaining := aggregator.List(); len(remaining) != 1 {
		t.Fatalf("expected dismissal to shrink the list, got %d", len(remaining))
	}

	persisted, err := store.LoadNotifications(context.Background())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(persisted) != 1 || !persisted[0].IsRead {
		t.Fatalf("expected mutations persisted wholesale, got %#v", persisted)
	}
}

func TestMarkReadRejectsUnknownNotification(t *testing.T) {
	aggregator := newTestAggregator(t, &fakeEventSource{}, &fakeInvitationSource{}, &memoryListStore{}, time.Now(), nil)
	if err := aggregator.MarkRead(context.Background(), "missing"); !errors.Is(err, ErrUnknownNotification) {
		t.Fatalf("expected ErrUnknownNotification, got %v", err)
	}
}

func TestWakeTriggersAnExtraPass(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	events := &fakeEventSource{}
	invitations := &fakeInvitationSource{}
	aggregator, err := NewAggregator(AggregatorConfig{
		Events:       events,
		Invitations:  invitations,
		Store:        &memoryListStore{},
		PollInterval: time.Hour,
		Clock:        func() time.Time { return now },
		Logger:       zap.NewNop(),
		IDProvider:   sequentialIDs(),
	})
	if err != nil {
		t.Fatalf("failed to build aggregator: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go aggregator.Run(ctx)

	// The immediate pass on Run sees an empty calendar. The woken pass
	// sees the newly due event.
	deadline := time.Now().Add(2 * time.Second)
	for {
		events.mu.Lock()
		events.events = []services.CalendarEvent{
			{ID: "event-soon", Title: "Rough cut review", StartAt: now.Add(3 * time.Hour)},
		}
		events.mu.Unlock()
		aggregator.Wake()
		if len(aggregator.List()) == 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected a wake-triggered pass to emit the alert")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
