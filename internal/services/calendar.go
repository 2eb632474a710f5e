package services

import (
	"context"
	"fmt"
	"time"

	"github.com/vlanet/videoplanet/internal/api"
	"github.com/vlanet/videoplanet/internal/events"
)

// CalendarEvent is a scheduled production event.
type CalendarEvent struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id,omitempty"`
	Title     string    `json:"title"`
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
	AllDay    bool      `json:"all_day,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const calendarEntity = "calendar_event"

// CalendarService shapes the calendar endpoints and announces mutations on
// the change bus so calendar views can react without re-fetching.
type CalendarService struct {
	client *api.Client
	bus    *events.Bus
	clock  func() time.Time
}

// NewCalendarService constructs the calendar service. The bus is optional.
func NewCalendarService(client *api.Client, bus *events.Bus) *CalendarService {
	return &CalendarService{client: client, bus: bus, clock: time.Now}
}

// ListEvents returns every calendar event visible to the current user.
func (s *CalendarService) ListEvents(ctx context.Context) ([]CalendarEvent, error) {
	var calendarEvents []CalendarEvent
	if err := s.client.Get(ctx, "/api/calendar/events/", &calendarEvents); err != nil {
		return nil, err
	}
	return calendarEvents, nil
}

// EventRequest is the payload for creating or updating a calendar event.
type EventRequest struct {
	ProjectID string    `json:"project_id,omitempty"`
	Title     string    `json:"title"`
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
	AllDay    bool      `json:"all_day,omitempty"`
}

// CreateEvent creates a calendar event.
func (s *CalendarService) CreateEvent(ctx context.Context, request EventRequest) (CalendarEvent, error) {
	var created CalendarEvent
	if err := s.client.Post(ctx, "/api/calendar/events/", request, &created); err != nil {
		return CalendarEvent{}, err
	}
	s.publish(events.ChangeCreate, created.ID, created)
	return created, nil
}

// UpdateEvent updates a calendar event.
func (s *CalendarService) UpdateEvent(ctx context.Context, eventID string, request EventRequest) (CalendarEvent, error) {
	var updated CalendarEvent
	path := fmt.Sprintf("/api/calendar/events/%s/", eventID)
	if err := s.client.Put(ctx, path, request, &updated); err != nil {
		return CalendarEvent{}, err
	}
	s.publish(events.ChangeUpdate, updated.ID, updated)
	return updated, nil
}

// DeleteEvent removes a calendar event.
func (s *CalendarService) DeleteEvent(ctx context.Context, eventID string) error {
	path := fmt.Sprintf("/api/calendar/events/%s/", eventID)
	if err := s.client.Delete(ctx, path); err != nil {
		return err
	}
	s.publish(events.ChangeDelete, eventID, nil)
	return nil
}

// BulkUpdateEvents applies several event updates in one call, announcing a
// single bulk_update on the bus.
func (s *CalendarService) BulkUpdateEvents(ctx context.Context, requests map[string]EventRequest) ([]CalendarEvent, error) {
	type bulkEntry struct {
		ID string `json:"id"`
		EventRequest
	}
	payload := struct {
		Events []bulkEntry `json:"events"`
	}{Events: make([]bulkEntry, 0, len(requests))}
	for eventID, request := range requests {
		payload.Events = append(payload.Events, bulkEntry{ID: eventID, EventRequest: request})
	}

	var updated []CalendarEvent
	if err := s.client.Post(ctx, "/api/calendar/events/bulk/", payload, &updated); err != nil {
		return nil, err
	}
	s.publish(events.ChangeBulkUpdate, "", updated)
	return updated, nil
}

func (s *CalendarService) publish(changeType events.ChangeType, entityID string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.ChangeEvent{
		Type:      changeType,
		Entity:    calendarEntity,
		EntityID:  entityID,
		Payload:   payload,
		Timestamp: s.clock().UTC(),
	})
}
