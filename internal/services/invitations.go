package services

import (
	"context"
	"fmt"
	"time"

	"github.com/vlanet/videoplanet/internal/api"
)

// InvitationStatus is the stored lifecycle state of an invitation. Expired
// is never stored; it is derived from ExpiresAt at read time.
type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "pending"
	InvitationAccepted  InvitationStatus = "accepted"
	InvitationDeclined  InvitationStatus = "declined"
	InvitationCancelled InvitationStatus = "cancelled"
)

// Invitation is a project collaboration invite.
type Invitation struct {
	ID             string           `json:"id"`
	SenderID       string           `json:"sender_id"`
	SenderName     string           `json:"sender_name"`
	RecipientID    string           `json:"recipient_id,omitempty"`
	RecipientEmail string           `json:"recipient_email"`
	ProjectID      string           `json:"project_id,omitempty"`
	ProjectName    string           `json:"project_name,omitempty"`
	Status         InvitationStatus `json:"status"`
	Message        string           `json:"message,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	ExpiresAt      *time.Time       `json:"expires_at,omitempty"`
}

// Expired reports whether the invitation has lapsed as of now.
func (i Invitation) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && now.After(*i.ExpiresAt)
}

// InvitationService shapes the invitation endpoints. Sends carry no
// idempotency mechanism; a retried send can duplicate.
type InvitationService struct {
	client *api.Client
}

// NewInvitationService constructs the invitation service.
func NewInvitationService(client *api.Client) *InvitationService {
	return &InvitationService{client: client}
}

// ListReceived returns the invitations addressed to the current user.
func (s *InvitationService) ListReceived(ctx context.Context) ([]Invitation, error) {
	var invitations []Invitation
	if err := s.client.Get(ctx, "/api/invitations/received/", &invitations); err != nil {
		return nil, err
	}
	return invitations, nil
}

// SendInvitationRequest is the payload for a new invitation.
type SendInvitationRequest struct {
	RecipientEmail string `json:"recipient_email"`
	ProjectID      string `json:"project_id,omitempty"`
	Message        string `json:"message,omitempty"`
}

// Send creates a new invitation.
func (s *InvitationService) Send(ctx context.Context, request SendInvitationRequest) (Invitation, error) {
	var invitation Invitation
	if err := s.client.Post(ctx, "/api/invitations/", request, &invitation); err != nil {
		return Invitation{}, err
	}
	return invitation, nil
}

// Accept transitions a pending invitation to accepted.
func (s *InvitationService) Accept(ctx context.Context, invitationID string) (Invitation, error) {
	return s.transition(ctx, invitationID, "accept")
}

// Decline transitions a pending invitation to declined.
func (s *InvitationService) Decline(ctx context.Context, invitationID string) (Invitation, error) {
	return s.transition(ctx, invitationID, "decline")
}

// Cancel transitions a pending invitation to cancelled.
func (s *InvitationService) Cancel(ctx context.Context, invitationID string) (Invitation, error) {
	return s.transition(ctx, invitationID, "cancel")
}

func (s *InvitationService) transition(ctx context.Context, invitationID string, action string) (Invitation, error) {
	var invitation Invitation
	path := fmt.Sprintf("/api/invitations/%s/%s/", invitationID, action)
	if err := s.client.Post(ctx, path, nil, &invitation); err != nil {
		return Invitation{}, err
	}
	return invitation, nil
}
