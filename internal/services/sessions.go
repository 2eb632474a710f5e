package services

import (
	"context"
	"fmt"
	"net/url"

	"github.com/vlanet/videoplanet/internal/api"
	"github.com/vlanet/videoplanet/internal/session"
	"github.com/vlanet/videoplanet/internal/users"
)

// SessionService shapes the video session and realtime comment endpoints.
// It satisfies session.Syncer so the playback engine can run through it.
type SessionService struct {
	client *api.Client
	users  *users.Cache
}

// NewSessionService constructs the session service. The profile cache is optional.
func NewSessionService(client *api.Client, cache *users.Cache) *SessionService {
	return &SessionService{client: client, users: cache}
}

// Get fetches a session by id.
func (s *SessionService) Get(ctx context.Context, sessionID string) (session.Session, error) {
	var fetched session.Session
	path := fmt.Sprintf("/api/video-sessions/%s/", sessionID)
	if err := s.client.Get(ctx, path, &fetched); err != nil {
		return session.Session{}, err
	}
	s.rememberParticipants(fetched)
	return fetched, nil
}

// Join enters a session and returns its current state.
func (s *SessionService) Join(ctx context.Context, sessionID string) (session.Session, error) {
	var joined session.Session
	path := fmt.Sprintf("/api/video-sessions/%s/join/", sessionID)
	if err := s.client.Post(ctx, path, nil, &joined); err != nil {
		return session.Session{}, err
	}
	s.rememberParticipants(joined)
	return joined, nil
}

// Leave exits a session.
func (s *SessionService) Leave(ctx context.Context, sessionID string) error {
	path := fmt.Sprintf("/api/video-sessions/%s/leave/", sessionID)
	return s.client.Post(ctx, path, nil, nil)
}

// SyncPlayback pushes the local playback state and returns the state the
// backend currently holds authoritative.
func (s *SessionService) SyncPlayback(ctx context.Context, sessionID string, state session.PlaybackState) (session.PlaybackState, error) {
	var remote session.PlaybackState
	path := fmt.Sprintf("/api/video-sessions/%s/sync/", sessionID)
	if err := s.client.Post(ctx, path, state, &remote); err != nil {
		return session.PlaybackState{}, err
	}
	return remote, nil
}

// ListComments returns the append-only comment log of a session.
func (s *SessionService) ListComments(ctx context.Context, sessionID string) ([]session.RealtimeComment, error) {
	var comments []session.RealtimeComment
	path := "/api/realtime-comments/?session_id=" + url.QueryEscape(sessionID)
	if err := s.client.Get(ctx, path, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// PostCommentRequest is the payload for a new realtime comment.
type PostCommentRequest struct {
	SessionID string              `json:"session_id"`
	Content   string              `json:"content"`
	Timestamp *float64            `json:"timestamp,omitempty"`
	Mentions  []string            `json:"mentions,omitempty"`
	Type      session.CommentType `json:"type"`
}

// PostComment appends a comment to a session.
func (s *SessionService) PostComment(ctx context.Context, request PostCommentRequest) (session.RealtimeComment, error) {
	if request.Type == "" {
		request.Type = session.CommentChat
		if request.Timestamp != nil {
			request.Type = session.CommentTimestamp
		}
	}
	var comment session.RealtimeComment
	if err := s.client.Post(ctx, "/api/realtime-comments/", request, &comment); err != nil {
		return session.RealtimeComment{}, err
	}
	return comment, nil
}

func (s *SessionService) rememberParticipants(observed session.Session) {
	if s.users == nil {
		return
	}
	remember := func(participant session.Participant) {
		if participant.ID == "" {
			return
		}
		_ = s.users.Remember(users.User{
			ID:          participant.ID,
			Email:       participant.Email,
			DisplayName: participant.DisplayName,
			AvatarURL:   participant.AvatarURL,
		})
	}
	remember(observed.Host)
	for _, participant := range observed.Participants {
		remember(participant)
	}
}
