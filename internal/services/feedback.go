package services

import (
	"context"
	"fmt"
	"net/url"

	"github.com/vlanet/videoplanet/internal/api"
	"github.com/vlanet/videoplanet/internal/feedback"
	"github.com/vlanet/videoplanet/internal/users"
)

// FeedbackService shapes the timeline feedback endpoints.
type FeedbackService struct {
	client *api.Client
	users  *users.Cache
}

// NewFeedbackService constructs the feedback service. The profile cache is optional.
func NewFeedbackService(client *api.Client, cache *users.Cache) *FeedbackService {
	return &FeedbackService{client: client, users: cache}
}

// List returns every feedback entry for a video. Filtering and sorting are
// client-side over this list.
func (s *FeedbackService) List(ctx context.Context, videoID string) ([]feedback.TimelineFeedback, error) {
	var entries []feedback.TimelineFeedback
	path := "/api/video-feedbacks/?video_id=" + url.QueryEscape(videoID)
	if err := s.client.Get(ctx, path, &entries); err != nil {
		return nil, err
	}
	for _, entry := range entries {
		s.rememberAuthor(entry.Author)
		for _, reply := range entry.Replies {
			s.rememberAuthor(reply.Author)
		}
	}
	return entries, nil
}

// Create submits a composed draft.
func (s *FeedbackService) Create(ctx context.Context, draft feedback.Draft) (feedback.TimelineFeedback, error) {
	var created feedback.TimelineFeedback
	if err := s.client.Post(ctx, "/api/video-feedbacks/", draft, &created); err != nil {
		return feedback.TimelineFeedback{}, err
	}
	return created, nil
}

// UpdateFeedbackRequest carries the editable fields of a feedback entry.
type UpdateFeedbackRequest struct {
	Title    string             `json:"title,omitempty"`
	Content  string             `json:"content,omitempty"`
	Category feedback.Category  `json:"category,omitempty"`
	Priority feedback.Priority  `json:"priority,omitempty"`
	Status   feedback.Status    `json:"status,omitempty"`
	Position *feedback.Position `json:"position,omitempty"`
	Tags     []string           `json:"tags,omitempty"`
}

// Update edits an existing feedback entry.
func (s *FeedbackService) Update(ctx context.Context, feedbackID string, request UpdateFeedbackRequest) (feedback.TimelineFeedback, error) {
	var updated feedback.TimelineFeedback
	path := fmt.Sprintf("/api/video-feedbacks/%s/", feedbackID)
	if err := s.client.Put(ctx, path, request, &updated); err != nil {
		return feedback.TimelineFeedback{}, err
	}
	return updated, nil
}

// Delete removes a feedback entry. Reply cleanup is the backend's concern.
func (s *FeedbackService) Delete(ctx context.Context, feedbackID string) error {
	return s.client.Delete(ctx, fmt.Sprintf("/api/video-feedbacks/%s/", feedbackID))
}

// Resolve marks a feedback entry resolved.
func (s *FeedbackService) Resolve(ctx context.Context, feedbackID string) (feedback.TimelineFeedback, error) {
	var resolved feedback.TimelineFeedback
	path := fmt.Sprintf("/api/video-feedbacks/%s/resolve/", feedbackID)
	if err := s.client.Post(ctx, path, nil, &resolved); err != nil {
		return feedback.TimelineFeedback{}, err
	}
	return resolved, nil
}

type replyRequest struct {
	Content  string   `json:"content"`
	Mentions []string `json:"mentions,omitempty"`
}

// Reply appends a reply to a feedback entry.
func (s *FeedbackService) Reply(ctx context.Context, feedbackID string, content string, mentions []string) (feedback.Reply, error) {
	var reply feedback.Reply
	path := fmt.Sprintf("/api/video-feedbacks/%s/replies/", feedbackID)
	if err := s.client.Post(ctx, path, replyRequest{Content: content, Mentions: mentions}, &reply); err != nil {
		return feedback.Reply{}, err
	}
	return reply, nil
}

func (s *FeedbackService) rememberAuthor(author feedback.Author) {
	if s.users == nil || author.ID == "" {
		return
	}
	_ = s.users.Remember(users.User{
		ID:          author.ID,
		Email:       author.Email,
		DisplayName: author.DisplayName,
		AvatarURL:   author.AvatarURL,
	})
}
