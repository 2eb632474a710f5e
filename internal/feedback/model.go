// Package feedback models timeline feedback: comments anchored to a
// specific second of a video's duration, with replies, spatial annotations,
// and the filtering rules of the feedback timeline view.
package feedback

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidTimestamp indicates a feedback timestamp before the start of the video.
	ErrInvalidTimestamp = errors.New("feedback: timestamp must not be negative")
	// ErrTimestampPastEnd indicates a timestamp beyond the known video duration.
	ErrTimestampPastEnd = errors.New("feedback: timestamp exceeds video duration")
	// ErrInvalidCategory indicates an unknown feedback category.
	ErrInvalidCategory = errors.New("feedback: invalid category")
	// ErrMissingContent indicates an empty feedback or reply body.
	ErrMissingContent = errors.New("feedback: content required")
)

// Category classifies the intent of a feedback entry.
type Category string

const (
	CategoryGeneral    Category = "general"
	CategoryCorrection Category = "correction"
	CategoryQuestion   Category = "question"
	CategoryApproval   Category = "approval"
	CategorySuggestion Category = "suggestion"
	CategoryTechnical  Category = "technical"
	CategoryCreative   Category = "creative"
)

// ParseCategory validates raw input and returns a Category.
func ParseCategory(rawInput string) (Category, error) {
	candidate := Category(strings.ToLower(strings.TrimSpace(rawInput)))
	switch candidate {
	case CategoryGeneral, CategoryCorrection, CategoryQuestion, CategoryApproval,
		CategorySuggestion, CategoryTechnical, CategoryCreative:
		return candidate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, rawInput)
	}
}

// Priority ranks the urgency of a feedback entry.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Status tracks the lifecycle of a feedback entry.
type Status string

const (
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
	StatusDeclined Status = "declined"
)

// Author is the user shape carried on feedback payloads.
type Author struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Position is a normalized spatial annotation over the video frame.
type Position struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Reply is always subordinate to a TimelineFeedback and never listed on its own.
type Reply struct {
	ID         string    `json:"id"`
	FeedbackID string    `json:"feedback_id"`
	Author     Author    `json:"author"`
	Content    string    `json:"content"`
	Mentions   []string  `json:"mentions,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TimelineFeedback is a comment anchored to a second of a video.
type TimelineFeedback struct {
	ID          string     `json:"id"`
	VideoID     string     `json:"video_id"`
	Author      Author     `json:"author"`
	Timestamp   float64    `json:"timestamp"`
	Category    Category   `json:"category"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Position    *Position  `json:"position,omitempty"`
	Attachments []string   `json:"attachments,omitempty"`
	Replies     []Reply    `json:"replies,omitempty"`
	Mentions    []string   `json:"mentions,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy  string     `json:"resolved_by,omitempty"`
}

// Draft is a feedback entry being composed. NewDraft fills the creation
// defaults the form applies before the user edits anything.
type Draft struct {
	VideoID   string   `json:"video_id"`
	Timestamp float64  `json:"timestamp"`
	Category  Category `json:"category"`
	Priority  Priority `json:"priority"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Mentions  []string `json:"mentions"`
	Tags      []string `json:"tags"`
}

// NewDraft returns a draft anchored to the current playback position with
// default category and priority.
func NewDraft(videoID string, playhead float64) Draft {
	if playhead < 0 {
		playhead = 0
	}
	return Draft{
		VideoID:   videoID,
		Timestamp: playhead,
		Category:  CategoryGeneral,
		Priority:  PriorityMedium,
		Mentions:  []string{},
		Tags:      []string{},
	}
}

// Validate checks the draft before submission. The duration bound is only
// enforced when the caller knows the video duration (pass zero to skip);
// the backend remains the authority on it.
func (d Draft) Validate(videoDuration float64) error {
	if d.Timestamp < 0 {
		return ErrInvalidTimestamp
	}
	if videoDuration > 0 && d.Timestamp > videoDuration {
		return fmt.Errorf("%w: %.1fs > %.1fs", ErrTimestampPastEnd, d.Timestamp, videoDuration)
	}
	if _, err := ParseCategory(string(d.Category)); err != nil {
		return err
	}
	if strings.TrimSpace(d.Content) == "" {
		return ErrMissingContent
	}
	return nil
}
