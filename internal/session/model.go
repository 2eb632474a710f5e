// Package session implements the shared viewing context of a video: the
// participant roster, the single authoritative playback state, and the
// client engine that mirrors playback across participants.
package session

import "time"

// Participant is the user shape carried on session payloads.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Settings control per-session behavior.
type Settings struct {
	AllowComments       bool `json:"allow_comments"`
	SyncPlayback        bool `json:"sync_playback"`
	AutoPauseOnFeedback bool `json:"auto_pause_on_feedback"`
}

// PlaybackState is the single authoritative playback record of a session.
// Concurrent writers are reconciled last-writer-wins on LastUpdated.
type PlaybackState struct {
	CurrentTime  float64   `json:"current_time"`
	IsPlaying    bool      `json:"is_playing"`
	PlaybackRate float64   `json:"playback_rate"`
	LastUpdated  time.Time `json:"last_updated"`
	UpdatedBy    string    `json:"updated_by"`
}

// Session binds participants to one video and one playback-state record.
type Session struct {
	ID           string        `json:"id"`
	VideoID      string        `json:"video_id"`
	Title        string        `json:"title"`
	Host         Participant   `json:"host"`
	Participants []Participant `json:"participants"`
	IsActive     bool          `json:"is_active"`
	Settings     Settings      `json:"settings"`
	Playback     PlaybackState `json:"playback_state"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// CommentType distinguishes free chat from playhead-anchored comments.
type CommentType string

const (
	CommentChat      CommentType = "chat"
	CommentTimestamp CommentType = "timestamp"
)

// RealtimeComment is an append-only message within a session; comments are
// never edited or deleted.
type RealtimeComment struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Author    Participant `json:"author"`
	Content   string      `json:"content"`
	Timestamp *float64    `json:"timestamp,omitempty"`
	Mentions  []string    `json:"mentions,omitempty"`
	Type      CommentType `json:"type"`
	CreatedAt time.Time   `json:"created_at"`
}

// resolvePlayback applies the last-writer-wins rule between the local and
// the remotely observed playback state. Ties hold the local state so a
// participant's own writes are not bounced back at them.
func resolvePlayback(local, remote PlaybackState) PlaybackState {
	if remote.LastUpdated.After(local.LastUpdated) {
		return remote
	}
	return local
}
