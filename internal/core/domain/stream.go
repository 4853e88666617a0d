package domain

import (
	"time"
)

// SessionID identifies one live broadcast. A new one is assigned on every
// accepted publish.
type SessionID string

type StreamStatus string

const (
	StreamOffline StreamStatus = "offline"
	StreamLive    StreamStatus = "live"
)

// MaxContentRatingAge bounds ContentRating.Age.
const MaxContentRatingAge = 21

type ContentRating struct {
	Age    int    `json:"age"`
	Reason string `json:"reason,omitempty"`
}

// Stream is the durable broadcast record. Runtime telemetry lives in
// StreamMetrics and is kept only in the session store.
type Stream struct {
	SessionID     SessionID     `json:"stream_id"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	ContentRating ContentRating `json:"content_rating"`
	Status        StreamStatus  `json:"status"`
	Host          UserID        `json:"host,omitempty"`
	StartedAt     time.Time     `json:"started_at,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func (s *Stream) IsLive() bool {
	return s.Status == StreamLive
}

// StreamMetrics is a soft cache; absent or zeroed metrics are valid.
type StreamMetrics struct {
	Viewers int     `json:"viewers"`
	Bitrate int     `json:"bitrate"`
	FPS     float64 `json:"fps"`
}

// AddViewers adjusts the viewer counter, never going below zero.
func (m StreamMetrics) AddViewers(delta int) StreamMetrics {
	m.Viewers += delta
	if m.Viewers < 0 {
		m.Viewers = 0
	}
	return m
}

// StreamPatch carries the host-editable metadata. Nil fields are left as is.
type StreamPatch struct {
	Title         *string        `json:"title,omitempty"`
	Description   *string        `json:"description,omitempty"`
	ContentRating *ContentRating `json:"content_rating,omitempty"`
}
