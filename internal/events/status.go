package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// StatusDateFormat is the created_at layout used by the upstream firehose
const StatusDateFormat = time.RubyDate

// StatusEvent is one decoded status from the stream
type StatusEvent struct {
	CreatedAt time.Time
	ID        uint64
	Text      string
	UserID    uint64
}

// Envelope is the wire shape of a status as delivered by the firehose.
// Field order is part of the contract: created_at, id, text, user.id.
// Ids are string-encoded unsigned 64-bit integers.
type Envelope struct {
	CreatedAt string       `json:"created_at"`
	ID        uint64       `json:"id,string"`
	Text      string       `json:"text"`
	User      EnvelopeUser `json:"user"`
}

// EnvelopeUser carries the author of a status
type EnvelopeUser struct {
	ID uint64 `json:"id,string"`
}

// NewEnvelope builds the wire representation of a status
func NewEnvelope(status StatusEvent) Envelope {
	return Envelope{
		CreatedAt: status.CreatedAt.Format(StatusDateFormat),
		ID:        status.ID,
		Text:      status.Text,
		User:      EnvelopeUser{ID: status.UserID},
	}
}

// EncodeEnvelope serializes a status into its envelope JSON
func EncodeEnvelope(status StatusEvent) ([]byte, error) {
	data, err := json.Marshal(NewEnvelope(status))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal status envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope parses envelope JSON back into a status.
// Unknown fields, a missing created_at and blank text are rejected.
func DecodeEnvelope(data []byte) (StatusEvent, error) {
	return decodeEnvelope(data, true)
}

// ParseUpstreamEnvelope parses a status received from the firehose.
// Fields beyond the envelope are ignored; the envelope fields are checked
// like DecodeEnvelope does.
func ParseUpstreamEnvelope(data []byte) (StatusEvent, error) {
	return decodeEnvelope(data, false)
}

func decodeEnvelope(data []byte, strict bool) (StatusEvent, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	if strict {
		decoder.DisallowUnknownFields()
	}

	var envelope Envelope
	if err := decoder.Decode(&envelope); err != nil {
		return StatusEvent{}, fmt.Errorf("failed to unmarshal status envelope: %w", err)
	}

	if envelope.CreatedAt == "" {
		return StatusEvent{}, fmt.Errorf("status envelope is missing created_at")
	}
	createdAt, err := time.Parse(StatusDateFormat, envelope.CreatedAt)
	if err != nil {
		return StatusEvent{}, fmt.Errorf("invalid created_at %q: %w", envelope.CreatedAt, err)
	}
	if strings.TrimSpace(envelope.Text) == "" {
		return StatusEvent{}, fmt.Errorf("status %d has empty text", envelope.ID)
	}

	return StatusEvent{
		CreatedAt: createdAt,
		ID:        envelope.ID,
		Text:      envelope.Text,
		UserID:    envelope.User.ID,
	}, nil
}

// StatusMessage is the record value published to the status topic
type StatusMessage struct {
	UserID    uint64 `json:"userId"`
	ID        uint64 `json:"id"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"` // Unix milliseconds
}

// NewStatusMessage converts a decoded status into its topic record
func NewStatusMessage(status StatusEvent) StatusMessage {
	return StatusMessage{
		UserID:    status.UserID,
		ID:        status.ID,
		Text:      status.Text,
		CreatedAt: status.CreatedAt.UnixMilli(),
	}
}
