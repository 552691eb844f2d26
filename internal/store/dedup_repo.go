// Package store provides the DedupRepo interface for inbound event deduplication.
package store

import (
	"time"
)

// DedupRecord represents an inbound chat-platform event deduplication record.
type DedupRecord struct {
	EventKey    string     `json:"event_key"`
	UserID      string     `json:"user_id"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// DedupRepo defines the interface for inbound event deduplication. Records
// are durable so replayed webhook deliveries are rejected across restarts.
type DedupRepo interface {
	// RecordInbound inserts a new inbound event record. Returns false if the
	// event was already recorded (duplicate).
	RecordInbound(eventKey, userID string) (bool, error)

	// DeleteInbound removes an event record so the platform's retry of the
	// same delivery is accepted. Used when an accepted event could not be
	// handed off after its key was recorded.
	DeleteInbound(eventKey string) error

	// MarkProcessed sets the processed_at timestamp for an event.
	MarkProcessed(eventKey string) error

	// PurgeDedupBefore deletes records received before the cutoff and
	// returns how many were removed.
	PurgeDedupBefore(cutoff time.Time) (int, error)
}
