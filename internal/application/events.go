package application

import (
	"time"

	"crm-visma-sync-layer/internal/domain"
)

// Sync event types, one per per-record outcome.
const (
	EventCreated      = "created"
	EventUpdated      = "updated"
	EventSkipped      = "skipped"
	EventConflict     = "conflict"
	EventError        = "error"
	EventKeyMissing   = "key_missing"
	EventRematched    = "rematched"
	EventPriceUpdated = "price_updated"
)

// SyncEvent describes a single per-record outcome during a run.
type SyncEvent struct {
	Type       string            `json:"type"`
	EntityType domain.EntityType `json:"entityType"`
	Direction  domain.Direction  `json:"direction"`
	EntityID   string            `json:"entityId"`
	Message    string            `json:"message,omitempty"`
	Time       time.Time         `json:"time"`
}

// EventRecorder receives per-record outcomes. A nil recorder is valid
// and drops everything.
type EventRecorder func(SyncEvent)

func (r EventRecorder) emit(eventType string, entityType domain.EntityType, direction domain.Direction, entityID, message string) {
	if r == nil {
		return
	}
	r(SyncEvent{
		Type:       eventType,
		EntityType: entityType,
		Direction:  direction,
		EntityID:   entityID,
		Message:    message,
		Time:       time.Now(),
	})
}
