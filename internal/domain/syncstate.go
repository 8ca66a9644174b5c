package domain

import "time"

// Direction selects which way a sync run moves data.
type Direction string

const (
	DirectionCRMToVisma    Direction = "crm-to-visma"
	DirectionVismaToCRM    Direction = "visma-to-crm"
	DirectionBidirectional Direction = "bidirectional"
)

// EntityType names the record family a sync state document belongs to.
type EntityType string

const (
	EntityCustomer EntityType = "customer"
	EntityProduct  EntityType = "product"
)

// ConflictRecord is one append-only entry in the conflict/error log.
// It carries enough context to re-drive the record manually.
type ConflictRecord struct {
	ID         string     `json:"id" bson:"id"`
	Direction  Direction  `json:"direction" bson:"direction"`
	EntityType EntityType `json:"entity_type" bson:"entity_type"`
	EntityID   string     `json:"entity_id" bson:"entity_id"`
	EntityName string     `json:"entity_name,omitempty" bson:"entity_name,omitempty"`
	Message    string     `json:"message" bson:"message"`
	Timestamp  time.Time  `json:"timestamp" bson:"timestamp"`
}

// SyncStats are running totals accumulated across runs.
type SyncStats struct {
	Created      int64 `json:"created" bson:"created"`
	Updated      int64 `json:"updated" bson:"updated"`
	PriceUpdates int64 `json:"price_updates" bson:"price_updates"`
	Errors       int64 `json:"errors" bson:"errors"`
	Conflicts    int64 `json:"conflicts" bson:"conflicts"`
}

// SyncState is the persisted per-entity-type sync document: last run time,
// running counters, the local-to-remote identity mappings, and the
// conflict log.
type SyncState struct {
	EntityType EntityType        `json:"entity_type" bson:"_id"`
	LastSync   time.Time         `json:"last_sync,omitzero" bson:"last_sync,omitempty"`
	Stats      SyncStats         `json:"sync_stats" bson:"sync_stats"`
	Mappings   map[string]string `json:"mappings" bson:"mappings"`
	Conflicts  []ConflictRecord  `json:"conflicts" bson:"conflicts"`
}

// DirectionResult counts the outcome of one direction within a run.
type DirectionResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Errors  int `json:"errors"`
}

// SyncRunSummary is returned from every sync run so callers can quantify
// partial success instead of getting a bare boolean.
type SyncRunSummary struct {
	Started      time.Time       `json:"started"`
	Direction    Direction       `json:"direction"`
	EntityType   EntityType      `json:"entity_type"`
	CRMToVisma   DirectionResult `json:"crm_to_visma"`
	VismaToCRM   DirectionResult `json:"visma_to_crm"`
	PriceUpdates int             `json:"price_updates,omitempty"`
	Duration     time.Duration   `json:"duration"`
}

// TotalErrors sums error counts over both directions.
func (s *SyncRunSummary) TotalErrors() int {
	return s.CRMToVisma.Errors + s.VismaToCRM.Errors
}
