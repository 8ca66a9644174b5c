package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"crm-visma-sync-layer/internal/domain"
	"crm-visma-sync-layer/internal/ports"
)

// conflictLogCap bounds the persisted conflict log per entity type; the
// oldest entries roll off.
const conflictLogCap = 200

// MongoSyncStateRepository implements SyncStateRepository with one
// document per entity type. Every mutation is a scoped update ($set on
// a single mapping key, $inc on counters, $push on the conflict log) so
// concurrent runs for different entity types, and the mapping writes
// within one run, never overwrite each other wholesale.
type MongoSyncStateRepository struct {
	collection *mongo.Collection
}

// NewMongoSyncStateRepository creates a sync state repository on db.
func NewMongoSyncStateRepository(db *mongo.Database) ports.SyncStateRepository {
	return &MongoSyncStateRepository{collection: db.Collection("sync_state")}
}

// Load returns the state document for entityType, or an empty one when
// no run has happened yet.
func (r *MongoSyncStateRepository) Load(ctx context.Context, entityType domain.EntityType) (*domain.SyncState, error) {
	var state domain.SyncState
	err := r.collection.FindOne(ctx, bson.M{"_id": entityType}).Decode(&state)
	if err == mongo.ErrNoDocuments {
		return &domain.SyncState{
			EntityType: entityType,
			Mappings:   map[string]string{},
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sync state: %w", err)
	}
	if state.Mappings == nil {
		state.Mappings = map[string]string{}
	}
	return &state, nil
}

// SetLastSync records when the latest run started.
func (r *MongoSyncStateRepository) SetLastSync(ctx context.Context, entityType domain.EntityType, at time.Time) error {
	update := bson.M{"$set": bson.M{"last_sync": at}}
	return r.apply(ctx, entityType, update, "set last sync")
}

// SaveMapping stores a single local→remote identity mapping.
func (r *MongoSyncStateRepository) SaveMapping(ctx context.Context, entityType domain.EntityType, localID, remoteID string) error {
	update := bson.M{"$set": bson.M{"mappings." + localID: remoteID}}
	return r.apply(ctx, entityType, update, "save mapping")
}

// AddConflict appends one record to the capped conflict log.
func (r *MongoSyncStateRepository) AddConflict(ctx context.Context, entityType domain.EntityType, record domain.ConflictRecord) error {
	update := bson.M{"$push": bson.M{"conflicts": bson.M{
		"$each":  bson.A{record},
		"$slice": -conflictLogCap,
	}}}
	return r.apply(ctx, entityType, update, "add conflict")
}

// AddStats folds a run's counters into the running totals.
func (r *MongoSyncStateRepository) AddStats(ctx context.Context, entityType domain.EntityType, delta domain.SyncStats) error {
	update := bson.M{"$inc": bson.M{
		"sync_stats.created":       delta.Created,
		"sync_stats.updated":       delta.Updated,
		"sync_stats.price_updates": delta.PriceUpdates,
		"sync_stats.errors":        delta.Errors,
		"sync_stats.conflicts":     delta.Conflicts,
	}}
	return r.apply(ctx, entityType, update, "add stats")
}

// Clear drops the state document for entityType. The next run starts
// from scratch and re-matches everything by identifier.
func (r *MongoSyncStateRepository) Clear(ctx context.Context, entityType domain.EntityType) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": entityType})
	if err != nil {
		return fmt.Errorf("failed to clear sync state: %w", err)
	}
	return nil
}

func (r *MongoSyncStateRepository) apply(ctx context.Context, entityType domain.EntityType, update bson.M, action string) error {
	opts := options.Update().SetUpsert(true)
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": entityType}, update, opts)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	return nil
}
