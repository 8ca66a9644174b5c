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

// MongoCustomerRepository implements CustomerRepository on the CRM's
// customers collection.
type MongoCustomerRepository struct {
	collection *mongo.Collection
}

// NewMongoCustomerRepository creates a customer repository on db.
func NewMongoCustomerRepository(db *mongo.Database) ports.CustomerRepository {
	return &MongoCustomerRepository{collection: db.Collection("customers")}
}

// List returns every CRM customer.
func (r *MongoCustomerRepository) List(ctx context.Context) ([]*domain.Customer, error) {
	cursor, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer cursor.Close(ctx)

	var customers []*domain.Customer
	for cursor.Next(ctx) {
		var customer domain.Customer
		if err := cursor.Decode(&customer); err != nil {
			return nil, fmt.Errorf("failed to decode customer: %w", err)
		}
		customers = append(customers, &customer)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return customers, nil
}

// Upsert saves or replaces a customer by ID.
func (r *MongoCustomerRepository) Upsert(ctx context.Context, customer *domain.Customer) error {
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now()
	}
	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": customer.ID}, customer, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert customer: %w", err)
	}
	return nil
}

// SetVismaNumber attaches the remote back-reference without touching
// last_modified, so the write never re-triggers a sync.
func (r *MongoCustomerRepository) SetVismaNumber(ctx context.Context, id string, number string) error {
	update := bson.M{"$set": bson.M{"visma_number": number}}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to set visma number: %w", err)
	}
	return nil
}
