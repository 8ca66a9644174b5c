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

// MongoProductRepository implements ProductRepository on the CRM's
// products collection.
type MongoProductRepository struct {
	collection *mongo.Collection
}

// NewMongoProductRepository creates a product repository on db.
func NewMongoProductRepository(db *mongo.Database) ports.ProductRepository {
	return &MongoProductRepository{collection: db.Collection("products")}
}

// ListActive returns the sellable price list. Inactive products stay
// out of sync runs entirely.
func (r *MongoProductRepository) ListActive(ctx context.Context) ([]*domain.Product, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"active": true})
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer cursor.Close(ctx)

	var products []*domain.Product
	for cursor.Next(ctx) {
		var product domain.Product
		if err := cursor.Decode(&product); err != nil {
			return nil, fmt.Errorf("failed to decode product: %w", err)
		}
		products = append(products, &product)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return products, nil
}

// Upsert saves or replaces a product by ID.
func (r *MongoProductRepository) Upsert(ctx context.Context, product *domain.Product) error {
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now()
	}
	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": product.ID}, product, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	return nil
}

// SetVismaInventoryID attaches the remote back-reference without
// touching last_modified.
func (r *MongoProductRepository) SetVismaInventoryID(ctx context.Context, id string, inventoryID string) error {
	update := bson.M{"$set": bson.M{"visma_inventory_id": inventoryID}}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to set visma inventory id: %w", err)
	}
	return nil
}
