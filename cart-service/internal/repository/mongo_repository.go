package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/homeservices/cart-service/internal/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection("carts"),
		now:        time.Now,
	}
}

func (m *MongoRepository) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	var cart domain.Cart

	filter := bson.M{"user_id": userID}
	err := m.collection.FindOne(ctx, filter).Decode(&cart)

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return &cart, nil
}

func (m *MongoRepository) UpsertLine(ctx context.Context, userID string, line domain.CartLine) (domain.CartLine, error) {
	now := m.now().UTC()
	line.AddedAt = now

	filter := bson.M{"user_id": userID}

	// First, check if cart exists
	var existingCart domain.Cart
	err := m.collection.FindOne(ctx, filter).Decode(&existingCart)

	if errors.Is(err, mongo.ErrNoDocuments) {
		line.ID = uuid.NewString()
		cart := &domain.Cart{
			UserID:    userID,
			Items:     []domain.CartLine{line},
			CreatedAt: now,
			UpdatedAt: now,
		}
		_, err = m.collection.InsertOne(ctx, cart)
		if mongo.IsDuplicateKeyError(err) {
			// created concurrently, go through the update path
			return m.UpsertLine(ctx, userID, line)
		}
		if err != nil {
			return domain.CartLine{}, fmt.Errorf("failed to create cart with item: %w", err)
		}
		return line, nil
	}
	if err != nil {
		return domain.CartLine{}, fmt.Errorf("failed to check existing cart: %w", err)
	}

	// Cart exists, check if line with same product_id exists
	for _, existing := range existingCart.Items {
		if existing.ProductID != line.ProductID {
			continue
		}
		line.ID = existing.ID
		update := bson.M{
			"$set": bson.M{
				"items.$[elem]": line,
				"updated_at":    now,
			},
		}
		arrayFilters := options.Update().SetArrayFilters(options.ArrayFilters{
			Filters: []interface{}{
				bson.M{"elem.product_id": line.ProductID},
			},
		})
		if _, err := m.collection.UpdateOne(ctx, filter, update, arrayFilters); err != nil {
			return domain.CartLine{}, fmt.Errorf("failed to update existing item: %w", err)
		}
		return line, nil
	}

	line.ID = uuid.NewString()
	update := bson.M{
		"$push": bson.M{"items": line},
		"$set":  bson.M{"updated_at": now},
	}
	if _, err := m.collection.UpdateOne(ctx, filter, update); err != nil {
		return domain.CartLine{}, fmt.Errorf("failed to add new item: %w", err)
	}
	return line, nil
}

func (m *MongoRepository) UpdateLine(ctx context.Context, userID, lineID string, patch domain.LinePatch) (domain.CartLine, error) {
	filter := bson.M{
		"user_id":  userID,
		"items.id": lineID,
	}

	set := bson.M{"updated_at": m.now().UTC()}
	if patch.Count != nil {
		set["items.$[elem].count"] = *patch.Count
	}
	if patch.Content != nil {
		set["items.$[elem].content"] = patch.Content
	}

	opts := options.FindOneAndUpdate().
		SetArrayFilters(options.ArrayFilters{
			Filters: []interface{}{
				bson.M{"elem.id": lineID},
			},
		}).
		SetReturnDocument(options.After)

	var cart domain.Cart
	err := m.collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&cart)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.CartLine{}, ErrItemNotFound
	}
	if err != nil {
		return domain.CartLine{}, fmt.Errorf("failed to update item: %w", err)
	}

	line, ok := cart.Line(lineID)
	if !ok {
		return domain.CartLine{}, ErrItemNotFound
	}
	return line, nil
}

func (m *MongoRepository) RemoveLine(ctx context.Context, userID, lineID string) error {
	filter := bson.M{
		"user_id":  userID,
		"items.id": lineID,
	}
	update := bson.M{
		"$pull": bson.M{
			"items": bson.M{"id": lineID},
		},
		"$set": bson.M{"updated_at": m.now().UTC()},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to remove item: %w", err)
	}

	if result.MatchedCount == 0 {
		return ErrItemNotFound
	}

	return nil
}

func (m *MongoRepository) DeleteCart(ctx context.Context, userID string) error {
	filter := bson.M{"user_id": userID}

	result, err := m.collection.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}

	return nil
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days TTL
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
