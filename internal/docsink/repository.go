package docsink

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tgrelay/internal/relay"
)

// Repository is the durable store behind the document sink.
type Repository interface {
	Exists(ctx context.Context, chatID, messageID int64) (bool, error)
	Insert(ctx context.Context, rec *relay.LogRecord) (string, error)
}

type MongoRepository struct {
	coll *mongo.Collection
}

func NewRepository(db *mongo.Database, collection string) *MongoRepository {
	return &MongoRepository{coll: db.Collection(collection)}
}

func (r *MongoRepository) Exists(ctx context.Context, chatID, messageID int64) (bool, error) {
	filter := bson.M{"chat_id": chatID, "message_id": messageID}

	err := r.coll.FindOne(ctx, filter, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query log record: %w", err)
	}
	return true, nil
}

func (r *MongoRepository) Insert(ctx context.Context, rec *relay.LogRecord) (string, error) {
	res, err := r.coll.InsertOne(ctx, rec)
	if err != nil {
		// The exists/insert pair is not atomic; the unique index resolves
		// the race and a duplicate key counts as a dedup hit.
		if mongo.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("log record for (%d, %d): %w", rec.ChatID, rec.MessageID, relay.ErrDuplicateRecord)
		}
		return "", fmt.Errorf("failed to insert log record: %w", err)
	}

	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		return oid.Hex(), nil
	}
	return fmt.Sprintf("%v", res.InsertedID), nil
}

// EnsureIndexes creates the unique compound index backing deduplication.
func EnsureIndexes(ctx context.Context, db *mongo.Database, collection string) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "message_id", Value: 1}},
			Options: options.Index().
				SetName("idx_messages_chat_message").
				SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "date", Value: -1}},
			Options: options.Index().SetName("idx_messages_date"),
		},
	}

	_, err := db.Collection(collection).Indexes().CreateMany(ctx, indexes)
	if err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	return nil
}
