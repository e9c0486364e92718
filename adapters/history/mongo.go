package history

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mininerva/openclaw-cardputer/domain/repositories"
)

const collectionName = "exchanges"

// Mongo persists every device exchange for later inspection. Writes are an
// audit trail, not a delivery queue; a failed insert is logged by the caller
// and the exchange proceeds.
type Mongo struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewMongo connects to MongoDB and verifies the connection.
func NewMongo(ctx context.Context, uri, database string, logger *zap.Logger) (*Mongo, error) {
	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(10).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("Connected to MongoDB",
		zap.String("database", database),
		zap.String("collection", collectionName))

	return &Mongo{
		client:     client,
		collection: client.Database(database).Collection(collectionName),
		logger:     logger,
	}, nil
}

// Record inserts one exchange.
func (m *Mongo) Record(ctx context.Context, ex repositories.Exchange) error {
	if _, err := m.collection.InsertOne(ctx, ex); err != nil {
		return fmt.Errorf("failed to insert exchange: %w", err)
	}
	return nil
}

// Close disconnects from MongoDB.
func (m *Mongo) Close(ctx context.Context) error {
	if err := m.client.Disconnect(ctx); err != nil {
		m.logger.Error("Failed to disconnect from MongoDB", zap.Error(err))
		return err
	}
	return nil
}
