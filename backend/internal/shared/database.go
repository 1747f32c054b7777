// ============================================================================
// backend/internal/shared/database.go
// Shared MongoDB connection and helper utilities
// ============================================================================

package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

const (
	// MaxStoreBatchOps is the hard per-commit operation limit of the document store.
	MaxStoreBatchOps = 500
	// DefaultBatchSize leaves headroom under MaxStoreBatchOps.
	DefaultBatchSize = 450
	// DefaultLargeClassThreshold is the student count above which a class is flagged.
	DefaultLargeClassThreshold = 40
)

// MongoConfig holds MongoDB connection configuration
type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	MaxPoolSize    uint64        `mapstructure:"max_pool_size"`
	MinPoolSize    uint64        `mapstructure:"min_pool_size"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout"`
}

// DefaultMongoConfig returns default MongoDB configuration
func DefaultMongoConfig(uri, database string) *MongoConfig {
	return &MongoConfig{
		URI:            uri,
		Database:       database,
		ConnectTimeout: 20 * time.Second,
		MaxPoolSize:    50,
		MinPoolSize:    10,
		MaxIdleTime:    30 * time.Second,
		QueryTimeout:   10 * time.Second,
	}
}

// ConnectMongoDB establishes connection to MongoDB with proper configuration
func ConnectMongoDB(log *zap.SugaredLogger, config *MongoConfig) (*mongo.Client, *mongo.Database, error) {
	if config == nil {
		return nil, nil, fmt.Errorf("mongo config cannot be nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(config.URI).
		SetMaxPoolSize(config.MaxPoolSize).
		SetMinPoolSize(config.MinPoolSize).
		SetMaxConnIdleTime(config.MaxIdleTime).
		SetServerSelectionTimeout(10 * time.Second).
		SetConnectTimeout(config.ConnectTimeout).
		SetSocketTimeout(30 * time.Second).
		SetHeartbeatInterval(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Infow("connected to MongoDB", "database", config.Database)

	db := client.Database(config.Database)
	return client, db, nil
}

// DisconnectMongoDB gracefully closes MongoDB connection
func DisconnectMongoDB(client *mongo.Client) error {
	if client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	return nil
}

// ============================================================================
// Transaction Helpers
// ============================================================================

// WithTransaction executes a function within a MongoDB transaction
func WithTransaction(ctx context.Context, client *mongo.Client, fn func(sessCtx mongo.SessionContext) error) error {
	session, err := client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})

	return err
}

// ============================================================================
// ID Generation Helpers
// ============================================================================

// GenerateID generates a unique ID with prefix
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}

// GenerateHistoryID generates a turnover history ID
func GenerateHistoryID() string {
	return GenerateID("TURNOVER")
}

// GenerateClassID generates a class ID
func GenerateClassID() string {
	return GenerateID("CLS")
}

// ============================================================================
// Document Helpers
// ============================================================================

// ToDocument converts any BSON-marshalable value into a bson.M.
func ToDocument(v interface{}) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return doc, nil
}

// StripNil removes nil values from a document, recursing into embedded
// documents and arrays. Nil array elements are dropped.
func StripNil(doc bson.M) bson.M {
	for k, v := range doc {
		cleaned, keep := stripValue(v)
		if !keep {
			delete(doc, k)
			continue
		}
		doc[k] = cleaned
	}
	return doc
}

func stripValue(v interface{}) (interface{}, bool) {
	switch val := v.(type) {
	case nil:
		return nil, false
	case bson.M:
		return StripNil(val), true
	case map[string]interface{}:
		return map[string]interface{}(StripNil(bson.M(val))), true
	case bson.D:
		out := make(bson.D, 0, len(val))
		for _, e := range val {
			if cleaned, keep := stripValue(e.Value); keep {
				out = append(out, bson.E{Key: e.Key, Value: cleaned})
			}
		}
		return out, true
	case bson.A:
		return bson.A(stripSlice(val)), true
	case []interface{}:
		return stripSlice(val), true
	default:
		return v, true
	}
}

func stripSlice(items []interface{}) []interface{} {
	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		if cleaned, keep := stripValue(item); keep {
			out = append(out, cleaned)
		}
	}
	return out
}

// NewDateTime stamps a time the way MongoDB stores it (millisecond precision, UTC).
func NewDateTime(t time.Time) time.Time {
	return primitive.NewDateTimeFromTime(t).Time().UTC()
}
