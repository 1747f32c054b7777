package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"library_turnover/backend/internal/shared"
)

// MongoStore keeps every account collection as "accounts.<account>.<name>"
// in one database. Commit runs inside a multi-document transaction, so the
// server must be a replica set.
type MongoStore struct {
	client       *mongo.Client
	db           *mongo.Database
	log          *zap.SugaredLogger
	queryTimeout time.Duration
}

// NewMongoStore creates a MongoStore over an already connected client
func NewMongoStore(client *mongo.Client, db *mongo.Database, log *zap.SugaredLogger, queryTimeout time.Duration) *MongoStore {
	if queryTimeout <= 0 {
		queryTimeout = 10 * time.Second
	}
	return &MongoStore{
		client:       client,
		db:           db,
		log:          log,
		queryTimeout: queryTimeout,
	}
}

func (s *MongoStore) collection(account string, c Collection) (*mongo.Collection, error) {
	if err := ValidateAccount(account); err != nil {
		return nil, err
	}
	return s.db.Collection(fmt.Sprintf("accounts.%s.%s", account, c)), nil
}

// Get retrieves a document by id
func (s *MongoStore) Get(ctx context.Context, account string, c Collection, id string) (bson.Raw, error) {
	col, err := s.collection(account, c)
	if err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	raw, err := col.FindOne(queryCtx, bson.M{"_id": id}).Raw()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s/%s: %w", c, id, err)
	}
	return raw, nil
}

// Find retrieves all documents matching filter, sorted by id
func (s *MongoStore) Find(ctx context.Context, account string, c Collection, filter bson.M) ([]bson.Raw, error) {
	col, err := s.collection(account, c)
	if err != nil {
		return nil, err
	}
	if filter == nil {
		filter = bson.M{}
	}

	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	cursor, err := col.Find(queryCtx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", c, err)
	}
	defer cursor.Close(queryCtx)

	var out []bson.Raw
	for cursor.Next(queryCtx) {
		// cursor.Current is reused between iterations
		doc := make(bson.Raw, len(cursor.Current))
		copy(doc, cursor.Current)
		out = append(out, doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", c, err)
	}
	return out, nil
}

// Create inserts a new document, failing if the id is taken
func (s *MongoStore) Create(ctx context.Context, account string, c Collection, id string, doc interface{}) error {
	return s.Commit(ctx, account, []Op{CreateOp(c, id, doc)})
}

// Set upserts a whole document
func (s *MongoStore) Set(ctx context.Context, account string, c Collection, id string, doc interface{}) error {
	col, err := s.collection(account, c)
	if err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	return s.apply(queryCtx, col, SetOp(c, id, doc))
}

// Update sets the given fields on an existing document
func (s *MongoStore) Update(ctx context.Context, account string, c Collection, id string, fields bson.M) error {
	col, err := s.collection(account, c)
	if err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	return s.apply(queryCtx, col, UpdateOp(c, id, fields))
}

// Delete removes a document. Deleting a missing document is not an error.
func (s *MongoStore) Delete(ctx context.Context, account string, c Collection, id string) error {
	col, err := s.collection(account, c)
	if err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	return s.apply(queryCtx, col, DeleteOp(c, id))
}

// Commit applies ops in a single transaction
func (s *MongoStore) Commit(ctx context.Context, account string, ops []Op) error {
	if err := checkBatch(account, ops); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	cols := make([]*mongo.Collection, len(ops))
	for i, op := range ops {
		col, err := s.collection(account, op.Collection)
		if err != nil {
			return err
		}
		cols[i] = col
	}

	err := shared.WithTransaction(ctx, s.client, func(sessCtx mongo.SessionContext) error {
		for i, op := range ops {
			if err := s.apply(sessCtx, cols[i], op); err != nil {
				return fmt.Errorf("op %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		s.log.Errorw("batch commit failed", "account", account, "ops", len(ops), "error", err)
		return err
	}
	return nil
}

func (s *MongoStore) apply(ctx context.Context, col *mongo.Collection, op Op) error {
	switch op.Kind {
	case OpCreate:
		doc, err := toDocument(op.ID, op.Doc)
		if err != nil {
			return err
		}
		if _, err := col.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return fmt.Errorf("%s/%s: %w", op.Collection, op.ID, ErrAlreadyExists)
			}
			return fmt.Errorf("create %s/%s: %w", op.Collection, op.ID, err)
		}
	case OpSet:
		doc, err := toDocument(op.ID, op.Doc)
		if err != nil {
			return err
		}
		opts := options.Replace().SetUpsert(true)
		if _, err := col.ReplaceOne(ctx, bson.M{"_id": op.ID}, doc, opts); err != nil {
			return fmt.Errorf("set %s/%s: %w", op.Collection, op.ID, err)
		}
	case OpUpdate:
		res, err := col.UpdateOne(ctx, bson.M{"_id": op.ID}, bson.M{"$set": op.Fields})
		if err != nil {
			return fmt.Errorf("update %s/%s: %w", op.Collection, op.ID, err)
		}
		if res.MatchedCount == 0 {
			return fmt.Errorf("%s/%s: %w", op.Collection, op.ID, ErrNotFound)
		}
	case OpDelete:
		if _, err := col.DeleteOne(ctx, bson.M{"_id": op.ID}); err != nil {
			return fmt.Errorf("delete %s/%s: %w", op.Collection, op.ID, err)
		}
	default:
		return fmt.Errorf("unknown op kind %s", op.Kind)
	}
	return nil
}

// DropAccount removes every collection of account. Used by the seeder.
func (s *MongoStore) DropAccount(ctx context.Context, account string) error {
	for _, c := range Collections {
		col, err := s.collection(account, c)
		if err != nil {
			return err
		}
		if err := col.Drop(ctx); err != nil {
			return fmt.Errorf("drop %s: %w", c, err)
		}
	}
	s.log.Infow("account dropped", "account", account)
	return nil
}
