package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tbot/internal/ledger"
)

var _ Store = (*MongoStore)(nil)

type mongoRecord struct {
	UserID    string        `bson:"_id"`
	Version   int64         `bson:"version"`
	Record    ledger.Record `bson:"record"`
	UpdatedAt time.Time     `bson:"updated_at"`
}

// MongoStore keeps records in the "reward_records" collection, one document per user.
type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection("reward_records")}
}

// ConnectMongo opens a client and checks the connection.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

func (s *MongoStore) Get(ctx context.Context, userID string) (ledger.Record, error) {
	var doc mongoRecord
	err := s.collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ledger.Record{}, ErrNotFound
	}
	if err != nil {
		return ledger.Record{}, fmt.Errorf("get %s: %w", userID, err)
	}
	rec := doc.Record
	rec.UserID = doc.UserID
	rec.Version = doc.Version
	return rec, nil
}

func (s *MongoStore) Insert(ctx context.Context, rec ledger.Record) error {
	_, err := s.collection.InsertOne(ctx, mongoRecord{
		UserID:    rec.UserID,
		Version:   rec.Version,
		Record:    rec,
		UpdatedAt: time.Now(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrExists
	}
	if err != nil {
		return fmt.Errorf("insert %s: %w", rec.UserID, err)
	}
	return nil
}

func (s *MongoStore) Update(ctx context.Context, rec ledger.Record) error {
	next := rec.Clone()
	next.Version++
	filter := bson.M{"_id": rec.UserID, "version": rec.Version}
	res, err := s.collection.ReplaceOne(ctx, filter, mongoRecord{
		UserID:    next.UserID,
		Version:   next.Version,
		Record:    next,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("update %s: %w", rec.UserID, err)
	}
	if res.MatchedCount == 0 {
		return ErrConflict
	}
	return nil
}
