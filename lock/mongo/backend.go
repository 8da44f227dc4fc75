// Package mongo implements lock.Backend on a MongoDB collection. Each lease
// is a document keyed by lock name; acquisition is an upsert whose filter
// only matches expired leases, so a live lease surfaces as a duplicate key
// error on the insert path.
package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/vasont/Foundatio"
	"github.com/vasont/Foundatio/lock"
)

// Compile-time check.
var _ lock.Backend = (*Backend)(nil)

const defaultCollection = "foundatio_locks"

// Option configures the Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) { b.logger = logger }
}

// WithCollection overrides the collection name.
func WithCollection(name string) Option {
	return func(b *Backend) { b.collection = name }
}

// Backend stores leases in MongoDB. The caller owns the client lifecycle.
type Backend struct {
	db         *mongod.Database
	collection string
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a backend on db.
func New(db *mongod.Database, opts ...Option) *Backend {
	b := &Backend{
		db:         db,
		collection: defaultCollection,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) col() *mongod.Collection {
	return b.db.Collection(b.collection)
}

// Migrate creates a TTL index so expired leases are eventually removed.
func (b *Backend) Migrate(ctx context.Context) error {
	_, err := b.col().Indexes().CreateOne(ctx, mongod.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("foundatio/lock/mongo: migrate: %w", err)
	}
	return nil
}

// TryAcquire implements lock.Backend.
func (b *Backend) TryAcquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	now := b.now().UTC()
	_, err := b.col().UpdateOne(ctx,
		acquireFilter(name, now),
		bson.M{"$set": bson.M{"owner": owner, "expires_at": now.Add(ttl)}},
		options.UpdateOne().SetUpsert(true),
	)
	if mongod.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("foundatio/lock/mongo: acquire: %w", err)
	}
	return true, nil
}

// Release implements lock.Backend.
func (b *Backend) Release(ctx context.Context, name, owner string) error {
	_, err := b.col().DeleteOne(ctx, bson.M{"_id": name, "owner": owner})
	if err != nil {
		return fmt.Errorf("foundatio/lock/mongo: release: %w", err)
	}
	return nil
}

// Renew implements lock.Backend.
func (b *Backend) Renew(ctx context.Context, name, owner string, ttl time.Duration) error {
	now := b.now().UTC()
	res, err := b.col().UpdateOne(ctx,
		bson.M{"_id": name, "owner": owner, "expires_at": bson.M{"$gt": now}},
		bson.M{"$set": bson.M{"expires_at": now.Add(ttl)}},
	)
	if err != nil {
		return fmt.Errorf("foundatio/lock/mongo: renew: %w", err)
	}
	if res.MatchedCount == 0 {
		return foundatio.ErrLockNotHeld
	}
	return nil
}

// IsLocked implements lock.Backend.
func (b *Backend) IsLocked(ctx context.Context, name string) (bool, error) {
	n, err := b.col().CountDocuments(ctx,
		bson.M{"_id": name, "expires_at": bson.M{"$gt": b.now().UTC()}},
	)
	if err != nil {
		return false, fmt.Errorf("foundatio/lock/mongo: is locked: %w", err)
	}
	return n > 0, nil
}

// acquireFilter matches the lease document for name only when it has
// expired. A missing document falls through to the upsert insert.
func acquireFilter(name string, now time.Time) bson.M {
	return bson.M{"_id": name, "expires_at": bson.M{"$lte": now}}
}
