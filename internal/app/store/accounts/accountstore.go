// internal/app/store/accounts/accountstore.go
package accountstore

// Terminology: Account Identifiers
//   - Issuer / issuer: The stable unique identifier of an external identity,
//     supplied by the identity provider. Primary key for account records.

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratapass/internal/app/system/normalize"
	"github.com/dalemusser/stratapass/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrNotFound is returned when no account exists for the given issuer.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicateIssuer is returned when an account with this issuer already
	// exists. During signup this signals a lost creation race; the caller must
	// fall back to the login path against the now-existing record.
	ErrDuplicateIssuer = errors.New("an account with this issuer already exists")
	// ErrConflict is returned by CompareAndSwapLastLogin when the stored
	// last_login_at no longer matches the expected value. The caller resolves
	// it by re-reading the account and re-applying the replay check.
	ErrConflict = errors.New("last_login_at changed concurrently")
)

type Store struct {
	c   *mongo.Collection
	ops *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{
		c:   db.Collection("accounts"),
		ops: db.Collection("purchase_ops"),
	}
}

// Get loads an account by issuer. Returns ErrNotFound if no account exists.
func (s *Store) Get(ctx context.Context, issuer string) (*models.Account, error) {
	var a models.Account
	if err := s.c.FindOne(ctx, bson.M{"issuer": issuer}).Decode(&a); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Create inserts a new account. The unique index on issuer guarantees at most
// one account per issuer; a collision maps to ErrDuplicateIssuer.
func (s *Store) Create(ctx context.Context, a models.Account) (models.Account, error) {
	a.Email = normalize.Email(a.Email)

	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, a); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Account{}, ErrDuplicateIssuer
		}
		return models.Account{}, err
	}
	return a, nil
}

// CompareAndSwapLastLogin advances last_login_at from expected to next as a
// single conditional update. The filter includes the expected value, so two
// concurrent logins cannot both pass the replay check against a stale read:
// exactly one update matches, the other returns ErrConflict.
func (s *Store) CompareAndSwapLastLogin(ctx context.Context, issuer string, expected, next int64) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"issuer": issuer, "last_login_at": expected},
		bson.M{"$set": bson.M{
			"last_login_at": next,
			"updated_at":    time.Now().UTC(),
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrConflict
	}
	return nil
}

// purchaseOp records an applied purchase operation for idempotency.
// The unique {issuer, op_id} index makes re-submitting the same operation a
// no-op; expires_at carries a TTL index so old records age out.
type purchaseOp struct {
	Issuer    string    `bson:"issuer"`
	OpID      string    `bson:"op_id"`
	CreatedAt time.Time `bson:"created_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// opRetention is how long applied purchase op IDs are kept for dedupe.
const opRetention = 24 * time.Hour

// IncrementAppleCount applies a single purchase to the account and returns the
// resulting count. opID identifies the logical client action: the increment is
// applied at most once per (issuer, opID), so a retried request cannot double
// count. Returns ErrNotFound for an unknown issuer.
func (s *Store) IncrementAppleCount(ctx context.Context, issuer, opID string) (int64, error) {
	now := time.Now().UTC()
	_, err := s.ops.InsertOne(ctx, purchaseOp{
		Issuer:    issuer,
		OpID:      opID,
		CreatedAt: now,
		ExpiresAt: now.Add(opRetention),
	})
	if err != nil {
		if !wafflemongo.IsDup(err) {
			return 0, err
		}
		// Operation already applied - return the current count unchanged.
		a, err := s.Get(ctx, issuer)
		if err != nil {
			return 0, err
		}
		return a.AppleCount, nil
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var a models.Account
	err = s.c.FindOneAndUpdate(ctx,
		bson.M{"issuer": issuer},
		bson.M{
			"$inc": bson.M{"apple_count": 1},
			"$set": bson.M{"updated_at": now},
		},
		opts,
	).Decode(&a)
	if err != nil {
		// The op record must not outlive a failed increment, or a retry with
		// the same opID would be treated as already applied and the purchase
		// would be lost. Remove it so the retry gets a clean attempt.
		_, _ = s.ops.DeleteOne(ctx, bson.M{"issuer": issuer, "op_id": opID})
		if err == mongo.ErrNoDocuments {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return a.AppleCount, nil
}
