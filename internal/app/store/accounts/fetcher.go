// internal/app/store/accounts/fetcher.go
package accountstore

import (
	"context"

	"github.com/dalemusser/stratapass/internal/app/system/auth"
	"github.com/dalemusser/stratapass/internal/app/system/timeouts"
	"github.com/dalemusser/stratapass/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Fetcher implements auth.AccountFetcher to load fresh account data on each
// request. Sessions never cache account fields, so changes made outside the
// request path are visible immediately.
type Fetcher struct {
	accounts *mongo.Collection
	logger   *zap.Logger
}

// NewFetcher creates an AccountFetcher that queries the given database.
func NewFetcher(db *mongo.Database, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		accounts: db.Collection("accounts"),
		logger:   logger,
	}
}

// FetchAccount retrieves an account by issuer and returns nil if the account
// is not found or if any error occurs. This implements auth.AccountFetcher.
func (f *Fetcher) FetchAccount(ctx context.Context, issuer string) *auth.SessionAccount {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	var a models.Account
	proj := options.FindOne().SetProjection(bson.M{
		"issuer": 1,
		"email":  1,
	})
	if err := f.accounts.FindOne(ctx, bson.M{"issuer": issuer}, proj).Decode(&a); err != nil {
		// Account not found or DB error
		return nil
	}

	return &auth.SessionAccount{
		Issuer: a.Issuer,
		Email:  a.Email,
	}
}
