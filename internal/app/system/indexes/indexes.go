// internal/app/system/indexes/indexes.go
package indexes

// Terminology: Account Identifiers
//   - Issuer / issuer: The stable unique identifier of an external identity,
//     supplied by the identity provider. Primary key for account records.

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

/*
EnsureAll is called at startup. Each ensure* function is idempotent.
We aggregate errors so any problem is visible and startup can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	if err := ensureAccounts(ctx, db); err != nil {
		problems = append(problems, "accounts: "+err.Error())
	}
	if err := ensurePurchaseOps(ctx, db); err != nil {
		problems = append(problems, "purchase_ops: "+err.Error())
	}
	if err := ensureSessions(ctx, db); err != nil {
		problems = append(problems, "sessions: "+err.Error())
	}
	if err := ensureLoginRecords(ctx, db); err != nil {
		problems = append(problems, "login_records: "+err.Error())
	}
	if err := ensureRateLimits(ctx, db); err != nil {
		problems = append(problems, "rate_limits: "+err.Error())
	}
	if err := ensureAuditLogs(ctx, db); err != nil {
		problems = append(problems, "audit_logs: "+err.Error())
	}

	if len(problems) > 0 {
		return errors.New("index creation failed: " + strings.Join(problems, "; "))
	}
	return nil
}

// ensureAccounts creates the unique issuer index. The uniqueness constraint is
// load-bearing: it is what makes account creation idempotent under races.
func ensureAccounts(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("accounts").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "issuer", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_accounts_issuer"),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("idx_accounts_email"),
		},
	})
	return err
}

// ensurePurchaseOps creates the idempotency index for purchase operations.
// The unique {issuer, op_id} pair is what prevents double increments.
func ensurePurchaseOps(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("purchase_ops").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "issuer", Value: 1}, {Key: "op_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_purchase_ops_issuer_op"),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_purchase_ops_ttl"),
		},
	})
	return err
}

func ensureSessions(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("sessions").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_session_token"),
		},
		{
			Keys:    bson.D{{Key: "issuer", Value: 1}},
			Options: options.Index().SetName("idx_session_issuer"),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_session_ttl"),
		},
	})
	return err
}

func ensureLoginRecords(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("login_records").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "issuer", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_logins_issuer_created"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_logins_created"),
		},
	})
	return err
}

func ensureRateLimits(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("rate_limits").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "issuer", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_ratelimit_issuer"),
		},
		{
			Keys:    bson.D{{Key: "last_attempt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(86400).SetName("idx_ratelimit_ttl"),
		},
	})
	return err
}

func ensureAuditLogs(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("audit_logs").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "issuer", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_audit_issuer"),
		},
		{
			Keys:    bson.D{{Key: "event_type", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_audit_type"),
		},
	})
	return err
}
