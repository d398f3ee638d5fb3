// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"github.com/dalemusser/stratapass/internal/app/store/sessions"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// ExpiredSessionCloseJob creates a job that marks sessions past their expiry
// as ended (end_reason="expired") instead of leaving them open until the TTL
// monitor removes them. Closing them explicitly keeps session history accurate
// and makes the expiry visible to ListByIssuer before deletion.
func ExpiredSessionCloseJob(db *mongo.Database, logger *zap.Logger) Job {
	return Job{
		Name:     "expired-session-close",
		Interval: 5 * time.Minute,
		Run: func(ctx context.Context) error {
			coll := db.Collection("sessions")
			now := time.Now().UTC()

			result, err := coll.UpdateMany(ctx,
				bson.M{
					"logout_at":  nil,
					"expires_at": bson.M{"$lt": now},
				},
				bson.M{
					"$set": bson.M{
						"logout_at":  now,
						"end_reason": sessions.EndReasonExpired,
					},
				},
			)
			if err != nil {
				return err
			}
			if result.ModifiedCount > 0 {
				logger.Info("closed expired sessions",
					zap.Int64("count", result.ModifiedCount))
			}
			return nil
		},
	}
}

// SessionHistoryPruneJob creates a job that removes closed sessions older than
// the given retention period. Open sessions are never touched.
func SessionHistoryPruneJob(db *mongo.Database, logger *zap.Logger, retention time.Duration) Job {
	return Job{
		Name:     "session-history-prune",
		Interval: 6 * time.Hour,
		Run: func(ctx context.Context) error {
			coll := db.Collection("sessions")
			cutoff := time.Now().UTC().Add(-retention)

			result, err := coll.DeleteMany(ctx, bson.M{
				"logout_at": bson.M{"$ne": nil, "$lt": cutoff},
			})
			if err != nil {
				return err
			}
			if result.DeletedCount > 0 {
				logger.Info("pruned old session history",
					zap.Int64("deleted", result.DeletedCount),
					zap.Duration("retention", retention))
			}
			return nil
		},
	}
}

// LoginRecordPruneJob creates a job that removes login records older than the
// given retention period.
func LoginRecordPruneJob(db *mongo.Database, logger *zap.Logger, retention time.Duration) Job {
	return Job{
		Name:     "login-record-prune",
		Interval: 6 * time.Hour,
		Run: func(ctx context.Context) error {
			coll := db.Collection("login_records")
			cutoff := time.Now().UTC().Add(-retention)

			result, err := coll.DeleteMany(ctx, bson.M{
				"created_at": bson.M{"$lt": cutoff},
			})
			if err != nil {
				return err
			}
			if result.DeletedCount > 0 {
				logger.Info("pruned old login records",
					zap.Int64("deleted", result.DeletedCount),
					zap.Duration("retention", retention))
			}
			return nil
		},
	}
}
