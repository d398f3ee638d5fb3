// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"time"

	"github.com/dalemusser/stratapass/internal/app/system/tasks"
	"github.com/dalemusser/stratapass/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Startup runs once after DB connections and schema/index setup are complete,
// but before the HTTP handler is built and requests are served.
//
// This is the place for one-time initialization that depends on having live
// database connections and fully loaded configuration. Unlike ConnectDB and
// EnsureSchema which focus on infrastructure, Startup is for application-level
// initialization.
//
// Returning a non-nil error will abort startup and prevent the server from
// starting. Returning nil signals that initialization succeeded.
//
// The context will be cancelled if the process is asked to shut down while
// Startup is running; honor it in any long-running work.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	// Provider calls go through a caller-imposed timeout so a slow identity
	// provider cannot hold login requests open.
	timeouts.Configure(timeouts.Config{Verifier: appCfg.VerifierTimeout})

	// Note: Indexes are created in EnsureSchema via indexes.EnsureAll().
	// Store-level EnsureIndexes() calls are not needed here.

	startTaskRunner(deps.MongoDatabase, logger)

	return nil
}

// taskRunner is the global task runner instance, used for graceful shutdown.
var taskRunner *tasks.Runner

// startTaskRunner initializes and starts the background task runner.
func startTaskRunner(db *mongo.Database, logger *zap.Logger) {
	taskRunner = tasks.New(logger)

	// Mark sessions past their expiry as ended before the TTL monitor
	// removes them, then prune old history.
	taskRunner.Register(tasks.ExpiredSessionCloseJob(db, logger))
	taskRunner.Register(tasks.SessionHistoryPruneJob(db, logger, 90*24*time.Hour))
	taskRunner.Register(tasks.LoginRecordPruneJob(db, logger, 90*24*time.Hour))

	taskRunner.Start()
}
