// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps carries the MongoDB handles for this WAFFLE app. ConnectDB fills it
// in and the later lifecycle hooks (EnsureSchema, Startup, BuildHandler,
// Shutdown) receive it; every store package is constructed from
// MongoDatabase, while MongoClient is kept for health pings and the final
// disconnect. MongoDB is the only backend this service talks to besides the
// identity provider, which is plain HTTP and needs no connection state here.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database
}
