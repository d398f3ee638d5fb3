// internal/app/store/sessions/store.go
package sessions

// Terminology: Account Identifiers
//   - Issuer / issuer: The stable unique identifier of an external identity,
//     supplied by the identity provider. Primary key for account records.
//   - SessionToken / session_token: The random server-side token that binds a
//     browser session to an issuer.

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Session end reasons
const (
	EndReasonLogout  = "logout"  // Account explicitly logged out
	EndReasonExpired = "expired" // Session expired via TTL
)

// Session is the server-side record binding a session token to an issuer.
// The record is authoritative for revocation: a token no longer resolvable
// here is invalid regardless of what a cookie claims. Account data is never
// cached on the session; it is always re-fetched by issuer.
type Session struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Token     string             `bson:"token"` // Unique 32-byte random token
	Issuer    string             `bson:"issuer"`
	IPAddress string             `bson:"ip_address,omitempty"`
	UserAgent string             `bson:"user_agent,omitempty"`

	LoginAt      time.Time  `bson:"login_at"`                // When session started
	LogoutAt     *time.Time `bson:"logout_at,omitempty"`     // When session ended (nil if active)
	EndReason    string     `bson:"end_reason,omitempty"`    // "logout", "expired"
	DurationSecs int64      `bson:"duration_secs,omitempty"` // Computed on close

	// TTL expiration
	ExpiresAt time.Time `bson:"expires_at"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Store manages session records in MongoDB.
type Store struct {
	c *mongo.Collection
}

// New creates a new session Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("sessions")}
}

// EnsureIndexes creates indexes for efficient querying and TTL expiration.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		// Lookup by token (unique)
		{
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_session_token"),
		},
		// Lookup by issuer
		{
			Keys:    bson.D{{Key: "issuer", Value: 1}},
			Options: options.Index().SetName("idx_session_issuer"),
		},
		// TTL index for automatic cleanup
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_session_ttl"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Create creates a new session record.
func (s *Store) Create(ctx context.Context, session Session) error {
	if session.ID.IsZero() {
		session.ID = primitive.NewObjectID()
	}
	now := time.Now()
	session.CreatedAt = now
	session.UpdatedAt = now
	if session.LoginAt.IsZero() {
		session.LoginAt = now
	}
	_, err := s.c.InsertOne(ctx, session)
	return err
}

// GetByToken retrieves an active session by token.
// Returns mongo.ErrNoDocuments if the session has been logged out or expired.
func (s *Store) GetByToken(ctx context.Context, token string) (*Session, error) {
	var session Session
	err := s.c.FindOne(ctx, bson.M{
		"token":      token,
		"logout_at":  nil,
		"expires_at": bson.M{"$gt": time.Now()},
	}).Decode(&session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Close closes a session with a reason and computes the duration.
// This marks the session as ended but does not delete it (for audit purposes).
func (s *Store) Close(ctx context.Context, token string, reason string) error {
	var session Session
	err := s.c.FindOne(ctx, bson.M{"token": token}).Decode(&session)
	if err != nil {
		return err
	}

	now := time.Now()
	duration := int64(now.Sub(session.LoginAt).Seconds())

	_, err = s.c.UpdateOne(ctx, bson.M{"token": token}, bson.M{
		"$set": bson.M{
			"logout_at":     now,
			"end_reason":    reason,
			"duration_secs": duration,
			"updated_at":    now,
		},
	})
	return err
}

// CloseByIssuer closes all active sessions for an issuer with the given reason.
func (s *Store) CloseByIssuer(ctx context.Context, issuer string, reason string) error {
	now := time.Now()
	_, err := s.c.UpdateMany(ctx,
		bson.M{
			"issuer":    issuer,
			"logout_at": nil,
		},
		bson.M{
			"$set": bson.M{
				"logout_at":  now,
				"end_reason": reason,
				"updated_at": now,
			},
		},
	)
	return err
}

// ListByIssuer retrieves all active sessions for an issuer.
func (s *Store) ListByIssuer(ctx context.Context, issuer string) ([]Session, error) {
	cursor, err := s.c.Find(ctx, bson.M{
		"issuer":     issuer,
		"logout_at":  nil,
		"expires_at": bson.M{"$gt": time.Now()},
	}, options.Find().SetSort(bson.D{{Key: "login_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sessions []Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// CountActive counts currently active sessions (not logged out and not expired).
func (s *Store) CountActive(ctx context.Context) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{
		"logout_at":  nil,
		"expires_at": bson.M{"$gt": time.Now()},
	})
}

// Resolver adapts the Store to the session-resolution interface used by the
// auth middleware.
type Resolver struct {
	store  *Store
	logger *zap.Logger
}

// NewResolver creates a Resolver backed by the given Store.
func NewResolver(store *Store, logger *zap.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// ResolveToken returns the issuer bound to an active session token.
// Revoked, expired, and unknown tokens all resolve to ok=false.
func (r *Resolver) ResolveToken(ctx context.Context, token string) (string, bool) {
	session, err := r.store.GetByToken(ctx, token)
	if err != nil {
		if err != mongo.ErrNoDocuments {
			r.logger.Warn("session token resolution failed", zap.Error(err))
		}
		return "", false
	}
	return session.Issuer, true
}
