// Package mongostore is the document-backed credential store.  Uniqueness of
// emails and token digests and the purge of expired refresh tokens are left
// to MongoDB indexes.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/bookfair/stallhub/internal/model"
	"github.com/bookfair/stallhub/internal/repository"
)

const (
	usersCollection  = "users"
	tokensCollection = "refreshtokens"
)

type userDoc struct {
	ID            string    `bson:"_id"`
	Email         string    `bson:"email"`
	PasswordHash  string    `bson:"passwordHash"`
	Name          string    `bson:"name"`
	BusinessName  string    `bson:"businessName,omitempty"`
	ContactNumber string    `bson:"contactNumber"`
	Address       string    `bson:"address,omitempty"`
	Role          string    `bson:"role"`
	IsVerified    bool      `bson:"isVerified"`
	IsActive      bool      `bson:"isActive"`
	CreatedAt     time.Time `bson:"createdAt"`
}

type tokenDoc struct {
	ID        string    `bson:"_id"`
	TokenHash string    `bson:"tokenHash"`
	UserID    string    `bson:"userId"`
	ExpiresAt time.Time `bson:"expiresAt"`
	IsActive  bool      `bson:"isActive"`
	CreatedAt time.Time `bson:"createdAt"`
}

// Store implements both the user and the refresh-token side of the
// credential store.
type Store struct {
	client *mongo.Client
	users  *mongo.Collection
	tokens *mongo.Collection
}

// Open connects to uri, verifies the connection and ensures indexes.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	s := New(client, database)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// New wraps an existing client.  Indexes are not touched.
func New(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client: client,
		users:  db.Collection(usersCollection),
		tokens: db.Collection(tokensCollection),
	}
}

// EnsureIndexes creates the unique and TTL indexes.  It is safe to call on
// every start.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("users index: %w", err)
	}
	if _, err := s.tokens.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tokenHash", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "userId", Value: 1}}},
		// expireAfterSeconds=0 removes a row as soon as expiresAt passes
		{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
	}); err != nil {
		return fmt.Errorf("refreshtokens indexes: %w", err)
	}
	return nil
}

// Ping checks the server is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx, nil) }

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	u.Email = repository.NormalizeEmail(u.Email)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	u.CreatedAt = u.CreatedAt.UTC().Truncate(time.Millisecond)
	_, err := s.users.InsertOne(ctx, userDoc{
		ID:            u.ID,
		Email:         u.Email,
		PasswordHash:  u.PasswordHash,
		Name:          u.Name,
		BusinessName:  u.BusinessName,
		ContactNumber: u.ContactNumber,
		Address:       u.Address,
		Role:          u.Role.String(),
		IsVerified:    u.IsVerified,
		IsActive:      u.IsActive,
		CreatedAt:     u.CreatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return repository.ErrDuplicate
	}
	return err
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findUser(ctx, bson.D{{Key: "email", Value: repository.NormalizeEmail(email)}})
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*model.User, error) {
	return s.findUser(ctx, bson.D{{Key: "_id", Value: id}})
}

func (s *Store) findUser(ctx context.Context, filter bson.D) (*model.User, error) {
	var d userDoc
	err := s.users.FindOne(ctx, filter).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	role, err := model.ParseRole(d.Role)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", d.ID, err)
	}
	return &model.User{
		ID:            d.ID,
		Email:         d.Email,
		PasswordHash:  d.PasswordHash,
		Name:          d.Name,
		BusinessName:  d.BusinessName,
		ContactNumber: d.ContactNumber,
		Address:       d.Address,
		Role:          role,
		IsVerified:    d.IsVerified,
		IsActive:      d.IsActive,
		CreatedAt:     d.CreatedAt.UTC(),
	}, nil
}

func (s *Store) SetUserActive(ctx context.Context, id string, active bool) error {
	res, err := s.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "isActive", Value: active}}}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) StoreRefresh(ctx context.Context, t *model.RefreshToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := s.tokens.InsertOne(ctx, tokenDoc{
		ID:        t.ID,
		TokenHash: t.TokenHash,
		UserID:    t.UserID,
		ExpiresAt: t.ExpiresAt.UTC(),
		IsActive:  t.IsActive,
		CreatedAt: t.CreatedAt.UTC(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return repository.ErrDuplicate
	}
	return err
}

func (s *Store) FindActiveRefresh(ctx context.Context, tokenHash, userID string) (*model.RefreshToken, error) {
	var d tokenDoc
	err := s.tokens.FindOne(ctx, bson.D{
		{Key: "tokenHash", Value: tokenHash},
		{Key: "userId", Value: userID},
		{Key: "isActive", Value: true},
	}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &model.RefreshToken{
		ID:        d.ID,
		TokenHash: d.TokenHash,
		UserID:    d.UserID,
		ExpiresAt: d.ExpiresAt.UTC(),
		IsActive:  d.IsActive,
		CreatedAt: d.CreatedAt.UTC(),
	}, nil
}

func (s *Store) DeactivateRefresh(ctx context.Context, tokenHash string) (bool, error) {
	res, err := s.tokens.UpdateOne(ctx,
		bson.D{{Key: "tokenHash", Value: tokenHash}, {Key: "isActive", Value: true}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "isActive", Value: false}}}})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (s *Store) DeactivateAllForUser(ctx context.Context, userID string) (int64, error) {
	res, err := s.tokens.UpdateMany(ctx,
		bson.D{{Key: "userId", Value: userID}, {Key: "isActive", Value: true}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "isActive", Value: false}}}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (s *Store) CountActiveForUser(ctx context.Context, userID string, now time.Time) (int, error) {
	n, err := s.tokens.CountDocuments(ctx, bson.D{
		{Key: "userId", Value: userID},
		{Key: "isActive", Value: true},
		{Key: "expiresAt", Value: bson.D{{Key: "$gt", Value: now.UTC()}}},
	})
	return int(n), err
}

// PurgeExpired is a no-op: the TTL index on expiresAt deletes rows.
func (s *Store) PurgeExpired(context.Context, time.Time) (int64, error) { return 0, nil }
