package accounts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrDuplicateUsername = errors.New("username already exists")

// Repository defines persistence operations for accounts. Lookups return
// (nil, nil) when the account does not exist.
type Repository interface {
	Create(ctx context.Context, a *Account) error
	GetByUsername(ctx context.Context, username string) (*Account, error)
	GetByUID(ctx context.Context, uid string) (*Account, error)
}

func normalizeUsername(u string) string {
	return strings.ToLower(strings.TrimSpace(u))
}

// MongoRepository implements Repository using a Mongo collection
type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

// EnsureIndexes creates the unique username index.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *MongoRepository) Create(ctx context.Context, a *Account) error {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	a.Username = normalizeUsername(a.Username)
	if _, err := r.col.InsertOne(ctx, a); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateUsername
		}
		return err
	}
	return nil
}

func (r *MongoRepository) GetByUsername(ctx context.Context, username string) (*Account, error) {
	return r.findOne(ctx, bson.M{"username": normalizeUsername(username)})
}

func (r *MongoRepository) GetByUID(ctx context.Context, uid string) (*Account, error) {
	return r.findOne(ctx, bson.M{"_id": uid})
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (*Account, error) {
	var a Account
	if err := r.col.FindOne(ctx, filter).Decode(&a); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// MemoryRepository keeps accounts in process memory.
type MemoryRepository struct {
	mu         sync.RWMutex
	byUID      map[string]*Account
	byUsername map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byUID: map[string]*Account{}, byUsername: map[string]string{}}
}

func (r *MemoryRepository) Create(ctx context.Context, a *Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a.Username = normalizeUsername(a.Username)
	if _, ok := r.byUsername[a.Username]; ok {
		return ErrDuplicateUsername
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	cp := *a
	r.byUID[a.UID] = &cp
	r.byUsername[a.Username] = a.UID
	return nil
}

func (r *MemoryRepository) GetByUsername(ctx context.Context, username string) (*Account, error) {
	r.mu.RLock()
	uid, ok := r.byUsername[normalizeUsername(username)]
	r.mu.RUnlock()
	if !ok {
		return nil, ctx.Err()
	}
	return r.GetByUID(ctx, uid)
}

func (r *MemoryRepository) GetByUID(ctx context.Context, uid string) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byUID[uid]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}
