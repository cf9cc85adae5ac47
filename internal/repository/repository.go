// Package repository provides typed CRUD and live queries over one document
// collection. Writes require an authenticated actor in the context and stamp
// the lifecycle fields of models.Entity.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/coderev/coderev/backend/go-services/internal/auth"
	"github.com/coderev/coderev/backend/go-services/internal/docstore"
	"github.com/coderev/coderev/backend/go-services/internal/models"
	"github.com/coderev/coderev/backend/go-services/internal/subscriptions"
	"github.com/coderev/coderev/backend/go-services/pkg/logger"
	"github.com/coderev/coderev/backend/go-services/pkg/metrics"
	"go.mongodb.org/mongo-driver/bson"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Fields is a partial update keyed by dotted path. A docstore.DeleteField
// value removes the key.
type Fields map[string]interface{}

// Handlers receive live query events. Nil callbacks are skipped.
type Handlers[T any] struct {
	Added    func(T)
	Modified func(T)
	Removed  func(T)
}

type Repository[T models.Document] struct {
	backend    docstore.Backend
	collection string
	newT       func() T
}

// New returns a repository for collection. newT allocates an empty T to
// decode into.
func New[T models.Document](b docstore.Backend, collection string, newT func() T) *Repository[T] {
	return &Repository[T]{backend: b, collection: collection, newT: newT}
}

func NewProfiles(b docstore.Backend) *Repository[*models.Profile] {
	return New(b, models.CollectionProfiles, func() *models.Profile { return &models.Profile{} })
}

func NewWorkspaces(b docstore.Backend) *Repository[*models.Workspace] {
	return New(b, models.CollectionWorkspaces, func() *models.Workspace { return &models.Workspace{} })
}

func NewCandidates(b docstore.Backend) *Repository[*models.CandidateReview] {
	return New(b, models.CollectionCandidates, func() *models.CandidateReview { return &models.CandidateReview{} })
}

func (r *Repository[T]) Collection() string { return r.collection }

func (r *Repository[T]) decode(raw bson.Raw) (T, error) {
	v := r.newT()
	if err := bson.Unmarshal(raw, v); err != nil {
		var zero T
		return zero, fmt.Errorf("decode %s: %w", r.collection, err)
	}
	return v, nil
}

// FindByUID returns the entity with uid. found is false when it does not exist.
func (r *Repository[T]) FindByUID(ctx context.Context, uid string) (T, bool, error) {
	var zero T
	raw, err := r.backend.Get(ctx, r.collection, uid)
	if errors.Is(err, docstore.ErrNotFound) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	v, err := r.decode(raw)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Create stores entity. A missing uid is generated; schemaVersion,
// createdAtUtc and createdBy are stamped only when absent.
func (r *Repository[T]) Create(ctx context.Context, entity T) (T, error) {
	actor, ok := auth.ActorFromContext(ctx)
	if !ok {
		return entity, ErrUnauthenticated
	}
	e := entity.GetEntity()
	if e.UID == "" {
		e.UID = models.NewUID()
	}
	if e.SchemaVersion == "" {
		e.SchemaVersion = models.SchemaVersion
	}
	if e.CreatedAtUTC == "" {
		e.CreatedAtUTC = models.NowUTC()
	}
	if e.CreatedBy == nil {
		ref := actor.Ref()
		e.CreatedBy = &ref
	}
	if err := r.backend.Set(ctx, r.collection, e.UID, entity); err != nil {
		return entity, fmt.Errorf("create %s/%s: %w", r.collection, e.UID, err)
	}
	return entity, nil
}

// Update replaces the stored entity after stamping updatedAtUtc and updatedBy.
func (r *Repository[T]) Update(ctx context.Context, entity T) error {
	actor, ok := auth.ActorFromContext(ctx)
	if !ok {
		return ErrUnauthenticated
	}
	e := entity.GetEntity()
	ref := actor.Ref()
	e.UpdatedBy = &ref
	e.UpdatedAtUTC = models.NowUTC()
	if err := r.backend.Set(ctx, r.collection, e.UID, entity); err != nil {
		return fmt.Errorf("update %s/%s: %w", r.collection, e.UID, err)
	}
	return nil
}

// UpdateFields writes only the given paths plus updatedAtUtc and updatedBy.
func (r *Repository[T]) UpdateFields(ctx context.Context, uid string, fields Fields) error {
	actor, ok := auth.ActorFromContext(ctx)
	if !ok {
		return ErrUnauthenticated
	}
	patch := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		patch[k] = v
	}
	patch["updatedAtUtc"] = models.NowUTC()
	patch["updatedBy"] = actor.Ref()
	if err := r.backend.Update(ctx, r.collection, uid, patch); err != nil {
		return fmt.Errorf("update fields %s/%s: %w", r.collection, uid, err)
	}
	return nil
}

// FindByFilter returns every entity matching q.
func (r *Repository[T]) FindByFilter(ctx context.Context, q docstore.Query) ([]T, error) {
	raws, err := r.backend.Find(ctx, r.collection, q)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		v, err := r.decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// DeleteByID removes the entity. Deleting a missing entity is not an error.
func (r *Repository[T]) DeleteByID(ctx context.Context, uid string) error {
	err := r.backend.Delete(ctx, r.collection, uid)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("delete %s/%s: %w", r.collection, uid, err)
	}
	return nil
}

// Subscribe opens a live query over q. The current matches arrive as Added
// before Subscribe returns. The returned handle must be registered with the
// session's subscriptions.Registry.
func (r *Repository[T]) Subscribe(ctx context.Context, q docstore.Query, h Handlers[T]) (subscriptions.Handle, error) {
	cancel, err := r.backend.Watch(ctx, r.collection, q, func(c docstore.Change) {
		metrics.LiveChanges.WithLabelValues(r.collection, string(c.Type)).Inc()
		v, err := r.fromChange(c)
		if err != nil {
			logger.Warnf("repository %s: dropping %s event for %s: %v", r.collection, c.Type, c.ID, err)
			return
		}
		var fn func(T)
		switch c.Type {
		case docstore.Added:
			fn = h.Added
		case docstore.Modified:
			fn = h.Modified
		case docstore.Removed:
			fn = h.Removed
		}
		if fn != nil {
			fn(v)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", r.collection, err)
	}
	return subscriptions.Handle(cancel), nil
}

func (r *Repository[T]) fromChange(c docstore.Change) (T, error) {
	if c.Doc == nil {
		v := r.newT()
		v.GetEntity().UID = c.ID
		return v, nil
	}
	return r.decode(c.Doc)
}
