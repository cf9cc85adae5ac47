// Package auth carries the authenticated caller through request contexts.
package auth

import (
	"context"

	"github.com/coderev/coderev/backend/go-services/internal/models"
)

// Actor is the authenticated user performing an operation.
type Actor struct {
	UID    string
	Name   string
	Email  string
	Claims map[string]interface{}
}

type actorKey struct{}

// WithActor returns a copy of ctx carrying a.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext returns the actor stored in ctx. ok is false when the
// context is unauthenticated.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	if !ok || a.UID == "" {
		return Actor{}, false
	}
	return a, true
}

// FromClaims builds an actor from verified token claims ("sub", "name",
// "preferred_username", "email").
func FromClaims(claims map[string]interface{}) (Actor, bool) {
	str := func(k string) string {
		s, _ := claims[k].(string)
		return s
	}
	a := Actor{UID: str("sub"), Name: str("name"), Email: str("email"), Claims: claims}
	if a.Name == "" {
		a.Name = str("preferred_username")
	}
	if a.Name == "" {
		a.Name = a.Email
	}
	return a, a.UID != ""
}

// Ref is the embedded reference written into createdBy and updatedBy.
func (a Actor) Ref() models.EmbeddedRef {
	return models.EmbeddedRef{
		MinimalRef: models.MinimalRef{UID: a.UID, AddedUTC: models.NowUTC()},
		Name:       a.Name,
		EntityType: models.CollectionProfiles,
	}
}

// Claim returns the string claim k, or "".
func (a Actor) Claim(k string) string {
	s, _ := a.Claims[k].(string)
	return s
}
