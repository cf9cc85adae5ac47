package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Service wraps repository operations with business logic
type Service struct {
	repo Repository
}

func NewService(r Repository) *Service { return &Service{repo: r} }

// CreateSession stores s as a new refresh session and returns the refresh
// token. ID, RefreshToken and ExpiresAt are assigned here.
func (s *Service) CreateSession(ctx context.Context, sess *Session, ttl time.Duration) (string, error) {
	if sess.Sub == "" {
		return "", errors.New("session subject required")
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	sess.ID = uuid.NewString()
	sess.RefreshToken = hex.EncodeToString(b)
	sess.ExpiresAt = time.Now().UTC().Add(ttl)
	if err := s.repo.Create(ctx, sess); err != nil {
		return "", err
	}
	return sess.RefreshToken, nil
}

// ValidateRefresh returns the session if refresh token is valid and not expired
func (s *Service) ValidateRefresh(ctx context.Context, refresh string) (*Session, error) {
	sess, err := s.repo.GetByRefresh(ctx, refresh)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	if sess.expired() {
		_ = s.repo.DeleteByRefresh(ctx, refresh)
		return nil, nil
	}
	return sess, nil
}

func (s *Service) DeleteRefresh(ctx context.Context, refresh string) error {
	return s.repo.DeleteByRefresh(ctx, refresh)
}
