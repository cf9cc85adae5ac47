package stores

import (
	"context"
	"fmt"
	"sync"

	"github.com/coderev/coderev/backend/go-services/internal/auth"
	"github.com/coderev/coderev/backend/go-services/internal/docstore"
	"github.com/coderev/coderev/backend/go-services/internal/models"
	"github.com/coderev/coderev/backend/go-services/internal/repository"
	"github.com/coderev/coderev/backend/go-services/internal/subscriptions"
	"github.com/coderev/coderev/backend/go-services/pkg/logger"
)

// AppStore holds the signed-in user and their live profile.
type AppStore struct {
	profiles *repository.Repository[*models.Profile]
	subs     *subscriptions.Registry
	notify   Notifier

	mu         sync.RWMutex
	user       *auth.Actor
	profile    *models.Profile
	subscribed bool
}

func NewAppStore(profiles *repository.Repository[*models.Profile], subs *subscriptions.Registry, n Notifier) *AppStore {
	return &AppStore{profiles: profiles, subs: subs, notify: notifierOrNop(n)}
}

// SetUser loads or creates the profile for user and subscribes to it under
// "profile.<uid>". When the profile cannot be loaded the user is cleared and
// ErrLoginRequired is returned.
func (s *AppStore) SetUser(ctx context.Context, user auth.Actor) error {
	logger.Infof("setting user: %s", user.Email)
	s.mu.Lock()
	s.user = &user
	started := s.subscribed
	s.mu.Unlock()
	if started {
		return nil
	}

	ctx = auth.WithActor(ctx, user)
	p, err := s.findOrCreateProfile(ctx, user)
	if err != nil {
		logger.Errorf("error retrieving profile for %s: %v", user.UID, err)
		s.ClearUser()
		return fmt.Errorf("%w: %v", ErrLoginRequired, err)
	}

	s.mu.Lock()
	s.profile = p
	s.mu.Unlock()
	s.notify.Notify(Event{Topic: TopicProfile, Type: "set", Data: p})

	if err := s.startSubscription(ctx, p.UID); err != nil {
		logger.Errorf("profile subscription for %s: %v", p.UID, err)
		s.ClearUser()
		return fmt.Errorf("%w: %v", ErrLoginRequired, err)
	}
	return nil
}

func (s *AppStore) findOrCreateProfile(ctx context.Context, user auth.Actor) (*models.Profile, error) {
	p, found, err := s.profiles.FindByUID(ctx, user.UID)
	if err != nil {
		return nil, err
	}
	if found {
		logger.Debugf("retrieved profile for user: %s", user.UID)
		return p, nil
	}

	name := user.Name
	if name == "" {
		name = "User " + user.UID
	}
	email := user.Email
	if email == "" {
		email = "user." + user.UID + "@example.com"
	}
	logger.Infof("creating profile for user: %s", email)
	now := models.NowUTC()
	return s.profiles.Create(ctx, &models.Profile{
		Entity: models.Entity{
			UID:          user.UID,
			Name:         name,
			CreatedAtUTC: now,
			CreatedBy: &models.EmbeddedRef{
				MinimalRef: models.MinimalRef{UID: user.UID, AddedUTC: now},
				Name:       name,
				EntityType: "user",
			},
		},
		Email: email,
	})
}

func (s *AppStore) startSubscription(ctx context.Context, uid string) error {
	key := "profile." + uid
	if s.subs.Has(key) {
		s.mu.Lock()
		s.subscribed = true
		s.mu.Unlock()
		return nil
	}
	logger.Debugf("subscribing profile for uid: %s", uid)
	h, err := s.profiles.Subscribe(ctx, docstore.Query{
		Where: []docstore.Predicate{docstore.Where("uid", docstore.OpEq, uid)},
	}, repository.Handlers[*models.Profile]{
		Added:    s.replaceProfile,
		Modified: s.replaceProfile,
		Removed: func(*models.Profile) {
			// the next SetUser recreates the profile and subscribes again
			s.subs.Unsubscribe(key)
			s.ClearUser()
			s.notify.Notify(Event{Topic: TopicSession, Type: "loginRequired"})
		},
	})
	if err != nil {
		return err
	}
	register(s.subs, key, h)
	s.mu.Lock()
	s.subscribed = true
	s.mu.Unlock()
	return nil
}

func (s *AppStore) replaceProfile(p *models.Profile) {
	s.mu.Lock()
	s.profile = p
	s.mu.Unlock()
	s.notify.Notify(Event{Topic: TopicProfile, Type: "modified", Data: p})
}

// ClearUser forgets the user and profile.
func (s *AppStore) ClearUser() {
	s.mu.Lock()
	s.user = nil
	s.profile = nil
	s.subscribed = false
	s.mu.Unlock()
	s.notify.Notify(Event{Topic: TopicProfile, Type: "cleared"})
}

// User returns the signed-in user.
func (s *AppStore) User() (auth.Actor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return auth.Actor{}, false
	}
	return *s.user, true
}

// Profile returns a copy of the current profile, or nil.
func (s *AppStore) Profile() *models.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return nil
	}
	p := *s.profile
	return &p
}

// CurrentUserRef is an embedded reference to the current profile. uid and
// name are empty when no profile is loaded.
func (s *AppStore) CurrentUserRef() models.EmbeddedRef {
	if p := s.Profile(); p != nil {
		return p.Ref("profile")
	}
	return models.EmbeddedRef{
		MinimalRef: models.MinimalRef{AddedUTC: models.NowUTC()},
		EntityType: "profile",
	}
}

// ProfileToCollaboratorRef converts a profile to a workspace membership.
// The role defaults to editor and the ref is pending until the profile is
// activated.
func (s *AppStore) ProfileToCollaboratorRef(p *models.Profile, role models.CollaboratorRole) models.CollaboratorRef {
	if role == "" {
		role = models.RoleEditor
	}
	return models.CollaboratorRef{
		EmbeddedRef: p.Ref("user"),
		Pending:     p.ActivatedUTC == "",
		Role:        role,
	}
}

// CurrentCollaboratorRef is the owner membership for the current profile.
func (s *AppStore) CurrentCollaboratorRef() (models.CollaboratorRef, error) {
	p := s.Profile()
	if p == nil {
		return models.CollaboratorRef{}, ErrLoginRequired
	}
	return s.ProfileToCollaboratorRef(p, models.RoleOwner), nil
}

// UpdateNotificationOptions records the user's email preferences.
func (s *AppStore) UpdateNotificationOptions(ctx context.Context, receiveEmails, receiveFeedbackRequests bool) error {
	p := s.Profile()
	if p == nil {
		return ErrLoginRequired
	}
	now := models.NowUTC()
	emails := &models.BooleanRecord{Active: receiveEmails, UpdatedUTC: now}
	feedback := &models.BooleanRecord{Active: receiveFeedbackRequests, UpdatedUTC: now}

	s.mu.Lock()
	if s.profile != nil && s.profile.UID == p.UID {
		s.profile.ReceiveEmails = emails
		s.profile.ReceiveFeedbackRequests = feedback
	}
	s.mu.Unlock()

	return s.profiles.UpdateFields(ctx, p.UID, repository.Fields{
		"receiveEmails":           emails,
		"receiveFeedbackRequests": feedback,
	})
}
