package stores

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/coderev/coderev/backend/go-services/internal/docstore"
	"github.com/coderev/coderev/backend/go-services/internal/merge"
	"github.com/coderev/coderev/backend/go-services/internal/models"
	"github.com/coderev/coderev/backend/go-services/internal/repository"
	"github.com/coderev/coderev/backend/go-services/internal/storage"
	"github.com/coderev/coderev/backend/go-services/internal/subscriptions"
	"github.com/coderev/coderev/backend/go-services/pkg/logger"
)

// WorkspaceStore holds the workspaces the user collaborates on and the open
// workspace.
type WorkspaceStore struct {
	app        *AppStore
	workspaces *repository.Repository[*models.Workspace]
	candidates *repository.Repository[*models.CandidateReview]
	files      *storage.SourceStorage
	subs       *subscriptions.Registry
	notify     Notifier

	// loadMu serializes subscribing so a live query is opened once per key.
	loadMu sync.Mutex

	mu      sync.RWMutex
	loaded  bool
	list    []*models.Workspace
	current *models.Workspace
}

func NewWorkspaceStore(
	app *AppStore,
	workspaces *repository.Repository[*models.Workspace],
	candidates *repository.Repository[*models.CandidateReview],
	files *storage.SourceStorage,
	subs *subscriptions.Registry,
	n Notifier,
) *WorkspaceStore {
	return &WorkspaceStore{
		app:        app,
		workspaces: workspaces,
		candidates: candidates,
		files:      files,
		subs:       subs,
		notify:     notifierOrNop(n),
	}
}

// Reset forgets loaded workspaces and the open workspace.
func (s *WorkspaceStore) Reset() {
	s.mu.Lock()
	s.loaded = false
	s.list = nil
	s.current = nil
	s.mu.Unlock()
	s.notify.Notify(Event{Topic: TopicWorkspaces, Type: "reset"})
}

// Workspaces returns the loaded workspaces in delivery order.
func (s *WorkspaceStore) Workspaces() []*models.Workspace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Workspace, len(s.list))
	for i, w := range s.list {
		c := *w
		out[i] = &c
	}
	return out
}

// Workspace returns a copy of the open workspace, or nil.
func (s *WorkspaceStore) Workspace() *models.Workspace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	w := *s.current
	return &w
}

// EnsureWorkspace opens the workspace uid. Switching away from another
// workspace unsubscribes that workspace's candidates.
func (s *WorkspaceStore) EnsureWorkspace(ctx context.Context, uid string) error {
	p := s.app.Profile()
	if p == nil {
		return ErrLoginRequired
	}
	s.mu.RLock()
	var prev string
	if s.current != nil {
		prev = s.current.UID
	}
	s.mu.RUnlock()
	if prev == uid {
		return nil
	}
	if prev != "" {
		s.subs.Unsubscribe("candidates." + prev)
	}
	logger.Debugf("ensuring workspace: %s", uid)

	s.mu.Lock()
	for _, w := range s.list {
		if w.UID == uid {
			c := *w
			s.current = &c
			s.mu.Unlock()
			s.notify.Notify(Event{Topic: TopicWorkspace, Type: "set", Data: &c})
			return nil
		}
	}
	s.mu.Unlock()

	w, found, err := s.workspaces.FindByUID(ctx, uid)
	if err != nil {
		logger.Errorf("an error occurred while loading the workspace %s: %v", uid, err)
		return err
	}
	if !found {
		return fmt.Errorf("workspace %s: %w", uid, ErrNotFound)
	}
	if _, ok := w.RoleOf(p.UID); !ok {
		return fmt.Errorf("workspace %s: %w", uid, ErrForbidden)
	}
	s.mu.Lock()
	s.current = w
	s.mu.Unlock()
	s.notify.Notify(Event{Topic: TopicWorkspace, Type: "set", Data: w})
	return nil
}

// LoadWorkspaces subscribes to every workspace where the current profile is a
// collaborator, under "workspaces.<profileUid>".
func (s *WorkspaceStore) LoadWorkspaces(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}
	p := s.app.Profile()
	if p == nil {
		return ErrLoginRequired
	}
	key := "workspaces." + p.UID
	if s.subs.Has(key) {
		return nil
	}

	s.mu.Lock()
	s.list = s.list[:0]
	s.mu.Unlock()

	h, err := s.workspaces.Subscribe(ctx, docstore.Query{
		Where: []docstore.Predicate{docstore.Where("collaborators."+p.UID, docstore.OpNe, "")},
	}, repository.Handlers[*models.Workspace]{
		Added:    s.onAdded,
		Modified: s.onModified,
		Removed:  s.onRemoved,
	})
	if err != nil {
		return err
	}
	register(s.subs, key, h)

	s.mu.Lock()
	s.loaded = true
	s.mu.Unlock()
	return nil
}

func (s *WorkspaceStore) onAdded(w *models.Workspace) {
	s.mu.Lock()
	merge.FindAndSplice(&s.list, w, true)
	s.mu.Unlock()
	s.notify.Notify(Event{Topic: TopicWorkspaces, Type: string(docstore.Added), Data: w})
}

func (s *WorkspaceStore) onModified(w *models.Workspace) {
	s.mu.Lock()
	merge.FindAndSplice(&s.list, w, true)
	var changed []string
	if s.current != nil {
		changed = merge.FindAndMerge(s.current, w)
	}
	s.mu.Unlock()
	s.notify.Notify(Event{Topic: TopicWorkspaces, Type: string(docstore.Modified), Data: w})
	if len(changed) > 0 {
		s.notify.Notify(Event{Topic: TopicWorkspace, Type: string(docstore.Modified), Data: changed})
	}
}

func (s *WorkspaceStore) onRemoved(w *models.Workspace) {
	s.mu.Lock()
	merge.FindAndSplice(&s.list, w, false)
	s.mu.Unlock()
	s.notify.Notify(Event{Topic: TopicWorkspaces, Type: string(docstore.Removed), Data: w})
}

// CreateWorkspace creates a workspace owned by the current user.
func (s *WorkspaceStore) CreateWorkspace(ctx context.Context, name, description string) (*models.Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	owner, err := s.app.CurrentCollaboratorRef()
	if err != nil {
		return nil, err
	}
	return s.workspaces.Create(ctx, &models.Workspace{
		Entity:        models.Entity{UID: models.NewUID(), Name: name},
		Description:   description,
		Collaborators: map[string]models.CollaboratorRef{owner.UID: owner},
		Sources:       map[string]models.MediaRef{},
		Ratings:       map[string]models.Rating{},
	})
}

// requireRole returns the open workspace when the current user holds one of
// roles on it.
func (s *WorkspaceStore) requireRole(roles ...models.CollaboratorRole) (*models.Workspace, error) {
	w := s.Workspace()
	if w == nil {
		return nil, ErrNoWorkspace
	}
	p := s.app.Profile()
	if p == nil {
		return nil, ErrLoginRequired
	}
	role, ok := w.RoleOf(p.UID)
	if !ok {
		return nil, ErrForbidden
	}
	for _, r := range roles {
		if r == role {
			return w, nil
		}
	}
	return nil, ErrForbidden
}

// AddCollaborator invites the profile profileUID to the open workspace.
func (s *WorkspaceStore) AddCollaborator(ctx context.Context, profileUID string, role models.CollaboratorRole) (*models.CollaboratorRef, error) {
	w, err := s.requireRole(models.RoleOwner)
	if err != nil {
		return nil, err
	}
	switch role {
	case "", models.RoleOwner, models.RoleEditor, models.RoleReviewer:
	default:
		return nil, fmt.Errorf("%w: role %q", ErrInvalidInput, role)
	}
	p, found, err := s.app.profiles.FindByUID(ctx, profileUID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("profile %s: %w", profileUID, ErrNotFound)
	}
	ref := s.app.ProfileToCollaboratorRef(p, role)
	if err := s.workspaces.UpdateFields(ctx, w.UID, repository.Fields{
		"collaborators." + p.UID: ref,
	}); err != nil {
		return nil, err
	}
	return &ref, nil
}

// AddSource uploads a file and records it on the open workspace.
func (s *WorkspaceStore) AddSource(ctx context.Context, fileName string, content []byte) (*models.MediaRef, error) {
	w, err := s.requireRole(models.RoleOwner, models.RoleEditor)
	if err != nil {
		return nil, err
	}
	result, err := s.files.AddSourceFile(ctx, w.UID, fileName, content, nil, "")
	if err != nil {
		return nil, err
	}
	logger.Infof("added file %s to workspace %s", result.Path, w.UID)

	ref := models.MediaRef{
		MinimalRef: models.MinimalRef{UID: result.UID, AddedUTC: models.NowUTC()},
		Type:       models.MediaDocument,
		Path:       result.Path,
		URL:        result.URL,
		Ext:        models.Ext(fileName),
		Name:       fileName,
		EntityType: "document",
		Size:       result.Size,
	}
	if err := s.workspaces.UpdateFields(ctx, w.UID, repository.Fields{
		"sources." + result.UID: ref,
	}); err != nil {
		return nil, err
	}
	return &ref, nil
}

// RemoveSource removes the source from the open workspace. The stored object
// is kept: identical content may be referenced from candidate reviews.
func (s *WorkspaceStore) RemoveSource(ctx context.Context, sourceUID string) error {
	w, err := s.requireRole(models.RoleOwner, models.RoleEditor)
	if err != nil {
		return err
	}
	logger.Infof("removing source %s from workspace %s", sourceUID, w.UID)
	return s.workspaces.UpdateFields(ctx, w.UID, repository.Fields{
		"sources." + sourceUID: docstore.DeleteField,
	})
}

// RateCandidate records the current user's rating of a candidate on the open
// workspace.
func (s *WorkspaceStore) RateCandidate(ctx context.Context, candidateUID string, r models.Rating) (*models.Rating, error) {
	w, err := s.requireRole(models.RoleOwner, models.RoleEditor, models.RoleReviewer)
	if err != nil {
		return nil, err
	}
	if r.Overall < 0 {
		return nil, fmt.Errorf("%w: overall must not be negative", ErrInvalidInput)
	}
	r.Author = s.app.CurrentUserRef()
	if err := s.workspaces.UpdateFields(ctx, w.UID, repository.Fields{
		"ratings." + candidateUID: r,
	}); err != nil {
		return nil, err
	}
	return &r, nil
}

// DeleteWorkspace deletes the workspace's candidate reviews, then its files,
// then the workspace. A file that cannot be deleted is logged and skipped.
func (s *WorkspaceStore) DeleteWorkspace(ctx context.Context, uid string, files []models.MediaRef) error {
	p := s.app.Profile()
	if p == nil {
		return ErrLoginRequired
	}
	w, found, err := s.workspaces.FindByUID(ctx, uid)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("workspace %s: %w", uid, ErrNotFound)
	}
	if role, _ := w.RoleOf(p.UID); role != models.RoleOwner {
		return fmt.Errorf("workspace %s: %w", uid, ErrForbidden)
	}

	candidates, err := s.candidates.FindByFilter(ctx, docstore.Query{
		Where: []docstore.Predicate{docstore.Where("workspaceUid", docstore.OpEq, uid)},
	})
	if err != nil {
		return err
	}
	for _, c := range candidates {
		if err := s.candidates.DeleteByID(ctx, c.UID); err != nil {
			return err
		}
	}

	for _, f := range files {
		if f.Path == "" {
			continue
		}
		s.files.DeleteFile(ctx, f.Path)
	}

	if err := s.workspaces.DeleteByID(ctx, uid); err != nil {
		return err
	}

	s.mu.Lock()
	closed := s.current != nil && s.current.UID == uid
	if closed {
		s.current = nil
	}
	s.mu.Unlock()
	if closed {
		s.subs.Unsubscribe("candidates." + uid)
		s.notify.Notify(Event{Topic: TopicWorkspace, Type: "cleared"})
	}
	return nil
}
