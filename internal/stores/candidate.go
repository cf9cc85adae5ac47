package stores

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/coderev/coderev/backend/go-services/internal/docstore"
	"github.com/coderev/coderev/backend/go-services/internal/merge"
	"github.com/coderev/coderev/backend/go-services/internal/models"
	"github.com/coderev/coderev/backend/go-services/internal/repository"
	"github.com/coderev/coderev/backend/go-services/internal/subscriptions"
	"github.com/coderev/coderev/backend/go-services/pkg/logger"
)

// CandidateStore holds the candidate reviews of the open workspace, the open
// review, and the reviews assigned to the current user.
type CandidateStore struct {
	app        *AppStore
	workspaces *WorkspaceStore
	repo       *repository.Repository[*models.CandidateReview]
	subs       *subscriptions.Registry
	notify     Notifier

	// loadMu serializes subscribing so a live query is opened once per key.
	loadMu sync.Mutex

	mu      sync.RWMutex
	list    []*models.CandidateReview
	current *models.CandidateReview
	mine    []*models.CandidateReview
}

func NewCandidateStore(
	app *AppStore,
	workspaces *WorkspaceStore,
	repo *repository.Repository[*models.CandidateReview],
	subs *subscriptions.Registry,
	n Notifier,
) *CandidateStore {
	return &CandidateStore{app: app, workspaces: workspaces, repo: repo, subs: subs, notify: notifierOrNop(n)}
}

func copyAll(in []*models.CandidateReview) []*models.CandidateReview {
	out := make([]*models.CandidateReview, len(in))
	for i, c := range in {
		cp := *c
		out[i] = &cp
	}
	return out
}

func (s *CandidateStore) Candidates() []*models.CandidateReview {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyAll(s.list)
}

func (s *CandidateStore) CandidateWorkspaces() []*models.CandidateReview {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyAll(s.mine)
}

// Candidate returns a copy of the open review, or nil.
func (s *CandidateStore) Candidate() *models.CandidateReview {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	c := *s.current
	return &c
}

// canView reports whether the current user is the review's candidate or a
// collaborator on its workspace.
func (s *CandidateStore) canView(ctx context.Context, c *models.CandidateReview) (bool, error) {
	p := s.app.Profile()
	if p == nil {
		return false, ErrLoginRequired
	}
	if c.Email != "" && strings.EqualFold(c.Email, p.Email) {
		return true, nil
	}
	w := s.workspaces.Workspace()
	if w == nil || w.UID != c.WorkspaceUID {
		var found bool
		var err error
		w, found, err = s.workspaces.workspaces.FindByUID(ctx, c.WorkspaceUID)
		if err != nil || !found {
			return false, err
		}
	}
	_, ok := w.RoleOf(p.UID)
	return ok, nil
}

// EnsureCandidate opens the review uid.
func (s *CandidateStore) EnsureCandidate(ctx context.Context, uid string) error {
	if uid == "" {
		return nil
	}
	s.mu.Lock()
	for _, c := range s.list {
		if c.UID == uid {
			cp := *c
			s.current = &cp
			s.mu.Unlock()
			s.notify.Notify(Event{Topic: TopicCandidate, Type: "set", Data: &cp})
			return nil
		}
	}
	s.mu.Unlock()

	c, found, err := s.repo.FindByUID(ctx, uid)
	if err != nil {
		logger.Errorf("an error occurred while loading the candidate %s: %v", uid, err)
		return err
	}
	if !found {
		return fmt.Errorf("candidate %s: %w", uid, ErrNotFound)
	}
	ok, err := s.canView(ctx, c)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("candidate %s: %w", uid, ErrForbidden)
	}
	s.mu.Lock()
	s.current = c
	s.mu.Unlock()
	s.notify.Notify(Event{Topic: TopicCandidate, Type: "set", Data: c})
	return nil
}

// LoadCandidates subscribes to the reviews of a workspace, newest first, under
// "candidates.<workspaceUid>". workspaceUID defaults to the open workspace;
// candidateUID and email narrow the query. Without a workspace it is a no-op.
func (s *CandidateStore) LoadCandidates(ctx context.Context, candidateUID, email, workspaceUID string) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	open := s.workspaces.Workspace()
	if workspaceUID == "" {
		if open == nil {
			return nil
		}
		workspaceUID = open.UID
	}
	p := s.app.Profile()
	if p == nil {
		return ErrLoginRequired
	}
	collaborator := false
	if open != nil && open.UID == workspaceUID {
		_, collaborator = open.RoleOf(p.UID)
	}
	if !collaborator && (email == "" || !strings.EqualFold(email, p.Email)) {
		return fmt.Errorf("candidates of %s: %w", workspaceUID, ErrForbidden)
	}

	key := "candidates." + workspaceUID
	if s.subs.Has(key) {
		return nil
	}

	q := docstore.Query{
		Where: []docstore.Predicate{docstore.Where("workspaceUid", docstore.OpEq, workspaceUID)},
		Order: &docstore.OrderBy{Field: "createdAtUtc", Desc: true},
	}
	if candidateUID != "" {
		q.Where = append(q.Where, docstore.Where("uid", docstore.OpEq, candidateUID))
	}
	if email != "" {
		q.Where = append(q.Where, docstore.Where("email", docstore.OpEq, email))
	}
	logger.Debugf("loading candidates for workspace: %s", workspaceUID)

	s.mu.Lock()
	s.list = s.list[:0]
	s.mu.Unlock()

	h, err := s.repo.Subscribe(ctx, q, repository.Handlers[*models.CandidateReview]{
		Added: func(c *models.CandidateReview) {
			s.mu.Lock()
			merge.FindAndSplice(&s.list, c, true)
			s.mu.Unlock()
			s.notify.Notify(Event{Topic: TopicCandidates, Type: string(docstore.Added), Data: c})
		},
		Modified: func(c *models.CandidateReview) {
			s.mu.Lock()
			merge.FindAndSplice(&s.list, c, true)
			var changed []string
			if s.current != nil {
				changed = merge.FindAndMerge(s.current, c)
			}
			s.mu.Unlock()
			s.notify.Notify(Event{Topic: TopicCandidates, Type: string(docstore.Modified), Data: c})
			if len(changed) > 0 {
				s.notify.Notify(Event{Topic: TopicCandidate, Type: string(docstore.Modified), Data: changed})
			}
		},
		Removed: func(c *models.CandidateReview) {
			s.mu.Lock()
			merge.FindAndSplice(&s.list, c, false)
			s.mu.Unlock()
			s.notify.Notify(Event{Topic: TopicCandidates, Type: string(docstore.Removed), Data: c})
		},
	})
	if err != nil {
		return err
	}
	register(s.subs, key, h)
	return nil
}

// LoadCandidateWorkspaces subscribes to the reviews assigned to email under
// "candidates.<email>".
func (s *CandidateStore) LoadCandidateWorkspaces(ctx context.Context, email string) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	p := s.app.Profile()
	if p == nil {
		return ErrLoginRequired
	}
	if !strings.EqualFold(email, p.Email) {
		return fmt.Errorf("reviews of %s: %w", email, ErrForbidden)
	}
	key := "candidates." + email
	if s.subs.Has(key) {
		return nil
	}
	logger.Debugf("loading workspaces for candidate: %s", email)

	s.mu.Lock()
	s.mine = s.mine[:0]
	s.mu.Unlock()

	h, err := s.repo.Subscribe(ctx, docstore.Query{
		Where: []docstore.Predicate{docstore.Where("email", docstore.OpEq, email)},
		Order: &docstore.OrderBy{Field: "createdAtUtc", Desc: true},
	}, repository.Handlers[*models.CandidateReview]{
		Added: func(c *models.CandidateReview) {
			s.mu.Lock()
			merge.FindAndSplice(&s.mine, c, true)
			s.mu.Unlock()
			s.notify.Notify(Event{Topic: TopicCandidateWorkspaces, Type: string(docstore.Added), Data: c})
		},
		Modified: func(c *models.CandidateReview) {
			s.mu.Lock()
			merge.FindAndSplice(&s.mine, c, true)
			s.mu.Unlock()
			s.notify.Notify(Event{Topic: TopicCandidateWorkspaces, Type: string(docstore.Modified), Data: c})
		},
		Removed: func(c *models.CandidateReview) {
			s.mu.Lock()
			merge.FindAndSplice(&s.mine, c, false)
			s.mu.Unlock()
			s.notify.Notify(Event{Topic: TopicCandidateWorkspaces, Type: string(docstore.Removed), Data: c})
		},
	})
	if err != nil {
		return err
	}
	register(s.subs, key, h)
	return nil
}

// CreateCandidate assigns a review of the open workspace to email. The
// workspace's sources and name are copied onto the review.
func (s *CandidateStore) CreateCandidate(ctx context.Context, email, label string) (*models.CandidateReview, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	w, err := s.workspaces.requireRole(models.RoleOwner, models.RoleEditor)
	if err != nil {
		return nil, err
	}
	name := label
	if name == "" {
		name = email
	}
	return s.repo.Create(ctx, &models.CandidateReview{
		Entity:        models.Entity{UID: models.NewUID(), Name: name},
		WorkspaceUID:  w.UID,
		WorkspaceName: w.Name,
		Email:         email,
		Label:         label,
		Sources:       maps.Clone(w.Sources),
		Comments:      map[string]models.ReviewComment{},
	})
}

func (s *CandidateStore) loadVisible(ctx context.Context, uid string) (*models.CandidateReview, error) {
	c, found, err := s.repo.FindByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("candidate %s: %w", uid, ErrNotFound)
	}
	ok, err := s.canView(ctx, c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("candidate %s: %w", uid, ErrForbidden)
	}
	return c, nil
}

// AddComment adds a comment by the current user to a review. A reply must
// reference an existing comment and a source comment an existing source.
func (s *CandidateStore) AddComment(ctx context.Context, candidateUID string, cm models.ReviewComment) (*models.ReviewComment, error) {
	if strings.TrimSpace(cm.Text) == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidInput)
	}
	c, err := s.loadVisible(ctx, candidateUID)
	if err != nil {
		return nil, err
	}
	switch cm.ContextType {
	case models.ContextSource:
		if _, ok := c.Sources[cm.ContextUID]; !ok {
			return nil, fmt.Errorf("%w: unknown source %q", ErrInvalidInput, cm.ContextUID)
		}
		if len(cm.SourceRange) != 0 && (len(cm.SourceRange) != 2 || cm.SourceRange[0] > cm.SourceRange[1]) {
			return nil, fmt.Errorf("%w: source range must be [from, to]", ErrInvalidInput)
		}
	case models.ContextComment:
		if _, ok := c.Comments[cm.ContextUID]; !ok {
			return nil, fmt.Errorf("%w: unknown comment %q", ErrInvalidInput, cm.ContextUID)
		}
	default:
		return nil, fmt.Errorf("%w: context type %q", ErrInvalidInput, cm.ContextType)
	}

	cm.UID = models.NewCommentUID()
	cm.Author = s.app.CurrentUserRef()
	if err := s.repo.UpdateFields(ctx, candidateUID, repository.Fields{
		"comments." + cm.UID: cm,
	}); err != nil {
		return nil, err
	}
	return &cm, nil
}

// RemoveComment deletes one of the current user's comments.
func (s *CandidateStore) RemoveComment(ctx context.Context, candidateUID, commentUID string) error {
	c, err := s.loadVisible(ctx, candidateUID)
	if err != nil {
		return err
	}
	cm, ok := c.Comments[commentUID]
	if !ok {
		return fmt.Errorf("comment %s: %w", commentUID, ErrNotFound)
	}
	if p := s.app.Profile(); p == nil || cm.Author.UID != p.UID {
		return fmt.Errorf("comment %s: %w", commentUID, ErrForbidden)
	}
	return s.repo.UpdateFields(ctx, candidateUID, repository.Fields{
		"comments." + commentUID: docstore.DeleteField,
	})
}
