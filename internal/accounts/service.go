// Package accounts provisions password logins on behalf of workspace
// members and authenticates them.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/coderev/coderev/backend/go-services/internal/auth"
	"github.com/coderev/coderev/backend/go-services/internal/models"
	"github.com/coderev/coderev/backend/go-services/pkg/logger"
	"github.com/coderev/coderev/backend/go-services/pkg/metrics"
	"golang.org/x/crypto/bcrypt"
)

const (
	FunctionGenerateAccount = "generateAccount"
	MinPasswordLength       = 6
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// GenerateAccountRequest is the payload of the generateAccount function.
type GenerateAccountRequest struct {
	Username     string             `json:"username"`
	Password     string             `json:"password"`
	Label        string             `json:"label"`
	WorkspaceUID string             `json:"workspaceUid"`
	CreatedBy    models.EmbeddedRef `json:"createdBy"`
}

type GenerateAccountResponse struct {
	Succeeded bool   `json:"succeeded"`
	Message   string `json:"message"`
}

// WorkspaceFinder looks up workspaces; satisfied by the workspace repository.
type WorkspaceFinder interface {
	FindByUID(ctx context.Context, uid string) (*models.Workspace, bool, error)
}

// Service encapsulates account provisioning
type Service struct {
	repo       Repository
	workspaces WorkspaceFinder
	cost       int
}

// NewService creates the service. When workspaces is non-nil the caller must
// be a collaborator on the workspace the account is generated for.
func NewService(r Repository, workspaces WorkspaceFinder) *Service {
	return &Service{repo: r, workspaces: workspaces, cost: bcrypt.DefaultCost}
}

func failed(msg string) GenerateAccountResponse {
	metrics.FunctionCalls.WithLabelValues(FunctionGenerateAccount, "rejected").Inc()
	return GenerateAccountResponse{Succeeded: false, Message: msg}
}

// GenerateAccount creates a login for req.Username. It fails closed: every
// failure, including a missing caller, is reported in the response rather
// than as an error.
func (s *Service) GenerateAccount(ctx context.Context, req GenerateAccountRequest) GenerateAccountResponse {
	caller, ok := auth.ActorFromContext(ctx)
	if !ok {
		return failed("No authentication info")
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		return failed("Username is required")
	}
	if _, err := mail.ParseAddress(username); err != nil {
		return failed("Username must be an email address")
	}
	if len(req.Password) < MinPasswordLength {
		return failed(fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	}
	if msg := s.checkWorkspace(ctx, caller, req.WorkspaceUID); msg != "" {
		return failed(msg)
	}

	createdBy := req.CreatedBy
	if createdBy.UID == "" {
		createdBy = caller.Ref()
	}

	logger.Infof("generating user: %s", username)
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		logger.Errorf("hash password for %s: %v", username, err)
		metrics.FunctionCalls.WithLabelValues(FunctionGenerateAccount, "error").Inc()
		return GenerateAccountResponse{Message: "Failed to generate account"}
	}
	a := &Account{
		UID:          models.NewUID(),
		Username:     username,
		DisplayName:  req.Label,
		Email:        username,
		PasswordHash: string(hash),
		Claims: map[string]string{
			ClaimAssignedWorkspace: req.WorkspaceUID,
			ClaimCreatedBy:         createdBy.UID,
		},
	}
	if err := s.repo.Create(ctx, a); err != nil {
		if errors.Is(err, ErrDuplicateUsername) {
			return failed("Username already exists")
		}
		logger.Errorf("create account %s: %v", username, err)
		metrics.FunctionCalls.WithLabelValues(FunctionGenerateAccount, "error").Inc()
		return GenerateAccountResponse{Message: "Failed to generate account"}
	}

	logger.Infof("generated user: %s (requested by %s (%s))", username, createdBy.Name, createdBy.UID)
	metrics.FunctionCalls.WithLabelValues(FunctionGenerateAccount, "succeeded").Inc()
	return GenerateAccountResponse{Succeeded: true, Message: "Completed"}
}

// checkWorkspace returns a rejection message, or "" when the caller may
// generate accounts for the workspace.
func (s *Service) checkWorkspace(ctx context.Context, caller auth.Actor, uid string) string {
	if s.workspaces == nil || uid == "" {
		return ""
	}
	w, found, err := s.workspaces.FindByUID(ctx, uid)
	if err != nil {
		logger.Errorf("workspace lookup %s: %v", uid, err)
		return "Workspace lookup failed"
	}
	if !found {
		return "Workspace not found"
	}
	if _, ok := w.RoleOf(caller.UID); !ok {
		return "Not a collaborator on the workspace"
	}
	return ""
}

// Authenticate checks a username and password against the stored hash.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Account, error) {
	a, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return a, nil
}

// GetByUID returns the account or nil.
func (s *Service) GetByUID(ctx context.Context, uid string) (*Account, error) {
	return s.repo.GetByUID(ctx, uid)
}
