package accounts

import (
	"context"
	"errors"
	"testing"

	"github.com/coderev/coderev/backend/go-services/internal/auth"
	"github.com/coderev/coderev/backend/go-services/internal/models"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeWorkspaces struct {
	byUID map[string]*models.Workspace
	err   error
}

func (f *fakeWorkspaces) FindByUID(ctx context.Context, uid string) (*models.Workspace, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	w, ok := f.byUID[uid]
	return w, ok, nil
}

var owner = auth.Actor{UID: "ada", Name: "Ada", Email: "ada@example.com"}

func newService(ws WorkspaceFinder) (*Service, *MemoryRepository) {
	repo := NewMemoryRepository()
	svc := NewService(repo, ws)
	svc.cost = bcrypt.MinCost
	return svc, repo
}

func request() GenerateAccountRequest {
	return GenerateAccountRequest{
		Username:     "Cand@Example.com",
		Password:     "s3cret!",
		Label:        "Candidate 1",
		WorkspaceUID: "w1",
		CreatedBy:    owner.Ref(),
	}
}

func TestGenerateAccount_NoAuth(t *testing.T) {
	svc, repo := newService(nil)
	resp := svc.GenerateAccount(context.Background(), request())
	require.Equal(t, GenerateAccountResponse{Succeeded: false, Message: "No authentication info"}, resp)

	a, err := repo.GetByUsername(context.Background(), "cand@example.com")
	require.NoError(t, err)
	require.Nil(t, a)
}

func TestGenerateAccount_Completed(t *testing.T) {
	svc, repo := newService(nil)
	ctx := auth.WithActor(context.Background(), owner)

	resp := svc.GenerateAccount(ctx, request())
	require.Equal(t, GenerateAccountResponse{Succeeded: true, Message: "Completed"}, resp)

	a, err := repo.GetByUsername(ctx, "cand@example.com")
	require.NoError(t, err)
	require.NotNil(t, a)
	require.Equal(t, "Candidate 1", a.DisplayName)
	require.Equal(t, "cand@example.com", a.Email)
	require.Equal(t, "w1", a.Claims[ClaimAssignedWorkspace])
	require.Equal(t, "ada", a.Claims[ClaimCreatedBy])
	require.NotEqual(t, "s3cret!", a.PasswordHash)

	got, err := svc.Authenticate(ctx, "cand@example.com", "s3cret!")
	require.NoError(t, err)
	require.Equal(t, a.UID, got.UID)
	_, err = svc.Authenticate(ctx, "cand@example.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "nobody@example.com", "s3cret!")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestGenerateAccount_Validation(t *testing.T) {
	svc, _ := newService(nil)
	ctx := auth.WithActor(context.Background(), owner)

	cases := []struct {
		name   string
		mutate func(*GenerateAccountRequest)
		msg    string
	}{
		{"empty username", func(r *GenerateAccountRequest) { r.Username = " " }, "Username is required"},
		{"not an email", func(r *GenerateAccountRequest) { r.Username = "candidate" }, "Username must be an email address"},
		{"short password", func(r *GenerateAccountRequest) { r.Password = "12345" }, "Password must be at least 6 characters"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := request()
			tc.mutate(&req)
			resp := svc.GenerateAccount(ctx, req)
			require.False(t, resp.Succeeded)
			require.Equal(t, tc.msg, resp.Message)
		})
	}

	require.True(t, svc.GenerateAccount(ctx, request()).Succeeded)
	dup := svc.GenerateAccount(ctx, request())
	require.Equal(t, GenerateAccountResponse{Message: "Username already exists"}, dup)
}

func TestGenerateAccount_DefaultsCreatedByToCaller(t *testing.T) {
	svc, repo := newService(nil)
	ctx := auth.WithActor(context.Background(), owner)
	req := request()
	req.CreatedBy = models.EmbeddedRef{}
	require.True(t, svc.GenerateAccount(ctx, req).Succeeded)

	a, err := repo.GetByUsername(ctx, req.Username)
	require.NoError(t, err)
	require.Equal(t, "ada", a.Claims[ClaimCreatedBy])
}

func TestGenerateAccount_WorkspaceMembership(t *testing.T) {
	ws := &fakeWorkspaces{byUID: map[string]*models.Workspace{
		"w1": {
			Entity:        models.Entity{UID: "w1"},
			Collaborators: map[string]models.CollaboratorRef{"ada": {Role: models.RoleOwner}},
		},
	}}
	svc, _ := newService(ws)

	resp := svc.GenerateAccount(auth.WithActor(context.Background(), auth.Actor{UID: "bob"}), request())
	require.Equal(t, "Not a collaborator on the workspace", resp.Message)

	req := request()
	req.WorkspaceUID = "missing"
	resp = svc.GenerateAccount(auth.WithActor(context.Background(), owner), req)
	require.Equal(t, "Workspace not found", resp.Message)

	require.True(t, svc.GenerateAccount(auth.WithActor(context.Background(), owner), request()).Succeeded)

	ws.err = errors.New("boom")
	req = request()
	req.Username = "other@example.com"
	resp = svc.GenerateAccount(auth.WithActor(context.Background(), owner), req)
	require.Equal(t, "Workspace lookup failed", resp.Message)
}
