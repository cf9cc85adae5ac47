package accounts

import "time"

// Claim names set on generated accounts.
const (
	ClaimAssignedWorkspace = "assigned_workspace_uid"
	ClaimCreatedBy         = "created_by_uid"
)

// Account is a password login provisioned by a workspace member, typically
// for a candidate.
type Account struct {
	UID          string            `bson:"_id" json:"uid"`
	Username     string            `bson:"username" json:"username"`
	DisplayName  string            `bson:"displayName" json:"displayName"`
	Email        string            `bson:"email" json:"email"`
	PasswordHash string            `bson:"passwordHash" json:"-"`
	Claims       map[string]string `bson:"claims,omitempty" json:"claims,omitempty"`
	CreatedAt    time.Time         `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time         `bson:"updatedAt" json:"updatedAt"`
}
