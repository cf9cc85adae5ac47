package models

import (
	"maps"
	"path"
	"slices"
	"strings"
)

// CollaboratorRole is the role of a user on a workspace.
type CollaboratorRole string

const (
	RoleOwner    CollaboratorRole = "owner"
	RoleEditor   CollaboratorRole = "editor"
	RoleReviewer CollaboratorRole = "reviewer"
)

// CollaboratorRef is an invite or membership on a workspace. Pending is true
// until the invited profile is activated.
type CollaboratorRef struct {
	EmbeddedRef `bson:",inline"`
	Pending     bool             `json:"pending" bson:"pending"`
	Role        CollaboratorRole `json:"role" bson:"role"`
}

// Rating is a reviewer's assessment of one candidate.
type Rating struct {
	Overall      int         `json:"overall" bson:"overall"`
	Depth        *int        `json:"depth,omitempty" bson:"depth,omitempty"`
	Clarity      *int        `json:"clarity,omitempty" bson:"clarity,omitempty"`
	Thoroughness *int        `json:"thoroughness,omitempty" bson:"thoroughness,omitempty"`
	Comments     string      `json:"comments" bson:"comments"`
	Author       EmbeddedRef `json:"author" bson:"author"`
}

// Workspace holds uploaded sources and the users collaborating on them.
// Collaborators always contains the creator.
type Workspace struct {
	Entity        `bson:",inline"`
	Description   string                     `json:"description,omitempty" bson:"description,omitempty"`
	Collaborators map[string]CollaboratorRef `json:"collaborators" bson:"collaborators"`
	Sources       map[string]MediaRef        `json:"sources" bson:"sources"`
	Ratings       map[string]Rating          `json:"ratings,omitempty" bson:"ratings,omitempty"`
	ArchivedAtUTC string                     `json:"archivedAtUtc,omitempty" bson:"archivedAtUtc,omitempty"`
}

// SourceList returns the workspace sources as a slice.
func (w *Workspace) SourceList() []MediaRef {
	out := make([]MediaRef, 0, len(w.Sources))
	for _, s := range w.Sources {
		out = append(out, s)
	}
	return out
}

// RoleOf returns the collaborator role of uid on the workspace.
func (w *Workspace) RoleOf(uid string) (CollaboratorRole, bool) {
	c, ok := w.Collaborators[uid]
	if !ok {
		return "", false
	}
	return c.Role, true
}

// ContextType says what a review comment is attached to.
type ContextType string

const (
	ContextSource  ContextType = "source"
	ContextComment ContextType = "comment"
)

// ReviewComment is one comment in a candidate review. A comment whose context
// is another comment is a reply in that comment's thread.
type ReviewComment struct {
	UID         string      `json:"uid" bson:"uid"`
	Text        string      `json:"text" bson:"text"`
	SourceRange []int       `json:"sourceRange,omitempty" bson:"sourceRange,omitempty"`
	ContextType ContextType `json:"contextType" bson:"contextType"`
	ContextUID  string      `json:"contextUid" bson:"contextUid"`
	Author      EmbeddedRef `json:"author" bson:"author"`
}

// CandidateReview is a review assignment scoped to one workspace. Sources are
// copied from the workspace at creation and the workspace name is denormalized
// so candidates need no read access to the workspace.
type CandidateReview struct {
	Entity        `bson:",inline"`
	WorkspaceUID  string                   `json:"workspaceUid" bson:"workspaceUid"`
	WorkspaceName string                   `json:"workspaceName" bson:"workspaceName"`
	Email         string                   `json:"email" bson:"email"`
	Label         string                   `json:"label,omitempty" bson:"label,omitempty"`
	Sources       map[string]MediaRef      `json:"sources" bson:"sources"`
	Comments      map[string]ReviewComment `json:"comments" bson:"comments"`
	ArchivedAtUTC string                   `json:"archivedAtUtc,omitempty" bson:"archivedAtUtc,omitempty"`
}

// CommentChain is a root comment with its direct replies.
type CommentChain struct {
	Root    ReviewComment   `json:"rootComment"`
	Replies []ReviewComment `json:"replyComments"`
}

// Threads groups the review's comments into chains rooted at source comments.
// Replies whose parent is missing are dropped.
func (c *CandidateReview) Threads() []CommentChain {
	index := map[string]int{}
	var chains []CommentChain
	for _, uid := range slices.Sorted(maps.Keys(c.Comments)) {
		cm := c.Comments[uid]
		if cm.ContextType != ContextComment {
			index[cm.UID] = len(chains)
			chains = append(chains, CommentChain{Root: cm})
		}
	}
	for _, uid := range slices.Sorted(maps.Keys(c.Comments)) {
		cm := c.Comments[uid]
		if cm.ContextType == ContextComment {
			if i, ok := index[cm.ContextUID]; ok {
				chains[i].Replies = append(chains[i].Replies, cm)
			}
		}
	}
	return chains
}

// AllowedCodeFileExtensions lists the source file types a workspace accepts.
var AllowedCodeFileExtensions = []string{
	".c", ".cpp", ".cs", ".css", ".csv", ".dart", ".go", ".html", ".js", ".ts",
	".h", ".hpp", ".java", ".jl", ".json", ".jsx", ".kt", ".md", ".php", ".py",
	".rb", ".rs", ".sass", ".scala", ".scss", ".sql", ".swift", ".toml", ".tsx",
	".txt", ".vue", ".xhtml", ".xml", ".xsl", ".xslt", ".yaml",
}

// Ext returns the lower-cased extension of name including the leading dot.
func Ext(name string) string {
	return strings.ToLower(path.Ext(name))
}

// IsAllowedCodeFile reports whether name has an accepted source extension.
func IsAllowedCodeFile(name string) bool {
	ext := Ext(name)
	for _, e := range AllowedCodeFileExtensions {
		if e == ext {
			return true
		}
	}
	return false
}
