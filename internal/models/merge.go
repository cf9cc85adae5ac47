package models

import "github.com/coderev/coderev/backend/go-services/internal/merge"

// Field-level merge functions, one per merged entity type. They spell out each
// declared field so a newly added field is a compile-visible change here.
// UID is never merged.

func (e *Entity) mergeFrom(src *Entity) []string {
	var changed []string
	if merge.Scalar(&e.Name, src.Name) {
		changed = append(changed, "name")
	}
	if merge.Scalar(&e.CreatedAtUTC, src.CreatedAtUTC) {
		changed = append(changed, "createdAtUtc")
	}
	if merge.Scalar(&e.UpdatedAtUTC, src.UpdatedAtUTC) {
		changed = append(changed, "updatedAtUtc")
	}
	if merge.Deep(&e.CreatedBy, src.CreatedBy) {
		changed = append(changed, "createdBy")
	}
	if merge.Deep(&e.UpdatedBy, src.UpdatedBy) {
		changed = append(changed, "updatedBy")
	}
	if merge.Scalar(&e.SchemaVersion, src.SchemaVersion) {
		changed = append(changed, "schemaVersion")
	}
	return changed
}

// MergeFrom implements merge.Mergeable.
func (p *Profile) MergeFrom(src *Profile) []string {
	changed := p.Entity.mergeFrom(&src.Entity)
	if merge.Scalar(&p.Email, src.Email) {
		changed = append(changed, "email")
	}
	if merge.Scalar(&p.DisplayName, src.DisplayName) {
		changed = append(changed, "displayName")
	}
	if merge.Scalar(&p.ActivatedUTC, src.ActivatedUTC) {
		changed = append(changed, "activatedUtc")
	}
	if merge.Deep(&p.Photo, src.Photo) {
		changed = append(changed, "photo")
	}
	if merge.Deep(&p.Events, src.Events) {
		changed = append(changed, "events")
	}
	if merge.Deep(&p.ReceiveEmails, src.ReceiveEmails) {
		changed = append(changed, "receiveEmails")
	}
	if merge.Deep(&p.ReceiveFeedbackRequests, src.ReceiveFeedbackRequests) {
		changed = append(changed, "receiveFeedbackRequests")
	}
	return changed
}

// MergeFrom implements merge.Mergeable.
func (w *Workspace) MergeFrom(src *Workspace) []string {
	changed := w.Entity.mergeFrom(&src.Entity)
	if merge.Scalar(&w.Description, src.Description) {
		changed = append(changed, "description")
	}
	if merge.Deep(&w.Collaborators, src.Collaborators) {
		changed = append(changed, "collaborators")
	}
	if merge.Deep(&w.Sources, src.Sources) {
		changed = append(changed, "sources")
	}
	if merge.Deep(&w.Ratings, src.Ratings) {
		changed = append(changed, "ratings")
	}
	if merge.Scalar(&w.ArchivedAtUTC, src.ArchivedAtUTC) {
		changed = append(changed, "archivedAtUtc")
	}
	return changed
}

// MergeFrom implements merge.Mergeable.
func (c *CandidateReview) MergeFrom(src *CandidateReview) []string {
	changed := c.Entity.mergeFrom(&src.Entity)
	if merge.Scalar(&c.WorkspaceUID, src.WorkspaceUID) {
		changed = append(changed, "workspaceUid")
	}
	if merge.Scalar(&c.WorkspaceName, src.WorkspaceName) {
		changed = append(changed, "workspaceName")
	}
	if merge.Scalar(&c.Email, src.Email) {
		changed = append(changed, "email")
	}
	if merge.Scalar(&c.Label, src.Label) {
		changed = append(changed, "label")
	}
	if merge.Deep(&c.Sources, src.Sources) {
		changed = append(changed, "sources")
	}
	if merge.Deep(&c.Comments, src.Comments) {
		changed = append(changed, "comments")
	}
	if merge.Scalar(&c.ArchivedAtUTC, src.ArchivedAtUTC) {
		changed = append(changed, "archivedAtUtc")
	}
	return changed
}
