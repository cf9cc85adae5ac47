package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Collection names for the top level document collections.
const (
	CollectionProfiles   = "profiles"
	CollectionWorkspaces = "workspaces"
	CollectionCandidates = "candidates"
)

// SchemaVersion is stamped on every entity at creation.
const SchemaVersion = "v0"

// TimeLayout matches the millisecond ISO-8601 strings the web client writes,
// so stored timestamps sort lexicographically.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Now is replaced in tests that need fixed timestamps.
var Now = time.Now

// NowUTC returns the current time formatted with TimeLayout.
func NowUTC() string {
	return Now().UTC().Format(TimeLayout)
}

// NewUID returns a new random entity UID.
func NewUID() string {
	return uuid.NewString()
}

// NewCommentUID returns a time-sortable UID so comments keyed by UID list in
// creation order.
func NewCommentUID() string {
	return ulid.Make().String()
}

// MinimalRef references an entity with the time the reference was added.
type MinimalRef struct {
	UID      string `json:"uid" bson:"uid"`
	AddedUTC string `json:"addedUtc" bson:"addedUtc"`
}

// EmbeddedRef is a denormalized pointer to another entity. The backing store
// has no cross-collection joins so the name is copied in.
type EmbeddedRef struct {
	MinimalRef `bson:",inline"`
	Name       string `json:"name" bson:"name"`
	EntityType string `json:"entityType" bson:"entityType"`
}

// Entity carries the lifecycle fields shared by every top level record.
// UID is immutable once created.
type Entity struct {
	UID           string       `json:"uid" bson:"uid"`
	Name          string       `json:"name" bson:"name"`
	CreatedAtUTC  string       `json:"createdAtUtc,omitempty" bson:"createdAtUtc,omitempty"`
	UpdatedAtUTC  string       `json:"updatedAtUtc,omitempty" bson:"updatedAtUtc,omitempty"`
	CreatedBy     *EmbeddedRef `json:"createdBy,omitempty" bson:"createdBy,omitempty"`
	UpdatedBy     *EmbeddedRef `json:"updatedBy,omitempty" bson:"updatedBy,omitempty"`
	SchemaVersion string       `json:"schemaVersion,omitempty" bson:"schemaVersion,omitempty"`
}

// GetEntity gives generic code access to the lifecycle fields.
func (e *Entity) GetEntity() *Entity { return e }

// GetUID implements merge.Identifiable.
func (e *Entity) GetUID() string { return e.UID }

// Document is satisfied by every persisted model through its embedded Entity.
type Document interface {
	GetEntity() *Entity
	GetUID() string
}

// MediaType is the kind of stored media.
type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaVideo    MediaType = "video"
	MediaDocument MediaType = "document"
)

// MediaRef points at a stored blob. Refs are owned by their containing entity.
// MarkAsRemovedUTC is a soft-delete marker: other live references keep working
// until cleanup of the owning container runs.
type MediaRef struct {
	MinimalRef       `bson:",inline"`
	Rank             string    `json:"rank" bson:"rank"`
	URL              string    `json:"url" bson:"url"`
	Ext              string    `json:"ext" bson:"ext"`
	Path             string    `json:"path,omitempty" bson:"path,omitempty"`
	Name             string    `json:"name,omitempty" bson:"name,omitempty"`
	EntityType       string    `json:"entityType,omitempty" bson:"entityType,omitempty"`
	Title            string    `json:"title,omitempty" bson:"title,omitempty"`
	Caption          string    `json:"caption,omitempty" bson:"caption,omitempty"`
	Alt              string    `json:"alt,omitempty" bson:"alt,omitempty"`
	Size             int64     `json:"size,omitempty" bson:"size,omitempty"`
	Width            int       `json:"width,omitempty" bson:"width,omitempty"`
	Height           int       `json:"height,omitempty" bson:"height,omitempty"`
	Type             MediaType `json:"type" bson:"type"`
	MarkAsRemovedUTC string    `json:"markAsRemovedUtc,omitempty" bson:"markAsRemovedUtc,omitempty"`
}

// BooleanRecord keeps a user choice together with when it was made.
type BooleanRecord struct {
	Active     bool   `json:"active" bson:"active"`
	UpdatedUTC string `json:"updatedUtc" bson:"updatedUtc"`
}

// ProfileEvents records when the user went through onboarding steps.
type ProfileEvents struct {
	ExperiencedIntroVideo string `json:"experiencedIntroVideo,omitempty" bson:"experiencedIntroVideo,omitempty"`
	ExperiencedSurvey     string `json:"experiencedSurvey,omitempty" bson:"experiencedSurvey,omitempty"`
}

// Profile is the user's own record in the profiles collection.
type Profile struct {
	Entity                  `bson:",inline"`
	Email                   string         `json:"email" bson:"email"`
	DisplayName             string         `json:"displayName,omitempty" bson:"displayName,omitempty"`
	ActivatedUTC            string         `json:"activatedUtc,omitempty" bson:"activatedUtc,omitempty"`
	Photo                   *MediaRef      `json:"photo,omitempty" bson:"photo,omitempty"`
	Events                  *ProfileEvents `json:"events,omitempty" bson:"events,omitempty"`
	ReceiveEmails           *BooleanRecord `json:"receiveEmails,omitempty" bson:"receiveEmails,omitempty"`
	ReceiveFeedbackRequests *BooleanRecord `json:"receiveFeedbackRequests,omitempty" bson:"receiveFeedbackRequests,omitempty"`
}

// Ref returns an embedded reference to this profile.
func (p *Profile) Ref(entityType string) EmbeddedRef {
	return EmbeddedRef{
		MinimalRef: MinimalRef{UID: p.UID, AddedUTC: NowUTC()},
		Name:       p.Name,
		EntityType: entityType,
	}
}
