// Package stores holds the per-session state kept in sync with the document
// database: the signed-in profile, the user's workspaces and the candidate
// reviews of the open workspace. State is updated by live queries registered
// with the session's subscriptions.Registry and every change is published to a
// Notifier.
//
// Store methods never hold the store lock across repository calls: live
// query handlers take the same lock and may run before a write returns.
package stores

import (
	"errors"

	"github.com/coderev/coderev/backend/go-services/internal/subscriptions"
)

var (
	ErrLoginRequired = errors.New("login required")
	ErrNoWorkspace   = errors.New("no workspace open")
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidInput  = errors.New("invalid input")
)

// Topics published by the stores.
const (
	TopicSession             = "session"
	TopicProfile             = "profile"
	TopicWorkspaces          = "workspaces"
	TopicWorkspace           = "workspace"
	TopicCandidates          = "candidates"
	TopicCandidate           = "candidate"
	TopicCandidateWorkspaces = "candidateWorkspaces"
)

// Event is a state change. Type is a live query change type or one of
// "set", "cleared", "reset" and "loginRequired".
type Event struct {
	Topic string      `json:"topic"`
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
}

// Notifier receives state changes. Implementations must not block.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

type nopNotifier struct{}

func (nopNotifier) Notify(Event) {}

func notifierOrNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

// register stores h under key, cancelling h when another subscription with
// the same key won the race.
func register(subs *subscriptions.Registry, key string, h subscriptions.Handle) {
	if !subs.Register(key, h) {
		h()
	}
}
