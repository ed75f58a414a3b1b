// Package thread binds conversations: one thread per contact and
// instance pair, created lazily on first traffic.
package thread

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("thread not found")

// MemberKind distinguishes directory contacts from internal accounts in
// a thread's membership.
type MemberKind string

const (
	MemberContact MemberKind = "contact"
	MemberAccount MemberKind = "account"
)

// Thread is a conversation container for one contact on one instance.
type Thread struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ContactID  string    `json:"contact_id"`
	InstanceID string    `json:"instance_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Member is one thread participant.
type Member struct {
	ID        string     `json:"id"`
	ThreadID  string     `json:"thread_id"`
	Kind      MemberKind `json:"kind"`
	MemberID  string     `json:"member_id"`
	Pinned    bool       `json:"pinned"`
	CreatedAt time.Time  `json:"created_at"`
}
