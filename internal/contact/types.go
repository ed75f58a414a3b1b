// Package contact keeps the phone-keyed directory: find-or-create from
// inbound events, privacy and promotion rules, and number verification.
package contact

import (
	"errors"
	"time"
)

var (
	ErrNotFound            = errors.New("contact not found")
	ErrPhoneRequired       = errors.New("contact has no phone number")
	ErrAlreadyPublic       = errors.New("contact is already a company contact")
	ErrAlreadyPrivate      = errors.New("contact is already private")
	ErrNotOwner            = errors.New("only the owner or an administrator may do this")
	ErrRevertWindowExpired = errors.New("the revert window for this promotion has expired")
	ErrNotOnWhatsApp       = errors.New("number is not registered on whatsapp")
)

// Contact is a directory entry keyed by phone number. A private contact
// belongs to one account; a company contact has no owner.
type Contact struct {
	ID                    string    `json:"id"`
	DisplayName           string    `json:"display_name"`
	Phone                 string    `json:"phone,omitempty"`
	Mobile                string    `json:"mobile,omitempty"`
	IsPrivate             bool      `json:"is_private"`
	OwnerAccountID        string    `json:"owner_account_id,omitempty"`
	PromotedAt            time.Time `json:"promoted_at,omitempty"`
	PromotedFromAccountID string    `json:"-"`
	Verified              bool      `json:"verified"`
	VerifiedAt            time.Time `json:"verified_at,omitempty"`
	AvatarURL             string    `json:"avatar_url,omitempty"`
	OriginInstanceID      string    `json:"origin_instance_id,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Note is an audit entry on a contact's timeline.
type Note struct {
	ID        string    `json:"id"`
	ContactID string    `json:"contact_id"`
	Author    string    `json:"author,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// VisibleTo reports whether the actor may see and act on the contact.
func (c Contact) VisibleTo(accountID string, admin bool) bool {
	if !c.IsPrivate || admin {
		return true
	}
	return c.OwnerAccountID == accountID
}
