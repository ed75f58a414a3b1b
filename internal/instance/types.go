// Package instance manages WhatsApp instances: provisioning against the
// provider, connection lifecycle, and status reconciliation.
package instance

import (
	"strings"
	"time"
)

// Status is the locally tracked connection state of an instance.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// StatusFromProvider maps the provider connection state onto ours.
// Unknown states count as disconnected.
func StatusFromProvider(state string) Status {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "open":
		return StatusConnected
	case "connecting", "pair_device", "qrcode":
		return StatusConnecting
	default:
		return StatusDisconnected
	}
}

// Scope controls who an instance sends and verifies on behalf of.
type Scope string

const (
	ScopeCompany Scope = "company"
	ScopeUser    Scope = "user"
)

// Settings are the provider-side behavior toggles kept in sync with the
// instance row.
type Settings struct {
	RejectCalls         bool   `json:"reject_calls"`
	CallRejectedMessage string `json:"call_rejected_message,omitempty"`
	IgnoreGroups        bool   `json:"ignore_groups"`
	AlwaysOnline        bool   `json:"always_online"`
	ReadMessages        bool   `json:"read_messages"`
	ReadStatus          bool   `json:"read_status"`
	SyncFullHistory     bool   `json:"sync_full_history"`
}

// Instance is a provisioned WhatsApp line.
type Instance struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Status         Status    `json:"status"`
	APIKey         string    `json:"-"`
	Scope          Scope     `json:"scope"`
	OwnerAccountID string    `json:"owner_account_id,omitempty"`
	PhoneNumber    string    `json:"phone_number,omitempty"`
	ProfileName    string    `json:"profile_name,omitempty"`
	Settings       Settings  `json:"settings"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CreateRequest provisions a new instance.
type CreateRequest struct {
	Name           string   `json:"name" validate:"required"`
	Scope          Scope    `json:"scope,omitempty"`
	OwnerAccountID string   `json:"owner_account_id,omitempty"`
	Settings       Settings `json:"settings"`
}

// QRCode is the pairing material returned by a connect call.
type QRCode struct {
	Base64      string `json:"base64,omitempty"`
	Code        string `json:"code,omitempty"`
	PairingCode string `json:"pairing_code,omitempty"`
}
