// Package dispatch sends outbound WhatsApp messages: persist first,
// call the provider, then record the outcome. Failures are surfaced to
// the caller and never retried automatically.
package dispatch

import (
	"errors"

	"github.com/zapdesk/zapdesk/internal/message"
)

var (
	ErrNoRecipient     = errors.New("contact has no phone number to send to")
	ErrEmptyMessage    = errors.New("message content is empty")
	ErrUnsupportedKind = errors.New("unsupported outbound message kind")
	ErrNoRemoteID      = errors.New("message has no provider id to react to")
)

// SendRequest describes one outbound message.
type SendRequest struct {
	InstanceID      string       `json:"instance_id" validate:"required"`
	ContactID       string       `json:"contact_id" validate:"required"`
	Kind            message.Kind `json:"kind"`
	Body            string       `json:"body"`
	Media           string       `json:"media,omitempty"`
	Filename        string       `json:"filename,omitempty"`
	QuotedMessageID string       `json:"quoted_message_id,omitempty"`
}

// SendResult is what the caller gets back after a dispatch attempt.
type SendResult struct {
	Message  message.Message `json:"message"`
	RemoteID string          `json:"remote_id,omitempty"`
}
