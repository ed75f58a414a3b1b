// Package message is the persistent log of WhatsApp traffic, inbound
// and outbound, with forward-only delivery state tracking.
package message

import (
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("message not found")

// Direction of a logged message relative to us.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// State is the delivery state. Transitions only move forward: a read
// message never becomes delivered again.
type State string

const (
	StatePending   State = "pending"
	StateSent      State = "sent"
	StateDelivered State = "delivered"
	StateRead      State = "read"
	StateFailed    State = "failed"
)

var stateRank = map[State]int{
	StatePending:   0,
	StateSent:      1,
	StateDelivered: 2,
	StateRead:      3,
}

// ValidTransition reports whether moving from one state to another is
// allowed. Read and failed are terminal; everything else only advances.
func ValidTransition(from, to State) bool {
	if from == to || from == StateRead || from == StateFailed {
		return false
	}
	if to == StateFailed {
		return true
	}
	fromRank, ok := stateRank[from]
	if !ok {
		return false
	}
	toRank, ok := stateRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// StateFromProvider maps a provider status update to a local state.
// "played" counts as read. Unknown statuses are dropped.
func StateFromProvider(status string) (State, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "delivered":
		return StateDelivered, true
	case "read", "played":
		return StateRead, true
	case "error":
		return StateFailed, true
	default:
		return "", false
	}
}

// Kind classifies message content.
type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
	KindSticker  Kind = "sticker"
	KindAudio    Kind = "audio"
	KindDocument Kind = "document"
	KindReaction Kind = "reaction"
	KindOther    Kind = "other"
)

// Message is one logged WhatsApp message.
type Message struct {
	ID                string    `json:"id"`
	InstanceID        string    `json:"instance_id"`
	ContactID         string    `json:"contact_id,omitempty"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	Direction         Direction `json:"direction"`
	State             State     `json:"state"`
	EventAt           time.Time `json:"event_at"`
	SenderName        string    `json:"sender_name,omitempty"`
	Phone             string    `json:"phone,omitempty"`
	IsGroup           bool      `json:"is_group"`
	Kind              Kind      `json:"kind,omitempty"`
	Body              string    `json:"body"`
	MediaType         string    `json:"media_type,omitempty"`
	MediaURL          string    `json:"media_url,omitempty"`
	MediaFilename     string    `json:"media_filename,omitempty"`
	QuotedMessageID   string    `json:"quoted_message_id,omitempty"`
	ReactedMessageID  string    `json:"reacted_message_id,omitempty"`
	FailureReason     string    `json:"failure_reason,omitempty"`
	RawPayload        []byte    `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
}
