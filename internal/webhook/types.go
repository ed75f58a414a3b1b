// Package webhook routes inbound provider events through an explicit
// stage pipeline: parse, resolve contact, log message, post to thread.
// Every event, including malformed ones, produces a structured result
// so the provider never sees a hanging or bodyless response.
package webhook

import (
	"encoding/json"
	"strconv"
	"time"
)

// Envelope is the outer shape of every provider event.
type Envelope struct {
	Instance string          `json:"instance"`
	Event    string          `json:"event"`
	Data     json.RawMessage `json:"data"`
}

// Result is the acknowledgement returned for every event.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func OK(msg string) Result      { return Result{Status: "success", Message: msg} }
func Skipped(msg string) Result { return Result{Status: "ok", Message: msg} }
func Failed(msg string) Result  { return Result{Status: "error", Message: msg} }

// MessageKey identifies a provider message inside an upsert payload.
type MessageKey struct {
	RemoteJID   string `json:"remoteJid"`
	FromMe      bool   `json:"fromMe"`
	ID          string `json:"id"`
	Participant string `json:"participant"`
}

// UnixTime accepts the provider's timestamp as either a JSON number or
// a numeric string.
type UnixTime int64

func (t *UnixTime) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		*t = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*t = UnixTime(n)
	return nil
}

// Time returns the timestamp in UTC, or the zero time when unset.
func (t UnixTime) Time() time.Time {
	if t == 0 {
		return time.Time{}
	}
	return time.Unix(int64(t), 0).UTC()
}

// UpsertData is the payload of a messages.upsert event.
type UpsertData struct {
	Key              MessageKey                 `json:"key"`
	PushName         string                     `json:"pushName"`
	MessageTimestamp UnixTime                   `json:"messageTimestamp"`
	Message          map[string]json.RawMessage `json:"message"`
	ContextInfo      *ContextInfo               `json:"contextInfo"`
}

// ContextInfo carries the quoted-message reference.
type ContextInfo struct {
	StanzaID string `json:"stanzaId"`
}

// UpdateData is one entry of a messages.update event. The provider
// sends either a single object or a list.
type UpdateData struct {
	KeyID  string `json:"keyId"`
	Status string `json:"status"`
}

// ConnectionData is the payload of a connection.update event.
type ConnectionData struct {
	State string `json:"state"`
}
