package webhook

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/zapdesk/zapdesk/internal/message"
)

func mustUpsert(t *testing.T, raw string) UpsertData {
	t.Helper()
	var data UpsertData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		t.Fatalf("unmarshal upsert: %v", err)
	}
	return data
}

func TestParseUpsertText(t *testing.T) {
	t.Parallel()

	data := mustUpsert(t, `{
		"key": {"id": "ABC1", "fromMe": false, "remoteJid": "5511999990000@s.whatsapp.net"},
		"message": {"conversation": "Hello"},
		"pushName": "Maria",
		"messageTimestamp": 1700000000
	}`)
	p, err := ParseUpsert(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Kind != message.KindText || p.Body != "Hello" {
		t.Fatalf("unexpected parse: %+v", p)
	}
	if p.State != message.StateDelivered || p.Direction != message.Inbound {
		t.Fatalf("inbound text should land as delivered, got %+v", p)
	}
	if p.EventAt.Time().Unix() != 1700000000 {
		t.Fatalf("timestamp = %v", p.EventAt.Time())
	}
}

func TestParseUpsertStringTimestamp(t *testing.T) {
	t.Parallel()

	data := mustUpsert(t, `{
		"key": {"id": "ABC1", "fromMe": true, "remoteJid": "5511999990000@s.whatsapp.net"},
		"message": {"conversation": "mine"},
		"messageTimestamp": "1700000000"
	}`)
	p, err := ParseUpsert(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Direction != message.Outbound || p.State != message.StateSent {
		t.Fatalf("self-authored echo should be outbound sent, got %+v", p)
	}
}

func TestParseUpsertMediaFilenameFallback(t *testing.T) {
	t.Parallel()

	data := mustUpsert(t, `{
		"key": {"id": "IMG1", "fromMe": false, "remoteJid": "5511999990000@s.whatsapp.net"},
		"message": {"imageMessage": {
			"url": "https://cdn.example.com/img/abc.enc?token=secret",
			"caption": "look",
			"mimetype": "image/png; codecs=x"
		}},
		"messageTimestamp": 1700000000
	}`)
	p, err := ParseUpsert(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Kind != message.KindImage || p.Body != "look" {
		t.Fatalf("unexpected parse: %+v", p)
	}
	if p.MediaURL != "https://cdn.example.com/img/abc.enc" {
		t.Fatalf("query string not stripped: %q", p.MediaURL)
	}
	if !strings.HasPrefix(p.MediaFilename, "image_IMG1") {
		t.Fatalf("fallback filename = %q", p.MediaFilename)
	}
	if strings.HasSuffix(p.MediaFilename, ".bin") {
		t.Fatalf("png mimetype should yield an image extension, got %q", p.MediaFilename)
	}
}

func TestParseUpsertPrefersContentLevelMediaURL(t *testing.T) {
	t.Parallel()

	data := mustUpsert(t, `{
		"key": {"id": "IMG2", "fromMe": false, "remoteJid": "5511999990000@s.whatsapp.net"},
		"message": {
			"mediaUrl": "https://cdn.example.com/media/IMG2.png?token=secret",
			"imageMessage": {
				"url": "https://cdn.example.com/img/IMG2.enc",
				"mimetype": "image/png"
			}
		},
		"messageTimestamp": 1700000000
	}`)
	p, err := ParseUpsert(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.MediaURL != "https://cdn.example.com/media/IMG2.png" {
		t.Fatalf("media url = %q, want the content-level link", p.MediaURL)
	}
}

func TestParseUpsertSkips(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"no key id", `{"key": {"fromMe": false}, "message": {"conversation": "x"}, "messageTimestamp": 1}`},
		{"no content", `{"key": {"id": "A"}, "messageTimestamp": 1}`},
		{"no timestamp", `{"key": {"id": "A"}, "message": {"conversation": "x"}}`},
		{"unsupported", `{"key": {"id": "A"}, "message": {"pollCreationMessage": {}}, "messageTimestamp": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseUpsert(mustUpsert(t, tt.raw))
			var skip errSkip
			if !errors.As(err, &skip) {
				t.Fatalf("expected a skip error, got %v", err)
			}
		})
	}
}

func TestClassifyPriority(t *testing.T) {
	t.Parallel()

	content := map[string]json.RawMessage{
		"imageMessage": json.RawMessage(`{}`),
		"conversation": json.RawMessage(`"hi"`),
	}
	if got := classify(content); got != "conversation" {
		t.Fatalf("classify = %q, want conversation", got)
	}
}
