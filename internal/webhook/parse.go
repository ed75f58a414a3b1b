package webhook

import (
	"encoding/json"
	"fmt"
	"mime"
	"strings"

	"github.com/zapdesk/zapdesk/internal/message"
)

// contentPriority orders the content keys of an upsert payload so the
// real content wins over technical wrapper entries.
var contentPriority = []string{
	"conversation",
	"extendedTextMessage",
	"reactionMessage",
	"imageMessage",
	"videoMessage",
	"stickerMessage",
	"audioMessage",
	"documentMessage",
}

var mediaKinds = map[string]message.Kind{
	"imageMessage":    message.KindImage,
	"videoMessage":    message.KindVideo,
	"stickerMessage":  message.KindSticker,
	"audioMessage":    message.KindAudio,
	"documentMessage": message.KindDocument,
}

// Parsed is the normalized form of a messages.upsert payload.
type Parsed struct {
	ProviderID        string
	Direction         message.Direction
	State             message.State
	EventAt           UnixTime
	IsGroup           bool
	SenderJID         string
	SenderName        string
	Kind              message.Kind
	Body              string
	MediaType         string
	MediaURL          string
	MediaFilename     string
	QuotedProviderID  string
	ReactedProviderID string
	ReactionEmoji     string
}

type extendedText struct {
	Text        string       `json:"text"`
	ContextInfo *ContextInfo `json:"contextInfo"`
}

type reactionContent struct {
	Text string     `json:"text"`
	Key  MessageKey `json:"key"`
}

type mediaContent struct {
	URL      string `json:"url"`
	Caption  string `json:"caption"`
	FileName string `json:"fileName"`
	Title    string `json:"title"`
	MimeType string `json:"mimetype"`
}

// errSkip marks payloads that are acknowledged but not stored.
type errSkip struct{ reason string }

func (e errSkip) Error() string { return e.reason }

// ParseUpsert normalizes an upsert payload. A second return of false
// means the event should be acknowledged and skipped, with the error
// carrying the reason.
func ParseUpsert(data UpsertData) (Parsed, error) {
	if data.Key.ID == "" || len(data.Message) == 0 {
		return Parsed{}, errSkip{"no message content or key id"}
	}
	if data.MessageTimestamp == 0 {
		return Parsed{}, errSkip{"no timestamp"}
	}

	isGroup := strings.Contains(data.Key.RemoteJID, "@g.us")
	senderJID := data.Key.RemoteJID
	if isGroup && !data.Key.FromMe && data.Key.Participant != "" {
		senderJID = data.Key.Participant
	}

	p := Parsed{
		ProviderID: data.Key.ID,
		EventAt:    data.MessageTimestamp,
		IsGroup:    isGroup,
		SenderJID:  senderJID,
		SenderName: data.PushName,
	}
	if data.Key.FromMe {
		p.Direction = message.Outbound
		p.State = message.StateSent
	} else {
		p.Direction = message.Inbound
		p.State = message.StateDelivered
	}
	if p.SenderName == "" {
		if i := strings.IndexByte(senderJID, '@'); i > 0 {
			p.SenderName = senderJID[:i]
		}
	}

	typeKey := classify(data.Message)
	if typeKey == "" {
		return Parsed{}, errSkip{"could not determine a message type"}
	}

	var ext extendedText
	if raw, ok := data.Message["extendedTextMessage"]; ok {
		_ = json.Unmarshal(raw, &ext)
	}

	switch typeKey {
	case "conversation":
		p.Kind = message.KindText
		_ = json.Unmarshal(data.Message["conversation"], &p.Body)
	case "extendedTextMessage":
		p.Kind = message.KindText
		p.Body = ext.Text
	case "reactionMessage":
		var reaction reactionContent
		_ = json.Unmarshal(data.Message["reactionMessage"], &reaction)
		p.Kind = message.KindReaction
		p.ReactionEmoji = reaction.Text
		p.ReactedProviderID = reaction.Key.ID
		if reaction.Text != "" {
			p.Body = fmt.Sprintf("Reacted with %s", reaction.Text)
		} else {
			p.Body = "Reaction removed"
		}
	default:
		kind, ok := mediaKinds[typeKey]
		if !ok {
			return Parsed{}, errSkip{fmt.Sprintf("unsupported message type %s", typeKey)}
		}
		var media mediaContent
		_ = json.Unmarshal(data.Message[typeKey], &media)
		p.Kind = kind
		p.MediaType = string(kind)
		p.Body = media.Caption
		// Evolution puts the downloadable link next to the content
		// entry; the nested url is an encrypted .enc fallback.
		var rawURL string
		if raw, ok := data.Message["mediaUrl"]; ok {
			_ = json.Unmarshal(raw, &rawURL)
		}
		if rawURL == "" {
			rawURL = media.URL
		}
		if i := strings.IndexByte(rawURL, '?'); i >= 0 {
			rawURL = rawURL[:i]
		}
		p.MediaURL = rawURL
		p.MediaFilename = media.FileName
		if p.MediaFilename == "" {
			p.MediaFilename = media.Title
		}
		if p.MediaFilename == "" {
			p.MediaFilename = fallbackFilename(string(kind), data.Key.ID, media.MimeType)
		}
	}

	// The quoted reference may live on the payload, the content body,
	// or inside the extended text entry.
	switch {
	case data.ContextInfo != nil && data.ContextInfo.StanzaID != "":
		p.QuotedProviderID = data.ContextInfo.StanzaID
	case ext.ContextInfo != nil && ext.ContextInfo.StanzaID != "":
		p.QuotedProviderID = ext.ContextInfo.StanzaID
	default:
		if raw, ok := data.Message["contextInfo"]; ok {
			var ci ContextInfo
			if json.Unmarshal(raw, &ci) == nil && ci.StanzaID != "" {
				p.QuotedProviderID = ci.StanzaID
			}
		}
	}

	return p, nil
}

// classify picks the highest-priority content key present.
func classify(content map[string]json.RawMessage) string {
	for _, key := range contentPriority {
		if _, ok := content[key]; ok {
			return key
		}
	}
	for key := range content {
		if key != "messageContextInfo" && key != "contextInfo" {
			return key
		}
	}
	return ""
}

// fallbackFilename derives a name from the MIME type when the payload
// carries none, e.g. "image_ABC1.jpg".
func fallbackFilename(mediaType, providerID, mimeType string) string {
	ext := ".bin"
	if mimeType != "" {
		if i := strings.IndexByte(mimeType, ';'); i >= 0 {
			mimeType = mimeType[:i]
		}
		if exts, err := mime.ExtensionsByType(strings.TrimSpace(mimeType)); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	return mediaType + "_" + providerID + ext
}
