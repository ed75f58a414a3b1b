package evolution

// MessageKey identifies a message on the provider side. The same triple
// shows up in webhook payloads, quoted references, and reaction sends.
type MessageKey struct {
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

// CreateInstanceRequest provisions a new instance on the provider.
type CreateInstanceRequest struct {
	InstanceName string           `json:"instanceName"`
	Token        string           `json:"token,omitempty"`
	QRCode       bool             `json:"qrcode"`
	Integration  string           `json:"integration"`
	Settings     InstanceSettings `json:"settings"`
}

// InstanceSettings mirrors the provider's per-instance behavior flags.
type InstanceSettings struct {
	RejectCall      bool   `json:"reject_call"`
	MsgCall         string `json:"msg_call"`
	GroupsIgnore    bool   `json:"groups_ignore"`
	AlwaysOnline    bool   `json:"always_online"`
	ReadMessages    bool   `json:"read_messages"`
	ReadStatus      bool   `json:"read_status"`
	SyncFullHistory bool   `json:"sync_full_history"`
}

// CreateInstanceResponse carries the instance token. Depending on the
// provider version the token arrives as a bare "hash" string, a
// {"hash": {"apikey": ...}} object, or a top-level apikey/token field.
type CreateInstanceResponse struct {
	Hash     any    `json:"hash"`
	APIKey   string `json:"apikey"`
	RawToken string `json:"token"`
}

// Token extracts the instance API key from whichever shape the provider
// returned, or empty string when none was found.
func (r CreateInstanceResponse) Token() string {
	switch h := r.Hash.(type) {
	case string:
		if h != "" {
			return h
		}
	case map[string]any:
		if key, ok := h["apikey"].(string); ok && key != "" {
			return key
		}
	}
	if r.APIKey != "" {
		return r.APIKey
	}
	return r.RawToken
}

// InstanceInfo is one entry of the fetchInstances listing.
type InstanceInfo struct {
	Name             string         `json:"name"`
	ConnectionStatus string         `json:"connectionStatus"`
	OwnerJID         string         `json:"ownerJid"`
	ProfileName      string         `json:"profileName"`
	ProfilePicURL    string         `json:"profilePicUrl"`
	Token            string         `json:"token"`
	Count            map[string]int `json:"_count"`
}

// ConnectResponse carries the QR pairing payload.
type ConnectResponse struct {
	Base64      string `json:"base64"`
	Code        string `json:"code"`
	PairingCode string `json:"pairingCode"`
}

// WebhookConfig is the payload for /webhook/set.
type WebhookConfig struct {
	Webhook WebhookSettings `json:"webhook"`
}

type WebhookSettings struct {
	Enabled         bool     `json:"enabled"`
	URL             string   `json:"url"`
	WebhookByEvents bool     `json:"webhookByEvents"`
	Events          []string `json:"events"`
	Base64          bool     `json:"base64"`
}

// ProfilePicture is the response of /chat/fetchProfilePictureUrl.
type ProfilePicture struct {
	ProfilePictureURL string `json:"profilePictureUrl"`
}

// NumberCheck is one entry of the /chat/whatsappNumbers response.
type NumberCheck struct {
	Number string `json:"number"`
	Exists bool   `json:"exists"`
	JID    string `json:"jid"`
}

// TextMessage is the payload for /message/sendText.
type TextMessage struct {
	Number string     `json:"number"`
	Text   string     `json:"text"`
	Quoted *QuotedRef `json:"quoted,omitempty"`
}

// QuotedRef references the message being replied to.
type QuotedRef struct {
	Key MessageKey `json:"key"`
}

// MediaMessage is the payload for /message/sendMedia. Media accepts a URL
// or base64 data; MediaType is image, video, or document.
type MediaMessage struct {
	Number    string     `json:"number"`
	MediaType string     `json:"mediatype"`
	Media     string     `json:"media"`
	Caption   string     `json:"caption"`
	FileName  string     `json:"fileName"`
	Quoted    *QuotedRef `json:"quoted,omitempty"`
}

// AudioMessage is the payload for /message/sendWhatsAppAudio (PTT).
type AudioMessage struct {
	Number string `json:"number"`
	Audio  string `json:"audio"`
}

// StickerMessage is the payload for /message/sendSticker.
type StickerMessage struct {
	Number  string `json:"number"`
	Sticker string `json:"sticker"`
}

// ReactionMessage is the payload for /message/sendReaction. The target
// number lives inside the key's remote JID.
type ReactionMessage struct {
	Key      MessageKey `json:"key"`
	Reaction string     `json:"reaction"`
}

// SendResponse is the provider acknowledgement of a send call.
type SendResponse struct {
	Key    MessageKey `json:"key"`
	Status string     `json:"status"`
}
