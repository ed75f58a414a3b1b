// Package evolution is the REST client for the Evolution API provider.
// Provisioning calls authenticate with the global key; everything else
// uses the per-instance key.
package evolution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client talks to one Evolution API server.
type Client struct {
	baseURL   string
	globalKey string
	http      *http.Client
	logger    *slog.Logger
}

// NewClient creates a provider client with a bounded per-call timeout.
func NewClient(log *slog.Logger, baseURL, globalKey string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		globalKey: strings.TrimSpace(globalKey),
		http:      &http.Client{Timeout: timeout},
		logger:    log.With(slog.String("service", "evolution")),
	}
}

func (c *Client) do(ctx context.Context, apiKey, method, endpoint string, payload, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("evolution api base url is not configured")
	}
	if apiKey == "" {
		return fmt.Errorf("evolution api key is not configured")
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	url := c.baseURL + endpoint

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response from %s: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("provider call failed",
			slog.String("endpoint", endpoint),
			slog.Int("status", resp.StatusCode))
		return &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint, Body: strings.TrimSpace(string(data))}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", endpoint, err)
	}
	return nil
}

// CreateInstance provisions a new instance. Global key.
func (c *Client) CreateInstance(ctx context.Context, req CreateInstanceRequest) (CreateInstanceResponse, error) {
	var resp CreateInstanceResponse
	err := c.do(ctx, c.globalKey, http.MethodPost, "/instance/create", req, &resp)
	return resp, err
}

// DeleteInstance removes an instance on the provider. Global key.
func (c *Client) DeleteInstance(ctx context.Context, name string) error {
	return c.do(ctx, c.globalKey, http.MethodDelete, "/instance/delete/"+name, nil, nil)
}

// FetchInstances lists all instances known to the provider. Global key.
func (c *Client) FetchInstances(ctx context.Context) ([]InstanceInfo, error) {
	var resp []InstanceInfo
	err := c.do(ctx, c.globalKey, http.MethodGet, "/instance/fetchInstances", nil, &resp)
	return resp, err
}

// Connect starts the pairing flow and returns the QR payload.
func (c *Client) Connect(ctx context.Context, name, apiKey string) (ConnectResponse, error) {
	var resp ConnectResponse
	err := c.do(ctx, apiKey, http.MethodGet, "/instance/connect/"+name, nil, &resp)
	return resp, err
}

// Restart restarts the instance session.
func (c *Client) Restart(ctx context.Context, name, apiKey string) error {
	return c.do(ctx, apiKey, http.MethodPut, "/instance/restart/"+name, nil, nil)
}

// Logout disconnects the instance session.
func (c *Client) Logout(ctx context.Context, name, apiKey string) error {
	return c.do(ctx, apiKey, http.MethodDelete, "/instance/logout/"+name, nil, nil)
}

// SetWebhook registers the callback URL and event list for an instance.
func (c *Client) SetWebhook(ctx context.Context, name, apiKey string, cfg WebhookConfig) error {
	return c.do(ctx, apiKey, http.MethodPost, "/webhook/set/"+name, cfg, nil)
}

// FindWebhook returns the current webhook registration for an instance.
func (c *Client) FindWebhook(ctx context.Context, name, apiKey string) (WebhookSettings, error) {
	var resp WebhookSettings
	err := c.do(ctx, apiKey, http.MethodGet, "/webhook/find/"+name, nil, &resp)
	return resp, err
}

// SetSettings applies instance behavior settings.
func (c *Client) SetSettings(ctx context.Context, name, apiKey string, settings InstanceSettings) error {
	return c.do(ctx, apiKey, http.MethodPost, "/settings/set/"+name, settings, nil)
}

// FetchProfilePicture looks up the profile picture URL for a number.
func (c *Client) FetchProfilePicture(ctx context.Context, name, apiKey, number string) (ProfilePicture, error) {
	var resp ProfilePicture
	payload := map[string]string{"number": number}
	err := c.do(ctx, apiKey, http.MethodPost, "/chat/fetchProfilePictureUrl/"+name, payload, &resp)
	return resp, err
}

// CheckNumbers asks the provider which of the numbers have WhatsApp
// accounts.
func (c *Client) CheckNumbers(ctx context.Context, name, apiKey string, numbers []string) ([]NumberCheck, error) {
	var resp []NumberCheck
	payload := map[string][]string{"numbers": numbers}
	err := c.do(ctx, apiKey, http.MethodPost, "/chat/whatsappNumbers/"+name, payload, &resp)
	return resp, err
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, name, apiKey string, msg TextMessage) (SendResponse, error) {
	var resp SendResponse
	err := c.do(ctx, apiKey, http.MethodPost, "/message/sendText/"+name, msg, &resp)
	return resp, err
}

// SendMedia sends an image, video, or document.
func (c *Client) SendMedia(ctx context.Context, name, apiKey string, msg MediaMessage) (SendResponse, error) {
	var resp SendResponse
	err := c.do(ctx, apiKey, http.MethodPost, "/message/sendMedia/"+name, msg, &resp)
	return resp, err
}

// SendAudio sends a push-to-talk audio message.
func (c *Client) SendAudio(ctx context.Context, name, apiKey string, msg AudioMessage) (SendResponse, error) {
	var resp SendResponse
	err := c.do(ctx, apiKey, http.MethodPost, "/message/sendWhatsAppAudio/"+name, msg, &resp)
	return resp, err
}

// SendSticker sends a sticker.
func (c *Client) SendSticker(ctx context.Context, name, apiKey string, msg StickerMessage) (SendResponse, error) {
	var resp SendResponse
	err := c.do(ctx, apiKey, http.MethodPost, "/message/sendSticker/"+name, msg, &resp)
	return resp, err
}

// SendReaction reacts to an existing message.
func (c *Client) SendReaction(ctx context.Context, name, apiKey string, msg ReactionMessage) (SendResponse, error) {
	var resp SendResponse
	err := c.do(ctx, apiKey, http.MethodPost, "/message/sendReaction/"+name, msg, &resp)
	return resp, err
}
