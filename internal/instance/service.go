package instance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/zapdesk/zapdesk/internal/evolution"
)

var (
	ErrNameRequired          = errors.New("instance name is required")
	ErrOwnerRequired         = errors.New("user-scoped instances need an owner account")
	ErrNoConnectedInstance   = errors.New("no connected instance available")
	ErrProviderNotConfigured = errors.New("provider is not configured")
)

// webhookEvents is the subset of provider events this service consumes.
var webhookEvents = []string{"MESSAGES_UPSERT", "MESSAGES_UPDATE", "CONNECTION_UPDATE"}

type store interface {
	Create(ctx context.Context, inst Instance) (Instance, error)
	GetByID(ctx context.Context, id string) (Instance, error)
	GetByName(ctx context.Context, name string) (Instance, error)
	List(ctx context.Context) ([]Instance, error)
	UpdateStatus(ctx context.Context, id string, status Status, phoneNumber, profileName string) error
	UpdateSettings(ctx context.Context, id string, settings Settings) error
	Delete(ctx context.Context, id string) error
	FindVerifying(ctx context.Context, actorAccountID string) (Instance, error)
}

type providerClient interface {
	CreateInstance(ctx context.Context, req evolution.CreateInstanceRequest) (evolution.CreateInstanceResponse, error)
	DeleteInstance(ctx context.Context, name string) error
	FetchInstances(ctx context.Context) ([]evolution.InstanceInfo, error)
	Connect(ctx context.Context, name, apiKey string) (evolution.ConnectResponse, error)
	Restart(ctx context.Context, name, apiKey string) error
	Logout(ctx context.Context, name, apiKey string) error
	SetWebhook(ctx context.Context, name, apiKey string, cfg evolution.WebhookConfig) error
	SetSettings(ctx context.Context, name, apiKey string, settings evolution.InstanceSettings) error
}

// Service owns the instance lifecycle against the provider.
type Service struct {
	store       store
	provider    providerClient
	webhookURL  string
	integration string
	logger      *slog.Logger
}

func NewService(log *slog.Logger, st store, provider providerClient, webhookURL, integration string) *Service {
	return &Service{
		store:       st,
		provider:    provider,
		webhookURL:  strings.TrimSpace(webhookURL),
		integration: integration,
		logger:      log.With(slog.String("service", "instance")),
	}
}

// Provision creates the instance on the provider, registers the inbound
// webhook, and persists the local row.
func (s *Service) Provision(ctx context.Context, req CreateRequest) (Instance, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Instance{}, ErrNameRequired
	}
	scope := req.Scope
	if scope == "" {
		scope = ScopeCompany
	}
	if scope == ScopeUser && strings.TrimSpace(req.OwnerAccountID) == "" {
		return Instance{}, ErrOwnerRequired
	}
	if s.provider == nil {
		return Instance{}, ErrProviderNotConfigured
	}

	// The provider keys every per-instance call on this token. Supplying
	// our own means we still hold a valid key when the create response
	// omits it.
	token := uuid.NewString()
	resp, err := s.provider.CreateInstance(ctx, evolution.CreateInstanceRequest{
		InstanceName: name,
		Token:        token,
		QRCode:       true,
		Integration:  s.integration,
		Settings:     providerSettings(req.Settings),
	})
	if err != nil {
		return Instance{}, fmt.Errorf("create provider instance: %w", err)
	}
	apiKey := resp.Token()
	if apiKey == "" {
		apiKey = token
	}

	if s.webhookURL != "" {
		err := s.provider.SetWebhook(ctx, name, apiKey, evolution.WebhookConfig{
			Webhook: evolution.WebhookSettings{
				Enabled: true,
				URL:     s.webhookURL,
				Events:  webhookEvents,
				Base64:  true,
			},
		})
		if err != nil {
			s.logger.Warn("webhook registration failed",
				slog.String("instance", name), slog.Any("error", err))
		}
	} else {
		s.logger.Warn("no public webhook url configured, inbound events will not arrive",
			slog.String("instance", name))
	}

	created, err := s.store.Create(ctx, Instance{
		Name:           name,
		Status:         StatusDisconnected,
		APIKey:         apiKey,
		Scope:          scope,
		OwnerAccountID: req.OwnerAccountID,
		Settings:       req.Settings,
	})
	if err != nil {
		return Instance{}, err
	}
	s.logger.Info("instance provisioned", slog.String("instance", name), slog.String("scope", string(scope)))
	return created, nil
}

// Connect asks the provider for pairing material and marks the instance
// connecting until the connection.update event lands.
func (s *Service) Connect(ctx context.Context, id string) (QRCode, error) {
	inst, err := s.store.GetByID(ctx, id)
	if err != nil {
		return QRCode{}, err
	}
	resp, err := s.provider.Connect(ctx, inst.Name, inst.APIKey)
	if err != nil {
		s.markError(ctx, inst)
		return QRCode{}, fmt.Errorf("connect instance %s: %w", inst.Name, err)
	}
	if err := s.store.UpdateStatus(ctx, inst.ID, StatusConnecting, "", ""); err != nil {
		return QRCode{}, err
	}
	return QRCode{Base64: resp.Base64, Code: resp.Code, PairingCode: resp.PairingCode}, nil
}

func (s *Service) Restart(ctx context.Context, id string) error {
	inst, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.provider.Restart(ctx, inst.Name, inst.APIKey); err != nil {
		s.markError(ctx, inst)
		return fmt.Errorf("restart instance %s: %w", inst.Name, err)
	}
	return nil
}

// markError flags an instance whose provider calls are failing. Best
// effort, the next status sync overwrites it with the real state.
func (s *Service) markError(ctx context.Context, inst Instance) {
	if err := s.store.UpdateStatus(ctx, inst.ID, StatusError, "", ""); err != nil {
		s.logger.Warn("status update failed",
			slog.String("instance", inst.Name), slog.Any("error", err))
	}
}

func (s *Service) Logout(ctx context.Context, id string) error {
	inst, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.provider.Logout(ctx, inst.Name, inst.APIKey); err != nil {
		return fmt.Errorf("logout instance %s: %w", inst.Name, err)
	}
	return s.store.UpdateStatus(ctx, inst.ID, StatusDisconnected, "", "")
}

// Deprovision removes the provider instance best effort and always
// deletes the local row. A missing remote instance is not an error.
func (s *Service) Deprovision(ctx context.Context, id string) error {
	inst, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.provider.DeleteInstance(ctx, inst.Name); err != nil && !evolution.IsNotFound(err) {
		s.logger.Warn("remote instance delete failed",
			slog.String("instance", inst.Name), slog.Any("error", err))
	}
	return s.store.Delete(ctx, inst.ID)
}

// ApplySettings pushes behavior toggles to the provider and mirrors
// them locally.
func (s *Service) ApplySettings(ctx context.Context, id string, settings Settings) (Instance, error) {
	inst, err := s.store.GetByID(ctx, id)
	if err != nil {
		return Instance{}, err
	}
	if err := s.provider.SetSettings(ctx, inst.Name, inst.APIKey, providerSettings(settings)); err != nil {
		return Instance{}, fmt.Errorf("apply settings to %s: %w", inst.Name, err)
	}
	if err := s.store.UpdateSettings(ctx, inst.ID, settings); err != nil {
		return Instance{}, err
	}
	return s.store.GetByID(ctx, inst.ID)
}

func (s *Service) Get(ctx context.Context, id string) (Instance, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) GetByName(ctx context.Context, name string) (Instance, error) {
	return s.store.GetByName(ctx, name)
}

func (s *Service) List(ctx context.Context) ([]Instance, error) {
	return s.store.List(ctx)
}

// MarkStatus records a connection state reported by the provider.
func (s *Service) MarkStatus(ctx context.Context, id string, status Status, phoneNumber, profileName string) error {
	return s.store.UpdateStatus(ctx, id, status, phoneNumber, profileName)
}

// SyncAll reconciles local status against the provider's instance list.
// Local instances the provider no longer knows are marked disconnected.
func (s *Service) SyncAll(ctx context.Context) error {
	remote, err := s.provider.FetchInstances(ctx)
	if err != nil {
		return fmt.Errorf("fetch provider instances: %w", err)
	}
	byName := make(map[string]evolution.InstanceInfo, len(remote))
	for _, info := range remote {
		byName[info.Name] = info
	}

	local, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]struct{}, len(local))
	for _, inst := range local {
		known[inst.Name] = struct{}{}
	}

	// Instances created on the provider outside of us get a local row so
	// their webhook traffic resolves. The per-instance key is unknown, so
	// outbound calls stay unavailable until it is reprovisioned.
	for name, info := range byName {
		if _, ok := known[name]; ok {
			continue
		}
		_, err := s.store.Create(ctx, Instance{
			Name:        name,
			Status:      StatusFromProvider(info.ConnectionStatus),
			Scope:       ScopeCompany,
			PhoneNumber: phoneFromJID(info.OwnerJID),
			ProfileName: info.ProfileName,
		})
		if err != nil {
			s.logger.Warn("import remote instance failed",
				slog.String("instance", name), slog.Any("error", err))
			continue
		}
		s.logger.Info("imported remote instance", slog.String("instance", name))
	}

	for _, inst := range local {
		info, ok := byName[inst.Name]
		status := StatusDisconnected
		phone, profile := "", ""
		if ok {
			status = StatusFromProvider(info.ConnectionStatus)
			phone = phoneFromJID(info.OwnerJID)
			profile = info.ProfileName
		}
		if status == inst.Status && phone == "" && profile == "" {
			continue
		}
		if err := s.store.UpdateStatus(ctx, inst.ID, status, phone, profile); err != nil {
			s.logger.Warn("status sync failed",
				slog.String("instance", inst.Name), slog.Any("error", err))
			continue
		}
		if status != inst.Status {
			s.logger.Info("instance status changed",
				slog.String("instance", inst.Name),
				slog.String("from", string(inst.Status)),
				slog.String("to", string(status)))
		}
	}
	return nil
}

// Verifying returns the instance number checks should go through for
// the given actor.
func (s *Service) Verifying(ctx context.Context, actorAccountID string) (Instance, error) {
	inst, err := s.store.FindVerifying(ctx, actorAccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Instance{}, ErrNoConnectedInstance
		}
		return Instance{}, err
	}
	return inst, nil
}

func providerSettings(s Settings) evolution.InstanceSettings {
	return evolution.InstanceSettings{
		RejectCall:      s.RejectCalls,
		MsgCall:         s.CallRejectedMessage,
		GroupsIgnore:    s.IgnoreGroups,
		AlwaysOnline:    s.AlwaysOnline,
		ReadMessages:    s.ReadMessages,
		ReadStatus:      s.ReadStatus,
		SyncFullHistory: s.SyncFullHistory,
	}
}

// phoneFromJID strips the server suffix from an owner JID, e.g.
// "5511999990000@s.whatsapp.net" becomes "5511999990000".
func phoneFromJID(jid string) string {
	jid = strings.TrimSpace(jid)
	if jid == "" {
		return ""
	}
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		jid = jid[:i]
	}
	return jid
}
