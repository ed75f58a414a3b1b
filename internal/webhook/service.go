package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zapdesk/zapdesk/internal/contact"
	"github.com/zapdesk/zapdesk/internal/instance"
	"github.com/zapdesk/zapdesk/internal/message"
	"github.com/zapdesk/zapdesk/internal/thread"
)

const (
	EventMessagesUpsert   = "messages.upsert"
	EventMessagesUpdate   = "messages.update"
	EventConnectionUpdate = "connection.update"
)

type instanceService interface {
	GetByName(ctx context.Context, name string) (instance.Instance, error)
	MarkStatus(ctx context.Context, id string, status instance.Status, phoneNumber, profileName string) error
}

type contactResolver interface {
	Resolve(ctx context.Context, inst instance.Instance, senderJID, pushName string) (contact.Contact, bool, error)
}

type messageStore interface {
	Create(ctx context.Context, m message.Message) (message.Message, bool, error)
	FindByProviderID(ctx context.Context, instanceID, providerMessageID string) (message.Message, error)
	UpdateState(ctx context.Context, id string, state message.State, failureReason string) error
}

type threadService interface {
	Ensure(ctx context.Context, inst instance.Instance, c contact.Contact) (thread.Thread, error)
}

// Service is the event router. One call per delivered event, processed
// synchronously; every outcome is a structured acknowledgement.
type Service struct {
	instances instanceService
	contacts  contactResolver
	messages  messageStore
	threads   threadService
	pipeline  *Pipeline
	logger    *slog.Logger
}

func NewService(log *slog.Logger, instances instanceService, contacts contactResolver, messages messageStore, threads threadService) *Service {
	s := &Service{
		instances: instances,
		contacts:  contacts,
		messages:  messages,
		threads:   threads,
		logger:    log.With(slog.String("service", "webhook")),
	}
	s.pipeline = NewPipeline(
		Stage{Name: "parse", Run: s.parseStage},
		Stage{Name: "resolve_contact", Run: s.resolveStage},
		Stage{Name: "log_message", Run: s.logStage},
		Stage{Name: "post_thread", Run: s.threadStage},
	)
	return s
}

// Handle routes one raw event body. It never returns an error: failures
// become structured results so the transport always responds.
func (s *Service) Handle(ctx context.Context, body []byte) Result {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		s.logger.Warn("malformed webhook payload", slog.Any("error", err))
		return Failed("malformed payload")
	}

	inst, err := s.instances.GetByName(ctx, env.Instance)
	if err != nil {
		if errors.Is(err, instance.ErrNotFound) {
			s.logger.Warn("event for unknown instance dropped", slog.String("instance", env.Instance))
			return Skipped(fmt.Sprintf("instance %s not found", env.Instance))
		}
		s.logger.Error("instance lookup failed", slog.String("instance", env.Instance), slog.Any("error", err))
		return Failed("instance lookup failed")
	}

	var result Result
	switch env.Event {
	case EventMessagesUpsert:
		result, err = s.handleUpsert(ctx, env, inst)
	case EventMessagesUpdate:
		result, err = s.handleUpdate(ctx, env, inst)
	case EventConnectionUpdate:
		result, err = s.handleConnection(ctx, env, inst)
	default:
		s.logger.Debug("ignoring event", slog.String("event", env.Event))
		return Skipped(fmt.Sprintf("event %s ignored", env.Event))
	}
	if err != nil {
		s.logger.Error("webhook processing failed",
			slog.String("event", env.Event),
			slog.String("instance", env.Instance),
			slog.Any("error", err))
		return Failed(err.Error())
	}
	return result
}

func (s *Service) handleUpsert(ctx context.Context, env Envelope, inst instance.Instance) (Result, error) {
	ev := &Event{Envelope: env, Instance: inst}
	if err := json.Unmarshal(env.Data, &ev.Upsert); err != nil {
		return Skipped("malformed upsert data"), nil
	}
	return s.pipeline.Run(ctx, ev)
}

func (s *Service) parseStage(_ context.Context, ev *Event) error {
	parsed, err := ParseUpsert(ev.Upsert)
	if err != nil {
		var skip errSkip
		if errors.As(err, &skip) {
			ev.Halt(Skipped(skip.reason))
			return nil
		}
		return err
	}
	ev.Parsed = parsed
	return nil
}

// resolveStage attaches the counterpart contact. Group chats have no
// single counterpart and are logged without one.
func (s *Service) resolveStage(ctx context.Context, ev *Event) error {
	if ev.Parsed.IsGroup {
		return nil
	}
	c, _, err := s.contacts.Resolve(ctx, ev.Instance, ev.Parsed.SenderJID, ev.Parsed.SenderName)
	if err != nil {
		if errors.Is(err, contact.ErrPhoneRequired) {
			return nil
		}
		return fmt.Errorf("resolve contact: %w", err)
	}
	ev.Contact = &c
	return nil
}

func (s *Service) logStage(ctx context.Context, ev *Event) error {
	p := ev.Parsed
	raw, _ := json.Marshal(ev.Envelope)

	m := message.Message{
		InstanceID:        ev.Instance.ID,
		ProviderMessageID: p.ProviderID,
		Direction:         p.Direction,
		State:             p.State,
		EventAt:           p.EventAt.Time(),
		SenderName:        p.SenderName,
		Phone:             contact.NormalizePhone(p.SenderJID),
		IsGroup:           p.IsGroup,
		Kind:              p.Kind,
		Body:              p.Body,
		MediaType:         p.MediaType,
		MediaURL:          p.MediaURL,
		MediaFilename:     p.MediaFilename,
		RawPayload:        raw,
	}
	if ev.Contact != nil {
		m.ContactID = ev.Contact.ID
	}
	if p.QuotedProviderID != "" {
		if quoted, err := s.messages.FindByProviderID(ctx, ev.Instance.ID, p.QuotedProviderID); err == nil {
			m.QuotedMessageID = quoted.ID
		}
	}
	if p.ReactedProviderID != "" {
		if reacted, err := s.messages.FindByProviderID(ctx, ev.Instance.ID, p.ReactedProviderID); err == nil {
			m.ReactedMessageID = reacted.ID
		}
	}

	stored, created, err := s.messages.Create(ctx, m)
	if err != nil {
		return fmt.Errorf("log message: %w", err)
	}
	if !created {
		s.logger.Info("duplicate event dropped",
			slog.String("instance", ev.Instance.Name),
			slog.String("provider_message_id", p.ProviderID))
		ev.Halt(Skipped("message already exists"))
		return nil
	}
	ev.Message = &stored
	s.logger.Info("message logged",
		slog.String("instance", ev.Instance.Name),
		slog.String("provider_message_id", p.ProviderID),
		slog.String("kind", string(p.Kind)),
		slog.String("direction", string(p.Direction)))
	return nil
}

func (s *Service) threadStage(ctx context.Context, ev *Event) error {
	if ev.Contact == nil {
		return nil
	}
	t, err := s.threads.Ensure(ctx, ev.Instance, *ev.Contact)
	if err != nil {
		return fmt.Errorf("ensure thread: %w", err)
	}
	ev.Thread = &t
	return nil
}

// handleUpdate applies provider status updates, forward-only.
func (s *Service) handleUpdate(ctx context.Context, env Envelope, inst instance.Instance) (Result, error) {
	updates, err := decodeUpdates(env.Data)
	if err != nil {
		return Skipped("malformed update data"), nil
	}
	applied := 0
	for _, u := range updates {
		state, ok := message.StateFromProvider(u.Status)
		if !ok || u.KeyID == "" {
			continue
		}
		m, err := s.messages.FindByProviderID(ctx, inst.ID, u.KeyID)
		if err != nil {
			if errors.Is(err, message.ErrNotFound) {
				continue
			}
			return Result{}, err
		}
		if !message.ValidTransition(m.State, state) {
			s.logger.Debug("status update ignored",
				slog.String("provider_message_id", u.KeyID),
				slog.String("from", string(m.State)),
				slog.String("to", string(state)))
			continue
		}
		if err := s.messages.UpdateState(ctx, m.ID, state, ""); err != nil {
			if errors.Is(err, message.ErrNotFound) {
				continue
			}
			return Result{}, err
		}
		applied++
	}
	return OK(fmt.Sprintf("%d status updates applied", applied)), nil
}

func decodeUpdates(data json.RawMessage) ([]UpdateData, error) {
	var list []UpdateData
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var single UpdateData
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	return []UpdateData{single}, nil
}

func (s *Service) handleConnection(ctx context.Context, env Envelope, inst instance.Instance) (Result, error) {
	var data ConnectionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return Skipped("malformed connection data"), nil
	}
	status := instance.StatusFromProvider(data.State)
	if err := s.instances.MarkStatus(ctx, inst.ID, status, "", ""); err != nil {
		return Result{}, fmt.Errorf("update instance status: %w", err)
	}
	s.logger.Info("instance connection update",
		slog.String("instance", inst.Name), slog.String("status", string(status)))
	return OK("connection status updated"), nil
}
