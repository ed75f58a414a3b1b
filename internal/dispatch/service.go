package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zapdesk/zapdesk/internal/auth"
	"github.com/zapdesk/zapdesk/internal/contact"
	"github.com/zapdesk/zapdesk/internal/evolution"
	"github.com/zapdesk/zapdesk/internal/instance"
	"github.com/zapdesk/zapdesk/internal/message"
)

type instanceGetter interface {
	Get(ctx context.Context, id string) (instance.Instance, error)
}

type contactGetter interface {
	Get(ctx context.Context, actor auth.Actor, contactID string) (contact.Contact, error)
}

type messageStore interface {
	Create(ctx context.Context, m message.Message) (message.Message, bool, error)
	GetByID(ctx context.Context, id string) (message.Message, error)
	SetRemote(ctx context.Context, id, providerMessageID string, state message.State) (message.Message, error)
	UpdateState(ctx context.Context, id string, state message.State, failureReason string) error
}

type providerSender interface {
	SendText(ctx context.Context, name, apiKey string, msg evolution.TextMessage) (evolution.SendResponse, error)
	SendMedia(ctx context.Context, name, apiKey string, msg evolution.MediaMessage) (evolution.SendResponse, error)
	SendAudio(ctx context.Context, name, apiKey string, msg evolution.AudioMessage) (evolution.SendResponse, error)
	SendSticker(ctx context.Context, name, apiKey string, msg evolution.StickerMessage) (evolution.SendResponse, error)
	SendReaction(ctx context.Context, name, apiKey string, msg evolution.ReactionMessage) (evolution.SendResponse, error)
}

// Service is the outbound dispatcher.
type Service struct {
	instances instanceGetter
	contacts  contactGetter
	messages  messageStore
	provider  providerSender
	logger    *slog.Logger
}

func NewService(log *slog.Logger, instances instanceGetter, contacts contactGetter, messages messageStore, provider providerSender) *Service {
	return &Service{
		instances: instances,
		contacts:  contacts,
		messages:  messages,
		provider:  provider,
		logger:    log.With(slog.String("service", "dispatch")),
	}
}

func nowUTC() time.Time { return time.Now().UTC() }

// Send delivers one message. The record is persisted as pending before
// the provider call so a crash mid-send still leaves a trace; the state
// then moves to sent or failed.
func (s *Service) Send(ctx context.Context, actor auth.Actor, req SendRequest) (SendResult, error) {
	inst, err := s.instances.Get(ctx, req.InstanceID)
	if err != nil {
		return SendResult{}, err
	}
	c, err := s.contacts.Get(ctx, actor, req.ContactID)
	if err != nil {
		return SendResult{}, err
	}

	number := contact.Digits(c.Mobile)
	if number == "" {
		number = contact.Digits(c.Phone)
	}
	if number == "" {
		return SendResult{}, ErrNoRecipient
	}

	kind := req.Kind
	if kind == "" {
		kind = message.KindText
	}
	if kind == message.KindText && strings.TrimSpace(req.Body) == "" {
		return SendResult{}, ErrEmptyMessage
	}
	switch kind {
	case message.KindText, message.KindImage, message.KindVideo,
		message.KindDocument, message.KindAudio, message.KindSticker:
	default:
		return SendResult{}, ErrUnsupportedKind
	}

	quoted := s.resolveQuoted(ctx, req.QuotedMessageID, number)

	pending := message.Message{
		InstanceID: inst.ID,
		ContactID:  c.ID,
		Direction:  message.Outbound,
		State:      message.StatePending,
		EventAt:    nowUTC(),
		Phone:      "+" + number,
		Kind:       kind,
		Body:       req.Body,
	}
	if kind != message.KindText {
		pending.MediaType = string(kind)
		pending.MediaFilename = req.Filename
	}
	if req.QuotedMessageID != "" && quoted != nil {
		pending.QuotedMessageID = req.QuotedMessageID
	}
	stored, _, err := s.messages.Create(ctx, pending)
	if err != nil {
		return SendResult{}, fmt.Errorf("persist outbound message: %w", err)
	}

	resp, sendErr := s.callProvider(ctx, inst, number, kind, req, quoted)
	if sendErr != nil {
		if err := s.messages.UpdateState(ctx, stored.ID, message.StateFailed, sendErr.Error()); err != nil {
			s.logger.Error("failed to record send failure",
				slog.String("message_id", stored.ID), slog.Any("error", err))
		}
		s.logger.Warn("outbound send failed",
			slog.String("instance", inst.Name),
			slog.String("contact_id", c.ID),
			slog.Any("error", sendErr))
		return SendResult{}, fmt.Errorf("send via %s: %w", inst.Name, sendErr)
	}

	final, err := s.messages.SetRemote(ctx, stored.ID, resp.Key.ID, message.StateSent)
	if err != nil {
		return SendResult{}, err
	}
	s.logger.Info("message sent",
		slog.String("instance", inst.Name),
		slog.String("contact_id", c.ID),
		slog.String("remote_id", resp.Key.ID),
		slog.String("kind", string(kind)))
	return SendResult{Message: final, RemoteID: resp.Key.ID}, nil
}

func (s *Service) callProvider(ctx context.Context, inst instance.Instance, number string, kind message.Kind, req SendRequest, quoted *evolution.QuotedRef) (evolution.SendResponse, error) {
	switch kind {
	case message.KindText:
		return s.provider.SendText(ctx, inst.Name, inst.APIKey, evolution.TextMessage{
			Number: number,
			Text:   req.Body,
			Quoted: quoted,
		})
	case message.KindImage, message.KindVideo, message.KindDocument:
		return s.provider.SendMedia(ctx, inst.Name, inst.APIKey, evolution.MediaMessage{
			Number:    number,
			MediaType: string(kind),
			Media:     req.Media,
			Caption:   req.Body,
			FileName:  req.Filename,
			Quoted:    quoted,
		})
	case message.KindAudio:
		return s.provider.SendAudio(ctx, inst.Name, inst.APIKey, evolution.AudioMessage{
			Number: number,
			Audio:  req.Media,
		})
	case message.KindSticker:
		return s.provider.SendSticker(ctx, inst.Name, inst.APIKey, evolution.StickerMessage{
			Number:  number,
			Sticker: req.Media,
		})
	default:
		return evolution.SendResponse{}, ErrUnsupportedKind
	}
}

// resolveQuoted turns a local message id into a provider reply
// reference. A reference that cannot be resolved is dropped, the send
// still goes out unthreaded.
func (s *Service) resolveQuoted(ctx context.Context, localID, number string) *evolution.QuotedRef {
	if localID == "" {
		return nil
	}
	m, err := s.messages.GetByID(ctx, localID)
	if err != nil || m.ProviderMessageID == "" {
		s.logger.Warn("reply reference dropped",
			slog.String("quoted_message_id", localID))
		return nil
	}
	return &evolution.QuotedRef{Key: evolution.MessageKey{
		ID:        m.ProviderMessageID,
		RemoteJID: number + "@s.whatsapp.net",
		FromMe:    m.Direction == message.Outbound,
	}}
}

// React sends an emoji reaction to a logged message and records it as
// its own outbound message row.
func (s *Service) React(ctx context.Context, actor auth.Actor, localMessageID, emoji string) (SendResult, error) {
	target, err := s.messages.GetByID(ctx, localMessageID)
	if err != nil {
		return SendResult{}, err
	}
	if target.ProviderMessageID == "" {
		return SendResult{}, ErrNoRemoteID
	}
	if target.ContactID != "" {
		if _, err := s.contacts.Get(ctx, actor, target.ContactID); err != nil {
			return SendResult{}, err
		}
	}
	inst, err := s.instances.Get(ctx, target.InstanceID)
	if err != nil {
		return SendResult{}, err
	}
	number := contact.Digits(target.Phone)
	if number == "" {
		return SendResult{}, ErrNoRecipient
	}

	body := "Reaction removed"
	if emoji != "" {
		body = fmt.Sprintf("Reacted with %s", emoji)
	}
	pending := message.Message{
		InstanceID:       inst.ID,
		ContactID:        target.ContactID,
		Direction:        message.Outbound,
		State:            message.StatePending,
		EventAt:          nowUTC(),
		Phone:            target.Phone,
		Kind:             message.KindReaction,
		Body:             body,
		ReactedMessageID: target.ID,
	}
	stored, _, err := s.messages.Create(ctx, pending)
	if err != nil {
		return SendResult{}, fmt.Errorf("persist reaction: %w", err)
	}

	resp, sendErr := s.provider.SendReaction(ctx, inst.Name, inst.APIKey, evolution.ReactionMessage{
		Key: evolution.MessageKey{
			ID:        target.ProviderMessageID,
			RemoteJID: number + "@s.whatsapp.net",
			FromMe:    target.Direction == message.Outbound,
		},
		Reaction: emoji,
	})
	if sendErr != nil {
		if err := s.messages.UpdateState(ctx, stored.ID, message.StateFailed, sendErr.Error()); err != nil {
			s.logger.Error("failed to record reaction failure",
				slog.String("message_id", stored.ID), slog.Any("error", err))
		}
		return SendResult{}, fmt.Errorf("send reaction via %s: %w", inst.Name, sendErr)
	}
	final, err := s.messages.SetRemote(ctx, stored.ID, resp.Key.ID, message.StateSent)
	if err != nil {
		return SendResult{}, err
	}
	return SendResult{Message: final, RemoteID: resp.Key.ID}, nil
}
