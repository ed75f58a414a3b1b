package thread

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zapdesk/zapdesk/internal/contact"
	"github.com/zapdesk/zapdesk/internal/instance"
)

type store interface {
	FindOrCreate(ctx context.Context, contactID, instanceID, name string) (Thread, bool, error)
	GetByID(ctx context.Context, id string) (Thread, error)
	AddMember(ctx context.Context, threadID string, kind MemberKind, memberID string) error
	ListMembers(ctx context.Context, threadID string) ([]Member, error)
	ListByInstance(ctx context.Context, instanceID string) ([]Thread, error)
}

type adminLister interface {
	ListAdminIDs(ctx context.Context) ([]string, error)
}

// Service keeps thread membership aligned with instance scope: a
// user-scoped instance pulls in its owner, a company-scoped one pulls
// in the administrators.
type Service struct {
	store  store
	admins adminLister
	logger *slog.Logger
}

func NewService(log *slog.Logger, st store, admins adminLister) *Service {
	return &Service{
		store:  st,
		admins: admins,
		logger: log.With(slog.String("service", "thread")),
	}
}

// Ensure returns the thread for the contact on the instance, creating
// it and seeding membership on first use.
func (s *Service) Ensure(ctx context.Context, inst instance.Instance, c contact.Contact) (Thread, error) {
	name := strings.TrimSpace(c.DisplayName)
	if name == "" {
		name = c.Mobile
	}
	t, created, err := s.store.FindOrCreate(ctx, c.ID, inst.ID, name)
	if err != nil {
		return Thread{}, fmt.Errorf("find or create thread: %w", err)
	}

	if err := s.store.AddMember(ctx, t.ID, MemberContact, c.ID); err != nil {
		return Thread{}, err
	}
	switch {
	case inst.Scope == instance.ScopeUser && inst.OwnerAccountID != "":
		if err := s.store.AddMember(ctx, t.ID, MemberAccount, inst.OwnerAccountID); err != nil {
			return Thread{}, err
		}
	default:
		adminIDs, err := s.admins.ListAdminIDs(ctx)
		if err != nil {
			s.logger.Warn("admin lookup failed", slog.Any("error", err))
			break
		}
		for _, id := range adminIDs {
			if err := s.store.AddMember(ctx, t.ID, MemberAccount, id); err != nil {
				return Thread{}, err
			}
		}
	}

	if created {
		s.logger.Info("thread created",
			slog.String("thread_id", t.ID),
			slog.String("contact_id", c.ID),
			slog.String("instance", inst.Name))
	}
	return t, nil
}

func (s *Service) Get(ctx context.Context, id string) (Thread, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) Members(ctx context.Context, id string) ([]Member, error) {
	return s.store.ListMembers(ctx, id)
}

func (s *Service) ListByInstance(ctx context.Context, instanceID string) ([]Thread, error) {
	return s.store.ListByInstance(ctx, instanceID)
}
