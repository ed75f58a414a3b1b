package contact

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zapdesk/zapdesk/internal/auth"
	"github.com/zapdesk/zapdesk/internal/evolution"
	"github.com/zapdesk/zapdesk/internal/instance"
)

type store interface {
	Create(ctx context.Context, c Contact) (Contact, error)
	GetByID(ctx context.Context, id string) (Contact, error)
	FindCandidates(ctx context.Context, digits string) ([]Contact, error)
	List(ctx context.Context, accountID string, admin bool) ([]Contact, error)
	Promote(ctx context.Context, id string, at time.Time) (Contact, error)
	Revert(ctx context.Context, id, ownerAccountID string) (Contact, error)
	SetVerified(ctx context.Context, id, mobile string, at time.Time) (Contact, error)
	SetAvatar(ctx context.Context, id, url string) error
	AddNote(ctx context.Context, contactID, author, body string) (Note, error)
	ListNotes(ctx context.Context, contactID string) ([]Note, error)
}

type instanceDirectory interface {
	Verifying(ctx context.Context, actorAccountID string) (instance.Instance, error)
}

type providerClient interface {
	CheckNumbers(ctx context.Context, name, apiKey string, numbers []string) ([]evolution.NumberCheck, error)
	FetchProfilePicture(ctx context.Context, name, apiKey, number string) (evolution.ProfilePicture, error)
}

// Service applies the directory rules on top of the store.
type Service struct {
	store     store
	instances instanceDirectory
	provider  providerClient
	window    time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

func NewService(log *slog.Logger, st store, instances instanceDirectory, provider providerClient, revertWindow time.Duration) *Service {
	if revertWindow <= 0 {
		revertWindow = 24 * time.Hour
	}
	return &Service{
		store:     st,
		instances: instances,
		provider:  provider,
		window:    revertWindow,
		now:       time.Now,
		logger:    log.With(slog.String("service", "contact")),
	}
}

// Resolve finds the contact for an inbound sender, creating one when
// nothing matches. A private contact reached through a company-scoped
// instance is promoted on the spot. The second return reports whether
// the contact was created.
func (s *Service) Resolve(ctx context.Context, inst instance.Instance, senderJID, pushName string) (Contact, bool, error) {
	digits := Digits(senderJID)
	if digits == "" {
		return Contact{}, false, ErrPhoneRequired
	}
	normalized := "+" + digits

	candidates, err := s.store.FindCandidates(ctx, digits)
	if err != nil {
		return Contact{}, false, err
	}
	found, ok := pickCandidate(candidates, normalized)
	if ok {
		if len(candidates) > 1 {
			s.logger.Warn("multiple contacts match inbound number",
				slog.String("number", normalized), slog.Int("matches", len(candidates)),
				slog.String("picked", found.ID))
		}
		if found.IsPrivate && inst.Scope == instance.ScopeCompany {
			promoted, err := s.promoteForSharedTraffic(ctx, found, inst)
			if err != nil {
				return Contact{}, false, err
			}
			found = promoted
		}
		if found.AvatarURL == "" {
			s.fetchAvatar(ctx, found.ID, inst, digits)
		}
		return found, false, nil
	}

	name := strings.TrimSpace(pushName)
	if name == "" {
		name = digits
	}
	fresh := Contact{
		DisplayName:      name,
		Mobile:           normalized,
		Verified:         true,
		VerifiedAt:       s.now().UTC(),
		OriginInstanceID: inst.ID,
	}
	if inst.Scope == instance.ScopeUser && inst.OwnerAccountID != "" {
		fresh.IsPrivate = true
		fresh.OwnerAccountID = inst.OwnerAccountID
	}
	created, err := s.store.Create(ctx, fresh)
	if err != nil {
		return Contact{}, false, fmt.Errorf("create contact for %s: %w", normalized, err)
	}
	s.auditNote(ctx, created.ID, "", "Contact created from an inbound WhatsApp message.")
	s.fetchAvatar(ctx, created.ID, inst, digits)
	s.logger.Info("contact created from inbound message",
		slog.String("contact_id", created.ID), slog.String("number", normalized),
		slog.Bool("private", created.IsPrivate))
	return created, true, nil
}

// pickCandidate prefers an exact normalized match, then falls back to
// the oldest loose match.
func pickCandidate(candidates []Contact, normalized string) (Contact, bool) {
	for _, c := range candidates {
		if NormalizePhone(c.Mobile) == normalized || NormalizePhone(c.Phone) == normalized {
			return c, true
		}
	}
	if len(candidates) > 0 {
		return candidates[0], true
	}
	return Contact{}, false
}

func (s *Service) promoteForSharedTraffic(ctx context.Context, c Contact, inst instance.Instance) (Contact, error) {
	priorOwner := c.OwnerAccountID
	promoted, err := s.store.Promote(ctx, c.ID, s.now().UTC())
	if err != nil {
		return Contact{}, fmt.Errorf("promote contact %s: %w", c.ID, err)
	}
	s.auditNote(ctx, c.ID, "", fmt.Sprintf("Contact promoted to company scope after messaging the shared instance %q. Previous owner: %s.", inst.Name, priorOwner))
	s.logger.Info("contact auto-promoted",
		slog.String("contact_id", c.ID), slog.String("instance", inst.Name))
	return promoted, nil
}

// fetchAvatar pulls the profile picture in the background. The webhook
// response never waits on it.
func (s *Service) fetchAvatar(ctx context.Context, contactID string, inst instance.Instance, digits string) {
	if s.provider == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(bg, 15*time.Second)
		defer cancel()
		pic, err := s.provider.FetchProfilePicture(ctx, inst.Name, inst.APIKey, digits)
		if err != nil || pic.ProfilePictureURL == "" {
			return
		}
		if err := s.store.SetAvatar(ctx, contactID, pic.ProfilePictureURL); err != nil {
			s.logger.Warn("avatar update failed", slog.String("contact_id", contactID), slog.Any("error", err))
		}
	}()
}

// Promote makes a private contact visible to the whole company. Only
// the owner or an administrator may do it.
func (s *Service) Promote(ctx context.Context, actor auth.Actor, contactID string) (Contact, error) {
	c, err := s.store.GetByID(ctx, contactID)
	if err != nil {
		return Contact{}, err
	}
	if !c.IsPrivate {
		return Contact{}, ErrAlreadyPublic
	}
	if c.OwnerAccountID != actor.AccountID && !actor.Admin {
		return Contact{}, ErrNotOwner
	}
	promoted, err := s.store.Promote(ctx, c.ID, s.now().UTC())
	if err != nil {
		return Contact{}, err
	}
	s.auditNote(ctx, c.ID, actor.AccountID,
		fmt.Sprintf("Contact promoted to company scope. Previous owner: %s.", c.OwnerAccountID))
	return promoted, nil
}

// Revert undoes a promotion. The original owner may revert within the
// configured window; administrators may revert at any time.
func (s *Service) Revert(ctx context.Context, actor auth.Actor, contactID string) (Contact, error) {
	c, err := s.store.GetByID(ctx, contactID)
	if err != nil {
		return Contact{}, err
	}
	if c.IsPrivate {
		return Contact{}, ErrAlreadyPrivate
	}

	owner := c.PromotedFromAccountID
	if actor.Admin {
		if owner == "" {
			owner = actor.AccountID
		}
	} else {
		if owner == "" || owner != actor.AccountID {
			return Contact{}, ErrNotOwner
		}
		if c.PromotedAt.IsZero() || s.now().After(c.PromotedAt.Add(s.window)) {
			return Contact{}, ErrRevertWindowExpired
		}
	}

	reverted, err := s.store.Revert(ctx, c.ID, owner)
	if err != nil {
		return Contact{}, err
	}
	body := "Promotion reverted by the owner."
	if actor.Admin {
		body = "Promotion reverted by an administrator."
	}
	s.auditNote(ctx, c.ID, actor.AccountID, body)
	return reverted, nil
}

// Verify checks the contact's number against WhatsApp through the
// actor's verifying instance and stamps the result.
func (s *Service) Verify(ctx context.Context, actor auth.Actor, contactID string) (Contact, error) {
	c, err := s.store.GetByID(ctx, contactID)
	if err != nil {
		return Contact{}, err
	}
	number := c.Mobile
	if number == "" {
		number = c.Phone
	}
	digits := Digits(number)
	if digits == "" {
		s.auditNote(ctx, c.ID, actor.AccountID, "WhatsApp verification failed: contact has no phone number.")
		return Contact{}, ErrPhoneRequired
	}

	inst, err := s.instances.Verifying(ctx, actor.AccountID)
	if err != nil {
		return Contact{}, err
	}
	checks, err := s.provider.CheckNumbers(ctx, inst.Name, inst.APIKey, []string{digits})
	if err != nil {
		s.auditNote(ctx, c.ID, actor.AccountID,
			fmt.Sprintf("WhatsApp verification failed: provider lookup error (%v).", err))
		return Contact{}, fmt.Errorf("check number %s: %w", digits, err)
	}
	var hit *evolution.NumberCheck
	for i := range checks {
		if checks[i].Exists {
			hit = &checks[i]
			break
		}
	}
	if hit == nil {
		s.auditNote(ctx, c.ID, actor.AccountID,
			fmt.Sprintf("WhatsApp verification failed: +%s is not registered on WhatsApp.", digits))
		return Contact{}, ErrNotOnWhatsApp
	}

	canonical := NormalizePhone(hit.JID)
	if canonical == "" {
		canonical = "+" + digits
	}
	verified, err := s.store.SetVerified(ctx, c.ID, canonical, s.now().UTC())
	if err != nil {
		return Contact{}, err
	}
	s.auditNote(ctx, c.ID, actor.AccountID,
		fmt.Sprintf("WhatsApp number verified via instance %q.", inst.Name))
	return verified, nil
}

// auditNote records a best-effort note on the contact. Note failures
// never fail the operation that triggered them.
func (s *Service) auditNote(ctx context.Context, contactID, author, body string) {
	if _, err := s.store.AddNote(ctx, contactID, author, body); err != nil {
		s.logger.Warn("audit note failed", slog.String("contact_id", contactID), slog.Any("error", err))
	}
}

// Get loads a contact, enforcing private visibility for the actor.
func (s *Service) Get(ctx context.Context, actor auth.Actor, contactID string) (Contact, error) {
	c, err := s.store.GetByID(ctx, contactID)
	if err != nil {
		return Contact{}, err
	}
	if !c.VisibleTo(actor.AccountID, actor.Admin) {
		return Contact{}, ErrNotFound
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, actor auth.Actor) ([]Contact, error) {
	return s.store.List(ctx, actor.AccountID, actor.Admin)
}

func (s *Service) Notes(ctx context.Context, actor auth.Actor, contactID string) ([]Note, error) {
	if _, err := s.Get(ctx, actor, contactID); err != nil {
		return nil, err
	}
	return s.store.ListNotes(ctx, contactID)
}

func (s *Service) AddNote(ctx context.Context, actor auth.Actor, contactID, body string) (Note, error) {
	if _, err := s.Get(ctx, actor, contactID); err != nil {
		return Note{}, err
	}
	return s.store.AddNote(ctx, contactID, actor.AccountID, body)
}
