package contact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/zapdesk/zapdesk/internal/auth"
	"github.com/zapdesk/zapdesk/internal/evolution"
	"github.com/zapdesk/zapdesk/internal/instance"
)

type fakeStore struct {
	contacts map[string]Contact
	notes    []Note
	nextID   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{contacts: map[string]Contact{}}
}

func (f *fakeStore) Create(_ context.Context, c Contact) (Contact, error) {
	f.nextID++
	c.ID = fmt.Sprintf("00000000-0000-0000-0000-%012d", f.nextID)
	c.CreatedAt = time.Now().UTC()
	f.contacts[c.ID] = c
	return c, nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (Contact, error) {
	c, ok := f.contacts[id]
	if !ok {
		return Contact{}, ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) FindCandidates(_ context.Context, digits string) ([]Contact, error) {
	var out []Contact
	for _, c := range f.contacts {
		if strings.Contains(Digits(c.Mobile), digits) || strings.Contains(Digits(c.Phone), digits) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) List(_ context.Context, accountID string, admin bool) ([]Contact, error) {
	var out []Contact
	for _, c := range f.contacts {
		if c.VisibleTo(accountID, admin) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) Promote(_ context.Context, id string, at time.Time) (Contact, error) {
	c, ok := f.contacts[id]
	if !ok {
		return Contact{}, ErrNotFound
	}
	c.IsPrivate = false
	c.PromotedAt = at
	c.PromotedFromAccountID = c.OwnerAccountID
	c.OwnerAccountID = ""
	f.contacts[id] = c
	return c, nil
}

func (f *fakeStore) Revert(_ context.Context, id, ownerAccountID string) (Contact, error) {
	c, ok := f.contacts[id]
	if !ok {
		return Contact{}, ErrNotFound
	}
	c.IsPrivate = true
	c.OwnerAccountID = ownerAccountID
	c.PromotedAt = time.Time{}
	c.PromotedFromAccountID = ""
	f.contacts[id] = c
	return c, nil
}

func (f *fakeStore) SetVerified(_ context.Context, id, mobile string, at time.Time) (Contact, error) {
	c, ok := f.contacts[id]
	if !ok {
		return Contact{}, ErrNotFound
	}
	c.Verified = true
	c.VerifiedAt = at
	if mobile != "" {
		c.Mobile = mobile
	}
	f.contacts[id] = c
	return c, nil
}

func (f *fakeStore) SetAvatar(_ context.Context, id, url string) error {
	c, ok := f.contacts[id]
	if !ok {
		return ErrNotFound
	}
	c.AvatarURL = url
	f.contacts[id] = c
	return nil
}

func (f *fakeStore) AddNote(_ context.Context, contactID, author, body string) (Note, error) {
	note := Note{ContactID: contactID, Author: author, Body: body, CreatedAt: time.Now().UTC()}
	f.notes = append(f.notes, note)
	return note, nil
}

func (f *fakeStore) ListNotes(_ context.Context, contactID string) ([]Note, error) {
	var out []Note
	for _, n := range f.notes {
		if n.ContactID == contactID {
			out = append(out, n)
		}
	}
	return out, nil
}

type fakeDirectory struct {
	inst instance.Instance
	err  error
}

func (f *fakeDirectory) Verifying(_ context.Context, _ string) (instance.Instance, error) {
	return f.inst, f.err
}

type fakeProvider struct {
	checks   []evolution.NumberCheck
	checkErr error
}

func (f *fakeProvider) CheckNumbers(_ context.Context, _, _ string, _ []string) ([]evolution.NumberCheck, error) {
	return f.checks, f.checkErr
}

func (f *fakeProvider) FetchProfilePicture(_ context.Context, _, _, _ string) (evolution.ProfilePicture, error) {
	return evolution.ProfilePicture{}, errors.New("unavailable")
}

func newTestService(st *fakeStore, dir *fakeDirectory, provider *fakeProvider) *Service {
	return NewService(slog.Default(), st, dir, provider, 24*time.Hour)
}

var (
	companyInstance = instance.Instance{
		ID: "10000000-0000-0000-0000-000000000001", Name: "sales1",
		Scope: instance.ScopeCompany, Status: instance.StatusConnected,
	}
	userInstance = instance.Instance{
		ID: "10000000-0000-0000-0000-000000000002", Name: "personal",
		Scope: instance.ScopeUser, OwnerAccountID: "acct-1",
		Status: instance.StatusConnected,
	}
)

func TestResolveCreatesContactFromInboundMessage(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	svc := newTestService(st, &fakeDirectory{}, &fakeProvider{})

	c, created, err := svc.Resolve(context.Background(), companyInstance, "5511999990000@s.whatsapp.net", "Maria")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("expected a new contact")
	}
	if c.DisplayName != "Maria" {
		t.Fatalf("display name = %q, want Maria", c.DisplayName)
	}
	if c.Mobile != "+5511999990000" {
		t.Fatalf("mobile = %q, want +5511999990000", c.Mobile)
	}
	if c.IsPrivate {
		t.Fatal("contact from a company instance should be public")
	}
	if !c.Verified {
		t.Fatal("inbound-created contact counts as verified")
	}
	if c.OriginInstanceID != companyInstance.ID {
		t.Fatalf("origin instance = %q", c.OriginInstanceID)
	}
}

func TestResolveUserInstanceCreatesPrivateContact(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	svc := newTestService(st, &fakeDirectory{}, &fakeProvider{})

	c, _, err := svc.Resolve(context.Background(), userInstance, "5511988880000@s.whatsapp.net", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.IsPrivate || c.OwnerAccountID != "acct-1" {
		t.Fatalf("expected private contact owned by acct-1, got %+v", c)
	}
	if c.DisplayName != "5511988880000" {
		t.Fatalf("missing push name should fall back to digits, got %q", c.DisplayName)
	}
}

func TestResolveFindsExistingByLooseMatch(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	existing, _ := st.Create(context.Background(), Contact{DisplayName: "Maria", Mobile: "+55 (11) 99999-0000"})
	svc := newTestService(st, &fakeDirectory{}, &fakeProvider{})

	c, created, err := svc.Resolve(context.Background(), companyInstance, "5511999990000@s.whatsapp.net", "Maria")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatal("should have matched the existing contact")
	}
	if c.ID != existing.ID {
		t.Fatalf("matched %q, want %q", c.ID, existing.ID)
	}
}

func TestResolvePromotesPrivateContactOnCompanyInstance(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	private, _ := st.Create(context.Background(), Contact{
		DisplayName: "Maria", Mobile: "+5511999990000",
		IsPrivate: true, OwnerAccountID: "acct-1",
	})
	svc := newTestService(st, &fakeDirectory{}, &fakeProvider{})

	c, _, err := svc.Resolve(context.Background(), companyInstance, "5511999990000@s.whatsapp.net", "Maria")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.IsPrivate {
		t.Fatal("contact should have been promoted")
	}
	if c.OwnerAccountID != "" {
		t.Fatalf("owner should be cleared on promotion, got %q", c.OwnerAccountID)
	}
	if c.PromotedFromAccountID != "acct-1" {
		t.Fatalf("prior owner not remembered: %q", c.PromotedFromAccountID)
	}
	if c.PromotedAt.IsZero() {
		t.Fatal("promotion timestamp not set")
	}
	notes, _ := st.ListNotes(context.Background(), private.ID)
	if len(notes) != 1 || !strings.Contains(notes[0].Body, "acct-1") {
		t.Fatalf("expected an audit note naming the prior owner, got %+v", notes)
	}
}

func TestResolveStaysPrivateOnUserInstance(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	_, _ = st.Create(context.Background(), Contact{
		DisplayName: "Maria", Mobile: "+5511999990000",
		IsPrivate: true, OwnerAccountID: "acct-1",
	})
	svc := newTestService(st, &fakeDirectory{}, &fakeProvider{})

	c, _, err := svc.Resolve(context.Background(), userInstance, "5511999990000@s.whatsapp.net", "Maria")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.IsPrivate {
		t.Fatal("user-scoped traffic must not promote a private contact")
	}
}

func TestResolvePrefersExactMatch(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	_, _ = st.Create(context.Background(), Contact{DisplayName: "Landline", Phone: "+555511999990000"})
	exact, _ := st.Create(context.Background(), Contact{DisplayName: "Maria", Mobile: "+5511999990000"})
	svc := newTestService(st, &fakeDirectory{}, &fakeProvider{})

	c, _, err := svc.Resolve(context.Background(), companyInstance, "5511999990000@s.whatsapp.net", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ID != exact.ID {
		t.Fatalf("expected the exact match, got %q", c.DisplayName)
	}
}

func TestPromoteAuthorization(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	private, _ := st.Create(context.Background(), Contact{
		DisplayName: "Maria", Mobile: "+5511999990000",
		IsPrivate: true, OwnerAccountID: "acct-1",
	})
	svc := newTestService(st, &fakeDirectory{}, &fakeProvider{})
	ctx := context.Background()

	if _, err := svc.Promote(ctx, auth.Actor{AccountID: "acct-2"}, private.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("stranger promote should fail with ErrNotOwner, got %v", err)
	}
	promoted, err := svc.Promote(ctx, auth.Actor{AccountID: "acct-1"}, private.ID)
	if err != nil {
		t.Fatalf("owner promote failed: %v", err)
	}
	if promoted.IsPrivate || promoted.OwnerAccountID != "" {
		t.Fatalf("promotion left inconsistent state: %+v", promoted)
	}
	if _, err := svc.Promote(ctx, auth.Actor{AccountID: "acct-1"}, private.ID); !errors.Is(err, ErrAlreadyPublic) {
		t.Fatalf("double promote should fail with ErrAlreadyPublic, got %v", err)
	}
}

func TestRevertWindow(t *testing.T) {
	t.Parallel()

	const window = 24 * time.Hour
	promotedAt := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	setup := func() (*Service, string) {
		st := newFakeStore()
		c, _ := st.Create(context.Background(), Contact{
			DisplayName: "Maria", Mobile: "+5511999990000",
			PromotedAt: promotedAt, PromotedFromAccountID: "acct-1",
		})
		svc := NewService(slog.Default(), st, &fakeDirectory{}, &fakeProvider{}, window)
		return svc, c.ID
	}
	ctx := context.Background()
	owner := auth.Actor{AccountID: "acct-1"}

	svc, id := setup()
	svc.now = func() time.Time { return promotedAt.Add(window - time.Hour) }
	reverted, err := svc.Revert(ctx, owner, id)
	if err != nil {
		t.Fatalf("revert inside the window failed: %v", err)
	}
	if !reverted.IsPrivate || reverted.OwnerAccountID != "acct-1" {
		t.Fatalf("revert did not restore ownership: %+v", reverted)
	}

	svc, id = setup()
	svc.now = func() time.Time { return promotedAt.Add(window + time.Hour) }
	if _, err := svc.Revert(ctx, owner, id); !errors.Is(err, ErrRevertWindowExpired) {
		t.Fatalf("revert outside the window should expire, got %v", err)
	}

	// Administrators bypass the window.
	svc, id = setup()
	svc.now = func() time.Time { return promotedAt.Add(30 * 24 * time.Hour) }
	reverted, err = svc.Revert(ctx, auth.Actor{AccountID: "admin", Admin: true}, id)
	if err != nil {
		t.Fatalf("admin revert failed: %v", err)
	}
	if reverted.OwnerAccountID != "acct-1" {
		t.Fatalf("admin revert should restore the prior owner, got %q", reverted.OwnerAccountID)
	}
}

func TestRevertRequiresOriginalOwner(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	c, _ := st.Create(context.Background(), Contact{
		DisplayName: "Maria", Mobile: "+5511999990000",
		PromotedAt: time.Now().UTC(), PromotedFromAccountID: "acct-1",
	})
	svc := newTestService(st, &fakeDirectory{}, &fakeProvider{})

	if _, err := svc.Revert(context.Background(), auth.Actor{AccountID: "acct-2"}, c.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestVerifyStampsCanonicalNumber(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	c, _ := st.Create(context.Background(), Contact{DisplayName: "Maria", Mobile: "+55 11 99999-0000"})
	provider := &fakeProvider{checks: []evolution.NumberCheck{
		{Number: "5511999990000", Exists: true, JID: "5511999990000@s.whatsapp.net"},
	}}
	svc := newTestService(st, &fakeDirectory{inst: companyInstance}, provider)

	verified, err := svc.Verify(context.Background(), auth.Actor{AccountID: "acct-1"}, c.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !verified.Verified || verified.VerifiedAt.IsZero() {
		t.Fatalf("verification not stamped: %+v", verified)
	}
	if verified.Mobile != "+5511999990000" {
		t.Fatalf("mobile not canonicalized from the provider jid: %q", verified.Mobile)
	}
}

func TestVerifyUnknownNumber(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	c, _ := st.Create(context.Background(), Contact{DisplayName: "Maria", Mobile: "+5511999990000"})
	provider := &fakeProvider{checks: []evolution.NumberCheck{{Number: "5511999990000", Exists: false}}}
	svc := newTestService(st, &fakeDirectory{inst: companyInstance}, provider)

	if _, err := svc.Verify(context.Background(), auth.Actor{AccountID: "acct-1"}, c.ID); !errors.Is(err, ErrNotOnWhatsApp) {
		t.Fatalf("expected ErrNotOnWhatsApp, got %v", err)
	}
	got, _ := st.GetByID(context.Background(), c.ID)
	if got.Verified {
		t.Fatal("failed verification must not set the verified flag")
	}
	notes, _ := st.ListNotes(context.Background(), c.ID)
	if len(notes) != 1 || !strings.Contains(notes[0].Body, "not registered") {
		t.Fatalf("expected a failure note, got %+v", notes)
	}
}

func TestVerifyWithoutNumber(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	c, _ := st.Create(context.Background(), Contact{DisplayName: "No Phone"})
	svc := newTestService(st, &fakeDirectory{inst: companyInstance}, &fakeProvider{})

	if _, err := svc.Verify(context.Background(), auth.Actor{AccountID: "acct-1"}, c.ID); !errors.Is(err, ErrPhoneRequired) {
		t.Fatalf("expected ErrPhoneRequired, got %v", err)
	}
	notes, _ := st.ListNotes(context.Background(), c.ID)
	if len(notes) != 1 || !strings.Contains(notes[0].Body, "no phone number") {
		t.Fatalf("expected a failure note, got %+v", notes)
	}
}

func TestVerifyProviderErrorRecordsFailureNote(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	c, _ := st.Create(context.Background(), Contact{DisplayName: "Maria", Mobile: "+5511999990000"})
	provider := &fakeProvider{checkErr: errors.New("connection refused")}
	svc := newTestService(st, &fakeDirectory{inst: companyInstance}, provider)

	if _, err := svc.Verify(context.Background(), auth.Actor{AccountID: "acct-1"}, c.ID); err == nil {
		t.Fatal("expected an error from the provider lookup")
	}
	got, _ := st.GetByID(context.Background(), c.ID)
	if got.Verified {
		t.Fatal("failed verification must not set the verified flag")
	}
	notes, _ := st.ListNotes(context.Background(), c.ID)
	if len(notes) != 1 || !strings.Contains(notes[0].Body, "provider lookup error") {
		t.Fatalf("expected a failure note, got %+v", notes)
	}
}

func TestGetEnforcesPrivacy(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	c, _ := st.Create(context.Background(), Contact{
		DisplayName: "Maria", IsPrivate: true, OwnerAccountID: "acct-1",
	})
	svc := newTestService(st, &fakeDirectory{}, &fakeProvider{})
	ctx := context.Background()

	if _, err := svc.Get(ctx, auth.Actor{AccountID: "acct-2"}, c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stranger should not see a private contact, got %v", err)
	}
	if _, err := svc.Get(ctx, auth.Actor{AccountID: "acct-1"}, c.ID); err != nil {
		t.Fatalf("owner lookup failed: %v", err)
	}
	if _, err := svc.Get(ctx, auth.Actor{AccountID: "acct-3", Admin: true}, c.ID); err != nil {
		t.Fatalf("admin lookup failed: %v", err)
	}
}
