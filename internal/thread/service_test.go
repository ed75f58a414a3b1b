package thread

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/zapdesk/zapdesk/internal/contact"
	"github.com/zapdesk/zapdesk/internal/instance"
)

type fakeStore struct {
	threads map[string]Thread
	members map[string][]Member
	nextID  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{threads: map[string]Thread{}, members: map[string][]Member{}}
}

func (f *fakeStore) FindOrCreate(_ context.Context, contactID, instanceID, name string) (Thread, bool, error) {
	for _, t := range f.threads {
		if t.ContactID == contactID && t.InstanceID == instanceID {
			return t, false, nil
		}
	}
	f.nextID++
	t := Thread{
		ID:         fmt.Sprintf("20000000-0000-0000-0000-%012d", f.nextID),
		Name:       name,
		ContactID:  contactID,
		InstanceID: instanceID,
	}
	f.threads[t.ID] = t
	return t, true, nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (Thread, error) {
	t, ok := f.threads[id]
	if !ok {
		return Thread{}, ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) AddMember(_ context.Context, threadID string, kind MemberKind, memberID string) error {
	for _, m := range f.members[threadID] {
		if m.Kind == kind && m.MemberID == memberID {
			return nil
		}
	}
	f.members[threadID] = append(f.members[threadID], Member{ThreadID: threadID, Kind: kind, MemberID: memberID})
	return nil
}

func (f *fakeStore) ListMembers(_ context.Context, threadID string) ([]Member, error) {
	return f.members[threadID], nil
}

func (f *fakeStore) ListByInstance(_ context.Context, instanceID string) ([]Thread, error) {
	var out []Thread
	for _, t := range f.threads {
		if t.InstanceID == instanceID {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeAdmins struct{ ids []string }

func (f *fakeAdmins) ListAdminIDs(context.Context) ([]string, error) { return f.ids, nil }

var (
	testContact = contact.Contact{ID: "30000000-0000-0000-0000-000000000001", DisplayName: "Maria"}

	companyInstance = instance.Instance{
		ID: "10000000-0000-0000-0000-000000000001", Name: "sales1",
		Scope: instance.ScopeCompany,
	}
	userInstance = instance.Instance{
		ID: "10000000-0000-0000-0000-000000000002", Name: "personal",
		Scope: instance.ScopeUser, OwnerAccountID: "40000000-0000-0000-0000-000000000001",
	}
)

func TestEnsureCreatesOnePerContactInstancePair(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	svc := NewService(slog.Default(), st, &fakeAdmins{})
	ctx := context.Background()

	first, err := svc.Ensure(ctx, companyInstance, testContact)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Name != "Maria" {
		t.Fatalf("thread named %q, want the contact name", first.Name)
	}
	second, err := svc.Ensure(ctx, companyInstance, testContact)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != second.ID {
		t.Fatal("ensure should reuse the existing thread")
	}
	if len(st.threads) != 1 {
		t.Fatalf("expected one thread, got %d", len(st.threads))
	}

	// Same contact on another instance gets its own thread.
	third, err := svc.Ensure(ctx, userInstance, testContact)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if third.ID == first.ID {
		t.Fatal("different instance should get a different thread")
	}
}

func TestEnsureMembershipByScope(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	admins := &fakeAdmins{ids: []string{"50000000-0000-0000-0000-000000000001"}}
	svc := NewService(slog.Default(), st, admins)
	ctx := context.Background()

	companyThread, err := svc.Ensure(ctx, companyInstance, testContact)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	members, _ := st.ListMembers(ctx, companyThread.ID)
	if !hasMember(members, MemberContact, testContact.ID) {
		t.Fatal("contact missing from thread members")
	}
	if !hasMember(members, MemberAccount, admins.ids[0]) {
		t.Fatal("company thread should include the administrators")
	}

	userThread, err := svc.Ensure(ctx, userInstance, testContact)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	members, _ = st.ListMembers(ctx, userThread.ID)
	if !hasMember(members, MemberAccount, userInstance.OwnerAccountID) {
		t.Fatal("user-scoped thread should include the instance owner")
	}
	if hasMember(members, MemberAccount, admins.ids[0]) {
		t.Fatal("user-scoped thread should not pull in administrators")
	}
}

func hasMember(members []Member, kind MemberKind, id string) bool {
	for _, m := range members {
		if m.Kind == kind && m.MemberID == id {
			return true
		}
	}
	return false
}
