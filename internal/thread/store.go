package thread

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zapdesk/zapdesk/internal/db"
)

// Store persists threads and their membership.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const threadColumns = `id, name, contact_id, instance_id, created_at`

func scanThread(row pgx.Row) (Thread, error) {
	var (
		t                  Thread
		id, contactID, instID pgtype.UUID
		createdAt             pgtype.Timestamptz
	)
	if err := row.Scan(&id, &t.Name, &contactID, &instID, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Thread{}, ErrNotFound
		}
		return Thread{}, err
	}
	t.ID = db.UUIDToString(id)
	t.ContactID = db.UUIDToString(contactID)
	t.InstanceID = db.UUIDToString(instID)
	t.CreatedAt = db.TimeFromPg(createdAt)
	return t, nil
}

// FindOrCreate returns the thread for the contact and instance pair,
// creating it when absent.
func (s *Store) FindOrCreate(ctx context.Context, contactID, instanceID, name string) (Thread, bool, error) {
	cID, err := db.ParseUUID(contactID)
	if err != nil {
		return Thread{}, false, err
	}
	iID, err := db.ParseUUID(instanceID)
	if err != nil {
		return Thread{}, false, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO threads (name, contact_id, instance_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (contact_id, instance_id) DO NOTHING
		RETURNING `+threadColumns, name, cID, iID)
	t, err := scanThread(row)
	if err == nil {
		return t, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Thread{}, false, fmt.Errorf("insert thread: %w", err)
	}
	row = s.pool.QueryRow(ctx, `
		SELECT `+threadColumns+` FROM threads
		WHERE contact_id = $1 AND instance_id = $2`, cID, iID)
	t, err = scanThread(row)
	if err != nil {
		return Thread{}, false, err
	}
	return t, false, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (Thread, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Thread{}, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+threadColumns+` FROM threads WHERE id = $1`, pgID)
	return scanThread(row)
}

// AddMember is idempotent: re-adding an existing member is a no-op.
func (s *Store) AddMember(ctx context.Context, threadID string, kind MemberKind, memberID string) error {
	tID, err := db.ParseUUID(threadID)
	if err != nil {
		return err
	}
	mID, err := db.ParseUUID(memberID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO thread_members (thread_id, member_kind, member_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (thread_id, member_kind, member_id) DO NOTHING`,
		tID, kind, mID)
	return err
}

func (s *Store) ListMembers(ctx context.Context, threadID string) ([]Member, error) {
	tID, err := db.ParseUUID(threadID)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, thread_id, member_kind, member_id, pinned, created_at
		FROM thread_members WHERE thread_id = $1 ORDER BY created_at`, tID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		var (
			m         Member
			id, thID, mID pgtype.UUID
			createdAt     pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &thID, &m.Kind, &mID, &m.Pinned, &createdAt); err != nil {
			return nil, err
		}
		m.ID = db.UUIDToString(id)
		m.ThreadID = db.UUIDToString(thID)
		m.MemberID = db.UUIDToString(mID)
		m.CreatedAt = db.TimeFromPg(createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) ListByInstance(ctx context.Context, instanceID string) ([]Thread, error) {
	iID, err := db.ParseUUID(instanceID)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+threadColumns+` FROM threads WHERE instance_id = $1 ORDER BY created_at DESC`, iID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
