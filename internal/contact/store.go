package contact

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zapdesk/zapdesk/internal/db"
)

// Store persists contacts and their audit notes.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const contactColumns = `id, display_name, phone, mobile, is_private, owner_account_id,
	promoted_at, promoted_from_account_id, verified, verified_at,
	avatar_url, origin_instance_id, created_at, updated_at`

func scanContact(row pgx.Row) (Contact, error) {
	var (
		c                          Contact
		id, owner, priorOwner, org pgtype.UUID
		phone, mobile, avatar      pgtype.Text
		promotedAt, verifiedAt     pgtype.Timestamptz
		createdAt, updatedAt       pgtype.Timestamptz
	)
	err := row.Scan(
		&id, &c.DisplayName, &phone, &mobile, &c.IsPrivate, &owner,
		&promotedAt, &priorOwner, &c.Verified, &verifiedAt,
		&avatar, &org, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, err
	}
	c.ID = db.UUIDToString(id)
	c.OwnerAccountID = db.UUIDToString(owner)
	c.PromotedFromAccountID = db.UUIDToString(priorOwner)
	c.OriginInstanceID = db.UUIDToString(org)
	c.Phone = db.TextToString(phone)
	c.Mobile = db.TextToString(mobile)
	c.AvatarURL = db.TextToString(avatar)
	c.PromotedAt = db.TimeFromPg(promotedAt)
	c.VerifiedAt = db.TimeFromPg(verifiedAt)
	c.CreatedAt = db.TimeFromPg(createdAt)
	c.UpdatedAt = db.TimeFromPg(updatedAt)
	return c, nil
}

func (s *Store) Create(ctx context.Context, c Contact) (Contact, error) {
	owner, err := db.OptionalUUID(c.OwnerAccountID)
	if err != nil {
		return Contact{}, err
	}
	origin, err := db.OptionalUUID(c.OriginInstanceID)
	if err != nil {
		return Contact{}, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO contacts (
			display_name, phone, mobile, is_private, owner_account_id,
			verified, verified_at, avatar_url, origin_instance_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+contactColumns,
		c.DisplayName, db.ToPgText(c.Phone), db.ToPgText(c.Mobile),
		c.IsPrivate, owner, c.Verified, db.ToPgTime(c.VerifiedAt),
		db.ToPgText(c.AvatarURL), origin,
	)
	created, err := scanContact(row)
	if err != nil {
		return Contact{}, fmt.Errorf("insert contact: %w", err)
	}
	return created, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (Contact, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Contact{}, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, pgID)
	return scanContact(row)
}

// FindCandidates returns contacts whose phone or mobile loosely
// contains the given digit string, oldest first.
func (s *Store) FindCandidates(ctx context.Context, digits string) ([]Contact, error) {
	pattern := "%" + digits + "%"
	rows, err := s.pool.Query(ctx, `
		SELECT `+contactColumns+` FROM contacts
		WHERE mobile ILIKE $1 OR phone ILIKE $1
		ORDER BY created_at`, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContacts(rows)
}

// List returns company contacts plus the actor's own private ones.
// Admins see everything.
func (s *Store) List(ctx context.Context, accountID string, admin bool) ([]Contact, error) {
	if admin {
		rows, err := s.pool.Query(ctx, `SELECT `+contactColumns+` FROM contacts ORDER BY display_name`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return collectContacts(rows)
	}
	owner, err := db.OptionalUUID(accountID)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+contactColumns+` FROM contacts
		WHERE NOT is_private OR owner_account_id = $1
		ORDER BY display_name`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContacts(rows)
}

func collectContacts(rows pgx.Rows) ([]Contact, error) {
	var out []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Promote flips the contact to company scope, clearing the owner and
// remembering who held it.
func (s *Store) Promote(ctx context.Context, id string, at time.Time) (Contact, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Contact{}, err
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE contacts
		SET is_private = FALSE,
			promoted_at = $2,
			promoted_from_account_id = owner_account_id,
			owner_account_id = NULL,
			updated_at = now()
		WHERE id = $1
		RETURNING `+contactColumns, pgID, db.ToPgTime(at))
	return scanContact(row)
}

// Revert makes a promoted contact private again under the given owner.
func (s *Store) Revert(ctx context.Context, id, ownerAccountID string) (Contact, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Contact{}, err
	}
	owner, err := db.OptionalUUID(ownerAccountID)
	if err != nil {
		return Contact{}, err
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE contacts
		SET is_private = TRUE,
			owner_account_id = $2,
			promoted_at = NULL,
			promoted_from_account_id = NULL,
			updated_at = now()
		WHERE id = $1
		RETURNING `+contactColumns, pgID, owner)
	return scanContact(row)
}

func (s *Store) SetVerified(ctx context.Context, id, mobile string, at time.Time) (Contact, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Contact{}, err
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE contacts
		SET verified = TRUE,
			verified_at = $2,
			mobile = COALESCE(NULLIF($3, ''), mobile),
			updated_at = now()
		WHERE id = $1
		RETURNING `+contactColumns, pgID, db.ToPgTime(at), mobile)
	return scanContact(row)
}

func (s *Store) SetAvatar(ctx context.Context, id, url string) error {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE contacts SET avatar_url = $2, updated_at = now() WHERE id = $1`,
		pgID, db.ToPgText(url))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) AddNote(ctx context.Context, contactID, author, body string) (Note, error) {
	pgID, err := db.ParseUUID(contactID)
	if err != nil {
		return Note{}, err
	}
	var (
		note      Note
		id        pgtype.UUID
		auth      pgtype.Text
		createdAt pgtype.Timestamptz
	)
	row := s.pool.QueryRow(ctx, `
		INSERT INTO contact_notes (contact_id, author, body)
		VALUES ($1, $2, $3)
		RETURNING id, contact_id, author, body, created_at`,
		pgID, db.ToPgText(author), body)
	var cid pgtype.UUID
	if err := row.Scan(&id, &cid, &auth, &note.Body, &createdAt); err != nil {
		return Note{}, fmt.Errorf("insert contact note: %w", err)
	}
	note.ID = db.UUIDToString(id)
	note.ContactID = db.UUIDToString(cid)
	note.Author = db.TextToString(auth)
	note.CreatedAt = db.TimeFromPg(createdAt)
	return note, nil
}

func (s *Store) ListNotes(ctx context.Context, contactID string) ([]Note, error) {
	pgID, err := db.ParseUUID(contactID)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, contact_id, author, body, created_at
		FROM contact_notes WHERE contact_id = $1 ORDER BY created_at`, pgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Note
	for rows.Next() {
		var (
			note      Note
			id, cid   pgtype.UUID
			auth      pgtype.Text
			createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &cid, &auth, &note.Body, &createdAt); err != nil {
			return nil, err
		}
		note.ID = db.UUIDToString(id)
		note.ContactID = db.UUIDToString(cid)
		note.Author = db.TextToString(auth)
		note.CreatedAt = db.TimeFromPg(createdAt)
		out = append(out, note)
	}
	return out, rows.Err()
}
