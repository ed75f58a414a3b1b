package message

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zapdesk/zapdesk/internal/db"
)

// Store persists the message log.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const messageColumns = `id, instance_id, contact_id, provider_message_id, direction,
	state, event_at, sender_name, phone, is_group, message_type, body,
	media_type, media_url, media_filename, quoted_message_id,
	reacted_message_id, failure_reason, raw_payload, created_at`

func scanMessage(row pgx.Row) (Message, error) {
	var (
		m                              Message
		id, instID                     pgtype.UUID
		contactID, quotedID, reactedID pgtype.UUID
		providerID, sender, phone      pgtype.Text
		kind, mediaType, mediaURL      pgtype.Text
		mediaFilename, failure         pgtype.Text
		eventAt, createdAt             pgtype.Timestamptz
	)
	err := row.Scan(
		&id, &instID, &contactID, &providerID, &m.Direction,
		&m.State, &eventAt, &sender, &phone, &m.IsGroup, &kind, &m.Body,
		&mediaType, &mediaURL, &mediaFilename, &quotedID,
		&reactedID, &failure, &m.RawPayload, &createdAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, ErrNotFound
		}
		return Message{}, err
	}
	m.ID = db.UUIDToString(id)
	m.InstanceID = db.UUIDToString(instID)
	m.ContactID = db.UUIDToString(contactID)
	m.QuotedMessageID = db.UUIDToString(quotedID)
	m.ReactedMessageID = db.UUIDToString(reactedID)
	m.ProviderMessageID = db.TextToString(providerID)
	m.SenderName = db.TextToString(sender)
	m.Phone = db.TextToString(phone)
	m.Kind = Kind(db.TextToString(kind))
	m.MediaType = db.TextToString(mediaType)
	m.MediaURL = db.TextToString(mediaURL)
	m.MediaFilename = db.TextToString(mediaFilename)
	m.FailureReason = db.TextToString(failure)
	m.EventAt = db.TimeFromPg(eventAt)
	m.CreatedAt = db.TimeFromPg(createdAt)
	return m, nil
}

// Create inserts a message. When a provider message id is set the
// insert is idempotent: a duplicate returns the already stored row and
// created=false.
func (s *Store) Create(ctx context.Context, m Message) (Message, bool, error) {
	instID, err := db.ParseUUID(m.InstanceID)
	if err != nil {
		return Message{}, false, err
	}
	contactID, err := db.OptionalUUID(m.ContactID)
	if err != nil {
		return Message{}, false, err
	}
	quotedID, err := db.OptionalUUID(m.QuotedMessageID)
	if err != nil {
		return Message{}, false, err
	}
	reactedID, err := db.OptionalUUID(m.ReactedMessageID)
	if err != nil {
		return Message{}, false, err
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO messages (
			instance_id, contact_id, provider_message_id, direction, state,
			event_at, sender_name, phone, is_group, message_type, body,
			media_type, media_url, media_filename, quoted_message_id,
			reacted_message_id, raw_payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (instance_id, provider_message_id) WHERE provider_message_id IS NOT NULL
			DO NOTHING
		RETURNING `+messageColumns,
		instID, contactID, db.ToPgText(m.ProviderMessageID), m.Direction, m.State,
		db.ToPgTime(m.EventAt), db.ToPgText(m.SenderName), db.ToPgText(m.Phone),
		m.IsGroup, db.ToPgText(string(m.Kind)), m.Body,
		db.ToPgText(m.MediaType), db.ToPgText(m.MediaURL), db.ToPgText(m.MediaFilename),
		quotedID, reactedID, m.RawPayload,
	)
	created, err := scanMessage(row)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Message{}, false, fmt.Errorf("insert message: %w", err)
	}
	// Conflict path: the row already exists.
	existing, err := s.FindByProviderID(ctx, m.InstanceID, m.ProviderMessageID)
	if err != nil {
		return Message{}, false, err
	}
	return existing, false, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (Message, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Message{}, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, pgID)
	return scanMessage(row)
}

func (s *Store) FindByProviderID(ctx context.Context, instanceID, providerMessageID string) (Message, error) {
	if providerMessageID == "" {
		return Message{}, ErrNotFound
	}
	instID, err := db.ParseUUID(instanceID)
	if err != nil {
		return Message{}, err
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE instance_id = $1 AND provider_message_id = $2`,
		instID, providerMessageID)
	return scanMessage(row)
}

// UpdateState advances the delivery state. The guard repeats the
// forward-only rule so concurrent updates cannot regress a row.
func (s *Store) UpdateState(ctx context.Context, id string, state State, failureReason string) error {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET state = $2,
			failure_reason = COALESCE(NULLIF($3, ''), failure_reason)
		WHERE id = $1 AND state NOT IN ('read', 'failed')`,
		pgID, state, failureReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRemote stamps the provider id and state after a successful send.
func (s *Store) SetRemote(ctx context.Context, id, providerMessageID string, state State) (Message, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Message{}, err
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE messages
		SET provider_message_id = $2, state = $3
		WHERE id = $1
		RETURNING `+messageColumns,
		pgID, db.ToPgText(providerMessageID), state)
	return scanMessage(row)
}

func (s *Store) ListByContact(ctx context.Context, contactID string, limit int) ([]Message, error) {
	pgID, err := db.ParseUUID(contactID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE contact_id = $1
		ORDER BY event_at DESC
		LIMIT $2`, pgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *Store) ListByInstance(ctx context.Context, instanceID string, limit int) ([]Message, error) {
	pgID, err := db.ParseUUID(instanceID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE instance_id = $1
		ORDER BY event_at DESC
		LIMIT $2`, pgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

func collectMessages(rows pgx.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
