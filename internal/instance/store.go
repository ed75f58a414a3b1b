package instance

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zapdesk/zapdesk/internal/db"
)

var ErrNotFound = errors.New("instance not found")

// Store persists instance rows.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const instanceColumns = `id, name, status, api_key, scope, owner_account_id,
	phone_number, profile_name,
	reject_calls, call_rejected_message, ignore_groups, always_online,
	read_messages, read_status, sync_full_history,
	created_at, updated_at`

func (s *Store) scanInstance(row pgx.Row) (Instance, error) {
	var (
		inst                              Instance
		id, own                           pgtype.UUID
		apiKey, phone, profile, rejectMsg pgtype.Text
		createdAt, updatedAt              pgtype.Timestamptz
	)
	err := row.Scan(
		&id, &inst.Name, &inst.Status, &apiKey, &inst.Scope, &own,
		&phone, &profile,
		&inst.Settings.RejectCalls, &rejectMsg, &inst.Settings.IgnoreGroups,
		&inst.Settings.AlwaysOnline, &inst.Settings.ReadMessages,
		&inst.Settings.ReadStatus, &inst.Settings.SyncFullHistory,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Instance{}, ErrNotFound
		}
		return Instance{}, err
	}
	inst.ID = db.UUIDToString(id)
	inst.OwnerAccountID = db.UUIDToString(own)
	inst.APIKey = db.TextToString(apiKey)
	inst.PhoneNumber = db.TextToString(phone)
	inst.ProfileName = db.TextToString(profile)
	inst.Settings.CallRejectedMessage = db.TextToString(rejectMsg)
	inst.CreatedAt = db.TimeFromPg(createdAt)
	inst.UpdatedAt = db.TimeFromPg(updatedAt)
	return inst, nil
}

func (s *Store) Create(ctx context.Context, inst Instance) (Instance, error) {
	owner, err := db.OptionalUUID(inst.OwnerAccountID)
	if err != nil {
		return Instance{}, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO instances (
			name, status, api_key, scope, owner_account_id,
			reject_calls, call_rejected_message, ignore_groups, always_online,
			read_messages, read_status, sync_full_history
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+instanceColumns,
		inst.Name, inst.Status, db.ToPgText(inst.APIKey), inst.Scope, owner,
		inst.Settings.RejectCalls, db.ToPgText(inst.Settings.CallRejectedMessage),
		inst.Settings.IgnoreGroups, inst.Settings.AlwaysOnline,
		inst.Settings.ReadMessages, inst.Settings.ReadStatus,
		inst.Settings.SyncFullHistory,
	)
	created, err := s.scanInstance(row)
	if err != nil {
		return Instance{}, fmt.Errorf("insert instance: %w", err)
	}
	return created, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (Instance, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Instance{}, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+instanceColumns+` FROM instances WHERE id = $1`, pgID)
	return s.scanInstance(row)
}

func (s *Store) GetByName(ctx context.Context, name string) (Instance, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+instanceColumns+` FROM instances WHERE name = $1`, name)
	return s.scanInstance(row)
}

func (s *Store) List(ctx context.Context) ([]Instance, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+instanceColumns+` FROM instances ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Instance
	for rows.Next() {
		inst, err := s.scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status Status, phoneNumber, profileName string) error {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE instances
		SET status = $2,
			phone_number = COALESCE(NULLIF($3, ''), phone_number),
			profile_name = COALESCE(NULLIF($4, ''), profile_name),
			updated_at = now()
		WHERE id = $1`,
		pgID, status, phoneNumber, profileName)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) UpdateSettings(ctx context.Context, id string, settings Settings) error {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE instances
		SET reject_calls = $2, call_rejected_message = $3, ignore_groups = $4,
			always_online = $5, read_messages = $6, read_status = $7,
			sync_full_history = $8, updated_at = now()
		WHERE id = $1`,
		pgID, settings.RejectCalls, db.ToPgText(settings.CallRejectedMessage),
		settings.IgnoreGroups, settings.AlwaysOnline, settings.ReadMessages,
		settings.ReadStatus, settings.SyncFullHistory)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM instances WHERE id = $1`, pgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindVerifying picks the instance used for number verification. A
// connected user-scoped instance owned by the actor wins over a
// connected company-scoped one.
func (s *Store) FindVerifying(ctx context.Context, actorAccountID string) (Instance, error) {
	owner, err := db.OptionalUUID(actorAccountID)
	if err != nil {
		return Instance{}, err
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+instanceColumns+` FROM instances
		WHERE status = 'connected'
		  AND (scope = 'company' OR (scope = 'user' AND owner_account_id = $1))
		ORDER BY (scope = 'user') DESC, created_at
		LIMIT 1`, owner)
	return s.scanInstance(row)
}
