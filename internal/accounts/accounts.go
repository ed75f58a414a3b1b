// Package accounts manages the internal user accounts that log into
// the HTTP API.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/zapdesk/zapdesk/internal/db"
)

var (
	ErrNotFound           = errors.New("account not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// Account is an internal user of the API.
type Account struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Admin     bool      `json:"admin"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists accounts.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewStore(log *slog.Logger, pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, logger: log.With(slog.String("service", "accounts"))}
}

const accountColumns = `id, username, email, is_admin, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var (
		a                    Account
		id                   pgtype.UUID
		email                pgtype.Text
		createdAt, updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &a.Username, &email, &a.Admin, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	a.ID = db.UUIDToString(id)
	a.Email = db.TextToString(email)
	a.CreatedAt = db.TimeFromPg(createdAt)
	a.UpdatedAt = db.TimeFromPg(updatedAt)
	return a, nil
}

// Create registers an account with a bcrypt-hashed password.
func (s *Store) Create(ctx context.Context, username, email, password string, admin bool) (Account, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return Account{}, fmt.Errorf("username is required")
	}
	if password == "" {
		return Account{}, fmt.Errorf("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, fmt.Errorf("hash password: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO accounts (username, email, password_hash, is_admin)
		VALUES ($1, $2, $3, $4)
		RETURNING `+accountColumns,
		username, db.ToPgText(email), string(hash), admin)
	a, err := scanAccount(row)
	if err != nil {
		return Account{}, fmt.Errorf("insert account: %w", err)
	}
	return a, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (Account, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Account{}, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, pgID)
	return scanAccount(row)
}

func (s *Store) GetByUsername(ctx context.Context, username string) (Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)
	return scanAccount(row)
}

// Authenticate checks the password and returns the account. Unknown
// users and bad passwords are indistinguishable to the caller.
func (s *Store) Authenticate(ctx context.Context, username, password string) (Account, error) {
	var (
		a     Account
		id    pgtype.UUID
		email pgtype.Text
		hash  string
		createdAt, updatedAt pgtype.Timestamptz
	)
	row := s.pool.QueryRow(ctx, `
		SELECT id, username, email, is_admin, password_hash, created_at, updated_at
		FROM accounts WHERE username = $1`, strings.TrimSpace(username))
	err := row.Scan(&id, &a.Username, &email, &a.Admin, &hash, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return Account{}, ErrInvalidCredentials
	}
	a.ID = db.UUIDToString(id)
	a.Email = db.TextToString(email)
	a.CreatedAt = db.TimeFromPg(createdAt)
	a.UpdatedAt = db.TimeFromPg(updatedAt)
	return a, nil
}

// ListAdminIDs returns the ids of all administrator accounts.
func (s *Store) ListAdminIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM accounts WHERE is_admin ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id pgtype.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, db.UUIDToString(id))
	}
	return out, rows.Err()
}

// EnsureAdmin creates the bootstrap administrator if the username does
// not exist yet. An existing account is left untouched.
func (s *Store) EnsureAdmin(ctx context.Context, username, email, password string) error {
	if strings.TrimSpace(username) == "" || password == "" {
		s.logger.Info("admin bootstrap skipped, no credentials configured")
		return nil
	}
	_, err := s.GetByUsername(ctx, strings.TrimSpace(username))
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	a, err := s.Create(ctx, username, email, password, true)
	if err != nil {
		return fmt.Errorf("create admin account: %w", err)
	}
	s.logger.Info("admin account created", slog.String("username", a.Username))
	return nil
}
