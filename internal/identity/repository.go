package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no account matches the lookup.
	ErrNotFound = errors.New("account not found")
	// ErrExists is returned when an account with the same email already exists.
	ErrExists = errors.New("account exists")
)

// Repository persists accounts.
type Repository interface {
	Create(ctx context.Context, account Account) error
	FindByEmail(ctx context.Context, email string) (Account, error)
	FindByID(ctx context.Context, id string) (Account, error)
	UpdatePassword(ctx context.Context, id string, hash []byte, at time.Time) error
	TouchLogin(ctx context.Context, id string, at time.Time) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed account repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectAccount = `SELECT id, email, role, balance_eur::text, kyc_status, password_hash, created_at, updated_at, last_login FROM users`

// Create inserts a new account.
func (r *PostgresRepository) Create(ctx context.Context, account Account) error {
	userID, err := uuid.Parse(account.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO users (id, email, role, balance_eur, kyc_status, password_hash, created_at, updated_at)
        VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8)`,
		userID, account.Email, string(account.Role), account.Balance.String(), string(account.KYCStatus),
		account.PasswordHash, account.CreatedAt.UTC(), account.UpdatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrExists
	}
	return err
}

// FindByEmail fetches an account by its normalized email.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, selectAccount+` WHERE email = $1`, email))
}

// FindByID fetches an account by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Account, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, ErrNotFound
	}
	return scanAccount(r.db.QueryRow(ctx, selectAccount+` WHERE id = $1`, userID))
}

// UpdatePassword replaces the stored password hash.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id string, hash []byte, at time.Time) error {
	return r.update(ctx, `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`, id, hash, at.UTC())
}

// TouchLogin records the last successful sign-in.
func (r *PostgresRepository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, id, at.UTC())
}

func (r *PostgresRepository) update(ctx context.Context, query, id string, args ...any) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, query, append(args, userID)...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		id                   uuid.UUID
		role, kyc, balance   string
		createdAt, updatedAt time.Time
		lastLogin            *time.Time
		account              Account
	)
	err := row.Scan(&id, &account.Email, &role, &balance, &kyc, &account.PasswordHash, &createdAt, &updatedAt, &lastLogin)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, err
	}
	if account.Role, err = ParseRole(role); err != nil {
		return Account{}, err
	}
	if account.KYCStatus, err = ParseKYCStatus(kyc); err != nil {
		return Account{}, err
	}
	if account.Balance, err = decimal.NewFromString(balance); err != nil {
		return Account{}, fmt.Errorf("parse balance: %w", err)
	}
	account.ID = id.String()
	account.CreatedAt = createdAt.UTC()
	account.UpdatedAt = updatedAt.UTC()
	if lastLogin != nil {
		t := lastLogin.UTC()
		account.LastLogin = &t
	}
	return account, nil
}
