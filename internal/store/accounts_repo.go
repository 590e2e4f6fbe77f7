package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/bwise1/safestreet/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const accountColumns = `id::text, email, name, password_hash, role, theme_mode, created_at, updated_at`

func scanAccount(row rowScanner) (model.Account, error) {
	var account model.Account
	err := row.Scan(
		&account.ID, &account.Email, &account.Name, &account.PasswordHash,
		&account.Role, &account.Theme.Mode, &account.CreatedAt, &account.UpdatedAt,
	)
	return account, err
}

func (s *Store) CreateAccount(ctx context.Context, account model.Account) (model.Account, error) {
	stmt := `
        INSERT INTO users (id, email, name, password_hash, role, theme_mode)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING ` + accountColumns

	created, err := scanAccount(s.db.Pool().QueryRow(ctx, stmt,
		account.ID, account.Email, account.Name, account.PasswordHash, account.Role, account.Theme.Mode,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return model.Account{}, model.ErrAccountExists
		}
		log.Println("error creating account", err)
		return model.Account{}, fmt.Errorf("creating account: %w", err)
	}
	return created, nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (model.Account, error) {
	stmt := `-- name: get-account-by-email
		SELECT ` + accountColumns + ` FROM users WHERE email = $1`

	account, err := scanAccount(s.db.Pool().QueryRow(ctx, stmt, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Account{}, model.ErrAccountNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("getting account by email: %w", err)
	}
	return account, nil
}

func (s *Store) GetAccountByID(ctx context.Context, id string) (model.Account, error) {
	stmt := `SELECT ` + accountColumns + ` FROM users WHERE id = $1`

	account, err := scanAccount(s.db.Pool().QueryRow(ctx, stmt, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Account{}, model.ErrAccountNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("getting account by id: %w", err)
	}
	return account, nil
}

func (s *Store) UpdateTheme(ctx context.Context, accountID string, theme model.ThemeConfig) error {
	result, err := s.db.Pool().Exec(ctx,
		`UPDATE users SET theme_mode = $1, updated_at = NOW() WHERE id = $2`, theme.Mode, accountID)
	if err != nil {
		return fmt.Errorf("updating theme: %w", err)
	}
	if result.RowsAffected() == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}

func (s *Store) UpdateAccountName(ctx context.Context, accountID, name string) (model.Account, error) {
	stmt := `
        UPDATE users SET name = $1, updated_at = NOW()
        WHERE id = $2
        RETURNING ` + accountColumns

	account, err := scanAccount(s.db.Pool().QueryRow(ctx, stmt, name, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Account{}, model.ErrAccountNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("updating account name: %w", err)
	}
	return account, nil
}

func (s *Store) CreateSession(ctx context.Context, accountID string, expiresAt time.Time) (model.Session, error) {
	stmt := `
        INSERT INTO sessions (user_id, expires_at)
        VALUES ($1, $2)
        RETURNING id::text, user_id::text, created_at, expires_at
    `
	var session model.Session
	err := s.db.Pool().QueryRow(ctx, stmt, accountID, expiresAt).Scan(
		&session.ID, &session.AccountID, &session.CreatedAt, &session.ExpiresAt,
	)
	if err != nil {
		return model.Session{}, fmt.Errorf("creating session: %w", err)
	}
	return session, nil
}

// GetSession returns an unexpired session.
func (s *Store) GetSession(ctx context.Context, id string) (model.Session, error) {
	stmt := `
        SELECT id::text, user_id::text, created_at, expires_at
        FROM sessions
        WHERE id = $1 AND expires_at > NOW()
    `
	var session model.Session
	err := s.db.Pool().QueryRow(ctx, stmt, id).Scan(
		&session.ID, &session.AccountID, &session.CreatedAt, &session.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Session{}, model.ErrSessionNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("getting session: %w", err)
	}
	return session, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.Pool().Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}
