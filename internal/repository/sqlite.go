package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"relay-agent/internal/domain"
)

const usersSchema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    connected INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);`

// SQLiteUsers stores users in a local SQLite database.
type SQLiteUsers struct {
	db *sql.DB
}

// OpenSQLiteUsers opens (creating if needed) the database at path.
func OpenSQLiteUsers(path string) (*SQLiteUsers, error) {
	if path == "" {
		return nil, errors.New("repository: sqlite path must not be empty")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("repository: open sqlite: %w", err)
	}
	// One connection keeps in-memory databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(usersSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: apply schema: %w", err)
	}
	return &SQLiteUsers{db: db}, nil
}

func (s *SQLiteUsers) Close() error {
	return s.db.Close()
}

// CreateUser returns ErrUserExists when the email or id is already taken.
func (s *SQLiteUsers) CreateUser(ctx context.Context, u domain.User) error {
	if u.ID == "" || u.Email == "" {
		return errors.New("repository: CreateUser: id and email are required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, connected, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.Connected, u.CreatedAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return ErrUserExists
		}
		return fmt.Errorf("repository: CreateUser: %w", err)
	}
	return nil
}

func (s *SQLiteUsers) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return s.getUser(ctx, "GetUserByID", `SELECT id, email, password_hash, connected, created_at FROM users WHERE id = ?`, id)
}

func (s *SQLiteUsers) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return s.getUser(ctx, "GetUserByEmail", `SELECT id, email, password_hash, connected, created_at FROM users WHERE email = ?`, email)
}

func (s *SQLiteUsers) getUser(ctx context.Context, op, query string, arg string) (domain.User, error) {
	var u domain.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Connected, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: %s: %w", op, err)
	}
	return u, nil
}
