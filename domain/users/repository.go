package users

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	"github.com/uptrace/bun"

	"github.com/outbox-sh/outbox/pkg/apperror"
	"github.com/outbox-sh/outbox/pkg/logger"
)

// Repository handles database operations for sender accounts
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new users repository
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("users.repo")),
	}
}

// UpsertByEmail returns the sender for the given email, creating it if
// missing. Emails are normalized to lower case.
func (r *Repository) UpsertByEmail(ctx context.Context, email, name string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	user := &User{}
	err := r.db.NewRaw(`INSERT INTO outbox.users (email, name)
		VALUES (?, ?)
		ON CONFLICT (email) DO UPDATE SET updated_at = now()
		RETURNING *`,
		email, name,
	).Scan(ctx, user)
	if err != nil {
		r.log.Error("failed to upsert user", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return user, nil
}

// GetByID returns the sender with the given id, or nil if not found
func (r *Repository) GetByID(ctx context.Context, id string) (*User, error) {
	user := &User{}
	err := r.db.NewSelect().
		Model(user).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.log.Error("failed to get user", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return user, nil
}

// FindByEmail returns the sender with the given email, or nil if not found
func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	user := &User{}
	err := r.db.NewSelect().
		Model(user).
		Where("email = ?", email).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.log.Error("failed to find user by email", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return user, nil
}
