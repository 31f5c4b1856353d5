package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const upsertUserByEmail = `
INSERT INTO users (id, email, name)
VALUES ($1, $2, $3)
ON CONFLICT (email) DO UPDATE SET name = COALESCE(NULLIF(EXCLUDED.name, ''), users.name)
RETURNING id, email, name, created_at`

// UpsertUserByEmail returns the existing user for the email, creating it when absent.
func (q *Queries) UpsertUserByEmail(ctx context.Context, user *models.User) (*models.User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	var out models.User
	err := q.db.QueryRow(ctx, upsertUserByEmail, user.ID, user.Email, user.Name).
		Scan(&out.ID, &out.Email, &out.Name, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: upsert user: %w", models.ErrStorage, err)
	}
	return &out, nil
}

const getUser = `SELECT id, email, name, created_at FROM users WHERE id = $1`

func (q *Queries) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := q.db.QueryRow(ctx, getUser, id).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: get user: %w", models.ErrStorage, err)
	}
	return &u, nil
}
