package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const apiKeyColumns = `id, user_id, name, key_hash, key_prefix, permissions, expires_at, is_active, is_revoked, last_used_at, created_at`

func scanAPIKey(row pgx.Row) (*models.APIKey, error) {
	var k models.APIKey
	err := row.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Permissions,
		&k.ExpiresAt, &k.Active, &k.Revoked, &k.LastUsedAt, &k.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

const createAPIKey = `
INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, permissions, expires_at, is_active, is_revoked)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING created_at`

func (q *Queries) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	err := q.db.QueryRow(ctx, createAPIKey,
		key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, key.Permissions, key.ExpiresAt, key.Active, key.Revoked,
	).Scan(&key.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: create api key: %w", models.ErrStorage, err)
	}
	return nil
}

func (q *Queries) getAPIKey(ctx context.Context, query string, arg any) (*models.APIKey, error) {
	k, err := scanAPIKey(q.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("%w: get api key: %w", models.ErrStorage, err)
	}
	return k, nil
}

const getAPIKey = `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`

func (q *Queries) GetAPIKey(ctx context.Context, id string) (*models.APIKey, error) {
	return q.getAPIKey(ctx, getAPIKey, id)
}

const getAPIKeyByHash = `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_hash = $1`

func (q *Queries) GetAPIKeyByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	return q.getAPIKey(ctx, getAPIKeyByHash, keyHash)
}

const countActiveAPIKeys = `
SELECT COUNT(*) FROM api_keys
WHERE user_id = $1 AND is_active AND NOT is_revoked AND expires_at > $2`

func (q *Queries) CountActiveAPIKeys(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	var n int64
	if err := q.db.QueryRow(ctx, countActiveAPIKeys, userID, now).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count api keys: %w", models.ErrStorage, err)
	}
	return n, nil
}

const listActiveAPIKeys = `SELECT ` + apiKeyColumns + `
FROM api_keys
WHERE user_id = $1 AND is_active AND NOT is_revoked
ORDER BY created_at DESC`

func (q *Queries) ListActiveAPIKeys(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error) {
	rows, err := q.db.Query(ctx, listActiveAPIKeys, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list api keys: %w", models.ErrStorage, err)
	}
	defer rows.Close()

	keys := make([]models.APIKey, 0)
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan api key: %w", models.ErrStorage, err)
		}
		keys = append(keys, *k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate api keys: %w", models.ErrStorage, err)
	}
	return keys, nil
}

const saveAPIKey = `
UPDATE api_keys
SET is_active = $2, is_revoked = $3, last_used_at = $4
WHERE id = $1`

func (q *Queries) SaveAPIKey(ctx context.Context, key *models.APIKey) error {
	tag, err := q.db.Exec(ctx, saveAPIKey, key.ID, key.Active, key.Revoked, key.LastUsedAt)
	if err != nil {
		return fmt.Errorf("%w: save api key: %w", models.ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrAPIKeyNotFound
	}
	return nil
}
