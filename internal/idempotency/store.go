// Package idempotency stores the first response to each Idempotency-Key so
// retried wallet mutations replay it instead of moving money twice.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrNotFound     = errors.New("idempotency key not found")
	ErrHashMismatch = errors.New("idempotency key body mismatch")
	ErrInProgress   = errors.New("idempotency key in progress")
)

const (
	keyNamespace = "wallet-ledger:idem:"
	defaultTTL   = 24 * time.Hour
	pollInterval = 50 * time.Millisecond

	servedByRedis    = "redis"
	servedByPostgres = "postgres"
)

// Record is a completed response ready to be replayed.
type Record struct {
	Key         string
	RequestHash string
	Status      int
	Body        []byte
	ContentType string
	// ServedBy names the backend the record was read from.
	ServedBy string
}

// entry is the redis representation of a reservation or a stored response.
type entry struct {
	Hash        string `json:"hash"`
	Pending     bool   `json:"pending,omitempty"`
	Status      int    `json:"status,omitempty"`
	Body        []byte `json:"body,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

func (e entry) record(key, requestHash string) (*Record, error) {
	if e.Hash != requestHash {
		return nil, ErrHashMismatch
	}
	if e.Pending {
		return nil, ErrInProgress
	}
	return &Record{
		Key:         key,
		RequestHash: e.Hash,
		Status:      e.Status,
		Body:        e.Body,
		ContentType: e.ContentType,
		ServedBy:    servedByRedis,
	}, nil
}

func redisKey(key string) string {
	return keyNamespace + key
}

type redisCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func (c *redisCache) get(ctx context.Context, key string) (entry, bool, error) {
	raw, err := c.rdb.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return entry{}, false, nil
	}
	if err != nil {
		return entry{}, false, err
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return entry{}, false, fmt.Errorf("decode idempotency entry: %w", err)
	}
	return e, true, nil
}

func (c *redisCache) put(ctx context.Context, key string, e entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, redisKey(key), raw, c.ttl).Err()
}

// claim writes e only if key is free.
func (c *redisCache) claim(ctx context.Context, key string, e entry) (bool, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return false, err
	}
	return c.rdb.SetNX(ctx, redisKey(key), raw, c.ttl).Result()
}

func (c *redisCache) drop(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, redisKey(key)).Err()
}

// Store is backed by the idempotency_keys table with redis as a read-through
// cache. Without a pool, redis holds reservations and responses alone.
type Store struct {
	cache *redisCache
	db    *pgxpool.Pool
}

// NewStore returns nil when neither backend is configured.
func NewStore(rdb redis.Cmdable, db *pgxpool.Pool, ttl time.Duration) *Store {
	if rdb == nil && db == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	s := &Store{db: db}
	if rdb != nil {
		s.cache = &redisCache{rdb: rdb, ttl: ttl}
	}
	return s
}

func (s *Store) redisOnly() bool { return s.db == nil }

// Lookup returns the stored response for key. A key used with a different
// request hash yields ErrHashMismatch; an unfinished one yields ErrInProgress.
func (s *Store) Lookup(ctx context.Context, key, requestHash string) (*Record, error) {
	if s.cache != nil {
		e, ok, err := s.cache.get(ctx, key)
		switch {
		case err != nil:
			zap.L().Warn("idempotency cache read failed", zap.String("key", key), zap.Error(err))
		case ok:
			return e.record(key, requestHash)
		}
	}
	if s.redisOnly() {
		return nil, ErrNotFound
	}

	row, err := repository.New(s.db).GetIdempotencyKey(ctx, key)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if row.RequestHash != requestHash {
		return nil, ErrHashMismatch
	}
	if row.InProgress {
		return nil, ErrInProgress
	}

	rec := recordFromRow(row)
	s.warm(ctx, rec)
	return rec, nil
}

// Reserve claims key for one request. It reports false when another request holds it.
func (s *Store) Reserve(ctx context.Context, key, requestHash, method, path string) (bool, error) {
	if s.redisOnly() {
		ok, err := s.cache.claim(ctx, key, entry{Hash: requestHash, Pending: true})
		if err != nil {
			return false, fmt.Errorf("reserve idempotency key: %w", err)
		}
		return ok, nil
	}

	_, err := repository.New(s.db).ReserveIdempotencyKey(ctx, repository.ReserveIdempotencyKeyParams{
		IdempotencyKey: key,
		RequestHash:    requestHash,
		Method:         method,
		Path:           path,
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	default:
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
}

// Finalize stores the response for a reserved key.
func (s *Store) Finalize(ctx context.Context, key, requestHash string, status int, body []byte, contentType string) (*Record, error) {
	if s.redisOnly() {
		e := entry{Hash: requestHash, Status: status, Body: body, ContentType: contentType}
		if err := s.cache.put(ctx, key, e); err != nil {
			return nil, fmt.Errorf("finalize idempotency key: %w", err)
		}
		return e.record(key, requestHash)
	}

	row, err := repository.New(s.db).FinalizeIdempotencyKey(ctx, repository.FinalizeIdempotencyKeyParams{
		ResponseStatus: int32(status),
		ResponseBody:   body,
		ContentType:    contentType,
		IdempotencyKey: key,
		RequestHash:    requestHash,
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finalize idempotency key: %w", err)
	}
	rec := recordFromRow(row)
	s.warm(ctx, rec)
	return rec, nil
}

// Release drops an unfinished reservation so the client can retry the request.
func (s *Store) Release(ctx context.Context, key string) error {
	if s.redisOnly() {
		return s.cache.drop(ctx, key)
	}
	return repository.New(s.db).ReleaseIdempotencyKey(ctx, key)
}

// WaitForCompletion polls until the request holding key finishes or ctx ends.
func (s *Store) WaitForCompletion(ctx context.Context, key, requestHash string) (*Record, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		rec, err := s.Lookup(ctx, key, requestHash)
		if !errors.Is(err, ErrInProgress) {
			return rec, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// warm copies a postgres record into redis. Failures only cost a cache miss.
func (s *Store) warm(ctx context.Context, rec *Record) {
	if s.cache == nil {
		return
	}
	e := entry{Hash: rec.RequestHash, Status: rec.Status, Body: rec.Body, ContentType: rec.ContentType}
	if err := s.cache.put(ctx, rec.Key, e); err != nil {
		zap.L().Warn("idempotency cache write failed", zap.String("key", rec.Key), zap.Error(err))
	}
}

func recordFromRow(row repository.IdempotencyKey) *Record {
	return &Record{
		Key:         row.IdempotencyKey,
		RequestHash: row.RequestHash,
		Status:      int(row.ResponseStatus),
		Body:        row.ResponseBody,
		ContentType: row.ContentType,
		ServedBy:    servedByPostgres,
	}
}
