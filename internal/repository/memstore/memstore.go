// Package memstore is an in-process implementation of repository.Querier with
// the same unit-of-work and row-locking contract as the postgres store. Writes
// made inside RunInTx are staged and become visible to other callers only on
// commit; rows read with a ForUpdate query stay locked until the unit ends.
package memstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/google/uuid"
)

type Store struct {
	mu sync.Mutex

	wallets      map[string]models.Wallet
	walletByUser map[uuid.UUID]string
	txns         map[uuid.UUID]models.Transaction
	txByRef      map[string]uuid.UUID
	txByExt      map[string]uuid.UUID
	users        map[uuid.UUID]models.User
	userByEmail  map[string]uuid.UUID
	apiKeys      map[string]models.APIKey
	keyByHash    map[string]string
	audit        []models.AuditEntry

	// reserved holds unique values claimed by uncommitted units.
	reserved map[string]struct{}
	locks    map[string]chan struct{}

	failNextCommit bool
	now            func() time.Time
}

func New() *Store {
	return &Store{
		wallets:      make(map[string]models.Wallet),
		walletByUser: make(map[uuid.UUID]string),
		txns:         make(map[uuid.UUID]models.Transaction),
		txByRef:      make(map[string]uuid.UUID),
		txByExt:      make(map[string]uuid.UUID),
		users:        make(map[uuid.UUID]models.User),
		userByEmail:  make(map[string]uuid.UUID),
		apiKeys:      make(map[string]models.APIKey),
		keyByHash:    make(map[string]string),
		reserved:     make(map[string]struct{}),
		locks:        make(map[string]chan struct{}),
		now:          time.Now,
	}
}

// SetClock overrides the timestamp source used for created_at/updated_at.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// FailNextCommit makes the next RunInTx discard its staged writes and return a storage error.
func (s *Store) FailNextCommit() {
	s.mu.Lock()
	s.failNextCommit = true
	s.mu.Unlock()
}

// AuditEntries returns a snapshot of committed audit records.
func (s *Store) AuditEntries() []models.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.audit)
}

// SetWalletActive flips the active flag outside any unit of work.
func (s *Store) SetWalletActive(number string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[number]
	if !ok {
		return models.ErrWalletNotFound
	}
	w.Active = active
	s.wallets[number] = w
	return nil
}

// Queries returns an autocommit view: every write is applied immediately.
func (s *Store) Queries() repository.Querier {
	return &view{store: s, auto: true}
}

func (s *Store) RunInTx(ctx context.Context, fn func(q repository.Querier) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: begin transaction: %v", models.ErrStorage, err)
	}
	v := newView(s)
	if err := fn(v); err != nil {
		v.rollback()
		return err
	}

	s.mu.Lock()
	fail := s.failNextCommit
	s.failNextCommit = false
	s.mu.Unlock()
	if fail {
		v.rollback()
		return fmt.Errorf("%w: commit transaction: injected failure", models.ErrStorage)
	}
	v.commit()
	return nil
}

func (s *Store) clock() time.Time {
	return s.now().UTC()
}

// acquire blocks until the named row lock is free or ctx is done.
func (s *Store) acquire(ctx context.Context, key string) error {
	for {
		s.mu.Lock()
		ch, held := s.locks[key]
		if !held {
			s.locks[key] = make(chan struct{})
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return fmt.Errorf("%w: lock %s: %v", models.ErrStorage, key, ctx.Err())
		}
	}
}

func (s *Store) releaseLocked(key string) {
	if ch, ok := s.locks[key]; ok {
		delete(s.locks, key)
		close(ch)
	}
}

type view struct {
	store *Store
	auto  bool

	wallets  map[string]models.Wallet
	txns     map[uuid.UUID]models.Transaction
	users    map[uuid.UUID]models.User
	apiKeys  map[string]models.APIKey
	audit    []models.AuditEntry
	reserved []string
	held     map[string]struct{}
}

func newView(s *Store) *view {
	return &view{
		store:   s,
		wallets: make(map[string]models.Wallet),
		txns:    make(map[uuid.UUID]models.Transaction),
		users:   make(map[uuid.UUID]models.User),
		apiKeys: make(map[string]models.APIKey),
		held:    make(map[string]struct{}),
	}
}

// write runs a staging function and, for autocommit views, applies it at once.
func (v *view) write(fn func(tx *view) error) error {
	if !v.auto {
		return fn(v)
	}
	tx := newView(v.store)
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	tx.commit()
	return nil
}

func (v *view) lock(ctx context.Context, key string) error {
	if v.auto {
		return nil
	}
	if _, ok := v.held[key]; ok {
		return nil
	}
	if err := v.store.acquire(ctx, key); err != nil {
		return err
	}
	v.held[key] = struct{}{}
	return nil
}

// reserve claims a unique value; caller must hold store.mu.
func (v *view) reserveLocked(key string) bool {
	if _, taken := v.store.reserved[key]; taken {
		return false
	}
	v.store.reserved[key] = struct{}{}
	v.reserved = append(v.reserved, key)
	return true
}

func (v *view) rollback() {
	s := v.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range v.reserved {
		delete(s.reserved, key)
	}
	for key := range v.held {
		s.releaseLocked(key)
	}
}

func (v *view) commit() {
	s := v.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for number, w := range v.wallets {
		s.wallets[number] = w
		s.walletByUser[w.UserID] = number
	}
	for id, t := range v.txns {
		s.txns[id] = t
		s.txByRef[t.Reference] = id
		if t.ExternalReference != nil {
			s.txByExt[*t.ExternalReference] = id
		}
	}
	for id, u := range v.users {
		s.users[id] = u
		s.userByEmail[u.Email] = id
	}
	for id, k := range v.apiKeys {
		s.apiKeys[id] = k
		s.keyByHash[k.KeyHash] = id
	}
	s.audit = append(s.audit, v.audit...)

	for _, key := range v.reserved {
		delete(s.reserved, key)
	}
	for key := range v.held {
		s.releaseLocked(key)
	}
}

func walletLock(number string) string { return "wallet:" + number }
func txnLock(ext string) string       { return "txn:" + ext }

func (v *view) GetWallet(ctx context.Context, number string) (*models.Wallet, error) {
	if w, ok := v.wallets[number]; ok {
		return &w, nil
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	w, ok := v.store.wallets[number]
	if !ok {
		return nil, models.ErrWalletNotFound
	}
	return &w, nil
}

func (v *view) GetWalletForUpdate(ctx context.Context, number string) (*models.Wallet, error) {
	if err := v.lock(ctx, walletLock(number)); err != nil {
		return nil, err
	}
	return v.GetWallet(ctx, number)
}

func (v *view) GetWalletByUser(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	for _, w := range v.wallets {
		if w.UserID == userID {
			return &w, nil
		}
	}
	v.store.mu.Lock()
	number, ok := v.store.walletByUser[userID]
	v.store.mu.Unlock()
	if !ok {
		return nil, models.ErrWalletNotFound
	}
	return v.GetWallet(ctx, number)
}

func (v *view) CreateWallet(ctx context.Context, wallet *models.Wallet) error {
	return v.write(func(tx *view) error {
		s := tx.store
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.wallets[wallet.Number]; ok || !tx.reserveLocked("wallet:"+wallet.Number) {
			return models.ErrDuplicateWalletNumber
		}
		if _, ok := s.walletByUser[wallet.UserID]; ok || !tx.reserveLocked("wallet_user:"+wallet.UserID.String()) {
			return models.ErrWalletExists
		}
		now := s.clock()
		wallet.CreatedAt, wallet.UpdatedAt = now, now
		tx.wallets[wallet.Number] = *wallet
		return nil
	})
}

func (v *view) SaveWallet(ctx context.Context, wallet *models.Wallet) error {
	if wallet.Balance.IsNegative() {
		return fmt.Errorf("%w: save wallet: balance check violated", models.ErrStorage)
	}
	return v.write(func(tx *view) error {
		current, err := tx.GetWallet(ctx, wallet.Number)
		if err != nil {
			return err
		}
		current.Balance = wallet.Balance
		current.Active = wallet.Active
		tx.store.mu.Lock()
		current.UpdatedAt = tx.store.clock()
		tx.store.mu.Unlock()
		wallet.UpdatedAt = current.UpdatedAt
		tx.wallets[wallet.Number] = *current
		return nil
	})
}

func (v *view) WalletNumberExists(ctx context.Context, number string) (bool, error) {
	_, err := v.GetWallet(ctx, number)
	if errors.Is(err, models.ErrWalletNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (v *view) AppendTransaction(ctx context.Context, txn *models.Transaction) error {
	if !txn.Amount.IsPositive() {
		return fmt.Errorf("%w: append transaction: amount check violated", models.ErrStorage)
	}
	return v.write(func(tx *view) error {
		s := tx.store
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.txByRef[txn.Reference]; ok || !tx.reserveLocked("ref:"+txn.Reference) {
			return models.ErrDuplicateReference
		}
		if txn.ExternalReference != nil {
			if _, ok := s.txByExt[*txn.ExternalReference]; ok || !tx.reserveLocked("ext:"+*txn.ExternalReference) {
				return models.ErrDuplicateReference
			}
		}
		now := s.clock()
		txn.CreatedAt, txn.UpdatedAt = now, now
		tx.txns[txn.ID] = *txn
		return nil
	})
}

func (v *view) findTransaction(match func(t models.Transaction) bool) (*models.Transaction, error) {
	for _, t := range v.txns {
		if match(t) {
			return &t, nil
		}
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	for _, t := range v.store.txns {
		if match(t) {
			return &t, nil
		}
	}
	return nil, models.ErrTransactionNotFound
}

func (v *view) GetTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	return v.findTransaction(func(t models.Transaction) bool { return t.Reference == reference })
}

func (v *view) GetTransactionByExternalReference(ctx context.Context, externalReference string) (*models.Transaction, error) {
	return v.findTransaction(func(t models.Transaction) bool {
		return t.ExternalReference != nil && *t.ExternalReference == externalReference
	})
}

func (v *view) GetTransactionByExternalReferenceForUpdate(ctx context.Context, externalReference string) (*models.Transaction, error) {
	if err := v.lock(ctx, txnLock(externalReference)); err != nil {
		return nil, err
	}
	return v.GetTransactionByExternalReference(ctx, externalReference)
}

// merged returns committed transactions overlaid with this view's staged ones.
func (v *view) merged() map[uuid.UUID]models.Transaction {
	v.store.mu.Lock()
	all := maps.Clone(v.store.txns)
	v.store.mu.Unlock()
	maps.Copy(all, v.txns)
	return all
}

func (v *view) ListTransactionsByWallet(ctx context.Context, walletNumber string) ([]models.Transaction, error) {
	out := make([]models.Transaction, 0)
	for _, t := range v.merged() {
		if t.WalletNumber == walletNumber {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b models.Transaction) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return bytes.Compare(b.ID[:], a.ID[:])
	})
	return out, nil
}

func (v *view) ListPendingDeposits(ctx context.Context, createdBefore time.Time, limit int32) ([]models.Transaction, error) {
	out := make([]models.Transaction, 0)
	for _, t := range v.merged() {
		if t.Status == domain.TxStatusPending && t.Type == domain.TxTypeDeposit && t.ExternalReference != nil && t.CreatedAt.Before(createdBefore) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b models.Transaction) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if limit >= 0 && len(out) > int(limit) {
		out = out[:limit]
	}
	return out, nil
}

func (v *view) SaveTransaction(ctx context.Context, txn *models.Transaction) error {
	return v.write(func(tx *view) error {
		current, err := tx.findTransaction(func(t models.Transaction) bool { return t.ID == txn.ID })
		if err != nil {
			return err
		}
		if ext := txn.ExternalReference; ext != nil && (current.ExternalReference == nil || *current.ExternalReference != *ext) {
			s := tx.store
			s.mu.Lock()
			_, taken := s.txByExt[*ext]
			ok := !taken && tx.reserveLocked("ext:"+*ext)
			s.mu.Unlock()
			if !ok {
				return models.ErrDuplicateReference
			}
		}
		current.Status = txn.Status
		current.Amount = txn.Amount
		current.ExternalReference = txn.ExternalReference
		current.AuthorizationURL = txn.AuthorizationURL
		current.PreviousBalance = txn.PreviousBalance
		current.NewBalance = txn.NewBalance
		tx.store.mu.Lock()
		current.UpdatedAt = tx.store.clock()
		tx.store.mu.Unlock()
		txn.UpdatedAt = current.UpdatedAt
		tx.txns[txn.ID] = *current
		return nil
	})
}

func (v *view) UpsertUserByEmail(ctx context.Context, user *models.User) (*models.User, error) {
	var out models.User
	err := v.write(func(tx *view) error {
		for _, u := range tx.users {
			if u.Email == user.Email {
				out = u
				return nil
			}
		}
		s := tx.store
		s.mu.Lock()
		defer s.mu.Unlock()
		if id, ok := s.userByEmail[user.Email]; ok {
			out = s.users[id]
			return nil
		}
		if !tx.reserveLocked("email:" + user.Email) {
			return fmt.Errorf("%w: upsert user: concurrent insert", models.ErrStorage)
		}
		out = *user
		if out.ID == uuid.Nil {
			out.ID = uuid.New()
		}
		out.CreatedAt = s.clock()
		tx.users[out.ID] = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (v *view) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := v.users[id]; ok {
		return &u, nil
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	u, ok := v.store.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return &u, nil
}

func cloneKey(k models.APIKey) *models.APIKey {
	k.Permissions = slices.Clone(k.Permissions)
	return &k
}

func (v *view) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	return v.write(func(tx *view) error {
		s := tx.store
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.keyByHash[key.KeyHash]; ok || !tx.reserveLocked("key:"+key.KeyHash) {
			return fmt.Errorf("%w: create api key: duplicate hash", models.ErrStorage)
		}
		key.CreatedAt = s.clock()
		tx.apiKeys[key.ID] = *cloneKey(*key)
		return nil
	})
}

func (v *view) findKey(match func(k models.APIKey) bool) (*models.APIKey, error) {
	for _, k := range v.apiKeys {
		if match(k) {
			return cloneKey(k), nil
		}
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	for _, k := range v.store.apiKeys {
		if match(k) {
			return cloneKey(k), nil
		}
	}
	return nil, models.ErrAPIKeyNotFound
}

func (v *view) GetAPIKey(ctx context.Context, id string) (*models.APIKey, error) {
	return v.findKey(func(k models.APIKey) bool { return k.ID == id })
}

func (v *view) GetAPIKeyByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	return v.findKey(func(k models.APIKey) bool { return k.KeyHash == keyHash })
}

func (v *view) userKeys(userID uuid.UUID) []models.APIKey {
	v.store.mu.Lock()
	all := maps.Clone(v.store.apiKeys)
	v.store.mu.Unlock()
	maps.Copy(all, v.apiKeys)

	out := make([]models.APIKey, 0)
	for _, k := range all {
		if k.UserID == userID {
			out = append(out, *cloneKey(k))
		}
	}
	return out
}

func (v *view) CountActiveAPIKeys(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	var n int64
	for _, k := range v.userKeys(userID) {
		if k.Valid(now) {
			n++
		}
	}
	return n, nil
}

func (v *view) ListActiveAPIKeys(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error) {
	out := make([]models.APIKey, 0)
	for _, k := range v.userKeys(userID) {
		if k.Active && !k.Revoked {
			out = append(out, k)
		}
	}
	slices.SortFunc(out, func(a, b models.APIKey) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (v *view) SaveAPIKey(ctx context.Context, key *models.APIKey) error {
	return v.write(func(tx *view) error {
		current, err := tx.GetAPIKey(ctx, key.ID)
		if err != nil {
			return err
		}
		current.Active = key.Active
		current.Revoked = key.Revoked
		current.LastUsedAt = key.LastUsedAt
		tx.apiKeys[key.ID] = *current
		return nil
	})
}

func (v *view) InsertAuditLog(ctx context.Context, entry models.AuditEntry) error {
	return v.write(func(tx *view) error {
		tx.store.mu.Lock()
		entry.CreatedAt = tx.store.clock()
		tx.store.mu.Unlock()
		tx.audit = append(tx.audit, entry)
		return nil
	})
}

var _ repository.Querier = (*view)(nil)
