package account

import (
	"context"
	"fmt"

	"warden/internal/auth/models"
	"warden/pkg/platform/sentinel"
	wsync "warden/pkg/platform/sync"
)

// Error Contract:
// - Load and CompareAndSwapLockout return sentinel.ErrNotFound for unknown ids
// - Create returns sentinel.ErrAlreadyUsed for duplicate ids
// - CompareAndSwapLockout returns sentinel.ErrStaleVersion on a version mismatch

// InMemoryStore keeps accounts in a sharded map. Stored values are never
// shared with callers: reads and writes copy.
type InMemoryStore struct {
	accounts *wsync.ShardedMap[*models.Account]
}

// NewInMemoryStore constructs an empty store with the given shard count.
func NewInMemoryStore(shards int) *InMemoryStore {
	return &InMemoryStore{accounts: wsync.NewShardedMap[*models.Account](shards)}
}

func (s *InMemoryStore) Load(_ context.Context, id string) (*models.Account, error) {
	acc, ok := s.accounts.Get(id)
	if !ok {
		return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	return acc.Clone(), nil
}

func (s *InMemoryStore) Create(_ context.Context, account *models.Account) error {
	if account == nil {
		return fmt.Errorf("account is required")
	}
	var exists bool
	s.accounts.Update(account.ID, func(cur *models.Account, ok bool) (*models.Account, bool) {
		if ok {
			exists = true
			return cur, true
		}
		return account.Clone(), true
	})
	if exists {
		return fmt.Errorf("account %q: %w", account.ID, sentinel.ErrAlreadyUsed)
	}
	return nil
}

// CompareAndSwapLockout writes fields and bumps the version if the stored
// version still equals expectedVersion.
func (s *InMemoryStore) CompareAndSwapLockout(_ context.Context, id string, expectedVersion int64, fields models.LockoutFields) error {
	var err error
	s.accounts.Update(id, func(cur *models.Account, ok bool) (*models.Account, bool) {
		if !ok {
			err = fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
			return nil, false
		}
		if cur.Version != expectedVersion {
			err = fmt.Errorf("account %q at version %d: %w", id, cur.Version, sentinel.ErrStaleVersion)
			return cur, true
		}
		next := cur.Clone()
		next.FailedAttempts = fields.FailedAttempts
		next.LockedUntil = nil
		if fields.LockedUntil != nil {
			t := *fields.LockedUntil
			next.LockedUntil = &t
		}
		next.Version++
		return next, true
	})
	return err
}

// Len returns the number of stored accounts.
func (s *InMemoryStore) Len() int {
	return s.accounts.Len()
}
