package coordinator

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/tradewatch/cryptobot/internal/domain"
)

// Coordinator hands out time-bounded advisory leases over named
// resources. It is the only cross-process synchronization mechanism in
// the system: every worker that mutates a position must hold the trade
// lease for its symbol.
//
// Leases live in badger, the fast coordination side of the state store.
// Acquisition reads and writes inside a single transaction; badger
// rejects conflicting commits, so two concurrent acquires for the same
// key can never both succeed.
type Coordinator struct {
	db *badger.DB
}

const leasePrefix = "lease/"

// Open opens (creating if needed) the coordination database.
func Open(dir string) (*Coordinator, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("coordinator: dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, err
	}
	return &Coordinator{db: db}, nil
}

// Close closes the underlying database.
func (c *Coordinator) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Acquire takes the lease for key, or returns domain.ErrBusy when an
// unexpired lease is held by someone else. Re-acquiring a lease the
// holder already owns renews it. An expired lease is indistinguishable
// from no lease.
func (c *Coordinator) Acquire(key, holder string, ttl time.Duration) (*domain.Lease, error) {
	if ttl <= 0 {
		return nil, errors.New("coordinator: ttl must be positive")
	}
	now := time.Now()
	lease := &domain.Lease{
		Key:       key,
		Holder:    holder,
		ExpiresAt: now.Add(ttl),
		TTL:       ttl,
	}

	err := c.db.Update(func(txn *badger.Txn) error {
		existing, err := getLease(txn, key)
		if err != nil {
			return err
		}
		if existing != nil && !existing.Expired(now) && existing.Holder != holder {
			return domain.ErrBusy
		}
		return putLease(txn, lease)
	})
	if err != nil {
		// A conflicting commit means another worker raced us to the key.
		if errors.Is(err, badger.ErrConflict) {
			return nil, domain.ErrBusy
		}
		return nil, err
	}
	return lease, nil
}

// ErrNotHeld is returned by Renew and Release when the caller no longer
// owns the lease (it expired and may have been re-acquired).
var ErrNotHeld = errors.New("lease not held")

// Renew extends a held lease by its ttl.
func (c *Coordinator) Renew(lease *domain.Lease) error {
	now := time.Now()
	err := c.db.Update(func(txn *badger.Txn) error {
		existing, err := getLease(txn, lease.Key)
		if err != nil {
			return err
		}
		if existing == nil || existing.Holder != lease.Holder || existing.Expired(now) {
			return ErrNotHeld
		}
		lease.ExpiresAt = now.Add(lease.TTL)
		return putLease(txn, lease)
	})
	if errors.Is(err, badger.ErrConflict) {
		return ErrNotHeld
	}
	return err
}

// Release drops the lease if the caller still holds it. Releasing a
// lease someone else re-acquired is a no-op.
func (c *Coordinator) Release(lease *domain.Lease) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		existing, err := getLease(txn, lease.Key)
		if err != nil {
			return err
		}
		if existing == nil || existing.Holder != lease.Holder {
			return nil
		}
		return txn.Delete([]byte(leasePrefix + lease.Key))
	})
	if errors.Is(err, badger.ErrConflict) {
		return nil
	}
	return err
}

// IsHeld reports whether an unexpired lease exists for key.
func (c *Coordinator) IsHeld(key string) (bool, error) {
	var held bool
	now := time.Now()
	err := c.db.View(func(txn *badger.Txn) error {
		lease, err := getLease(txn, key)
		if err != nil {
			return err
		}
		held = lease != nil && !lease.Expired(now)
		return nil
	})
	return held, err
}

// HeldBy confirms the given holder still owns an unexpired lease on
// key. The executor calls this immediately before a guarded position
// mutation.
func (c *Coordinator) HeldBy(key, holder string) (bool, error) {
	var held bool
	now := time.Now()
	err := c.db.View(func(txn *badger.Txn) error {
		lease, err := getLease(txn, key)
		if err != nil {
			return err
		}
		held = lease != nil && lease.Holder == holder && !lease.Expired(now)
		return nil
	})
	return held, err
}

// StaleLeases returns leases that lapsed more than (factor-1)xTTL ago,
// i.e. held past factor*ttl without renewal. Crashed holders leave
// these behind; maintenance logs them for audit. Expiry itself needs no
// cleanup.
func (c *Coordinator) StaleLeases(factor int) ([]domain.Lease, error) {
	if factor < 1 {
		factor = 2
	}
	now := time.Now()
	var out []domain.Lease
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(leasePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var lease domain.Lease
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &lease)
			}); err != nil {
				continue
			}
			acquiredAt := lease.ExpiresAt.Add(-lease.TTL)
			if now.Sub(acquiredAt) > time.Duration(factor)*lease.TTL {
				out = append(out, lease)
			}
		}
		return nil
	})
	return out, err
}

func getLease(txn *badger.Txn, key string) (*domain.Lease, error) {
	item, err := txn.Get([]byte(leasePrefix + key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var lease domain.Lease
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &lease)
	}); err != nil {
		return nil, err
	}
	return &lease, nil
}

func putLease(txn *badger.Txn, lease *domain.Lease) error {
	b, err := json.Marshal(lease)
	if err != nil {
		return err
	}
	// Badger's entry TTL only garbage-collects; the timestamp in the
	// value is what decides expiry. Keep the entry around a bit longer
	// so maintenance can still see stale leases.
	e := badger.NewEntry([]byte(leasePrefix+lease.Key), b).WithTTL(lease.TTL * 10)
	return txn.SetEntry(e)
}
