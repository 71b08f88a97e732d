// storage package contains the artifacts the relay keeps next to the
// membership registry and the nullifier ledger, and the outbox queue the
// delivery worker drains. Every artifact type lives under its own prefix of
// the key-value database:
//   - 'ms/' for accepted messages (posts, polls, ban polls...)
//   - 'po/' for polls
//   - 'vr/' for vote records, keyed by poll and nullifier
//   - 'rs/' for reputation signals, keyed by target message and nullifier
//   - 'ef/' for callback bulletin slots, 'et/' indexes them by ticket
//   - 'bd/' for claimed badges
//   - 'ob/' for the outbox queue, 'or/' for its reservations
//
// The membership registry, the callback bulletin and the nullifier ledger
// are stored in their own prefixes of the same database.
package storage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/wispy/log"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

var (
	messagePrefix       = []byte("ms/")
	pollPrefix          = []byte("po/")
	votePrefix          = []byte("vr/")
	signalPrefix        = []byte("rs/")
	slotPrefix          = []byte("ef/")
	slotTicketPrefix    = []byte("et/")
	badgePrefix         = []byte("bd/")
	outboxPrefix        = []byte("ob/")
	outboxReservePrefix = []byte("or/")

	// RegistryPrefix, BulletinPrefix and LedgerPrefix are the prefixes of
	// the structures that are not managed by Storage.
	RegistryPrefix = []byte("mr/")
	BulletinPrefix = []byte("cb/")
	LedgerPrefix   = []byte("nl/")
)

var (
	// ErrNotFound is returned when an artifact is not in the database.
	ErrNotFound = errors.New("artifact not found")
	// ErrNoMoreElements is returned when a queue has no unreserved elements.
	ErrNoMoreElements = errors.New("no more elements")
)

const (
	// maxKeySize is the size of the keys derived from the hash of an
	// artifact.
	maxKeySize = 12
)

// Storage keeps the relay artifacts.
type Storage struct {
	db         db.Database
	globalLock sync.Mutex
}

// New creates a new Storage instance. Outbox reservations left by a previous
// run are released, so their items are delivered again.
func New(database db.Database) *Storage {
	s := &Storage{db: database}
	if n, err := s.clearPrefix(outboxReservePrefix); err != nil {
		log.Warnw("could not release outbox reservations", "error", err.Error())
	} else if n > 0 {
		log.Infow("released stale outbox reservations", "count", n)
	}
	return s
}

// DB returns the underlying database, to open the structures stored under
// RegistryPrefix, BulletinPrefix and LedgerPrefix.
func (s *Storage) DB() db.Database {
	return s.db
}

// Close closes the storage.
func (s *Storage) Close() {
	if err := s.db.Close(); err != nil {
		log.Warnw("could not close database", "error", err.Error())
	}
}

// getArtifact decodes the artifact stored at prefix+key into out. Returns
// ErrNotFound if it does not exist.
func (s *Storage) getArtifact(prefix, key []byte, out any) error {
	pr := prefixeddb.NewPrefixedReader(s.db, prefix)
	data, err := pr.Get(key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return decodeArtifact(data, out)
}

// setArtifact encodes and stores an artifact at prefix+key.
func (s *Storage) setArtifact(prefix, key []byte, artifact any) error {
	val, err := encodeArtifact(artifact)
	if err != nil {
		return err
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	if err := wTx.Set(key, val); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

// deleteArtifact removes the artifact stored at prefix+key.
func (s *Storage) deleteArtifact(prefix, key []byte) error {
	pr := prefixeddb.NewPrefixedReader(s.db, prefix)
	if _, err := pr.Get(key); err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	if err := wTx.Delete(key); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

// iterate calls fn with a copy of every key and value under prefix+sub,
// keys relative to prefix. Iteration stops when fn returns false.
func (s *Storage) iterate(prefix, sub []byte, fn func(k, v []byte) bool) error {
	pr := prefixeddb.NewPrefixedReader(s.db, prefix)
	return pr.Iterate(sub, func(k, v []byte) bool {
		key := append(append([]byte{}, sub...), k...)
		return fn(key, append([]byte{}, v...))
	})
}

// isReserved checks if a key has a reservation.
func (s *Storage) isReserved(prefix, key []byte) bool {
	pr := prefixeddb.NewPrefixedReader(s.db, prefix)
	_, err := pr.Get(key)
	return err == nil
}

// setReservation marks a key as reserved, storing the reservation time.
func (s *Storage) setReservation(prefix, key []byte) error {
	return s.setArtifact(prefix, key, time.Now().Unix())
}

// clearPrefix deletes every key under prefix and returns how many.
func (s *Storage) clearPrefix(prefix []byte) (int, error) {
	var keys [][]byte
	if err := s.iterate(prefix, nil, func(k, _ []byte) bool {
		keys = append(keys, k)
		return true
	}); err != nil {
		return 0, fmt.Errorf("iterate %s: %w", prefix, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	for _, k := range keys {
		if err := wTx.Delete(k); err != nil {
			wTx.Discard()
			return 0, err
		}
	}
	return len(keys), wTx.Commit()
}
