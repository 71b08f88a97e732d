// Package ledger is the nullifier ledger: a set of one-time tags split in
// partitions, each one an arbo sparse Merkle tree in its own prefixed
// database. Insertions of a set of nullifiers are atomic, either all of them
// are new and recorded or none is.
package ledger

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vocdoni/arbo"
	"github.com/vocdoni/wispy/crypto"
	"github.com/vocdoni/wispy/log"
	"github.com/vocdoni/wispy/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

const (
	partitionPrefix = "nl_"
	// DefaultOpenPartitions is the number of partition trees kept open.
	DefaultOpenPartitions = 256
)

var (
	defaultHashFunction = arbo.HashFunctionSha256

	// value stored for every nullifier, the key is what matters
	presentValue = []byte{1}
)

// Ledger records nullifiers. It is safe for concurrent use: partitions are
// locked one by one in canonical order, so concurrent insertions of
// overlapping sets cannot deadlock and exactly one of two identical
// insertions succeeds.
type Ledger struct {
	db db.Database

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	treesMu sync.Mutex
	trees   *lru.Cache[string, *arbo.Tree]
}

// New returns a ledger stored in database, keeping at most openPartitions
// trees open (zero means DefaultOpenPartitions).
func New(database db.Database, openPartitions int) (*Ledger, error) {
	if openPartitions <= 0 {
		openPartitions = DefaultOpenPartitions
	}
	trees, err := lru.New[string, *arbo.Tree](openPartitions)
	if err != nil {
		return nil, err
	}
	return &Ledger{
		db:    database,
		locks: make(map[string]*sync.Mutex),
		trees: trees,
	}, nil
}

// HashAndTrunkKey computes the arbo key of a nullifier tag, the hash of its
// field representation truncated to the tree key length.
func HashAndTrunkKey(tag *types.BigInt) []byte {
	length := types.LedgerTreeMaxLevels / 8
	hash, err := defaultHashFunction.Hash(crypto.FieldBytes(tag.MathBigInt()))
	if err != nil {
		return nil
	}
	if len(hash) < length {
		panic("hash function output is too short, maxlevels is too high")
	}
	return hash[:length]
}

func prefix(partition string) []byte {
	return append([]byte(partitionPrefix), []byte(partition+"/")...)
}

func (l *Ledger) lock(partition string) *sync.Mutex {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()
	m, ok := l.locks[partition]
	if !ok {
		m = &sync.Mutex{}
		l.locks[partition] = m
	}
	return m
}

// tree opens (or returns the cached) tree of a partition.
func (l *Ledger) tree(partition string) (*arbo.Tree, error) {
	l.treesMu.Lock()
	defer l.treesMu.Unlock()
	if t, ok := l.trees.Get(partition); ok {
		return t, nil
	}
	t, err := arbo.NewTree(arbo.Config{
		Database:     prefixeddb.NewPrefixedDatabase(l.db, prefix(partition)),
		MaxLevels:    types.LedgerTreeMaxLevels,
		HashFunction: defaultHashFunction,
	})
	if err != nil {
		return nil, fmt.Errorf("open partition %q: %w", partition, err)
	}
	l.trees.Add(partition, t)
	return t, nil
}

type entry struct {
	partition string
	key       []byte
}

// CheckAndInsert records the nullifiers if none of them is known yet. If
// any is already in the ledger, or the same one appears twice, nothing is
// recorded and the error wraps types.ErrDuplicateNullifier.
func (l *Ledger) CheckAndInsert(nullifiers ...types.Nullifier) error {
	if len(nullifiers) == 0 {
		return nil
	}
	entries := make([]entry, 0, len(nullifiers))
	seen := make(map[string]bool, len(nullifiers))
	partitions := []string{}
	for _, n := range nullifiers {
		if n.Scope == "" || n.Tag.IsZero() {
			return fmt.Errorf("%w: empty nullifier", types.ErrValidation)
		}
		e := entry{partition: n.Partition(), key: HashAndTrunkKey(n.Tag)}
		id := e.partition + "|" + string(e.key)
		if seen[id] {
			return fmt.Errorf("%w: repeated in the same request (%s)", types.ErrDuplicateNullifier, e.partition)
		}
		seen[id] = true
		if !slices.Contains(partitions, e.partition) {
			partitions = append(partitions, e.partition)
		}
		entries = append(entries, e)
	}

	// canonical lock order
	sort.Strings(partitions)
	for _, p := range partitions {
		m := l.lock(p)
		m.Lock()
		defer m.Unlock()
	}

	trees := make(map[string]*arbo.Tree, len(partitions))
	for _, p := range partitions {
		t, err := l.tree(p)
		if err != nil {
			return err
		}
		trees[p] = t
	}
	for _, e := range entries {
		_, _, err := trees[e.partition].Get(e.key)
		if err == nil {
			return fmt.Errorf("%w: already used in %s", types.ErrDuplicateNullifier, e.partition)
		}
		if !errors.Is(err, arbo.ErrKeyNotFound) {
			return fmt.Errorf("ledger lookup: %w", err)
		}
	}

	wTx := l.db.WriteTx()
	defer wTx.Discard()
	for _, e := range entries {
		pTx := prefixeddb.NewPrefixedWriteTx(wTx, prefix(e.partition))
		if err := trees[e.partition].AddWithTx(pTx, e.key, presentValue); err != nil {
			if errors.Is(err, arbo.ErrKeyAlreadyExists) {
				return fmt.Errorf("%w: already used in %s", types.ErrDuplicateNullifier, e.partition)
			}
			return fmt.Errorf("ledger insert: %w", err)
		}
	}
	if err := wTx.Commit(); err != nil {
		return fmt.Errorf("ledger commit: %w", err)
	}
	log.Debugw("nullifiers recorded", "count", len(entries), "partitions", partitions)
	return nil
}

// Contains reports whether the nullifier is in the ledger.
func (l *Ledger) Contains(n types.Nullifier) (bool, error) {
	m := l.lock(n.Partition())
	m.Lock()
	defer m.Unlock()
	t, err := l.tree(n.Partition())
	if err != nil {
		return false, err
	}
	_, _, err = t.Get(HashAndTrunkKey(n.Tag))
	if errors.Is(err, arbo.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Root returns the root of a partition tree.
func (l *Ledger) Root(partition string) ([]byte, error) {
	m := l.lock(partition)
	m.Lock()
	defer m.Unlock()
	t, err := l.tree(partition)
	if err != nil {
		return nil, err
	}
	return t.Root()
}

// Size returns the number of nullifiers of a partition.
func (l *Ledger) Size(partition string) (int, error) {
	m := l.lock(partition)
	m.Lock()
	defer m.Unlock()
	t, err := l.tree(partition)
	if err != nil {
		return 0, err
	}
	return t.GetNLeafs()
}
