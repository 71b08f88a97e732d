// Package registry implements a fixed depth MiMC Merkle tree persisted in a
// key-value database. It backs the membership registry of credential
// commitments, which is append-only, and the callback bulletin of ticket
// slots, whose leaves are rewritten in place. Leaves get consecutive
// positions that never change, empty positions hold zero, and every write
// produces a new root version.
package registry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vocdoni/wispy/crypto"
	"github.com/vocdoni/wispy/crypto/hash/mimc"
	"github.com/vocdoni/wispy/log"
	"github.com/vocdoni/wispy/types"
	"go.vocdoni.io/dvote/db"
)

var (
	// ErrFull is returned when every position of the tree is taken.
	ErrFull = errors.New("registry is full")
	// ErrLeafExists is returned when appending a leaf already in the tree.
	ErrLeafExists = errors.New("leaf already in the registry")
	// ErrLeafNotFound is returned when asking for the witness of an unknown
	// leaf.
	ErrLeafNotFound = fmt.Errorf("%w: leaf not in the registry", types.ErrNotFound)
)

var (
	nodePrefix = []byte("n")
	leafPrefix = []byte("l")
	rootPrefix = []byte("r")
	sizeKey    = []byte("m")
	versionKey = []byte("v")
	floorKey   = []byte("f")
)

// DefaultIndexCacheSize is the number of leaf positions kept in memory.
const DefaultIndexCacheSize = 4096

// Options configures a registry.
type Options struct {
	// Depth of the tree, defaults to types.TreeDepth.
	Depth int
	// RootWindow is the number of most recent roots IsRecentRoot accepts,
	// defaults to 1 (only the current root).
	RootWindow int
	// IndexCacheSize defaults to DefaultIndexCacheSize.
	IndexCacheSize int
}

// Registry is the Merkle tree. Readers work on a consistent snapshot while
// a single writer appends.
type Registry struct {
	mu     sync.RWMutex
	db     db.Database
	depth  int
	window int
	zeros  []*big.Int
	size   uint64
	// version counts the writes, appends and updates alike.
	version uint64
	// roots holds the last window roots, oldest first.
	roots []*big.Int
	index *lru.Cache[string, uint64]
}

// New opens the registry stored in database, which should be prefixed so
// it is not shared with anything else.
func New(database db.Database, opts Options) (*Registry, error) {
	if opts.Depth <= 0 {
		opts.Depth = types.TreeDepth
	}
	if opts.Depth > 63 {
		return nil, fmt.Errorf("invalid registry depth %d", opts.Depth)
	}
	if opts.RootWindow <= 0 {
		opts.RootWindow = 1
	}
	if opts.IndexCacheSize <= 0 {
		opts.IndexCacheSize = DefaultIndexCacheSize
	}
	index, err := lru.New[string, uint64](opts.IndexCacheSize)
	if err != nil {
		return nil, err
	}
	r := &Registry{
		db:     database,
		depth:  opts.Depth,
		window: opts.RootWindow,
		zeros:  mimc.ZeroHashes(opts.Depth),
		index:  index,
	}
	if err := r.load(); err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	return r, nil
}

// load restores the size, the version and the recent roots window from the
// database.
func (r *Registry) load() error {
	var err error
	if r.size, err = r.getUint64(sizeKey); err != nil {
		return err
	}
	if r.version, err = r.getUint64(versionKey); err != nil {
		return err
	}
	r.roots = []*big.Int{r.zeros[r.depth]}
	if r.version == 0 {
		return nil
	}
	floor, err := r.getUint64(floorKey)
	if err != nil {
		return err
	}
	r.roots = r.roots[:0]
	first := max(floor, 1)
	if r.version > uint64(r.window) {
		first = max(first, r.version-uint64(r.window)+1)
	}
	for v := first; v <= r.version; v++ {
		root, err := r.db.Get(rootKey(v))
		if err != nil {
			return fmt.Errorf("root of version %d: %w", v, err)
		}
		r.roots = append(r.roots, new(big.Int).SetBytes(root))
	}
	log.Debugw("registry loaded", "size", r.size, "version", r.version,
		"root", r.roots[len(r.roots)-1].String())
	return nil
}

func (r *Registry) getUint64(key []byte) (uint64, error) {
	data, err := r.db.Get(key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(data), nil
}

func nodeKey(level int, index uint64) []byte {
	key := make([]byte, 0, len(nodePrefix)+1+8)
	key = append(key, nodePrefix...)
	key = append(key, byte(level))
	return binary.BigEndian.AppendUint64(key, index)
}

func rootKey(version uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, rootPrefix...), version)
}

func leafKey(leaf *big.Int) []byte {
	return append(append([]byte{}, leafPrefix...), crypto.FieldBytes(leaf)...)
}

// node returns a node of the tree, zero hashes for empty subtrees.
func (r *Registry) node(rd db.Reader, level int, index uint64) (*big.Int, error) {
	data, err := rd.Get(nodeKey(level, index))
	if errors.Is(err, db.ErrKeyNotFound) {
		return r.zeros[level], nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(data), nil
}

func checkLeaf(leaf *big.Int) error {
	if leaf == nil || leaf.Sign() <= 0 || leaf.Cmp(crypto.Field) >= 0 {
		return fmt.Errorf("%w: leaf must be a non zero field element", types.ErrValidation)
	}
	return nil
}

// Append adds a leaf at the next free position and returns its witness
// against the new root.
func (r *Registry) Append(leaf *big.Int) (*types.MerkleWitness, error) {
	if err := checkLeaf(leaf); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok, err := r.position(leaf); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrLeafExists
	}
	if r.full() {
		return nil, ErrFull
	}
	return r.write(r.size, leaf, nil)
}

// Update replaces the leaf at a taken position and returns its witness
// against the new root. The previous leaf is no longer found by WitnessFor
// or Contains.
func (r *Registry) Update(position uint64, leaf *big.Int) (*types.MerkleWitness, error) {
	if err := checkLeaf(leaf); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if position >= r.size {
		return nil, fmt.Errorf("%w: position %d", types.ErrNotFound, position)
	}
	if pos, ok, err := r.position(leaf); err != nil {
		return nil, err
	} else if ok {
		if pos != position {
			return nil, ErrLeafExists
		}
		return r.witness(leaf, position)
	}
	old, err := r.node(r.db, 0, position)
	if err != nil {
		return nil, err
	}
	return r.write(position, leaf, old)
}

// write stores leaf at position, replacing old if not nil, and records the
// new root version. Must be called with the write lock held.
func (r *Registry) write(position uint64, leaf, old *big.Int) (*types.MerkleWitness, error) {
	wTx := r.db.WriteTx()
	defer wTx.Discard()

	w := &types.MerkleWitness{Leaf: types.FromBig(leaf), Index: position}
	cur, idx := leaf, position
	for level := 0; level < r.depth; level++ {
		if err := wTx.Set(nodeKey(level, idx), crypto.FieldBytes(cur)); err != nil {
			return nil, err
		}
		sibling, err := r.node(r.db, level, idx^1)
		if err != nil {
			return nil, err
		}
		w.Siblings = append(w.Siblings, types.FromBig(sibling))
		if idx&1 == 0 {
			cur = mimc.Node(cur, sibling)
		} else {
			cur = mimc.Node(sibling, cur)
		}
		idx >>= 1
	}
	if err := wTx.Set(nodeKey(r.depth, 0), crypto.FieldBytes(cur)); err != nil {
		return nil, err
	}
	size := r.size
	if old == nil {
		size++
	} else if err := wTx.Delete(leafKey(old)); err != nil {
		return nil, err
	}
	version := r.version + 1
	if err := wTx.Set(leafKey(leaf), binary.BigEndian.AppendUint64(nil, position)); err != nil {
		return nil, err
	}
	if err := wTx.Set(rootKey(version), crypto.FieldBytes(cur)); err != nil {
		return nil, err
	}
	if err := wTx.Set(sizeKey, binary.BigEndian.AppendUint64(nil, size)); err != nil {
		return nil, err
	}
	if err := wTx.Set(versionKey, binary.BigEndian.AppendUint64(nil, version)); err != nil {
		return nil, err
	}
	if err := wTx.Commit(); err != nil {
		return nil, err
	}

	if r.version == 0 {
		r.roots = r.roots[:0]
	}
	r.size, r.version = size, version
	r.roots = append(r.roots, cur)
	if len(r.roots) > r.window {
		r.roots = r.roots[len(r.roots)-r.window:]
	}
	if old != nil {
		r.index.Remove(string(crypto.FieldBytes(old)))
	}
	r.index.Add(string(crypto.FieldBytes(leaf)), position)
	w.Root = types.FromBig(cur)
	w.Version = version
	return w, nil
}

// position returns the position of a leaf. Must be called with the lock
// held.
func (r *Registry) position(leaf *big.Int) (uint64, bool, error) {
	key := string(crypto.FieldBytes(leaf))
	if pos, ok := r.index.Get(key); ok {
		return pos, true, nil
	}
	data, err := r.db.Get(leafKey(leaf))
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	pos := binary.BigEndian.Uint64(data)
	r.index.Add(key, pos)
	return pos, true, nil
}

// WitnessFor returns the witness of a leaf against the current root.
func (r *Registry) WitnessFor(leaf *big.Int) (*types.MerkleWitness, error) {
	if leaf == nil || leaf.Sign() < 0 || leaf.Cmp(crypto.Field) >= 0 {
		return nil, ErrLeafNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, ok, err := r.position(leaf)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLeafNotFound
	}
	return r.witness(leaf, pos)
}

// WitnessAt returns the witness of the leaf at a position.
func (r *Registry) WitnessAt(position uint64) (*types.MerkleWitness, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if position >= r.size {
		return nil, fmt.Errorf("%w: position %d", types.ErrNotFound, position)
	}
	leaf, err := r.node(r.db, 0, position)
	if err != nil {
		return nil, err
	}
	return r.witness(leaf, position)
}

func (r *Registry) witness(leaf *big.Int, position uint64) (*types.MerkleWitness, error) {
	w := &types.MerkleWitness{
		Leaf:    types.FromBig(leaf),
		Index:   position,
		Root:    types.FromBig(r.roots[len(r.roots)-1]),
		Version: r.version,
	}
	idx := position
	for level := 0; level < r.depth; level++ {
		sibling, err := r.node(r.db, level, idx^1)
		if err != nil {
			return nil, err
		}
		w.Siblings = append(w.Siblings, types.FromBig(sibling))
		idx >>= 1
	}
	return w, nil
}

// Contains reports whether the leaf is in the tree.
func (r *Registry) Contains(leaf *big.Int) bool {
	if leaf == nil || leaf.Sign() <= 0 || leaf.Cmp(crypto.Field) >= 0 {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok, err := r.position(leaf)
	if err != nil {
		log.Warnw("registry lookup failed", "error", err.Error())
	}
	return ok
}

// Root returns the current root and its version. The version of a registry
// that is only appended to is its number of leaves.
func (r *Registry) Root() (*big.Int, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return new(big.Int).Set(r.roots[len(r.roots)-1]), r.version
}

// IsRecentRoot reports whether root is one of the last RootWindow roots.
func (r *Registry) IsRecentRoot(root *big.Int) bool {
	if root == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, known := range r.roots {
		if known.Cmp(root) == 0 {
			return true
		}
	}
	return false
}

// Size returns the number of leaves.
func (r *Registry) Size() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// ForgetRecent drops every root but the current one from the recent roots
// window, so only witnesses that include the last write are accepted until
// the tree changes again.
func (r *Registry) ForgetRecent() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.version == 0 {
		return nil
	}
	wTx := r.db.WriteTx()
	defer wTx.Discard()
	if err := wTx.Set(floorKey, binary.BigEndian.AppendUint64(nil, r.version)); err != nil {
		return err
	}
	if err := wTx.Commit(); err != nil {
		return err
	}
	r.roots = r.roots[len(r.roots)-1:]
	return nil
}

// Free returns the number of positions left.
func (r *Registry) Free() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.capacity() - r.size
}

func (r *Registry) capacity() uint64 {
	return uint64(1) << r.depth
}

func (r *Registry) full() bool {
	return r.size >= r.capacity()
}

// Depth returns the depth of the tree.
func (r *Registry) Depth() int {
	return r.depth
}

// RootWindow returns the number of recent roots accepted.
func (r *Registry) RootWindow() int {
	return r.window
}
