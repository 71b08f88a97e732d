// Package relay is the trust boundary of the group. It verifies interaction
// proofs against the membership registry and the nullifier ledger, records
// the accepted ones and forwards their payloads to the messaging transport.
// Nothing is recorded for an interaction until its nullifiers are spent, and
// once they are spent the interaction is never rolled back.
package relay

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"runtime"
	"sync"
	"time"

	"github.com/vocdoni/wispy/log"
	"github.com/vocdoni/wispy/storage"
	"github.com/vocdoni/wispy/storage/ledger"
	"github.com/vocdoni/wispy/storage/registry"
	"github.com/vocdoni/wispy/tally"
	"github.com/vocdoni/wispy/transport"
	"github.com/vocdoni/wispy/types"
	"github.com/vocdoni/wispy/zk"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// Defaults of Config.
const (
	DefaultBulletinWindow      = 64
	DefaultMaxClockSkew        = 10 * time.Minute
	DefaultSettleInterval      = time.Minute
	DefaultRedeliverInterval   = 30 * time.Second
	DefaultMaxDeliveryAttempts = 20
)

// Config configures a relay.
type Config struct {
	// GroupID is the messaging group served by the relay.
	GroupID string
	// RootWindow is the number of recent membership roots proofs may be
	// built against. One means only the current root.
	RootWindow int
	// BulletinWindow is the number of recent callback bulletin roots
	// accepted for scanning. Bans and reputation losses reset it.
	BulletinWindow int
	// MaxClockSkew bounds the distance between a message timestamp and the
	// relay clock. Negative disables the check.
	MaxClockSkew time.Duration
	// DeliveryTimeout bounds a single transport delivery.
	DeliveryTimeout time.Duration
	// SettleInterval is the period of the reputation settlement worker.
	SettleInterval time.Duration
	// RedeliverInterval is the period of the outbox redelivery worker.
	RedeliverInterval time.Duration
	// MaxDeliveryAttempts drops outbox items after that many failures.
	MaxDeliveryAttempts int
	// VerifyWorkers bounds the proofs verified at once.
	VerifyWorkers int
	// BanPolicy decides when a ban poll can be enforced.
	BanPolicy tally.BanPolicy
	// Badges are the badges members can claim.
	Badges []*types.BadgeDefinition
}

func (c *Config) setDefaults() {
	if c.RootWindow <= 0 {
		c.RootWindow = 1
	}
	if c.BulletinWindow <= 0 {
		c.BulletinWindow = DefaultBulletinWindow
	}
	if c.MaxClockSkew == 0 {
		c.MaxClockSkew = DefaultMaxClockSkew
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = transport.DefaultTimeout
	}
	if c.SettleInterval <= 0 {
		c.SettleInterval = DefaultSettleInterval
	}
	if c.RedeliverInterval <= 0 {
		c.RedeliverInterval = DefaultRedeliverInterval
	}
	if c.MaxDeliveryAttempts == 0 {
		c.MaxDeliveryAttempts = DefaultMaxDeliveryAttempts
	}
	if c.VerifyWorkers <= 0 {
		c.VerifyWorkers = runtime.NumCPU()
	}
}

// Relay is the verifier and relay.
type Relay struct {
	cfg       Config
	backend   zk.Backend
	stg       *storage.Storage
	registry  *registry.Registry
	bulletin  *registry.Registry
	ledger    *ledger.Ledger
	tally     *tally.Engine
	transport transport.Transport
	metrics   *Metrics

	verifySem  chan struct{}
	bulletinMu sync.Mutex

	reserveMu      sync.Mutex
	reservedLeaves uint64
	reservedSlots  uint64

	workersMu sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New returns a relay storing its state in stg.
func New(cfg Config, stg *storage.Storage, backend zk.Backend, tr transport.Transport) (*Relay, error) {
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("%w: relay requires a group id", types.ErrValidation)
	}
	if backend == nil || tr == nil {
		return nil, fmt.Errorf("%w: relay requires a proof backend and a transport", types.ErrValidation)
	}
	cfg.setDefaults()
	reg, err := registry.New(prefixeddb.NewPrefixedDatabase(stg.DB(), storage.RegistryPrefix),
		registry.Options{RootWindow: cfg.RootWindow})
	if err != nil {
		return nil, fmt.Errorf("membership registry: %w", err)
	}
	bulletin, err := registry.New(prefixeddb.NewPrefixedDatabase(stg.DB(), storage.BulletinPrefix),
		registry.Options{RootWindow: cfg.BulletinWindow})
	if err != nil {
		return nil, fmt.Errorf("callback bulletin: %w", err)
	}
	led, err := ledger.New(prefixeddb.NewPrefixedDatabase(stg.DB(), storage.LedgerPrefix), 0)
	if err != nil {
		return nil, fmt.Errorf("nullifier ledger: %w", err)
	}
	r := &Relay{
		cfg:       cfg,
		backend:   backend,
		stg:       stg,
		registry:  reg,
		bulletin:  bulletin,
		ledger:    led,
		tally:     tally.New(stg, cfg.BanPolicy, cfg.Badges),
		transport: tr,
		metrics:   NewMetrics(),
		verifySem: make(chan struct{}, cfg.VerifyWorkers),
	}
	r.metrics.Leaves.Set(float64(reg.Size()))
	r.metrics.Outbox.Set(float64(stg.OutboxSize()))
	log.Infow("relay ready",
		"group", cfg.GroupID,
		"backend", backend.Name(),
		"transport", tr.Name(),
		"members", reg.Size(),
		"rootWindow", cfg.RootWindow,
		"banPolicy", r.tally.Policy().String())
	return r, nil
}

// GroupID returns the group served by the relay.
func (r *Relay) GroupID() string {
	return r.cfg.GroupID
}

// Backend returns the proof backend.
func (r *Relay) Backend() zk.Backend {
	return r.backend
}

// Metrics returns the relay metrics.
func (r *Relay) Metrics() *Metrics {
	return r.metrics
}

// Tally returns the tally engine.
func (r *Relay) Tally() *tally.Engine {
	return r.tally
}

// Info describes the relay state.
func (r *Relay) Info() *types.RelayInfo {
	root, version := r.registry.Root()
	bulletinRoot, _ := r.bulletin.Root()
	return &types.RelayInfo{
		GroupID:      r.cfg.GroupID,
		RootWindow:   r.registry.RootWindow(),
		TreeDepth:    r.registry.Depth(),
		Members:      r.registry.Size(),
		Root:         types.FromBig(root),
		Version:      version,
		BulletinRoot: types.FromBig(bulletinRoot),
		Badges:       r.tally.Badges(),
		Backend:      r.backend.Name(),
	}
}

// Registry returns the current membership root and its version.
func (r *Relay) Registry() (*big.Int, uint64) {
	return r.registry.Root()
}

// WitnessFor returns the membership witness of a commitment against the
// current root. Scanning is asking for it.
func (r *Relay) WitnessFor(commitment *big.Int) (*types.MerkleWitness, error) {
	return r.registry.WitnessFor(commitment)
}

// CountVotes tallies a poll.
func (r *Relay) CountVotes(pollID string) (*types.VoteCount, error) {
	return r.tally.CountVotes(pollID)
}

// Poll returns a poll.
func (r *Relay) Poll(pollID string) (*types.Poll, error) {
	return r.tally.Poll(pollID)
}

// Message returns an accepted message.
func (r *Relay) Message(id string) (*storage.Message, error) {
	m, err := r.stg.Message(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: message %s", types.ErrNotFound, id)
	}
	return m, err
}
