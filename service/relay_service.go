package service

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/vocdoni/wispy/api"
	"github.com/vocdoni/wispy/config"
	"github.com/vocdoni/wispy/log"
	"github.com/vocdoni/wispy/relay"
	"github.com/vocdoni/wispy/storage"
	"github.com/vocdoni/wispy/transport"
	"github.com/vocdoni/wispy/zk"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"
)

const stopTimeout = 5 * time.Second

// RelayService runs a relay node: its database, the relay workers and the
// HTTP API.
type RelayService struct {
	cfg *config.Relay

	mu      sync.Mutex
	storage *storage.Storage
	relay   *relay.Relay
	api     *api.API
	cancel  context.CancelFunc
}

// NewRelay creates a new RelayService instance.
func NewRelay(cfg *config.Relay) *RelayService {
	return &RelayService{cfg: cfg}
}

// Start opens the database, loads the circuit keys and starts the workers
// and the API server. It returns an error if the service is already
// running or if it fails to start.
func (rs *RelayService) Start(ctx context.Context) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.cancel != nil {
		return fmt.Errorf("service already running")
	}

	rcfg, err := rs.cfg.RelayConfig()
	if err != nil {
		return err
	}
	backend, err := zk.New(rs.cfg.Backend)
	if err != nil {
		return err
	}
	startTime := time.Now()
	if err := LoadCircuitKeys(backend, rs.cfg.ArtifactsTimeout); err != nil {
		return fmt.Errorf("failed to load circuit keys: %w", err)
	}
	log.Infow("circuit keys ready", "backend", backend.Name(), "took", time.Since(startTime).String())
	tr, err := transport.New(rs.cfg.Transport)
	if err != nil {
		return err
	}

	dir := filepath.Join(rs.cfg.DataDir, "db")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	database, err := metadb.New(db.TypePebble, dir)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	stg := storage.New(database)
	r, err := relay.New(rcfg, stg, backend, tr)
	if err != nil {
		stg.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	r.Start(ctx)
	a, err := api.New(&api.APIConfig{
		Host:  rs.cfg.Host,
		Port:  rs.cfg.Port,
		Relay: r,
	})
	if err != nil {
		r.Stop()
		cancel()
		stg.Close()
		return fmt.Errorf("failed to start API server: %w", err)
	}
	rs.storage, rs.relay, rs.api, rs.cancel = stg, r, a, cancel
	log.Infow("relay started", "group", rcfg.GroupID, "transport", tr.Name(), "address", a.Addr())
	return nil
}

// Stop halts the API server and the workers and closes the database.
func (rs *RelayService) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.cancel == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := rs.api.Stop(ctx); err != nil {
		log.Warnw("failed to stop API server", "error", err.Error())
	}
	rs.relay.Stop()
	rs.cancel()
	rs.storage.Close()
	rs.storage, rs.relay, rs.api, rs.cancel = nil, nil, nil, nil
}

// Relay returns the running relay, nil when stopped.
func (rs *RelayService) Relay() *relay.Relay {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.relay
}

// HostPort returns the host and port of the API server. The port is the
// one actually bound when the service runs.
func (rs *RelayService) HostPort() (string, int) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.api == nil || rs.api.Addr() == "" {
		return rs.cfg.Host, rs.cfg.Port
	}
	host, port, err := net.SplitHostPort(rs.api.Addr())
	if err != nil {
		return rs.cfg.Host, rs.cfg.Port
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return rs.cfg.Host, rs.cfg.Port
	}
	return host, p
}
