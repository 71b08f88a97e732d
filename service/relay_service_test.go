package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/wispy/api/client"
	"github.com/vocdoni/wispy/config"
	"github.com/vocdoni/wispy/zk"
)

func testConfig(t *testing.T) *config.Relay {
	cfg := config.DefaultRelay()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.DataDir = t.TempDir()
	cfg.GroupID = "group.service"
	cfg.Backend = zk.SolverName
	cfg.Badges = "helper:1"
	cfg.ArtifactsTimeout = time.Minute
	return cfg
}

func TestRelayService(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	rs := NewRelay(testConfig(t))
	c.Assert(rs.Start(ctx), qt.IsNil)
	defer rs.Stop()

	host, port := rs.HostPort()
	c.Assert(port, qt.Not(qt.Equals), 0)
	cli, err := client.New(fmt.Sprintf("http://%s:%d", host, port))
	c.Assert(err, qt.IsNil)
	info, err := cli.Info(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(info.GroupID, qt.Equals, "group.service")
	c.Assert(info.Badges, qt.HasLen, 1)

	// Test starting an already running service
	err = rs.Start(ctx)
	c.Assert(err, qt.ErrorMatches, "service already running")

	// Test stopping and restarting over the same database
	rs.Stop()
	c.Assert(rs.Relay(), qt.IsNil)
	c.Assert(rs.Start(ctx), qt.IsNil)
	c.Assert(rs.Relay(), qt.Not(qt.IsNil))
}

func TestRelayServiceConfig(t *testing.T) {
	c := qt.New(t)

	cfg := testConfig(t)
	cfg.GroupID = ""
	c.Assert(NewRelay(cfg).Start(context.Background()), qt.Not(qt.IsNil))

	cfg = testConfig(t)
	cfg.Transport.Kind = "carrier-pigeon"
	c.Assert(NewRelay(cfg).Start(context.Background()), qt.Not(qt.IsNil))
}

func TestLoadCircuitKeys(t *testing.T) {
	c := qt.New(t)
	c.Assert(LoadCircuitKeys(zk.NewSolverBackend(), time.Second), qt.IsNil)
}
