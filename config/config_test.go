package config

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/wispy/tally"
	"github.com/vocdoni/wispy/types"
)

func TestParseBadges(t *testing.T) {
	c := qt.New(t)

	badges, err := ParseBadges("")
	c.Assert(err, qt.IsNil)
	c.Assert(badges, qt.HasLen, 0)

	badges, err = ParseBadges(" helper:5, veteran:20 ,")
	c.Assert(err, qt.IsNil)
	c.Assert(badges, qt.DeepEquals, []*types.BadgeDefinition{
		{ID: "helper", MinReputation: 5},
		{ID: "veteran", MinReputation: 20},
	})

	for _, bad := range []string{"helper", ":3", "helper:x", "a:1,a:2"} {
		_, err := ParseBadges(bad)
		c.Assert(err, qt.ErrorIs, types.ErrValidation, qt.Commentf("%q", bad))
	}
}

func TestRelayConfig(t *testing.T) {
	c := qt.New(t)

	cfg := DefaultRelay()
	_, err := cfg.RelayConfig()
	c.Assert(err, qt.ErrorIs, types.ErrValidation)

	cfg.GroupID = "group.1"
	cfg.BanPolicy = "quorum:3"
	cfg.Badges = "helper:2"
	rc, err := cfg.RelayConfig()
	c.Assert(err, qt.IsNil)
	c.Assert(rc.GroupID, qt.Equals, "group.1")
	c.Assert(rc.RootWindow, qt.Equals, DefaultRootWindow)
	c.Assert(rc.BanPolicy, qt.Equals, tally.BanPolicy(tally.Quorum{N: 3}))
	c.Assert(rc.Badges, qt.HasLen, 1)

	cfg.BanPolicy = "unanimity"
	_, err = cfg.RelayConfig()
	c.Assert(err, qt.ErrorIs, types.ErrValidation)
}

func TestEnv(t *testing.T) {
	c := qt.New(t)

	t.Setenv(EnvPrefix+"PORT", "8080")
	t.Setenv(EnvPrefix+"SKEW", "3s")
	t.Setenv(EnvPrefix+"BROKEN", "x")
	c.Assert(Env("PORT", "1"), qt.Equals, "8080")
	c.Assert(Env("MISSING", "def"), qt.Equals, "def")
	c.Assert(EnvInt("PORT", 1), qt.Equals, 8080)
	c.Assert(EnvInt("BROKEN", 7), qt.Equals, 7)
	c.Assert(EnvDuration("SKEW", time.Second), qt.Equals, 3*time.Second)
	c.Assert(EnvDuration("BROKEN", time.Second), qt.Equals, time.Second)
}
