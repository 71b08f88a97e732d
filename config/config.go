package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vocdoni/wispy/relay"
	"github.com/vocdoni/wispy/tally"
	"github.com/vocdoni/wispy/transport"
	"github.com/vocdoni/wispy/types"
)

const (
	// EnvPrefix prefixes every environment variable read by the commands.
	EnvPrefix = "WISPY_"

	DefaultHost         = "0.0.0.0"
	DefaultPort         = 9090
	DefaultRelayURL     = "http://localhost:9090"
	DefaultLogLevel     = "info"
	DefaultLogOutput    = "stdout"
	DefaultBackend      = "groth16"
	DefaultTransport    = "loopback"
	DefaultRootWindow   = 16
	DefaultBanPolicy    = "majority"
	DefaultProveTimeout = 5 * time.Minute
	// DefaultArtifactsTimeout bounds loading or downloading every circuit
	// key at startup.
	DefaultArtifactsTimeout = 30 * time.Minute
)

// DefaultDataDir returns the directory holding the relay database and the
// member credential.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "wispy")
	}
	return filepath.Join(home, ".wispy")
}

// DefaultCredentialPath returns the path of the member credential file.
func DefaultCredentialPath() string {
	return filepath.Join(DefaultDataDir(), "credential.cbor")
}

// Env returns the value of the environment variable EnvPrefix+name, or def
// when unset.
func Env(name, def string) string {
	if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
		return v
	}
	return def
}

// EnvInt is Env for integers. Unparseable values fall back to def.
func EnvInt(name string, def int) int {
	v, err := strconv.Atoi(Env(name, ""))
	if err != nil {
		return def
	}
	return v
}

// EnvDuration is Env for durations. Unparseable values fall back to def.
func EnvDuration(name string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(Env(name, ""))
	if err != nil {
		return def
	}
	return v
}

// Relay holds the settings of a relay node.
type Relay struct {
	Host      string
	Port      int
	DataDir   string
	LogLevel  string
	LogOutput string

	GroupID    string
	Backend    string
	Transport  transport.Config
	RootWindow int
	// BulletinWindow is the number of recent bulletin roots accepted.
	BulletinWindow    int
	MaxClockSkew      time.Duration
	SettleInterval    time.Duration
	RedeliverInterval time.Duration
	BanPolicy         string
	// Badges is a badge list as accepted by ParseBadges.
	Badges           string
	ArtifactsTimeout time.Duration
}

// DefaultRelay returns the relay settings with every default applied.
func DefaultRelay() *Relay {
	return &Relay{
		Host:              DefaultHost,
		Port:              DefaultPort,
		DataDir:           DefaultDataDir(),
		LogLevel:          DefaultLogLevel,
		LogOutput:         DefaultLogOutput,
		Backend:           DefaultBackend,
		Transport:         transport.Config{Kind: DefaultTransport, Timeout: transport.DefaultTimeout},
		RootWindow:        DefaultRootWindow,
		BulletinWindow:    relay.DefaultBulletinWindow,
		MaxClockSkew:      relay.DefaultMaxClockSkew,
		SettleInterval:    relay.DefaultSettleInterval,
		RedeliverInterval: relay.DefaultRedeliverInterval,
		BanPolicy:         DefaultBanPolicy,
		ArtifactsTimeout:  DefaultArtifactsTimeout,
	}
}

// RelayConfig validates the settings and returns the configuration of the
// relay engine.
func (c *Relay) RelayConfig() (relay.Config, error) {
	if strings.TrimSpace(c.GroupID) == "" {
		return relay.Config{}, fmt.Errorf("%w: a group id is required", types.ErrValidation)
	}
	policy, err := tally.ParseBanPolicy(c.BanPolicy)
	if err != nil {
		return relay.Config{}, err
	}
	badges, err := ParseBadges(c.Badges)
	if err != nil {
		return relay.Config{}, err
	}
	return relay.Config{
		GroupID:           c.GroupID,
		RootWindow:        c.RootWindow,
		BulletinWindow:    c.BulletinWindow,
		MaxClockSkew:      c.MaxClockSkew,
		DeliveryTimeout:   c.Transport.Timeout,
		SettleInterval:    c.SettleInterval,
		RedeliverInterval: c.RedeliverInterval,
		BanPolicy:         policy,
		Badges:            badges,
	}, nil
}

// ParseBadges parses a comma separated list of badges written as
// id:minReputation, e.g. "helper:5,veteran:20".
func ParseBadges(s string) ([]*types.BadgeDefinition, error) {
	var badges []*types.BadgeDefinition
	seen := make(map[string]bool)
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		id, min, ok := strings.Cut(item, ":")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("%w: badge %q is not id:minReputation", types.ErrValidation, item)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(min), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: badge %q: invalid reputation: %v", types.ErrValidation, id, err)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: badge %q defined twice", types.ErrValidation, id)
		}
		seen[id] = true
		badges = append(badges, &types.BadgeDefinition{ID: id, MinReputation: n})
	}
	return badges, nil
}
