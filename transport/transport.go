// Package transport delivers accepted payloads to the messaging group. The
// relay treats delivery as best effort: an accepted interaction is never
// rolled back because its payload could not be delivered.
package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vocdoni/wispy/types"
)

// Metadata keys understood by the transports.
const (
	// MetaMessageID is the relay id of the message being delivered.
	MetaMessageID = "messageId"
	// MetaKind is the callback kind that produced the message.
	MetaKind = "kind"
	// MetaQuote is the transport id of the message being replied to.
	MetaQuote = "quote"
	// MetaAuthor is the displayed pseudonymous author, if any.
	MetaAuthor = "author"
)

// DefaultTimeout bounds a single delivery.
const DefaultTimeout = 10 * time.Second

// Transport delivers content to a group and returns the identifier the
// messaging network assigned to it.
type Transport interface {
	Name() string
	Deliver(ctx context.Context, groupID, content string, metadata map[string]string) (string, error)
}

// Config selects and configures a transport.
type Config struct {
	// Kind is one of "signal-cli", "webhook" or "loopback".
	Kind string
	// URL of the signal-cli JSON-RPC endpoint or of the webhook.
	URL string
	// Account is the signal account the relay sends from.
	Account string
	Timeout time.Duration
}

// New returns the transport described by cfg.
func New(cfg Config) (Transport, error) {
	switch strings.ToLower(cfg.Kind) {
	case "", "loopback":
		return NewLoopback(), nil
	case "signal-cli", "signal":
		if cfg.URL == "" || cfg.Account == "" {
			return nil, fmt.Errorf("%w: signal-cli transport requires an url and an account", types.ErrValidation)
		}
		return NewSignalCLI(cfg.URL, cfg.Account, cfg.Timeout), nil
	case "webhook":
		if cfg.URL == "" {
			return nil, fmt.Errorf("%w: webhook transport requires an url", types.ErrValidation)
		}
		return &Webhook{URL: cfg.URL, Timeout: cfg.Timeout}, nil
	}
	return nil, fmt.Errorf("%w: unknown transport %q", types.ErrValidation, cfg.Kind)
}

func failed(name string, err error) error {
	return fmt.Errorf("%w: %s: %v", types.ErrTransport, name, err)
}
