// Package api exposes a relay over HTTP: join and interaction submission,
// membership witnesses, the callback bulletin, polls, circuit keys and
// metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/vocdoni/wispy/log"
	"github.com/vocdoni/wispy/relay"
)

// MaxBodySize bounds the size of request bodies.
const MaxBodySize = 1 << 20

// APIConfig type represents the configuration for the API HTTP server.
// A zero Port lets the OS choose one, a negative Port builds the router
// without listening.
type APIConfig struct {
	Host  string
	Port  int
	Relay *relay.Relay
}

// API type represents the API HTTP server of a relay.
type API struct {
	router *chi.Mux
	relay  *relay.Relay
	server *http.Server
	addr   string
}

// New creates a new API instance with the given configuration and starts
// the HTTP server.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Relay == nil {
		return nil, fmt.Errorf("missing relay instance")
	}
	a := &API{
		relay: conf.Relay,
	}

	// Initialize router
	a.initRouter()
	if conf.Port < 0 {
		return a, nil
	}
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", conf.Host, conf.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	a.addr = ln.Addr().String()
	a.server = &http.Server{Handler: a.router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Infow("Starting API server", "address", a.addr)
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// Addr returns the address the server listens on, empty if it does not.
func (a *API) Addr() string {
	return a.addr
}

// Stop shuts the HTTP server down.
func (a *API) Stop(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	log.Infow("register handler", "endpoint", InfoEndpoint, "method", "GET")
	a.router.Get(InfoEndpoint, a.info)
	log.Infow("register handler", "endpoint", MetricsEndpoint, "method", "GET")
	a.router.Method(http.MethodGet, MetricsEndpoint, a.relay.Metrics().Handler())

	log.Infow("register handler", "endpoint", MembersEndpoint, "method", "POST")
	a.router.Post(MembersEndpoint, a.join)
	log.Infow("register handler", "endpoint", MemberEndpoint, "method", "GET")
	a.router.Get(MemberEndpoint, a.witness)
	log.Infow("register handler", "endpoint", RegistryEndpoint, "method", "GET")
	a.router.Get(RegistryEndpoint, a.registry)

	log.Infow("register handler", "endpoint", BulletinEndpoint, "method", "GET")
	a.router.Get(BulletinEndpoint, a.bulletin)
	log.Infow("register handler", "endpoint", BulletinTicketEndpoint, "method", "GET")
	a.router.Get(BulletinTicketEndpoint, a.bulletinTicket)

	log.Infow("register handler", "endpoint", InteractionsEndpoint, "method", "POST")
	a.router.Post(InteractionsEndpoint, a.submit)

	log.Infow("register handler", "endpoint", PollEndpoint, "method", "GET")
	a.router.Get(PollEndpoint, a.poll)
	log.Infow("register handler", "endpoint", PollVotesEndpoint, "method", "GET")
	a.router.Get(PollVotesEndpoint, a.votes)
	log.Infow("register handler", "endpoint", SettleEndpoint, "method", "POST")
	a.router.Post(SettleEndpoint, a.settle)

	log.Infow("register handler", "endpoint", CircuitEndpoint, "method", "GET")
	a.router.Get(CircuitEndpoint, a.circuit)
	log.Infow("register handler", "endpoint", CircuitArtifactEndpoint, "method", "GET")
	a.router.Get(CircuitArtifactEndpoint, a.circuitArtifact)
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	// Create the router with a basic middleware stack
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))
	a.router.Use(middleware.RequestSize(MaxBodySize))

	// Register the API handlers
	a.registerHandlers()
}
