package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/wispy/types"
)

func TestSignalCLIDeliver(t *testing.T) {
	c := qt.New(t)
	var got rpcRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.Check(r.Method, qt.Equals, http.MethodPost)
		c.Check(json.NewDecoder(r.Body).Decode(&got), qt.IsNil)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      got.ID,
			"result":  map[string]any{"timestamp": 1700000000123},
		})
	}))
	defer srv.Close()

	s := NewSignalCLI(srv.URL, "+15550001", time.Second)
	id, err := s.Deliver(context.Background(), "group-b64", "hello", map[string]string{MetaQuote: "1700000000001"})
	c.Assert(err, qt.IsNil)
	c.Assert(id, qt.Equals, "1700000000123")
	c.Assert(got.Method, qt.Equals, "send")
	c.Assert(got.Params["groupId"], qt.Equals, "group-b64")
	c.Assert(got.Params["message"], qt.Equals, "hello")
	c.Assert(got.Params["account"], qt.Equals, "+15550001")
	c.Assert(got.Params["quoteTimestamp"], qt.Equals, float64(1700000000001))

	_, err = s.Deliver(context.Background(), "g", "x", map[string]string{MetaQuote: "not-a-timestamp"})
	c.Assert(err, qt.ErrorIs, types.ErrTransport)
}

func TestSignalCLIErrors(t *testing.T) {
	c := qt.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"error":   map[string]any{"code": -32602, "message": "group not found"},
		})
	}))
	defer srv.Close()
	_, err := NewSignalCLI(srv.URL, "+1", time.Second).Deliver(context.Background(), "g", "x", nil)
	c.Assert(err, qt.ErrorIs, types.ErrTransport)
	c.Assert(err, qt.ErrorMatches, ".*group not found.*")

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	down.Close()
	_, err = NewSignalCLI(down.URL, "+1", time.Second).Deliver(context.Background(), "g", "x", nil)
	c.Assert(err, qt.ErrorIs, types.ErrTransport)
}

func TestWebhookDeliver(t *testing.T) {
	c := qt.New(t)
	var got WebhookMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.Check(json.NewDecoder(r.Body).Decode(&got), qt.IsNil)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := &Webhook{URL: srv.URL, Timeout: time.Second}
	id, err := wh.Deliver(context.Background(), "g", "hi", map[string]string{MetaMessageID: "m-1"})
	c.Assert(err, qt.IsNil)
	c.Assert(id, qt.Equals, "m-1")
	c.Assert(got.Content, qt.Equals, "hi")

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()
	_, err = (&Webhook{URL: failing.URL}).Deliver(context.Background(), "g", "hi", nil)
	c.Assert(err, qt.ErrorIs, types.ErrTransport)

	_, err = (&Webhook{URL: "://bad"}).Deliver(context.Background(), "g", "hi", nil)
	c.Assert(err, qt.ErrorIs, types.ErrTransport)
}

func TestLoopback(t *testing.T) {
	c := qt.New(t)
	l := NewLoopback()
	id, err := l.Deliver(context.Background(), "g", "one", map[string]string{MetaKind: "post"})
	c.Assert(err, qt.IsNil)
	c.Assert(id, qt.Equals, "1")

	l.Fail(1)
	_, err = l.Deliver(context.Background(), "g", "two", nil)
	c.Assert(err, qt.ErrorIs, types.ErrTransport)
	id, err = l.Deliver(context.Background(), "g", "two", nil)
	c.Assert(err, qt.IsNil)
	c.Assert(id, qt.Equals, "2")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Deliver(ctx, "g", "three", nil)
	c.Assert(err, qt.ErrorIs, types.ErrTransport)

	msgs := l.Messages()
	c.Assert(msgs, qt.HasLen, 2)
	c.Assert(msgs[0].Metadata[MetaKind], qt.Equals, "post")
}

func TestNew(t *testing.T) {
	c := qt.New(t)
	tr, err := New(Config{})
	c.Assert(err, qt.IsNil)
	c.Assert(tr.Name(), qt.Equals, "loopback")
	tr, err = New(Config{Kind: "signal-cli", URL: "http://localhost:8080/api/v1/rpc", Account: "+1"})
	c.Assert(err, qt.IsNil)
	c.Assert(tr.Name(), qt.Equals, "signal-cli")
	_, err = New(Config{Kind: "signal-cli"})
	c.Assert(err, qt.ErrorIs, types.ErrValidation)
	_, err = New(Config{Kind: "carrier-pigeon"})
	c.Assert(err, qt.ErrorIs, types.ErrValidation)
}
