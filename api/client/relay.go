package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/vocdoni/wispy/api"
	"github.com/vocdoni/wispy/types"
	"github.com/vocdoni/wispy/zk"
)

// Error is an error answered by the relay. It unwraps to the sentinel error
// of package types its code stands for, so callers can use errors.Is.
type Error struct {
	Status  int
	Code    int    `json:"code"`
	Message string `json:"error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %d (code %d): %s", errCodeNot200, e.Status, e.Code, e.Message)
}

// Unwrap returns the sentinel of the error code.
func (e *Error) Unwrap() error {
	return api.Sentinel(e.Code)
}

// call performs a request and decodes a JSON answer into out.
func (c *HTTPclient) call(ctx context.Context, method string, body, out any, params []string, urlPath ...string) error {
	data, status, err := c.Request(ctx, method, body, params, urlPath...)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		apiErr := &Error{Status: status}
		if jerr := json.Unmarshal(data, apiErr); jerr != nil || apiErr.Code == 0 {
			apiErr.Message = string(data)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("could not decode response: %w", err)
	}
	return nil
}

func (c *HTTPclient) get(ctx context.Context, out any, params []string, urlPath ...string) error {
	return c.call(ctx, HTTPGET, nil, out, params, urlPath...)
}

func (c *HTTPclient) post(ctx context.Context, body, out any, urlPath ...string) error {
	return c.call(ctx, HTTPPOST, body, out, nil, urlPath...)
}

// Info returns the description of the relay.
func (c *HTTPclient) Info(ctx context.Context) (*types.RelayInfo, error) {
	info := &types.RelayInfo{}
	if err := c.get(ctx, info, nil, api.InfoEndpoint); err != nil {
		return nil, err
	}
	return info, nil
}

// Join submits a join proof.
func (c *HTTPclient) Join(ctx context.Context, p *types.InteractionProof) (*types.Ack, error) {
	ack := &types.Ack{}
	if err := c.post(ctx, p, ack, api.MembersEndpoint); err != nil {
		return nil, err
	}
	return ack, nil
}

// Submit submits an interaction proof.
func (c *HTTPclient) Submit(ctx context.Context, p *types.InteractionProof) (*types.Ack, error) {
	ack := &types.Ack{}
	if err := c.post(ctx, p, ack, api.InteractionsEndpoint); err != nil {
		return nil, err
	}
	return ack, nil
}

// Witness returns the membership witness of a commitment against the
// current root.
func (c *HTTPclient) Witness(ctx context.Context, commitment *types.BigInt) (*types.MerkleWitness, error) {
	w := &types.MerkleWitness{}
	if err := c.get(ctx, w, nil, "members", commitment.String()); err != nil {
		return nil, err
	}
	return w, nil
}

// Registry returns the current membership root.
func (c *HTTPclient) Registry(ctx context.Context) (*api.RegistryResponse, error) {
	reg := &api.RegistryResponse{}
	if err := c.get(ctx, reg, nil, api.RegistryEndpoint); err != nil {
		return nil, err
	}
	return reg, nil
}

// Bulletin returns up to limit bulletin slots starting at from. A zero
// limit returns them all.
func (c *HTTPclient) Bulletin(ctx context.Context, from uint64, limit int) ([]*types.SlotWitness, error) {
	res := &api.BulletinResponse{}
	params := []string{"from", strconv.FormatUint(from, 10), "limit", strconv.Itoa(limit)}
	if err := c.get(ctx, res, params, api.BulletinEndpoint); err != nil {
		return nil, err
	}
	return res.Entries, nil
}

// BulletinFor returns the bulletin slot of a ticket.
func (c *HTTPclient) BulletinFor(ctx context.Context, ticket *types.BigInt) (*types.SlotWitness, error) {
	res := &types.SlotWitness{}
	if err := c.get(ctx, res, nil, "bulletin", ticket.String()); err != nil {
		return nil, err
	}
	return res, nil
}

// Poll returns a poll.
func (c *HTTPclient) Poll(ctx context.Context, pollID string) (*types.Poll, error) {
	p := &types.Poll{}
	if err := c.get(ctx, p, nil, "polls", pollID); err != nil {
		return nil, err
	}
	return p, nil
}

// CountVotes returns the vote count of a poll.
func (c *HTTPclient) CountVotes(ctx context.Context, pollID string) (*types.VoteCount, error) {
	count := &types.VoteCount{}
	if err := c.get(ctx, count, nil, "polls", pollID, "votes"); err != nil {
		return nil, err
	}
	return count, nil
}

// Settle asks the relay to settle the reputation signals on a message.
func (c *HTTPclient) Settle(ctx context.Context, target string) (*types.TicketSlot, error) {
	res := &api.SettleResponse{}
	if err := c.post(ctx, nil, res, "targets", target, "settle"); err != nil {
		return nil, err
	}
	return res.Slot, nil
}

// Manifest returns the key manifest of the circuit of a kind.
func (c *HTTPclient) Manifest(ctx context.Context, kind types.Kind) (*types.CircuitManifest, error) {
	m := &types.CircuitManifest{}
	if err := c.get(ctx, m, nil, "circuits", kind.String()); err != nil {
		return nil, err
	}
	return m, nil
}

// ArtifactURL returns the download URL of a circuit key.
func (c *HTTPclient) ArtifactURL(kind types.Kind, name string) string {
	return c.URL("circuits", kind.String(), name)
}

// RemoteKeys returns the key provider downloading the circuit keys
// published by the relay.
func (c *HTTPclient) RemoteKeys() *zk.RemoteKeys {
	return &zk.RemoteKeys{Manifest: c.Manifest, URL: c.ArtifactURL}
}
