// Package member is the client side of a wispy group: it keeps the member
// credential, proves interactions locally and submits them to a relay.
package member

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vocdoni/wispy/api/client"
	"github.com/vocdoni/wispy/credential"
	"github.com/vocdoni/wispy/log"
	"github.com/vocdoni/wispy/prover"
	"github.com/vocdoni/wispy/types"
	"github.com/vocdoni/wispy/zk"
)

// ErrNotJoined is returned by the interactions of a member that has no
// credential yet.
var ErrNotJoined = errors.New("no credential, join the group first")

// Member is a session of a group member against a relay.
type Member struct {
	cli    *client.HTTPclient
	prover *prover.Prover
	// path of the credential file, empty keeps it in memory
	path string
	info *types.RelayInfo
	cred *credential.Credential
}

// Open starts a session. The credential is read from path when it exists,
// and a transition left pending by an interrupted session is reconciled
// with the relay.
func Open(ctx context.Context, cli *client.HTTPclient, backend zk.Backend, path string, proveTimeout time.Duration) (*Member, error) {
	info, err := cli.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not reach relay: %w", err)
	}
	m := &Member{
		cli:    cli,
		prover: prover.New(backend, proveTimeout),
		path:   path,
		info:   info,
	}
	if path == "" {
		return m, nil
	}
	cred, err := credential.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	if cred.GroupID != info.GroupID {
		return nil, fmt.Errorf("%w: credential belongs to group %q, relay serves %q",
			types.ErrValidation, cred.GroupID, info.GroupID)
	}
	m.cred = cred
	if err := m.reconcile(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Credential returns the credential of the member, nil before joining.
func (m *Member) Credential() *credential.Credential {
	return m.cred
}

// Info returns the relay description fetched when the session opened.
func (m *Member) Info() *types.RelayInfo {
	return m.info
}

func (m *Member) save() error {
	if m.path == "" || m.cred == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o700); err != nil {
		return err
	}
	return m.cred.Save(m.path)
}

// reconcile settles a pending transition: it is committed when the relay
// registered its commitment and discarded otherwise.
func (m *Member) reconcile(ctx context.Context) error {
	p := m.cred.Pending
	if p == nil {
		return nil
	}
	if p.New == nil {
		// nothing to lose, these interactions can be proved again
		log.Infow("discarding pending interaction", "kind", p.Kind.String())
		m.cred.Discard()
		return m.save()
	}
	w, err := m.cli.Witness(ctx, p.NewCommitment)
	switch {
	case err == nil:
		messageID, err := m.ticketMessage(ctx, p.Ticket)
		if err != nil {
			return fmt.Errorf("could not reconcile pending %s: %w", p.Kind, err)
		}
		if err := m.cred.Commit(w, messageID); err != nil {
			return err
		}
		log.Infow("pending interaction was accepted", "kind", p.Kind.String(), "message", messageID)
	case errors.Is(err, types.ErrNotFound):
		m.cred.Discard()
		log.Infow("pending interaction was not accepted", "kind", p.Kind.String())
	default:
		return fmt.Errorf("could not reconcile pending %s: %w", p.Kind, err)
	}
	return m.save()
}

// ticketMessage returns the id of the message a ticket was issued for,
// empty when there is no ticket or the relay opened no slot for it.
func (m *Member) ticketMessage(ctx context.Context, ticket *credential.Ticket) (string, error) {
	if ticket == nil {
		return "", nil
	}
	entries, err := m.bulletin(ctx)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.Slot != nil && e.Slot.Ticket.Equal(ticket.Value) {
			return e.Slot.MessageID, nil
		}
	}
	log.Warnw("accepted ticket has no bulletin slot", "ticket", ticket.Index)
	return "", nil
}

// Join creates a credential and registers its commitment in the group.
func (m *Member) Join(ctx context.Context) (*types.Ack, error) {
	if m.cred != nil && m.cred.Joined {
		return nil, fmt.Errorf("%w: already a member of %s", types.ErrValidation, m.cred.GroupID)
	}
	if m.cred == nil {
		cred, err := credential.New(m.info.GroupID)
		if err != nil {
			return nil, err
		}
		m.cred = cred
	}
	cb, err := credential.NewCallback(types.KindJoin, m.info.GroupID, nil, credential.Params{})
	if err != nil {
		return nil, err
	}
	res, err := m.prover.Prove(ctx, &prover.Request{Credential: m.cred, Callback: cb})
	if err != nil {
		return nil, err
	}
	return m.submit(ctx, res, m.cli.Join)
}

// Scan refreshes the membership witness and runs a full scan pass over the
// callback bulletin, folding the slot of every ticket of the credential.
// It returns the number of slots folded.
func (m *Member) Scan(ctx context.Context) (int, error) {
	if err := m.refresh(ctx); err != nil {
		return 0, err
	}
	start := m.cred.State.Cursor
	for left := m.cred.PassLeft(); left > 0; left-- {
		if _, err := m.act(ctx, types.KindScan, nil, credential.Params{}); err != nil {
			return 0, err
		}
	}
	// a complete pass folds every ticket from where it started
	folded := int(m.cred.State.Tickets - start)
	log.Infow("scan pass complete", "folded", folded,
		"reputation", m.cred.State.Reputation, "bans", m.cred.State.Bans)
	return folded, nil
}

// refresh replaces the membership witness with one against the current
// root.
func (m *Member) refresh(ctx context.Context) error {
	if m.cred == nil || !m.cred.Joined {
		return ErrNotJoined
	}
	w, err := m.cli.Witness(ctx, types.FromBig(m.cred.Commitment()))
	if err != nil {
		return err
	}
	if err := m.cred.SetWitness(w); err != nil {
		return err
	}
	return m.save()
}

// bulletin fetches the whole callback bulletin, so the relay does not learn
// which tickets belong together.
func (m *Member) bulletin(ctx context.Context) ([]*types.SlotWitness, error) {
	return m.cli.Bulletin(ctx, 0, 0)
}

// act proves and submits an interaction. A scan pass is run first when the
// credential has gone too long without one. A stale witness is refreshed
// and the interaction proved again once.
func (m *Member) act(ctx context.Context, kind types.Kind, payload *types.Payload, params credential.Params) (*types.Ack, error) {
	if m.cred == nil || !m.cred.Joined {
		return nil, ErrNotJoined
	}
	if kind.AdvancesState() && kind != types.KindScan && m.cred.State.ScanDue() {
		log.Infow("scan pass due", "kind", kind.String(), "since", m.cred.State.SinceScan)
		if _, err := m.Scan(ctx); err != nil {
			return nil, fmt.Errorf("scan pass: %w", err)
		}
	}
	ack, err := m.try(ctx, kind, payload, params)
	if !errors.Is(err, types.ErrStaleWitness) {
		return ack, err
	}
	log.Infow("membership witness is stale, refreshing", "kind", kind.String())
	if err := m.refresh(ctx); err != nil {
		return nil, err
	}
	return m.try(ctx, kind, payload, params)
}

func (m *Member) try(ctx context.Context, kind types.Kind, payload *types.Payload, params credential.Params) (*types.Ack, error) {
	req := &prover.Request{Credential: m.cred, Payload: payload}
	if kind == types.KindScan && params.Folds == nil {
		entries, err := m.bulletin(ctx)
		if err != nil {
			return nil, err
		}
		if params.Folds, req.Slots, err = m.cred.NextScan(entries); err != nil {
			return nil, err
		}
	}
	cb, err := credential.NewCallback(kind, m.cred.GroupID, payload, params)
	if err != nil {
		return nil, err
	}
	req.Callback = cb
	res, err := m.prover.Prove(ctx, req)
	if err != nil {
		return nil, err
	}
	log.Debugw("interaction proved", "kind", kind.String(), "took", res.Took.String())
	return m.submit(ctx, res, m.cli.Submit)
}

// submit records the transition as pending, sends the proof and commits or
// discards the transition depending on the answer. When the relay cannot be
// reached the transition stays pending until the next session.
func (m *Member) submit(ctx context.Context, res *prover.Result,
	send func(context.Context, *types.InteractionProof) (*types.Ack, error),
) (*types.Ack, error) {
	m.cred.Prepare(res.Transition)
	if err := m.save(); err != nil {
		m.cred.Discard()
		return nil, err
	}
	ack, err := send(ctx, res.Proof)
	if err != nil {
		var apiErr *client.Error
		if errors.As(err, &apiErr) && apiErr.Status < 500 {
			m.cred.Discard()
			if serr := m.save(); serr != nil {
				log.Warnw("could not save credential", "error", serr.Error())
			}
		}
		return nil, err
	}
	if err := m.cred.Commit(ack.Witness, ack.MessageID); err != nil {
		return nil, err
	}
	if ack.Warning != "" {
		log.Warnw("interaction accepted with a warning", "kind", ack.Kind.String(), "warning", ack.Warning)
	}
	return ack, m.save()
}
