package relay

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vocdoni/wispy/credential"
	"github.com/vocdoni/wispy/crypto"
	"github.com/vocdoni/wispy/storage"
	"github.com/vocdoni/wispy/types"
)

// interaction is a submitted proof that passed the consistency checks,
// with everything the later stages need.
type interaction struct {
	kind       types.Kind
	proof      *types.InteractionProof
	in         *types.PublicInputs
	payload    *types.Payload
	nullifiers []types.Nullifier
	// ticket of the message a ban is enforced on
	banTicket *types.BigInt
	banPoll   *types.Poll
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", types.ErrValidation, fmt.Sprintf(format, args...))
}

// mustBe checks a public input against its expected value.
func mustBe(name string, got *types.BigInt, want *types.BigInt) error {
	if !got.Equal(want) {
		return invalid("public input %s does not match the interaction", name)
	}
	return nil
}

// presence checks that a public input is set exactly when the kind uses it.
func presence(name string, v *types.BigInt, used bool) error {
	if used && v.IsZero() {
		return invalid("missing public input %s", name)
	}
	if !used && !v.IsZero() {
		return invalid("public input %s must be zero", name)
	}
	return nil
}

// validID reports whether a message or poll id referenced by a payload can
// be used as a storage key component.
func validID(id string) bool {
	return id != "" && len(id) <= 128 && !strings.ContainsAny(id, "/\x00")
}

// check runs the stateless consistency checks of a submitted proof: every
// public input the relay can recompute from the payload must match, and
// inputs the kind does not use must be zero.
func (r *Relay) check(p *types.InteractionProof) (*interaction, error) {
	if p == nil || p.Inputs == nil {
		return nil, invalid("missing public inputs")
	}
	in := p.Inputs
	kind := in.Kind
	if !kind.Valid() {
		return nil, invalid("unknown interaction kind %d", kind)
	}
	if len(p.Proof) == 0 {
		return nil, invalid("missing proof")
	}
	for i, v := range in.Values() {
		if v.Sign() < 0 || v.Cmp(crypto.Field) >= 0 {
			return nil, invalid("public input %d is not a field element", i)
		}
	}
	if err := credential.CheckPayload(kind, p.Payload); err != nil {
		return nil, err
	}
	it := &interaction{kind: kind, proof: p, in: in, payload: p.Payload}

	if pl := p.Payload; pl != nil {
		if pl.GroupID != r.cfg.GroupID {
			return nil, invalid("payload addressed to group %q", pl.GroupID)
		}
		for _, id := range []string{pl.PollID, pl.ReplyTo} {
			if id != "" && !validID(id) {
				return nil, invalid("malformed id %q", id)
			}
		}
		if err := r.checkClock(pl); err != nil {
			return nil, err
		}
		digest, err := credential.PayloadDigest(pl)
		if err != nil {
			return nil, err
		}
		if err := mustBe("payload", in.Payload, types.FromBig(digest)); err != nil {
			return nil, err
		}
	} else if err := presence("payload", in.Payload, false); err != nil {
		return nil, err
	}

	if kind.HasActionNullifier() {
		target, err := credential.Target(kind, r.cfg.GroupID, p.Payload)
		if err != nil {
			return nil, err
		}
		if err := mustBe("target", in.Target, types.FromBig(target)); err != nil {
			return nil, err
		}
		if in.ActionNullifier.IsZero() {
			return nil, invalid("missing action nullifier")
		}
		it.nullifiers = append(it.nullifiers, types.Nullifier{
			Scope:   kind.String(),
			Context: credential.NullifierContext(kind, p.Payload),
			Tag:     in.ActionNullifier,
		})
	} else {
		if err := presence("target", in.Target, false); err != nil {
			return nil, err
		}
		if err := presence("action nullifier", in.ActionNullifier, false); err != nil {
			return nil, err
		}
	}

	checks := []struct {
		name string
		v    *types.BigInt
		used bool
	}{
		{"root", in.Root, kind.RequiresMembership()},
		{"state nullifier", in.StateNullifier, kind.AdvancesState()},
		{"new commitment", in.NewCommitment, kind.AdvancesState() || kind == types.KindJoin},
		{"ticket", in.Ticket, kind.IssuesTicket()},
		{"tag", in.Tag, kind.RevealsPseudonym()},
		{"tag2", in.Tag2, kind == types.KindAuthorship},
		{"threshold", in.Threshold, kind == types.KindBadge && !in.Threshold.IsZero()},
	}
	for _, c := range checks {
		if err := presence(c.name, c.v, c.used); err != nil {
			return nil, err
		}
	}
	if kind == types.KindAuthorship && in.Tag.Equal(in.Tag2) {
		return nil, invalid("authorship requires two different pseudonyms")
	}

	wantDelta := new(types.BigInt)
	if kind == types.KindRep {
		wantDelta = types.FromBig(crypto.SignedToFF(p.Payload.Delta))
	}
	if err := mustBe("delta", in.Delta, wantDelta); err != nil {
		return nil, err
	}

	if kind.AdvancesState() {
		it.nullifiers = append(it.nullifiers, types.Nullifier{Scope: types.ScopeState, Tag: in.StateNullifier})
	}
	// a scan that folds no slot may leave the bulletin root out
	if kind != types.KindScan {
		if err := presence("effect root", in.EffectRoot, false); err != nil {
			return nil, err
		}
	}
	return it, nil
}

// checkClock rejects messages whose timestamp is too far from the relay
// clock. Timestamps are unix seconds.
func (r *Relay) checkClock(p *types.Payload) error {
	if r.cfg.MaxClockSkew < 0 || p.Timestamp == 0 {
		return nil
	}
	skew := time.Since(time.Unix(p.Timestamp, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > r.cfg.MaxClockSkew {
		return invalid("message timestamp is %s away from the relay clock", skew.Round(time.Second))
	}
	return nil
}

// checkWindow verifies the roots the proof was built against are still
// accepted.
func (r *Relay) checkWindow(it *interaction) error {
	if it.kind.RequiresMembership() && !r.registry.IsRecentRoot(it.in.Root.MathBigInt()) {
		return fmt.Errorf("%w: root %s is not among the last %d roots",
			types.ErrStaleWitness, it.in.Root, r.registry.RootWindow())
	}
	if !it.in.EffectRoot.IsZero() && !r.bulletin.IsRecentRoot(it.in.EffectRoot.MathBigInt()) {
		return fmt.Errorf("%w: callback bulletin root %s is too old", types.ErrStaleWitness, it.in.EffectRoot)
	}
	return nil
}

// checkPolicy runs the read-only relay policies of the interaction kind.
func (r *Relay) checkPolicy(it *interaction) error {
	if it.kind.IssuesTicket() {
		if _, err := r.stg.SlotByTicket(it.in.Ticket); err == nil {
			return fmt.Errorf("%w: callback ticket already issued", types.ErrPolicy)
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}
	p := it.payload
	switch it.kind {
	case types.KindVote:
		return r.tally.CheckVote(p.PollID, p.Choice)
	case types.KindRep, types.KindBanPoll:
		// effects need a ticket to be addressed to
		_, err := r.tally.TicketOf(p.ReplyTo)
		return err
	case types.KindBan:
		poll, _, err := r.tally.CheckBan(p.PollID)
		if err != nil {
			return err
		}
		ticket, err := r.tally.TicketOf(poll.Target)
		if err != nil {
			return err
		}
		it.banPoll, it.banTicket = poll, ticket
	case types.KindBadge:
		badge, err := r.tally.Badge(p.BadgeID)
		if err != nil {
			return err
		}
		if !it.in.Threshold.Equal(types.FromBig(crypto.SignedToFF(badge.MinReputation))) {
			return fmt.Errorf("%w: badge %s requires a reputation of %d",
				types.ErrPolicy, badge.ID, badge.MinReputation)
		}
	}
	return nil
}
