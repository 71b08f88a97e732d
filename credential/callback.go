package credential

import (
	"fmt"
	"math/big"

	"github.com/vocdoni/wispy/crypto"
	"github.com/vocdoni/wispy/types"
)

// maxReputation bounds the absolute reputation value, so it always passes
// (or fails) the in-circuit range check unambiguously.
const maxReputation = int64(1) << (types.ReputationBits - 1)

// Effect is the content of a callback bulletin slot addressed to a ticket
// of the credential, ready to be folded by a scan.
type Effect struct {
	// Index of the ticket the slot was opened for.
	Index      uint64
	Reputation int64
	Bans       int64
}

// Leaf returns the bulletin leaf of the slot for the given secret.
func (e *Effect) Leaf(secret *big.Int) *big.Int {
	return EffectLeaf(TicketValue(secret, e.Index), e.Reputation, e.Bans)
}

// Callback is the closed tagged variant of the state transitions. Which
// fields are meaningful depends on Kind:
//
//   - Target: every kind with an action nullifier
//   - Payload: every kind carrying a payload
//   - PseudoIndex: post-pseudo, badge, authorship
//   - PseudoIndex2: authorship
//   - Delta: rep
//   - Threshold: badge
//   - Folds: scan, the next tickets of the pass in order
type Callback struct {
	Kind         types.Kind
	Target       *big.Int
	Payload      *big.Int
	PseudoIndex  uint64
	PseudoIndex2 uint64
	Delta        int64
	Threshold    int64
	Folds        []*Effect
}

// Transition is the result of applying a callback: the new state and the
// public output the proof must reproduce.
type Transition struct {
	Kind types.Kind
	Old  *State
	// New is nil for callbacks that leave the state untouched.
	New    *State
	Inputs *types.PublicInputs
	// Pseudonym is the pseudonym created (gen-pseudo) or revealed.
	Pseudonym *Pseudonym
	// Pseudonym2 is the second pseudonym of an authorship proof.
	Pseudonym2 *Pseudonym
	// Ticket is the callback ticket issued by post-like callbacks.
	Ticket *Ticket
	// Folded is the number of ticket slots folded by a scan.
	Folded int
	// PassDone reports a scan that completed its pass, refreshing the
	// reputation and ban totals.
	PassDone bool
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", types.ErrValidation, fmt.Sprintf(format, args...))
}

// Apply evaluates the callback over the state. It is pure and total: it
// either returns the full transition or rejects the callback, never
// touching the input state. Roots of the membership registry and of the
// callback bulletin are left to the prover.
func Apply(state *State, cb *Callback) (*Transition, error) {
	if state == nil || state.Secret.IsZero() {
		return nil, invalid("missing credential secret")
	}
	if cb == nil || !cb.Kind.Valid() {
		return nil, invalid("unknown callback kind")
	}
	kind := cb.Kind
	if err := checkParams(state, cb); err != nil {
		return nil, err
	}

	secret := state.secret()
	t := &Transition{
		Kind:   kind,
		Old:    state.Copy(),
		Inputs: types.NewPublicInputs(kind),
	}
	in := t.Inputs

	if kind.HasPayload() {
		in.Payload = types.FromBig(cb.Payload)
	}
	if kind.HasActionNullifier() {
		in.Target = types.FromBig(cb.Target)
		in.ActionNullifier = types.FromBig(ActionNullifier(secret, kind, cb.Target))
	}

	switch {
	case kind == types.KindJoin:
		if !state.Fresh() {
			return nil, invalid("credential already joined")
		}
		t.New = state.Copy()
		in.NewCommitment = types.FromBig(t.New.Commitment())
	case kind.AdvancesState():
		next := state.Copy()
		if kind == types.KindScan {
			done, err := scan(next, cb.Folds)
			if err != nil {
				return nil, err
			}
			t.Folded, t.PassDone = len(cb.Folds), done
		} else {
			if state.ScanDue() {
				return nil, invalid("%d interactions since the last scan pass, scan first", state.SinceScan)
			}
			next.SinceScan++
		}
		if kind.IssuesTicket() {
			if next.Tickets >= 1<<types.TicketIndexBits {
				return nil, invalid("no callback tickets left")
			}
			t.Ticket = &Ticket{
				Index: next.Tickets,
				Value: types.FromBig(TicketValue(secret, next.Tickets)),
			}
			in.Ticket = t.Ticket.Value
			next.Tickets++
		}
		if kind == types.KindGenPseudo {
			t.Pseudonym = NewPseudonym(secret, next.Pseudonyms)
			next.Pseudonyms++
		}
		next.Nonce++
		in.StateNullifier = types.FromBig(StateNullifier(secret, state.Nonce))
		in.NewCommitment = types.FromBig(next.Commitment())
		t.New = next
	}

	// standing is the one of the last complete scan pass
	if kind.RequiresStanding() {
		if t.New.Bans != 0 {
			return nil, invalid("credential is banned")
		}
		if t.New.Reputation < 0 {
			return nil, invalid("negative reputation")
		}
	}

	switch kind {
	case types.KindPostPseudo, types.KindBadge:
		t.Pseudonym = NewPseudonym(secret, cb.PseudoIndex)
		in.Tag = t.Pseudonym.Tag
	case types.KindAuthorship:
		t.Pseudonym = NewPseudonym(secret, cb.PseudoIndex)
		t.Pseudonym2 = NewPseudonym(secret, cb.PseudoIndex2)
		in.Tag = t.Pseudonym.Tag
		in.Tag2 = t.Pseudonym2.Tag
	case types.KindRep:
		in.Delta = types.FromBig(crypto.SignedToFF(cb.Delta))
	}
	if kind == types.KindBadge {
		if t.New.Reputation < cb.Threshold {
			return nil, invalid("reputation %d below badge threshold %d", t.New.Reputation, cb.Threshold)
		}
		in.Threshold = types.NewInt(cb.Threshold)
	}
	return t, nil
}

// scan folds the ticket slots into the pass of the state, in ticket order
// from the cursor. When the cursor reaches the last ticket issued the pass
// is complete: its sums become the reputation and ban totals and a new
// pass starts.
func scan(s *State, folds []*Effect) (bool, error) {
	for _, f := range folds {
		if f.Index != s.Cursor || s.Cursor >= s.Tickets {
			return false, invalid("ticket %d folded out of order, next is %d of %d", f.Index, s.Cursor, s.Tickets)
		}
		s.PassRep += f.Reputation
		s.PassBans += f.Bans
		s.Cursor++
		if !inRange(s.PassRep) || !inRange(s.PassBans) {
			return false, invalid("reputation out of range")
		}
	}
	if s.Cursor != s.Tickets {
		return false, nil
	}
	s.Reputation, s.Bans = s.PassRep, s.PassBans
	s.Cursor, s.PassRep, s.PassBans, s.SinceScan = 0, 0, 0, 0
	return true, nil
}

func inRange(v int64) bool {
	return v < maxReputation && v > -maxReputation
}

// checkParams validates the callback parameters against the state before
// anything is computed.
func checkParams(state *State, cb *Callback) error {
	kind := cb.Kind
	if kind.HasActionNullifier() && cb.Target == nil {
		return invalid("%s requires a target", kind)
	}
	if kind.HasPayload() && cb.Payload == nil {
		return invalid("%s requires a payload", kind)
	}
	if len(cb.Folds) > 0 && kind != types.KindScan {
		return invalid("%s cannot fold callback tickets", kind)
	}
	if len(cb.Folds) > types.FoldSlots {
		return invalid("at most %d tickets can be folded at once", types.FoldSlots)
	}
	for _, f := range cb.Folds {
		if f == nil || f.Bans < 0 {
			return invalid("malformed callback effect")
		}
	}
	switch kind {
	case types.KindPostPseudo, types.KindBadge:
		if err := checkPseudonymIndex(state, cb.PseudoIndex); err != nil {
			return err
		}
	case types.KindAuthorship:
		if err := checkPseudonymIndex(state, cb.PseudoIndex); err != nil {
			return err
		}
		if err := checkPseudonymIndex(state, cb.PseudoIndex2); err != nil {
			return err
		}
	case types.KindRep:
		if cb.Delta != 1 && cb.Delta != -1 {
			return invalid("reputation delta must be +1 or -1, got %d", cb.Delta)
		}
	}
	if kind == types.KindBadge && (cb.Threshold < 0 || cb.Threshold >= maxReputation) {
		return invalid("badge threshold out of range")
	}
	return nil
}

func checkPseudonymIndex(state *State, index uint64) error {
	if index >= state.Pseudonyms {
		return invalid("pseudonym index %d out of range, %d pseudonyms generated", index, state.Pseudonyms)
	}
	if index >= 1<<types.PseudonymIndexBits {
		return invalid("pseudonym index %d too large", index)
	}
	return nil
}
