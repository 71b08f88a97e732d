package circuits

import (
	"fmt"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
	"github.com/vocdoni/wispy/types"
)

// FoldWitness is the private witness of a callback bulletin slot folded by
// a scan. The ticket index is implied by the cursor.
type FoldWitness struct {
	Enabled    frontend.Variable
	Reputation frontend.Variable
	Bans       frontend.Variable
	Index      frontend.Variable
	Path       [types.TreeDepth]frontend.Variable
}

// InteractionCircuit proves the correct application of a callback to a
// hidden credential state. The same definition is compiled once per kind;
// the kind selects which constraints are emitted, and public inputs a kind
// does not use are constrained to zero.
type InteractionCircuit struct {
	kind types.Kind

	Kind            frontend.Variable `gnark:",public"`
	Root            frontend.Variable `gnark:",public"`
	StateNullifier  frontend.Variable `gnark:",public"`
	NewCommitment   frontend.Variable `gnark:",public"`
	ActionNullifier frontend.Variable `gnark:",public"`
	Target          frontend.Variable `gnark:",public"`
	Payload         frontend.Variable `gnark:",public"`
	Tag             frontend.Variable `gnark:",public"`
	Tag2            frontend.Variable `gnark:",public"`
	Ticket          frontend.Variable `gnark:",public"`
	Delta           frontend.Variable `gnark:",public"`
	Threshold       frontend.Variable `gnark:",public"`
	EffectRoot      frontend.Variable `gnark:",public"`

	Secret       frontend.Variable
	Reputation   frontend.Variable
	Bans         frontend.Variable
	Pseudonyms   frontend.Variable
	Nonce        frontend.Variable
	Tickets      frontend.Variable
	Cursor       frontend.Variable
	PassRep      frontend.Variable
	PassBans     frontend.Variable
	SinceScan    frontend.Variable
	Index        frontend.Variable
	Path         [types.TreeDepth]frontend.Variable
	PseudoIndex  frontend.Variable
	PseudoIndex2 frontend.Variable
	Folds        [types.FoldSlots]FoldWitness
}

// Placeholder returns the circuit definition of the given kind, ready to be
// compiled.
func Placeholder(kind types.Kind) *InteractionCircuit {
	return &InteractionCircuit{kind: kind}
}

// CircuitKind returns the kind the circuit is specialised for.
func (c *InteractionCircuit) CircuitKind() types.Kind {
	return c.kind
}

func (c *InteractionCircuit) Define(api frontend.API) error {
	kind := c.kind
	if !kind.Valid() {
		return fmt.Errorf("unknown interaction kind %d", kind)
	}
	api.AssertIsEqual(c.Kind, uint64(kind))

	old := &state{
		reputation: c.Reputation,
		bans:       c.Bans,
		pseudonyms: c.Pseudonyms,
		nonce:      c.Nonce,
		tickets:    c.Tickets,
		cursor:     c.Cursor,
		passRep:    c.PassRep,
		passBans:   c.PassBans,
		sinceScan:  c.SinceScan,
	}
	commitment, err := c.commit(api, old)
	if err != nil {
		return err
	}

	if kind.RequiresMembership() {
		root, err := merkleRoot(api, commitment, c.Index, c.Path[:])
		if err != nil {
			return err
		}
		api.AssertIsEqual(root, c.Root)
	} else {
		api.AssertIsEqual(c.Root, 0)
	}

	// state transition
	newCommitment, ticket := frontend.Variable(0), frontend.Variable(0)
	switch {
	case kind == types.KindJoin:
		for _, v := range old.fields() {
			api.AssertIsEqual(v, 0)
		}
		newCommitment = commitment
	case kind.AdvancesState():
		sn, err := hash(api, types.DomainState, c.Secret, c.Nonce)
		if err != nil {
			return err
		}
		api.AssertIsEqual(c.StateNullifier, sn)
		next := *old
		if kind == types.KindScan {
			if err := c.scan(api, &next); err != nil {
				return err
			}
		} else {
			// SinceScan+1 < ScanInterval
			next.sinceScan = api.Add(c.SinceScan, 1)
			api.ToBinary(api.Sub(types.ScanInterval-1, next.sinceScan), types.ScanCounterBits)
			api.AssertIsEqual(c.EffectRoot, 0)
		}
		if kind.IssuesTicket() {
			api.ToBinary(c.Tickets, types.TicketIndexBits)
			if ticket, err = hash(api, types.DomainTicket, c.Secret, c.Tickets); err != nil {
				return err
			}
			next.tickets = api.Add(c.Tickets, 1)
		}
		if kind == types.KindGenPseudo {
			next.pseudonyms = api.Add(c.Pseudonyms, 1)
		}
		next.nonce = api.Add(c.Nonce, 1)
		if newCommitment, err = c.commit(api, &next); err != nil {
			return err
		}
	}
	if !kind.AdvancesState() {
		api.AssertIsEqual(c.StateNullifier, 0)
		api.AssertIsEqual(c.EffectRoot, 0)
	}
	api.AssertIsEqual(c.NewCommitment, newCommitment)
	api.AssertIsEqual(c.Ticket, ticket)

	// standing is the one of the last complete scan pass
	if kind.RequiresStanding() {
		api.AssertIsEqual(c.Bans, 0)
		api.ToBinary(c.Reputation, types.ReputationBits)
	}

	if kind.HasActionNullifier() {
		an, err := hash(api, types.DomainAction, c.Secret, uint64(kind), c.Target)
		if err != nil {
			return err
		}
		api.AssertIsEqual(c.ActionNullifier, an)
	} else {
		api.AssertIsEqual(c.ActionNullifier, 0)
		api.AssertIsEqual(c.Target, 0)
	}

	if kind.HasPayload() {
		bind(api, c.Payload)
	} else {
		api.AssertIsEqual(c.Payload, 0)
	}

	// pseudonyms
	tag, tag2 := frontend.Variable(0), frontend.Variable(0)
	switch kind {
	case types.KindPostPseudo, types.KindBadge:
		if tag, err = c.pseudonym(api, c.PseudoIndex); err != nil {
			return err
		}
	case types.KindAuthorship:
		if tag, err = c.pseudonym(api, c.PseudoIndex); err != nil {
			return err
		}
		if tag2, err = c.pseudonym(api, c.PseudoIndex2); err != nil {
			return err
		}
	}
	api.AssertIsEqual(c.Tag, tag)
	api.AssertIsEqual(c.Tag2, tag2)

	if kind == types.KindRep {
		// delta is +1 or -1
		api.AssertIsEqual(api.Mul(c.Delta, c.Delta), 1)
	} else {
		api.AssertIsEqual(c.Delta, 0)
	}

	if kind == types.KindBadge {
		api.ToBinary(c.Threshold, types.ReputationBits)
		api.ToBinary(api.Sub(c.Reputation, c.Threshold), types.ReputationBits)
	} else {
		api.AssertIsEqual(c.Threshold, 0)
	}
	return nil
}

// state holds the committed values of a credential state, but the secret.
type state struct {
	reputation frontend.Variable
	bans       frontend.Variable
	pseudonyms frontend.Variable
	nonce      frontend.Variable
	tickets    frontend.Variable
	cursor     frontend.Variable
	passRep    frontend.Variable
	passBans   frontend.Variable
	sinceScan  frontend.Variable
}

func (s *state) fields() []frontend.Variable {
	return []frontend.Variable{
		s.reputation, s.bans, s.pseudonyms, s.nonce,
		s.tickets, s.cursor, s.passRep, s.passBans, s.sinceScan,
	}
}

// commit returns the commitment of a state of this credential.
func (c *InteractionCircuit) commit(api frontend.API, s *state) (frontend.Variable, error) {
	return hash(api, append([]frontend.Variable{types.DomainCommit, c.Secret}, s.fields()...)...)
}

// scan folds the enabled slots into the pass, one ticket after the other
// from the cursor, each one checked against the bulletin. Enabled slots
// come first and cannot go past the last ticket issued. Reaching it
// completes the pass: its sums replace the reputation and ban totals and
// every pass counter is reset.
func (c *InteractionCircuit) scan(api frontend.API, s *state) error {
	bind(api, c.EffectRoot)
	cursor, passRep, passBans := frontend.Variable(c.Cursor), frontend.Variable(c.PassRep), frontend.Variable(c.PassBans)
	prev := frontend.Variable(1)
	for i := range c.Folds {
		f := &c.Folds[i]
		api.AssertIsBoolean(f.Enabled)
		api.AssertIsEqual(api.Mul(f.Enabled, api.Sub(1, prev)), 0)
		prev = f.Enabled

		ticket, err := hash(api, types.DomainTicket, c.Secret, cursor)
		if err != nil {
			return err
		}
		leaf, err := hash(api, types.DomainEffect, ticket, f.Reputation, f.Bans)
		if err != nil {
			return err
		}
		root, err := merkleRoot(api, leaf, f.Index, f.Path[:])
		if err != nil {
			return err
		}
		api.AssertIsEqual(api.Mul(f.Enabled, api.Sub(root, c.EffectRoot)), 0)
		passRep = api.Add(passRep, api.Mul(f.Enabled, f.Reputation))
		passBans = api.Add(passBans, api.Mul(f.Enabled, f.Bans))
		cursor = api.Add(cursor, f.Enabled)
	}
	// cursor <= Tickets
	api.ToBinary(api.Sub(c.Tickets, cursor), types.TicketIndexBits)

	done := api.IsZero(api.Sub(c.Tickets, cursor))
	s.reputation = api.Select(done, passRep, c.Reputation)
	s.bans = api.Select(done, passBans, c.Bans)
	s.cursor = api.Select(done, 0, cursor)
	s.passRep = api.Select(done, 0, passRep)
	s.passBans = api.Select(done, 0, passBans)
	s.sinceScan = api.Select(done, 0, c.SinceScan)
	return nil
}

// pseudonym checks index < Pseudonyms and returns the pseudonym tag.
func (c *InteractionCircuit) pseudonym(api frontend.API, index frontend.Variable) (frontend.Variable, error) {
	api.ToBinary(index, types.PseudonymIndexBits)
	api.ToBinary(api.Sub(c.Pseudonyms, index, 1), types.PseudonymIndexBits)
	return hash(api, types.DomainPseudonym, c.Secret, index)
}

// hash returns the MiMC hash of the inputs.
func hash(api frontend.API, inputs ...frontend.Variable) (frontend.Variable, error) {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return nil, fmt.Errorf("mimc: %w", err)
	}
	h.Write(inputs...)
	return h.Sum(), nil
}

// bind keeps a public input in the constraint system, so the proof commits
// to it even if no other constraint uses it.
func bind(api frontend.API, v frontend.Variable) {
	api.Mul(v, v)
}
