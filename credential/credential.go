// Package credential holds the member side of the anonymous credential: the
// secret state, its commitment, the closed set of callbacks that transform
// it and the opaque blob it is persisted as. Every derivation here has an
// in-circuit twin in package circuits, and both must agree bit for bit.
package credential

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/vocdoni/wispy/types"
)

// ErrNoPending is returned by Commit when there is no transition waiting
// for an acknowledgment.
var ErrNoPending = errors.New("no pending transition")

// Pending is a transition submitted to the relay but not acknowledged yet.
type Pending struct {
	Kind           types.Kind    `cbor:"0,keyasint"`
	New            *State        `cbor:"1,keyasint,omitempty"`
	NewCommitment  *types.BigInt `cbor:"2,keyasint,omitempty"`
	StateNullifier *types.BigInt `cbor:"3,keyasint,omitempty"`
	Pseudonym      *Pseudonym    `cbor:"4,keyasint,omitempty"`
	Ticket         *Ticket       `cbor:"5,keyasint,omitempty"`
	CreatedAt      time.Time     `cbor:"6,keyasint"`
}

// Credential is the credential store: the secret state plus the
// bookkeeping a member needs to keep interacting (witness, pseudonyms,
// tickets and the pending transition).
type Credential struct {
	GroupID    string               `cbor:"0,keyasint"`
	State      *State               `cbor:"1,keyasint"`
	Joined     bool                 `cbor:"2,keyasint"`
	Witness    *types.MerkleWitness `cbor:"3,keyasint,omitempty"`
	Pseudonyms []*Pseudonym         `cbor:"4,keyasint,omitempty"`
	Tickets    []*Ticket            `cbor:"5,keyasint,omitempty"`
	Pending    *Pending             `cbor:"6,keyasint,omitempty"`
}

// New creates an unregistered credential for the group with a fresh secret.
func New(groupID string) (*Credential, error) {
	secret, err := NewSecret()
	if err != nil {
		return nil, err
	}
	return FromSecret(groupID, secret), nil
}

// FromSecret creates an unregistered credential with the given secret.
func FromSecret(groupID string, secret *big.Int) *Credential {
	return &Credential{GroupID: groupID, State: NewState(secret)}
}

// Apply evaluates a callback over the current state without modifying it.
func (c *Credential) Apply(cb *Callback) (*Transition, error) {
	if c.Pending != nil {
		return nil, fmt.Errorf("%w: a %s transition is waiting for acknowledgment",
			types.ErrValidation, c.Pending.Kind)
	}
	if cb != nil && cb.Kind != types.KindJoin && !c.Joined {
		return nil, fmt.Errorf("%w: credential has not joined the group", types.ErrValidation)
	}
	return Apply(c.State, cb)
}

// Prepare records the transition as pending. The state does not advance
// until Commit is called with the relay acknowledgment.
func (c *Credential) Prepare(t *Transition) {
	p := &Pending{
		Kind:           t.Kind,
		New:            t.New,
		NewCommitment:  t.Inputs.NewCommitment,
		StateNullifier: t.Inputs.StateNullifier,
		Ticket:         t.Ticket,
		CreatedAt:      time.Now(),
	}
	if t.Kind == types.KindGenPseudo {
		p.Pseudonym = t.Pseudonym
	}
	c.Pending = p
}

// Commit advances the credential to the pending transition. The witness is
// the membership witness of the new commitment returned by the relay; it is
// nil for callbacks that do not change the state. The message id is the one
// the relay assigned to the message a ticket was issued for.
func (c *Credential) Commit(witness *types.MerkleWitness, messageID string) error {
	p := c.Pending
	if p == nil {
		return ErrNoPending
	}
	if p.New != nil {
		if witness == nil || !witness.Leaf.Equal(p.NewCommitment) {
			return fmt.Errorf("%w: witness does not match the pending commitment", types.ErrValidation)
		}
		c.State = p.New
		c.Witness = witness
	}
	if p.Kind == types.KindJoin {
		c.Joined = true
	}
	if p.Pseudonym != nil {
		c.Pseudonyms = append(c.Pseudonyms, p.Pseudonym)
	}
	if p.Ticket != nil {
		t := *p.Ticket
		t.MessageID = messageID
		c.Tickets = append(c.Tickets, &t)
	}
	c.Pending = nil
	return nil
}

// Discard drops the pending transition. Only safe when the relay is known
// to have rejected it.
func (c *Credential) Discard() {
	c.Pending = nil
}

// Commitment returns the commitment of the current state.
func (c *Credential) Commitment() *big.Int {
	return c.State.Commitment()
}

// Secret returns the credential secret.
func (c *Credential) Secret() *big.Int {
	return c.State.secret()
}

// DerivePseudonym returns the pseudonym with the given index. It must have
// been generated already.
func (c *Credential) DerivePseudonym(index uint64) (*Pseudonym, error) {
	if err := checkPseudonymIndex(c.State, index); err != nil {
		return nil, err
	}
	return NewPseudonym(c.Secret(), index), nil
}

// DeriveNullifier returns the action nullifier of a (kind, target) pair.
func (c *Credential) DeriveNullifier(kind types.Kind, target *big.Int) *big.Int {
	return ActionNullifier(c.Secret(), kind, target)
}

// SetWitness replaces the membership witness, as done by scan. The witness
// must be for the current commitment.
func (c *Credential) SetWitness(w *types.MerkleWitness) error {
	if w == nil || !w.Leaf.Equal(types.FromBig(c.Commitment())) {
		return fmt.Errorf("%w: witness does not match the credential commitment", types.ErrValidation)
	}
	c.Witness = w
	return nil
}

// NextScan picks from the bulletin entries the slots the next scan folds:
// up to FoldSlots tickets from the cursor of the current pass, in order.
// No effects are returned when the pass completes without folding, and
// ErrNotFound when the slot of a ticket of the pass is missing.
func (c *Credential) NextScan(entries []*types.SlotWitness) ([]*Effect, []*types.SlotWitness, error) {
	slots := make(map[string]*types.SlotWitness, len(entries))
	for _, e := range entries {
		if e != nil && e.Slot != nil && e.Slot.Ticket != nil && e.Witness != nil {
			slots[e.Slot.Ticket.String()] = e
		}
	}
	secret := c.Secret()
	var effects []*Effect
	var witnesses []*types.SlotWitness
	for i := c.State.Cursor; i < c.State.Tickets && len(effects) < types.FoldSlots; i++ {
		ticket := types.FromBig(TicketValue(secret, i))
		e, ok := slots[ticket.String()]
		if !ok {
			return nil, nil, fmt.Errorf("%w: bulletin slot of ticket %d", types.ErrNotFound, i)
		}
		effects = append(effects, &Effect{Index: i, Reputation: e.Slot.Reputation, Bans: e.Slot.Bans})
		witnesses = append(witnesses, e)
	}
	return effects, witnesses, nil
}

// PassLeft returns the number of scans needed to complete the current
// pass, at least one.
func (c *Credential) PassLeft() int {
	left := int(c.State.Tickets - c.State.Cursor)
	return max(1, (left+types.FoldSlots-1)/types.FoldSlots)
}

// Encode serializes the credential as an opaque blob.
func (c *Credential) Encode() ([]byte, error) {
	return payloadEncMode.Marshal(c)
}

// Decode parses a blob produced by Encode.
func Decode(data []byte) (*Credential, error) {
	c := &Credential{}
	if err := cbor.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}
	if c.State == nil || c.State.Secret.IsZero() {
		return nil, fmt.Errorf("decode credential: missing secret")
	}
	return c, nil
}

// Save writes the blob to path atomically, readable only by the owner.
func (c *Credential) Save(path string) error {
	data, err := c.Encode()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".credential-*")
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save credential: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("save credential: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// Load reads a blob written by Save.
func Load(path string) (*Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	return Decode(data)
}
