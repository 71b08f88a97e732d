package credential

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/vocdoni/wispy/crypto"
	"github.com/vocdoni/wispy/crypto/hash/mimc"
	"github.com/vocdoni/wispy/types"
)

// State is the hidden state of a credential. Its commitment is the only
// value the relay ever sees.
//
// Reputation and Bans are the totals of the last complete scan pass. A pass
// walks the callback tickets 0..Tickets-1 in order: Cursor is the next one
// to fold and PassRep, PassBans the sums folded so far. SinceScan counts
// the interactions performed since the last complete pass.
type State struct {
	Secret     *types.BigInt `json:"secret"     cbor:"0,keyasint"`
	Reputation int64         `json:"reputation" cbor:"1,keyasint"`
	Bans       int64         `json:"bans"       cbor:"2,keyasint"`
	Pseudonyms uint64        `json:"pseudonyms" cbor:"3,keyasint"`
	Nonce      uint64        `json:"nonce"      cbor:"4,keyasint"`
	Tickets    uint64        `json:"tickets"    cbor:"5,keyasint"`
	Cursor     uint64        `json:"cursor"     cbor:"6,keyasint"`
	PassRep    int64         `json:"passRep"    cbor:"7,keyasint"`
	PassBans   int64         `json:"passBans"   cbor:"8,keyasint"`
	SinceScan  uint64        `json:"sinceScan"  cbor:"9,keyasint"`
}

// NewSecret returns a uniformly random field element.
func NewSecret() (*big.Int, error) {
	s, err := rand.Int(rand.Reader, crypto.Field)
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	return s, nil
}

// NewState returns the unregistered state of the given secret.
func NewState(secret *big.Int) *State {
	return &State{Secret: types.FromBig(secret)}
}

// Copy returns a deep copy of the state.
func (s *State) Copy() *State {
	cp := *s
	cp.Secret = types.FromBig(s.Secret.MathBigInt())
	return &cp
}

// Fresh reports whether no callback has been applied to the state yet.
func (s *State) Fresh() bool {
	return *s == State{Secret: s.Secret}
}

// ScanDue reports whether the next state-advancing interaction, other than
// a scan, needs a complete scan pass first.
func (s *State) ScanDue() bool {
	return s.SinceScan+1 >= types.ScanInterval
}

// Fields returns the state values as field elements, in commitment order.
func (s *State) Fields() []*big.Int {
	return []*big.Int{
		s.Secret.MathBigInt(),
		crypto.SignedToFF(s.Reputation),
		crypto.SignedToFF(s.Bans),
		new(big.Int).SetUint64(s.Pseudonyms),
		new(big.Int).SetUint64(s.Nonce),
		new(big.Int).SetUint64(s.Tickets),
		new(big.Int).SetUint64(s.Cursor),
		crypto.SignedToFF(s.PassRep),
		crypto.SignedToFF(s.PassBans),
		new(big.Int).SetUint64(s.SinceScan),
	}
}

// Commitment returns the binding and hiding commitment of the state.
func (s *State) Commitment() *big.Int {
	return mimc.HashUint(types.DomainCommit, s.Fields()...)
}

func (s *State) secret() *big.Int {
	return s.Secret.MathBigInt()
}
