package credential

import (
	"math/big"

	"github.com/vocdoni/wispy/crypto"
	"github.com/vocdoni/wispy/crypto/hash/mimc"
	"github.com/vocdoni/wispy/types"
)

// PseudonymTag returns the public tag of the pseudonym with the given
// index. Recovering the owner of a tag requires the secret.
func PseudonymTag(secret *big.Int, index uint64) *big.Int {
	return mimc.HashUint(types.DomainPseudonym, secret, new(big.Int).SetUint64(index))
}

// ActionNullifier returns the one-time tag of a (kind, target) action.
// Identical attempts always reproduce the same value.
func ActionNullifier(secret *big.Int, kind types.Kind, target *big.Int) *big.Int {
	return mimc.HashUint(types.DomainAction, secret, big.NewInt(int64(kind)), target)
}

// StateNullifier returns the tag that consumes the state with the given
// nonce.
func StateNullifier(secret *big.Int, nonce uint64) *big.Int {
	return mimc.HashUint(types.DomainState, secret, new(big.Int).SetUint64(nonce))
}

// TicketValue returns the public callback ticket with the given index. The
// n-th ticket-issuing interaction of a credential publishes ticket n-1.
func TicketValue(secret *big.Int, index uint64) *big.Int {
	return mimc.HashUint(types.DomainTicket, secret, new(big.Int).SetUint64(index))
}

// EffectLeaf returns the callback bulletin leaf of a ticket slot holding
// the given reputation and ban totals.
func EffectLeaf(ticket *big.Int, reputation, bans int64) *big.Int {
	return mimc.HashUint(types.DomainEffect, ticket, crypto.SignedToFF(reputation), crypto.SignedToFF(bans))
}
