package credential

import (
	"fmt"
	"math/big"

	"github.com/vocdoni/wispy/types"
)

// Pseudonym is a stable, unlinkable public identifier derived from the
// credential secret. Only an authorship proof links two of them.
type Pseudonym struct {
	Index uint64        `json:"index" cbor:"0,keyasint"`
	Tag   *types.BigInt `json:"tag"   cbor:"1,keyasint"`
}

// NewPseudonym derives the pseudonym with the given index.
func NewPseudonym(secret *big.Int, index uint64) *Pseudonym {
	return &Pseudonym{Index: index, Tag: types.FromBig(PseudonymTag(secret, index))}
}

var (
	handleAdjectives = []string{
		"amber", "brisk", "calm", "dusky", "eager", "fuzzy", "gentle", "hazy",
		"icy", "jolly", "keen", "lunar", "mellow", "nimble", "opal", "quiet",
	}
	handleNouns = []string{
		"otter", "heron", "lynx", "marten", "finch", "badger", "ibis", "koala",
		"newt", "osprey", "panda", "quail", "raven", "stoat", "tapir", "wren",
	}
)

// Handle returns a human friendly name derived from a public tag, used to
// display pseudonymous authors. Equal tags always produce equal handles.
func Handle(tag *types.BigInt) string {
	b := tag.Bytes()
	return fmt.Sprintf("%s-%s-%02x%02x",
		handleAdjectives[b[31]&0x0f], handleNouns[b[30]&0x0f], b[29], b[28])
}

// Handle returns the display name of the pseudonym.
func (p *Pseudonym) Handle() string {
	return Handle(p.Tag)
}

// Ticket is a callback ticket issued by a post-like interaction. Its
// bulletin slot collects the effects addressed to Value, and every scan
// pass folds it by proving knowledge of Index and the secret.
type Ticket struct {
	Index     uint64        `json:"index"               cbor:"0,keyasint"`
	Value     *types.BigInt `json:"value"               cbor:"1,keyasint"`
	MessageID string        `json:"messageId,omitempty" cbor:"2,keyasint,omitempty"`
}
