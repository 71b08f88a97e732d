package types

import (
	"math/big"
	"time"
)

// PublicInputs is the public input vector shared by every interaction
// circuit. Inputs that a kind does not use are zero.
type PublicInputs struct {
	Kind            Kind    `json:"kind"`
	Root            *BigInt `json:"root"`
	StateNullifier  *BigInt `json:"stateNullifier"`
	NewCommitment   *BigInt `json:"newCommitment"`
	ActionNullifier *BigInt `json:"actionNullifier"`
	Target          *BigInt `json:"target"`
	Payload         *BigInt `json:"payload"`
	Tag             *BigInt `json:"tag"`
	Tag2            *BigInt `json:"tag2"`
	Ticket          *BigInt `json:"ticket"`
	Delta           *BigInt `json:"delta"`
	Threshold       *BigInt `json:"threshold"`
	EffectRoot      *BigInt `json:"effectRoot"`
}

// NewPublicInputs returns the public inputs of the given kind with every
// value set to zero.
func NewPublicInputs(kind Kind) *PublicInputs {
	return &PublicInputs{
		Kind:            kind,
		Root:            new(BigInt),
		StateNullifier:  new(BigInt),
		NewCommitment:   new(BigInt),
		ActionNullifier: new(BigInt),
		Target:          new(BigInt),
		Payload:         new(BigInt),
		Tag:             new(BigInt),
		Tag2:            new(BigInt),
		Ticket:          new(BigInt),
		Delta:           new(BigInt),
		Threshold:       new(BigInt),
		EffectRoot:      new(BigInt),
	}
}

// Values returns the public inputs in circuit order.
func (p *PublicInputs) Values() []*big.Int {
	return []*big.Int{
		big.NewInt(int64(p.Kind)),
		p.Root.MathBigInt(),
		p.StateNullifier.MathBigInt(),
		p.NewCommitment.MathBigInt(),
		p.ActionNullifier.MathBigInt(),
		p.Target.MathBigInt(),
		p.Payload.MathBigInt(),
		p.Tag.MathBigInt(),
		p.Tag2.MathBigInt(),
		p.Ticket.MathBigInt(),
		p.Delta.MathBigInt(),
		p.Threshold.MathBigInt(),
		p.EffectRoot.MathBigInt(),
	}
}

// PayloadType distinguishes the payloads relayed to the group.
type PayloadType string

const (
	PayloadMessage    PayloadType = "message"
	PayloadReply      PayloadType = "reply"
	PayloadReaction   PayloadType = "reaction"
	PayloadPoll       PayloadType = "poll"
	PayloadVote       PayloadType = "vote"
	PayloadRep        PayloadType = "rep"
	PayloadBanPoll    PayloadType = "ban-poll"
	PayloadBan        PayloadType = "ban"
	PayloadAuthorship PayloadType = "authorship"
	PayloadBadge      PayloadType = "badge"
)

// Payload is the content an interaction asks the relay to act upon and
// forward. Its digest is bound to the proof.
type Payload struct {
	Type      PayloadType `json:"type"                cbor:"0,keyasint"`
	GroupID   string      `json:"groupId"             cbor:"1,keyasint"`
	Content   string      `json:"content,omitempty"   cbor:"2,keyasint,omitempty"`
	ReplyTo   string      `json:"replyTo,omitempty"   cbor:"3,keyasint,omitempty"`
	Emoji     string      `json:"emoji,omitempty"     cbor:"4,keyasint,omitempty"`
	PollID    string      `json:"pollId,omitempty"    cbor:"5,keyasint,omitempty"`
	Choice    string      `json:"choice,omitempty"    cbor:"6,keyasint,omitempty"`
	Reason    string      `json:"reason,omitempty"    cbor:"7,keyasint,omitempty"`
	BadgeID   string      `json:"badgeId,omitempty"   cbor:"8,keyasint,omitempty"`
	Delta     int64       `json:"delta,omitempty"     cbor:"9,keyasint,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty" cbor:"10,keyasint,omitempty"`
}

// InteractionProof is what a member submits to the relay.
type InteractionProof struct {
	Inputs  *PublicInputs `json:"publicInputs"`
	Proof   HexBytes      `json:"proof"`
	Payload *Payload      `json:"payload,omitempty"`
}

// Kind returns the kind of the proof.
func (p *InteractionProof) Kind() Kind {
	if p == nil || p.Inputs == nil {
		return 0
	}
	return p.Inputs.Kind
}

// MerkleWitness proves a leaf is included in a registry root.
type MerkleWitness struct {
	Leaf     *BigInt   `json:"leaf"     cbor:"0,keyasint"`
	Index    uint64    `json:"index"    cbor:"1,keyasint"`
	Siblings []*BigInt `json:"siblings" cbor:"2,keyasint"`
	Root     *BigInt   `json:"root"     cbor:"3,keyasint"`
	Version  uint64    `json:"version"  cbor:"4,keyasint"`
}

// Nullifier is a one-time tag inside a ledger partition. The partition is
// the scope (a kind name or "state") plus an optional context.
type Nullifier struct {
	Scope   string  `json:"scope"`
	Context string  `json:"context,omitempty"`
	Tag     *BigInt `json:"tag"`
}

// Partition returns the ledger partition name of the nullifier.
func (n Nullifier) Partition() string {
	if n.Context == "" {
		return n.Scope
	}
	return n.Scope + "/" + n.Context
}

// ScopeState is the ledger scope of state nullifiers.
const ScopeState = "state"

// TicketSlot is a position of the callback bulletin. It is opened when the
// message a callback ticket was issued for is accepted, and accumulates
// every reputation and ban effect addressed to that ticket.
type TicketSlot struct {
	Position   uint64    `json:"position"   cbor:"0,keyasint"`
	Ticket     *BigInt   `json:"ticket"     cbor:"1,keyasint"`
	Reputation int64     `json:"reputation" cbor:"2,keyasint"`
	Bans       int64     `json:"bans"       cbor:"3,keyasint"`
	Leaf       *BigInt   `json:"leaf"       cbor:"4,keyasint"`
	MessageID  string    `json:"messageId"  cbor:"5,keyasint"`
	UpdatedAt  time.Time `json:"updatedAt"  cbor:"6,keyasint"`
}

// SlotWitness is a bulletin slot with its inclusion witness.
type SlotWitness struct {
	Slot    *TicketSlot    `json:"slot"`
	Witness *MerkleWitness `json:"witness"`
}

// Ack is the relay answer to an accepted interaction.
type Ack struct {
	Kind      Kind           `json:"kind"`
	Witness   *MerkleWitness `json:"witness,omitempty"`
	MessageID string         `json:"messageId,omitempty"`
	PollID    string         `json:"pollId,omitempty"`
	Warning   string         `json:"warning,omitempty"`
}

// PollType distinguishes regular polls from ban polls.
type PollType string

const (
	PollRegular PollType = "poll"
	PollBan     PollType = "ban"
)

// Poll accumulates vote records keyed by nullifier.
type Poll struct {
	ID              string    `json:"id"                    cbor:"0,keyasint"`
	Type            PollType  `json:"type"                  cbor:"1,keyasint"`
	GroupID         string    `json:"groupId"               cbor:"2,keyasint"`
	AnchorMessageID string    `json:"anchorMessageId"       cbor:"3,keyasint"`
	Question        string    `json:"question,omitempty"    cbor:"4,keyasint,omitempty"`
	Reason          string    `json:"reason,omitempty"      cbor:"5,keyasint,omitempty"`
	Target          string    `json:"target,omitempty"      cbor:"6,keyasint,omitempty"`
	Choices         []string  `json:"choices"               cbor:"7,keyasint"`
	OpenedAt        time.Time `json:"openedAt"              cbor:"8,keyasint"`
	Enforced        bool      `json:"enforced,omitempty"    cbor:"9,keyasint,omitempty"`
}

// HasChoice reports whether choice is a valid option of the poll.
func (p *Poll) HasChoice(choice string) bool {
	for _, c := range p.Choices {
		if c == choice {
			return true
		}
	}
	return false
}

// VoteCount is the tally of a poll.
type VoteCount struct {
	PollID  string            `json:"pollId"`
	Counts  map[string]uint64 `json:"counts"`
	Total   uint64            `json:"total"`
	Summary string            `json:"summary"`
}

// BadgeDefinition is a badge members can claim once their reputation
// reaches MinReputation.
type BadgeDefinition struct {
	ID            string `json:"id"`
	MinReputation int64  `json:"minReputation"`
}

// Badge is a claimed badge bound to a pseudonym.
type Badge struct {
	BadgeID      string    `json:"badgeId"      cbor:"0,keyasint"`
	PseudonymTag *BigInt   `json:"pseudonymTag" cbor:"1,keyasint"`
	ClaimedAt    time.Time `json:"claimedAt"    cbor:"2,keyasint"`
}

// RelayInfo describes the group served by a relay.
type RelayInfo struct {
	GroupID      string             `json:"groupId"`
	RootWindow   int                `json:"rootWindow"`
	TreeDepth    int                `json:"treeDepth"`
	Members      uint64             `json:"members"`
	Root         *BigInt            `json:"root"`
	Version      uint64             `json:"version"`
	BulletinRoot *BigInt            `json:"bulletinRoot"`
	Badges       []*BadgeDefinition `json:"badges"`
	Backend      string             `json:"backend"`
}

// CircuitManifest describes the proving artifacts of an interaction circuit,
// addressed by the sha256 hash of their content.
type CircuitManifest struct {
	Kind             Kind     `json:"kind"`
	Backend          string   `json:"backend"`
	Constraints      int      `json:"constraints"`
	ProvingKeyHash   HexBytes `json:"provingKeyHash"`
	VerifyingKeyHash HexBytes `json:"verifyingKeyHash"`
}
