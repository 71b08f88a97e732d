package storage

import (
	"time"

	"github.com/vocdoni/wispy/types"
)

// Message is an accepted interaction that was (or will be) relayed to the
// group. Its ID is assigned by the relay on acceptance; TransportID is the
// identifier returned by the transport once delivered.
type Message struct {
	ID          string         `json:"id"                    cbor:"0,keyasint"`
	Kind        types.Kind     `json:"kind"                  cbor:"1,keyasint"`
	GroupID     string         `json:"groupId"               cbor:"2,keyasint"`
	Payload     *types.Payload `json:"payload"               cbor:"3,keyasint"`
	Ticket      *types.BigInt  `json:"ticket,omitempty"      cbor:"4,keyasint,omitempty"`
	Pseudonym   *types.BigInt  `json:"pseudonym,omitempty"   cbor:"5,keyasint,omitempty"`
	Pseudonym2  *types.BigInt  `json:"pseudonym2,omitempty"  cbor:"6,keyasint,omitempty"`
	TransportID string         `json:"transportId,omitempty" cbor:"7,keyasint,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"             cbor:"8,keyasint"`
}

// VoteRecord is an accepted vote. Records are keyed by their nullifier, so a
// poll holds at most one record per member.
type VoteRecord struct {
	PollID    string        `json:"pollId"    cbor:"0,keyasint"`
	Nullifier *types.BigInt `json:"nullifier" cbor:"1,keyasint"`
	Choice    string        `json:"choice"    cbor:"2,keyasint"`
	CreatedAt time.Time     `json:"createdAt" cbor:"3,keyasint"`
}

// RepSignal is an accepted reputation signal on a target message.
type RepSignal struct {
	Target    string        `json:"target"    cbor:"0,keyasint"`
	Nullifier *types.BigInt `json:"nullifier" cbor:"1,keyasint"`
	Delta     int64         `json:"delta"     cbor:"2,keyasint"`
	Settled   bool          `json:"settled"   cbor:"3,keyasint"`
	CreatedAt time.Time     `json:"createdAt" cbor:"4,keyasint"`
}

// OutboxItem is a payload waiting to be delivered to the transport.
type OutboxItem struct {
	MessageID string            `json:"messageId"           cbor:"0,keyasint"`
	GroupID   string            `json:"groupId"             cbor:"1,keyasint"`
	Content   string            `json:"content"             cbor:"2,keyasint"`
	Metadata  map[string]string `json:"metadata,omitempty"  cbor:"3,keyasint,omitempty"`
	Attempts  int               `json:"attempts"            cbor:"4,keyasint"`
	LastError string            `json:"lastError,omitempty" cbor:"5,keyasint,omitempty"`
	CreatedAt time.Time         `json:"createdAt"           cbor:"6,keyasint"`
}
