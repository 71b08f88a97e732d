package credential

import (
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
	"github.com/vocdoni/wispy/crypto/hash/poseidon"
	"github.com/vocdoni/wispy/types"
)

var payloadEncMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// PayloadDigest returns the field element binding a payload to a proof. The
// payload is encoded as deterministic CBOR, so the relay recomputes the same
// digest.
func PayloadDigest(p *types.Payload) (*big.Int, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: missing payload", types.ErrValidation)
	}
	data, err := payloadEncMode.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return poseidon.HashBytes(data)
}

// payloadTypes lists the payload types each kind accepts.
var payloadTypes = map[types.Kind][]types.PayloadType{
	types.KindPost:       {types.PayloadMessage, types.PayloadReply, types.PayloadReaction, types.PayloadPoll},
	types.KindPostPseudo: {types.PayloadMessage, types.PayloadReply},
	types.KindVote:       {types.PayloadVote},
	types.KindRep:        {types.PayloadRep},
	types.KindBanPoll:    {types.PayloadBanPoll},
	types.KindBan:        {types.PayloadBan},
	types.KindAuthorship: {types.PayloadAuthorship},
	types.KindBadge:      {types.PayloadBadge},
}

// CheckPayload validates the shape of a payload for a kind.
func CheckPayload(kind types.Kind, p *types.Payload) error {
	if !kind.HasPayload() {
		if p != nil {
			return invalid("%s does not carry a payload", kind)
		}
		return nil
	}
	if p == nil {
		return invalid("%s requires a payload", kind)
	}
	accepted := false
	for _, t := range payloadTypes[kind] {
		accepted = accepted || t == p.Type
	}
	if !accepted {
		return invalid("payload type %q not accepted by %s", p.Type, kind)
	}
	if p.Type != types.PayloadRep && p.Delta != 0 {
		return invalid("only reputation payloads carry a delta")
	}
	switch p.Type {
	case types.PayloadMessage, types.PayloadPoll:
		if p.Content == "" || p.Timestamp <= 0 {
			return invalid("%s requires content and timestamp", p.Type)
		}
	case types.PayloadReply:
		if p.Content == "" || p.ReplyTo == "" || p.Timestamp <= 0 {
			return invalid("reply requires content, target and timestamp")
		}
	case types.PayloadReaction:
		if p.ReplyTo == "" || p.Emoji == "" {
			return invalid("reaction requires target and emoji")
		}
	case types.PayloadVote:
		if p.PollID == "" || p.Choice == "" {
			return invalid("vote requires poll and choice")
		}
	case types.PayloadRep:
		if p.ReplyTo == "" || (p.Delta != 1 && p.Delta != -1) {
			return invalid("rep requires target and a +1/-1 delta")
		}
	case types.PayloadBanPoll:
		if p.ReplyTo == "" || p.Reason == "" {
			return invalid("ban poll requires target and reason")
		}
	case types.PayloadBan:
		if p.PollID == "" {
			return invalid("ban requires a ban poll")
		}
	case types.PayloadBadge:
		if p.BadgeID == "" {
			return invalid("badge requires a badge id")
		}
	}
	return nil
}

// Target returns the field element an action nullifier is keyed by:
// message and timestamp for posts, the target message and emoji for
// reactions, the poll for votes and bans, the target message for
// reputation signals and ban polls, the badge for badges and the group for
// joins.
func Target(kind types.Kind, groupID string, p *types.Payload) (*big.Int, error) {
	switch kind {
	case types.KindJoin:
		return poseidon.HashString(groupID)
	case types.KindPost, types.KindPostPseudo:
		return postTarget(p)
	case types.KindVote, types.KindBan:
		return poseidon.HashString(p.PollID)
	case types.KindRep, types.KindBanPoll:
		return poseidon.HashString(p.ReplyTo)
	case types.KindBadge:
		return poseidon.HashString(p.BadgeID)
	}
	return new(big.Int), nil
}

func postTarget(p *types.Payload) (*big.Int, error) {
	digests := make([]*big.Int, 0, 4)
	for _, s := range []string{string(p.Type), p.ReplyTo, p.Content, p.Emoji} {
		d, err := poseidon.HashString(s)
		if err != nil {
			return nil, err
		}
		digests = append(digests, d)
	}
	if p.Type == types.PayloadReaction {
		// one reaction per emoji and target message, whatever the time
		return poseidon.MultiPoseidon(digests...)
	}
	return poseidon.MultiPoseidon(append(digests, big.NewInt(p.Timestamp))...)
}

// NullifierContext returns the ledger context of the action nullifier of
// a kind: the poll for votes and bans, the target message for reputation
// signals, none otherwise.
func NullifierContext(kind types.Kind, p *types.Payload) string {
	switch kind {
	case types.KindVote, types.KindBan:
		return p.PollID
	case types.KindRep:
		return p.ReplyTo
	}
	return ""
}

// Params are the callback parameters that are not carried by the payload.
type Params struct {
	PseudoIndex  uint64
	PseudoIndex2 uint64
	Threshold    int64
	Folds        []*Effect
}

// NewCallback builds the callback of an interaction from its payload,
// deriving the target and the payload digest the relay will recompute.
func NewCallback(kind types.Kind, groupID string, p *types.Payload, params Params) (*Callback, error) {
	if !kind.Valid() {
		return nil, invalid("unknown callback kind")
	}
	if err := CheckPayload(kind, p); err != nil {
		return nil, err
	}
	if p != nil && p.GroupID != groupID {
		return nil, invalid("payload addressed to group %q", p.GroupID)
	}
	cb := &Callback{
		Kind:         kind,
		PseudoIndex:  params.PseudoIndex,
		PseudoIndex2: params.PseudoIndex2,
		Threshold:    params.Threshold,
		Folds:        params.Folds,
	}
	if kind.HasActionNullifier() {
		target, err := Target(kind, groupID, p)
		if err != nil {
			return nil, err
		}
		cb.Target = target
	}
	if kind.HasPayload() {
		digest, err := PayloadDigest(p)
		if err != nil {
			return nil, err
		}
		cb.Payload = digest
		cb.Delta = p.Delta
	}
	return cb, nil
}
