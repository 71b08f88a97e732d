package types

import "fmt"

// Kind identifies a callback, the circuit that proves it and the ledger
// partition its action nullifier belongs to.
type Kind uint8

const (
	KindJoin Kind = iota + 1
	KindPost
	KindPostPseudo
	KindGenPseudo
	KindScan
	KindVote
	KindRep
	KindBanPoll
	KindBan
	KindAuthorship
	KindBadge
)

var kindNames = map[Kind]string{
	KindJoin:       "join",
	KindPost:       "post",
	KindPostPseudo: "post-pseudo",
	KindGenPseudo:  "gen-pseudo",
	KindScan:       "scan",
	KindVote:       "vote",
	KindRep:        "rep",
	KindBanPoll:    "ban-poll",
	KindBan:        "ban",
	KindAuthorship: "authorship",
	KindBadge:      "badge",
}

// Kinds returns every known kind, ordered.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(kindNames))
	for k := KindJoin; k <= KindBadge; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// ParseKind returns the kind with the given name.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown kind %q", ErrValidation, s)
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// AdvancesState reports whether the callback consumes the current state
// and appends a new commitment to the registry.
func (k Kind) AdvancesState() bool {
	return k.Valid() && k != KindJoin && k != KindAuthorship
}

// RequiresMembership reports whether the proof includes a membership
// witness.
func (k Kind) RequiresMembership() bool {
	return k.Valid() && k != KindJoin
}

// RequiresStanding reports whether the credential must hold a non negative
// reputation and no bans to perform the callback.
func (k Kind) RequiresStanding() bool {
	switch k {
	case KindPost, KindPostPseudo, KindVote, KindRep, KindBanPoll, KindBan, KindBadge:
		return true
	}
	return false
}

// HasActionNullifier reports whether the callback is a one-time action
// keyed by a target.
func (k Kind) HasActionNullifier() bool {
	switch k {
	case KindGenPseudo, KindScan, KindAuthorship:
		return false
	}
	return k.Valid()
}

// HasPayload reports whether the callback carries a payload for the
// transport.
func (k Kind) HasPayload() bool {
	switch k {
	case KindJoin, KindGenPseudo, KindScan:
		return false
	}
	return k.Valid()
}

// IssuesTicket reports whether the callback publishes a callback ticket
// that later reputation and ban effects can be addressed to.
func (k Kind) IssuesTicket() bool {
	return k == KindPost || k == KindPostPseudo
}

// RevealsPseudonym reports whether the callback reveals a pseudonym tag.
func (k Kind) RevealsPseudonym() bool {
	return k == KindPostPseudo || k == KindBadge || k == KindAuthorship
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %d", ErrValidation, uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(data []byte) error {
	parsed, err := ParseKind(string(data))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
