package tally

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vocdoni/wispy/types"
)

// BanPolicy decides, from the tally of a ban poll, whether the ban can be
// enforced. It is evaluated on demand when a ban is requested.
type BanPolicy interface {
	Enforce(count *types.VoteCount) bool
	String() string
}

// Majority enforces a ban when more members voted to ban than to keep.
type Majority struct{}

// Enforce implements BanPolicy.
func (Majority) Enforce(count *types.VoteCount) bool {
	ban, keep := count.Counts[types.ChoiceBan], count.Counts[types.ChoiceKeep]
	return ban > 0 && ban > keep
}

func (Majority) String() string { return "majority" }

// Quorum enforces a ban when at least N members voted to ban and they are
// a majority.
type Quorum struct {
	N uint64
}

// Enforce implements BanPolicy.
func (q Quorum) Enforce(count *types.VoteCount) bool {
	ban := count.Counts[types.ChoiceBan]
	return ban >= q.N && Majority{}.Enforce(count)
}

func (q Quorum) String() string { return fmt.Sprintf("quorum:%d", q.N) }

// ParseBanPolicy parses "majority" or "quorum:N".
func ParseBanPolicy(s string) (BanPolicy, error) {
	name, arg, hasArg := strings.Cut(strings.TrimSpace(strings.ToLower(s)), ":")
	switch name {
	case "", "majority":
		if hasArg {
			break
		}
		return Majority{}, nil
	case "quorum":
		n, err := strconv.ParseUint(arg, 10, 64)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("%w: invalid quorum %q", types.ErrValidation, arg)
		}
		return Quorum{N: n}, nil
	}
	return nil, fmt.Errorf("%w: unknown ban policy %q", types.ErrValidation, s)
}
