package tally

import (
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/wispy/storage"
	"github.com/vocdoni/wispy/types"
	"go.vocdoni.io/dvote/db/metadb"
)

func newEngine(t *testing.T, policy BanPolicy) *Engine {
	return New(storage.New(metadb.NewTest(t)), policy, []*types.BadgeDefinition{
		{ID: "silver", MinReputation: 2},
		{ID: "gold", MinReputation: 5},
	})
}

func TestCountVotes(t *testing.T) {
	c := qt.New(t)
	e := newEngine(t, nil)

	_, err := e.CountVotes("nope")
	c.Assert(err, qt.ErrorIs, types.ErrNotFound)

	c.Assert(e.OpenPoll(&types.Poll{ID: "p", Question: "Pizza on friday?"}), qt.IsNil)
	count, err := e.CountVotes("p")
	c.Assert(err, qt.IsNil)
	c.Assert(count.Total, qt.Equals, uint64(0))
	c.Assert(count.Counts, qt.DeepEquals, map[string]uint64{"yes": 0, "no": 0})
	c.Assert(strings.HasSuffix(count.Summary, "No votes yet."), qt.IsTrue)

	c.Assert(e.CheckVote("p", "yes"), qt.IsNil)
	c.Assert(e.CheckVote("p", "maybe"), qt.ErrorIs, types.ErrPolicy)

	c.Assert(e.RecordVote("p", types.NewInt(1), "yes"), qt.IsNil)
	c.Assert(e.RecordVote("p", types.NewInt(2), "no"), qt.IsNil)
	count, err = e.CountVotes("p")
	c.Assert(err, qt.IsNil)
	c.Assert(count.Total, qt.Equals, uint64(2))
	c.Assert(strings.HasSuffix(count.Summary, "It's a tie!"), qt.IsTrue)

	c.Assert(e.RecordVote("p", types.NewInt(3), "yes"), qt.IsNil)
	count, err = e.CountVotes("p")
	c.Assert(err, qt.IsNil)
	c.Assert(count.Counts["yes"], qt.Equals, uint64(2))
	c.Assert(count.Counts["no"], qt.Equals, uint64(1))
	c.Assert(Percentage(count, "yes") > 66.6 && Percentage(count, "yes") < 66.7, qt.IsTrue)
	c.Assert(count.Summary, qt.Contains, "yes: 2 (66.7%)")
	c.Assert(count.Summary, qt.Contains, "Total votes: 3")
	c.Assert(strings.HasSuffix(count.Summary, "Majority voted yes."), qt.IsTrue)
}

func TestBanPolicies(t *testing.T) {
	c := qt.New(t)
	count := func(ban, keep uint64) *types.VoteCount {
		return &types.VoteCount{Counts: map[string]uint64{types.ChoiceBan: ban, types.ChoiceKeep: keep}, Total: ban + keep}
	}
	c.Assert(Majority{}.Enforce(count(0, 0)), qt.IsFalse)
	c.Assert(Majority{}.Enforce(count(2, 2)), qt.IsFalse)
	c.Assert(Majority{}.Enforce(count(1, 0)), qt.IsTrue)
	c.Assert(Quorum{N: 3}.Enforce(count(2, 0)), qt.IsFalse)
	c.Assert(Quorum{N: 3}.Enforce(count(3, 1)), qt.IsTrue)
	c.Assert(Quorum{N: 3}.Enforce(count(3, 3)), qt.IsFalse)

	p, err := ParseBanPolicy("quorum:3")
	c.Assert(err, qt.IsNil)
	c.Assert(p, qt.Equals, BanPolicy(Quorum{N: 3}))
	p, err = ParseBanPolicy("")
	c.Assert(err, qt.IsNil)
	c.Assert(p.String(), qt.Equals, "majority")
	_, err = ParseBanPolicy("quorum:0")
	c.Assert(err, qt.ErrorIs, types.ErrValidation)
	_, err = ParseBanPolicy("unanimity")
	c.Assert(err, qt.ErrorIs, types.ErrValidation)
}

func TestBanPoll(t *testing.T) {
	c := qt.New(t)
	e := newEngine(t, Quorum{N: 2})

	c.Assert(e.OpenPoll(&types.Poll{ID: "regular"}), qt.IsNil)
	_, _, err := e.CheckBan("regular")
	c.Assert(err, qt.ErrorIs, types.ErrPolicy)

	// choices of ban polls are fixed
	c.Assert(e.OpenPoll(&types.Poll{ID: "b", Type: types.PollBan, Reason: "spam", Target: "m1", Choices: []string{"x"}}), qt.IsNil)
	poll, err := e.Poll("b")
	c.Assert(err, qt.IsNil)
	c.Assert(poll.Choices, qt.DeepEquals, []string{types.ChoiceBan, types.ChoiceKeep})

	c.Assert(e.RecordVote("b", types.NewInt(1), types.ChoiceBan), qt.IsNil)
	_, _, err = e.CheckBan("b")
	c.Assert(err, qt.ErrorIs, types.ErrPolicy)

	c.Assert(e.RecordVote("b", types.NewInt(2), types.ChoiceBan), qt.IsNil)
	c.Assert(e.RecordVote("b", types.NewInt(3), types.ChoiceKeep), qt.IsNil)
	p, count, err := e.CheckBan("b")
	c.Assert(err, qt.IsNil)
	c.Assert(p.Target, qt.Equals, "m1")
	c.Assert(count.Summary, qt.Contains, "Majority voted to ban.")

	ok, err := e.MarkEnforced("b")
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	_, _, err = e.CheckBan("b")
	c.Assert(err, qt.ErrorIs, types.ErrPolicy)
	c.Assert(e.CheckVote("b", types.ChoiceKeep), qt.ErrorIs, types.ErrPolicy)
}

func TestReputationAndTickets(t *testing.T) {
	c := qt.New(t)
	stg := storage.New(metadb.NewTest(t))
	e := New(stg, nil, nil)

	_, err := e.TicketOf("m1")
	c.Assert(err, qt.ErrorIs, types.ErrNotFound)
	c.Assert(stg.SetMessage(&storage.Message{ID: "m1", Kind: types.KindPost, Ticket: types.NewInt(42)}), qt.IsNil)
	c.Assert(stg.SetMessage(&storage.Message{ID: "v1", Kind: types.KindVote}), qt.IsNil)
	ticket, err := e.TicketOf("m1")
	c.Assert(err, qt.IsNil)
	c.Assert(ticket.Equal(types.NewInt(42)), qt.IsTrue)
	_, err = e.TicketOf("v1")
	c.Assert(err, qt.ErrorIs, types.ErrPolicy)

	c.Assert(e.RecordSignal("m1", types.NewInt(1), 1), qt.IsNil)
	c.Assert(e.RecordSignal("m1", types.NewInt(2), 1), qt.IsNil)
	c.Assert(e.RecordSignal("m1", types.NewInt(3), -1), qt.IsNil)
	c.Assert(e.RecordSignal("m1", types.NewInt(4), 2), qt.ErrorIs, types.ErrValidation)
	sum, err := e.Unsettled("m1")
	c.Assert(err, qt.IsNil)
	c.Assert(sum, qt.Equals, int64(1))

	sum, n, err := e.Settle("m1")
	c.Assert(err, qt.IsNil)
	c.Assert(sum, qt.Equals, int64(1))
	c.Assert(n, qt.Equals, 3)
	sum, err = e.Unsettled("m1")
	c.Assert(err, qt.IsNil)
	c.Assert(sum, qt.Equals, int64(0))
}

func TestBadges(t *testing.T) {
	c := qt.New(t)
	e := newEngine(t, nil)

	_, err := e.Badge("bronze")
	c.Assert(err, qt.ErrorIs, types.ErrPolicy)
	b, err := e.Badge("gold")
	c.Assert(err, qt.IsNil)
	c.Assert(b.MinReputation, qt.Equals, int64(5))
	c.Assert(e.Badges()[0].ID, qt.Equals, "gold")

	c.Assert(e.RecordBadge("gold", types.NewInt(77)), qt.IsNil)
	claims, err := e.Claims("gold")
	c.Assert(err, qt.IsNil)
	c.Assert(claims, qt.HasLen, 1)
	c.Assert(claims[0].PseudonymTag.Equal(types.NewInt(77)), qt.IsTrue)
}
