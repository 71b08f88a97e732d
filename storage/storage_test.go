package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/wispy/types"
	"go.vocdoni.io/dvote/db/metadb"
)

func TestMessages(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))

	_, err := stg.Message("missing")
	c.Assert(err, qt.ErrorIs, ErrNotFound)

	msg := &Message{
		ID:      "m1",
		Kind:    types.KindPost,
		GroupID: "group",
		Payload: &types.Payload{Type: types.PayloadMessage, GroupID: "group", Content: "hi", Timestamp: 1},
		Ticket:  types.NewInt(99),
	}
	c.Assert(stg.SetMessage(msg), qt.IsNil)
	c.Assert(stg.TransportID("m1"), qt.Equals, "")
	c.Assert(stg.SetTransportID("m1", "1700000000000"), qt.IsNil)
	c.Assert(stg.TransportID("m1"), qt.Equals, "1700000000000")

	got, err := stg.Message("m1")
	c.Assert(err, qt.IsNil)
	c.Assert(got.Ticket.Equal(msg.Ticket), qt.IsTrue)
	c.Assert(got.Payload.Content, qt.Equals, "hi")
	c.Assert(stg.SetTransportID("missing", "x"), qt.ErrorIs, ErrNotFound)
}

func TestPollsAndVotes(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))

	poll := &types.Poll{ID: "p1", Type: types.PollBan, GroupID: "group", Choices: []string{types.ChoiceBan, types.ChoiceKeep}}
	c.Assert(stg.SetPoll(poll), qt.IsNil)
	// a poll whose id extends the first one must not mix its votes
	c.Assert(stg.SetPoll(&types.Poll{ID: "p10", Choices: types.DefaultPollChoices}), qt.IsNil)

	c.Assert(stg.AddVote(&VoteRecord{PollID: "p1", Nullifier: types.NewInt(1), Choice: types.ChoiceBan}), qt.IsNil)
	c.Assert(stg.AddVote(&VoteRecord{PollID: "p1", Nullifier: types.NewInt(2), Choice: types.ChoiceKeep}), qt.IsNil)
	c.Assert(stg.AddVote(&VoteRecord{PollID: "p10", Nullifier: types.NewInt(3), Choice: "yes"}), qt.IsNil)
	// same nullifier again keeps the first record
	c.Assert(stg.AddVote(&VoteRecord{PollID: "p1", Nullifier: types.NewInt(1), Choice: types.ChoiceKeep}), qt.IsNil)

	votes, err := stg.Votes("p1")
	c.Assert(err, qt.IsNil)
	c.Assert(votes, qt.HasLen, 2)
	choices := map[string]int{}
	for _, v := range votes {
		choices[v.Choice]++
	}
	c.Assert(choices, qt.DeepEquals, map[string]int{types.ChoiceBan: 1, types.ChoiceKeep: 1})

	enforced, err := stg.MarkPollEnforced("p1")
	c.Assert(err, qt.IsNil)
	c.Assert(enforced, qt.IsTrue)
	enforced, err = stg.MarkPollEnforced("p1")
	c.Assert(err, qt.IsNil)
	c.Assert(enforced, qt.IsFalse)
	_, err = stg.MarkPollEnforced("nope")
	c.Assert(err, qt.ErrorIs, ErrNotFound)
}

func TestRepSignals(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))

	for i, delta := range []int64{1, 1, -1, 1} {
		c.Assert(stg.AddRepSignal(&RepSignal{Target: "m1", Nullifier: types.NewInt(int64(i + 1)), Delta: delta}), qt.IsNil)
	}
	c.Assert(stg.AddRepSignal(&RepSignal{Target: "m2", Nullifier: types.NewInt(10), Delta: -1}), qt.IsNil)

	targets, err := stg.UnsettledTargets()
	c.Assert(err, qt.IsNil)
	c.Assert(targets, qt.DeepEquals, []string{"m1", "m2"})

	sum, n, err := stg.SettleRepSignals("m1")
	c.Assert(err, qt.IsNil)
	c.Assert(sum, qt.Equals, int64(2))
	c.Assert(n, qt.Equals, 4)

	// nothing left to settle
	sum, n, err = stg.SettleRepSignals("m1")
	c.Assert(err, qt.IsNil)
	c.Assert(sum, qt.Equals, int64(0))
	c.Assert(n, qt.Equals, 0)

	c.Assert(stg.AddRepSignal(&RepSignal{Target: "m1", Nullifier: types.NewInt(5), Delta: -1}), qt.IsNil)
	sum, n, err = stg.SettleRepSignals("m1")
	c.Assert(err, qt.IsNil)
	c.Assert(sum, qt.Equals, int64(-1))
	c.Assert(n, qt.Equals, 1)

	targets, err = stg.UnsettledTargets()
	c.Assert(err, qt.IsNil)
	c.Assert(targets, qt.DeepEquals, []string{"m2"})
}

func TestSlotsAndBadges(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))

	for pos := uint64(0); pos < 4; pos++ {
		c.Assert(stg.SetSlot(&types.TicketSlot{
			Position: pos, Ticket: types.NewInt(int64(100 + pos)), Leaf: types.NewInt(int64(pos + 1)),
			MessageID: fmt.Sprintf("m%d", pos), UpdatedAt: time.Unix(1, 0),
		}), qt.IsNil)
	}
	all, err := stg.Slots(0, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(all, qt.HasLen, 4)
	page, err := stg.Slots(1, 2)
	c.Assert(err, qt.IsNil)
	c.Assert(page, qt.HasLen, 2)
	c.Assert(page[0].Position, qt.Equals, uint64(1))
	c.Assert(page[1].Position, qt.Equals, uint64(2))

	// storing a slot again replaces its totals
	c.Assert(stg.SetSlot(&types.TicketSlot{
		Position: 3, Ticket: types.NewInt(103), Reputation: -2, Bans: 1, Leaf: types.NewInt(9), MessageID: "m3",
	}), qt.IsNil)
	mine, err := stg.SlotByTicket(types.NewInt(103))
	c.Assert(err, qt.IsNil)
	c.Assert(mine.Position, qt.Equals, uint64(3))
	c.Assert(mine.Reputation, qt.Equals, int64(-2))
	c.Assert(mine.Bans, qt.Equals, int64(1))
	c.Assert(mine.MessageID, qt.Equals, "m3")
	all, err = stg.Slots(0, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(all, qt.HasLen, 4)

	_, err = stg.SlotByTicket(types.NewInt(7))
	c.Assert(err, qt.ErrorIs, ErrNotFound)
	_, err = stg.Slot(9)
	c.Assert(err, qt.ErrorIs, ErrNotFound)

	c.Assert(stg.AddBadge(&types.Badge{BadgeID: "gold", PseudonymTag: types.NewInt(7)}), qt.IsNil)
	c.Assert(stg.AddBadge(&types.Badge{BadgeID: "gold", PseudonymTag: types.NewInt(8)}), qt.IsNil)
	badges, err := stg.Badges("gold")
	c.Assert(err, qt.IsNil)
	c.Assert(badges, qt.HasLen, 2)
	badges, err = stg.Badges("silver")
	c.Assert(err, qt.IsNil)
	c.Assert(badges, qt.HasLen, 0)
}

func TestOutbox(t *testing.T) {
	c := qt.New(t)
	database := metadb.NewTest(t)
	stg := New(database)

	_, _, err := stg.NextOutbox()
	c.Assert(err, qt.ErrorIs, ErrNoMoreElements)

	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		_, err := stg.PushOutbox(&OutboxItem{MessageID: id, GroupID: "group", Content: id, CreatedAt: base.Add(time.Duration(i) * time.Millisecond)}, false)
		c.Assert(err, qt.IsNil)
	}
	c.Assert(stg.OutboxSize(), qt.Equals, 3)

	first, k1, err := stg.NextOutbox()
	c.Assert(err, qt.IsNil)
	c.Assert(first.MessageID, qt.Equals, "a")
	second, k2, err := stg.NextOutbox()
	c.Assert(err, qt.IsNil)
	c.Assert(second.MessageID, qt.Equals, "b")

	c.Assert(stg.MarkOutboxDone(k1), qt.IsNil)
	c.Assert(stg.OutboxSize(), qt.Equals, 2)

	// a failed attempt puts the item back at its position
	c.Assert(stg.ReleaseOutbox(k2, errors.New("unreachable"), 0), qt.IsNil)
	again, k2, err := stg.NextOutbox()
	c.Assert(err, qt.IsNil)
	c.Assert(again.MessageID, qt.Equals, "b")
	c.Assert(again.Attempts, qt.Equals, 1)
	c.Assert(again.LastError, qt.Equals, "unreachable")

	// reaching the attempts limit drops it
	c.Assert(stg.ReleaseOutbox(k2, errors.New("unreachable"), 2), qt.IsNil)
	c.Assert(stg.OutboxSize(), qt.Equals, 1)

	third, _, err := stg.NextOutbox()
	c.Assert(err, qt.IsNil)
	c.Assert(third.MessageID, qt.Equals, "c")
	_, _, err = stg.NextOutbox()
	c.Assert(err, qt.ErrorIs, ErrNoMoreElements)

	// reserved on push, handed out only once released
	k4, err := stg.PushOutbox(&OutboxItem{MessageID: "d", Content: "d"}, true)
	c.Assert(err, qt.IsNil)
	_, _, err = stg.NextOutbox()
	c.Assert(err, qt.ErrorIs, ErrNoMoreElements)
	c.Assert(stg.ReleaseOutbox(k4, nil, 0), qt.IsNil)
	fourth, k4, err := stg.NextOutbox()
	c.Assert(err, qt.IsNil)
	c.Assert(fourth.MessageID, qt.Equals, "d")
	c.Assert(stg.MarkOutboxDone(k4), qt.IsNil)

	// reopening releases the reservation of the undelivered item
	restarted := New(database)
	item, _, err := restarted.NextOutbox()
	c.Assert(err, qt.IsNil)
	c.Assert(item.MessageID, qt.Equals, "c")
}
