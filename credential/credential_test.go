package credential

import (
	"math/big"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/wispy/types"
)

const testGroup = "group.credential"

func testSecret() *big.Int {
	return big.NewInt(0x5eed)
}

func message(c *qt.C, content string, ts int64) *Callback {
	cb, err := NewCallback(types.KindPost, testGroup, &types.Payload{
		Type: types.PayloadMessage, GroupID: testGroup, Content: content, Timestamp: ts,
	}, Params{})
	c.Assert(err, qt.IsNil)
	return cb
}

func TestApplyAdvances(t *testing.T) {
	c := qt.New(t)
	state := NewState(testSecret())

	join, err := Apply(state, &Callback{Kind: types.KindJoin, Target: big.NewInt(1)})
	c.Assert(err, qt.IsNil)
	c.Assert(join.New.Commitment().Cmp(state.Commitment()), qt.Equals, 0)
	c.Assert(join.Inputs.StateNullifier.IsZero(), qt.IsTrue)

	gen, err := Apply(join.New, &Callback{Kind: types.KindGenPseudo})
	c.Assert(err, qt.IsNil)
	c.Assert(gen.New.Pseudonyms, qt.Equals, uint64(1))
	c.Assert(gen.New.Nonce, qt.Equals, uint64(1))
	c.Assert(gen.Pseudonym.Index, qt.Equals, uint64(0))
	c.Assert(gen.Inputs.StateNullifier.MathBigInt().Cmp(StateNullifier(testSecret(), 0)), qt.Equals, 0)
	// the input state is left untouched
	c.Assert(join.New.Pseudonyms, qt.Equals, uint64(0))

	post, err := Apply(gen.New, message(c, "hi", 100))
	c.Assert(err, qt.IsNil)
	c.Assert(post.Ticket, qt.IsNotNil)
	c.Assert(post.Inputs.Ticket.Equal(post.Ticket.Value), qt.IsTrue)
	c.Assert(post.New.Nonce, qt.Equals, uint64(2))
	c.Assert(post.Inputs.NewCommitment.MathBigInt().Cmp(post.New.Commitment()), qt.Equals, 0)

	// same message at another time is another action
	again, err := Apply(gen.New, message(c, "hi", 101))
	c.Assert(err, qt.IsNil)
	c.Assert(again.Inputs.ActionNullifier.Equal(post.Inputs.ActionNullifier), qt.IsFalse)

	auth, err := Apply(gen.New, &Callback{
		Kind: types.KindAuthorship, Payload: big.NewInt(7),
	})
	c.Assert(err, qt.IsNil)
	c.Assert(auth.New, qt.IsNil)
	c.Assert(auth.Inputs.Tag.Equal(auth.Inputs.Tag2), qt.IsTrue)
}

func TestApplyRejects(t *testing.T) {
	c := qt.New(t)
	active := &State{Secret: types.FromBig(testSecret()), Pseudonyms: 1, Nonce: 3}
	before := active.Commitment()

	for name, cb := range map[string]*Callback{
		"unknown kind":       {Kind: types.Kind(99)},
		"pseudonym too high": {Kind: types.KindPostPseudo, Target: big.NewInt(1), Payload: big.NewInt(1), PseudoIndex: 1},
		"rep delta":          {Kind: types.KindRep, Target: big.NewInt(1), Payload: big.NewInt(1), Delta: 2},
		"badge threshold":    {Kind: types.KindBadge, Target: big.NewInt(1), Payload: big.NewInt(1), Threshold: 1},
		"missing target":     {Kind: types.KindVote, Payload: big.NewInt(1)},
		"join twice":         {Kind: types.KindJoin, Target: big.NewInt(1)},
		"too many folds":     {Kind: types.KindScan, Folds: []*Effect{{Index: 0}, {Index: 1}, {Index: 2}}},
		"fold past tickets":  {Kind: types.KindScan, Folds: []*Effect{{Index: 0}}},
		"post folds":         {Kind: types.KindPost, Target: big.NewInt(1), Payload: big.NewInt(1), Folds: []*Effect{{Index: 0}}},
		"negative bans":      {Kind: types.KindScan, Folds: []*Effect{{Index: 0, Bans: -1}}},
	} {
		_, err := Apply(active, cb)
		c.Assert(err, qt.ErrorIs, types.ErrValidation, qt.Commentf(name))
	}
	c.Assert(active.Commitment().Cmp(before), qt.Equals, 0)

	_, err := Apply(&State{}, &Callback{Kind: types.KindScan})
	c.Assert(err, qt.ErrorIs, types.ErrValidation)
}

func TestScanPass(t *testing.T) {
	c := qt.New(t)
	state := &State{Secret: types.FromBig(testSecret()), Nonce: 1}

	// every interaction counts until a pass is due
	var err error
	for i := 0; i < types.ScanInterval-1; i++ {
		c.Assert(state.ScanDue(), qt.IsFalse)
		tr, err := Apply(state, message(c, "hi", int64(i+1)))
		c.Assert(err, qt.IsNil)
		c.Assert(tr.Ticket.Index, qt.Equals, uint64(i))
		c.Assert(tr.Ticket.Value.MathBigInt().Cmp(TicketValue(testSecret(), uint64(i))), qt.Equals, 0)
		state = tr.New
	}
	c.Assert(state.ScanDue(), qt.IsTrue)
	c.Assert(state.Tickets, qt.Equals, uint64(types.ScanInterval-1))
	_, err = Apply(state, &Callback{Kind: types.KindGenPseudo})
	c.Assert(err, qt.ErrorIs, types.ErrValidation)

	// a scan without folds does not move a pass with tickets left
	tr, err := Apply(state, &Callback{Kind: types.KindScan})
	c.Assert(err, qt.IsNil)
	c.Assert(tr.PassDone, qt.IsFalse)
	c.Assert(tr.New.ScanDue(), qt.IsTrue)

	slots := []*Effect{{Index: 0, Reputation: 3}, {Index: 1, Reputation: -1}, {Index: 2}, {Index: 3, Bans: 1}}
	for len(slots) > 0 {
		n := min(len(slots), types.FoldSlots)
		tr, err = Apply(state, &Callback{Kind: types.KindScan, Folds: slots[:n]})
		c.Assert(err, qt.IsNil)
		c.Assert(tr.Folded, qt.Equals, n)
		state, slots = tr.New, slots[n:]
	}
	c.Assert(tr.PassDone, qt.IsTrue)
	c.Assert(state.Reputation, qt.Equals, int64(2))
	c.Assert(state.Bans, qt.Equals, int64(1))
	c.Assert(state.SinceScan, qt.Equals, uint64(0))
	c.Assert(state.Cursor, qt.Equals, uint64(0))

	// the pass folded a ban: scan needs no standing, posting does
	_, err = Apply(state, message(c, "let me in", 9))
	c.Assert(err, qt.ErrorIs, types.ErrValidation)
	_, err = Apply(state, &Callback{Kind: types.KindScan, Folds: []*Effect{{Index: 0}}})
	c.Assert(err, qt.IsNil)

	negative := &State{Secret: types.FromBig(testSecret()), Reputation: -1, Nonce: 1}
	_, err = Apply(negative, message(c, "sorry", 1))
	c.Assert(err, qt.ErrorIs, types.ErrValidation)
}

func TestPseudonymTags(t *testing.T) {
	c := qt.New(t)
	a := FromSecret(testGroup, testSecret())
	a.State.Pseudonyms = 2
	b := FromSecret(testGroup, big.NewInt(0xbeef))
	b.State.Pseudonyms = 1

	a0, err := a.DerivePseudonym(0)
	c.Assert(err, qt.IsNil)
	a0again, err := a.DerivePseudonym(0)
	c.Assert(err, qt.IsNil)
	a1, err := a.DerivePseudonym(1)
	c.Assert(err, qt.IsNil)
	b0, err := b.DerivePseudonym(0)
	c.Assert(err, qt.IsNil)

	c.Assert(a0.Tag.Equal(a0again.Tag), qt.IsTrue)
	c.Assert(a0.Handle(), qt.Equals, a0again.Handle())
	c.Assert(a0.Tag.Equal(a1.Tag), qt.IsFalse)
	c.Assert(a0.Tag.Equal(b0.Tag), qt.IsFalse)

	_, err = a.DerivePseudonym(2)
	c.Assert(err, qt.ErrorIs, types.ErrValidation)
}

func TestPendingCommit(t *testing.T) {
	c := qt.New(t)
	cred := FromSecret(testGroup, testSecret())
	c.Assert(cred.Commit(nil, ""), qt.Equals, ErrNoPending)

	_, err := cred.Apply(&Callback{Kind: types.KindScan})
	c.Assert(err, qt.ErrorIs, types.ErrValidation)

	tr, err := cred.Apply(&Callback{Kind: types.KindJoin, Target: big.NewInt(1)})
	c.Assert(err, qt.IsNil)
	cred.Prepare(tr)
	_, err = cred.Apply(&Callback{Kind: types.KindScan})
	c.Assert(err, qt.ErrorIs, types.ErrValidation)

	wrong := &types.MerkleWitness{Leaf: types.NewInt(1)}
	c.Assert(cred.Commit(wrong, ""), qt.ErrorIs, types.ErrValidation)
	c.Assert(cred.Joined, qt.IsFalse)

	witness := &types.MerkleWitness{Leaf: tr.Inputs.NewCommitment}
	c.Assert(cred.Commit(witness, ""), qt.IsNil)
	c.Assert(cred.Joined, qt.IsTrue)
	c.Assert(cred.Pending, qt.IsNil)

	tr, err = cred.Apply(message(c, "first", 5))
	c.Assert(err, qt.IsNil)
	cred.Prepare(tr)
	c.Assert(cred.Commit(&types.MerkleWitness{Leaf: tr.Inputs.NewCommitment}, "m1"), qt.IsNil)
	c.Assert(cred.State.Nonce, qt.Equals, uint64(1))
	c.Assert(cred.Tickets, qt.HasLen, 1)
	c.Assert(cred.Tickets[0].MessageID, qt.Equals, "m1")

	// the next scan folds the slot of the ticket, wherever it is
	entry := &types.SlotWitness{
		Slot:    &types.TicketSlot{Position: 1, Ticket: cred.Tickets[0].Value, Reputation: 1},
		Witness: &types.MerkleWitness{Index: 1},
	}
	other := &types.SlotWitness{
		Slot:    &types.TicketSlot{Position: 0, Ticket: types.NewInt(3), Reputation: 1},
		Witness: &types.MerkleWitness{},
	}
	_, _, err = cred.NextScan([]*types.SlotWitness{other})
	c.Assert(err, qt.ErrorIs, types.ErrNotFound)
	effects, witnesses, err := cred.NextScan([]*types.SlotWitness{other, entry, nil})
	c.Assert(err, qt.IsNil)
	c.Assert(effects, qt.HasLen, 1)
	c.Assert(effects[0].Index, qt.Equals, uint64(0))
	c.Assert(witnesses[0], qt.Equals, entry)
	c.Assert(cred.PassLeft(), qt.Equals, 1)

	tr, err = cred.Apply(&Callback{Kind: types.KindScan, Folds: effects})
	c.Assert(err, qt.IsNil)
	cred.Prepare(tr)
	c.Assert(cred.Commit(&types.MerkleWitness{Leaf: tr.Inputs.NewCommitment}, ""), qt.IsNil)
	c.Assert(cred.State.Reputation, qt.Equals, int64(1))
	// a new pass starts from the first ticket again
	effects, _, err = cred.NextScan([]*types.SlotWitness{entry})
	c.Assert(err, qt.IsNil)
	c.Assert(effects, qt.HasLen, 1)
}

func TestSaveLoad(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(t.TempDir(), "credential.cbor")
	cred, err := New(testGroup)
	c.Assert(err, qt.IsNil)
	cred.Joined = true
	cred.Pseudonyms = append(cred.Pseudonyms, NewPseudonym(cred.Secret(), 0))
	c.Assert(cred.Save(path), qt.IsNil)

	loaded, err := Load(path)
	c.Assert(err, qt.IsNil)
	c.Assert(loaded.GroupID, qt.Equals, testGroup)
	c.Assert(loaded.Joined, qt.IsTrue)
	c.Assert(loaded.Commitment().Cmp(cred.Commitment()), qt.Equals, 0)
	c.Assert(loaded.Pseudonyms[0].Tag.Equal(cred.Pseudonyms[0].Tag), qt.IsTrue)

	_, err = Load(filepath.Join(t.TempDir(), "missing.cbor"))
	c.Assert(err, qt.IsNotNil)
	_, err = Decode([]byte{0xa0})
	c.Assert(err, qt.IsNotNil)
}
