package relay

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/wispy/credential"
	"github.com/vocdoni/wispy/prover"
	"github.com/vocdoni/wispy/storage"
	"github.com/vocdoni/wispy/storage/registry"
	"github.com/vocdoni/wispy/transport"
	"github.com/vocdoni/wispy/types"
	"github.com/vocdoni/wispy/zk"
	"go.vocdoni.io/dvote/db/metadb"
)

const testGroup = "group.test"

func newTestRelay(c *qt.C, cfg Config) (*Relay, *transport.Loopback) {
	if cfg.GroupID == "" {
		cfg.GroupID = testGroup
	}
	if cfg.RootWindow == 0 {
		cfg.RootWindow = 32
	}
	lb := transport.NewLoopback()
	r, err := New(cfg, storage.New(metadb.NewTest(c.TB)), zk.NewSolverBackend(), lb)
	c.Assert(err, qt.IsNil)
	return r, lb
}

// member drives a credential against a relay the way a client does.
type member struct {
	c    *qt.C
	r    *Relay
	p    *prover.Prover
	cred *credential.Credential
}

func join(c *qt.C, r *Relay) *member {
	cred, err := credential.New(r.GroupID())
	c.Assert(err, qt.IsNil)
	m := &member{c: c, r: r, p: prover.New(r.Backend(), time.Minute), cred: cred}
	_, err = m.act(types.KindJoin, nil, credential.Params{})
	c.Assert(err, qt.IsNil)
	c.Assert(m.cred.Joined, qt.IsTrue)
	return m
}

// prove builds the proof of an interaction. Scans fold the next slots of
// the pass from the current bulletin unless the folds are given.
func (m *member) prove(kind types.Kind, payload *types.Payload, params credential.Params) *prover.Result {
	if kind == types.KindScan && params.Folds == nil {
		entries, err := m.r.Bulletin(0, 0)
		m.c.Assert(err, qt.IsNil)
		return m.proveScan(entries)
	}
	cb, err := credential.NewCallback(kind, m.r.GroupID(), payload, params)
	m.c.Assert(err, qt.IsNil)
	res, err := m.p.Prove(context.Background(), &prover.Request{Credential: m.cred, Callback: cb, Payload: payload})
	m.c.Assert(err, qt.IsNil)
	return res
}

// proveScan builds a scan folding the next slots of the pass found in
// entries.
func (m *member) proveScan(entries []*types.SlotWitness) *prover.Result {
	folds, slots, err := m.cred.NextScan(entries)
	m.c.Assert(err, qt.IsNil)
	cb, err := credential.NewCallback(types.KindScan, m.r.GroupID(), nil, credential.Params{Folds: folds})
	m.c.Assert(err, qt.IsNil)
	res, err := m.p.Prove(context.Background(), &prover.Request{Credential: m.cred, Callback: cb, Slots: slots})
	m.c.Assert(err, qt.IsNil)
	return res
}

func (m *member) submit(res *prover.Result) (*types.Ack, error) {
	m.cred.Prepare(res.Transition)
	ack, err := m.r.Submit(context.Background(), res.Proof)
	if err != nil {
		m.cred.Discard()
		return nil, err
	}
	m.c.Assert(m.cred.Commit(ack.Witness, ack.MessageID), qt.IsNil)
	return ack, nil
}

func (m *member) act(kind types.Kind, payload *types.Payload, params credential.Params) (*types.Ack, error) {
	return m.submit(m.prove(kind, payload, params))
}

// refresh fetches the current membership witness of the credential.
func (m *member) refresh() {
	w, err := m.r.WitnessFor(m.cred.Commitment())
	m.c.Assert(err, qt.IsNil)
	m.c.Assert(m.cred.SetWitness(w), qt.IsNil)
}

// scanPass scans until the current pass of the credential is complete.
func (m *member) scanPass() {
	for left := m.cred.PassLeft(); left > 0; left-- {
		_, err := m.act(types.KindScan, nil, credential.Params{})
		m.c.Assert(err, qt.IsNil)
	}
	m.c.Assert(m.cred.State.Cursor, qt.Equals, uint64(0))
	m.c.Assert(m.cred.State.SinceScan, qt.Equals, uint64(0))
}

func message(content string) *types.Payload {
	return &types.Payload{Type: types.PayloadMessage, GroupID: testGroup, Content: content, Timestamp: time.Now().Unix()}
}

func (m *member) post(content string) string {
	ack, err := m.act(types.KindPost, message(content), credential.Params{})
	m.c.Assert(err, qt.IsNil)
	m.c.Assert(ack.MessageID, qt.Not(qt.Equals), "")
	return ack.MessageID
}

func (m *member) vote(pollID, choice string) error {
	_, err := m.act(types.KindVote, &types.Payload{
		Type: types.PayloadVote, GroupID: testGroup, PollID: pollID, Choice: choice,
	}, credential.Params{})
	return err
}

func TestJoinAndPost(t *testing.T) {
	c := qt.New(t)
	r, lb := newTestRelay(c, Config{})
	alice := join(c, r)
	bob := join(c, r)
	c.Assert(r.Info().Members, qt.Equals, uint64(2))
	alice.refresh()

	id := alice.post("hello group")
	msgs := lb.Messages()
	c.Assert(msgs, qt.HasLen, 1)
	c.Assert(msgs[0].Content, qt.Equals, "hello group")
	c.Assert(msgs[0].Metadata[transport.MetaMessageID], qt.Equals, id)
	stored, err := r.Message(id)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.TransportID, qt.Equals, msgs[0].ID)
	c.Assert(stored.Ticket.IsZero(), qt.IsFalse)
	c.Assert(alice.cred.Tickets, qt.HasLen, 1)
	c.Assert(alice.cred.Tickets[0].MessageID, qt.Equals, id)

	// replies quote the transport id of the relayed message
	ack, err := bob.act(types.KindPost, &types.Payload{
		Type: types.PayloadReply, GroupID: testGroup, Content: "hi alice", ReplyTo: id, Timestamp: time.Now().Unix(),
	}, credential.Params{})
	c.Assert(err, qt.IsNil)
	c.Assert(ack.MessageID, qt.Not(qt.Equals), id)
	c.Assert(lb.Messages()[1].Metadata[transport.MetaQuote], qt.Equals, msgs[0].ID)

	// a second join of the same credential is refused locally
	_, err = alice.cred.Apply(&credential.Callback{Kind: types.KindJoin})
	c.Assert(err, qt.ErrorIs, types.ErrValidation)

	_, err = r.Message("missing")
	c.Assert(err, qt.ErrorIs, types.ErrNotFound)
}

func TestDuplicates(t *testing.T) {
	c := qt.New(t)
	r, lb := newTestRelay(c, Config{})
	alice := join(c, r)

	payload := message("only once")
	res := alice.prove(types.KindPost, payload, credential.Params{})
	_, err := alice.submit(res)
	c.Assert(err, qt.IsNil)

	// replaying the very same proof
	_, err = r.Submit(context.Background(), res.Proof)
	c.Assert(err, qt.ErrorIs, types.ErrDuplicateNullifier)

	// the same message from a fresh state spends the same action nullifier
	_, err = alice.act(types.KindPost, payload, credential.Params{})
	c.Assert(err, qt.ErrorIs, types.ErrDuplicateNullifier)
	c.Assert(alice.cred.Pending, qt.IsNil)
	c.Assert(lb.Messages(), qt.HasLen, 1)

	// a failed submission leaves no trace, the credential can go on
	alice.post("something else")
	c.Assert(lb.Messages(), qt.HasLen, 2)
}

func TestRejections(t *testing.T) {
	c := qt.New(t)
	r, lb := newTestRelay(c, Config{})
	alice := join(c, r)

	res := alice.prove(types.KindPost, message("tampered"), credential.Params{})

	// payload swapped after proving
	forged := *res.Proof
	forged.Payload = message("forged")
	_, err := r.Submit(context.Background(), &forged)
	c.Assert(err, qt.ErrorIs, types.ErrValidation)

	// proof bytes altered
	forged = *res.Proof
	forged.Proof = append(types.HexBytes{}, res.Proof.Proof...)
	forged.Proof[0] ^= 0xff
	_, err = r.Submit(context.Background(), &forged)
	c.Assert(err, qt.ErrorIs, types.ErrProofRejected)

	// a public input the kind does not use
	forged = *res.Proof
	in := *res.Proof.Inputs
	in.Tag = types.NewInt(7)
	forged.Inputs = &in
	_, err = r.Submit(context.Background(), &forged)
	c.Assert(err, qt.ErrorIs, types.ErrValidation)

	// another group
	other, _ := newTestRelay(c, Config{GroupID: "group.other"})
	_, err = other.Submit(context.Background(), res.Proof)
	c.Assert(err, qt.ErrorIs, types.ErrValidation)

	_, err = r.Join(context.Background(), res.Proof)
	c.Assert(err, qt.ErrorIs, types.ErrValidation)
	_, err = r.Submit(context.Background(), &types.InteractionProof{})
	c.Assert(err, qt.ErrorIs, types.ErrValidation)

	// none of the above spent anything
	_, err = alice.submit(res)
	c.Assert(err, qt.IsNil)
	c.Assert(lb.Messages(), qt.HasLen, 1)
}

func TestClockSkew(t *testing.T) {
	c := qt.New(t)
	r, _ := newTestRelay(c, Config{MaxClockSkew: time.Minute})
	alice := join(c, r)
	payload := message("from the past")
	payload.Timestamp = time.Now().Add(-time.Hour).Unix()
	_, err := alice.act(types.KindPost, payload, credential.Params{})
	c.Assert(err, qt.ErrorIs, types.ErrValidation)
}

func TestStaleWitness(t *testing.T) {
	c := qt.New(t)
	r, _ := newTestRelay(c, Config{RootWindow: 1})
	alice := join(c, r)
	join(c, r)

	_, err := alice.act(types.KindPost, message("too late"), credential.Params{})
	c.Assert(err, qt.ErrorIs, types.ErrStaleWitness)
	c.Assert(alice.cred.Pending, qt.IsNil)

	alice.refresh()
	alice.post("after scanning")

	// the scan interaction refreshes the witness through the relay
	ack, err := alice.act(types.KindScan, nil, credential.Params{})
	c.Assert(err, qt.IsNil)
	root, _ := r.Registry()
	c.Assert(ack.Witness.Root.Equal(types.FromBig(root)), qt.IsTrue)
}

func TestPollVoting(t *testing.T) {
	c := qt.New(t)
	r, lb := newTestRelay(c, Config{})
	alice := join(c, r)
	bob := join(c, r)
	carol := join(c, r)

	payload := &types.Payload{Type: types.PayloadPoll, GroupID: testGroup, Content: "pizza?", Timestamp: time.Now().Unix()}
	ack, err := alice.act(types.KindPost, payload, credential.Params{})
	c.Assert(err, qt.IsNil)
	c.Assert(ack.PollID, qt.Equals, ack.MessageID)
	pollID := ack.PollID
	c.Assert(lb.Messages()[0].Content, qt.Contains, "pizza?")

	c.Assert(alice.vote(pollID, "yes"), qt.IsNil)
	c.Assert(bob.vote(pollID, "no"), qt.IsNil)
	c.Assert(alice.vote(pollID, "no"), qt.ErrorIs, types.ErrDuplicateNullifier)
	c.Assert(carol.vote(pollID, "maybe"), qt.ErrorIs, types.ErrPolicy)
	c.Assert(carol.vote("unknown-poll", "yes"), qt.ErrorIs, types.ErrNotFound)

	count, err := r.CountVotes(pollID)
	c.Assert(err, qt.IsNil)
	c.Assert(count.Total, qt.Equals, uint64(2))
	c.Assert(count.Counts["yes"], qt.Equals, uint64(1))
	c.Assert(count.Counts["no"], qt.Equals, uint64(1))
	c.Assert(count.Summary, qt.Contains, "It's a tie!")

	c.Assert(carol.vote(pollID, "yes"), qt.IsNil)
	count, err = r.CountVotes(pollID)
	c.Assert(err, qt.IsNil)
	c.Assert(count.Summary, qt.Contains, "Majority voted yes.")
	// votes are not relayed
	c.Assert(lb.Messages(), qt.HasLen, 1)
}

func TestReputationAndBadges(t *testing.T) {
	c := qt.New(t)
	r, lb := newTestRelay(c, Config{
		Badges: []*types.BadgeDefinition{{ID: "regular", MinReputation: 2}},
	})
	alice := join(c, r)
	bob := join(c, r)
	carol := join(c, r)

	id := alice.post("upvote me")
	rep := func(m *member, delta int64) error {
		_, err := m.act(types.KindRep, &types.Payload{
			Type: types.PayloadRep, GroupID: testGroup, ReplyTo: id, Delta: delta,
		}, credential.Params{})
		return err
	}
	c.Assert(rep(bob, 1), qt.IsNil)
	c.Assert(rep(bob, -1), qt.ErrorIs, types.ErrDuplicateNullifier)
	c.Assert(rep(carol, 1), qt.IsNil)

	slot, err := r.Settle(id)
	c.Assert(err, qt.IsNil)
	c.Assert(slot.Reputation, qt.Equals, int64(2))
	c.Assert(slot.Position, qt.Equals, uint64(0))
	c.Assert(slot.MessageID, qt.Equals, id)
	// nothing left to settle
	slot, err = r.Settle(id)
	c.Assert(err, qt.IsNil)
	c.Assert(slot, qt.IsNil)

	entry, err := r.SlotFor(alice.cred.Tickets[0].Value)
	c.Assert(err, qt.IsNil)
	c.Assert(entry.Slot.Ticket.Equal(alice.cred.Tickets[0].Value), qt.IsTrue)
	effects, _, err := bob.cred.NextScan([]*types.SlotWitness{entry})
	c.Assert(err, qt.IsNil)
	c.Assert(effects, qt.HasLen, 0)

	// the reputation only counts once a scan pass folds the slot
	c.Assert(alice.cred.State.Reputation, qt.Equals, int64(0))
	alice.scanPass()
	c.Assert(alice.cred.State.Reputation, qt.Equals, int64(2))
	ack, err := alice.act(types.KindGenPseudo, nil, credential.Params{})
	c.Assert(err, qt.IsNil)
	c.Assert(ack.MessageID, qt.Equals, "")
	c.Assert(alice.cred.Pseudonyms, qt.HasLen, 1)

	// forged totals do not match the bulletin leaf
	entries, err := r.Bulletin(0, 0)
	c.Assert(err, qt.IsNil)
	inflated := &credential.Effect{Index: 0, Reputation: 5}
	cb, err := credential.NewCallback(types.KindScan, testGroup, nil, credential.Params{
		Folds: []*credential.Effect{inflated},
	})
	c.Assert(err, qt.IsNil)
	slotWitness := *entries[0].Witness
	slotWitness.Leaf = types.FromBig(inflated.Leaf(alice.cred.Secret()))
	forgedSlot := &types.SlotWitness{Slot: entries[0].Slot, Witness: &slotWitness}
	_, err = alice.p.Prove(context.Background(), &prover.Request{
		Credential: alice.cred, Callback: cb, Slots: []*types.SlotWitness{forgedSlot},
	})
	c.Assert(err, qt.ErrorIs, types.ErrProofGeneration)

	// a new pass reads the same totals again
	alice.scanPass()
	c.Assert(alice.cred.State.Reputation, qt.Equals, int64(2))

	// the badge threshold must match the definition
	badge := &types.Payload{Type: types.PayloadBadge, GroupID: testGroup, BadgeID: "regular"}
	_, err = alice.act(types.KindBadge, badge, credential.Params{PseudoIndex: 0, Threshold: 1})
	c.Assert(err, qt.ErrorIs, types.ErrPolicy)
	_, err = alice.act(types.KindBadge, badge, credential.Params{PseudoIndex: 0, Threshold: 2})
	c.Assert(err, qt.IsNil)
	claims, err := r.Tally().Claims("regular")
	c.Assert(err, qt.IsNil)
	c.Assert(claims, qt.HasLen, 1)
	c.Assert(claims[0].PseudonymTag.Equal(alice.cred.Pseudonyms[0].Tag), qt.IsTrue)
	last := lb.Messages()[len(lb.Messages())-1]
	c.Assert(last.Content, qt.Contains, "regular")
	c.Assert(last.Metadata[transport.MetaAuthor], qt.Equals, alice.cred.Pseudonyms[0].Handle())

	_, err = alice.act(types.KindBadge, &types.Payload{
		Type: types.PayloadBadge, GroupID: testGroup, BadgeID: "unknown",
	}, credential.Params{PseudoIndex: 0})
	c.Assert(err, qt.ErrorIs, types.ErrPolicy)
}

func TestSettleAll(t *testing.T) {
	c := qt.New(t)
	r, _ := newTestRelay(c, Config{})
	alice := join(c, r)
	bob := join(c, r)
	carol := join(c, r)

	id := alice.post("controversial")
	for _, m := range []*member{bob, carol} {
		delta := int64(1)
		if m == carol {
			delta = -1
		}
		_, err := m.act(types.KindRep, &types.Payload{
			Type: types.PayloadRep, GroupID: testGroup, ReplyTo: id, Delta: delta,
		}, credential.Params{})
		c.Assert(err, qt.IsNil)
	}
	// signals cancelling out publish nothing
	n, err := r.SettleAll()
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 0)
	entries, err := r.Bulletin(0, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(entries, qt.HasLen, 1)
	c.Assert(entries[0].Slot.Reputation, qt.Equals, int64(0))
	c.Assert(entries[0].Slot.MessageID, qt.Equals, id)
}

func TestBan(t *testing.T) {
	c := qt.New(t)
	r, lb := newTestRelay(c, Config{})
	alice := join(c, r)
	bob := join(c, r)
	carol := join(c, r)

	id := alice.post("something rude")
	ack, err := bob.act(types.KindBanPoll, &types.Payload{
		Type: types.PayloadBanPoll, GroupID: testGroup, ReplyTo: id, Reason: "rude",
	}, credential.Params{})
	c.Assert(err, qt.IsNil)
	pollID := ack.PollID
	poll, err := r.Poll(pollID)
	c.Assert(err, qt.IsNil)
	c.Assert(poll.Type, qt.Equals, types.PollBan)
	c.Assert(poll.Target, qt.Equals, id)

	banPayload := &types.Payload{Type: types.PayloadBan, GroupID: testGroup, PollID: pollID}
	// no votes yet
	_, err = bob.act(types.KindBan, banPayload, credential.Params{})
	c.Assert(err, qt.ErrorIs, types.ErrPolicy)

	c.Assert(bob.vote(pollID, types.ChoiceBan), qt.IsNil)
	c.Assert(carol.vote(pollID, types.ChoiceBan), qt.IsNil)
	c.Assert(alice.vote(pollID, types.ChoiceKeep), qt.IsNil)

	ack, err = bob.act(types.KindBan, banPayload, credential.Params{})
	c.Assert(err, qt.IsNil)
	c.Assert(ack.PollID, qt.Equals, pollID)
	last := lb.Messages()[len(lb.Messages())-1]
	c.Assert(last.Content, qt.Contains, "Majority voted to ban.")

	// enforced once
	_, err = carol.act(types.KindBan, banPayload, credential.Params{})
	c.Assert(err, qt.ErrorIs, types.ErrPolicy)

	// alice folds the ban and loses standing
	alice.scanPass()
	c.Assert(alice.cred.State.Bans, qt.Equals, int64(1))
	cb, err := credential.NewCallback(types.KindPost, testGroup, message("still here"), credential.Params{})
	c.Assert(err, qt.IsNil)
	_, err = alice.cred.Apply(cb)
	c.Assert(err, qt.ErrorIs, types.ErrValidation)

	// scanning is still allowed
	_, err = alice.act(types.KindScan, nil, credential.Params{})
	c.Assert(err, qt.IsNil)
}

func TestBannedMemberMustScan(t *testing.T) {
	c := qt.New(t)
	r, _ := newTestRelay(c, Config{})
	alice := join(c, r)
	bob := join(c, r)
	carol := join(c, r)

	id := alice.post("something rude")
	beforeBan, err := r.Bulletin(0, 0)
	c.Assert(err, qt.IsNil)
	ack, err := bob.act(types.KindBanPoll, &types.Payload{
		Type: types.PayloadBanPoll, GroupID: testGroup, ReplyTo: id, Reason: "rude",
	}, credential.Params{})
	c.Assert(err, qt.IsNil)
	c.Assert(bob.vote(ack.PollID, types.ChoiceBan), qt.IsNil)
	c.Assert(carol.vote(ack.PollID, types.ChoiceBan), qt.IsNil)
	_, err = bob.act(types.KindBan, &types.Payload{Type: types.PayloadBan, GroupID: testGroup, PollID: ack.PollID},
		credential.Params{})
	c.Assert(err, qt.IsNil)

	// a pass over the bulletin as it was before the ban is refused
	alice.refresh()
	_, err = alice.submit(alice.proveScan(beforeBan))
	c.Assert(err, qt.ErrorIs, types.ErrStaleWitness)
	c.Assert(alice.cred.State.Bans, qt.Equals, int64(0))

	// skipping scans buys a bounded number of interactions
	posted := 0
	for !alice.cred.State.ScanDue() {
		alice.post(fmt.Sprintf("not scanning %d", posted))
		posted++
	}
	c.Assert(posted > 0, qt.IsTrue)
	c.Assert(posted < types.ScanInterval, qt.IsTrue)
	payload := message("one more")
	cb, err := credential.NewCallback(types.KindPost, testGroup, payload, credential.Params{})
	c.Assert(err, qt.IsNil)
	_, err = alice.cred.Apply(cb)
	c.Assert(err, qt.ErrorIs, types.ErrValidation)

	// resetting the counter locally breaks the membership of the state
	cheat := *alice.cred
	cheat.State = alice.cred.State.Copy()
	cheat.State.SinceScan = 0
	membership := *alice.cred.Witness
	membership.Leaf = types.FromBig(cheat.State.Commitment())
	cheat.Witness = &membership
	_, err = alice.p.Prove(context.Background(), &prover.Request{Credential: &cheat, Callback: cb, Payload: payload})
	c.Assert(err, qt.ErrorIs, types.ErrProofGeneration)

	// the only way forward is a full pass, which folds the ban
	alice.scanPass()
	c.Assert(alice.cred.State.Bans, qt.Equals, int64(1))
	_, err = alice.cred.Apply(cb)
	c.Assert(err, qt.ErrorIs, types.ErrValidation)
}

func TestCapacityBeforeCommit(t *testing.T) {
	c := qt.New(t)
	r, _ := newTestRelay(c, Config{})
	small, err := registry.New(metadb.NewTest(c.TB), registry.Options{Depth: 2, RootWindow: 32})
	c.Assert(err, qt.IsNil)
	r.registry = small

	for i := 0; i < 4; i++ {
		join(c, r)
	}
	cred, err := credential.New(testGroup)
	c.Assert(err, qt.IsNil)
	late := &member{c: c, r: r, p: prover.New(r.Backend(), time.Minute), cred: cred}
	res := late.prove(types.KindJoin, nil, credential.Params{})
	_, err = late.submit(res)
	c.Assert(err, qt.ErrorIs, types.ErrPolicy)
	spent, err := r.ledger.Contains(types.Nullifier{
		Scope: types.KindJoin.String(),
		Tag:   res.Proof.Inputs.ActionNullifier,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(spent, qt.IsFalse)
	c.Assert(late.cred.Joined, qt.IsFalse)
}

func TestBulletinCapacity(t *testing.T) {
	c := qt.New(t)
	r, lb := newTestRelay(c, Config{})
	small, err := registry.New(metadb.NewTest(c.TB), registry.Options{Depth: 1, RootWindow: 8})
	c.Assert(err, qt.IsNil)
	r.bulletin = small
	alice := join(c, r)

	alice.post("first")
	alice.post("second")
	before := alice.cred.Commitment()
	_, err = alice.act(types.KindPost, message("third"), credential.Params{})
	c.Assert(err, qt.ErrorIs, types.ErrPolicy)
	c.Assert(alice.cred.Commitment().Cmp(before), qt.Equals, 0)
	c.Assert(alice.cred.Pending, qt.IsNil)
	c.Assert(lb.Messages(), qt.HasLen, 2)

	// the state nullifier was not spent
	_, err = alice.act(types.KindGenPseudo, nil, credential.Params{})
	c.Assert(err, qt.IsNil)
}

func TestPseudonyms(t *testing.T) {
	c := qt.New(t)
	r, lb := newTestRelay(c, Config{})
	alice := join(c, r)

	for i := 0; i < 2; i++ {
		_, err := alice.act(types.KindGenPseudo, nil, credential.Params{})
		c.Assert(err, qt.IsNil)
	}
	c.Assert(alice.cred.Pseudonyms, qt.HasLen, 2)
	handle := alice.cred.Pseudonyms[1].Handle()

	ack, err := alice.act(types.KindPostPseudo, message("masked"), credential.Params{PseudoIndex: 1})
	c.Assert(err, qt.IsNil)
	stored, err := r.Message(ack.MessageID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Pseudonym.Equal(alice.cred.Pseudonyms[1].Tag), qt.IsTrue)
	c.Assert(lb.Messages()[0].Content, qt.Equals, fmt.Sprintf("[%s] masked", handle))

	// pseudonyms are not linkable until the member says so
	_, err = alice.act(types.KindAuthorship, &types.Payload{Type: types.PayloadAuthorship, GroupID: testGroup},
		credential.Params{PseudoIndex: 0, PseudoIndex2: 1})
	c.Assert(err, qt.IsNil)
	last := lb.Messages()[1].Content
	c.Assert(strings.Contains(last, alice.cred.Pseudonyms[0].Handle()), qt.IsTrue)
	c.Assert(strings.Contains(last, handle), qt.IsTrue)

	// the pseudonym of another member cannot be claimed
	bob := join(c, r)
	_, err = bob.act(types.KindGenPseudo, nil, credential.Params{})
	c.Assert(err, qt.IsNil)
	alice.refresh()
	res := alice.prove(types.KindAuthorship, &types.Payload{Type: types.PayloadAuthorship, GroupID: testGroup},
		credential.Params{PseudoIndex: 1, PseudoIndex2: 0})
	forged := *res.Proof
	in := *res.Proof.Inputs
	in.Tag2 = bob.cred.Pseudonyms[0].Tag
	forged.Inputs = &in
	_, err = r.Submit(context.Background(), &forged)
	c.Assert(err, qt.ErrorIs, types.ErrProofRejected)
	c.Assert(lb.Messages(), qt.HasLen, 2)
}

func TestDeliveryRetry(t *testing.T) {
	c := qt.New(t)
	r, lb := newTestRelay(c, Config{MaxDeliveryAttempts: 5})
	alice := join(c, r)

	lb.Fail(1)
	ack, err := alice.act(types.KindPost, message("eventually"), credential.Params{})
	c.Assert(err, qt.IsNil)
	c.Assert(ack.Warning, qt.Not(qt.Equals), "")
	c.Assert(lb.Messages(), qt.HasLen, 0)

	c.Assert(r.Redeliver(context.Background()), qt.Equals, 1)
	c.Assert(lb.Messages(), qt.HasLen, 1)
	c.Assert(lb.Messages()[0].Content, qt.Equals, "eventually")
	c.Assert(r.Redeliver(context.Background()), qt.Equals, 0)
	stored, err := r.Message(ack.MessageID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.TransportID, qt.Equals, "1")
}

func TestWorkers(t *testing.T) {
	c := qt.New(t)
	r, lb := newTestRelay(c, Config{
		SettleInterval:    10 * time.Millisecond,
		RedeliverInterval: 10 * time.Millisecond,
	})
	alice := join(c, r)
	bob := join(c, r)

	lb.Fail(1)
	id := alice.post("background")
	_, err := bob.act(types.KindRep, &types.Payload{
		Type: types.PayloadRep, GroupID: testGroup, ReplyTo: id, Delta: 1,
	}, credential.Params{})
	c.Assert(err, qt.IsNil)

	r.Start(context.Background())
	defer r.Stop()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		entries, err := r.Bulletin(0, 0)
		c.Assert(err, qt.IsNil)
		if len(entries) == 1 && entries[0].Slot.Reputation == 1 && len(lb.Messages()) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	c.Fatal("workers did not settle and redeliver in time")
}
