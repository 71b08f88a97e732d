package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vocdoni/wispy/credential"
	"github.com/vocdoni/wispy/log"
	"github.com/vocdoni/wispy/storage"
	"github.com/vocdoni/wispy/transport"
	"github.com/vocdoni/wispy/types"
)

// Submit runs the relay pipeline over an interaction proof:
//
//  1. consistency of the public inputs with the payload
//  2. membership and bulletin roots within their windows
//  3. read-only policy checks (open poll, ban policy, badge threshold...)
//  4. proof verification against the circuit of the kind
//  5. room in the registry and the bulletin for what the interaction adds
//  6. check-and-insert of every nullifier in the ledger, the commit point
//  7. bookkeeping: registry append, ticket slot, tally, effects, outbox
//  8. delivery of the payload to the transport
//
// Any failure before step 6 leaves no trace. A delivery failure does not
// roll anything back: the Ack carries a warning and the outbox worker
// retries the delivery.
func (r *Relay) Submit(ctx context.Context, p *types.InteractionProof) (*types.Ack, error) {
	ack, err := r.submit(ctx, p)
	r.metrics.Interactions.WithLabelValues(p.Kind().String(), result(err)).Inc()
	if err != nil {
		log.Debugw("interaction refused", "kind", p.Kind().String(), "error", err.Error())
		return nil, err
	}
	return ack, nil
}

// Join submits a join proof.
func (r *Relay) Join(ctx context.Context, p *types.InteractionProof) (*types.Ack, error) {
	if p.Kind() != types.KindJoin {
		return nil, invalid("expected a join proof, got %s", p.Kind())
	}
	return r.Submit(ctx, p)
}

func (r *Relay) submit(ctx context.Context, p *types.InteractionProof) (*types.Ack, error) {
	it, err := r.check(p)
	if err != nil {
		return nil, err
	}
	if err := r.checkWindow(it); err != nil {
		return nil, err
	}
	if err := r.checkPolicy(it); err != nil {
		return nil, err
	}
	if err := r.verify(ctx, it); err != nil {
		return nil, err
	}
	release, err := r.reserve(it)
	if err != nil {
		return nil, err
	}
	defer release()
	if err := r.ledger.CheckAndInsert(it.nullifiers...); err != nil {
		return nil, err
	}
	// from here on the interaction is accepted
	return r.apply(ctx, it)
}

// verify checks the proof, bounding the number of concurrent verifications.
func (r *Relay) verify(ctx context.Context, it *interaction) error {
	select {
	case r.verifySem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("waiting for a verifier: %w", ctx.Err())
	}
	defer func() { <-r.verifySem }()

	start := time.Now()
	err := r.backend.Verify(it.kind, it.proof.Proof, it.in)
	r.metrics.Verify.WithLabelValues(it.kind.String()).Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, types.ErrProofRejected) {
		err = fmt.Errorf("%w: %v", types.ErrProofRejected, err)
	}
	return err
}

// reserve claims the registry position and the bulletin slot an interaction
// adds, before its nullifiers are spent, so an accepted interaction always
// finds room. The returned func releases the claim once it is applied.
func (r *Relay) reserve(it *interaction) (func(), error) {
	var leaves, slots uint64
	if !it.in.NewCommitment.IsZero() {
		leaves = 1
	}
	if it.kind.IssuesTicket() {
		slots = 1
	}
	r.reserveMu.Lock()
	defer r.reserveMu.Unlock()
	if r.reservedLeaves+leaves > r.registry.Free() {
		return nil, fmt.Errorf("%w: membership registry is full", types.ErrPolicy)
	}
	if r.reservedSlots+slots > r.bulletin.Free() {
		return nil, fmt.Errorf("%w: callback bulletin is full", types.ErrPolicy)
	}
	r.reservedLeaves += leaves
	r.reservedSlots += slots
	return func() {
		r.reserveMu.Lock()
		defer r.reserveMu.Unlock()
		r.reservedLeaves -= leaves
		r.reservedSlots -= slots
	}, nil
}

// apply records an accepted interaction. Errors after the ledger commit are
// logged and reported, but the nullifiers stay spent.
func (r *Relay) apply(ctx context.Context, it *interaction) (*types.Ack, error) {
	ack := &types.Ack{Kind: it.kind}
	in := it.in

	if !in.NewCommitment.IsZero() {
		w, err := r.registry.Append(in.NewCommitment.MathBigInt())
		if err != nil {
			log.Errorw(err, "accepted interaction could not be registered")
			return nil, fmt.Errorf("register commitment: %w", err)
		}
		ack.Witness = w
		r.metrics.Leaves.Inc()
	}

	if it.payload == nil {
		log.Infow("interaction accepted", "kind", it.kind.String())
		return ack, nil
	}

	msg := &storage.Message{
		ID:        uuid.NewString(),
		Kind:      it.kind,
		GroupID:   r.cfg.GroupID,
		Payload:   it.payload,
		CreatedAt: time.Now(),
	}
	if !in.Ticket.IsZero() {
		msg.Ticket = in.Ticket
	}
	if !in.Tag.IsZero() {
		msg.Pseudonym = in.Tag
	}
	if !in.Tag2.IsZero() {
		msg.Pseudonym2 = in.Tag2
	}
	ack.MessageID = msg.ID
	if err := r.stg.SetMessage(msg); err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}
	if msg.Ticket != nil {
		if _, err := r.openSlot(msg.Ticket, msg.ID); err != nil {
			log.Errorw(err, "accepted message has no ticket slot")
			return nil, err
		}
	}

	deliver, err := r.record(it, msg, ack)
	if err != nil {
		log.Errorw(err, "accepted interaction could not be recorded")
		return nil, err
	}
	if deliver != nil {
		if err := r.push(ctx, deliver); err != nil {
			ack.Warning = err.Error()
		}
	}
	log.Infow("interaction accepted", "kind", it.kind.String(), "message", msg.ID, "poll", ack.PollID)
	return ack, nil
}

// record updates the tally with an accepted interaction and returns the
// outbox item to deliver, if any.
func (r *Relay) record(it *interaction, msg *storage.Message, ack *types.Ack) (*storage.OutboxItem, error) {
	p := it.payload
	item := &storage.OutboxItem{
		MessageID: msg.ID,
		GroupID:   r.cfg.GroupID,
		Metadata: map[string]string{
			transport.MetaMessageID: msg.ID,
			transport.MetaKind:      it.kind.String(),
		},
	}
	if p.ReplyTo != "" {
		item.Metadata[transport.MetaQuote] = r.quote(p.ReplyTo)
	}

	switch it.kind {
	case types.KindPost, types.KindPostPseudo:
		item.Content = p.Content
		if p.Type == types.PayloadReaction {
			item.Content = p.Emoji
		}
		if it.kind == types.KindPostPseudo {
			handle := credential.Handle(it.in.Tag)
			item.Metadata[transport.MetaAuthor] = handle
			item.Content = fmt.Sprintf("[%s] %s", handle, item.Content)
		}
		if p.Type == types.PayloadPoll {
			poll := &types.Poll{
				ID:              msg.ID,
				Type:            types.PollRegular,
				GroupID:         r.cfg.GroupID,
				AnchorMessageID: msg.ID,
				Question:        p.Content,
			}
			if err := r.tally.OpenPoll(poll); err != nil {
				return nil, err
			}
			ack.PollID = poll.ID
			item.Content = fmt.Sprintf("Poll %s\n%s\nChoices: %v", poll.ID, poll.Question, poll.Choices)
		}
		return item, nil

	case types.KindVote:
		return nil, r.tally.RecordVote(p.PollID, it.in.ActionNullifier, p.Choice)

	case types.KindRep:
		return nil, r.tally.RecordSignal(p.ReplyTo, it.in.ActionNullifier, p.Delta)

	case types.KindBanPoll:
		poll := &types.Poll{
			ID:              msg.ID,
			Type:            types.PollBan,
			GroupID:         r.cfg.GroupID,
			AnchorMessageID: msg.ID,
			Reason:          p.Reason,
			Target:          p.ReplyTo,
		}
		if err := r.tally.OpenPoll(poll); err != nil {
			return nil, err
		}
		ack.PollID = poll.ID
		item.Content = fmt.Sprintf("Ban poll %s on this message: %s\nVote %s or %s.",
			poll.ID, p.Reason, types.ChoiceBan, types.ChoiceKeep)
		return item, nil

	case types.KindBan:
		ack.PollID = p.PollID
		first, err := r.tally.MarkEnforced(p.PollID)
		if err != nil {
			return nil, err
		}
		if !first {
			ack.Warning = fmt.Sprintf("ban poll %s was already enforced", p.PollID)
			return nil, nil
		}
		if _, err := r.addEffect(it.banTicket, 0, 1); err != nil {
			return nil, err
		}
		count, err := r.tally.CountVotes(p.PollID)
		if err != nil {
			return nil, err
		}
		item.Content = fmt.Sprintf("The author of message %s has been banned.\n%s", it.banPoll.Target, count.Summary)
		if quote := r.quote(it.banPoll.AnchorMessageID); quote != "" {
			item.Metadata[transport.MetaQuote] = quote
		}
		return item, nil

	case types.KindAuthorship:
		item.Content = fmt.Sprintf("%s and %s are the same member.",
			credential.Handle(it.in.Tag), credential.Handle(it.in.Tag2))
		return item, nil

	case types.KindBadge:
		if err := r.tally.RecordBadge(p.BadgeID, it.in.Tag); err != nil {
			return nil, err
		}
		handle := credential.Handle(it.in.Tag)
		item.Metadata[transport.MetaAuthor] = handle
		item.Content = fmt.Sprintf("%s earned the %s badge.", handle, p.BadgeID)
		return item, nil
	}
	return nil, nil
}

// quote returns the transport id a message must quote to reply to a relay
// message. Ids unknown to the relay are passed through, they may be
// transport ids of messages the relay did not send.
func (r *Relay) quote(id string) string {
	if _, err := r.stg.Message(id); err == nil {
		return r.stg.TransportID(id)
	}
	return id
}
