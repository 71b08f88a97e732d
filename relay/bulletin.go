package relay

import (
	"errors"
	"fmt"
	"time"

	"github.com/vocdoni/wispy/credential"
	"github.com/vocdoni/wispy/log"
	"github.com/vocdoni/wispy/storage"
	"github.com/vocdoni/wispy/types"
)

// openSlot opens the callback bulletin slot of the ticket issued by an
// accepted message. The slot starts with no reputation and no bans.
func (r *Relay) openSlot(ticket *types.BigInt, messageID string) (*types.TicketSlot, error) {
	r.bulletinMu.Lock()
	defer r.bulletinMu.Unlock()

	leaf := credential.EffectLeaf(ticket.MathBigInt(), 0, 0)
	w, err := r.bulletin.Append(leaf)
	if err != nil {
		return nil, fmt.Errorf("open ticket slot: %w", err)
	}
	slot := &types.TicketSlot{
		Position:  w.Index,
		Ticket:    ticket,
		Leaf:      types.FromBig(leaf),
		MessageID: messageID,
		UpdatedAt: time.Now(),
	}
	if err := r.stg.SetSlot(slot); err != nil {
		return nil, fmt.Errorf("store ticket slot: %w", err)
	}
	return slot, nil
}

// addEffect adds a reputation or ban delta to the slot of a ticket. Effects
// that can take the standing of a member away also drop the older bulletin
// roots from the window, so every scan pass proved from now on sees them.
func (r *Relay) addEffect(ticket *types.BigInt, repDelta, banDelta int64) (*types.TicketSlot, error) {
	r.bulletinMu.Lock()
	defer r.bulletinMu.Unlock()

	slot, err := r.stg.SlotByTicket(ticket)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: no bulletin slot for ticket %s", types.ErrNotFound, ticket)
	}
	if err != nil {
		return nil, err
	}
	slot.Reputation += repDelta
	slot.Bans += banDelta
	leaf := credential.EffectLeaf(ticket.MathBigInt(), slot.Reputation, slot.Bans)
	if _, err := r.bulletin.Update(slot.Position, leaf); err != nil {
		return nil, fmt.Errorf("update ticket slot: %w", err)
	}
	slot.Leaf = types.FromBig(leaf)
	slot.UpdatedAt = time.Now()
	if err := r.stg.SetSlot(slot); err != nil {
		return nil, fmt.Errorf("store ticket slot: %w", err)
	}
	if repDelta < 0 || banDelta > 0 {
		if err := r.bulletin.ForgetRecent(); err != nil {
			return nil, fmt.Errorf("reset bulletin window: %w", err)
		}
	}

	effectType := "rep"
	if banDelta != 0 {
		effectType = "ban"
	}
	r.metrics.Effects.WithLabelValues(effectType).Inc()
	log.Infow("callback effect published",
		"slot", slot.Position,
		"message", slot.MessageID,
		"repDelta", repDelta,
		"banDelta", banDelta)
	return slot, nil
}

// Settle adds the unsettled reputation signals on a message to the slot of
// its ticket. It returns nil when there was nothing to publish.
func (r *Relay) Settle(target string) (*types.TicketSlot, error) {
	ticket, err := r.tally.TicketOf(target)
	if err != nil {
		return nil, err
	}
	sum, n, err := r.tally.Settle(target)
	if err != nil {
		return nil, fmt.Errorf("settle signals on %s: %w", target, err)
	}
	if n == 0 || sum == 0 {
		log.Debugw("nothing to settle", "target", target, "signals", n)
		return nil, nil
	}
	return r.addEffect(ticket, sum, 0)
}

// SettleAll settles every message with pending signals and returns the
// number of slots updated.
func (r *Relay) SettleAll() (int, error) {
	targets, err := r.tally.UnsettledTargets()
	if err != nil {
		return 0, err
	}
	published := 0
	for _, target := range targets {
		slot, err := r.Settle(target)
		if err != nil {
			log.Warnw("settlement failed", "target", target, "error", err.Error())
			continue
		}
		if slot != nil {
			published++
		}
	}
	return published, nil
}

// Bulletin returns up to limit bulletin slots starting at position from,
// each with its witness against the current bulletin root.
func (r *Relay) Bulletin(from uint64, limit int) ([]*types.SlotWitness, error) {
	r.bulletinMu.Lock()
	defer r.bulletinMu.Unlock()
	slots, err := r.stg.Slots(from, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*types.SlotWitness, 0, len(slots))
	for _, slot := range slots {
		w, err := r.bulletin.WitnessAt(slot.Position)
		if err != nil {
			return nil, fmt.Errorf("witness of slot %d: %w", slot.Position, err)
		}
		out = append(out, &types.SlotWitness{Slot: slot, Witness: w})
	}
	return out, nil
}

// SlotFor returns the bulletin slot of a ticket with its witness against
// the current bulletin root.
func (r *Relay) SlotFor(ticket *types.BigInt) (*types.SlotWitness, error) {
	r.bulletinMu.Lock()
	defer r.bulletinMu.Unlock()
	slot, err := r.stg.SlotByTicket(ticket)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: no bulletin slot for ticket %s", types.ErrNotFound, ticket)
	}
	if err != nil {
		return nil, err
	}
	w, err := r.bulletin.WitnessAt(slot.Position)
	if err != nil {
		return nil, fmt.Errorf("witness of slot %d: %w", slot.Position, err)
	}
	return &types.SlotWitness{Slot: slot, Witness: w}, nil
}
