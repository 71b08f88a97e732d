package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/vocdoni/wispy/crypto"
	"github.com/vocdoni/wispy/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// SetSlot stores a callback bulletin slot, indexed by its position and by
// its ticket. Storing a slot again replaces it.
func (s *Storage) SetSlot(slot *types.TicketSlot) error {
	if slot == nil || slot.Ticket == nil {
		return fmt.Errorf("incomplete ticket slot")
	}
	val, err := encodeArtifact(slot)
	if err != nil {
		return err
	}
	wTx := s.db.WriteTx()
	defer wTx.Discard()
	if err := prefixeddb.NewPrefixedWriteTx(wTx, slotPrefix).Set(uint64Key(slot.Position), val); err != nil {
		return err
	}
	ticket := crypto.FieldBytes(slot.Ticket.MathBigInt())
	if err := prefixeddb.NewPrefixedWriteTx(wTx, slotTicketPrefix).Set(ticket, uint64Key(slot.Position)); err != nil {
		return err
	}
	return wTx.Commit()
}

// Slot returns the bulletin slot at a position.
func (s *Storage) Slot(position uint64) (*types.TicketSlot, error) {
	slot := &types.TicketSlot{}
	if err := s.getArtifact(slotPrefix, uint64Key(position), slot); err != nil {
		return nil, err
	}
	return slot, nil
}

// SlotByTicket returns the bulletin slot opened for a ticket.
func (s *Storage) SlotByTicket(ticket *types.BigInt) (*types.TicketSlot, error) {
	if ticket == nil {
		return nil, ErrNotFound
	}
	pr := prefixeddb.NewPrefixedReader(s.db, slotTicketPrefix)
	pos, err := pr.Get(crypto.FieldBytes(ticket.MathBigInt()))
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.Slot(binary.BigEndian.Uint64(pos))
}

// Slots returns up to limit bulletin slots starting at position from, in
// order. A non positive limit returns all of them.
func (s *Storage) Slots(from uint64, limit int) ([]*types.TicketSlot, error) {
	var slots []*types.TicketSlot
	var decodeErr error
	if err := s.iterate(slotPrefix, nil, func(k, v []byte) bool {
		if binary.BigEndian.Uint64(k) < from {
			return true
		}
		slot := &types.TicketSlot{}
		if decodeErr = decodeArtifact(v, slot); decodeErr != nil {
			return false
		}
		slots = append(slots, slot)
		return limit <= 0 || len(slots) < limit
	}); err != nil {
		return nil, fmt.Errorf("iterate slots: %w", err)
	}
	return slots, decodeErr
}
