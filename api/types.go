package api

import "github.com/vocdoni/wispy/types"

// RegistryResponse is the current state of the membership registry.
type RegistryResponse struct {
	Root       *types.BigInt `json:"root"`
	Version    uint64        `json:"version"`
	RootWindow int           `json:"rootWindow"`
}

// BulletinResponse lists callback bulletin slots with their witnesses,
// all against the same bulletin root.
type BulletinResponse struct {
	Entries []*types.SlotWitness `json:"entries"`
}

// SettleResponse is the slot updated by a settlement, nil if the signals
// cancelled out.
type SettleResponse struct {
	Slot *types.TicketSlot `json:"slot,omitempty"`
}
