package storage

import (
	"fmt"
	"time"

	"github.com/vocdoni/wispy/crypto"
	"github.com/vocdoni/wispy/types"
)

// AddBadge stores a claimed badge.
func (s *Storage) AddBadge(b *types.Badge) error {
	if b == nil || b.BadgeID == "" || b.PseudonymTag == nil {
		return fmt.Errorf("incomplete badge")
	}
	if b.ClaimedAt.IsZero() {
		b.ClaimedAt = time.Now()
	}
	key := joinKey([]byte(b.BadgeID), crypto.FieldBytes(b.PseudonymTag.MathBigInt()))
	return s.setArtifact(badgePrefix, key, b)
}

// Badges returns the claims of a badge.
func (s *Storage) Badges(badgeID string) ([]*types.Badge, error) {
	var badges []*types.Badge
	var decodeErr error
	if err := s.iterate(badgePrefix, joinKey([]byte(badgeID), nil), func(_, v []byte) bool {
		b := &types.Badge{}
		if decodeErr = decodeArtifact(v, b); decodeErr != nil {
			return false
		}
		badges = append(badges, b)
		return true
	}); err != nil {
		return nil, fmt.Errorf("iterate badges: %w", err)
	}
	return badges, decodeErr
}
