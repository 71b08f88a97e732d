package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/vocdoni/wispy/crypto"
	"github.com/vocdoni/wispy/log"
	"github.com/vocdoni/wispy/types"
)

// SetPoll stores a poll, overwriting any previous version.
func (s *Storage) SetPoll(p *types.Poll) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("poll without id")
	}
	return s.setArtifact(pollPrefix, []byte(p.ID), p)
}

// Poll returns the poll with the given id. Returns ErrNotFound if it does
// not exist.
func (s *Storage) Poll(id string) (*types.Poll, error) {
	p := &types.Poll{}
	if err := s.getArtifact(pollPrefix, []byte(id), p); err != nil {
		return nil, err
	}
	return p, nil
}

// MarkPollEnforced flags a ban poll as enforced. It returns false if the
// poll was already enforced, so enforcement happens once.
func (s *Storage) MarkPollEnforced(id string) (bool, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	p, err := s.Poll(id)
	if err != nil {
		return false, err
	}
	if p.Enforced {
		return false, nil
	}
	p.Enforced = true
	return true, s.SetPoll(p)
}

func voteKey(pollID string, nullifier *types.BigInt) []byte {
	return joinKey([]byte(pollID), crypto.FieldBytes(nullifier.MathBigInt()))
}

// AddVote stores a vote record. The nullifier ledger guarantees a record is
// never added twice; if it happens anyway the existing record is kept.
func (s *Storage) AddVote(v *VoteRecord) error {
	if v == nil || v.PollID == "" || v.Nullifier == nil {
		return fmt.Errorf("incomplete vote record")
	}
	key := voteKey(v.PollID, v.Nullifier)
	existing := &VoteRecord{}
	if err := s.getArtifact(votePrefix, key, existing); err == nil {
		log.Warnw("vote record already stored", "poll", v.PollID, "nullifier", v.Nullifier.String())
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	return s.setArtifact(votePrefix, key, v)
}

// Votes returns every vote record of a poll.
func (s *Storage) Votes(pollID string) ([]*VoteRecord, error) {
	var votes []*VoteRecord
	var decodeErr error
	if err := s.iterate(votePrefix, joinKey([]byte(pollID), nil), func(_, v []byte) bool {
		r := &VoteRecord{}
		if err := decodeArtifact(v, r); err != nil {
			decodeErr = err
			return false
		}
		votes = append(votes, r)
		return true
	}); err != nil {
		return nil, fmt.Errorf("iterate votes: %w", err)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return votes, nil
}
