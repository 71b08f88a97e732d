package storage

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/vocdoni/wispy/crypto"
	"github.com/vocdoni/wispy/types"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

func signalKey(target string, nullifier *types.BigInt) []byte {
	return joinKey([]byte(target), crypto.FieldBytes(nullifier.MathBigInt()))
}

// AddRepSignal stores an accepted reputation signal, unsettled.
func (s *Storage) AddRepSignal(r *RepSignal) error {
	if r == nil || r.Target == "" || r.Nullifier == nil {
		return fmt.Errorf("incomplete reputation signal")
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	key := signalKey(r.Target, r.Nullifier)
	if err := s.getArtifact(signalPrefix, key, &RepSignal{}); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	r.Settled = false
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	return s.setArtifact(signalPrefix, key, r)
}

// RepSignals returns every signal on a target message.
func (s *Storage) RepSignals(target string) ([]*RepSignal, error) {
	var signals []*RepSignal
	var decodeErr error
	if err := s.iterate(signalPrefix, joinKey([]byte(target), nil), func(_, v []byte) bool {
		r := &RepSignal{}
		if decodeErr = decodeArtifact(v, r); decodeErr != nil {
			return false
		}
		signals = append(signals, r)
		return true
	}); err != nil {
		return nil, fmt.Errorf("iterate signals: %w", err)
	}
	return signals, decodeErr
}

// SettleRepSignals marks every unsettled signal of a target as settled and
// returns the sum of their deltas and how many they were. Signals added
// concurrently are either included or left for the next settlement.
func (s *Storage) SettleRepSignals(target string) (int64, int, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	signals, err := s.RepSignals(target)
	if err != nil {
		return 0, 0, err
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), signalPrefix)
	defer wTx.Discard()
	var sum int64
	count := 0
	for _, r := range signals {
		if r.Settled {
			continue
		}
		r.Settled = true
		val, err := encodeArtifact(r)
		if err != nil {
			return 0, 0, err
		}
		if err := wTx.Set(signalKey(target, r.Nullifier), val); err != nil {
			return 0, 0, err
		}
		sum += r.Delta
		count++
	}
	if count == 0 {
		return 0, 0, nil
	}
	if err := wTx.Commit(); err != nil {
		return 0, 0, err
	}
	return sum, count, nil
}

// UnsettledTargets returns the target messages with unsettled signals.
func (s *Storage) UnsettledTargets() ([]string, error) {
	var targets []string
	var decodeErr error
	if err := s.iterate(signalPrefix, nil, func(k, v []byte) bool {
		r := &RepSignal{}
		if decodeErr = decodeArtifact(v, r); decodeErr != nil {
			return false
		}
		if r.Settled {
			return true
		}
		target, _, _ := bytes.Cut(k, []byte{'/'})
		if len(targets) == 0 || targets[len(targets)-1] != string(target) {
			targets = append(targets, string(target))
		}
		return true
	}); err != nil {
		return nil, fmt.Errorf("iterate signals: %w", err)
	}
	return targets, decodeErr
}
