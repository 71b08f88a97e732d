package storage

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/vocdoni/wispy/log"
)

// PushOutbox queues a payload for delivery and returns its key. Items are
// drained in insertion order. A reserved item is not handed out by
// NextOutbox until it is released, so the caller can try to deliver it
// right away.
func (s *Storage) PushOutbox(item *OutboxItem, reserve bool) ([]byte, error) {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	val, err := encodeArtifact(item)
	if err != nil {
		return nil, fmt.Errorf("encode outbox item: %w", err)
	}
	key := append(uint64Key(uint64(item.CreatedAt.UnixNano())), hashKey(val)...)

	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	if reserve {
		if err := s.setReservation(outboxReservePrefix, key); err != nil {
			return nil, err
		}
	}
	if err := s.setArtifact(outboxPrefix, key, item); err != nil {
		return nil, err
	}
	return key, nil
}

// NextOutbox returns the oldest non-reserved item and reserves it, along
// with its key. The key is used to mark the item as delivered or to release
// it after a failed attempt. If no items are available, returns
// ErrNoMoreElements.
func (s *Storage) NextOutbox() (*OutboxItem, []byte, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	var chosenKey, chosenVal []byte
	if err := s.iterate(outboxPrefix, nil, func(k, v []byte) bool {
		if s.isReserved(outboxReservePrefix, k) {
			return true
		}
		chosenKey = k
		chosenVal = v
		return false
	}); err != nil {
		return nil, nil, fmt.Errorf("iterate outbox: %w", err)
	}
	if chosenVal == nil {
		return nil, nil, ErrNoMoreElements
	}

	var item OutboxItem
	if err := decodeArtifact(chosenVal, &item); err != nil {
		return nil, nil, fmt.Errorf("decode outbox item: %w", err)
	}
	if err := s.setReservation(outboxReservePrefix, chosenKey); err != nil {
		return nil, nil, ErrNoMoreElements
	}
	return &item, chosenKey, nil
}

// MarkOutboxDone removes a delivered item and its reservation.
func (s *Storage) MarkOutboxDone(k []byte) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	if err := s.deleteArtifact(outboxReservePrefix, k); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete outbox reservation: %w", err)
	}
	if err := s.deleteArtifact(outboxPrefix, k); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete outbox item: %w", err)
	}
	return nil
}

// ReleaseOutbox records a failed delivery attempt and releases the
// reservation, so the item is retried. Items that reached maxAttempts are
// dropped (a non positive maxAttempts retries forever).
func (s *Storage) ReleaseOutbox(k []byte, cause error, maxAttempts int) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	var item OutboxItem
	if err := s.getArtifact(outboxPrefix, k, &item); err != nil {
		return fmt.Errorf("outbox item: %w", err)
	}
	item.Attempts++
	if cause != nil {
		item.LastError = cause.Error()
	}
	if maxAttempts > 0 && item.Attempts >= maxAttempts {
		log.Warnw("dropping undeliverable outbox item",
			"key", hex.EncodeToString(k),
			"message", item.MessageID,
			"attempts", item.Attempts,
			"error", item.LastError)
		if err := s.deleteArtifact(outboxPrefix, k); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	} else if err := s.setArtifact(outboxPrefix, k, &item); err != nil {
		return err
	}
	if err := s.deleteArtifact(outboxReservePrefix, k); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete outbox reservation: %w", err)
	}
	return nil
}

// OutboxSize returns the number of items waiting for delivery, reserved
// ones included.
func (s *Storage) OutboxSize() int {
	count := 0
	if err := s.iterate(outboxPrefix, nil, func(_, _ []byte) bool {
		count++
		return true
	}); err != nil {
		log.Warnw("failed to count outbox items", "error", err.Error())
	}
	return count
}
