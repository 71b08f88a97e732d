package storage

import (
	"errors"
	"fmt"

	"github.com/vocdoni/wispy/log"
)

// SetMessage stores an accepted message, overwriting any previous version.
func (s *Storage) SetMessage(m *Message) error {
	if m == nil || m.ID == "" {
		return fmt.Errorf("message without id")
	}
	return s.setArtifact(messagePrefix, []byte(m.ID), m)
}

// Message returns the message with the given relay id. Returns ErrNotFound
// if it does not exist.
func (s *Storage) Message(id string) (*Message, error) {
	m := &Message{}
	if err := s.getArtifact(messagePrefix, []byte(id), m); err != nil {
		return nil, err
	}
	return m, nil
}

// SetTransportID records the transport identifier of a delivered message.
func (s *Storage) SetTransportID(id, transportID string) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	m, err := s.Message(id)
	if err != nil {
		return fmt.Errorf("message %s: %w", id, err)
	}
	m.TransportID = transportID
	return s.setArtifact(messagePrefix, []byte(id), m)
}

// TransportID returns the transport identifier of a message, empty if the
// message is unknown or not delivered yet.
func (s *Storage) TransportID(id string) string {
	m, err := s.Message(id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Warnw("could not read message", "id", id, "error", err.Error())
		}
		return ""
	}
	return m.TransportID
}
