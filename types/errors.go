package types

import "errors"

var (
	// ErrValidation is returned when a parameter is malformed or out of range.
	// It is always detected before any proving work or network call.
	ErrValidation = errors.New("validation error")
	// ErrStaleWitness is returned when the membership root used by a proof
	// is no longer accepted. The credential must scan before retrying.
	ErrStaleWitness = errors.New("stale membership witness")
	// ErrProofGeneration is returned when the proof backend fails. Retrying
	// the generation is safe.
	ErrProofGeneration = errors.New("proof generation failed")
	// ErrProofRejected is returned when a proof does not verify.
	ErrProofRejected = errors.New("proof rejected")
	// ErrDuplicateNullifier is returned when the action was already performed.
	ErrDuplicateNullifier = errors.New("duplicate nullifier")
	// ErrTransport is returned when the payload could not be delivered after
	// the interaction was accepted. The acceptance is not rolled back.
	ErrTransport = errors.New("transport delivery failed")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPolicy is returned when a valid interaction is refused by a relay
	// policy (closed poll, ban threshold not reached, unknown badge...).
	ErrPolicy = errors.New("policy rejected")
)
