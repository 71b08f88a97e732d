// Package zk provides the proof backends the interaction circuits are
// proven and verified with. Backends are selected at construction time and
// are safe for concurrent use.
package zk

import (
	"context"
	"fmt"

	"github.com/vocdoni/wispy/circuits"
	"github.com/vocdoni/wispy/types"
)

// Names of the proving artifacts served by a KeyServer.
const (
	ArtifactProvingKey   = "proving-key"
	ArtifactVerifyingKey = "verifying-key"
)

// Backend proves and verifies interaction circuits. The circuit of an
// interaction is identified by its kind.
type Backend interface {
	// Name identifies the backend, relays and members must use the same.
	Name() string
	// Prove returns the proof of a full assignment. It may block for a
	// long time and stops early only if ctx is done before the backend
	// starts proving.
	Prove(ctx context.Context, assignment *circuits.InteractionCircuit) ([]byte, error)
	// Verify returns nil if the proof is valid for the public inputs. Any
	// failure wraps types.ErrProofRejected.
	Verify(kind types.Kind, proof []byte, inputs *types.PublicInputs) error
}

// KeyServer is implemented by backends whose artifacts can be distributed
// to members.
type KeyServer interface {
	Manifest(ctx context.Context, kind types.Kind) (*types.CircuitManifest, error)
	Artifact(ctx context.Context, kind types.Kind, name string) ([]byte, error)
}

// New returns the backend with the given name. Groth16 backends created
// here generate their own keys.
func New(name string) (Backend, error) {
	switch name {
	case SolverName:
		return NewSolverBackend(), nil
	case Groth16Name:
		return NewGroth16Backend(&LocalSetup{}), nil
	}
	return nil, fmt.Errorf("%w: unknown proof backend %q", types.ErrValidation, name)
}

func rejected(format string, args ...any) error {
	return fmt.Errorf("%w: %s", types.ErrProofRejected, fmt.Sprintf(format, args...))
}
