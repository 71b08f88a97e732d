package zk

import (
	"bytes"
	"context"
	"fmt"

	"github.com/consensys/gnark/test"
	"github.com/vocdoni/wispy/circuits"
	"github.com/vocdoni/wispy/crypto"
	"github.com/vocdoni/wispy/crypto/hash/mimc"
	"github.com/vocdoni/wispy/types"
)

// SolverName is the name of the solver backend.
const SolverName = "solver"

// solverDomain separates solver attestations from every other hash.
const solverDomain = uint64(0x50)

// SolverBackend checks the assignment against the circuit constraints
// without producing a zero-knowledge proof. The "proof" is a hash binding
// the public inputs, so it only attests that a solved assignment existed to
// whoever trusts the prover. It is meant for tests and development relays.
type SolverBackend struct{}

// NewSolverBackend returns a solver backend.
func NewSolverBackend() *SolverBackend {
	return &SolverBackend{}
}

func (*SolverBackend) Name() string {
	return SolverName
}

func (*SolverBackend) Prove(ctx context.Context, a *circuits.InteractionCircuit) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kind := a.CircuitKind()
	inputs, err := a.PublicInputs()
	if err != nil {
		return nil, err
	}
	if inputs.Kind != kind {
		return nil, fmt.Errorf("assignment of kind %s for a %s circuit", inputs.Kind, kind)
	}
	if err := test.IsSolved(circuits.Placeholder(kind), a, crypto.Field); err != nil {
		return nil, fmt.Errorf("unsatisfied %s circuit: %w", kind, err)
	}
	return attestation(inputs), nil
}

func (*SolverBackend) Verify(kind types.Kind, proof []byte, inputs *types.PublicInputs) error {
	if inputs == nil || inputs.Kind != kind {
		return rejected("public inputs do not match the %s circuit", kind)
	}
	if !bytes.Equal(proof, attestation(inputs)) {
		return rejected("invalid %s attestation", kind)
	}
	return nil
}

func attestation(inputs *types.PublicInputs) []byte {
	return crypto.FieldBytes(mimc.HashUint(solverDomain, inputs.Values()...))
}
