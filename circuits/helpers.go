package circuits

import (
	"bytes"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/vocdoni/wispy/log"
	"github.com/vocdoni/wispy/types"
)

// Compile compiles the interaction circuit of a kind to a BN254 R1CS.
// Compilation is deterministic, so keys generated for the result of one
// call are valid for any other.
func Compile(kind types.Kind) (constraint.ConstraintSystem, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %d", types.ErrValidation, kind)
	}
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, Placeholder(kind),
		frontend.IgnoreUnconstrainedInputs())
	if err != nil {
		return nil, fmt.Errorf("compile %s circuit: %w", kind, err)
	}
	log.Debugw("circuit compiled", "kind", kind.String(), "constraints", ccs.GetNbConstraints())
	return ccs, nil
}

// EncodeProvingKey serializes a proving key in its raw form.
func EncodeProvingKey(pk groth16.ProvingKey) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := pk.WriteRawTo(&buf); err != nil {
		return nil, fmt.Errorf("encode proving key: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeProvingKey parses a proving key written by EncodeProvingKey.
func DecodeProvingKey(data []byte) (groth16.ProvingKey, error) {
	pk := groth16.NewProvingKey(ecc.BN254)
	if _, err := pk.UnsafeReadFrom(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("decode proving key: %w", err)
	}
	return pk, nil
}

// EncodeVerifyingKey serializes a verifying key in its raw form.
func EncodeVerifyingKey(vk groth16.VerifyingKey) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := vk.WriteRawTo(&buf); err != nil {
		return nil, fmt.Errorf("encode verifying key: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeVerifyingKey parses a verifying key written by EncodeVerifyingKey.
func DecodeVerifyingKey(data []byte) (groth16.VerifyingKey, error) {
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("decode verifying key: %w", err)
	}
	return vk, nil
}
