package zk

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/wispy/circuits"
	"github.com/vocdoni/wispy/crypto"
	"github.com/vocdoni/wispy/log"
	"github.com/vocdoni/wispy/types"
	"golang.org/x/sync/singleflight"
)

// Groth16Name is the name of the Groth16 backend.
const Groth16Name = "groth16"

// KeyProvider returns the serialized keys of the circuit of a kind,
// compiled as ccs.
type KeyProvider interface {
	Keys(ctx context.Context, kind types.Kind, ccs constraint.ConstraintSystem) (*circuits.CircuitArtifacts, error)
}

type circuitKeys struct {
	ccs      constraint.ConstraintSystem
	pk       groth16.ProvingKey
	vk       groth16.VerifyingKey
	manifest *types.CircuitManifest
	raw      *circuits.CircuitArtifacts
}

// Groth16Backend proves and verifies over BN254 with Groth16. The circuit of
// each kind is compiled and its keys loaded the first time it is used.
type Groth16Backend struct {
	provider KeyProvider

	mu    sync.RWMutex
	keys  map[types.Kind]*circuitKeys
	group singleflight.Group
}

// NewGroth16Backend returns a Groth16 backend taking its keys from provider.
func NewGroth16Backend(provider KeyProvider) *Groth16Backend {
	return &Groth16Backend{
		provider: provider,
		keys:     make(map[types.Kind]*circuitKeys),
	}
}

func (*Groth16Backend) Name() string {
	return Groth16Name
}

// Warmup loads the keys of the given kinds, so the first interactions do
// not pay for it.
func (b *Groth16Backend) Warmup(ctx context.Context, kinds ...types.Kind) error {
	for _, kind := range kinds {
		if _, err := b.load(ctx, kind); err != nil {
			return err
		}
	}
	return nil
}

func (b *Groth16Backend) load(ctx context.Context, kind types.Kind) (*circuitKeys, error) {
	b.mu.RLock()
	k, ok := b.keys[kind]
	b.mu.RUnlock()
	if ok {
		return k, nil
	}
	v, err, _ := b.group.Do(kind.String(), func() (any, error) {
		b.mu.RLock()
		k, ok := b.keys[kind]
		b.mu.RUnlock()
		if ok {
			return k, nil
		}
		startTime := time.Now()
		ccs, err := circuits.Compile(kind)
		if err != nil {
			return nil, err
		}
		raw, err := b.provider.Keys(ctx, kind, ccs)
		if err != nil {
			return nil, fmt.Errorf("load %s keys: %w", kind, err)
		}
		k = &circuitKeys{ccs: ccs, raw: raw}
		if k.pk, err = circuits.DecodeProvingKey(raw.ProvingKey()); err != nil {
			return nil, err
		}
		if k.vk, err = circuits.DecodeVerifyingKey(raw.VerifyingKey()); err != nil {
			return nil, err
		}
		k.manifest = &types.CircuitManifest{
			Kind:             kind,
			Backend:          Groth16Name,
			Constraints:      ccs.GetNbConstraints(),
			ProvingKeyHash:   circuits.ArtifactHash(raw.ProvingKey()),
			VerifyingKeyHash: circuits.ArtifactHash(raw.VerifyingKey()),
		}
		b.mu.Lock()
		b.keys[kind] = k
		b.mu.Unlock()
		log.Infow("circuit keys loaded", "kind", kind.String(),
			"constraints", k.manifest.Constraints, "took", time.Since(startTime).String())
		return k, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*circuitKeys), nil
}

func (b *Groth16Backend) Prove(ctx context.Context, a *circuits.InteractionCircuit) ([]byte, error) {
	kind := a.CircuitKind()
	k, err := b.load(ctx, kind)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	witness, err := frontend.NewWitness(a, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("failed to create witness: %w", err)
	}
	proof, err := groth16.Prove(k.ccs, k.pk, witness)
	if err != nil {
		return nil, fmt.Errorf("failed to generate proof: %w", err)
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode proof: %w", err)
	}
	return buf.Bytes(), nil
}

func (b *Groth16Backend) Verify(kind types.Kind, proofBytes []byte, inputs *types.PublicInputs) error {
	if inputs == nil || inputs.Kind != kind {
		return rejected("public inputs do not match the %s circuit", kind)
	}
	for _, v := range inputs.Values() {
		if v.Sign() < 0 || v.Cmp(crypto.Field) >= 0 {
			return rejected("public input out of the field")
		}
	}
	k, err := b.load(context.Background(), kind)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrProofRejected, err)
	}
	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return rejected("malformed proof: %v", err)
	}
	public, err := frontend.NewWitness(circuits.PublicAssignment(inputs), ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return rejected("malformed public inputs: %v", err)
	}
	if err := groth16.Verify(proof, k.vk, public); err != nil {
		return rejected("%v", err)
	}
	return nil
}

// Manifest returns the artifact hashes of the circuit of a kind.
func (b *Groth16Backend) Manifest(ctx context.Context, kind types.Kind) (*types.CircuitManifest, error) {
	k, err := b.load(ctx, kind)
	if err != nil {
		return nil, err
	}
	return k.manifest, nil
}

// Artifact returns the serialized proving or verifying key of a kind.
func (b *Groth16Backend) Artifact(ctx context.Context, kind types.Kind, name string) ([]byte, error) {
	k, err := b.load(ctx, kind)
	if err != nil {
		return nil, err
	}
	switch name {
	case ArtifactProvingKey:
		return k.raw.ProvingKey(), nil
	case ArtifactVerifyingKey:
		return k.raw.VerifyingKey(), nil
	}
	return nil, fmt.Errorf("%w: artifact %q", types.ErrNotFound, name)
}
