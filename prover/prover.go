// Package prover turns a credential and a callback into an interaction proof
// the relay can verify, without advancing the credential state.
package prover

import (
	"context"
	"fmt"
	"time"

	"github.com/vocdoni/wispy/circuits"
	"github.com/vocdoni/wispy/credential"
	"github.com/vocdoni/wispy/log"
	"github.com/vocdoni/wispy/types"
	"github.com/vocdoni/wispy/zk"
)

// DefaultTimeout bounds a single proof generation.
const DefaultTimeout = 5 * time.Minute

// Request holds everything needed to prove one interaction.
type Request struct {
	Credential *credential.Credential
	Callback   *credential.Callback
	Payload    *types.Payload
	// Membership defaults to the witness stored in the credential.
	Membership *types.MerkleWitness
	// Slots are the bulletin witnesses of Callback.Folds, in order.
	Slots []*types.SlotWitness
}

// Result is a proof ready to be submitted, with the transition to record as
// pending until the relay acknowledges it.
type Result struct {
	Proof      *types.InteractionProof
	Transition *credential.Transition
	Took       time.Duration
}

// Prover generates interaction proofs with a proof backend.
type Prover struct {
	backend zk.Backend
	timeout time.Duration
}

// New returns a prover. A zero timeout means DefaultTimeout.
func New(backend zk.Backend, timeout time.Duration) *Prover {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prover{backend: backend, timeout: timeout}
}

// Prove validates the request locally, computes the transition and proves
// it. Validation errors wrap types.ErrValidation and happen before any
// proving work; backend failures and timeouts wrap types.ErrProofGeneration.
func (p *Prover) Prove(ctx context.Context, req *Request) (*Result, error) {
	if req == nil || req.Credential == nil || req.Callback == nil {
		return nil, fmt.Errorf("%w: incomplete proof request", types.ErrValidation)
	}
	kind := req.Callback.Kind
	if err := credential.CheckPayload(kind, req.Payload); err != nil {
		return nil, err
	}
	t, err := req.Credential.Apply(req.Callback)
	if err != nil {
		return nil, err
	}

	membership := req.Membership
	if membership == nil {
		membership = req.Credential.Witness
	}
	if kind.RequiresMembership() {
		if membership == nil {
			return nil, fmt.Errorf("%w: no membership witness, scan first", types.ErrValidation)
		}
		t.Inputs.Root = membership.Root
	}
	for i, s := range req.Slots {
		if s == nil || s.Witness == nil {
			return nil, fmt.Errorf("%w: missing slot witness %d", types.ErrValidation, i)
		}
		if i > 0 && !s.Witness.Root.Equal(t.Inputs.EffectRoot) {
			return nil, fmt.Errorf("%w: slot witnesses of different bulletin roots", types.ErrValidation)
		}
		t.Inputs.EffectRoot = s.Witness.Root
	}
	assignment, err := circuits.Assign(t, req.Callback, membership, req.Slots)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()
	proof, err := p.prove(ctx, assignment)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrProofGeneration, kind, err)
	}
	took := time.Since(startTime)
	log.Debugw("interaction proof generated", "kind", kind.String(),
		"backend", p.backend.Name(), "took", took.String())
	return &Result{
		Proof: &types.InteractionProof{
			Inputs:  t.Inputs,
			Proof:   proof,
			Payload: req.Payload,
		},
		Transition: t,
		Took:       took,
	}, nil
}

// prove runs the backend in its own goroutine so the caller is released as
// soon as the context is done, even if the backend cannot be interrupted.
func (p *Prover) prove(ctx context.Context, a *circuits.InteractionCircuit) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	type result struct {
		proof []byte
		err   error
	}
	done := make(chan result, 1)
	go func() {
		proof, err := p.backend.Prove(ctx, a)
		done <- result{proof, err}
	}()
	select {
	case r := <-done:
		return r.proof, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
