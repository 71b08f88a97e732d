package circuits

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/wispy/credential"
	"github.com/vocdoni/wispy/crypto"
	"github.com/vocdoni/wispy/types"
)

// Assign builds the full witness of a transition. The public inputs are
// taken from t.Inputs, whose Root and EffectRoot must already match the
// membership witness and the slot witnesses. Slots must be given in the
// same order as cb.Folds.
func Assign(t *credential.Transition, cb *credential.Callback, membership *types.MerkleWitness,
	slots []*types.SlotWitness,
) (*InteractionCircuit, error) {
	if t == nil || cb == nil || t.Old == nil || t.Inputs == nil {
		return nil, fmt.Errorf("%w: incomplete transition", types.ErrValidation)
	}
	kind := t.Kind
	c := PublicAssignment(t.Inputs)
	c.kind = kind

	old := t.Old
	secret := old.Secret.MathBigInt()
	c.Secret = secret
	c.Reputation = crypto.SignedToFF(old.Reputation)
	c.Bans = crypto.SignedToFF(old.Bans)
	c.Pseudonyms = old.Pseudonyms
	c.Nonce = old.Nonce
	c.Tickets = old.Tickets
	c.Cursor = old.Cursor
	c.PassRep = crypto.SignedToFF(old.PassRep)
	c.PassBans = crypto.SignedToFF(old.PassBans)
	c.SinceScan = old.SinceScan
	c.PseudoIndex = cb.PseudoIndex
	c.PseudoIndex2 = cb.PseudoIndex2

	c.Index = 0
	for i := range c.Path {
		c.Path[i] = 0
	}
	if kind.RequiresMembership() {
		if err := checkWitness(membership, old.Commitment(), t.Inputs.Root); err != nil {
			return nil, fmt.Errorf("membership witness: %w", err)
		}
		c.Index = membership.Index
		for i, s := range membership.Siblings {
			c.Path[i] = s.MathBigInt()
		}
	}

	if len(slots) != len(cb.Folds) {
		return nil, fmt.Errorf("%w: %d tickets folded but %d slot witnesses given",
			types.ErrValidation, len(cb.Folds), len(slots))
	}
	for i := range c.Folds {
		f := &c.Folds[i]
		f.Enabled, f.Reputation, f.Bans, f.Index = 0, 0, 0, 0
		for j := range f.Path {
			f.Path[j] = 0
		}
		if i >= len(cb.Folds) {
			continue
		}
		eff, sw := cb.Folds[i], slots[i]
		if sw == nil {
			return nil, fmt.Errorf("%w: missing slot witness %d", types.ErrValidation, i)
		}
		if err := checkWitness(sw.Witness, eff.Leaf(secret), t.Inputs.EffectRoot); err != nil {
			return nil, fmt.Errorf("slot witness %d: %w", i, err)
		}
		f.Enabled = 1
		f.Reputation = crypto.SignedToFF(eff.Reputation)
		f.Bans = crypto.SignedToFF(eff.Bans)
		f.Index = sw.Witness.Index
		for j, s := range sw.Witness.Siblings {
			f.Path[j] = s.MathBigInt()
		}
	}
	return c, nil
}

// checkWitness verifies a Merkle witness is usable for the given leaf and
// root before handing it to the solver, which would only report an
// unsatisfied constraint.
func checkWitness(w *types.MerkleWitness, leaf *big.Int, root *types.BigInt) error {
	if w == nil {
		return fmt.Errorf("%w: missing witness", types.ErrValidation)
	}
	if len(w.Siblings) != types.TreeDepth {
		return fmt.Errorf("%w: expected %d siblings, got %d", types.ErrValidation, types.TreeDepth, len(w.Siblings))
	}
	if w.Leaf.MathBigInt().Cmp(leaf) != 0 {
		return fmt.Errorf("%w: witness is for another leaf", types.ErrValidation)
	}
	if !w.Root.Equal(root) {
		return fmt.Errorf("%w: witness root differs from the public root", types.ErrValidation)
	}
	return nil
}

// PublicAssignment returns an assignment with only the public inputs set,
// as needed to build the public witness a proof is verified against.
func PublicAssignment(in *types.PublicInputs) *InteractionCircuit {
	return &InteractionCircuit{
		kind:            in.Kind,
		Kind:            uint64(in.Kind),
		Root:            in.Root.MathBigInt(),
		StateNullifier:  in.StateNullifier.MathBigInt(),
		NewCommitment:   in.NewCommitment.MathBigInt(),
		ActionNullifier: in.ActionNullifier.MathBigInt(),
		Target:          in.Target.MathBigInt(),
		Payload:         in.Payload.MathBigInt(),
		Tag:             in.Tag.MathBigInt(),
		Tag2:            in.Tag2.MathBigInt(),
		Ticket:          in.Ticket.MathBigInt(),
		Delta:           in.Delta.MathBigInt(),
		Threshold:       in.Threshold.MathBigInt(),
		EffectRoot:      in.EffectRoot.MathBigInt(),
	}
}

// PublicInputs reads the public inputs back from an assignment.
func (c *InteractionCircuit) PublicInputs() (*types.PublicInputs, error) {
	values := []frontend.Variable{
		c.Kind, c.Root, c.StateNullifier, c.NewCommitment, c.ActionNullifier, c.Target,
		c.Payload, c.Tag, c.Tag2, c.Ticket, c.Delta, c.Threshold, c.EffectRoot,
	}
	ints := make([]*big.Int, len(values))
	for i, v := range values {
		bi, err := variableToBig(v)
		if err != nil {
			return nil, fmt.Errorf("public input %d: %w", i, err)
		}
		ints[i] = bi
	}
	if !ints[0].IsUint64() || ints[0].Uint64() > 255 {
		return nil, fmt.Errorf("%w: invalid kind input", types.ErrValidation)
	}
	in := &types.PublicInputs{
		Kind:            types.Kind(ints[0].Uint64()),
		Root:            types.FromBig(ints[1]),
		StateNullifier:  types.FromBig(ints[2]),
		NewCommitment:   types.FromBig(ints[3]),
		ActionNullifier: types.FromBig(ints[4]),
		Target:          types.FromBig(ints[5]),
		Payload:         types.FromBig(ints[6]),
		Tag:             types.FromBig(ints[7]),
		Tag2:            types.FromBig(ints[8]),
		Ticket:          types.FromBig(ints[9]),
		Delta:           types.FromBig(ints[10]),
		Threshold:       types.FromBig(ints[11]),
		EffectRoot:      types.FromBig(ints[12]),
	}
	return in, nil
}

func variableToBig(v frontend.Variable) (*big.Int, error) {
	switch x := v.(type) {
	case *big.Int:
		if x == nil {
			return nil, fmt.Errorf("nil value")
		}
		return new(big.Int).Set(x), nil
	case big.Int:
		return new(big.Int).Set(&x), nil
	case uint64:
		return new(big.Int).SetUint64(x), nil
	case int64:
		return crypto.SignedToFF(x), nil
	case int:
		return crypto.SignedToFF(int64(x)), nil
	case nil:
		return nil, fmt.Errorf("unassigned value")
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}
