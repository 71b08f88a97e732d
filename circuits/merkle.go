package circuits

import (
	"github.com/consensys/gnark/frontend"
)

// merkleRoot computes the root of a fixed depth MiMC Merkle tree from a
// leaf, its index and the sibling path ordered from the leaf level up. The
// index bits select on which side each sibling goes, matching the layout of
// storage/registry.
func merkleRoot(api frontend.API, leaf, index frontend.Variable, path []frontend.Variable) (frontend.Variable, error) {
	bits := api.ToBinary(index, len(path))
	cur := leaf
	for level, sibling := range path {
		left := api.Select(bits[level], sibling, cur)
		right := api.Select(bits[level], cur, sibling)
		var err error
		if cur, err = hash(api, left, right); err != nil {
			return nil, err
		}
	}
	return cur, nil
}
