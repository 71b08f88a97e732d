// Package mimc computes MiMC hashes over the BN254 scalar field. The output
// matches the gnark std/hash/mimc gadget fed with the same elements, which
// is what the interaction circuits use.
package mimc

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/vocdoni/wispy/crypto"
)

// Hash returns the MiMC hash of the inputs. Each input is reduced to the
// field first.
func Hash(inputs ...*big.Int) *big.Int {
	h := mimc.NewMiMC()
	for _, in := range inputs {
		if in == nil {
			in = new(big.Int)
		}
		// inputs are reduced, Write cannot fail
		_, _ = h.Write(crypto.FieldBytes(in))
	}
	var out fr.Element
	out.SetBytes(h.Sum(nil))
	return out.BigInt(new(big.Int))
}

// HashUint is a convenience wrapper of Hash for small integer inputs mixed
// with big numbers, typically a domain separator first.
func HashUint(domain uint64, inputs ...*big.Int) *big.Int {
	return Hash(append([]*big.Int{new(big.Int).SetUint64(domain)}, inputs...)...)
}

// Node returns the hash of an inner Merkle tree node.
func Node(left, right *big.Int) *big.Int {
	return Hash(left, right)
}

// ZeroHashes returns the root of an empty subtree for every level from 0
// (an empty leaf, zero) to depth.
func ZeroHashes(depth int) []*big.Int {
	zeros := make([]*big.Int, depth+1)
	zeros[0] = new(big.Int)
	for i := 1; i <= depth; i++ {
		zeros[i] = Node(zeros[i-1], zeros[i-1])
	}
	return zeros
}
