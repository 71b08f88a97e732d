// Package poseidon digests arbitrary data (payloads, message identifiers)
// into BN254 field elements.
package poseidon

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
)

// MultiPoseidon hashes up to 256 field elements, chunking them in groups of
// 16 (the maximum poseidon width) and hashing the chunk hashes.
func MultiPoseidon(inputs ...*big.Int) (*big.Int, error) {
	if len(inputs) > 256 {
		return nil, fmt.Errorf("too many inputs")
	} else if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs provided")
	}
	hashes := []*big.Int{}
	chunk := []*big.Int{}
	for _, input := range inputs {
		if len(chunk) == 16 {
			hash, err := poseidon.Hash(chunk)
			if err != nil {
				return nil, err
			}
			hashes = append(hashes, hash)
			chunk = []*big.Int{}
		}
		chunk = append(chunk, input)
	}
	if len(chunk) > 0 {
		hash, err := poseidon.Hash(chunk)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, hash)
	}
	if len(hashes) == 1 {
		return hashes[0], nil
	}
	return poseidon.Hash(hashes)
}

// HashBytes digests an arbitrary byte slice into a field element.
func HashBytes(data []byte) (*big.Int, error) {
	return poseidon.HashBytes(data)
}

// HashString digests a string into a field element. The empty string
// digests to zero.
func HashString(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	return poseidon.HashBytes([]byte(s))
}
