package crypto

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
)

const SerializedFieldSize = 32 // bytes

// Field is the scalar field of BN254, where every credential value, hash
// and public input lives.
var Field = ecc.BN254.ScalarField()

// FieldBytes returns the 32 bytes big-endian representation of the input
// reduced to the field. The circuit reduces its inputs during the witness
// calculation, so hashing an unreduced value natively would produce a
// different result.
func FieldBytes(input *big.Int) []byte {
	return BigToFF(Field, input).FillBytes(make([]byte, SerializedFieldSize))
}

// BigToFF function returns the finite field representation of the big.Int
// provided. It uses the curve scalar field to represent the provided number.
func BigToFF(baseField, iv *big.Int) *big.Int {
	z := big.NewInt(0)
	if c := iv.Cmp(baseField); c == 0 {
		return z
	} else if c != 1 && iv.Cmp(z) != -1 {
		return iv
	}
	return z.Mod(iv, baseField)
}

// SignedToFF maps a signed integer to the field, negatives wrapping around
// the modulus.
func SignedToFF(v int64) *big.Int {
	return BigToFF(Field, big.NewInt(v))
}

// FFToSigned is the inverse of SignedToFF for values in the int64 range. It
// returns false if the element does not encode such a value.
func FFToSigned(e *big.Int) (int64, bool) {
	if e.IsInt64() {
		return e.Int64(), true
	}
	neg := new(big.Int).Sub(e, Field)
	if neg.IsInt64() {
		return neg.Int64(), true
	}
	return 0, false
}
