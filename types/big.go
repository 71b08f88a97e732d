package types

import (
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// BigInt is a big.Int wrapper which marshals JSON to a string
// representation of the big number. Note that a nil pointer value marshals
// as the empty string.
type BigInt big.Int

// NewInt returns a BigInt holding x.
func NewInt(x int64) *BigInt {
	return (*BigInt)(big.NewInt(x))
}

// FromBig wraps a copy of x. A nil x returns a zero BigInt.
func FromBig(x *big.Int) *BigInt {
	if x == nil {
		return new(BigInt)
	}
	return (*BigInt)(new(big.Int).Set(x))
}

// MathBigInt converts i to the *big.Int type. A nil receiver returns zero.
func (i *BigInt) MathBigInt() *big.Int {
	if i == nil {
		return new(big.Int)
	}
	return (*big.Int)(i)
}

// Equal reports whether both numbers hold the same value. Nil equals zero.
func (i *BigInt) Equal(j *BigInt) bool {
	return i.MathBigInt().Cmp(j.MathBigInt()) == 0
}

// IsZero reports whether i is nil or zero.
func (i *BigInt) IsZero() bool {
	return i.MathBigInt().Sign() == 0
}

// Bytes returns the 32 bytes big-endian representation of i.
func (i *BigInt) Bytes() []byte {
	return i.MathBigInt().FillBytes(make([]byte, 32))
}

func (i *BigInt) String() string {
	return i.MathBigInt().String()
}

// MarshalText implements encoding.TextMarshaler.
func (i *BigInt) MarshalText() ([]byte, error) {
	return i.MathBigInt().MarshalText()
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *BigInt) UnmarshalText(data []byte) error {
	if i == nil {
		return fmt.Errorf("cannot unmarshal into nil BigInt")
	}
	if _, ok := (*big.Int)(i).SetString(string(data), 0); !ok {
		return fmt.Errorf("invalid big number: %q", data)
	}
	return nil
}

// MarshalCBOR encodes the number using the CBOR bignum tags.
func (i *BigInt) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(i.MathBigInt())
}

// UnmarshalCBOR decodes a CBOR bignum.
func (i *BigInt) UnmarshalCBOR(data []byte) error {
	var b big.Int
	if err := cbor.Unmarshal(data, &b); err != nil {
		return err
	}
	(*big.Int)(i).Set(&b)
	return nil
}
