// Package hashcode parses and compares the 64-bit perceptual video
// hashes this service indexes. It holds no state: every operation is a
// pure function of its arguments.
package hashcode

import (
	"errors"
	"fmt"
	"math/bits"
)

// Bits is the fixed width of a hash. The wire form is a string of
// exactly this many '0'/'1' characters, most-significant bit first.
const Bits = 64

// ErrInvalidHash is returned when a hash string is not exactly Bits
// characters of '0'/'1'.
var ErrInvalidHash = errors.New("hashcode: invalid hash string")

// Parse converts a 64-character binary string into its internal
// uint64 code. Bit k of the string (0 = leftmost) becomes bit (63-k)
// of the code, i.e. the string is read most-significant-bit first.
func Parse(s string) (uint64, error) {
	if len(s) != Bits {
		return 0, fmt.Errorf("%w: want %d characters, got %d", ErrInvalidHash, Bits, len(s))
	}

	var code uint64
	for i := 0; i < Bits; i++ {
		code <<= 1
		switch s[i] {
		case '0':
			// bit stays 0
		case '1':
			code |= 1
		default:
			return 0, fmt.Errorf("%w: byte %d is %q, want '0' or '1'", ErrInvalidHash, i, s[i])
		}
	}
	return code, nil
}

// String renders a code back to its 64-character MSB-first binary
// form. It is the inverse of Parse: String(Parse(s)) == s for every
// valid s.
func String(code uint64) string {
	buf := make([]byte, Bits)
	for i := 0; i < Bits; i++ {
		bitIdx := Bits - 1 - i
		if code&(1<<uint(bitIdx)) != 0 {
			buf[i] = '1'
		} else {
			buf[i] = '0'
		}
	}
	return string(buf)
}

// Hamming returns the number of bit positions at which a and b
// differ, in [0, 64].
func Hamming(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similarity converts a Hamming distance into a percentage in
// [0.0, 100.0]. d=0 gives 100.0; d=64 gives 0.0.
func Similarity(d int) float64 {
	return 100.0 * float64(Bits-d) / float64(Bits)
}
