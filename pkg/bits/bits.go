// Package bits holds the bit and nibble helpers used to decode header bytes
// and to compare responses half-byte by half-byte.
package bits

// Bit returns a byte with only the n-th bit set (1 to 8).
func Bit(n uint) byte {
	if n < 1 || n > 8 {
		return 0
	}
	return 1 << (n - 1)
}

// IsSet checks if the n-th bit is set (1 to 8).
func IsSet(b byte, n uint) bool {
	return b&Bit(n) != 0
}

// GetRange extracts the value from a range of bits (e.g., bits 4 to 3).
// Example: GetRange(0b00001100, 4, 3) returns 3 (0b11)
func GetRange(b byte, high, low uint) byte {
	if high < low || high > 8 || low < 1 {
		return 0
	}

	width := high - low + 1
	mask := byte((1 << width) - 1)

	return (b >> (low - 1)) & mask
}

// Set returns b with the n-th bit set.
func Set(b byte, n uint) byte {
	return b | Bit(n)
}

// HighNibble returns bits 8-5 of b.
func HighNibble(b byte) byte {
	return GetRange(b, 8, 5)
}

// LowNibble returns bits 4-1 of b.
func LowNibble(b byte) byte {
	return GetRange(b, 4, 1)
}

// Nibble returns the i-th nibble of data, counting high nibble first.
// The second result is false when i is out of range.
func Nibble(data []byte, i int) (byte, bool) {
	if i < 0 || i >= 2*len(data) {
		return 0, false
	}
	b := data[i/2]
	if i%2 == 0 {
		return HighNibble(b), true
	}
	return LowNibble(b), true
}
