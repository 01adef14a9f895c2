package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Hex builds a byte slice from hex fragments, for fixtures and test tables.
// Fragments are concatenated and any whitespace is dropped, so a fixture can be
// laid out one TLV object per line. Invalid input panics.
func Hex(parts ...string) []byte {
	digits := strings.Join(strings.Fields(strings.Join(parts, " ")), "")

	data, err := hex.DecodeString(digits)
	if err != nil {
		panic(fmt.Sprintf("invalid hex fixture %q: %v", digits, err))
	}
	return data
}
