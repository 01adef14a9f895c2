package script

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// DecodeHex converts a string of hex digits into bytes.
// Blanks (spaces and tabs) are ignored so that "00 A4 04 00" is accepted. The
// remaining digit count must be even and every character must be a hex digit;
// otherwise the error wraps ErrMalformedHex. 'X' wildcards are only accepted in
// expected responses (see ParsePattern), so a command line containing one is malformed.
func DecodeHex(s string) ([]byte, error) {
	clean := stripBlanks(s)

	for i := 0; i < len(clean); i++ {
		if _, ok := hexValue(clean[i]); !ok {
			return nil, fmt.Errorf("%w: invalid character %q at offset %d", ErrMalformedHex, clean[i], i)
		}
	}

	if len(clean)%2 != 0 {
		return nil, fmt.Errorf("%w: odd number of digits (%d)", ErrMalformedHex, len(clean))
	}

	data, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHex, err)
	}
	return data, nil
}

// EncodeHex renders bytes as upper-case hex digits without separators.
func EncodeHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

func stripBlanks(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	default:
		return 0, false
	}
}

func isWildcard(c byte) bool {
	return c == 'X' || c == 'x'
}
