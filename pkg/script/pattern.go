package script

import (
	"fmt"
	"strings"

	"github.com/gregLibert/apdu-script/pkg/bits"
)

// Nibble matches one half-byte of a response.
type Nibble struct {
	Value    byte // 0 to 15, ignored when Wildcard is set
	Wildcard bool
}

// Matches reports whether the nibble accepts v.
func (n Nibble) Matches(v byte) bool {
	return n.Wildcard || n.Value == v
}

// Pattern is an expected response, one matcher per nibble, high nibble first.
type Pattern []Nibble

// ParsePattern reads an expected-response line.
// Hex digits become fixed nibbles and 'X' or 'x' wildcards. Blanks are ignored and
// any other character wraps ErrMalformedHex. An odd nibble count is accepted; such a
// pattern can never match since a response always holds an even number of nibbles.
func ParsePattern(s string) (Pattern, error) {
	clean := stripBlanks(s)
	p := make(Pattern, 0, len(clean))

	for i := 0; i < len(clean); i++ {
		c := clean[i]
		if isWildcard(c) {
			p = append(p, Nibble{Wildcard: true})
			continue
		}
		v, ok := hexValue(c)
		if !ok {
			return nil, fmt.Errorf("%w: invalid character %q at offset %d", ErrMalformedHex, c, i)
		}
		p = append(p, Nibble{Value: v})
	}

	return p, nil
}

// Match compares the pattern against the actual response bytes.
// It stops at the first fixed nibble that differs or when the response runs out,
// and requires the pattern to cover the response exactly.
func (p Pattern) Match(resp []byte) bool {
	for i, n := range p {
		v, ok := bits.Nibble(resp, i)
		if !ok || !n.Matches(v) {
			return false
		}
	}
	return len(p) == 2*len(resp)
}

// String renders the pattern in upper case with X for wildcards.
func (p Pattern) String() string {
	var sb strings.Builder
	sb.Grow(len(p))
	for _, n := range p {
		if n.Wildcard {
			sb.WriteByte('X')
			continue
		}
		sb.WriteString(fmt.Sprintf("%X", n.Value))
	}
	return sb.String()
}

// Compare parses pattern and matches it against resp.
// A pattern that cannot be parsed never matches.
func Compare(pattern string, resp []byte) bool {
	p, err := ParsePattern(pattern)
	if err != nil {
		return false
	}
	return p.Match(resp)
}
