// Package tlv renders BER-TLV (Basic Encoding Rules - Tag-Length-Value) payloads,
// such as FCI templates returned by SELECT, as indented text for the run log.
package tlv

import (
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"
)

// Dump decodes data as BER-TLV and returns one line per object.
// Constructed objects list their children one indentation level deeper; primitive
// objects show their value in hex, followed by the ASCII form when it is printable.
func Dump(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data cannot be parsed")
	}

	packets, err := bertlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("bertlv decode failed: %w", err)
	}

	var lines []string
	writePackets(&lines, packets, 0)
	return lines, nil
}

func writePackets(lines *[]string, packets []bertlv.TLV, depth int) {
	indent := strings.Repeat("  ", depth)

	for _, p := range packets {
		tag := strings.ToUpper(p.Tag)

		if len(p.TLVs) > 0 {
			*lines = append(*lines, fmt.Sprintf("%s%s [%d objects]", indent, tag, len(p.TLVs)))
			writePackets(lines, p.TLVs, depth+1)
			continue
		}

		line := fmt.Sprintf("%s%s: %X", indent, tag, p.Value)
		if IsPrintable(p.Value) {
			line += fmt.Sprintf(" %q", string(p.Value))
		}
		*lines = append(*lines, line)
	}
}

// IsPrintable reports whether data is non-empty and made only of printable ASCII.
func IsPrintable(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	for _, b := range data {
		if b < 32 || b > 126 {
			return false
		}
	}
	return true
}

// MakeSafeASCII replaces every non-printable byte with a dot.
func MakeSafeASCII(data []byte) string {
	out := make([]byte, len(data))
	for i, b := range data {
		if b < 32 || b > 126 {
			b = '.'
		}
		out[i] = b
	}
	return string(out)
}
