package pcsc

import (
	"fmt"
	"strings"

	"github.com/ebfe/scard"
)

// Protocol is the connection mode requested from the reader.
type Protocol int

const (
	ProtocolAny Protocol = iota // T=0 or T=1, whichever the card negotiates
	ProtocolT0
	ProtocolT1
	ProtocolDirect // no card protocol, control commands only
)

// ParseProtocol accepts "T=0", "T=1", "*" and "direct" (case insensitive).
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "*", "":
		return ProtocolAny, nil
	case "t=0", "t0":
		return ProtocolT0, nil
	case "t=1", "t1":
		return ProtocolT1, nil
	case "direct":
		return ProtocolDirect, nil
	default:
		return 0, fmt.Errorf("unknown protocol %q", s)
	}
}

func (p Protocol) String() string {
	switch p {
	case ProtocolAny:
		return "*"
	case ProtocolT0:
		return "T=0"
	case ProtocolT1:
		return "T=1"
	case ProtocolDirect:
		return "direct"
	default:
		return fmt.Sprintf("Protocol(%d)", int(p))
	}
}

func (p Protocol) scard() (scard.ShareMode, scard.Protocol) {
	switch p {
	case ProtocolT0:
		return scard.ShareShared, scard.ProtocolT0
	case ProtocolT1:
		return scard.ShareShared, scard.ProtocolT1
	case ProtocolDirect:
		return scard.ShareDirect, scard.ProtocolUndefined
	default:
		// Force T=0 or T=1 to avoid "Parameter Incorrect" errors (Error 57)
		return scard.ShareShared, scard.ProtocolT0 | scard.ProtocolT1
	}
}

func fromActive(p scard.Protocol) Protocol {
	switch p {
	case scard.ProtocolT0:
		return ProtocolT0
	case scard.ProtocolT1:
		return ProtocolT1
	default:
		return ProtocolDirect
	}
}
