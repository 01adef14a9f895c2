package pcsc

import (
	"errors"
	"fmt"

	"github.com/ebfe/scard"
	"github.com/gregLibert/apdu-script/pkg/iso7816"
	"github.com/rs/zerolog/log"
)

// ErrNoAPDUChannel is returned when a direct connection is asked for an APDU channel.
var ErrNoAPDUChannel = errors.New("connection has no card protocol")

// TransmitOptions selects the transport behaviors applied per negotiated protocol.
type TransmitOptions struct {
	// T0GetResponse resolves 61XX and 6CXX on T=0.
	T0GetResponse bool
	// T1GetResponse resolves 61XX on T=1.
	T1GetResponse bool
	// T1StripLe removes Le from case 4 commands on T=1.
	T1StripLe bool
}

// DefaultTransmitOptions resolves 61XX on both protocols and keeps Le.
func DefaultTransmitOptions() TransmitOptions {
	return TransmitOptions{T0GetResponse: true, T1GetResponse: true}
}

// Connection is an open connection to one reader.
type Connection struct {
	Reader   string
	Protocol Protocol // negotiated protocol, ProtocolDirect when none
	ATR      []byte

	card Card
}

// Connect opens reader with the requested protocol.
func Connect(ctx Context, reader string, proto Protocol) (*Connection, error) {
	mode, sp := proto.scard()

	card, err := ctx.Connect(reader, mode, sp)
	if err != nil {
		return nil, err
	}

	conn := &Connection{Reader: reader, Protocol: ProtocolDirect, card: card}

	status, err := card.Status()
	switch {
	case err != nil && proto == ProtocolDirect:
		// A direct connection is allowed without a card in the slot.
		log.Debug().Err(err).Str("reader", reader).Msg("no card status on direct connection")
	case err != nil:
		if dErr := card.Disconnect(scard.LeaveCard); dErr != nil {
			log.Warn().Err(dErr).Str("reader", reader).Msg("failed to disconnect card")
		}
		return nil, fmt.Errorf("failed to get card status: %w", err)
	default:
		conn.ATR = status.Atr
		if proto != ProtocolDirect {
			conn.Protocol = fromActive(status.ActiveProtocol)
		}
	}

	log.Debug().Str("reader", reader).Stringer("protocol", conn.Protocol).Hex("atr", conn.ATR).Msg("connected")
	return conn, nil
}

// APDUChannel returns a Transmitter exchanging APDUs with the card, with the
// transport behaviors of opts applied for the negotiated protocol.
func (c *Connection) APDUChannel(opts TransmitOptions) (iso7816.Transmitter, error) {
	var o iso7816.Options
	switch c.Protocol {
	case ProtocolT0:
		o = iso7816.Options{AutoGetResponse: opts.T0GetResponse, AutoCorrectLength: opts.T0GetResponse}
	case ProtocolT1:
		o = iso7816.Options{AutoGetResponse: opts.T1GetResponse, StripLe: opts.T1StripLe}
	default:
		return nil, ErrNoAPDUChannel
	}
	return iso7816.NewClientWithOptions(c.card, o), nil
}

// ControlChannel returns a Transmitter sending escape commands to the reader with
// the IOCTL of function.
func (c *Connection) ControlChannel(function uint16) iso7816.Transmitter {
	return &controlChannel{card: c.card, ioctl: ControlCode(function)}
}

// Close disconnects and leaves the card powered.
func (c *Connection) Close() error {
	if err := c.card.Disconnect(scard.LeaveCard); err != nil {
		return fmt.Errorf("failed to disconnect card: %w", err)
	}
	return nil
}

type controlChannel struct {
	card  Card
	ioctl uint32
}

func (c *controlChannel) Transmit(cmd []byte) ([]byte, error) {
	resp, err := c.card.Control(c.ioctl, cmd)
	if err != nil {
		return nil, fmt.Errorf("control command failed: %w", err)
	}
	return resp, nil
}
