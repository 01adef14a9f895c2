package iso7816

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// CLIENT & PROTOCOL LOGIC:
// The Client acts as a high-level driver over the physical connection.
// It implements the automatic handling of ISO 7816-3 transport behaviors that are
// often exposed to the application layer in T=0 protocols:
//
// 1. "61 XX" (Response Available):
//    The card indicates that XX bytes are waiting. The client automatically generates
//    and sends a GET RESPONSE command to retrieve them.
//
// 2. "6C XX" (Wrong Length):
//    The card indicates that the expected length (Le) was incorrect and suggests XX.
//    The client automatically re-sends the original command with Le = XX.
//
// Both behaviors can be switched off individually, since some readers (and some
// scripts) expect to see the raw 61XX / 6CXX status and issue GET RESPONSE themselves.
//
// Transmit() records every atomic transaction of the logical request in a Trace
// and returns the last response; the intermediate steps go to the debug log.

// MaxAutoSteps bounds the number of follow-up exchanges a single logical command
// may trigger (a card that keeps answering 6CXX would otherwise loop forever).
const MaxAutoSteps = 16

// Transmitter abstracts the physical card connection.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// Options selects which transport behaviors the Client handles on its own.
type Options struct {
	// AutoGetResponse issues GET RESPONSE on 61XX.
	AutoGetResponse bool
	// AutoCorrectLength re-issues the command with Le = XX on 6CXX.
	AutoCorrectLength bool
	// StripLe removes the Le field from case 4 commands before sending them.
	StripLe bool
}

// DefaultOptions enables both automatic behaviors and keeps Le untouched.
func DefaultOptions() Options {
	return Options{AutoGetResponse: true, AutoCorrectLength: true}
}

// Client manages the high-level communication with the card.
type Client struct {
	Card    Transmitter
	Options Options
}

// NewClientWithOptions creates a Client with explicit transport options.
func NewClientWithOptions(card Transmitter, opts Options) *Client {
	return &Client{Card: card, Options: opts}
}

// Transmit sends a raw command and returns the raw final response (Data + SW).
//
// When raw parses as a C-APDU, the first exchange still uses the bytes exactly as
// given (re-encoding could change the length mode) and the follow-up exchanges are
// built from the parsed form. Bytes that are not a valid C-APDU are passed through
// untouched, since readers accept proprietary frames that no ISO rule describes.
func (c *Client) Transmit(raw []byte) ([]byte, error) {
	cmd, err := ParseCommandAPDU(raw)
	if err != nil {
		return c.Card.Transmit(raw)
	}

	if c.Options.StripLe && cmd.IsCase4() {
		cmd = c.prepare(cmd)
		if raw, err = cmd.Bytes(); err != nil {
			return nil, fmt.Errorf("encoding error: %w", err)
		}
	}

	trace, err := c.exchange(cmd, raw, 0)
	if err != nil {
		return nil, err
	}

	if n := trace.Followups(); n > 0 {
		log.Debug().Int("followups", n).Strs("steps", trace.Steps()).Bool("success", trace.IsSuccess()).Msg("command completed by the transport")
	}

	return trace.Last().Response.Bytes(), nil
}

// prepare applies the outgoing transformations selected by the options.
func (c *Client) prepare(cmd *CommandAPDU) *CommandAPDU {
	if !c.Options.StripLe || !cmd.IsCase4() {
		return cmd
	}
	stripped := *cmd
	stripped.Ne = 0
	return &stripped
}

func (c *Client) exchange(cmd *CommandAPDU, rawCmd []byte, depth int) (Trace, error) {
	rawResp, err := c.Card.Transmit(rawCmd)
	if err != nil {
		return nil, fmt.Errorf("transmission error: %w", err)
	}

	resp, err := ParseResponseAPDU(rawResp)
	if err != nil {
		return nil, err
	}

	currentTx := Transaction{
		Command:  cmd,
		Response: resp,
	}

	trace := Trace{currentTx}

	if depth >= MaxAutoSteps {
		return trace, nil
	}

	sw1 := resp.Status.SW1()
	sw2 := resp.Status.SW2()

	// Case 61XX: More data available -> Issue GET RESPONSE
	if sw1 == 0x61 && c.Options.AutoGetResponse {
		// ISO 7816-4: GET RESPONSE must use the same logical channel as the original command.
		respCls := cmd.Class
		respCls.IsChained = false

		ins, _ := NewInstruction(INS_GET_RESPONSE)

		// Le = sw2 (number of bytes available, 00 meaning 256)
		getRespCmd := NewCommandAPDU(respCls, ins, 0x00, 0x00, nil, decodeShortLe(sw2))

		subTrace, err := c.follow(getRespCmd, depth)
		if err != nil {
			return trace, err
		}

		trace = append(trace, subTrace...)
		return trace, nil
	}

	// Case 6CXX: Wrong Length -> Re-issue original command with correct Le
	if sw1 == 0x6C && c.Options.AutoCorrectLength {
		// Clone command to update Le without mutating the original pointer
		newCmd := *cmd
		newCmd.Ne = decodeShortLe(sw2)

		subTrace, err := c.follow(&newCmd, depth)
		if err != nil {
			return trace, err
		}

		trace = append(trace, subTrace...)
		return trace, nil
	}

	return trace, nil
}

func (c *Client) follow(cmd *CommandAPDU, depth int) (Trace, error) {
	rawCmd, err := cmd.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding error: %w", err)
	}
	return c.exchange(cmd, rawCmd, depth+1)
}
