package iso7816

import "fmt"

// TRANSACTION:
// A Transaction is one physical exchange: one C-APDU sent to the card and the
// R-APDU it answered with.
//
// TRACE:
// A script line is a single logical command, but the Client may need several
// exchanges to complete it:
// 1. "61 XX": the card holds XX more bytes, fetched with GET RESPONSE.
// 2. "6C XX": Le was wrong, the command is sent again with Le = XX.
//
// The Trace keeps every exchange in order. The script only sees the last response;
// the earlier ones are reported in the diagnostic log.

// Transaction represents a completed Command-Response pair.
type Transaction struct {
	Command  *CommandAPDU
	Response *ResponseAPDU
}

// IsSuccess checks if the transaction ended with a successful status.
// It returns false if the response is missing.
func (t *Transaction) IsSuccess() bool {
	if t.Response == nil {
		return false
	}
	return t.Response.Status.IsSuccess()
}

func (t *Transaction) String() string {
	if t.Response == nil {
		return fmt.Sprintf("%s -> (no response)", t.Command.Instruction.Raw)
	}
	return fmt.Sprintf("%s -> %04X", t.Command.Instruction.Raw, uint16(t.Response.Status))
}

// Trace is a sequence of transactions (Command-Response pairs).
type Trace []Transaction

// Last returns the final transaction of the trace.
// Returns nil if the trace is empty.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// Followups returns the number of exchanges the Client added after the first one.
func (t Trace) Followups() int {
	if len(t) == 0 {
		return 0
	}
	return len(t) - 1
}

// Steps describes each transaction as "INS -> SW".
func (t Trace) Steps() []string {
	steps := make([]string, len(t))
	for i := range t {
		steps[i] = t[i].String()
	}
	return steps
}

// IsSuccess checks if the FINAL transaction in the trace was successful,
// regardless of intermediate 61XX.
func (t Trace) IsSuccess() bool {
	last := t.Last()
	if last == nil {
		return false
	}
	return last.IsSuccess()
}
