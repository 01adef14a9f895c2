package script

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/gregLibert/apdu-script/pkg/iso7816"
)

// SCRIPT FORMAT:
// A script is read line by line. Blank lines are skipped and lines whose first
// non-blank character is ';' are comments. Every other line is a data line; data
// lines alternate between a command (hex, sent as is) and its expected response
// (hex with 'X' wildcards):
//
//	; SELECT the PSE
//	00 A4 04 00 0E 315041592E5359532E4444463031
//	XXXX 9000
//
// A comment of the form "; url=https://host/path" sets the report URL of the run.

// State is the position of the parser in the command/response alternation.
type State int

const (
	AwaitingCommand State = iota
	AwaitingResponse
	Done
	Error
)

func (s State) String() string {
	switch s {
	case AwaitingCommand:
		return "AwaitingCommand"
	case AwaitingResponse:
		return "AwaitingResponse"
	case Done:
		return "Done"
	case Error:
		return "Error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const urlDirective = "url="

// MaxLineLength bounds a script line. It fits the largest extended APDU written
// with a blank between every byte.
const MaxLineLength = 3*iso7816.MaxAPDUBufferSize + 64

// Pair is one command with the response pattern expected for it.
type Pair struct {
	Command      []byte
	Expected     Pattern
	CommandLine  string
	ExpectedLine string
	Line         int // line number of the expected response
}

// Parser turns a script into a sequence of Pairs.
type Parser struct {
	scanner *bufio.Scanner
	state   State
	line    int
	err     error
	url     string

	pending     []byte
	pendingLine string
}

// NewParser reads the script from r.
func NewParser(r io.Reader) *Parser {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineLength)
	return &Parser{scanner: scanner, state: AwaitingCommand}
}

// State returns the current parser state.
func (p *Parser) State() State {
	return p.state
}

// URL returns the last url= directive seen so far, or "".
func (p *Parser) URL() string {
	return p.url
}

// Next returns the next complete pair.
// At end of input it returns io.EOF, or ErrIncompletePair when a command was left
// without its expected response (the command is discarded). A line that cannot be
// decoded yields a *SyntaxError. Once Done or Error is reached, Next keeps returning
// the same error.
func (p *Parser) Next() (Pair, error) {
	if p.state == Done || p.state == Error {
		return Pair{}, p.err
	}

	for p.scanner.Scan() {
		p.line++
		text := strings.TrimRight(p.scanner.Text(), "\r")
		trimmed := strings.TrimSpace(text)

		if trimmed == "" {
			continue
		}

		if trimmed[0] == ';' {
			p.comment(text)
			continue
		}

		switch p.state {
		case AwaitingCommand:
			cmd, err := DecodeHex(text)
			if err != nil {
				return Pair{}, p.fail(&SyntaxError{Line: p.line, Text: text, Err: err})
			}
			p.pending = cmd
			p.pendingLine = text
			p.state = AwaitingResponse

		case AwaitingResponse:
			pattern, err := ParsePattern(text)
			if err != nil {
				return Pair{}, p.fail(&SyntaxError{Line: p.line, Text: text, Err: err})
			}
			pair := Pair{
				Command:      p.pending,
				Expected:     pattern,
				CommandLine:  p.pendingLine,
				ExpectedLine: text,
				Line:         p.line,
			}
			p.pending = nil
			p.pendingLine = ""
			p.state = AwaitingCommand
			return pair, nil
		}
	}

	if err := p.scanner.Err(); err != nil {
		return Pair{}, p.fail(fmt.Errorf("script read failed: %w", err))
	}

	p.state = Done
	if p.pending != nil {
		p.pending = nil
		p.err = ErrIncompletePair
		return Pair{}, p.err
	}
	p.err = io.EOF
	return Pair{}, p.err
}

func (p *Parser) comment(text string) {
	idx := strings.Index(text, urlDirective)
	if idx < 0 {
		return
	}
	p.url = strings.TrimSpace(text[idx+len(urlDirective):])
}

func (p *Parser) fail(err error) error {
	p.state = Error
	p.err = err
	return err
}
