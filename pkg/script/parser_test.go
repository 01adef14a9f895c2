package script

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func collect(t *testing.T, p *Parser) ([]Pair, error) {
	t.Helper()
	var pairs []Pair
	for {
		pair, err := p.Next()
		if err != nil {
			return pairs, err
		}
		pairs = append(pairs, pair)
	}
}

func TestParser_Pairs(t *testing.T) {
	src := strings.Join([]string{
		"; demo script",
		"; url=https://example.test/report",
		"",
		"00 A4 04 00 02 3F00",
		"   ; comments may sit between a command and its response",
		"XXXX 9000",
		"\r",
		"FFCA000000\r",
		"xxxxxxxx9000",
	}, "\n")

	p := NewParser(strings.NewReader(src))
	pairs, err := collect(t, p)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("got %d pairs, want 2", len(pairs))
	}

	if got := EncodeHex(pairs[0].Command); got != "00A40400023F00" {
		t.Errorf("pair 1 command = %s", got)
	}
	if got := pairs[0].Expected.String(); got != "XXXX9000" {
		t.Errorf("pair 1 expected = %s", got)
	}
	if pairs[0].Line != 6 {
		t.Errorf("pair 1 line = %d, want 6", pairs[0].Line)
	}
	if got := EncodeHex(pairs[1].Command); got != "FFCA000000" {
		t.Errorf("pair 2 command = %s", got)
	}
	if p.URL() != "https://example.test/report" {
		t.Errorf("URL() = %q", p.URL())
	}
	if p.State() != Done {
		t.Errorf("State() = %s, want Done", p.State())
	}
}

func TestParser_IncompletePair(t *testing.T) {
	p := NewParser(strings.NewReader("00A40400\n; no response follows\n"))

	pairs, err := collect(t, p)
	if !errors.Is(err, ErrIncompletePair) {
		t.Fatalf("expected ErrIncompletePair, got %v", err)
	}
	if len(pairs) != 0 {
		t.Errorf("got %d pairs, want 0", len(pairs))
	}
	if p.State() != Done {
		t.Errorf("State() = %s, want Done", p.State())
	}

	// Terminal states are sticky.
	if _, err := p.Next(); !errors.Is(err, ErrIncompletePair) {
		t.Errorf("second Next() = %v, want ErrIncompletePair", err)
	}
}

func TestParser_MalformedLine(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantLine int
		before   int
	}{
		{name: "Bad command", src: "00A4 04ZZ\n9000\n", wantLine: 1},
		{name: "Odd command", src: "00A\n9000\n", wantLine: 1},
		{name: "Bad response", src: "00A40400\n90-00\n", wantLine: 2},
		{name: "After a valid pair", src: "00A40400\n9000\n\nHELLO\n9000\n", wantLine: 4, before: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser(strings.NewReader(tt.src))
			pairs, err := collect(t, p)

			var syntaxErr *SyntaxError
			if !errors.As(err, &syntaxErr) {
				t.Fatalf("expected *SyntaxError, got %v", err)
			}
			if !errors.Is(err, ErrMalformedHex) {
				t.Errorf("expected ErrMalformedHex in chain, got %v", err)
			}
			if syntaxErr.Line != tt.wantLine {
				t.Errorf("Line = %d, want %d", syntaxErr.Line, tt.wantLine)
			}
			if len(pairs) != tt.before {
				t.Errorf("got %d pairs before the error, want %d", len(pairs), tt.before)
			}
			if p.State() != Error {
				t.Errorf("State() = %s, want Error", p.State())
			}
		})
	}
}

func TestParser_LongLines(t *testing.T) {
	t.Run("Extended case 3 command", func(t *testing.T) {
		body := strings.Repeat("AB", 40000)
		src := "00DA0100" + "00" + "9C40" + body + "\n9000\n"

		pairs, err := collect(t, NewParser(strings.NewReader(src)))
		if !errors.Is(err, io.EOF) {
			t.Fatalf("expected io.EOF, got %v", err)
		}
		if len(pairs) != 1 {
			t.Fatalf("got %d pairs, want 1", len(pairs))
		}
		if got, want := len(pairs[0].Command), 4+3+40000; got != want {
			t.Errorf("command length = %d, want %d", got, want)
		}
	})

	t.Run("Spaced maximum command", func(t *testing.T) {
		line := "00 DA 01 00 00 FF FF" + strings.Repeat(" AB", 65535)
		p := NewParser(strings.NewReader(line + "\n9000\n"))

		pair, err := p.Next()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(pair.Command) != 7+65535 {
			t.Errorf("command length = %d", len(pair.Command))
		}
	})

	t.Run("Beyond the line limit", func(t *testing.T) {
		p := NewParser(strings.NewReader(strings.Repeat("A", MaxLineLength+2) + "\n"))
		if _, err := p.Next(); err == nil || p.State() != Error {
			t.Errorf("expected read failure, got %v in state %s", err, p.State())
		}
	})
}

func TestParser_ReadFailure(t *testing.T) {
	cause := errors.New("disk on fire")
	p := NewParser(iotest.ErrReader(cause))

	_, err := p.Next()
	if !errors.Is(err, cause) {
		t.Fatalf("expected read failure, got %v", err)
	}
	if p.State() != Error {
		t.Errorf("State() = %s, want Error", p.State())
	}
}

func TestState_String(t *testing.T) {
	states := map[State]string{
		AwaitingCommand:  "AwaitingCommand",
		AwaitingResponse: "AwaitingResponse",
		Done:             "Done",
		Error:            "Error",
		State(42):        "State(42)",
	}
	for s, want := range states {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
