// Package script parses and runs APDU scripts: line-oriented files of commands
// and expected responses transmitted one pair at a time over a card channel.
package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gregLibert/apdu-script/pkg/iso7816"
	"github.com/gregLibert/apdu-script/pkg/tlv"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding"
)

// Sink receives the textual execution log of a run.
type Sink interface {
	Msg(format string, args ...any)
	Buffer(data []byte)
	HexString(s string)
	Verdict(ok bool, format string, args ...any)
}

// Runner executes scripts over a Transmitter.
//
// A run is sequential: a command is transmitted and its response evaluated before the
// next pair is read. The context is only checked between pairs.
type Runner struct {
	Transmitter iso7816.Transmitter
	Sink        Sink

	// Verify compares every response with its expected pattern.
	Verify bool
	// StopOnMismatch ends the run at the first rejected response (needs Verify).
	StopOnMismatch bool
	// DescribeTLV dumps response bodies that decode as BER-TLV.
	DescribeTLV bool
	// Decoder turns response bodies into the collected data; nil keeps printable ASCII.
	Decoder *encoding.Decoder

	// Now is the clock used for transfer timing; nil means time.Now.
	Now func() time.Time
}

// RunFile opens the script at path, runs it and closes it on every path.
func (r *Runner) RunFile(ctx context.Context, path string) (*Report, error) {
	r.Sink.Msg("Running the script...")
	r.Sink.Msg("Opening %s...", path)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.Sink.Msg("Error: Script file not found")
		} else {
			r.Sink.Msg("Error: Script file read failed")
		}
		return nil, fmt.Errorf("open script: %w", err)
	}

	defer func() {
		r.Sink.Msg("Closing %s...", path)
		if err := f.Close(); err != nil {
			log.Warn().Err(err).Str("script", path).Msg("failed to close script")
		}
	}()

	return r.run(ctx, f)
}

// Run executes the script read from src. name is only used in the log.
func (r *Runner) Run(ctx context.Context, name string, src io.Reader) (*Report, error) {
	r.Sink.Msg("Running the script...")
	r.Sink.Msg("Opening %s...", name)
	defer r.Sink.Msg("Closing %s...", name)

	return r.run(ctx, src)
}

func (r *Runner) run(ctx context.Context, src io.Reader) (*Report, error) {
	parser := NewParser(src)
	report := &Report{}

	defer func() {
		report.URL = parser.URL()
	}()

	for {
		if err := ctx.Err(); err != nil {
			r.Sink.Msg("Error: %v", err)
			return report, err
		}

		pair, err := parser.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, ErrIncompletePair) {
			log.Debug().Int("executed", len(report.Results)).Msg("script ended without a response line; last command discarded")
			report.Incomplete = true
			break
		}
		if err != nil {
			r.Sink.Msg("Error: %v", err)
			return report, err
		}

		res, err := r.execute(len(report.Results)+1, pair, report)
		if err != nil {
			return report, err
		}

		if res.Verdict == Failed && r.StopOnMismatch {
			return report, &MismatchError{Index: res.Index, Expected: res.Expected, Actual: res.Response}
		}
	}

	if len(report.Results) == 0 {
		r.Sink.Msg("Error: Cannot load the command")
	}

	return report, nil
}

func (r *Runner) execute(index int, pair Pair, report *Report) (Result, error) {
	r.Sink.Msg("Command:")
	r.Sink.Buffer(pair.Command)
	if cmd, err := iso7816.ParseCommandAPDU(pair.Command); err == nil {
		r.Sink.Msg("Header: %s", cmd)
		log.Debug().Int("index", index).Str("class", cmd.Class.Verbose()).Msg("command class")
	}

	start := r.now()
	resp, err := r.Transmitter.Transmit(pair.Command)
	elapsed := r.now().Sub(start)

	if err != nil {
		r.Sink.Msg("Error: %v", err)
		if cause := errors.Unwrap(err); cause != nil {
			r.Sink.Msg("Cause: %v", cause)
		}
		return Result{}, &TransmitError{Index: index, Err: err}
	}

	res := Result{
		Index:    index,
		Command:  pair.Command,
		Response: resp,
		Expected: pair.Expected,
		Duration: elapsed,
	}

	log.Debug().Int("index", index).Dur("elapsed", elapsed).Int("sent", len(pair.Command)).Int("received", len(resp)).Msg("command exchanged")

	report.Data += decodeData(r.Decoder, responseBody(resp)) + ";"

	r.Sink.Msg("Response:")
	r.Sink.Buffer(resp)
	r.describeResponse(resp)

	r.Sink.Msg("Data:")
	r.Sink.Msg("%s", report.Data)

	r.Sink.Msg("Bytes Sent    : %d", len(pair.Command))
	r.Sink.Msg("Bytes Received: %d", len(resp))
	r.Sink.Msg("Transfer Time : %d ms", elapsed.Milliseconds())
	if rate, ok := res.Rate(); ok {
		r.Sink.Msg("Transfer Rate : %.2f bytes/second", rate)
	} else {
		r.Sink.Msg("Transfer Rate : n/a")
	}

	r.Sink.Msg("Expected:")
	r.Sink.HexString(pair.Expected.String())

	switch {
	case !r.Verify:
		res.Verdict = NotVerified
		r.Sink.Msg("%s", res.Verdict)
	case pair.Expected.Match(resp):
		res.Verdict = Passed
		r.Sink.Verdict(true, "%s", res.Verdict)
	default:
		res.Verdict = Failed
		report.Mismatches++
		r.Sink.Verdict(false, "Msg: %s", res.Verdict)
	}

	report.Results = append(report.Results, res)
	return res, nil
}

func (r *Runner) describeResponse(resp []byte) {
	rapdu, err := iso7816.ParseResponseAPDU(resp)
	if err != nil {
		return
	}

	r.Sink.Msg("Status: %s", rapdu.Status.Verbose())

	if !r.DescribeTLV || len(rapdu.Data) == 0 {
		return
	}

	lines, err := tlv.Dump(rapdu.Data)
	if err != nil {
		log.Debug().Err(err).Msg("response body is not BER-TLV")
		return
	}

	r.Sink.Msg("TLV:")
	r.Sink.Msg("%s", strings.Join(lines, "\n"))
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// responseBody strips the trailing status word.
func responseBody(resp []byte) []byte {
	if len(resp) < 2 {
		return nil
	}
	return resp[:len(resp)-2]
}
