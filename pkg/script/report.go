package script

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gregLibert/apdu-script/pkg/tlv"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// Verdict is the outcome of the response check for one command.
type Verdict int

const (
	NotVerified Verdict = iota
	Passed
	Failed
)

func (v Verdict) String() string {
	switch v {
	case NotVerified:
		return "Not verified"
	case Passed:
		return "Compare OK"
	case Failed:
		return "Unexpected response"
	default:
		return fmt.Sprintf("Verdict(%d)", int(v))
	}
}

// Result records one executed pair.
type Result struct {
	Index    int // 1-based
	Command  []byte
	Response []byte
	Expected Pattern
	Duration time.Duration
	Verdict  Verdict
}

// Rate returns the transfer rate in bytes/second (command plus response).
// The second result is false when the exchange was too fast to be timed.
func (r Result) Rate() (float64, bool) {
	if r.Duration <= 0 {
		return 0, false
	}
	return float64(len(r.Command)+len(r.Response)) / r.Duration.Seconds(), true
}

// Report summarizes a run.
type Report struct {
	Results    []Result
	Data       string // decoded response bodies, each followed by ';'
	URL        string // value of the last url= directive
	Incomplete bool   // the script ended between a command and its response
	Mismatches int
}

// Passed reports whether no verified response was rejected.
func (r *Report) Passed() bool {
	return r.Mismatches == 0
}

// ReportURL builds "<url>?data=<data>" from the url= directive and the collected data.
// '#' in the data is replaced by a space before escaping. The second result is false
// when the script carried no directive.
func (r *Report) ReportURL() (string, bool) {
	if r.URL == "" {
		return "", false
	}
	data := strings.ReplaceAll(r.Data, "#", " ")
	return r.URL + "?data=" + url.QueryEscape(data), true
}

// DataDecoder returns the decoder used to turn response bodies into text.
// Names follow the WHATWG encoding labels ("tis-620", "utf-8", "latin1", ...).
// "raw" and "" select the ASCII fallback, returned as a nil decoder.
func DataDecoder(name string) (*encoding.Decoder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "raw", "ascii":
		return nil, nil
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown data encoding %q: %w", name, err)
	}
	return enc.NewDecoder(), nil
}

func decodeData(dec *encoding.Decoder, body []byte) string {
	if dec == nil {
		return tlv.MakeSafeASCII(body)
	}
	text, err := dec.Bytes(body)
	if err != nil {
		return tlv.MakeSafeASCII(body)
	}
	return string(text)
}
