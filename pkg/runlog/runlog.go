// Package runlog writes the execution log of a script run: the commands, the
// responses, the timing and the verdicts, as read by the operator.
//
// Every line goes to the console and, once OpenFile succeeded, to a log file named
// after the start time of the run. Verdicts are colored on the console only.
package runlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
)

// BytesPerLine is the width of a Buffer dump.
const BytesPerLine = 16

// FileName returns the log file name for a run started at t.
func FileName(t time.Time) string {
	return "Log-" + t.Format("20060102150405") + ".txt"
}

// Logger is safe for concurrent use.
type Logger struct {
	mu      sync.Mutex
	console io.Writer
	file    *os.File
	path    string

	pass *color.Color
	fail *color.Color
}

// New returns a Logger writing to console. A nil console discards console output.
func New(console io.Writer) *Logger {
	if console == nil {
		console = io.Discard
	}
	return &Logger{
		console: console,
		pass:    color.New(color.FgGreen, color.Bold),
		fail:    color.New(color.FgRed, color.Bold),
	}
}

// OpenFile creates the log file of a run in dir, replacing a previously opened one.
func (l *Logger) OpenFile(dir string, now time.Time) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	path := filepath.Join(dir, FileName(now))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create log file: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		if err := l.file.Close(); err != nil {
			log.Warn().Err(err).Str("path", l.path).Msg("failed to close previous log file")
		}
	}
	l.file = f
	l.path = path
	return nil
}

// Path returns the path of the open log file, or "".
func (l *Logger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// Close closes the log file. Console output keeps working.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.path = ""
	if err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	return nil
}

// Msg writes one formatted line.
func (l *Logger) Msg(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	l.write(line, line)
}

// Buffer writes data as space separated hex bytes, BytesPerLine per line.
func (l *Logger) Buffer(data []byte) {
	for _, line := range FormatBuffer(data) {
		l.write(line, line)
	}
}

// HexString writes a hex string (wildcards included) grouped two characters at a time.
func (l *Logger) HexString(s string) {
	line := GroupPairs(s)
	l.write(line, line)
}

// Verdict writes the outcome of a response check.
func (l *Logger) Verdict(ok bool, format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	c := l.fail
	if ok {
		c = l.pass
	}
	l.write(c.Sprint(line), line)
}

func (l *Logger) write(consoleLine, fileLine string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := fmt.Fprintln(l.console, consoleLine); err != nil {
		log.Debug().Err(err).Msg("console write failed")
	}

	if l.file == nil {
		return
	}
	if _, err := fmt.Fprintln(l.file, fileLine); err != nil {
		log.Warn().Err(err).Str("path", l.path).Msg("log file write failed")
	}
}

// FormatBuffer renders data as lines of at most BytesPerLine bytes ("00 A4 04 00").
// An empty buffer renders as no line at all.
func FormatBuffer(data []byte) []string {
	var lines []string
	for start := 0; start < len(data); start += BytesPerLine {
		end := min(start+BytesPerLine, len(data))
		lines = append(lines, fmt.Sprintf("% X", data[start:end]))
	}
	return lines
}

// GroupPairs inserts a space between every two characters ("XX9000" -> "XX 90 00").
// A trailing single character stays on its own.
func GroupPairs(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i += 2 {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s[i:min(i+2, len(s))])
	}
	return b.String()
}
