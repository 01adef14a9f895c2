package pcsc

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ebfe/scard"
	"github.com/rs/zerolog/log"
)

// EventKind is a card presence transition.
type EventKind int

const (
	Inserted EventKind = iota
	Removed
)

func (k EventKind) String() string {
	switch k {
	case Inserted:
		return "inserted"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event reports a card inserted into or removed from a watched reader.
type Event struct {
	Reader string
	Kind   EventKind
	ATR    []byte // set on Inserted when the reader reports it
}

func (e Event) String() string {
	return e.Reader + ": " + e.Kind.String()
}

// Monitor watches a set of readers for card presence changes.
// Watch and Unwatch may be called while Run is active.
type Monitor struct {
	ctx      Context
	interval time.Duration

	mu      sync.Mutex
	watched map[string]bool
	state   map[string]scard.StateFlag
}

// NewMonitor returns a monitor polling every interval.
func NewMonitor(ctx Context, interval time.Duration) *Monitor {
	return &Monitor{
		ctx:      ctx,
		interval: interval,
		watched:  make(map[string]bool),
		state:    make(map[string]scard.StateFlag),
	}
}

// Watch adds reader to the watched set.
func (m *Monitor) Watch(reader string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watched[reader] = true
}

// Unwatch removes reader and forgets its last state.
func (m *Monitor) Unwatch(reader string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.watched, reader)
	delete(m.state, reader)
}

// Toggle flips the watch state of reader and returns the new one.
func (m *Monitor) Toggle(reader string) bool {
	if m.IsWatched(reader) {
		m.Unwatch(reader)
		return false
	}
	m.Watch(reader)
	return true
}

// IsWatched reports whether reader is watched.
func (m *Monitor) IsWatched(reader string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watched[reader]
}

// Watched returns the watched readers, sorted.
func (m *Monitor) Watched() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.watched))
	for name := range m.watched {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Run polls until ctx is done, calling onEvent for every transition.
// Cancelling ctx interrupts a pending status wait. Run returns nil once ctx is done.
func (m *Monitor) Run(ctx context.Context, onEvent func(Event)) error {
	stop := context.AfterFunc(ctx, func() {
		if err := m.ctx.Cancel(); err != nil {
			log.Debug().Err(err).Msg("failed to cancel status wait")
		}
	})
	defer stop()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if len(m.Watched()) == 0 {
			if !sleep(ctx, m.interval) {
				return nil
			}
			continue
		}

		events, err := m.Poll()
		if err != nil {
			log.Debug().Err(err).Msg("card state poll failed")
			if !sleep(ctx, m.interval) {
				return nil
			}
			continue
		}

		for _, ev := range events {
			onEvent(ev)
		}
	}
}

// Poll waits up to one interval for a state change on the watched readers and
// returns the presence transitions. A reader seen for the first time is compared
// against an empty slot.
func (m *Monitor) Poll() ([]Event, error) {
	names := m.Watched()
	if len(names) == 0 {
		return nil, nil
	}

	m.mu.Lock()
	rs := make([]scard.ReaderState, len(names))
	for i, name := range names {
		rs[i] = scard.ReaderState{Reader: name, CurrentState: m.state[name]}
	}
	m.mu.Unlock()

	err := m.ctx.GetStatusChange(rs, m.interval)
	if errors.Is(err, scard.ErrTimeout) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var events []Event
	for _, st := range rs {
		if !m.watched[st.Reader] {
			continue
		}

		was := m.state[st.Reader]&scard.StatePresent != 0
		now := st.EventState&scard.StatePresent != 0
		m.state[st.Reader] = st.EventState &^ scard.StateChanged

		switch {
		case now && !was:
			events = append(events, Event{Reader: st.Reader, Kind: Inserted, ATR: st.Atr})
		case was && !now:
			events = append(events, Event{Reader: st.Reader, Kind: Removed})
		}
	}
	return events, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
