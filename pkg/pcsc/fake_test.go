package pcsc

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/ebfe/scard"
)

type fakeCard struct {
	status    *scard.CardStatus
	statusErr error

	responses [][]byte
	sent      [][]byte

	ioctls       []uint32
	controlReply []byte

	disconnected []scard.Disposition
}

func (c *fakeCard) Status() (*scard.CardStatus, error) {
	if c.statusErr != nil {
		return nil, c.statusErr
	}
	return c.status, nil
}

func (c *fakeCard) Transmit(cmd []byte) ([]byte, error) {
	c.sent = append(c.sent, bytes.Clone(cmd))
	if len(c.responses) == 0 {
		return nil, errors.New("no scripted response")
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

func (c *fakeCard) Control(ioctl uint32, in []byte) ([]byte, error) {
	c.ioctls = append(c.ioctls, ioctl)
	c.sent = append(c.sent, bytes.Clone(in))
	return c.controlReply, nil
}

func (c *fakeCard) Disconnect(d scard.Disposition) error {
	c.disconnected = append(c.disconnected, d)
	return nil
}

type connectCall struct {
	reader string
	mode   scard.ShareMode
	proto  scard.Protocol
}

type fakeContext struct {
	mu sync.Mutex

	readers []string
	listErr error

	card       *fakeCard
	connectErr error
	connects   []connectCall

	// rounds are the EventStates returned by successive GetStatusChange calls,
	// keyed by reader. Once exhausted, calls time out.
	rounds    []map[string]scard.StateFlag
	seen      [][]scard.ReaderState
	statusErr error

	// blockIdle makes an exhausted GetStatusChange wait for Cancel instead of
	// timing out.
	blockIdle  bool
	cancelled  chan struct{}
	cancelOnce sync.Once
}

func newBlockingContext() *fakeContext {
	return &fakeContext{blockIdle: true, cancelled: make(chan struct{})}
}

func (f *fakeContext) ListReaders() ([]string, error) {
	return f.readers, f.listErr
}

func (f *fakeContext) GetStatusChange(rs []scard.ReaderState, _ time.Duration) error {
	f.mu.Lock()
	f.seen = append(f.seen, append([]scard.ReaderState(nil), rs...))
	if f.statusErr != nil {
		f.mu.Unlock()
		return f.statusErr
	}
	if len(f.rounds) == 0 {
		f.mu.Unlock()
		if f.blockIdle {
			<-f.cancelled
			return scard.ErrCancelled
		}
		return scard.ErrTimeout
	}
	defer f.mu.Unlock()
	round := f.rounds[0]
	f.rounds = f.rounds[1:]
	for i := range rs {
		rs[i].EventState = round[rs[i].Reader] | scard.StateChanged
	}
	return nil
}

func (f *fakeContext) Connect(reader string, mode scard.ShareMode, proto scard.Protocol) (Card, error) {
	f.connects = append(f.connects, connectCall{reader, mode, proto})
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	return f.card, nil
}

func (f *fakeContext) Cancel() error {
	if f.cancelled != nil {
		f.cancelOnce.Do(func() { close(f.cancelled) })
	}
	return nil
}

func (f *fakeContext) Release() error {
	return nil
}
