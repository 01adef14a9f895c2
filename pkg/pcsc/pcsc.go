// Package pcsc connects scripts to smart card readers through the PC/SC service.
//
// The scard types are reached through the Context and Card interfaces so that the
// registry, the connection and the monitor can be exercised without a reader.
package pcsc

import (
	"fmt"
	"time"

	"github.com/ebfe/scard"
)

// Card abstracts scard.Card.
type Card interface {
	Status() (*scard.CardStatus, error)
	Transmit(cmd []byte) ([]byte, error)
	Control(ioctl uint32, in []byte) ([]byte, error)
	Disconnect(d scard.Disposition) error
}

// Context abstracts scard.Context.
type Context interface {
	ListReaders() ([]string, error)
	GetStatusChange(rs []scard.ReaderState, timeout time.Duration) error
	Connect(reader string, mode scard.ShareMode, proto scard.Protocol) (Card, error)
	// Cancel aborts a pending GetStatusChange, which then fails with scard.ErrCancelled.
	Cancel() error
	Release() error
}

type scardContext struct {
	ctx *scard.Context
}

// Establish creates a PC/SC context. The caller releases it.
func Establish() (Context, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("failed to establish scard context: %w", err)
	}
	return &scardContext{ctx: ctx}, nil
}

func (s *scardContext) ListReaders() ([]string, error) {
	readers, err := s.ctx.ListReaders()
	if err != nil {
		return nil, fmt.Errorf("failed to list readers: %w", err)
	}
	return readers, nil
}

func (s *scardContext) GetStatusChange(rs []scard.ReaderState, timeout time.Duration) error {
	if err := s.ctx.GetStatusChange(rs, timeout); err != nil {
		return fmt.Errorf("failed to get status change: %w", err)
	}
	return nil
}

func (s *scardContext) Connect(reader string, mode scard.ShareMode, proto scard.Protocol) (Card, error) {
	card, err := s.ctx.Connect(reader, mode, proto)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to reader: %w", err)
	}
	return card, nil
}

func (s *scardContext) Cancel() error {
	if err := s.ctx.Cancel(); err != nil {
		return fmt.Errorf("failed to cancel context: %w", err)
	}
	return nil
}

func (s *scardContext) Release() error {
	if err := s.ctx.Release(); err != nil {
		return fmt.Errorf("failed to release context: %w", err)
	}
	return nil
}
