// Package override lets an operator declare a phase successful outside the
// perception channel.
package override

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
)

// Source blocks until an external trigger occurs or ctx ends.
type Source interface {
	WaitForSignal(ctx context.Context) error
}

// Listen waits for one signal from src and calls onSignal. It returns nil
// when ctx ends first; any other error comes from the source.
func Listen(ctx context.Context, src Source, onSignal func()) error {
	err := src.WaitForSignal(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if ctx.Err() != nil {
		return nil
	}
	onSignal()
	return nil
}

// Manual is a programmatic source. Fire only reaches a phase that is
// currently waiting; a signal with no listener is dropped so it cannot leak
// into a later phase.
type Manual struct {
	ch chan struct{}
}

func NewManual() *Manual { return &Manual{ch: make(chan struct{})} }

func (m *Manual) Fire() bool {
	select {
	case m.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

func (m *Manual) WaitForSignal(ctx context.Context) error {
	select {
	case <-m.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var ErrInputClosed = errors.New("override input closed")

// Keyboard triggers on an operator line from the terminal. An empty keyword
// accepts any line, including a bare Enter.
type Keyboard struct {
	lines   <-chan string
	keyword string
	log     zerolog.Logger
}

func NewKeyboard(lines <-chan string, keyword string, logger zerolog.Logger) *Keyboard {
	return &Keyboard{
		lines:   lines,
		keyword: strings.ToLower(strings.TrimSpace(keyword)),
		log:     logger.With().Str("component", "override").Str("source", "keyboard").Logger(),
	}
}

func (k *Keyboard) WaitForSignal(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-k.lines:
			if !ok {
				return ErrInputClosed
			}
			got := strings.ToLower(strings.TrimSpace(line))
			if k.keyword == "" || got == k.keyword {
				k.log.Info().Str("input", got).Msg("manual override")
				return nil
			}
			k.log.Debug().Str("input", got).Msg("ignoring input")
		}
	}
}
