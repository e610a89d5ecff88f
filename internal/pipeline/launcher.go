package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
)

// Launcher runs background work bound to the server's lifetime. Cancelling
// its context cancels every run started through it.
type Launcher struct {
	ctx context.Context
	wg  sync.WaitGroup
	log zerolog.Logger
}

func NewLauncher(ctx context.Context, log zerolog.Logger) *Launcher {
	return &Launcher{ctx: ctx, log: log}
}

func (l *Launcher) Context() context.Context { return l.ctx }

// Go runs fn in a goroutine. A panic is reported to Sentry and handed to
// onPanic instead of crashing the process.
func (l *Launcher) Go(fn func(), onPanic func(v any)) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() {
			if v := recover(); v != nil {
				sentry.CurrentHub().Clone().Recover(v)
				l.log.Error().Str("panic", fmt.Sprint(v)).Msg("background task panicked")
				if onPanic != nil {
					onPanic(v)
				}
			}
		}()
		fn()
	}()
}

// Wait blocks until every task has returned or ctx ends.
func (l *Launcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
