package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// CatchCtrlC returns a context that is canceled upon receipt of SIGINT or
// SIGTERM. A second signal is not caught, so it terminates the program
// immediately.
func CatchCtrlC(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
