package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// CreateContextWithShutdown returns a context that will report done when a SIGTERM is received
func CreateContextWithShutdown() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-c:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}

// KillOnShutdown invokes kill the first time SIGINT or SIGTERM is received.
// Unlike cancelling a context this does not abort in-flight statements; it
// is meant for wiring shutdown signals to a work pool's kill switch, which
// only stops new dispatch. The returned function stops listening.
func KillOnShutdown(kill func()) (stop func()) {
	c := make(chan os.Signal, 1)
	stopped := make(chan struct{})
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-c:
			kill()
		case <-stopped:
		}
	}()
	return func() {
		signal.Stop(c)
		close(stopped)
	}
}
