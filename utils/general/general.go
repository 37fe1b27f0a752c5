package generalutils

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

// HandleSignals returns a context that is cancelled on SIGINT/SIGTERM so
// in-flight cloud calls stop instead of leaking half-finished polls.
func HandleSignals(parent context.Context) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logrus.WithField("signal", sig.String()).Warn("Received termination signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx
}
