package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const defaultShutdownTimeout = 30 * time.Second

// RunWithGracefulShutdown runs the pipeline until it finishes or the process
// receives SIGTERM/SIGINT. After a signal the sources are cancelled and the
// pipeline gets timeout to unwind before an error is returned without it.
func RunWithGracefulShutdown(ctx context.Context, engine *Engine, timeout time.Duration) error {
	if timeout == 0 {
		timeout = defaultShutdownTimeout
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- engine.Run(ctx)
	}()

	var sig os.Signal
	select {
	case err := <-errCh:
		return err
	case sig = <-sigCh:
	}

	slog.Info("received shutdown signal", "signal", sig, "pipeline", engine.name)
	cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-errCh:
		return err
	case <-timer.C:
		slog.Warn("shutdown timeout expired, abandoning pipeline", "pipeline", engine.name, "timeout", timeout)
		return fmt.Errorf("pipeline %s: shutdown timed out after %s", engine.name, timeout)
	}
}
