//go:build !windows

package serverrun

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rzbill/flagstream/internal/runtime"
	logpkg "github.com/rzbill/flagstream/pkg/log"
)

// watchLifecycle maps SIGUSR1 to Pause and SIGUSR2 to Resume.
func watchLifecycle(ctx context.Context, rt *runtime.Runtime, logger logpkg.Logger) func() {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, syscall.SIGUSR1, syscall.SIGUSR2)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-ch:
				if !ok {
					return
				}
				switch sig {
				case syscall.SIGUSR1:
					logger.Info("pause requested", logpkg.Str("signal", sig.String()))
					rt.Pause()
				case syscall.SIGUSR2:
					logger.Info("resume requested", logpkg.Str("signal", sig.String()))
					rt.Resume()
				}
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(ch)
		<-done
	}
}
