package shotsignal

import (
	"context"
	"log"
	"os"
	"os/signal"
)

// ListenSignals posts UserDidTakeScreenshot on center for every received
// OS signal in sigs until ctx is done. Screenshot tools hook in by sending
// the signal to the daemon after each capture.
//
// The handler is installed before ListenSignals returns, so a signal sent
// right after cannot hit the default action and end the process. The
// returned channel closes once relaying has stopped.
func ListenSignals(ctx context.Context, center *Center, sigs ...os.Signal) <-chan struct{} {
	stopped := make(chan struct{})
	if len(sigs) == 0 {
		close(stopped)
		return stopped
	}

	ch := make(chan os.Signal, 8)
	signal.Notify(ch, sigs...)

	go func() {
		defer close(stopped)
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-ch:
				n := center.Post(UserDidTakeScreenshot, sig.String())
				log.Printf("[SIGNAL] %s -> %s (%d observers)", sig, UserDidTakeScreenshot, n)
			}
		}
	}()
	return stopped
}
