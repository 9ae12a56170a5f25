/*
Copyright 2026 The kube-borg-backup authors.

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published
by the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package worker

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/backube/kube-borg-backup/internal/archiveengine"
)

// active tracks whichever engine invocation is currently running, so a
// signal arriving mid-operation can be handed off to GracefulStop instead of
// killing the process out from under an open repository lock.
type active struct {
	mu sync.Mutex
	h  *archiveengine.Handle
}

func (a *active) set(h *archiveengine.Handle) {
	a.mu.Lock()
	a.h = h
	a.mu.Unlock()
}

func (a *active) clear() {
	a.mu.Lock()
	a.h = nil
	a.mu.Unlock()
}

func (a *active) get() *archiveengine.Handle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.h
}

// WatchSignals installs a SIGTERM/SIGINT handler that gracefully stops
// whichever engine invocation c is currently running (per §4.8's "SIGTERM
// propagates as SIGINT to the engine") and exits 143, matching the worker
// exit-code table. The returned stop function disarms the handler once the
// worker's own main operation has returned normally.
func (c *Context) WatchSignals(isListVariant bool) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	done := make(chan struct{})

	go func() {
		select {
		case <-sigCh:
			if h := c.active.get(); h != nil {
				c.GracefulStop(h, ShutdownWaitTimeout(isListVariant))
			}
			os.Exit(143)
		case <-done:
		}
	}()

	return func() {
		close(done)
		signal.Stop(sigCh)
	}
}
