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

package orchestrator

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/backube/kube-borg-backup/internal/errs"
)

// WithSignalShutdown returns a context that is cancelled on SIGTERM/SIGINT
// and a cleanup function the caller must invoke (typically via defer) once
// its workflow returns, which drains the tracker exactly once regardless of
// whether a signal or a normal return triggered it.
//
// The returned stop function's return value is the error to surface to the
// caller's exit-code mapping: non-nil (wrapped as errs.Shutdown) only if a
// signal actually arrived first.
func WithSignalShutdown(parent context.Context, k *Kernel) (ctx context.Context, stop func() error) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	signalled := make(chan struct{})
	done := make(chan struct{})

	go func() {
		select {
		case <-sigCh:
			close(signalled)
			cancel()
		case <-done:
		}
	}()

	return ctx, func() error {
		close(done)
		signal.Stop(sigCh)
		cancel()

		select {
		case <-signalled:
			k.Shutdown(context.Background())
			return errs.Shutdown(nil)
		default:
			return nil
		}
	}
}
