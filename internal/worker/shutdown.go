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
	"context"
	"syscall"
	"time"

	"github.com/backube/kube-borg-backup/internal/archiveengine"
)

// GracefulStop implements §4.8's shutdown sequence for a running engine
// handle: SIGINT, wait up to waitTimeout, SIGKILL, break-lock if killed, and
// (if cache-the-cache is active) rsync the local cache back.
func (c *Context) GracefulStop(handle *archiveengine.Handle, waitTimeout time.Duration) {
	if err := handle.Signal(syscall.SIGINT); err != nil {
		c.Log.Error(err, "failed to send SIGINT to archive engine")
	}

	exited := make(chan struct{})
	go func() {
		_, _ = handle.Wait()
		close(exited)
	}()

	killed := false
	select {
	case <-exited:
	case <-time.After(waitTimeout):
		if err := handle.Kill(); err != nil {
			c.Log.Error(err, "failed to SIGKILL archive engine")
		}
		<-exited
		killed = true
	}

	if killed {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := c.Engine.BreakLock(ctx); err != nil {
			c.Log.Error(err, "break-lock failed after forced kill")
		}
	}

	if c.Config.CacheTheCache {
		if err := stageCacheOut(context.Background()); err != nil {
			c.Log.Error(err, "failed to rsync cache back during shutdown")
		}
	}
}

// ShutdownWaitTimeout returns the wait-before-SIGKILL duration for the
// backup (10s) or list (20s) variants of the graceful-shutdown sequence.
func ShutdownWaitTimeout(isListVariant bool) time.Duration {
	if isListVariant {
		return 20 * time.Second
	}
	return 10 * time.Second
}
