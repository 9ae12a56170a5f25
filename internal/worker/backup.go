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
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/backube/kube-borg-backup/internal/k8sutil"
)

const localCacheDir = "/tmp/local-cache"

// BackupOptions carries the per-entry parameters the create-backup operation
// needs beyond what's in the config document (the entry itself, resolved at
// the orchestrator level and passed down via the ephemeral config secret in
// the real deployment; tests construct this directly).
type BackupOptions struct {
	EntryName  string
	SourcePath string
	LockWait   time.Duration
	BorgFlags  []string
}

// RunBackup executes the §4.8 create-backup operation: optional
// cache-the-cache staging, archive creation with a single exit-2 retry, and
// a post-success prune.
func (c *Context) RunBackup(ctx context.Context, opts BackupOptions, now time.Time) error {
	if err := c.EnsureRepository(ctx); err != nil {
		return err
	}

	if c.Config.CacheTheCache {
		if err := stageCacheIn(ctx); err != nil {
			return err
		}
		c.Engine.CacheDirectory = localCacheDir
		defer func() {
			if err := stageCacheOut(context.Background()); err != nil {
				c.Log.Error(err, "failed to rsync cache back to /cache")
			}
		}()
	}

	archiveName := k8sutil.ArchiveRevisionName(opts.EntryName, now)

	if err := c.createOnce(ctx, archiveName, opts); err != nil {
		if !isExitCode(err, 2) {
			return err
		}
		c.Log.Info("create exited 2, re-probing repository before retry", "archive", archiveName)
		if ensureErr := c.EnsureRepository(ctx); ensureErr != nil {
			return ensureErr
		}
		if err := c.createOnce(ctx, archiveName, opts); err != nil {
			return fmt.Errorf("archive create failed after retry: %w", err)
		}
	}

	if !c.Config.Retention.IsZero() {
		res, err := c.Engine.Prune(ctx, k8sutil.ArchiveGlob(opts.EntryName), pruneFlags(c.Config.Retention))
		if err != nil {
			return fmt.Errorf("prune: %w", err)
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("prune exited %d: %s", res.ExitCode, res.Stderr)
		}
	}
	return nil
}

func (c *Context) createOnce(ctx context.Context, archiveName string, opts BackupOptions) error {
	handle, err := c.Engine.StartCreate(ctx, archiveName, opts.SourcePath, opts.LockWait, opts.BorgFlags)
	if err != nil {
		return err
	}
	c.active.set(handle)
	defer c.active.clear()
	stop := StartHeartbeat(c.Log, handle)
	defer stop()

	res, err := handle.Wait()
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return &exitCodeError{code: res.ExitCode, stderr: res.Stderr}
	}
	return nil
}

type exitCodeError struct {
	code   int
	stderr string
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("archive create exited %d: %s", e.code, e.stderr)
}

func isExitCode(err error, code int) bool {
	e, ok := err.(*exitCodeError)
	return ok && e.code == code
}

// stageCacheIn rsyncs /cache into the local scratch directory, per §4.8's
// "cache-the-cache" optimisation.
func stageCacheIn(ctx context.Context) error {
	if err := os.MkdirAll(localCacheDir, 0700); err != nil {
		return fmt.Errorf("creating local cache dir: %w", err)
	}
	return runRsync(ctx, "/cache/", localCacheDir+"/")
}

// stageCacheOut rsyncs the local scratch cache back to the persistent /cache
// volume, verbose for diagnostics per §4.8's shutdown sequence wording.
func stageCacheOut(ctx context.Context) error {
	return runRsync(ctx, localCacheDir+"/", "/cache/")
}

func runRsync(ctx context.Context, src, dst string) error {
	cmd := exec.CommandContext(ctx, "rsync", "-av", "--delete", src, dst)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("rsync %s -> %s: %w", src, dst, err)
	}
	return nil
}
