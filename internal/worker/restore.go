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
	"path/filepath"
	"time"

	"github.com/backube/kube-borg-backup/internal/archiveengine"
)

const (
	mountPoint        = "/source"
	mountPollInterval = 2 * time.Second
	mountPollTimeout  = 60 * time.Second
	unmountWait       = 10 * time.Second
)

// RunSnapshotRestore performs §4.7's "Snapshot restore" worker-side step: a
// plain archival sync from the read-only clone mount into the target
// volume. The clone is already mounted at /data by the pod spec (§3's Worker
// Pod mount contract); there is nothing archive-engine-specific here.
func (c *Context) RunSnapshotRestore(ctx context.Context, targetPath string) error {
	return runRsync(ctx, "/data/", targetPath+"/")
}

// RunArchiveRestore performs §4.7's "Archive-revision restore": FUSE-mounts
// the revision in the background, waits for it to populate, strips a legacy
// single top-level "data/" layout if present, syncs into target, then tears
// the mount down.
func (c *Context) RunArchiveRestore(ctx context.Context, archiveName, targetPath string) error {
	if err := os.MkdirAll(mountPoint, 0700); err != nil {
		return fmt.Errorf("creating mount point: %w", err)
	}

	handle, err := c.Engine.StartMount(ctx, archiveName, mountPoint)
	if err != nil {
		return fmt.Errorf("starting fuse mount: %w", err)
	}
	c.active.set(handle)
	defer c.active.clear()
	defer c.teardownMount(handle)

	if err := waitMountPopulated(ctx, mountPoint); err != nil {
		return err
	}

	sourcePath := stripLegacyDataDir(mountPoint)
	return runRsync(ctx, sourcePath+"/", targetPath+"/")
}

func waitMountPopulated(ctx context.Context, path string) error {
	deadline := time.Now().Add(mountPollTimeout)
	ticker := time.NewTicker(mountPollInterval)
	defer ticker.Stop()

	for {
		entries, err := os.ReadDir(path)
		if err == nil && len(entries) > 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("fuse mount at %s did not populate within %s", path, mountPollTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// stripLegacyDataDir detects the reference archive layout's single
// top-level "data/" directory (§4.7 step 4c) and returns the path to sync
// from instead of mountPoint.
func stripLegacyDataDir(path string) string {
	entries, err := os.ReadDir(path)
	if err != nil || len(entries) != 1 || !entries[0].IsDir() || entries[0].Name() != "data" {
		return path
	}
	return filepath.Join(path, "data")
}

// teardownMount unmounts with fusermount -u, waits for the background mount
// process to exit, and falls back to break-lock if it's still stuck.
func (c *Context) teardownMount(handle *archiveengine.Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), unmountWait)
	defer cancel()

	if err := exec.CommandContext(ctx, "fusermount", "-u", mountPoint).Run(); err != nil {
		c.Log.Error(err, "fusermount -u failed")
	}

	exited := make(chan struct{})
	go func() {
		_, _ = handle.Wait()
		close(exited)
	}()

	select {
	case <-exited:
	case <-time.After(unmountWait):
		if err := handle.Kill(); err != nil {
			c.Log.Error(err, "failed to kill stuck fuse mount process")
		}
		<-exited
		if _, err := c.Engine.BreakLock(context.Background()); err != nil {
			c.Log.Error(err, "break-lock failed after stuck fuse mount")
		}
	}
}
