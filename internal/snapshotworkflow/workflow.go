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

// Package snapshotworkflow drives the standalone Snapshot Workflow: creating
// one snapshot per configured volume (with its hooks) concurrently, then
// pruning each volume's snapshot history against its tiered retention
// policy (spec.md §4.3).
package snapshotworkflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/backube/kube-borg-backup/internal/config"
	"github.com/backube/kube-borg-backup/internal/hooks"
	"github.com/backube/kube-borg-backup/internal/snapshot"
)

// Workflow drives one snapshot cycle across every configured PVC.
type Workflow struct {
	Config    config.SnapshotSection
	Snapshots *snapshot.Controller
	Hooks     *hooks.Engine
	Timeout   time.Duration
	Log       logr.Logger
}

// EntryResult records one snapshot entry's outcome.
type EntryResult struct {
	Entry config.SnapshotEntry
	Err   error
}

// Run executes pre-hooks, creates snapshots concurrently (worker count equal
// to entry count per §4.3), signals each entry's session-linked post-hooks
// once that entry's own snapshot attempt has finished, executes lenient
// post-hooks, then prunes every volume's history. An entry's signal does not
// wait for the other entries' snapshots to become ready.
func (w *Workflow) Run(ctx context.Context, now time.Time) []EntryResult {
	results := make([]EntryResult, len(w.Config.PVCs))
	var wg sync.WaitGroup

	for i, entry := range w.Config.PVCs {
		i, entry := i, entry
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = w.runEntry(ctx, entry, now)
		}()
	}
	wg.Wait()

	for _, entry := range w.Config.PVCs {
		if err := w.Snapshots.Prune(ctx, entry.Name, w.Config.Retention, now); err != nil {
			w.Log.Error(err, "pruning snapshots failed", "volume", entry.Name)
		}
	}
	return results
}

func (w *Workflow) runEntry(ctx context.Context, entry config.SnapshotEntry, now time.Time) EntryResult {
	preSessions, remainingPre, remainingPost, err := hooks.PairSessions(entry.Hooks.Pre, entry.Hooks.Post)
	if err != nil {
		return EntryResult{Entry: entry, Err: fmt.Errorf("pairing session hooks for %s: %w", entry.Name, err)}
	}

	var runner *hooks.SessionRunner
	if len(preSessions) > 0 {
		runner = w.Hooks.StartSessions(ctx, preSessions)
		if err := runner.AwaitPreDone(ctx); err != nil {
			return EntryResult{Entry: entry, Err: fmt.Errorf("waiting for session pre-hooks on %s: %w", entry.Name, err)}
		}
	}

	if res := w.Hooks.Run(ctx, remainingPre, hooks.ModeStrict); !res.Success {
		return EntryResult{Entry: entry, Err: fmt.Errorf("pre-hooks failed for %s: %d of %d failed", entry.Name, len(res.Failed), res.Executed)}
	}

	timeout := w.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	snapCtx, cancel := context.WithTimeout(ctx, timeout)
	_, snapErr := w.Snapshots.Create(snapCtx, entry.Name, entry.SnapshotClass, timeout, now)
	cancel()

	if runner != nil {
		if err := runner.Signal(ctx); err != nil {
			w.Log.Error(err, "failed to signal session hooks", "entry", entry.Name)
		}
		if err := runner.AwaitPostStarted(ctx, 30*time.Second); err != nil {
			w.Log.Error(err, "session post-hook did not start", "entry", entry.Name)
		}
	}

	w.Hooks.Run(ctx, remainingPost, hooks.ModeLenient)
	if runner != nil {
		runner.Wait()
	}

	if snapErr != nil {
		return EntryResult{Entry: entry, Err: fmt.Errorf("creating snapshot for %s: %w", entry.Name, snapErr)}
	}
	return EntryResult{Entry: entry}
}
