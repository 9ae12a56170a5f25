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

// Package backupworkflow implements the two-phase Backup Workflow (spec.md
// §4.6): a concurrent clone fan-out followed by sequential per-entry archive
// writes.
package backupworkflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	snapv1 "github.com/kubernetes-csi/external-snapshotter/client/v8/apis/volumesnapshot/v1"
	"gopkg.in/yaml.v3"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/backube/kube-borg-backup/internal/clone"
	"github.com/backube/kube-borg-backup/internal/config"
	"github.com/backube/kube-borg-backup/internal/k8sutil"
	"github.com/backube/kube-borg-backup/internal/snapshot"
	"github.com/backube/kube-borg-backup/internal/tracker"
	"github.com/backube/kube-borg-backup/internal/workerpod"
)

// Workflow drives a full backup run: every configured entry, snapshotted
// entries first, in the order spec.md §4.6 requires.
type Workflow struct {
	Config     config.Document
	Client     client.Client
	Clientset  kubernetes.Interface
	Namespace  string
	Snapshots  *snapshot.Controller
	Clones     *clone.Provisioner
	Supervisor *workerpod.Supervisor
	Tracker    *tracker.Tracker
	IsOpenShift bool
	Log        logr.Logger
}

// EntryResult records one backup entry's outcome.
type EntryResult struct {
	Entry config.BackupEntry
	Err   error
}

// cloneResult is Phase 1's per-entry outcome, threaded into Phase 2.
type cloneResult struct {
	entry config.BackupEntry
	pvc   *corev1.PersistentVolumeClaim
	err   error
}

// Run executes both phases and returns one result per configured entry, in
// the order they were processed (snapshotted entries first, then direct
// entries, each group in configuration order, per §4.6).
func (w *Workflow) Run(ctx context.Context, now time.Time) []EntryResult {
	ordered := orderEntries(w.Config.Backups)

	clones := w.phase1(ctx, ordered, now)

	results := make([]EntryResult, 0, len(ordered))
	for _, entry := range ordered {
		results = append(results, w.phase2(ctx, entry, clones[entry.Name], now))
	}
	return results
}

// orderEntries returns entries with every snapshotted=true entry first,
// then snapshotted=false entries, each group preserving configuration order.
func orderEntries(entries []config.BackupEntry) []config.BackupEntry {
	var snapshotted, direct []config.BackupEntry
	for _, e := range entries {
		if e.IsSnapshotted() {
			snapshotted = append(snapshotted, e)
		} else {
			direct = append(direct, e)
		}
	}
	return append(snapshotted, direct...)
}

// phase1 fans clone creation out across a worker pool sized to the entry
// count (§4.6 Phase 1, §5 "Clone fan-out uses a bounded worker pool whose
// size equals the number of backup entries").
func (w *Workflow) phase1(ctx context.Context, entries []config.BackupEntry, now time.Time) map[string]cloneResult {
	out := make(map[string]cloneResult, len(entries))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, entry := range entries {
		if !entry.IsSnapshotted() {
			continue
		}
		entry := entry
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := w.createClone(ctx, entry, now)
			mu.Lock()
			out[entry.Name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

func (w *Workflow) createClone(ctx context.Context, entry config.BackupEntry, now time.Time) cloneResult {
	all, err := w.Snapshots.ListForSource(ctx, entry.PVC)
	if err != nil {
		return cloneResult{entry: entry, err: fmt.Errorf("listing snapshots for %s: %w", entry.PVC, err)}
	}
	snaps := readySnapshots(all)
	if len(snaps) == 0 {
		return cloneResult{entry: entry, err: fmt.Errorf("no ready snapshot found for volume %s", entry.PVC)}
	}
	newest := newestSnapshot(snaps)

	w.Tracker.Track(tracker.KindCloneVolume, w.Namespace, k8sutil.CloneName(newest.Name, now))
	pvc, err := w.Clones.Create(ctx, &newest, entry.StorageClass, entry.CloneBindTimeout, now)
	if err != nil {
		return cloneResult{entry: entry, err: fmt.Errorf("provisioning clone for %s: %w", entry.Name, err)}
	}
	return cloneResult{entry: entry, pvc: pvc}
}

func readySnapshots(snaps []snapv1.VolumeSnapshot) []snapv1.VolumeSnapshot {
	var out []snapv1.VolumeSnapshot
	for _, s := range snaps {
		if s.Status != nil && s.Status.ReadyToUse != nil && *s.Status.ReadyToUse {
			out = append(out, s)
		}
	}
	return out
}

func newestSnapshot(snaps []snapv1.VolumeSnapshot) snapv1.VolumeSnapshot {
	newest := snaps[0]
	for _, s := range snaps[1:] {
		if s.CreationTimestamp.After(newest.CreationTimestamp.Time) {
			newest = s
		}
	}
	return newest
}

// phase2 performs the sequential archive write for one entry, unconditionally
// cleaning up everything it created regardless of outcome.
func (w *Workflow) phase2(ctx context.Context, entry config.BackupEntry, cr cloneResult, now time.Time) EntryResult {
	if entry.IsSnapshotted() && cr.err != nil {
		return EntryResult{Entry: entry, Err: cr.err}
	}

	dataClaim := entry.PVC
	dataReadOnly := true
	if entry.IsSnapshotted() {
		dataClaim = cr.pvc.Name
	}

	podName := k8sutil.WorkerPodName(w.Config.ReleaseName, entry.Name, now)
	secretName := k8sutil.EphemeralSecretName(podName)

	defer w.cleanup(ctx, podName, secretName, dataClaim, entry.IsSnapshotted())

	secretData, err := w.buildSecretPayload(entry)
	if err != nil {
		return EntryResult{Entry: entry, Err: err}
	}
	secret := workerpod.EphemeralSecret(secretName, w.Namespace, secretData, k8sutil.BaseLabels(k8sutil.OperationBackup))
	w.Tracker.Track(tracker.KindEphemeralSecret, w.Namespace, secretName)
	if _, err := w.Clientset.CoreV1().Secrets(w.Namespace).Create(ctx, secret, metav1.CreateOptions{}); err != nil {
		return EntryResult{Entry: entry, Err: fmt.Errorf("creating ephemeral secret for %s: %w", entry.Name, err)}
	}

	pod := workerpod.BuildPod(workerpod.Spec{
		Name:                  podName,
		Namespace:             w.Namespace,
		Role:                  workerpod.RoleBackup,
		Image:                 w.Config.Pod.Image,
		Resources:             w.Config.Pod.Resources,
		Privileged:            w.Config.Pod.Privileged,
		IsOpenShift:           w.IsOpenShift,
		ConfigSecret:          secretName,
		DataClaim:             dataClaim,
		DataReadOnly:          dataReadOnly,
		CacheClaim:            w.Config.CachePVC,
		ActiveDeadlineSeconds: int64(entry.Timeout.Seconds()),
		Labels:                k8sutil.WithSourceVolume(k8sutil.BaseLabels(k8sutil.OperationBackup), entry.PVC),
	})
	w.Tracker.Track(tracker.KindWorkerPod, w.Namespace, podName)

	entryCtx := ctx
	var cancel context.CancelFunc
	if entry.Timeout > 0 {
		entryCtx, cancel = context.WithTimeout(ctx, entry.Timeout)
		defer cancel()
	}

	outcome, err := w.Supervisor.Launch(entryCtx, pod)
	if err != nil {
		return EntryResult{Entry: entry, Err: fmt.Errorf("worker pod %s: %w", podName, err)}
	}
	if outcome.Phase != corev1.PodSucceeded {
		return EntryResult{Entry: entry, Err: fmt.Errorf("worker pod %s failed: %s: %s", podName, outcome.Reason, outcome.Message)}
	}
	return EntryResult{Entry: entry}
}

// buildSecretPayload re-serializes the archive-engine credentials and this
// entry's parameters, mirroring the ephemeral config secret's role (§3) of
// carrying the whole per-run document into the pod.
func (w *Workflow) buildSecretPayload(entry config.BackupEntry) ([]byte, error) {
	doc := w.Config
	doc.Backups = []config.BackupEntry{entry}
	return yaml.Marshal(doc)
}

// cleanup unconditionally deletes the worker pod, ephemeral secret, and (if
// snapshotted) clone volume for one entry, per §4.6 Phase 2 step 5.
func (w *Workflow) cleanup(ctx context.Context, podName, secretName, cloneClaim string, snapshotted bool) {
	if err := w.Supervisor.Delete(ctx, podName); err != nil {
		w.Log.Error(err, "failed to delete worker pod", "pod", podName)
	} else {
		w.Tracker.Untrack(tracker.KindWorkerPod, w.Namespace, podName)
	}

	if err := w.Clientset.CoreV1().Secrets(w.Namespace).Delete(ctx, secretName, metav1.DeleteOptions{}); err != nil {
		w.Log.Error(err, "failed to delete ephemeral secret", "secret", secretName)
	} else {
		w.Tracker.Untrack(tracker.KindEphemeralSecret, w.Namespace, secretName)
	}

	if snapshotted && cloneClaim != "" {
		if err := w.Clones.Delete(ctx, cloneClaim); err != nil {
			w.Log.Error(err, "failed to delete clone volume", "clone", cloneClaim)
		} else {
			w.Tracker.Untrack(tracker.KindCloneVolume, w.Namespace, cloneClaim)
		}
	}
}
