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

// Package snapshot implements the Snapshot Controller (spec.md §4.3): create
// a VolumeSnapshot from a source PVC and wait for it to become bound and
// ready, plus the tiered retention pruner (§4.4).
//
// Grounded on controllers/volumehandler/volumehandler.go's ensureSnapshot,
// adapted from a reconcile-loop CreateOrUpdate (which relies on an owning
// custom resource for SetControllerReference/MarkForCleanup) to a one-shot
// create-then-poll call, since this orchestrator has no owning CR.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	snapv1 "github.com/kubernetes-csi/external-snapshotter/client/v8/apis/volumesnapshot/v1"
	kerrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/backube/kube-borg-backup/internal/k8sutil"
)

// Controller creates and observes VolumeSnapshots in one namespace.
type Controller struct {
	Client    client.Client
	Namespace string
	Log       logr.Logger
}

// New builds a Controller.
func New(c client.Client, namespace string, log logr.Logger) *Controller {
	return &Controller{Client: c, Namespace: namespace, Log: log}
}

// Create issues a VolumeSnapshot named per k8sutil.SnapshotName for pvcName
// using snapshotClass, then blocks until the snapshot reports
// BoundVolumeSnapshotContentName and ReadyToUse=true, or ctx/timeout expires.
// Snapshots are persistent and are not registered with the Resource Tracker;
// only the clone volumes created from them are.
func (c *Controller) Create(ctx context.Context, pvcName, snapshotClass string, timeout time.Duration, now time.Time) (*snapv1.VolumeSnapshot, error) {
	name := k8sutil.SnapshotName(pvcName, now)
	logger := c.Log.WithValues("snapshot", name, "pvc", pvcName)

	snap := &snapv1.VolumeSnapshot{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: c.Namespace,
			Labels:    k8sutil.WithSourceVolume(k8sutil.BaseLabels(k8sutil.OperationBackup), pvcName),
		},
		Spec: snapv1.VolumeSnapshotSpec{
			Source: snapv1.VolumeSnapshotSource{
				PersistentVolumeClaimName: &pvcName,
			},
		},
	}
	if snapshotClass != "" {
		snap.Spec.VolumeSnapshotClassName = &snapshotClass
	}

	if err := c.Client.Create(ctx, snap); err != nil && !kerrors.IsAlreadyExists(err) {
		return nil, fmt.Errorf("creating VolumeSnapshot %s/%s: %w", c.Namespace, name, err)
	}

	ready, err := c.waitReady(ctx, name, timeout)
	if err != nil {
		return nil, err
	}
	logger.Info("snapshot ready", "boundContent", *ready.Status.BoundVolumeSnapshotContentName)
	return ready, nil
}

// waitReady polls the snapshot until it is bound and ready, matching the
// teacher's readiness predicate (status != nil &&
// BoundVolumeSnapshotContentName != nil) plus the ReadyToUse flag the
// teacher's temporary-snapshot path does not itself need to check because it
// consumes the snapshot before CSI finishes the data copy; this controller's
// snapshots are persistent and must be fully ready before being reported.
func (c *Controller) waitReady(ctx context.Context, name string, timeout time.Duration) (*snapv1.VolumeSnapshot, error) {
	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		snap := &snapv1.VolumeSnapshot{}
		key := client.ObjectKey{Namespace: c.Namespace, Name: name}
		if err := c.Client.Get(ctx, key, snap); err != nil {
			return nil, fmt.Errorf("getting VolumeSnapshot %s: %w", name, err)
		}

		if snap.Status != nil && snap.Status.Error != nil && snap.Status.Error.Message != nil {
			return nil, fmt.Errorf("snapshot %s failed: %s", name, *snap.Status.Error.Message)
		}

		if snap.Status != nil && snap.Status.BoundVolumeSnapshotContentName != nil &&
			snap.Status.ReadyToUse != nil && *snap.Status.ReadyToUse {
			return snap, nil
		}

		select {
		case <-deadlineCtx.Done():
			return nil, fmt.Errorf("timed out waiting for snapshot %s to become ready", name)
		case <-ticker.C:
		}
	}
}

// Delete removes a snapshot by name, ignoring not-found.
func (c *Controller) Delete(ctx context.Context, name string) error {
	snap := &snapv1.VolumeSnapshot{ObjectMeta: metav1.ObjectMeta{Namespace: c.Namespace, Name: name}}
	if err := c.Client.Delete(ctx, snap); err != nil && !kerrors.IsNotFound(err) {
		return fmt.Errorf("deleting VolumeSnapshot %s: %w", name, err)
	}
	return nil
}

// ListForSource returns every snapshot this controller's namespace holds for
// a given source volume label, for the retention pruner to bucket.
func (c *Controller) ListForSource(ctx context.Context, sourceVolume string) ([]snapv1.VolumeSnapshot, error) {
	list := &snapv1.VolumeSnapshotList{}
	if err := c.Client.List(ctx, list, client.InNamespace(c.Namespace),
		client.MatchingLabels(k8sutil.WithSourceVolume(k8sutil.BaseLabels(k8sutil.OperationBackup), sourceVolume))); err != nil {
		return nil, fmt.Errorf("listing snapshots for %s: %w", sourceVolume, err)
	}
	return list.Items, nil
}
