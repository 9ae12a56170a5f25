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

// Package restoreworkflow implements the Restore Workflow (spec.md §4.7):
// pre-hooks, target-volume resolution, a snapshot- or archive-revision-based
// restore via a worker pod, gated post-hooks, and unconditional cleanup.
package restoreworkflow

import (
	"context"
	"fmt"
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
	"github.com/backube/kube-borg-backup/internal/hooks"
	"github.com/backube/kube-borg-backup/internal/k8sutil"
	"github.com/backube/kube-borg-backup/internal/tracker"
	"github.com/backube/kube-borg-backup/internal/workerpod"
)

// Kind selects which of §4.7's two restore paths to take.
type Kind int

const (
	// KindSnapshot restores from a VolumeSnapshot by name.
	KindSnapshot Kind = iota
	// KindArchive restores from an archive-engine revision by name.
	KindArchive
)

// Options parameterizes one restore run; ID is either the VolumeSnapshot
// name (KindSnapshot) or the archive revision name (KindArchive).
type Options struct {
	Kind           Kind
	ID             string
	TargetOverride string
	Timeout        time.Duration
}

// Workflow drives one restore run.
type Workflow struct {
	Config      config.Document
	Client      client.Client
	Clientset   kubernetes.Interface
	Namespace   string
	Clones      *clone.Provisioner
	Hooks       *hooks.Engine
	Supervisor  *workerpod.Supervisor
	Tracker     *tracker.Tracker
	IsOpenShift bool
	Log         logr.Logger
}

// Run executes the full restore sequence and returns the first fatal error,
// if any. Post-hook failures are logged but never surface here, matching
// §4.7 step 5's lenient semantics.
func (w *Workflow) Run(ctx context.Context, opts Options, now time.Time) error {
	restore := w.Config.Restore

	if res := w.Hooks.Run(ctx, restore.PreHooks, hooks.ModeStrict); !res.Success {
		return fmt.Errorf("restore pre-hooks failed: %d of %d failed", len(res.Failed), res.Executed)
	}

	target, snap, err := w.resolveTarget(ctx, opts)
	if err != nil {
		return fmt.Errorf("resolving restore target: %w", err)
	}

	podName := k8sutil.RestorePodName(w.Config.ReleaseName, target, now)
	secretName := k8sutil.EphemeralSecretName(podName)

	var cloneClaim string
	defer func() {
		w.cleanup(context.Background(), podName, secretName, cloneClaim)
	}()

	dataClaim := w.Config.CachePVC
	dataReadOnly := true
	if opts.Kind == KindSnapshot {
		cloneClaim = k8sutil.CloneName(snap.Name, now)
		w.Tracker.Track(tracker.KindCloneVolume, w.Namespace, cloneClaim)
		pvc, err := w.Clones.Create(ctx, snap, "", opts.Timeout, now)
		if err != nil {
			return fmt.Errorf("provisioning restore clone: %w", err)
		}
		dataClaim = pvc.Name
	}

	secretPayload, err := w.buildSecretPayload(opts, target)
	if err != nil {
		return err
	}
	secret := workerpod.EphemeralSecret(secretName, w.Namespace, secretPayload, k8sutil.BaseLabels(k8sutil.OperationRestore))
	w.Tracker.Track(tracker.KindEphemeralSecret, w.Namespace, secretName)
	if _, err := w.Clientset.CoreV1().Secrets(w.Namespace).Create(ctx, secret, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("creating ephemeral secret: %w", err)
	}

	pod := workerpod.BuildPod(workerpod.Spec{
		Name:                  podName,
		Namespace:             w.Namespace,
		Role:                  workerpod.RoleRestore,
		Image:                 config.ResolveImage(w.Config.Restore.Pod.Image, w.Config.Pod.Image),
		Resources:             w.Config.Pod.Resources,
		Privileged:            w.Config.Pod.Privileged,
		IsOpenShift:           w.IsOpenShift,
		ConfigSecret:          secretName,
		DataClaim:             dataClaim,
		DataReadOnly:          dataReadOnly,
		CacheClaim:            w.Config.CachePVC,
		TargetClaim:           target,
		ActiveDeadlineSeconds: int64(opts.Timeout.Seconds()),
		Labels:                k8sutil.BaseLabels(k8sutil.OperationRestore),
	})
	w.Tracker.Track(tracker.KindWorkerPod, w.Namespace, podName)

	podCtx := ctx
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		podCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	outcome, err := w.Supervisor.Launch(podCtx, pod)
	if err != nil {
		return fmt.Errorf("restore worker pod: %w", err)
	}
	if outcome.Phase != corev1.PodSucceeded {
		// §4.7 step 5: a failed file-sync explicitly skips post-hooks,
		// since re-attaching a workload to a half-restored volume is
		// worse than leaving it detached.
		return fmt.Errorf("restore worker pod %s failed: %s: %s", podName, outcome.Reason, outcome.Message)
	}

	if res := w.Hooks.Run(ctx, restore.PostHooks, hooks.ModeLenient); !res.Success {
		w.Log.Error(nil, "restore post-hooks failed", "failed", len(res.Failed), "executed", res.Executed)
	}
	return nil
}

// resolveTarget implements §4.7 step 3: an operator override wins outright;
// otherwise a snapshot restore's target is its sourceVolume label, and an
// archive restore's target is inferred from the configured entry whose name
// prefixes the archive revision name.
func (w *Workflow) resolveTarget(ctx context.Context, opts Options) (target string, snap *snapv1.VolumeSnapshot, err error) {
	if opts.Kind == KindSnapshot {
		s := &snapv1.VolumeSnapshot{}
		if err := w.Client.Get(ctx, client.ObjectKey{Namespace: w.Namespace, Name: opts.ID}, s); err != nil {
			return "", nil, fmt.Errorf("fetching snapshot %s: %w", opts.ID, err)
		}
		target = opts.TargetOverride
		if target == "" {
			target = s.Labels[k8sutil.LabelSourceVolume]
		}
		if target == "" {
			return "", nil, fmt.Errorf("snapshot %s has no source-volume label and no target override was given", opts.ID)
		}
		return target, s, nil
	}

	if opts.TargetOverride != "" {
		return opts.TargetOverride, nil, nil
	}
	entry, err := resolveTargetByPrefix(opts.ID, w.Config.Backups)
	if err != nil {
		return "", nil, err
	}
	return entry.PVC, nil, nil
}

func (w *Workflow) buildSecretPayload(opts Options, target string) ([]byte, error) {
	payload := struct {
		config.Document `yaml:",inline"`
		RestoreKind     string `yaml:"restoreKind"`
		RestoreID       string `yaml:"restoreId"`
		RestoreTarget   string `yaml:"restoreTarget"`
	}{
		Document:      w.Config,
		RestoreID:     opts.ID,
		RestoreTarget: target,
	}
	if opts.Kind == KindSnapshot {
		payload.RestoreKind = "snapshot"
	} else {
		payload.RestoreKind = "archive"
	}
	return yaml.Marshal(payload)
}

func (w *Workflow) cleanup(ctx context.Context, podName, secretName, cloneClaim string) {
	if err := w.Supervisor.Delete(ctx, podName); err != nil {
		w.Log.Error(err, "failed to delete restore worker pod", "pod", podName)
	} else {
		w.Tracker.Untrack(tracker.KindWorkerPod, w.Namespace, podName)
	}
	if err := w.Clientset.CoreV1().Secrets(w.Namespace).Delete(ctx, secretName, metav1.DeleteOptions{}); err != nil {
		w.Log.Error(err, "failed to delete ephemeral secret", "secret", secretName)
	} else {
		w.Tracker.Untrack(tracker.KindEphemeralSecret, w.Namespace, secretName)
	}
	if cloneClaim != "" {
		if err := w.Clones.Delete(ctx, cloneClaim); err != nil {
			w.Log.Error(err, "failed to delete restore clone", "clone", cloneClaim)
		} else {
			w.Tracker.Untrack(tracker.KindCloneVolume, w.Namespace, cloneClaim)
		}
	}
}
