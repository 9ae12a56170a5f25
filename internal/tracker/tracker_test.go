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

package tracker_test

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/backube/kube-borg-backup/internal/tracker"
)

func TestTrackUntrack(t *testing.T) {
	tr := tracker.New()
	tr.Track(tracker.KindWorkerPod, "ns", "pod-a")
	tr.Track(tracker.KindCloneVolume, "ns", "clone-a")

	snap := tr.Snapshot()
	if len(snap[tracker.KindWorkerPod]) != 1 || snap[tracker.KindWorkerPod][0] != "ns/pod-a" {
		t.Fatalf("expected pod-a tracked, got %v", snap[tracker.KindWorkerPod])
	}

	tr.Untrack(tracker.KindWorkerPod, "ns", "pod-a")
	snap = tr.Snapshot()
	if len(snap[tracker.KindWorkerPod]) != 0 {
		t.Fatalf("expected pod-a untracked, got %v", snap[tracker.KindWorkerPod])
	}
}

func TestDrainDeletesTrackedObjectsAndClearsThem(t *testing.T) {
	pod := &corev1.Pod{}
	pod.Namespace = "ns"
	pod.Name = "pod-a"
	secret := &corev1.Secret{}
	secret.Namespace = "ns"
	secret.Name = "pod-a-config"

	c := fake.NewClientBuilder().WithObjects(pod, secret).Build()

	tr := tracker.New()
	tr.Track(tracker.KindWorkerPod, "ns", "pod-a")
	tr.Track(tracker.KindEphemeralSecret, "ns", "pod-a-config")

	tr.Drain(context.Background(), c, logr.Discard())

	snap := tr.Snapshot()
	if len(snap) != 0 {
		t.Fatalf("expected empty tracker after drain, got %v", snap)
	}

	var got corev1.Pod
	err := c.Get(context.Background(), client.ObjectKeyFromObject(pod), &got)
	if err == nil {
		t.Fatalf("expected pod to be deleted")
	}
}
