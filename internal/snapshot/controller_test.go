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

package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"
	snapv1 "github.com/kubernetes-csi/external-snapshotter/client/v8/apis/volumesnapshot/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/backube/kube-borg-backup/internal/k8sutil"
)

func testScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	s := scheme.Scheme
	if err := snapv1.AddToScheme(s); err != nil {
		t.Fatalf("adding snapv1 to scheme: %v", err)
	}
	return s
}

func TestCreateReturnsAlreadyReadySnapshotImmediately(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	name := k8sutil.SnapshotName("data-pvc", now)
	ready := true
	content := "snapcontent-abc"

	existing := &snapv1.VolumeSnapshot{
		ObjectMeta: metav1.ObjectMeta{Namespace: "ns", Name: name},
		Status: &snapv1.VolumeSnapshotStatus{
			BoundVolumeSnapshotContentName: &content,
			ReadyToUse:                     &ready,
		},
	}

	c := fake.NewClientBuilder().WithScheme(testScheme(t)).WithObjects(existing).Build()
	ctrl := New(c, "ns", logr.Discard())

	got, err := ctrl.Create(context.Background(), "data-pvc", "csi-class", 5*time.Second, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != name {
		t.Fatalf("expected snapshot %s, got %s", name, got.Name)
	}
}

func TestCreateTimesOutWhenNeverReady(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	c := fake.NewClientBuilder().WithScheme(testScheme(t)).Build()
	ctrl := New(c, "ns", logr.Discard())

	_, err := ctrl.Create(context.Background(), "data-pvc", "csi-class", 1*time.Second, now)
	if err == nil {
		t.Fatal("expected timeout error when snapshot never becomes ready")
	}
}

func TestDeleteIgnoresNotFound(t *testing.T) {
	c := fake.NewClientBuilder().WithScheme(testScheme(t)).Build()
	ctrl := New(c, "ns", logr.Discard())

	if err := ctrl.Delete(context.Background(), "does-not-exist"); err != nil {
		t.Fatalf("expected nil error deleting missing snapshot, got %v", err)
	}
}
