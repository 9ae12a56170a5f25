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

package clone

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"
	snapv1 "github.com/kubernetes-csi/external-snapshotter/client/v8/apis/volumesnapshot/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/kubernetes/scheme"
	fakeclient "sigs.k8s.io/controller-runtime/pkg/client/fake"
)

func TestCreateSucceedsWhenAlreadyBoundToNonDelayedDriver(t *testing.T) {
	s := scheme.Scheme
	if err := snapv1.AddToScheme(s); err != nil {
		t.Fatalf("adding snapv1 to scheme: %v", err)
	}

	restoreSize := resource.MustParse("5Gi")
	snap := &snapv1.VolumeSnapshot{
		ObjectMeta: metav1.ObjectMeta{Namespace: "ns", Name: "data-snap-1"},
		Status:     &snapv1.VolumeSnapshotStatus{RestoreSize: &restoreSize},
	}

	pv := &corev1.PersistentVolume{
		ObjectMeta: metav1.ObjectMeta{Name: "pv-1"},
		Spec: corev1.PersistentVolumeSpec{
			CSI: &corev1.CSIPersistentVolumeSource{Driver: "ebs.csi.aws.com"},
		},
	}

	now := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	cloneName := "data-snap-1-clone-" + now.UTC().Format("20060102150405")
	clone := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{Namespace: "ns", Name: cloneName},
		Spec:       corev1.PersistentVolumeClaimSpec{VolumeName: "pv-1"},
		Status:     corev1.PersistentVolumeClaimStatus{Phase: corev1.ClaimBound},
	}

	c := fakeclient.NewClientBuilder().WithScheme(s).WithObjects(pv, clone).Build()
	clientset := fake.NewSimpleClientset()

	p := New(c, clientset, "ns", logr.Discard())
	got, err := p.Create(context.Background(), snap, "csi-class", 5*time.Second, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != cloneName {
		t.Fatalf("expected clone %s, got %s", cloneName, got.Name)
	}
}

func TestDeleteIgnoresNotFound(t *testing.T) {
	s := scheme.Scheme
	c := fakeclient.NewClientBuilder().WithScheme(s).Build()
	p := New(c, fake.NewSimpleClientset(), "ns", logr.Discard())

	if err := p.Delete(context.Background(), "missing"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
