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

package workerpod

import (
	"testing"

	corev1 "k8s.io/api/core/v1"

	"github.com/backube/kube-borg-backup/internal/config"
)

func TestBuildPodHasThreeMountContract(t *testing.T) {
	pod := BuildPod(Spec{
		Name:         "runner-1",
		Namespace:    "ns",
		Role:         RoleBackup,
		Image:        config.ImageSpec{Repository: "quay.io/kbb/worker", Tag: "v1"},
		ConfigSecret: "runner-1-config",
		DataClaim:    "clone-1",
		DataReadOnly: true,
		CacheClaim:   "cache",
	})

	if pod.Spec.RestartPolicy != corev1.RestartPolicyNever {
		t.Fatalf("expected RestartPolicyNever, got %s", pod.Spec.RestartPolicy)
	}
	mounts := pod.Spec.Containers[0].VolumeMounts
	if len(mounts) != 3 {
		t.Fatalf("expected 3 mounts, got %d: %v", len(mounts), mounts)
	}
	var gotConfig, gotData, gotCache bool
	for _, m := range mounts {
		switch m.Name {
		case "config":
			gotConfig = m.MountPath == "/config" && m.ReadOnly
		case "data":
			gotData = m.MountPath == "/data" && m.ReadOnly
		case "cache":
			gotCache = m.MountPath == "/cache" && !m.ReadOnly
		}
	}
	if !gotConfig || !gotData || !gotCache {
		t.Fatalf("missing or misconfigured mount: config=%v data=%v cache=%v", gotConfig, gotData, gotCache)
	}
}

func TestBuildPodAddsTargetMountForRestore(t *testing.T) {
	pod := BuildPod(Spec{
		Name: "restore-1", Namespace: "ns", Role: RoleRestore,
		ConfigSecret: "c", DataClaim: "d", CacheClaim: "cache", TargetClaim: "target-pvc",
	})
	found := false
	for _, m := range pod.Spec.Containers[0].VolumeMounts {
		if m.Name == "target" && m.MountPath == "/target" && !m.ReadOnly {
			found = true
		}
	}
	if !found {
		t.Fatal("expected rw /target mount for restore role")
	}
}

func TestBuildPodActiveDeadline(t *testing.T) {
	pod := BuildPod(Spec{
		Name: "p", Namespace: "ns", Role: RoleBackup,
		ConfigSecret: "c", DataClaim: "d", CacheClaim: "cache",
		ActiveDeadlineSeconds: 600,
	})
	if pod.Spec.ActiveDeadlineSeconds == nil || *pod.Spec.ActiveDeadlineSeconds != 600 {
		t.Fatalf("expected activeDeadlineSeconds=600, got %v", pod.Spec.ActiveDeadlineSeconds)
	}
}

func TestBuildPodPrivilegedOnOpenShiftAddsSysAdmin(t *testing.T) {
	pod := BuildPod(Spec{
		Name: "p", Namespace: "ns", Role: RoleBackup,
		ConfigSecret: "c", DataClaim: "d", CacheClaim: "cache",
		Privileged: true, IsOpenShift: true,
	})
	sc := pod.Spec.Containers[0].SecurityContext
	if sc.Privileged == nil || !*sc.Privileged {
		t.Fatal("expected privileged=true")
	}
	found := false
	for _, c := range sc.Capabilities.Add {
		if c == "SYS_ADMIN" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected SYS_ADMIN capability on OpenShift privileged pod")
	}
}
