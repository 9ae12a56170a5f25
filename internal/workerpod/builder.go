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

// Package workerpod implements the Worker-Pod Supervisor (spec.md §4.5):
// build an ephemeral single-container pod, launch it exactly once, observe
// it to a terminal phase via an event watch and a log follower running
// concurrently, and report the outcome.
//
// Pod shape grounded on controllers/mover/restic/mover.go's ensureJob
// (container security context, three-mount layout, restartPolicy=Never),
// adapted from a Job-wrapping-a-Pod-template to a bare Pod since the
// orchestrator observes and deletes pods directly rather than through a
// Job controller.
package workerpod

import (
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	"github.com/backube/kube-borg-backup/internal/config"
	"github.com/backube/kube-borg-backup/internal/k8sutil"
)

// Role distinguishes the worker binary invoked inside the pod.
type Role string

const (
	RoleBackup  Role = "backup"
	RoleList    Role = "list"
	RoleRestore Role = "restore"
)

// Spec is everything BuildPod needs to construct one worker pod manifest.
type Spec struct {
	Name          string
	Namespace     string
	Role          Role
	Image         config.ImageSpec
	Resources     config.ResourceRequests
	Privileged    bool
	IsOpenShift   bool
	ConfigSecret  string
	DataClaim     string
	DataReadOnly  bool
	CacheClaim    string
	TargetClaim   string // restore only; rw mount at /target
	ActiveDeadlineSeconds int64
	Labels        map[string]string
}

// BuildPod renders the worker pod manifest per §3 "Worker Pod": three mount
// contracts (/config ro, /data ro, /cache rw), restartPolicy=Never,
// activeDeadlineSeconds = entry timeout.
func BuildPod(s Spec) *corev1.Pod {
	image := s.Image.Repository
	if s.Image.Tag != "" {
		image = image + ":" + s.Image.Tag
	}

	container := corev1.Container{
		Name:    "worker",
		Image:   image,
		Command: []string{"/kbb-worker", string(s.Role)},
		SecurityContext: &corev1.SecurityContext{
			AllowPrivilegeEscalation: ptr.To(false),
			Capabilities:             &corev1.Capabilities{Drop: []corev1.Capability{"ALL"}},
			Privileged:               ptr.To(false),
		},
		VolumeMounts: []corev1.VolumeMount{
			{Name: "config", MountPath: "/config", ReadOnly: true},
			{Name: "data", MountPath: "/data", ReadOnly: s.DataReadOnly},
			{Name: "cache", MountPath: "/cache"},
		},
	}
	if s.Image.PullPolicy != "" {
		container.ImagePullPolicy = corev1.PullPolicy(s.Image.PullPolicy)
	}
	if req := resourceRequirements(s.Resources); req != nil {
		container.Resources = *req
	}

	if s.Privileged {
		applyPrivileged(&container, s.IsOpenShift)
	}

	volumes := []corev1.Volume{
		{Name: "config", VolumeSource: corev1.VolumeSource{
			Secret: &corev1.SecretVolumeSource{SecretName: s.ConfigSecret},
		}},
		{Name: "data", VolumeSource: corev1.VolumeSource{
			PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
				ClaimName: s.DataClaim,
				ReadOnly:  s.DataReadOnly,
			},
		}},
		{Name: "cache", VolumeSource: corev1.VolumeSource{
			PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: s.CacheClaim},
		}},
	}

	if s.Role == RoleRestore && s.TargetClaim != "" {
		container.VolumeMounts = append(container.VolumeMounts, corev1.VolumeMount{Name: "target", MountPath: "/target"})
		volumes = append(volumes, corev1.Volume{
			Name: "target",
			VolumeSource: corev1.VolumeSource{
				PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: s.TargetClaim},
			},
		})
	}

	labels := s.Labels
	if labels == nil {
		labels = map[string]string{}
	}

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      s.Name,
			Namespace: s.Namespace,
			Labels:    labels,
		},
		Spec: corev1.PodSpec{
			Containers:    []corev1.Container{container},
			RestartPolicy: corev1.RestartPolicyNever,
			Volumes:       volumes,
		},
	}
	if s.ActiveDeadlineSeconds > 0 {
		pod.Spec.ActiveDeadlineSeconds = ptr.To(s.ActiveDeadlineSeconds)
	}
	return pod
}

// applyPrivileged requests a privileged container, additionally requesting
// the anyuid/privileged SCC via a ServiceAccount annotation path is out of
// scope here: on OpenShift the cluster operator is expected to have already
// granted the worker's ServiceAccount the relevant SCC, matching
// controllers/platform/properties.go's detection-only (not granting) role.
func applyPrivileged(c *corev1.Container, isOpenShift bool) {
	c.SecurityContext.Privileged = ptr.To(true)
	c.SecurityContext.AllowPrivilegeEscalation = ptr.To(true)
	c.SecurityContext.RunAsUser = ptr.To[int64](0)
	if isOpenShift {
		c.SecurityContext.Capabilities.Add = []corev1.Capability{"SYS_ADMIN"}
	}
}

func resourceRequirements(r config.ResourceRequests) *corev1.ResourceRequirements {
	if len(r.Requests) == 0 && len(r.Limits) == 0 {
		return nil
	}
	out := &corev1.ResourceRequirements{}
	if len(r.Requests) > 0 {
		out.Requests = toResourceList(r.Requests)
	}
	if len(r.Limits) > 0 {
		out.Limits = toResourceList(r.Limits)
	}
	return out
}

func toResourceList(in map[string]string) corev1.ResourceList {
	out := make(corev1.ResourceList, len(in))
	for k, v := range in {
		out[corev1.ResourceName(k)] = resource.MustParse(v)
	}
	return out
}

// EphemeralSecret builds the per-run config secret mounted at /config,
// per §3 "Ephemeral Config Secret".
func EphemeralSecret(name, namespace string, data []byte, labels map[string]string) *corev1.Secret {
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace, Labels: labels},
		Data:       map[string][]byte{"config.yaml": data},
		Type:       corev1.SecretTypeOpaque,
	}
}

// SecretNameFor derives the per-run config secret name for podName.
func SecretNameFor(podName string) string {
	return k8sutil.EphemeralSecretName(podName)
}
