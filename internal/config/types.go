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

// Package config loads and validates the single YAML configuration document
// consumed by every kube-borg-backup program.
package config

import "time"

// Document is the root of the configuration file. The set of recognized
// top-level keys is closed; unknown keys are ignored by yaml.v3's default
// decode behavior and carry no meaning.
type Document struct {
	Namespace   string `yaml:"namespace"`
	ReleaseName string `yaml:"releaseName"`

	BorgRepo       string `yaml:"borgRepo"`
	BorgPassphrase string `yaml:"borgPassphrase"`
	SSHPrivateKey  string `yaml:"sshPrivateKey"`

	Backups []BackupEntry `yaml:"backups"`

	Snapshots SnapshotSection `yaml:"snapshots"`

	Retention RetentionPolicy `yaml:"retention"`

	CachePVC      string `yaml:"cachePVC"`
	CacheTheCache bool   `yaml:"cacheTheCache"`

	Restore RestoreSection `yaml:"restore"`

	Pod PodSpec `yaml:"pod"`
}

// BackupEntry is one element of backups[]: the contract between one source
// volume and one archive prefix.
type BackupEntry struct {
	Name             string        `yaml:"name"`
	PVC              string        `yaml:"pvc"`
	StorageClass     string        `yaml:"class"`
	Timeout          time.Duration `yaml:"timeout"`
	CloneBindTimeout time.Duration `yaml:"cloneBindTimeout"`
	Snapshotted      *bool         `yaml:"snapshotted"` // nil defaults to true
	BorgFlags        []string      `yaml:"borgFlags"`
}

// IsSnapshotted returns the entry's effective snapshotted flag, defaulting to
// true per §3.
func (e BackupEntry) IsSnapshotted() bool {
	return e.Snapshotted == nil || *e.Snapshotted
}

// SnapshotSection holds the snapshot workflow's configuration.
type SnapshotSection struct {
	PVCs      []SnapshotEntry         `yaml:"pvcs"`
	Retention SnapshotRetentionPolicy `yaml:"retention"`
}

// SnapshotEntry is one element of snapshots.pvcs[].
type SnapshotEntry struct {
	Name           string    `yaml:"name"`
	SnapshotClass  string    `yaml:"snapshotClass"`
	Hooks          HookLists `yaml:"hooks"`
}

// HookLists groups pre/post hooks for one snapshot entry.
type HookLists struct {
	Pre  []Hook `yaml:"pre"`
	Post []Hook `yaml:"post"`
}

// HookKind enumerates the three supported hook variants (§3, §4.2).
type HookKind string

const (
	HookKindExec  HookKind = "exec"
	HookKindScale HookKind = "scale"
	HookKindShell HookKind = "shell"
)

// Hook is one element of a pre[]/post[] hook list.
type Hook struct {
	Kind HookKind `yaml:"kind"`

	// exec / shell fields
	Pod       string   `yaml:"pod"`
	Container string   `yaml:"container"`
	Command   []string `yaml:"command"`
	Script    string   `yaml:"script"`

	// scale fields
	WorkloadKind string `yaml:"workloadKind"`
	WorkloadName string `yaml:"workloadName"`
	Replicas     *int32 `yaml:"replicas"`

	Parallel  bool   `yaml:"parallel"`
	SessionID string `yaml:"sessionId"`
}

// SnapshotRetentionPolicy is snapshots.retention: tiered bucket counts.
type SnapshotRetentionPolicy struct {
	Hourly  int `yaml:"hourly"`
	Daily   int `yaml:"daily"`
	Weekly  int `yaml:"weekly"`
	Monthly int `yaml:"monthly"`
}

// RetentionPolicy is the archive-side retention mapping (§3).
type RetentionPolicy struct {
	Hourly  int `yaml:"hourly"`
	Daily   int `yaml:"daily"`
	Weekly  int `yaml:"weekly"`
	Monthly int `yaml:"monthly"`
	Yearly  int `yaml:"yearly"`
}

// IsZero reports whether the retention mapping is empty (prune should be
// skipped, per §4.6 "After each worker pod returns success... with a
// non-empty retention mapping").
func (r RetentionPolicy) IsZero() bool {
	return r.Hourly == 0 && r.Daily == 0 && r.Weekly == 0 && r.Monthly == 0 && r.Yearly == 0
}

// RestoreSection holds the restore workflow's configuration.
type RestoreSection struct {
	PreHooks  []Hook       `yaml:"preHooks"`
	PostHooks []Hook       `yaml:"postHooks"`
	Pod       RestorePod   `yaml:"pod"`
}

// RestorePod carries the image used for restore worker pods, which may
// differ from the main pod image.
type RestorePod struct {
	Image ImageSpec `yaml:"image"`
}

// PodSpec is the ambient worker-pod template configuration.
type PodSpec struct {
	Image      ImageSpec         `yaml:"image"`
	Privileged bool              `yaml:"privileged"`
	Resources  ResourceRequests  `yaml:"resources"`
}

// ImageSpec names the container image used for worker pods.
type ImageSpec struct {
	Repository string `yaml:"repository"`
	Tag        string `yaml:"tag"`
	PullPolicy string `yaml:"pullPolicy"`
}

// ResourceRequests is a minimal passthrough for pod.resources; kept as a
// generic map since the schema is a standard Kubernetes ResourceRequirements
// structure applied verbatim to the worker pod's container.
type ResourceRequests struct {
	Requests map[string]string `yaml:"requests"`
	Limits   map[string]string `yaml:"limits"`
}
