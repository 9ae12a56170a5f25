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

package k8sutil

const (
	labelPrefix = "kube-borg-backup.backube"

	// LabelManagedBy is carried by every object the orchestrator creates (§6).
	LabelManagedBy      = "managed-by"
	ManagedByValue       = "kube-borg-backup"

	// LabelSourceVolume makes all snapshots of a given source volume
	// discoverable by a single label selector (§3 "Snapshot").
	LabelSourceVolume = labelPrefix + "/pvc"

	// LabelApp and LabelOperation tag objects per §6's "Labels" section.
	LabelApp       = "app"
	AppValue       = "kube-borg-backup"
	LabelOperation = labelPrefix + "/operation"
)

// Operation is the value of LabelOperation.
type Operation string

const (
	OperationBackup  Operation = "backup"
	OperationRestore Operation = "restore"
	OperationList    Operation = "list"
	OperationRsync   Operation = "rsync"
)

// BaseLabels returns the label set every ephemeral object created by the
// orchestrator must carry, per spec.md §6.
func BaseLabels(op Operation) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelApp:       AppValue,
		LabelOperation: string(op),
	}
}

// WithSourceVolume adds the pvc= discovery label to a label set returned by
// BaseLabels, used for snapshots (§3).
func WithSourceVolume(labels map[string]string, sourceVolume string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		out[k] = v
	}
	out[LabelSourceVolume] = sourceVolume
	return out
}
