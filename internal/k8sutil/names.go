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

import "time"

// timeYYYYMMDDHHMMSS is the UTC timestamp format used by every naming
// convention in spec.md §6, following the teacher's own
// volumehandler.timeYYYYMMDDHHMMSS constant.
const timeYYYYMMDDHHMMSS = "20060102150405"

// NowStamp formats now as the compact UTC timestamp used in object names.
func NowStamp(now time.Time) string {
	return now.UTC().Format(timeYYYYMMDDHHMMSS)
}

// SnapshotName implements "{sourceVolume}-snap-{YYYYMMDDHHMMSS}".
func SnapshotName(sourceVolume string, now time.Time) string {
	return sourceVolume + "-snap-" + NowStamp(now)
}

// CloneName implements "{snapshotName}-clone-{YYYYMMDDHHMMSS}".
func CloneName(snapshotName string, now time.Time) string {
	return snapshotName + "-clone-" + NowStamp(now)
}

// WorkerPodName implements "{releaseName}-backup-runner-{entryName}-{YYYYMMDDHHMMSS}".
func WorkerPodName(releaseName, entryName string, now time.Time) string {
	return releaseName + "-backup-runner-" + entryName + "-" + NowStamp(now)
}

// RestorePodName names a restore worker pod, following the same scheme as
// WorkerPodName with a distinct infix so the two never collide.
func RestorePodName(releaseName, entryName string, now time.Time) string {
	return releaseName + "-restore-runner-" + entryName + "-" + NowStamp(now)
}

// EphemeralSecretName implements "{podName}-config".
func EphemeralSecretName(podName string) string {
	return podName + "-config"
}

// ArchiveRevisionName implements "{entryName}-{YYYY-MM-DD-HH-MM-SS}".
func ArchiveRevisionName(entryName string, now time.Time) string {
	return entryName + "-" + now.UTC().Format("2006-01-02-15-04-05")
}

// ArchiveGlob returns the prune/list glob that constrains operations to
// revisions produced by entryName, per §4.6's Retention paragraph.
func ArchiveGlob(entryName string) string {
	return entryName + "-*"
}
