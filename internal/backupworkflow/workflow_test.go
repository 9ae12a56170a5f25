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

package backupworkflow

import (
	"testing"
	"time"

	snapv1 "github.com/kubernetes-csi/external-snapshotter/client/v8/apis/volumesnapshot/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	"github.com/backube/kube-borg-backup/internal/config"
)

func boolPtr(b bool) *bool { return &b }

func TestOrderEntriesPutsSnapshottedFirst(t *testing.T) {
	entries := []config.BackupEntry{
		{Name: "direct-1", Snapshotted: boolPtr(false)},
		{Name: "snap-1"},
		{Name: "direct-2", Snapshotted: boolPtr(false)},
		{Name: "snap-2"},
	}
	ordered := orderEntries(entries)
	names := make([]string, len(ordered))
	for i, e := range ordered {
		names[i] = e.Name
	}
	want := []string{"snap-1", "snap-2", "direct-1", "direct-2"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("unexpected order: %v", names)
		}
	}
}

func TestReadySnapshotsFiltersUnready(t *testing.T) {
	snaps := []snapv1.VolumeSnapshot{
		{ObjectMeta: metav1.ObjectMeta{Name: "a"}, Status: &snapv1.VolumeSnapshotStatus{ReadyToUse: ptr.To(true)}},
		{ObjectMeta: metav1.ObjectMeta{Name: "b"}, Status: &snapv1.VolumeSnapshotStatus{ReadyToUse: ptr.To(false)}},
		{ObjectMeta: metav1.ObjectMeta{Name: "c"}, Status: nil},
	}
	got := readySnapshots(snaps)
	if len(got) != 1 || got[0].Name != "a" {
		t.Fatalf("expected only snapshot a, got %v", got)
	}
}

func TestNewestSnapshotPicksLatestCreationTimestamp(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	snaps := []snapv1.VolumeSnapshot{
		{ObjectMeta: metav1.ObjectMeta{Name: "old", CreationTimestamp: metav1.NewTime(now.Add(-time.Hour))}},
		{ObjectMeta: metav1.ObjectMeta{Name: "new", CreationTimestamp: metav1.NewTime(now)}},
	}
	got := newestSnapshot(snaps)
	if got.Name != "new" {
		t.Fatalf("expected newest snapshot, got %s", got.Name)
	}
}
