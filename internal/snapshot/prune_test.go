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
	"testing"
	"time"

	"github.com/backube/kube-borg-backup/internal/config"
)

func TestBucketKeyWeeklyISOFormat(t *testing.T) {
	// 2026-01-01 is a Thursday, ISO week 1 of 2026.
	tm := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	if got := bucketKeyWeekly(tm); got != "2026-W01" {
		t.Fatalf("expected 2026-W01, got %s", got)
	}
}

func TestPreserveKeepsNewestPerHourlyBucket(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	entries := []Entry{
		{Name: "h1", Created: now.Add(-10 * time.Minute)},
		{Name: "h2", Created: now.Add(-40 * time.Minute)}, // same hour bucket as h1
		{Name: "h3", Created: now.Add(-90 * time.Minute)}, // previous hour bucket
		{Name: "h4", Created: now.Add(-5 * time.Hour)},    // outside 3-hour window
	}
	policy := config.SnapshotRetentionPolicy{Hourly: 3}

	preserved := Preserve(entries, policy, now)

	if !preserved["h1"] {
		t.Error("expected h1 (newest in its hourly bucket) preserved")
	}
	if preserved["h2"] {
		t.Error("expected h2 pruned: same hourly bucket as newer h1")
	}
	if !preserved["h3"] {
		t.Error("expected h3 preserved: distinct hourly bucket within window")
	}
	if preserved["h4"] {
		t.Error("expected h4 pruned: outside the 3-hour window")
	}
}

func TestPreserveUnionsAcrossTiers(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	old := Entry{Name: "old-daily", Created: now.AddDate(0, 0, -2)}
	entries := []Entry{
		{Name: "recent", Created: now.Add(-5 * time.Minute)},
		old,
	}
	policy := config.SnapshotRetentionPolicy{Hourly: 1, Daily: 3}

	preserved := Preserve(entries, policy, now)

	if !preserved["recent"] {
		t.Error("expected recent preserved by hourly tier")
	}
	if !preserved["old-daily"] {
		t.Error("expected old-daily preserved by daily tier even though outside hourly window")
	}
}

func TestPreserveZeroPolicyPreservesNothing(t *testing.T) {
	now := time.Now()
	entries := []Entry{{Name: "a", Created: now}}
	preserved := Preserve(entries, config.SnapshotRetentionPolicy{}, now)
	if len(preserved) != 0 {
		t.Fatalf("expected empty preserved set for zero policy, got %v", preserved)
	}
}
