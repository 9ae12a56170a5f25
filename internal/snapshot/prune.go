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
	"fmt"
	"sort"
	"time"

	"github.com/backube/kube-borg-backup/internal/config"
)

// Entry is the minimal shape the tiered pruner needs from a snapshot: its
// name (for deletion) and creation time (for bucketing).
type Entry struct {
	Name    string
	Created time.Time
}

type tier struct {
	count  int
	window time.Duration
	key    func(time.Time) string
}

func tiers(policy config.SnapshotRetentionPolicy) []tier {
	return []tier{
		{policy.Hourly, time.Duration(policy.Hourly) * time.Hour, bucketKeyHourly},
		{policy.Daily, time.Duration(policy.Daily) * 24 * time.Hour, bucketKeyDaily},
		{policy.Weekly, time.Duration(policy.Weekly) * 7 * 24 * time.Hour, bucketKeyWeekly},
		{policy.Monthly, time.Duration(policy.Monthly) * 30 * 24 * time.Hour, bucketKeyMonthly},
	}
}

func bucketKeyHourly(t time.Time) string { return t.UTC().Format("2006-01-02-15") }
func bucketKeyDaily(t time.Time) string  { return t.UTC().Format("2006-01-02") }
func bucketKeyMonthly(t time.Time) string { return t.UTC().Format("2006-01") }

func bucketKeyWeekly(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// Preserve implements the tiered-retention rule of §4.4: for each of the
// four independent buckets with a positive count, walk entries (assumed
// sorted newest-first) within that bucket's age window and keep the newest
// entry per bucket key. The result is the union across all four tiers.
func Preserve(entries []Entry, policy config.SnapshotRetentionPolicy, now time.Time) map[string]bool {
	preserved := make(map[string]bool)

	for _, t := range tiers(policy) {
		if t.count <= 0 {
			continue
		}
		seenKeys := make(map[string]bool)
		for _, e := range entries {
			age := now.Sub(e.Created)
			if age < 0 {
				age = 0
			}
			if age > t.window {
				continue
			}
			key := t.key(e.Created)
			if seenKeys[key] {
				continue
			}
			seenKeys[key] = true
			preserved[e.Name] = true
		}
	}
	return preserved
}

// Prune lists every snapshot labelled for sourceVolume, computes the
// preserved set, and deletes everything else.
func (c *Controller) Prune(ctx context.Context, sourceVolume string, policy config.SnapshotRetentionPolicy, now time.Time) error {
	items, err := c.ListForSource(ctx, sourceVolume)
	if err != nil {
		return err
	}

	entries := make([]Entry, 0, len(items))
	for _, s := range items {
		entries = append(entries, Entry{Name: s.Name, Created: s.CreationTimestamp.Time})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Created.After(entries[j].Created) })

	preserved := Preserve(entries, policy, now)

	var firstErr error
	for _, e := range entries {
		if preserved[e.Name] {
			continue
		}
		if err := c.Delete(ctx, e.Name); err != nil {
			c.Log.Error(err, "failed to prune snapshot", "snapshot", e.Name)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		c.Log.Info("pruned snapshot", "snapshot", e.Name, "sourceVolume", sourceVolume)
	}
	return firstErr
}
