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

package worker

import (
	"fmt"

	"github.com/backube/kube-borg-backup/internal/config"
)

// pruneFlags maps a RetentionPolicy onto the archive engine's --keep-* flags,
// following controllers/mover/restic/mover.go's generateForgetOptions table
// shape but against plain ints rather than optional pointers, since
// RetentionPolicy's fields are never nil.
func pruneFlags(policy config.RetentionPolicy) []string {
	table := []struct {
		opt   string
		value int
	}{
		{"--keep-hourly", policy.Hourly},
		{"--keep-daily", policy.Daily},
		{"--keep-weekly", policy.Weekly},
		{"--keep-monthly", policy.Monthly},
		{"--keep-yearly", policy.Yearly},
	}
	var flags []string
	for _, e := range table {
		if e.value > 0 {
			flags = append(flags, e.opt, fmt.Sprintf("%d", e.value))
		}
	}
	return flags
}
