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

package restoreworkflow

import (
	"fmt"
	"strings"

	"github.com/backube/kube-borg-backup/internal/config"
)

// resolveTargetByPrefix implements §4.7 step 3's archive-name matching:
// the archive revision name must start with "{entry.name}-" for exactly one
// configured entry.
func resolveTargetByPrefix(archiveName string, entries []config.BackupEntry) (config.BackupEntry, error) {
	var candidates []config.BackupEntry
	for _, e := range entries {
		if strings.HasPrefix(archiveName, e.Name+"-") {
			candidates = append(candidates, e)
		}
	}
	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return config.BackupEntry{}, fmt.Errorf("no configured backup entry's name prefixes archive %q", archiveName)
	default:
		names := make([]string, len(candidates))
		for i, c := range candidates {
			names[i] = c.Name
		}
		return config.BackupEntry{}, fmt.Errorf("archive %q matches multiple entries: %s", archiveName, strings.Join(names, ", "))
	}
}
