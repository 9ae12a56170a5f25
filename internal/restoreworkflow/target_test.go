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
	"testing"

	"github.com/backube/kube-borg-backup/internal/config"
)

func TestResolveTargetByPrefixUniqueMatch(t *testing.T) {
	entries := []config.BackupEntry{{Name: "web", PVC: "web-pvc"}, {Name: "db", PVC: "db-pvc"}}
	got, err := resolveTargetByPrefix("db-2026-07-31-00-00-00", entries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PVC != "db-pvc" {
		t.Fatalf("expected db-pvc, got %s", got.PVC)
	}
}

func TestResolveTargetByPrefixNoMatch(t *testing.T) {
	entries := []config.BackupEntry{{Name: "web", PVC: "web-pvc"}}
	if _, err := resolveTargetByPrefix("unknown-2026-01-01-00-00-00", entries); err == nil {
		t.Fatal("expected error for no match")
	}
}

func TestResolveTargetByPrefixAmbiguous(t *testing.T) {
	entries := []config.BackupEntry{{Name: "web"}, {Name: "web-staging"}}
	// "web-staging-..." starts with both "web-" and "web-staging-".
	if _, err := resolveTargetByPrefix("web-staging-2026-01-01-00-00-00", entries); err == nil {
		t.Fatal("expected ambiguity error")
	}
}
