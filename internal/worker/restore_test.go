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
	"os"
	"path/filepath"
	"testing"
)

func TestStripLegacyDataDirDetectsSingleDataDir(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "data"), 0700); err != nil {
		t.Fatal(err)
	}
	got := stripLegacyDataDir(root)
	if got != filepath.Join(root, "data") {
		t.Fatalf("expected legacy data dir to be stripped, got %s", got)
	}
}

func TestStripLegacyDataDirLeavesMultiEntryTreeAlone(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "data"), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(root, "other"), 0700); err != nil {
		t.Fatal(err)
	}
	got := stripLegacyDataDir(root)
	if got != root {
		t.Fatalf("expected root to be returned unchanged, got %s", got)
	}
}

func TestStripLegacyDataDirLeavesSingleFileAlone(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "data"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	got := stripLegacyDataDir(root)
	if got != root {
		t.Fatalf("expected root to be returned unchanged for a file named data, got %s", got)
	}
}
