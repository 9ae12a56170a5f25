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
	"strings"
	"testing"

	"github.com/backube/kube-borg-backup/internal/config"
)

func TestPruneFlagsOmitsZeroBuckets(t *testing.T) {
	flags := pruneFlags(config.RetentionPolicy{Hourly: 5, Daily: 4})
	joined := strings.Join(flags, " ")
	if !strings.Contains(joined, "--keep-hourly 5") || !strings.Contains(joined, "--keep-daily 4") {
		t.Fatalf("missing expected flags: %v", flags)
	}
	if strings.Contains(joined, "--keep-weekly") || strings.Contains(joined, "--keep-monthly") || strings.Contains(joined, "--keep-yearly") {
		t.Fatalf("expected zero buckets to be omitted: %v", flags)
	}
}

func TestPruneFlagsEmptyPolicy(t *testing.T) {
	flags := pruneFlags(config.RetentionPolicy{})
	if len(flags) != 0 {
		t.Fatalf("expected no flags for empty policy, got %v", flags)
	}
}

func TestIsExitCodeMatchesWrappedError(t *testing.T) {
	err := &exitCodeError{code: 2, stderr: "boom"}
	if !isExitCode(err, 2) {
		t.Fatal("expected isExitCode to match")
	}
	if isExitCode(err, 1) {
		t.Fatal("expected isExitCode to not match a different code")
	}
	if isExitCode(nil, 2) {
		t.Fatal("expected isExitCode(nil, ...) to be false")
	}
}
