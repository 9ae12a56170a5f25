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

package archiveengine

import (
	"strings"
	"testing"
)

// classifyBootstrap mirrors the switch inside Engine.Bootstrap without
// requiring a real subprocess, so the exit-code/stderr rules from §4.9 can be
// tested directly.
func classifyBootstrap(exitCode int, stderr string) BootstrapState {
	switch {
	case exitCode == 0:
		return BootstrapReady
	case exitCode == 2 && strings.Contains(stderr, "is not a valid repository"):
		return BootstrapNeedsInit
	case exitCode == 2 && strings.Contains(stderr, "Failed to create/acquire the lock"):
		return BootstrapProceed
	default:
		return BootstrapFatal
	}
}

func TestClassifyBootstrapReadyOnExitZero(t *testing.T) {
	if got := classifyBootstrap(0, ""); got != BootstrapReady {
		t.Fatalf("expected BootstrapReady, got %v", got)
	}
}

func TestClassifyBootstrapNeedsInitOnMissingRepo(t *testing.T) {
	got := classifyBootstrap(2, "Repository /data/repo does not exist, is not a valid repository.")
	if got != BootstrapNeedsInit {
		t.Fatalf("expected BootstrapNeedsInit, got %v", got)
	}
}

func TestClassifyBootstrapProceedOnLockContention(t *testing.T) {
	got := classifyBootstrap(2, "Failed to create/acquire the lock /data/repo/lock.exclusive")
	if got != BootstrapProceed {
		t.Fatalf("expected BootstrapProceed, got %v", got)
	}
}

func TestClassifyBootstrapFatalOnUnknownFailure(t *testing.T) {
	got := classifyBootstrap(2, "permission denied")
	if got != BootstrapFatal {
		t.Fatalf("expected BootstrapFatal, got %v", got)
	}
	if got := classifyBootstrap(1, "unexpected"); got != BootstrapFatal {
		t.Fatalf("expected BootstrapFatal for exit 1, got %v", got)
	}
}

func TestEnvironIncludesRequiredVariables(t *testing.T) {
	e := &Engine{
		Repository:     "ssh://borg@host/./repo",
		Passphrase:     "hunter2",
		SSHKeyPath:     "/config/id_rsa",
		CacheDirectory: "/cache",
	}
	env := e.environ()

	want := map[string]bool{
		"BORG_REPO=ssh://borg@host/./repo":       false,
		"BORG_PASSPHRASE=hunter2":                false,
		"BORG_RELOCATED_REPO_ACCESS_IS_OK=yes":   false,
		"BORG_CACHE_DIR=/cache":                  false,
	}
	var rsh string
	for _, kv := range env {
		if _, ok := want[kv]; ok {
			want[kv] = true
		}
		if strings.HasPrefix(kv, "BORG_RSH=") {
			rsh = kv
		}
	}
	for k, found := range want {
		if !found {
			t.Fatalf("expected env to contain %q, got %v", k, env)
		}
	}
	if !strings.Contains(rsh, "-i /config/id_rsa") || !strings.Contains(rsh, "IdentitiesOnly=yes") {
		t.Fatalf("unexpected BORG_RSH: %s", rsh)
	}
}

func TestEnvironOmitsCacheDirWhenUnset(t *testing.T) {
	e := &Engine{Repository: "repo", Passphrase: "p", SSHKeyPath: "/k"}
	for _, kv := range e.environ() {
		if strings.HasPrefix(kv, "BORG_CACHE_DIR=") {
			t.Fatalf("expected no BORG_CACHE_DIR entry, got %s", kv)
		}
	}
}
