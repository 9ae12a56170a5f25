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

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	borgerrs "github.com/backube/kube-borg-backup/internal/errs"
)

const defaultConfigPath = "/config/config.yaml"

// Workflow names the active workflow, used to select which fields Load
// validates (§4.1: "a Restore run does not require backupDir").
type Workflow string

const (
	WorkflowSnapshot Workflow = "snapshot"
	WorkflowBackup   Workflow = "backup"
	WorkflowRestore  Workflow = "restore"
	WorkflowWorker   Workflow = "worker"
)

// ResolvePath implements the --config > APP_CONFIG > default resolution
// order from §4.1. flags may be nil.
func ResolvePath(flags *pflag.FlagSet) string {
	if flags != nil {
		if f := flags.Lookup("config"); f != nil && f.Value.String() != "" && f.Changed {
			return f.Value.String()
		}
	}
	if v := os.Getenv("APP_CONFIG"); v != "" {
		return v
	}
	return defaultConfigPath
}

// Load reads and parses the YAML document at path, then validates it for the
// given workflow. A config error returns *borgerrs.Error with
// Kind == borgerrs.KindConfig so callers can map it to exit code 2.
func Load(path string, wf Workflow) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, borgerrs.Config(fmt.Errorf("reading config %s: %w", path, err))
	}

	var doc Document
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	if err := dec.Decode(&doc); err != nil {
		return nil, borgerrs.Config(fmt.Errorf("parsing config %s: %w", path, err))
	}

	if missing := validate(&doc, wf); len(missing) > 0 {
		return nil, borgerrs.Config(fmt.Errorf("missing required fields for %s workflow: %s",
			wf, strings.Join(missing, ", ")))
	}

	return &doc, nil
}

// validate returns the list of missing/invalid field names for wf. It never
// panics on a partially-populated Document; the active workflow determines
// which sections are load-bearing.
func validate(doc *Document, wf Workflow) []string {
	var missing []string
	req := func(ok bool, name string) {
		if !ok {
			missing = append(missing, name)
		}
	}

	req(doc.Namespace != "", "namespace")

	switch wf {
	case WorkflowSnapshot:
		req(len(doc.Snapshots.PVCs) > 0, "snapshots.pvcs")
		for i, s := range doc.Snapshots.PVCs {
			req(s.Name != "", fmt.Sprintf("snapshots.pvcs[%d].name", i))
		}
	case WorkflowBackup:
		req(doc.ReleaseName != "", "releaseName")
		req(doc.BorgRepo != "", "borgRepo")
		req(doc.BorgPassphrase != "", "borgPassphrase")
		req(doc.SSHPrivateKey != "", "sshPrivateKey")
		req(len(doc.Backups) > 0, "backups")
		missing = append(missing, validateBackupEntries(doc.Backups)...)
		req(doc.Pod.Image.Repository != "", "pod.image.repository")
	case WorkflowRestore:
		req(doc.ReleaseName != "", "releaseName")
		req(doc.BorgRepo != "", "borgRepo")
		req(doc.BorgPassphrase != "", "borgPassphrase")
		req(doc.SSHPrivateKey != "", "sshPrivateKey")
	case WorkflowWorker:
		req(doc.BorgRepo != "", "borgRepo")
		req(doc.BorgPassphrase != "", "borgPassphrase")
		req(doc.SSHPrivateKey != "", "sshPrivateKey")
	}

	return missing
}

// validateBackupEntries checks per-entry requirements and rejects duplicate
// names, per the §9 "archive-name collision" open question decision recorded
// in SPEC_FULL.md: duplicates are a config error.
func validateBackupEntries(entries []BackupEntry) []string {
	var missing []string
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		prefix := fmt.Sprintf("backups[%d]", i)
		if e.Name == "" {
			missing = append(missing, prefix+".name")
			continue
		}
		if seen[e.Name] {
			missing = append(missing, fmt.Sprintf("%s.name (duplicate: %q)", prefix, e.Name))
		}
		seen[e.Name] = true

		if e.PVC == "" {
			missing = append(missing, prefix+".pvc")
		}
		if e.IsSnapshotted() && e.StorageClass == "" {
			missing = append(missing, prefix+".class")
		}
		if e.Timeout <= 0 {
			missing = append(missing, prefix+".timeout")
		}
		if e.IsSnapshotted() && e.CloneBindTimeout <= 0 {
			missing = append(missing, prefix+".cloneBindTimeout")
		}
	}
	return missing
}
