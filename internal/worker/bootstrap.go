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

// Package worker implements the process that runs inside the Worker Pod
// (spec.md §4.8): it reads the mounted config secret, materialises the SSH
// key, and drives the archive engine through one of the backup/list/restore
// operations.
package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"

	"github.com/backube/kube-borg-backup/internal/archiveengine"
	"github.com/backube/kube-borg-backup/internal/config"
)

const sshKeyRelPath = ".ssh/borg-ssh.key"

// Context bundles the decoded config and the archive engine handle shared by
// every worker operation.
type Context struct {
	Config config.Document
	Engine *archiveengine.Engine
	Log    logr.Logger

	active active
}

// Prepare materialises the SSH key to a 0600 file under home and builds an
// Engine pointed at it, per §4.8's "materialises the SSH key to a 0600 file
// under the process's home" / "exports archive-engine environment".
func Prepare(doc config.Document, log logr.Logger) (*Context, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolving home directory: %w", err)
	}
	keyPath := filepath.Join(home, sshKeyRelPath)
	if err := os.MkdirAll(filepath.Dir(keyPath), 0700); err != nil {
		return nil, fmt.Errorf("creating ssh key directory: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(doc.SSHPrivateKey), 0600); err != nil {
		return nil, fmt.Errorf("writing ssh key: %w", err)
	}

	engine := &archiveengine.Engine{
		Binary:         "borg",
		Repository:     doc.BorgRepo,
		Passphrase:     doc.BorgPassphrase,
		SSHKeyPath:     keyPath,
		CacheDirectory: "/cache",
		Log:            log,
	}
	return &Context{Config: doc, Engine: engine, Log: log}, nil
}

// EnsureRepository runs the §4.9 bootstrap probe and initialises the
// repository if needed, fatal otherwise.
func (c *Context) EnsureRepository(ctx context.Context) error {
	state, res, err := c.Engine.Bootstrap(ctx)
	if err != nil && state == archiveengine.BootstrapFatal {
		return err
	}
	switch state {
	case archiveengine.BootstrapReady, archiveengine.BootstrapProceed:
		return nil
	case archiveengine.BootstrapNeedsInit:
		c.Log.Info("repository uninitialised, running init")
		return c.Engine.Init(ctx)
	default:
		return fmt.Errorf("archive engine bootstrap failed (exit %d): stdout=%q stderr=%q",
			res.ExitCode, res.Stdout, res.Stderr)
	}
}
