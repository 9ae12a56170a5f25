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

// Command kbb-worker backup runs inside the Worker Pod (spec.md §4.8) and
// drives one archive-engine create-backup operation from the mounted config
// secret.
package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/pflag"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/backube/kube-borg-backup/internal/config"
	"github.com/backube/kube-borg-backup/internal/worker"
)

// defaultLockWait bounds how long the engine waits for a contended
// repository lock before giving up; the configuration schema has no
// per-entry override for it, so every worker invocation uses this constant.
const defaultLockWait = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	ctrl.SetLogger(zap.New(zap.UseDevMode(true)))
	log := ctrl.Log.WithName("worker-backup")

	flags := pflag.NewFlagSet("worker-backup", pflag.ExitOnError)
	flags.StringP("config", "c", "", "path to the configuration document")
	_ = flags.Parse(os.Args[1:])

	doc, err := config.Load(config.ResolvePath(flags), config.WorkflowWorker)
	if err != nil {
		log.Error(err, "failed to load configuration")
		return 1
	}
	if len(doc.Backups) != 1 {
		log.Error(nil, "worker config must carry exactly one backup entry", "count", len(doc.Backups))
		return 1
	}
	entry := doc.Backups[0]

	wctx, err := worker.Prepare(*doc, log)
	if err != nil {
		log.Error(err, "failed to prepare worker context")
		return 1
	}

	stop := wctx.WatchSignals(false)
	defer stop()

	opts := worker.BackupOptions{
		EntryName:  entry.Name,
		SourcePath: "/data",
		LockWait:   defaultLockWait,
		BorgFlags:  entry.BorgFlags,
	}
	if err := wctx.RunBackup(context.Background(), opts, time.Now()); err != nil {
		log.Error(err, "backup failed", "entry", entry.Name)
		return 1
	}
	return 0
}
