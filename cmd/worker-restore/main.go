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

// Command kbb-worker restore runs inside the Worker Pod (spec.md §4.7) and
// performs either a snapshot restore (plain sync from the mounted clone) or
// an archive-revision restore (fuse-mount then sync), depending on which
// kind the restore workflow recorded in the ephemeral config secret.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/backube/kube-borg-backup/internal/config"
	"github.com/backube/kube-borg-backup/internal/worker"
)

// restoreExtra mirrors the three fields restoreworkflow.buildSecretPayload
// layers onto the config document; config.Load ignores them, so they're
// decoded here from a second read of the same file.
type restoreExtra struct {
	RestoreKind   string `yaml:"restoreKind"`
	RestoreID     string `yaml:"restoreId"`
	RestoreTarget string `yaml:"restoreTarget"`
}

func main() {
	os.Exit(run())
}

func run() int {
	ctrl.SetLogger(zap.New(zap.UseDevMode(true)))
	log := ctrl.Log.WithName("worker-restore")

	flags := pflag.NewFlagSet("worker-restore", pflag.ExitOnError)
	flags.StringP("config", "c", "", "path to the configuration document")
	_ = flags.Parse(os.Args[1:])

	path := config.ResolvePath(flags)
	doc, err := config.Load(path, config.WorkflowWorker)
	if err != nil {
		log.Error(err, "failed to load configuration")
		return 1
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		log.Error(err, "failed to re-read configuration for restore parameters")
		return 1
	}
	var extra restoreExtra
	if err := yaml.Unmarshal(raw, &extra); err != nil {
		log.Error(err, "failed to decode restore parameters")
		return 1
	}
	if extra.RestoreTarget == "" {
		log.Error(nil, "worker config is missing a restore target")
		return 1
	}

	wctx, err := worker.Prepare(*doc, log)
	if err != nil {
		log.Error(err, "failed to prepare worker context")
		return 1
	}

	stop := wctx.WatchSignals(false)
	defer stop()

	if err := dispatch(wctx, extra); err != nil {
		log.Error(err, "restore failed", "kind", extra.RestoreKind, "id", extra.RestoreID)
		return 1
	}
	return 0
}

func dispatch(wctx *worker.Context, extra restoreExtra) error {
	// The target volume named by extra.RestoreTarget is mounted at /target.
	const targetMount = "/target"
	ctx := context.Background()
	switch extra.RestoreKind {
	case "snapshot":
		return wctx.RunSnapshotRestore(ctx, targetMount)
	case "archive":
		if err := wctx.EnsureRepository(ctx); err != nil {
			return err
		}
		return wctx.RunArchiveRestore(ctx, extra.RestoreID, targetMount)
	default:
		return fmt.Errorf("unknown restore kind %q", extra.RestoreKind)
	}
}
