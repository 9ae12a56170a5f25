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

// Command kbb-worker list runs inside the Worker Pod and writes the archive
// listing (spec.md §6 "Worker list output") to stdout as a single JSON
// object. Every other message goes to stderr via the logger so stdout stays
// parseable.
package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/backube/kube-borg-backup/internal/config"
	"github.com/backube/kube-borg-backup/internal/worker"
)

// listGlobField mirrors just the extra field kbb's "backup list" subcommand
// layers onto the ephemeral config secret's document (cmd/kbb/backup.go's
// listPayload), decoded separately since config.Load only recognizes the
// Document schema.
type listGlobField struct {
	ListGlob string `yaml:"listGlob"`
}

func main() {
	os.Exit(run())
}

func run() int {
	ctrl.SetLogger(zap.New(zap.UseDevMode(true)))
	log := ctrl.Log.WithName("worker-list")

	flags := pflag.NewFlagSet("worker-list", pflag.ExitOnError)
	flags.StringP("config", "c", "", "path to the configuration document")
	_ = flags.Parse(os.Args[1:])

	path := config.ResolvePath(flags)
	doc, err := config.Load(path, config.WorkflowWorker)
	if err != nil {
		log.Error(err, "failed to load configuration")
		return 1
	}

	glob := "*"
	if raw, readErr := os.ReadFile(path); readErr == nil {
		var extra listGlobField
		if yaml.Unmarshal(raw, &extra) == nil && extra.ListGlob != "" {
			glob = extra.ListGlob
		}
	}

	wctx, err := worker.Prepare(*doc, log)
	if err != nil {
		log.Error(err, "failed to prepare worker context")
		return 1
	}

	stop := wctx.WatchSignals(true)
	defer stop()

	out, err := wctx.RunList(context.Background(), glob)
	if err != nil {
		log.Error(err, "list failed")
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	if err := enc.Encode(out); err != nil {
		log.Error(err, "failed to write list output")
		return 1
	}
	return 0
}
