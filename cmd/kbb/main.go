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

// Command kbb is the restore CLI: a kubectl-style cobra plugin for listing
// and restoring snapshots and archive revisions. Grounded on
// kubectl-volsync/cmd/root.go's cobra root and kubectl-volsync/cmd/client.go's
// cluster bootstrap, adapted to the single cluster context this module
// targets instead of the teacher's cross-cluster relationship model.
package main

import (
	goflag "flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/component-base/logs"
	"k8s.io/klog/v2"
	"k8s.io/kubectl/pkg/util/i18n"
	"k8s.io/kubectl/pkg/util/templates"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/backube/kube-borg-backup/internal/config"
	"github.com/backube/kube-borg-backup/internal/errs"
)

// flags shared by every subcommand, following the `-n/-a/-r` contract from
// spec.md §6's Restore CLI invocation.
var (
	namespaceFlag  string
	appFlag        string
	releaseFlag    string
	configPathFlag string
	pvcFlag        string
)

// injectLoglevelFlag exposes klog's "-v" verbosity level as the more
// conventional "--loglevel" on the cobra root, copied from oc/cmd/oc/oc.go
// via the teacher's cmd/volsync/volsync.go.
func injectLoglevelFlag(flags *pflag.FlagSet) {
	from := goflag.CommandLine
	if f := from.Lookup("v"); f != nil {
		if level, ok := f.Value.(*klog.Level); ok {
			levelPtr := (*int32)(level)
			flags.Int32Var(levelPtr, "loglevel", 0, "Set the level of log output (0-10)")
		}
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	klog.InitFlags(goflag.CommandLine)
	logs.InitLogs()
	defer logs.FlushLogs()

	ctrl.SetLogger(zap.New(zap.UseDevMode(true)))

	root := &cobra.Command{
		Use:     "kbb",
		Short:   i18n.T("List and restore kube-borg-backup snapshots and archive revisions"),
		Long: templates.LongDesc(i18n.T(`
			kbb lists and restores the snapshots and archive revisions a
			kube-borg-backup deployment has produced.

			Use "kbb snap" to operate on VolumeSnapshots and "kbb backup" to
			operate on archive-engine revisions, each with "list" and
			"restore <id>" subcommands.
		`)),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&namespaceFlag, "namespace", "n", "", "namespace to operate in (overrides the config document)")
	root.PersistentFlags().StringVarP(&appFlag, "app", "a", "", "named backup or snapshot entry to scope the operation to")
	root.PersistentFlags().StringVarP(&releaseFlag, "release", "r", "", "release name used for object naming (overrides the config document)")
	root.PersistentFlags().StringVarP(&configPathFlag, "config", "c", "", "path to the configuration document")
	injectLoglevelFlag(root.PersistentFlags())

	root.AddCommand(newSnapCommand())
	root.AddCommand(newBackupCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return errs.ExitCode(err)
	}
	return 0
}

// loadDocument resolves the configuration document and applies the -n/-r
// overrides, matching the operator-override pattern already used by the
// Restore Workflow's target resolution.
func loadDocument() (*config.Document, error) {
	doc, err := config.Load(resolveConfigPath(), config.WorkflowRestore)
	if err != nil {
		return nil, err
	}
	if namespaceFlag != "" {
		doc.Namespace = namespaceFlag
	}
	if releaseFlag != "" {
		doc.ReleaseName = releaseFlag
	}
	return doc, nil
}

// resolveConfigPath applies the same --config > APP_CONFIG > default
// resolution order as the two controller programs, by round-tripping
// configPathFlag through a throwaway FlagSet so config.ResolvePath's
// Changed-flag check behaves identically.
func resolveConfigPath() string {
	fs := pflag.NewFlagSet("kbb", pflag.ContinueOnError)
	fs.StringP("config", "c", "", "")
	if configPathFlag != "" {
		_ = fs.Parse([]string{"--config", configPathFlag})
	}
	return config.ResolvePath(fs)
}
