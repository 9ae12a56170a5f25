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

package main

import (
	"context"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/backube/kube-borg-backup/internal/backupworkflow"
	"github.com/backube/kube-borg-backup/internal/cliutil"
	"github.com/backube/kube-borg-backup/internal/clone"
	"github.com/backube/kube-borg-backup/internal/config"
	"github.com/backube/kube-borg-backup/internal/errs"
	"github.com/backube/kube-borg-backup/internal/k8sutil"
	"github.com/backube/kube-borg-backup/internal/orchestrator"
	"github.com/backube/kube-borg-backup/internal/snapshot"
	"github.com/backube/kube-borg-backup/internal/workerpod"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctrl.SetLogger(zap.New(zap.UseDevMode(true)))
	log := ctrl.Log.WithName("backup-controller")

	flags := pflag.NewFlagSet("backup-controller", pflag.ExitOnError)
	flags.StringP("config", "c", "", "path to the configuration document")
	testMode := flags.Bool("test", false, "skip the engine invocation and simulate a short pause")
	_ = flags.Parse(os.Args[1:])

	doc, err := config.Load(config.ResolvePath(flags), config.WorkflowBackup)
	if err != nil {
		log.Error(err, "failed to load configuration")
		return errs.ExitCode(err)
	}

	scheme := cliutil.NewScheme()
	clients, err := cliutil.NewClients(scheme)
	if err != nil {
		log.Error(err, "failed to build cluster clients")
		return errs.ExitCode(errs.ClusterAuth(err))
	}

	k := orchestrator.New(*doc, doc.Namespace, clients.RESTConfig, clients.Client, clients.Clientset, log)
	ctx, stop := orchestrator.WithSignalShutdown(context.Background(), k)

	failed := 0
	if *testMode {
		log.Info("test mode: simulating backup workflow")
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
		}
	} else {
		failed = runWorkflow(ctx, k, clients, log)
	}

	if shutdownErr := stop(); shutdownErr != nil {
		return errs.ExitCode(shutdownErr)
	}
	if failed > 0 {
		return 1
	}
	return 0
}

func runWorkflow(ctx context.Context, k *orchestrator.Kernel, clients *cliutil.Clients, log logr.Logger) int {
	props, err := k8sutil.DetectProperties(ctx, clients.Client, log.WithName("platform"))
	if err != nil {
		log.Error(err, "failed to detect cluster platform properties")
		return 1
	}

	wf := &backupworkflow.Workflow{
		Config:      k.Config,
		Client:      clients.Client,
		Clientset:   clients.Clientset,
		Namespace:   k.Namespace,
		Snapshots:   snapshot.New(clients.Client, k.Namespace, log.WithName("snapshot")),
		Clones:      clone.New(clients.Client, clients.Clientset, k.Namespace, log.WithName("clone")),
		Supervisor:  workerpod.New(clients.Clientset, k.Namespace, log.WithName("workerpod")),
		Tracker:     k.Tracker,
		IsOpenShift: props.IsOpenShift,
		Log:         log.WithName("workflow"),
	}

	failed := 0
	for _, r := range wf.Run(ctx, time.Now()) {
		if r.Err != nil {
			failed++
			log.Error(r.Err, "backup entry failed", "entry", r.Entry.Name)
		}
	}
	return failed
}
