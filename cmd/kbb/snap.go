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
	"encoding/json"
	"fmt"
	"os"
	"time"

	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/backube/kube-borg-backup/internal/cliutil"
	"github.com/backube/kube-borg-backup/internal/clone"
	"github.com/backube/kube-borg-backup/internal/config"
	"github.com/backube/kube-borg-backup/internal/hooks"
	"github.com/backube/kube-borg-backup/internal/k8sutil"
	"github.com/backube/kube-borg-backup/internal/restoreworkflow"
	"github.com/backube/kube-borg-backup/internal/snapshot"
	"github.com/backube/kube-borg-backup/internal/tracker"
	"github.com/backube/kube-borg-backup/internal/workerpod"

	"github.com/spf13/cobra"
)

func newSnapCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snap",
		Short: "operate on VolumeSnapshots",
	}
	cmd.AddCommand(newSnapListCommand())
	cmd.AddCommand(newSnapRestoreCommand())
	return cmd
}

func newSnapListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list VolumeSnapshots for a source volume",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, clients, err := bootstrap()
			if err != nil {
				return err
			}
			pvc := pvcFlag
			if pvc == "" {
				pvc, err = sourceVolumeForApp(*doc)
				if err != nil {
					return err
				}
			}
			snaps := snapshot.New(clients.Client, doc.Namespace, ctrl.Log.WithName("kbb"))
			list, err := snaps.ListForSource(context.Background(), pvc)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			for _, s := range list {
				_ = enc.Encode(s)
			}
			return nil
		},
	}
}

func newSnapRestoreCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <snapshot-name>",
		Short: "restore a volume from a VolumeSnapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(restoreworkflow.KindSnapshot, args[0])
		},
	}
	cmd.Flags().StringVar(&pvcFlag, "pvc", "", "target PVC to restore into (overrides the snapshot's source-volume label)")
	return cmd
}

// sourceVolumeForApp resolves --pvc's default when omitted: the PVC backing
// the -a named snapshot entry.
func sourceVolumeForApp(doc config.Document) (string, error) {
	if appFlag == "" {
		return "", fmt.Errorf("either --pvc or -a <entry> is required to scope the snapshot listing")
	}
	for _, e := range doc.Snapshots.PVCs {
		if e.Name == appFlag {
			return e.Name, nil
		}
	}
	return "", fmt.Errorf("no configured snapshot entry named %q", appFlag)
}

func runRestore(kind restoreworkflow.Kind, id string) error {
	doc, clients, err := bootstrap()
	if err != nil {
		return err
	}

	props, err := k8sutil.DetectProperties(context.Background(), clients.Client, ctrl.Log.WithName("platform"))
	if err != nil {
		return err
	}

	scaler := &hooks.ClientsetScaler{Clientset: clients.Clientset}
	hookEngine := hooks.New(doc.Namespace, clients.RESTConfig, clients.Clientset, scaler, ctrl.Log.WithName("hooks"))

	wf := &restoreworkflow.Workflow{
		Config:      *doc,
		Client:      clients.Client,
		Clientset:   clients.Clientset,
		Namespace:   doc.Namespace,
		Clones:      clone.New(clients.Client, clients.Clientset, doc.Namespace, ctrl.Log.WithName("clone")),
		Hooks:       hookEngine,
		Supervisor:  workerpod.New(clients.Clientset, doc.Namespace, ctrl.Log.WithName("workerpod")),
		Tracker:     tracker.New(),
		IsOpenShift: props.IsOpenShift,
		Log:         ctrl.Log.WithName("restore"),
	}

	opts := restoreworkflow.Options{
		Kind:           kind,
		ID:             id,
		TargetOverride: pvcFlag,
		Timeout:        15 * time.Minute,
	}
	return wf.Run(context.Background(), opts, time.Now())
}

func bootstrap() (*config.Document, *cliutil.Clients, error) {
	doc, err := loadDocument()
	if err != nil {
		return nil, nil, err
	}
	scheme := cliutil.NewScheme()
	clients, err := cliutil.NewClients(scheme)
	if err != nil {
		return nil, nil, err
	}
	return doc, clients, nil
}
