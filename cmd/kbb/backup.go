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
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/backube/kube-borg-backup/internal/cliutil"
	"github.com/backube/kube-borg-backup/internal/config"
	"github.com/backube/kube-borg-backup/internal/k8sutil"
	"github.com/backube/kube-borg-backup/internal/restoreworkflow"
	"github.com/backube/kube-borg-backup/internal/tracker"
	"github.com/backube/kube-borg-backup/internal/worker"
	"github.com/backube/kube-borg-backup/internal/workerpod"

	"github.com/spf13/cobra"
)

func newBackupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "operate on archive-engine revisions",
	}
	cmd.AddCommand(newBackupListCommand())
	cmd.AddCommand(newBackupRestoreCommand())
	return cmd
}

func newBackupListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list archive revisions in the repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, clients, err := bootstrap()
			if err != nil {
				return err
			}
			glob := "*"
			if appFlag != "" {
				glob = k8sutil.ArchiveGlob(appFlag)
			}
			out, err := runListPod(context.Background(), doc, clients, glob)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

func newBackupRestoreCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <archive-name>",
		Short: "restore a volume from an archive revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(restoreworkflow.KindArchive, args[0])
		},
	}
	cmd.Flags().StringVar(&pvcFlag, "pvc", "", "target PVC to restore into (overrides the configured entry inferred from the archive name's prefix)")
	return cmd
}

// listPayload extends the ephemeral config secret with the glob the list
// worker should pass to the archive engine, since the worker binary's own
// invocation takes no arguments beyond -c (spec.md §6).
type listPayload struct {
	config.Document `yaml:",inline"`
	ListGlob        string `yaml:"listGlob"`
}

// runListPod launches a Role=List worker pod, waits for it to finish, and
// parses its stdout into worker.ListOutput. Unlike the Backup/Restore
// Workflows' Supervisor.Launch + streamed log forwarding (which redacts
// secret-bearing lines and is meant for a human operator's console), this
// reads the pod's raw completed log once the container has exited, since the
// list worker's entire stdout is the single JSON object this command needs
// to parse exactly, not a line-oriented log stream.
func runListPod(ctx context.Context, doc *config.Document, clients *cliutil.Clients, glob string) (*worker.ListOutput, error) {
	now := time.Now()
	podName := k8sutil.WorkerPodName(doc.ReleaseName, "list", now)
	secretName := k8sutil.EphemeralSecretName(podName)
	trk := tracker.New()

	defer func() {
		_ = clients.Clientset.CoreV1().Pods(doc.Namespace).Delete(context.Background(), podName, metav1.DeleteOptions{})
		_ = clients.Clientset.CoreV1().Secrets(doc.Namespace).Delete(context.Background(), secretName, metav1.DeleteOptions{})
	}()

	payload, err := yaml.Marshal(listPayload{Document: *doc, ListGlob: glob})
	if err != nil {
		return nil, err
	}
	secret := workerpod.EphemeralSecret(secretName, doc.Namespace, payload, k8sutil.BaseLabels(k8sutil.OperationList))
	trk.Track(tracker.KindEphemeralSecret, doc.Namespace, secretName)
	if _, err := clients.Clientset.CoreV1().Secrets(doc.Namespace).Create(ctx, secret, metav1.CreateOptions{}); err != nil {
		return nil, fmt.Errorf("creating ephemeral secret: %w", err)
	}

	pod := workerpod.BuildPod(workerpod.Spec{
		Name:         podName,
		Namespace:    doc.Namespace,
		Role:         workerpod.RoleList,
		Image:        doc.Pod.Image,
		Resources:    doc.Pod.Resources,
		ConfigSecret: secretName,
		DataClaim:    doc.CachePVC,
		DataReadOnly: true,
		CacheClaim:   doc.CachePVC,
		Labels:       k8sutil.BaseLabels(k8sutil.OperationList),
	})
	trk.Track(tracker.KindWorkerPod, doc.Namespace, podName)

	supervisor := workerpod.New(clients.Clientset, doc.Namespace, ctrl.Log.WithName("kbb"))
	outcome, err := supervisor.Launch(ctx, pod)
	if err != nil {
		return nil, fmt.Errorf("list worker pod: %w", err)
	}
	if outcome.Phase != corev1.PodSucceeded {
		return nil, fmt.Errorf("list worker pod %s failed: %s: %s", podName, outcome.Reason, outcome.Message)
	}

	raw, err := fetchPodLogs(ctx, clients, doc.Namespace, podName)
	if err != nil {
		return nil, err
	}
	var out worker.ListOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parsing list worker output: %w", err)
	}
	return &out, nil
}

func fetchPodLogs(ctx context.Context, clients *cliutil.Clients, namespace, podName string) ([]byte, error) {
	stream, err := clients.Clientset.CoreV1().Pods(namespace).
		GetLogs(podName, &corev1.PodLogOptions{Container: "worker", Follow: false}).
		Stream(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching logs for %s: %w", podName, err)
	}
	defer stream.Close()
	return io.ReadAll(stream)
}
