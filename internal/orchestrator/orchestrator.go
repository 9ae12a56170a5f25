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

// Package orchestrator holds the one kernel object each controller program
// builds at startup and threads through its workflow, replacing the
// module-level globals the reference implementation's lineage used. It also
// owns the signal-driven shutdown path shared by every program (spec.md §5
// "Cancellation & timeouts").
package orchestrator

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/backube/kube-borg-backup/internal/config"
	"github.com/backube/kube-borg-backup/internal/tracker"
)

// Kernel bundles every long-lived dependency a controller program's
// workflows need: the decoded config, both flavors of Kubernetes client the
// corpus's packages expect, the namespace, the Resource Tracker, and a
// logger. Built once in main and passed down by reference.
type Kernel struct {
	Config     config.Document
	Namespace  string
	RESTConfig *rest.Config
	Client     client.Client
	Clientset  kubernetes.Interface
	Tracker    *tracker.Tracker
	Log        logr.Logger
}

// New builds a Kernel, initializing an empty Resource Tracker.
func New(doc config.Document, namespace string, restConfig *rest.Config, c client.Client, clientset kubernetes.Interface, log logr.Logger) *Kernel {
	return &Kernel{
		Config:     doc,
		Namespace:  namespace,
		RESTConfig: restConfig,
		Client:     c,
		Clientset:  clientset,
		Tracker:    tracker.New(),
		Log:        log,
	}
}

// drainTimeout bounds how long Shutdown waits for the Resource Tracker to
// finish deleting everything it tracked before returning regardless.
const drainTimeout = 30 * time.Second

// Shutdown drains every tracked object with a bounded timeout and logs the
// outcome, matching §5's "invoke Resource Tracker drain... then exit with
// code 143" sequence. The caller is responsible for actually exiting 143.
func (k *Kernel) Shutdown(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, drainTimeout)
	defer cancel()

	k.Log.Info("shutting down: draining tracked resources")
	k.Tracker.Drain(ctx, k.Client, k.Log)

	remaining := k.Tracker.Snapshot()
	if len(remaining) > 0 {
		k.Log.Info("shutdown drain left resources untracked as leaked", "remaining", remaining)
	}
}
