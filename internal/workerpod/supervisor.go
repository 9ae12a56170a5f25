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

package workerpod

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	kerrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Supervisor launches exactly one worker pod and observes it to a terminal
// phase, running the event watch and the log follower concurrently (§4.5,
// §5 "one helper thread per session-linked hook" sibling pattern applied to
// the pod's own lifecycle).
type Supervisor struct {
	Clientset kubernetes.Interface
	Namespace string
	Log       logr.Logger
}

// New builds a Supervisor.
func New(clientset kubernetes.Interface, namespace string, log logr.Logger) *Supervisor {
	return &Supervisor{Clientset: clientset, Namespace: namespace, Log: log}
}

// Launch creates pod, runs the watch and log-follow goroutines until the pod
// reaches a terminal phase (or ctx is cancelled), and returns the outcome.
// The caller is responsible for tracking pod.Name with the Resource Tracker
// before calling Launch and for deleting it afterward — Launch never deletes
// the pod itself, matching the Worker Pod lifecycle's "deleted unconditionally
// after observation" as a caller-owned step.
func (s *Supervisor) Launch(ctx context.Context, pod *corev1.Pod) (Outcome, error) {
	created, err := s.Clientset.CoreV1().Pods(s.Namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil && !kerrors.IsAlreadyExists(err) {
		return Outcome{}, fmt.Errorf("creating worker pod %s: %w", pod.Name, err)
	}
	if created == nil {
		created = pod
	}

	logCtx, stopLogs := context.WithCancel(ctx)
	defer stopLogs()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		followLogs(logCtx, s.Clientset, s.Log.WithValues("pod", created.Name), s.Namespace, created.Name, func(line string) {
			s.Log.Info("worker log", "pod", created.Name, "line", line)
		})
	}()

	outcome, err := watchPod(ctx, s.Clientset, s.Namespace, created.Name)
	stopLogs()
	wg.Wait()

	if err != nil {
		return Outcome{}, err
	}
	return outcome, nil
}

// Delete removes the worker pod, ignoring not-found.
func (s *Supervisor) Delete(ctx context.Context, name string) error {
	if err := s.Clientset.CoreV1().Pods(s.Namespace).Delete(ctx, name, metav1.DeleteOptions{}); err != nil && !kerrors.IsNotFound(err) {
		return fmt.Errorf("deleting worker pod %s: %w", name, err)
	}
	return nil
}
