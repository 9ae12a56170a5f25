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

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
)

// Outcome is the terminal result of observing a worker pod.
type Outcome struct {
	Phase    corev1.PodPhase
	ExitCode int32
	Reason   string
	Message  string
}

// watchPod blocks until pod reaches a terminal phase ({Succeeded, Failed})
// or ctx is cancelled, re-establishing the watch on disconnect.
//
// Resuming a watch from the resourceVersion of the *last event received* is
// a documented bug in the reference implementation's lineage: an apiserver
// can replay a compacted history from a stale per-event resourceVersion,
// causing the same terminal event to be observed repeatedly and the
// supervisor to never converge. This resumes instead from the
// resourceVersion returned by the initial List call, which the watch
// contract guarantees is a safe, monotonically-valid starting point for the
// collection as a whole.
func watchPod(ctx context.Context, clientset kubernetes.Interface, namespace, name string) (Outcome, error) {
	listOpts := metav1.ListOptions{FieldSelector: fmt.Sprintf("metadata.name=%s", name)}
	list, err := clientset.CoreV1().Pods(namespace).List(ctx, listOpts)
	if err != nil {
		return Outcome{}, fmt.Errorf("listing pod %s/%s to establish watch: %w", namespace, name, err)
	}
	listResourceVersion := list.ResourceVersion

	for _, p := range list.Items {
		if p.Name == name {
			if out, done := terminalOutcome(&p); done {
				return out, nil
			}
		}
	}

	for {
		w, err := clientset.CoreV1().Pods(namespace).Watch(ctx, metav1.ListOptions{
			FieldSelector:   fmt.Sprintf("metadata.name=%s", name),
			ResourceVersion: listResourceVersion,
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("watching pod %s/%s: %w", namespace, name, err)
		}

		out, done, resumeErr := drainWatch(ctx, w)
		w.Stop()
		if resumeErr != nil {
			return Outcome{}, resumeErr
		}
		if done {
			return out, nil
		}
		// Channel closed (e.g. watch timeout): resume from the same
		// list-level resourceVersion, never from a per-event one.
		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		default:
		}
	}
}

// watchPodRaw opens a plain watch on one pod by name, used by the log
// follower to detect the container leaving Waiting without duplicating the
// resourceVersion-resume logic watchPod needs for its longer-lived wait.
func watchPodRaw(ctx context.Context, clientset kubernetes.Interface, namespace, name string) (watch.Interface, error) {
	return clientset.CoreV1().Pods(namespace).Watch(ctx, metav1.ListOptions{
		FieldSelector: fmt.Sprintf("metadata.name=%s", name),
	})
}

func drainWatch(ctx context.Context, w watch.Interface) (Outcome, bool, error) {
	for {
		select {
		case <-ctx.Done():
			return Outcome{}, false, ctx.Err()
		case event, ok := <-w.ResultChan():
			if !ok {
				return Outcome{}, false, nil
			}
			if event.Type == watch.Deleted {
				return Outcome{}, false, fmt.Errorf("worker pod was deleted before reaching a terminal phase")
			}
			pod, ok := event.Object.(*corev1.Pod)
			if !ok {
				continue
			}
			if out, done := terminalOutcome(pod); done {
				return out, true, nil
			}
		}
	}
}

func terminalOutcome(pod *corev1.Pod) (Outcome, bool) {
	switch pod.Status.Phase {
	case corev1.PodSucceeded:
		return Outcome{Phase: corev1.PodSucceeded, ExitCode: exitCodeOf(pod)}, true
	case corev1.PodFailed:
		reason, message := failureDetail(pod)
		return Outcome{Phase: corev1.PodFailed, ExitCode: exitCodeOf(pod), Reason: reason, Message: message}, true
	default:
		return Outcome{}, false
	}
}

func exitCodeOf(pod *corev1.Pod) int32 {
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.Name == "worker" && cs.State.Terminated != nil {
			return cs.State.Terminated.ExitCode
		}
	}
	return -1
}

func failureDetail(pod *corev1.Pod) (reason, message string) {
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.Name == "worker" && cs.State.Terminated != nil {
			return cs.State.Terminated.Reason, cs.State.Terminated.Message
		}
	}
	return pod.Status.Reason, pod.Status.Message
}
