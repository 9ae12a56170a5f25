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
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	kerrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/client-go/kubernetes"
)

// sensitiveSubstrings marks log lines the follower must never forward to the
// orchestrator's own stdout, matching the supplemented feature grounded on
// controllers/utils/podlogs.go's FilterLogs.
var sensitiveSubstrings = []string{"BORG_PASSPHRASE", "PRIVATE KEY"}

// FilterLine returns a pointer to a fixed redaction placeholder in place of a
// line containing secret material, or a pointer to the unmodified line
// otherwise; it never returns nil. Mirrors
// controllers/utils/podlogs.go's FilterLogs callback shape.
func FilterLine(line string) *string {
	for _, s := range sensitiveSubstrings {
		if strings.Contains(line, s) {
			redacted := "[redacted line containing secret material]"
			return &redacted
		}
	}
	return &line
}

// followLogs streams the worker container's logs line-by-line to sink once
// the container has started, applying FilterLine to every line before
// forwarding it. It waits (bounded by ctx) for the container to leave
// Waiting before attempting to stream, and if the stream request itself
// comes back as a Bad Request (the kubelet hasn't yet opened the log
// endpoint), it falls back to a single non-follow fetch, matching the
// teacher's tolerance for a not-yet-ready log endpoint.
func followLogs(ctx context.Context, clientset kubernetes.Interface, log logr.Logger, namespace, podName string, sink func(line string)) {
	if err := waitContainerStarted(ctx, clientset, namespace, podName); err != nil {
		log.Info("log follower giving up: container never started", "error", err.Error())
		return
	}

	follow := true
	req := clientset.CoreV1().Pods(namespace).GetLogs(podName, &corev1.PodLogOptions{
		Container: "worker",
		Follow:    follow,
	})
	stream, err := req.Stream(ctx)
	if err != nil {
		if kerrors.IsBadRequest(err) {
			fallbackFetch(ctx, clientset, log, namespace, podName, sink)
			return
		}
		log.Error(err, "failed to open log stream")
		return
	}
	defer stream.Close()

	scanLines(stream, sink)
}

func fallbackFetch(ctx context.Context, clientset kubernetes.Interface, log logr.Logger, namespace, podName string, sink func(line string)) {
	req := clientset.CoreV1().Pods(namespace).GetLogs(podName, &corev1.PodLogOptions{Container: "worker", Follow: false})
	stream, err := req.Stream(ctx)
	if err != nil {
		log.Error(err, "fallback non-follow log fetch also failed")
		return
	}
	defer stream.Close()
	scanLines(stream, sink)
}

func scanLines(r io.Reader, sink func(line string)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := FilterLine(scanner.Text()); line != nil {
			sink(*line)
		}
	}
}

func waitContainerStarted(ctx context.Context, clientset kubernetes.Interface, namespace, podName string) error {
	w, err := watchPodRaw(ctx, clientset, namespace, podName)
	if err != nil {
		return err
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.ResultChan():
			if !ok {
				return nil
			}
			pod, ok := event.Object.(*corev1.Pod)
			if !ok {
				continue
			}
			for _, cs := range pod.Status.ContainerStatuses {
				if cs.Name != "worker" {
					continue
				}
				if cs.State.Running != nil || cs.State.Terminated != nil {
					return nil
				}
			}
		}
	}
}
