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

package hooks

import (
	"bytes"
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/tools/remotecommand"
	"k8s.io/kubectl/pkg/scheme"
)

// execInPod runs command inside container of pod and returns its captured
// stdout/stderr, grounded on the SPDY exec pattern used to pull artifacts out
// of a sandbox pod in the retrieval pack (see the imagetest driver's
// getArtifact), adapted here to run to completion rather than stream to a
// pipe.
func (e *Engine) execInPod(ctx context.Context, pod, container string, command []string) (string, string, error) {
	req := e.Clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(pod).
		Namespace(e.Namespace).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: container,
			Command:   command,
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(e.RESTConfig, "POST", req.URL())
	if err != nil {
		return "", "", fmt.Errorf("building exec stream for pod %s/%s: %w", e.Namespace, pod, err)
	}

	var stdout, stderr bytes.Buffer
	streamErr := executor.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: &stdout,
		Stderr: &stderr,
	})
	if streamErr != nil {
		return stdout.String(), stderr.String(), fmt.Errorf("exec %v in pod %s/%s/%s: %w (stderr: %q)",
			command, e.Namespace, pod, container, streamErr, stderr.String())
	}
	return stdout.String(), stderr.String(), nil
}
