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

package k8sutil

import (
	"context"

	"github.com/go-logr/logr"
	ocpsecurityv1 "github.com/openshift/api/security/v1"
	kerrors "k8s.io/apimachinery/pkg/api/errors"
	apimeta "k8s.io/apimachinery/pkg/api/meta"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Properties captures the handful of cluster facts the Worker-Pod Supervisor
// needs to decide how to request a privileged pod (§3 pod.privileged).
// Grounded on controllers/platform/properties.go's IsOpenShift detection.
type Properties struct {
	IsOpenShift bool
}

// DetectProperties looks for any SecurityContextConstraints object to decide
// whether the cluster is OpenShift, exactly as the teacher does. It never
// fails hard: an API-discovery mismatch (the CRD isn't registered) is
// treated as "not OpenShift", since a plain pod SecurityContext is always a
// safe fallback for requesting privileged=true.
func DetectProperties(ctx context.Context, c client.Client, log logr.Logger) (Properties, error) {
	if err := ocpsecurityv1.AddToScheme(c.Scheme()); err != nil {
		return Properties{}, err
	}

	sccs := ocpsecurityv1.SecurityContextConstraintsList{}
	err := c.List(ctx, &sccs)
	switch {
	case len(sccs.Items) > 0:
		return Properties{IsOpenShift: true}, nil
	case err == nil || apimeta.IsNoMatchError(err) || kerrors.IsNotFound(err):
		return Properties{IsOpenShift: false}, nil
	default:
		log.Error(err, "error while probing for OpenShift SCCs")
		return Properties{}, err
	}
}
