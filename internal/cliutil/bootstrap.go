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

// Package cliutil holds the cluster-bootstrap boilerplate shared by every
// cmd/ program: building a scheme, a controller-runtime client, and a
// client-go clientset from in-cluster or kubeconfig configuration, the way
// main.go builds its manager's Scheme/client pair.
package cliutil

import (
	snapv1 "github.com/kubernetes-csi/external-snapshotter/client/v8/apis/volumesnapshot/v1"
	ocpsecurityv1 "github.com/openshift/api/security/v1"
	kruntime "k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/client-go/kubernetes"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	_ "k8s.io/client-go/plugin/pkg/client/auth"
)

// NewScheme builds the runtime.Scheme every program needs: core types plus
// the VolumeSnapshot and OpenShift SCC types the Snapshot Controller and
// platform detection consume.
func NewScheme() *kruntime.Scheme {
	scheme := kruntime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(snapv1.AddToScheme(scheme))
	utilruntime.Must(ocpsecurityv1.AddToScheme(scheme))
	return scheme
}

// Clients bundles the REST config and both Kubernetes client flavors the
// corpus's packages expect: a bare controller-runtime client for typed CRUD
// against custom resources, and a client-go clientset for subresources
// (exec, scale, logs, watch) that controller-runtime's client doesn't cover.
type Clients struct {
	RESTConfig *rest.Config
	Client     client.Client
	Clientset  kubernetes.Interface
}

// NewClients resolves the ambient kubeconfig (in-cluster first, then
// KUBECONFIG/~/.kube/config, via ctrl.GetConfigOrDie's resolution order) and
// builds both client flavors against it.
func NewClients(scheme *kruntime.Scheme) (*Clients, error) {
	restConfig, err := ctrl.GetConfig()
	if err != nil {
		return nil, err
	}

	c, err := client.New(restConfig, client.Options{Scheme: scheme})
	if err != nil {
		return nil, err
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, err
	}

	return &Clients{RESTConfig: restConfig, Client: c, Clientset: clientset}, nil
}
