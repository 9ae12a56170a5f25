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

package orchestrator

import (
	"context"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/backube/kube-borg-backup/internal/config"
	"github.com/backube/kube-borg-backup/internal/tracker"
)

var _ = Describe("Kernel shutdown", func() {
	var (
		c   client.Client
		k   *Kernel
		pod *corev1.Pod
	)

	BeforeEach(func() {
		pod = &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "p", Namespace: "ns"}}
		c = fake.NewClientBuilder().WithObjects(pod).Build()
		k = New(config.Document{}, "ns", nil, c, nil, logr.Discard())
		k.Tracker.Track(tracker.KindWorkerPod, "ns", "p")
	})

	It("drains every tracked object", func() {
		k.Shutdown(context.Background())
		Expect(k.Tracker.Snapshot()).To(BeEmpty())
	})

	It("deletes the tracked pod from the cluster", func() {
		k.Shutdown(context.Background())

		var got corev1.Pod
		err := c.Get(context.Background(), client.ObjectKey{Namespace: "ns", Name: "p"}, &got)
		Expect(err).To(HaveOccurred())
	})
})
