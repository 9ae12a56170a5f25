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

package config

import "github.com/spf13/viper"

const (
	workerImageFlag    = "worker-image"
	workerImageEnvVar  = "RELATED_IMAGE_WORKER"
	defaultWorkerImage = "quay.io/kbb/worker:latest"
)

func init() {
	viper.SetDefault(workerImageFlag, defaultWorkerImage)
	_ = viper.BindEnv(workerImageFlag, workerImageEnvVar)
}

// ResolveImage fills in an unset repository from fallback, then from
// RELATED_IMAGE_WORKER (or the compiled-in default), mirroring how a
// restore pod may omit its own image and inherit the main worker image.
func ResolveImage(primary, fallback ImageSpec) ImageSpec {
	if primary.Repository != "" {
		return primary
	}
	if fallback.Repository != "" {
		return fallback
	}
	return ImageSpec{Repository: viper.GetString(workerImageFlag)}
}
