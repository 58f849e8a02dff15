/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package scanner

import (
	"path/filepath"
	"strings"
)

const DefaultSysfsRoot = "/sys"

// SysfsResolver resolves port paths through /sys/class/tty/<node>/device.
type SysfsResolver struct {
	root string
}

func NewSysfsResolver(root string) *SysfsResolver {
	return &SysfsResolver{root: root}
}

// PortPath implements PortResolver.
func (r *SysfsResolver) PortPath(nodePath string) (string, bool) {
	link := filepath.Join(r.root, "class", "tty", filepath.Base(nodePath), "device")

	target, err := filepath.EvalSymlinks(link)
	if err != nil {
		return "", false
	}

	return PortPathFromDevpath(target)
}

// PortPathFromDevpath picks the last path segment that names a USB port
// ("1-1.2") rather than an interface ("1-1.2:1.0").
func PortPathFromDevpath(devpath string) (string, bool) {
	parts := strings.Split(filepath.ToSlash(devpath), "/")

	for i := len(parts) - 1; i >= 0; i-- {
		if strings.Contains(parts[i], "-") && !strings.Contains(parts[i], ":") {
			return parts[i], true
		}
	}

	return "", false
}
