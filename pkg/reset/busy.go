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

package reset

import (
	"context"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/process"
)

// BusyProbe lists processes holding a device node open.
type BusyProbe interface {
	Holders(ctx context.Context, devPath string) ([]int32, error)
}

// ProcessProbe inspects open files of every visible process via gopsutil.
type ProcessProbe struct {
	// Self is excluded from the result.
	Self int32
}

func (p *ProcessProbe) Holders(ctx context.Context, devPath string) ([]int32, error) {
	target := filepath.Clean(devPath)
	if resolved, err := filepath.EvalSymlinks(target); err == nil {
		target = resolved
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var holders []int32

	for _, proc := range procs {
		if proc.Pid == p.Self {
			continue
		}

		files, err := proc.OpenFilesWithContext(ctx)
		if err != nil {
			// Processes owned by other users are not inspectable.
			continue
		}

		for _, f := range files {
			if filepath.Clean(f.Path) == target {
				holders = append(holders, proc.Pid)

				break
			}
		}
	}

	return holders, nil
}
