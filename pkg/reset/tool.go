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

//go:generate mockgen -destination=mock_reset.go -package=reset github.com/carverauto/shepherd/pkg/reset ToolRunner,BusyProbe

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	"github.com/carverauto/shepherd/pkg/models"
)

const (
	DefaultToolPath    = "esptool.py"
	DefaultToolTimeout = 15 * time.Second
)

// Identity is what the flashing tool reports after a hard reset.
type Identity struct {
	MAC     string
	Chipset string
}

// ToolRunner hard-resets a chip and reads its permanent identity.
type ToolRunner interface {
	HardReset(ctx context.Context, devPath string) (Identity, error)
}

// ESPTool runs esptool as an external process.
type ESPTool struct {
	Path    string
	Timeout time.Duration
}

func (t *ESPTool) HardReset(ctx context.Context, devPath string) (Identity, error) {
	path := t.Path
	if path == "" {
		path = DefaultToolPath
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, path, "--port", devPath, "--after", "hard_reset", "read_mac")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		return Identity{}, classifyToolError(ctx, err, stderr.String())
	}

	return ParseIdentity(stdout.String()), nil
}

// ParseIdentity extracts the chip family and MAC from esptool output.
func ParseIdentity(output string) Identity {
	var id Identity

	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())

		switch {
		case strings.HasPrefix(line, "Chip type:"):
			id.Chipset = strings.TrimSpace(strings.TrimPrefix(line, "Chip type:"))
		case strings.HasPrefix(line, "Chip is "):
			if id.Chipset == "" {
				id.Chipset = strings.TrimSpace(strings.TrimPrefix(line, "Chip is "))
			}
		case strings.HasPrefix(line, "MAC:"):
			id.MAC = strings.TrimSpace(strings.TrimPrefix(line, "MAC:"))
		}
	}

	return id
}

func classifyToolError(ctx context.Context, err error, stderr string) error {
	detail := strings.TrimSpace(stderr)

	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", models.ErrToolNotFound, err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", models.ErrToolTimeout, ctx.Err())
	}

	lower := strings.ToLower(detail)
	if strings.Contains(lower, "busy") || strings.Contains(lower, "could not open") {
		return fmt.Errorf("%w: %s", models.ErrPortBusy, detail)
	}

	if detail == "" {
		detail = err.Error()
	}

	return fmt.Errorf("%w: %s", models.ErrToolFailed, detail)
}
