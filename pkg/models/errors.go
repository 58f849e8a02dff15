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

package models

import "errors"

// Result codes shared by the store, the reset workflow and the admin API.
var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrTransient = errors.New("transient fault")
	ErrTool      = errors.New("tool error")

	// Classified tool failures. Each wraps ErrTool.

	ErrToolNotFound = &ToolError{Kind: "not_found", Msg: "flashing tool not found"}
	ErrToolTimeout  = &ToolError{Kind: "timeout", Msg: "flashing tool timed out"}
	ErrPortBusy     = &ToolError{Kind: "busy", Msg: "serial port busy"}
	ErrToolFailed   = &ToolError{Kind: "failed", Msg: "flashing tool failed"}
)

// ToolError is a classified failure of the external flashing tool.
type ToolError struct {
	Kind string
	Msg  string
}

func (e *ToolError) Error() string {
	return e.Msg
}

func (*ToolError) Unwrap() error {
	return ErrTool
}
