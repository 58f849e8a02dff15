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

package serialport

import (
	"bytes"
	"strings"
)

const (
	defaultChunkSize = 256
	DefaultMaxLine   = 4096
)

// LineReader splits port output into lines. Each ReadLine performs at most
// one timed read, so callers regain control every read timeout.
type LineReader struct {
	port    Port
	buf     []byte
	chunk   []byte
	maxLine int
}

func NewLineReader(port Port, maxLine int) *LineReader {
	if maxLine <= 0 {
		maxLine = DefaultMaxLine
	}

	return &LineReader{
		port:    port,
		chunk:   make([]byte, defaultChunkSize),
		maxLine: maxLine,
	}
}

// ReadLine returns the next complete line with the line ending removed.
// ok is false when the read timed out before a full line arrived.
func (r *LineReader) ReadLine() (line string, ok bool, err error) {
	if line, ok := r.next(); ok {
		return line, true, nil
	}

	n, err := r.port.Read(r.chunk)
	if n > 0 {
		r.buf = append(r.buf, r.chunk[:n]...)
	}

	if line, ok := r.next(); ok {
		return line, true, nil
	}

	if err != nil {
		return "", false, err
	}

	// Unterminated garbage longer than a line is dropped.
	if len(r.buf) > r.maxLine {
		r.buf = r.buf[:0]
	}

	return "", false, nil
}

func (r *LineReader) next() (string, bool) {
	i := bytes.IndexByte(r.buf, '\n')
	if i < 0 {
		return "", false
	}

	line := strings.TrimRight(string(r.buf[:i]), "\r")
	r.buf = append(r.buf[:0], r.buf[i+1:]...)

	return line, true
}

// Buffered reports the number of bytes held for an incomplete line.
func (r *LineReader) Buffered() int {
	return len(r.buf)
}
