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
	"errors"
	"sync"
	"time"
)

var ErrScriptedPortClosed = errors.New("scripted port closed")

// ScriptedPort is an in-memory Port for tests. Written data becomes readable
// immediately; Read blocks for at most the read timeout.
type ScriptedPort struct {
	mu      sync.Mutex
	data    []byte
	failErr error
	closed  bool
	timeout time.Duration
	notify  chan struct{}
}

func NewScriptedPort() *ScriptedPort {
	return &ScriptedPort{
		timeout: 10 * time.Millisecond,
		notify:  make(chan struct{}, 1),
	}
}

// Feed appends device output.
func (p *ScriptedPort) Feed(s string) {
	p.mu.Lock()
	p.data = append(p.data, s...)
	p.mu.Unlock()

	p.wake()
}

// Fail makes subsequent reads return err, simulating an unplug.
func (p *ScriptedPort) Fail(err error) {
	p.mu.Lock()
	p.failErr = err
	p.mu.Unlock()

	p.wake()
}

func (p *ScriptedPort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closed
}

func (p *ScriptedPort) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *ScriptedPort) Read(b []byte) (int, error) {
	if n, err, ok := p.take(b); ok {
		return n, err
	}

	p.mu.Lock()
	timeout := p.timeout
	p.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.notify:
	case <-timer.C:
	}

	n, err, _ := p.take(b)

	return n, err
}

func (p *ScriptedPort) take(b []byte) (int, error, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, ErrScriptedPortClosed, true
	}

	if len(p.data) > 0 {
		n := copy(b, p.data)
		p.data = p.data[n:]

		return n, nil, true
	}

	if p.failErr != nil {
		return 0, p.failErr, true
	}

	return 0, nil, false
}

func (p *ScriptedPort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t > 0 {
		p.timeout = t
	}

	return nil
}

func (p *ScriptedPort) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.data = nil

	return nil
}

func (p *ScriptedPort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.wake()

	return nil
}
