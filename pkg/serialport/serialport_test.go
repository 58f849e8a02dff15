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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestLineReaderSplitsChunks(t *testing.T) {
	port := NewScriptedPort()
	r := NewLineReader(port, 0)

	port.Feed(">>> Temperature: 4")
	line, ok, err := r.ReadLine()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, line)

	port.Feed("1.5\r\n>>> Shares: 3\n")

	line, ok, err = r.ReadLine()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ">>> Temperature: 41.5", line)

	line, ok, err = r.ReadLine()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ">>> Shares: 3", line)
	assert.Zero(t, r.Buffered())
}

func TestLineReaderTimeoutReturnsNoLine(t *testing.T) {
	ctrl := gomock.NewController(t)
	port := NewMockPort(ctrl)

	port.EXPECT().Read(gomock.Any()).Return(0, nil)

	line, ok, err := NewLineReader(port, 0).ReadLine()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, line)
}

func TestLineReaderSurfacesErrorsAfterBufferedLines(t *testing.T) {
	port := NewScriptedPort()
	r := NewLineReader(port, 0)

	port.Feed("last\n")
	port.Fail(errors.New("device removed"))

	line, ok, err := r.ReadLine()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "last", line)

	_, _, err = r.ReadLine()
	require.EqualError(t, err, "device removed")
}

func TestLineReaderDropsOverlongGarbage(t *testing.T) {
	port := NewScriptedPort()
	r := NewLineReader(port, 8)

	port.Feed("0123456789abcdef")

	_, ok, err := r.ReadLine()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, r.Buffered())
}

func TestConfigNormalize(t *testing.T) {
	cfg := Config{}
	require.NoError(t, cfg.normalize())
	assert.Equal(t, DefaultBaudRate, cfg.BaudRate)
	assert.Equal(t, DefaultReadTimeout, cfg.ReadTimeout)

	bad := Config{BaudRate: -1}
	require.ErrorIs(t, bad.normalize(), errInvalidBaudRate)
}

func TestIsBusy(t *testing.T) {
	assert.False(t, IsBusy(errors.New("nope")))
	assert.False(t, IsBusy(nil))
}
