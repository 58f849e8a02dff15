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

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDurationJSON(t *testing.T) {
	var cfg struct {
		Tick  Duration `json:"tick"`
		Stale Duration `json:"stale"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"tick":"5s","stale":300000000000}`), &cfg))
	assert.Equal(t, 5*time.Second, cfg.Tick.Std())
	assert.Equal(t, 5*time.Minute, cfg.Stale.Std())

	out, err := json.Marshal(cfg.Tick)
	require.NoError(t, err)
	assert.JSONEq(t, `"5s"`, string(out))

	err = json.Unmarshal([]byte(`{"tick":"soon"}`), &cfg)
	require.ErrorIs(t, err, errInvalidDuration)

	err = json.Unmarshal([]byte(`{"tick":true}`), &cfg)
	require.ErrorIs(t, err, errInvalidDuration)
}

func TestDurationYAML(t *testing.T) {
	var cfg struct {
		Tick  Duration `yaml:"tick"`
		Raw   Duration `yaml:"raw"`
		Empty Duration `yaml:"empty"`
	}

	require.NoError(t, yaml.Unmarshal([]byte("tick: 1500ms\nraw: 2000000000\n"), &cfg))
	assert.Equal(t, 1500*time.Millisecond, cfg.Tick.Std())
	assert.Equal(t, 2*time.Second, cfg.Raw.Std())
	assert.Zero(t, cfg.Empty)

	require.Error(t, yaml.Unmarshal([]byte("tick: [1, 2]\n"), &cfg))
}

func TestSummaryKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		tracked bool
	}{
		{in: "Temperature", want: "Temperature", tracked: true},
		{in: "32Bit shares", want: "Shares", tracked: true},
		{in: "KH/s", want: "KH/s", tracked: true},
		{in: "Free heap", want: "Free heap", tracked: false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := SummaryKey(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.tracked, ok)
		})
	}
}

func TestToolErrorsWrapErrTool(t *testing.T) {
	for _, err := range []error{ErrToolNotFound, ErrToolTimeout, ErrPortBusy, ErrToolFailed} {
		assert.ErrorIs(t, err, ErrTool)
	}

	wrapped := errors.Join(errors.New("esptool exited 2"), ErrToolFailed)
	assert.ErrorIs(t, wrapped, ErrToolFailed)
	assert.NotErrorIs(t, wrapped, ErrPortBusy)
}

func TestPlaceholderSerial(t *testing.T) {
	serial := PlaceholderSerial("1A86")

	assert.Equal(t, "VID_1a86_NOSERIAL", serial)
	assert.True(t, IsPlaceholderSerial(serial))
	assert.False(t, IsPlaceholderSerial("A5069RR4"))
}

func TestStatusManaged(t *testing.T) {
	assert.True(t, StatusActive.Managed())
	assert.True(t, StatusOffline.Managed())
	assert.False(t, StatusInactive.Managed())
	assert.False(t, StatusResetting.Managed())
}

func TestBootConfigComplete(t *testing.T) {
	var nilCfg *BootConfig

	assert.False(t, nilCfg.Complete())
	assert.False(t, (&BootConfig{PoolURL: "stratum+tcp://pool:3333"}).Complete())
	assert.True(t, (&BootConfig{PoolURL: "stratum+tcp://pool:3333", WalletAddress: "bc1q"}).Complete())
}
