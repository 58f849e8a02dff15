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

package lifecycle

import (
	"testing"

	"github.com/carverauto/shepherd/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateComponentLogger(t *testing.T) {
	log, err := CreateComponentLogger("reconcile", &logger.Config{Level: "warn", Output: "stderr"})
	require.NoError(t, err)
	require.NotNil(t, log)

	child := log.WithComponent("nested")
	assert.Equal(t, zerolog.WarnLevel, child.GetLevel())
}

func TestCreateComponentLoggerInvalidLevel(t *testing.T) {
	_, err := CreateComponentLogger("reset", &logger.Config{Level: "loud"})
	require.Error(t, err)
}

func TestCreateComponentLoggerDefaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DEBUG", "")

	log, err := CreateComponentLogger("main", nil)
	require.NoError(t, err)

	assert.Equal(t, zerolog.InfoLevel, log.WithComponent("x").GetLevel())
}

func TestInitializeLoggerFollowsConfig(t *testing.T) {
	require.NoError(t, InitializeLogger(&logger.Config{Level: "error"}))
	assert.Equal(t, zerolog.ErrorLevel, logger.WithComponent("shepherd").GetLevel())

	require.Error(t, InitializeLogger(&logger.Config{Level: "loud"}))

	require.NoError(t, InitializeLogger(&logger.Config{Level: "info"}))
}
