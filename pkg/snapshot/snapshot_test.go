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

package snapshot

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/shepherd/pkg/logger"
	"github.com/carverauto/shepherd/pkg/models"
)

func sampleDevices() []models.ViewModel {
	id := int64(1)
	minerID := "rig-01"

	return []models.ViewModel{
		{Type: models.ViewTypeMiner, ID: &id, MinerID: &minerID, PortPath: "1-1", Serial: "X", DisplayStatus: models.DisplayOnline},
		{Type: models.ViewTypeStray, PortPath: "1-2", Serial: "Y", DisplayStatus: models.DisplayUnconfigured},
	}
}

func TestWriterProducesBareArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "device_state.json")
	w := NewWriter(path, logger.NewTestLogger())

	require.NoError(t, w.Write(&models.Snapshot{Devices: sampleDevices()}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var devices []map[string]any
	require.NoError(t, json.Unmarshal(data, &devices))
	require.Len(t, devices, 2)
	assert.Equal(t, "miner", devices[0]["type"])
	assert.Nil(t, devices[1]["id"])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWriterDegradedShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device_state.json")
	w := NewWriter(path, logger.NewTestLogger())

	require.NoError(t, w.Write(&models.Snapshot{Error: "database unavailable"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"database unavailable","devices":[]}`, string(data))

	snap, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "database unavailable", snap.Error)
	assert.Empty(t, snap.Devices)
}

func TestDecodeBothShapes(t *testing.T) {
	snap, err := Decode([]byte("\n [{\"type\":\"stray\",\"port_path\":\"1-3\"}]"))
	require.NoError(t, err)
	require.Len(t, snap.Devices, 1)
	assert.Empty(t, snap.Error)

	snap, err = Decode([]byte(`{"error":"boom","devices":[{"type":"miner"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "boom", snap.Error)
	assert.Len(t, snap.Devices, 1)

	_, err = Decode([]byte("   "))
	require.ErrorIs(t, err, errEmptySnapshot)

	_, err = Decode([]byte("[{"))
	require.Error(t, err)
}

func TestWriterReplacesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device_state.json")
	w := NewWriter(path, logger.NewTestLogger())

	require.NoError(t, w.Write(&models.Snapshot{Devices: sampleDevices()}))
	require.NoError(t, w.Write(&models.Snapshot{Devices: sampleDevices()[:1]}))

	snap, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, snap.Devices, 1)
}

func runServer(t *testing.T, jetStream bool) *server.Server {
	t.Helper()

	opts := &server.Options{Host: "127.0.0.1", Port: -1, JetStream: jetStream, StoreDir: t.TempDir()}

	srv, err := server.NewServer(opts)
	require.NoError(t, err)

	go srv.Start()

	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		t.Fatalf("embedded NATS server not ready for connections")
	}

	t.Cleanup(srv.Shutdown)

	return srv
}

func TestPublisherCoreNATS(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping embedded NATS test in short mode")
	}

	srv := runServer(t, false)

	sub, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)

	t.Cleanup(sub.Close)

	msgs := make(chan *nats.Msg, 1)
	_, err = sub.ChanSubscribe(DefaultSubject, msgs)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	ctx := context.Background()

	p, err := NewPublisher(ctx, &NATSConfig{URL: srv.ClientURL()}, logger.NewTestLogger())
	require.NoError(t, err)

	t.Cleanup(p.Close)

	require.NoError(t, p.Publish(ctx, &models.Snapshot{Devices: sampleDevices()}))

	select {
	case msg := <-msgs:
		assert.NotEmpty(t, msg.Header.Get(nats.MsgIdHdr))

		snap, err := Decode(msg.Data)
		require.NoError(t, err)
		assert.Len(t, snap.Devices, 2)
	case <-time.After(5 * time.Second):
		t.Fatal("snapshot not received")
	}
}

func TestPublisherJetStream(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping embedded NATS test in short mode")
	}

	srv := runServer(t, true)
	ctx := context.Background()

	p, err := NewPublisher(ctx, &NATSConfig{URL: srv.ClientURL(), Stream: "SHEPHERD"}, logger.NewTestLogger())
	require.NoError(t, err)

	t.Cleanup(p.Close)

	require.NoError(t, p.Publish(ctx, &models.Snapshot{Error: "degraded"}))

	info, err := p.js.Stream(ctx, "SHEPHERD")
	require.NoError(t, err)

	state, err := info.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), state.State.Msgs)
}

func TestNATSConfigEnabled(t *testing.T) {
	var cfg *NATSConfig
	assert.False(t, cfg.Enabled())
	assert.False(t, (&NATSConfig{}).Enabled())
	assert.True(t, (&NATSConfig{URL: "nats://localhost:4222"}).Enabled())
}
