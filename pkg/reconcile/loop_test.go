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

package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/shepherd/pkg/logger"
	"github.com/carverauto/shepherd/pkg/models"
	"github.com/carverauto/shepherd/pkg/monitor"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeScanner struct {
	mu      sync.Mutex
	devices []models.Device
	err     error
}

func (f *fakeScanner) set(devices ...models.Device) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.devices = devices
}

func (f *fakeScanner) Scan(context.Context) ([]models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]models.Device(nil), f.devices...), f.err
}

type fakeRegistry struct {
	mu         sync.Mutex
	miners     []models.KnownMiner
	strays     []models.StrayDevice
	summaries  map[int64]models.SummaryMetrics
	err        error
	registered []models.Device
}

func (f *fakeRegistry) ReadKnownMiners(context.Context) ([]models.KnownMiner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	return append([]models.KnownMiner(nil), f.miners...), nil
}

func (f *fakeRegistry) ReadStrayDevices(context.Context) ([]models.StrayDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	return append([]models.StrayDevice(nil), f.strays...), nil
}

func (f *fakeRegistry) ReadSummaries(context.Context) (map[int64]models.SummaryMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	return f.summaries, nil
}

func (f *fakeRegistry) RegisterStray(dev models.Device) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.registered = append(f.registered, dev)
}

func (f *fakeRegistry) setStatus(id int64, status models.MinerStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.miners {
		if f.miners[i].ID == id {
			f.miners[i].Status = status
		}
	}
}

type fakeHandle struct {
	target  monitor.Target
	started atomic.Bool
	stopped atomic.Bool
	running atomic.Bool
	done    chan struct{}
	linger  bool
	once    sync.Once
}

func (h *fakeHandle) Start(context.Context) {
	h.started.Store(true)
	h.running.Store(true)
}

func (h *fakeHandle) RequestStop() {
	h.stopped.Store(true)

	if !h.linger {
		h.finish()
	}
}

func (h *fakeHandle) finish() {
	h.once.Do(func() {
		h.running.Store(false)
		close(h.done)
	})
}

func (h *fakeHandle) IsRunning() bool       { return h.running.Load() }
func (h *fakeHandle) Done() <-chan struct{} { return h.done }

type fakeFactory struct {
	mu      sync.Mutex
	handles []*fakeHandle
	linger  bool
}

func (f *fakeFactory) build(target monitor.Target) Handle {
	f.mu.Lock()
	defer f.mu.Unlock()

	h := &fakeHandle{target: target, done: make(chan struct{}), linger: f.linger}
	f.handles = append(f.handles, h)

	return h
}

func (f *fakeFactory) all() []*fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]*fakeHandle(nil), f.handles...)
}

type memoryWriter struct {
	mu    sync.Mutex
	snaps []*models.Snapshot
	err   error
}

func (w *memoryWriter) Write(snap *models.Snapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.snaps = append(w.snaps, snap)

	return w.err
}

func (w *memoryWriter) latest() *models.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.snaps) == 0 {
		return nil
	}

	return w.snaps[len(w.snaps)-1]
}

type harness struct {
	scanner  *fakeScanner
	registry *fakeRegistry
	factory  *fakeFactory
	writer   *memoryWriter
	loop     *Loop
}

func newHarness(miners ...models.KnownMiner) *harness {
	h := &harness{
		scanner:  &fakeScanner{},
		registry: &fakeRegistry{miners: miners},
		factory:  &fakeFactory{},
		writer:   &memoryWriter{},
	}

	h.loop = New(Config{}, h.scanner, h.registry, h.factory.build, h.writer, logger.NewTestLogger(),
		WithClock(func() time.Time { return fixedNow }))

	return h
}

func device(port, serial, node string) models.Device {
	return models.Device{PortPath: port, Serial: serial, NodePath: node, VendorID: "303a", ProductID: "1001"}
}

func miner(id int64, name, port, serial string, status models.MinerStatus) models.KnownMiner {
	seen := fixedNow.Add(-time.Minute)

	return models.KnownMiner{ID: id, MinerID: name, PortPath: port, USBSerial: serial, Status: status, LastSeen: &seen}
}

func findView(t *testing.T, snap *models.Snapshot, port string) models.ViewModel {
	t.Helper()

	for _, v := range snap.Devices {
		if v.PortPath == port {
			return v
		}
	}

	t.Fatalf("no view for port %s", port)

	return models.ViewModel{}
}

func TestInactiveMinerGetsNoMonitor(t *testing.T) {
	h := newHarness(miner(1, "rig-01", "1-1", "X", models.StatusInactive))
	h.scanner.set(device("1-1", "X", "/dev/ttyACM0"))

	require.NoError(t, h.loop.Tick(context.Background()))

	assert.Empty(t, h.factory.all())

	v := findView(t, h.writer.latest(), "1-1")
	assert.Equal(t, models.DisplayInactive, v.DisplayStatus)
	assert.Equal(t, "Set to Inactive", v.StateMsg)
	assert.Equal(t, models.ViewTypeMiner, v.Type)
}

func TestActiveMinerStartsOneMonitor(t *testing.T) {
	h := newHarness(miner(1, "rig-01", "1-1", "X", models.StatusActive))
	h.scanner.set(device("1-1", "X", "/dev/ttyACM0"))

	ctx := context.Background()

	require.NoError(t, h.loop.Tick(ctx))
	require.NoError(t, h.loop.Tick(ctx))
	require.NoError(t, h.loop.Tick(ctx))

	handles := h.factory.all()
	require.Len(t, handles, 1)
	assert.True(t, handles[0].started.Load())
	assert.Equal(t, "/dev/ttyACM0", handles[0].target.NodePath)
	assert.Equal(t, []int64{1}, h.loop.running())

	v := findView(t, h.writer.latest(), "1-1")
	assert.Equal(t, models.DisplayOnline, v.DisplayStatus)
	assert.Equal(t, "/dev/ttyACM0", v.DevPath)
}

func TestUnpluggedMinerStopsMonitor(t *testing.T) {
	h := newHarness(miner(1, "rig-01", "1-1", "X", models.StatusActive))
	h.scanner.set(device("1-1", "X", "/dev/ttyACM0"))

	ctx := context.Background()
	require.NoError(t, h.loop.Tick(ctx))

	h.scanner.set()
	require.NoError(t, h.loop.Tick(ctx))

	handles := h.factory.all()
	require.Len(t, handles, 1)
	assert.True(t, handles[0].stopped.Load())
	assert.Empty(t, h.loop.running())

	v := findView(t, h.writer.latest(), "1-1")
	assert.Equal(t, models.DisplayOffline, v.DisplayStatus)
	assert.Equal(t, "Disconnected (Last seen: 2025-06-01T11:59:00Z)", v.StateMsg)
	assert.Empty(t, v.DevPath)
}

func TestStatusChangeStopsMonitor(t *testing.T) {
	h := newHarness(miner(1, "rig-01", "1-1", "X", models.StatusActive))
	h.scanner.set(device("1-1", "X", "/dev/ttyACM0"))

	ctx := context.Background()
	require.NoError(t, h.loop.Tick(ctx))

	h.registry.setStatus(1, models.StatusResetting)
	require.NoError(t, h.loop.Tick(ctx))

	assert.True(t, h.factory.all()[0].stopped.Load())
	assert.Empty(t, h.loop.running())

	h.registry.setStatus(1, models.StatusOffline)
	require.NoError(t, h.loop.Tick(ctx))

	require.Len(t, h.factory.all(), 2, "offline miners are managed again")
}

func TestNodeChangeWaitsForPreviousMonitor(t *testing.T) {
	h := newHarness(miner(1, "rig-01", "1-1", "X", models.StatusActive))
	h.factory.linger = true
	h.scanner.set(device("1-1", "X", "/dev/ttyACM0"))

	ctx := context.Background()
	require.NoError(t, h.loop.Tick(ctx))

	h.scanner.set(device("1-1", "X", "/dev/ttyACM1"))
	require.NoError(t, h.loop.Tick(ctx))

	handles := h.factory.all()
	require.Len(t, handles, 1, "no second monitor while the first still holds the port")
	assert.True(t, handles[0].stopped.Load())

	handles[0].finish()
	require.NoError(t, h.loop.Tick(ctx))

	handles = h.factory.all()
	require.Len(t, handles, 2)
	assert.Equal(t, "/dev/ttyACM1", handles[1].target.NodePath)
}

func TestUnmatchedDeviceRegistersStray(t *testing.T) {
	h := newHarness()
	h.scanner.set(device("1-2", "VID_303a_NOSERIAL", "/dev/ttyACM2"))

	require.NoError(t, h.loop.Tick(context.Background()))

	require.Len(t, h.registry.registered, 1)

	v := findView(t, h.writer.latest(), "1-2")
	assert.Equal(t, models.ViewTypeStray, v.Type)
	assert.Nil(t, v.ID)
	assert.Equal(t, models.DisplayUnconfigured, v.DisplayStatus)
	assert.Equal(t, "Detected - Not in DB", v.StateMsg)

	h.registry.strays = []models.StrayDevice{{
		PortPath: "1-2", Serial: "VID_303a_NOSERIAL", State: models.StateCaptured,
		Status: models.StatusInactive, MACAddress: "aa:bb", PoolURL: "pool",
	}}

	require.NoError(t, h.loop.Tick(context.Background()))
	require.Len(t, h.registry.registered, 1, "existing stray rows are not re-registered")

	v = findView(t, h.writer.latest(), "1-2")
	assert.Equal(t, models.DisplayCaptured, v.DisplayStatus)
	assert.Equal(t, "aa:bb", v.MACAddress)
	assert.Equal(t, "pool", v.PoolURL)
}

func TestMACRelinkRespectsPort(t *testing.T) {
	m := miner(1, "rig-01", "1-1", "OLD", models.StatusActive)
	m.MACAddress = "11:22:33"

	h := newHarness(m)
	h.registry.strays = []models.StrayDevice{
		{PortPath: "1-1", Serial: "NEW", MACAddress: "11:22:33"},
		{PortPath: "1-9", Serial: "OTHER", MACAddress: "11:22:33"},
	}

	h.scanner.set(device("1-1", "NEW", "/dev/ttyACM0"), device("1-9", "OTHER", "/dev/ttyACM9"))

	require.NoError(t, h.loop.Tick(context.Background()))

	snap := h.writer.latest()
	assert.Equal(t, models.ViewTypeMiner, findView(t, snap, "1-1").Type)
	assert.Equal(t, models.ViewTypeStray, findView(t, snap, "1-9").Type)
	assert.Len(t, h.factory.all(), 1)
}

func TestDegradedTickUsesCache(t *testing.T) {
	h := newHarness(miner(1, "rig-01", "1-1", "X", models.StatusActive))
	h.scanner.set(device("1-1", "X", "/dev/ttyACM0"), device("1-5", "S", "/dev/ttyACM5"))

	ctx := context.Background()
	require.NoError(t, h.loop.Tick(ctx))
	registered := len(h.registry.registered)

	h.registry.err = errors.New("database is locked")
	require.NoError(t, h.loop.Tick(ctx))

	snap := h.writer.latest()
	assert.Contains(t, snap.Error, "database is locked")
	assert.Len(t, snap.Devices, 2)
	assert.Equal(t, []int64{1}, h.loop.running(), "monitors survive a store outage")
	assert.Len(t, h.registry.registered, registered, "no stray registration while degraded")
	assert.False(t, h.factory.all()[0].stopped.Load())
}

func TestScanFailureLeavesMonitorsAlone(t *testing.T) {
	h := newHarness(miner(1, "rig-01", "1-1", "X", models.StatusActive))
	h.scanner.set(device("1-1", "X", "/dev/ttyACM0"))

	ctx := context.Background()
	require.NoError(t, h.loop.Tick(ctx))

	h.scanner.err = errors.New("enumeration failed")
	require.Error(t, h.loop.Tick(ctx))
	assert.Equal(t, []int64{1}, h.loop.running())
}

func TestResolutionIsDeterministicAcrossTicks(t *testing.T) {
	h := newHarness(miner(1, "rig-01", "1-1", "X", models.StatusInactive))
	h.scanner.set(device("1-1", "X", "/dev/ttyACM0"), device("1-2", "Y", "/dev/ttyACM1"))

	ctx := context.Background()
	require.NoError(t, h.loop.Tick(ctx))
	first := h.writer.latest()

	require.NoError(t, h.loop.Tick(ctx))
	second := h.writer.latest()

	assert.Equal(t, first.Devices, second.Devices)
}

func TestStaleAndDisplayStatuses(t *testing.T) {
	old := fixedNow.Add(-time.Hour)

	tests := []struct {
		name    string
		status  models.MinerStatus
		seen    *time.Time
		display string
	}{
		{name: "recent active", status: models.StatusActive, seen: &fixedNow, display: models.DisplayOnline},
		{name: "stale active", status: models.StatusActive, seen: &old, display: models.DisplayStale},
		{name: "never seen", status: models.StatusActive, display: models.DisplayStale},
		{name: "offline but attached", status: models.StatusOffline, seen: &fixedNow, display: models.DisplayDBOffline},
		{name: "resetting", status: models.StatusResetting, display: "Resetting"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := models.KnownMiner{ID: 1, MinerID: "rig", PortPath: "1-1", USBSerial: "X", Status: tt.status, LastSeen: tt.seen}
			v := connectedMinerView(&m, device("1-1", "X", "/dev/ttyACM0"), fixedNow, 5*time.Minute)
			assert.Equal(t, tt.display, v.DisplayStatus)
		})
	}
}

func TestStrayDisplay(t *testing.T) {
	assert.Equal(t, models.DisplayCaptured, strayDisplay("Captured"))
	assert.Equal(t, models.DisplayCaptureFailed, strayDisplay(models.StateCaptureFailed))
	assert.Equal(t, models.DisplayCaptureFailed, strayDisplay(models.StateToolError))
	assert.Equal(t, models.DisplayUnconfigured, strayDisplay(models.StateDetected))
}

func TestRunReleaseAndShutdown(t *testing.T) {
	h := newHarness(miner(1, "rig-01", "1-1", "X", models.StatusActive))
	h.scanner.set(device("1-1", "X", "/dev/ttyACM0"))

	h.loop.cfg.TickInterval = models.Duration(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- h.loop.Run(ctx) }()

	require.Eventually(t, func() bool { return len(h.factory.all()) == 1 }, time.Second, time.Millisecond)

	h.registry.setStatus(1, models.StatusResetting)

	releaseCtx, releaseCancel := context.WithTimeout(context.Background(), time.Second)
	defer releaseCancel()

	require.NoError(t, h.loop.Release(releaseCtx, 1))
	assert.True(t, h.factory.all()[0].stopped.Load())

	require.NoError(t, h.loop.Release(releaseCtx, 42), "releasing an unmonitored miner is a no-op")

	cancel()
	require.NoError(t, <-done)

	expired, expiredCancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer expiredCancel()

	require.ErrorIs(t, h.loop.Release(expired, 1), errLoopNotRunning)
}

func TestRunSurvivesPanickingTick(t *testing.T) {
	h := newHarness()
	h.loop.cfg.TickInterval = models.Duration(5 * time.Millisecond)
	h.loop.scanner = panicScanner{}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, h.loop.Run(ctx))
	assert.Greater(t, h.loop.tick, uint64(1))
}

type panicScanner struct{}

func (panicScanner) Scan(context.Context) ([]models.Device, error) {
	panic("enumerator exploded")
}
