package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shazow/wifi-connect/internal/config"
	"github.com/shazow/wifi-connect/internal/connectivity"
	"github.com/shazow/wifi-connect/internal/exit"
	"github.com/shazow/wifi-connect/internal/network"
	"github.com/shazow/wifi-connect/wifi"
	"github.com/shazow/wifi-connect/wifi/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHelper struct {
	mu      sync.Mutex
	stopped int
}

func (f *fakeHelper) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return nil
}

func (f *fakeHelper) stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

type daemonFixture struct {
	daemon   *daemon
	backend  *mock.MockBackend
	helper   *fakeHelper
	internet *atomic.Bool
}

func newDaemonFixture(t *testing.T) *daemonFixture {
	t.Helper()

	internet := &atomic.Bool{}
	probe := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if internet.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(probe.Close)

	b := mock.New()
	helper := &fakeHelper{}
	cfg := &config.Config{
		SSID:          "WiFi Connect",
		Gateway:       "127.0.0.1",
		ListeningPort: 0,
		UIDirectory:   t.TempDir(),
		CheckURL:      probe.URL,
		CheckInterval: 5 * time.Millisecond,
	}

	return &daemonFixture{
		backend:  b,
		helper:   helper,
		internet: internet,
		daemon: &daemon{
			cfg:     cfg,
			backend: b,
			device:  b.DeviceList[0],
			prober:  connectivity.New(probe.URL, time.Second),
			startHelper: func(iface string) (network.Helper, error) {
				return helper, nil
			},
			logger: discardLogger(),
			timings: network.Timings{
				ScanRetries:         2,
				ScanInterval:        time.Millisecond,
				SettleDelay:         time.Millisecond,
				IdleInterval:        time.Millisecond,
				ConnectivityTimeout: 20 * time.Millisecond,
				PollInterval:        time.Millisecond,
			},
		},
	}
}

func (f *daemonFixture) run(t *testing.T, ctx context.Context) exit.Result {
	t.Helper()
	done := make(chan exit.Result, 1)
	go func() { done <- f.daemon.run(ctx) }()

	select {
	case r := <-done:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not exit")
	}
	return exit.Result{}
}

func (f *daemonFixture) assertCleanedUp(t *testing.T) {
	t.Helper()
	assert.Equal(t, 0, f.backend.ActiveHotspots())
	assert.Equal(t, 1, f.helper.stops())
}

func TestDaemon_InternetConnected(t *testing.T) {
	f := newDaemonFixture(t)
	device := f.backend.DeviceList[0]
	go func() {
		for device.HotspotCount() == 0 {
			time.Sleep(time.Millisecond)
		}
		f.internet.Store(true)
	}()

	r := f.run(t, context.Background())
	assert.Equal(t, exit.Result{Event: exit.InternetConnected}, r)
	f.assertCleanedUp(t)
}

func TestDaemon_ActivityTimeout(t *testing.T) {
	f := newDaemonFixture(t)
	f.daemon.cfg.ActivityTimeout = 30 * time.Millisecond

	r := f.run(t, context.Background())
	assert.Equal(t, exit.Result{Event: exit.Timeout}, r)
	f.assertCleanedUp(t)
}

func TestDaemon_Cancelled(t *testing.T) {
	f := newDaemonFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	device := f.backend.DeviceList[0]
	go func() {
		for device.HotspotCount() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	r := f.run(t, ctx)
	assert.Equal(t, exit.ExitSignal, r.Event)
	assert.NoError(t, r.Err)
	f.assertCleanedUp(t)
}

func TestDaemon_HandlerFailure(t *testing.T) {
	f := newDaemonFixture(t)
	f.backend.DeviceList[0].HotspotError = errors.New("no AP mode")

	r := f.run(t, context.Background())
	require.Error(t, r.Err)
	assert.Equal(t, exit.UnexpectedExit, r.Event)
	assert.ErrorIs(t, r.Err, network.ErrCreatePortal)
	assert.Equal(t, 0, f.helper.stops(), "helper never started")
}

func TestDaemon_ServerWaitsForHotspot(t *testing.T) {
	f := newDaemonFixture(t)
	f.daemon.cfg.Gateway = "192.168.42.1"
	f.daemon.timings.ScanInterval = 20 * time.Millisecond
	device := f.backend.DeviceList[0]
	device.Scans = [][]wifi.AccessPoint{nil, nil, {{SSID: "Late", Strength: 50}}}

	listening := make(chan string, 1)
	var hotspotsAtListen atomic.Int32
	f.daemon.listen = func(proto, addr string) (net.Listener, error) {
		hotspotsAtListen.Store(int32(device.HotspotCount()))
		assert.Equal(t, "192.168.42.1:0", addr)
		l, err := net.Listen(proto, "127.0.0.1:0")
		if err == nil {
			listening <- l.Addr().String()
		}
		return l, err
	}

	go func() {
		addr := <-listening
		client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}}
		if resp, err := client.Get("http://" + addr + "/generate_204"); err == nil {
			resp.Body.Close()
			assert.Equal(t, "http://192.168.42.1/", resp.Header.Get("Location"))
		}
		f.internet.Store(true)
	}()

	r := f.run(t, context.Background())
	assert.Equal(t, exit.Result{Event: exit.InternetConnected}, r)
	assert.Equal(t, int32(1), hotspotsAtListen.Load(), "server started after the hotspot")
	f.assertCleanedUp(t)
}

func TestDaemon_NoServerWithoutPortal(t *testing.T) {
	f := newDaemonFixture(t)
	f.backend.DeviceList[0].HotspotError = errors.New("no AP mode")
	f.daemon.listen = func(string, string) (net.Listener, error) {
		t.Error("server started without a portal")
		return nil, errors.New("unexpected listen")
	}

	r := f.run(t, context.Background())
	assert.ErrorIs(t, r.Err, network.ErrCreatePortal)
}
