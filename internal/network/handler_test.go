package network

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shazow/wifi-connect/internal/exit"
	"github.com/shazow/wifi-connect/internal/metrics"
	"github.com/shazow/wifi-connect/wifi"
	"github.com/shazow/wifi-connect/wifi/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastTimings = Timings{
	ScanRetries:         3,
	ScanInterval:        time.Millisecond,
	SettleDelay:         time.Millisecond,
	IdleInterval:        time.Millisecond,
	ConnectivityTimeout: 50 * time.Millisecond,
	PollInterval:        time.Millisecond,
}

type fakeHelper struct {
	mu      sync.Mutex
	starts  int
	stops   int
	stopErr error
}

func (f *fakeHelper) start(iface string) (Helper, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return f, nil
}

func (f *fakeHelper) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return f.stopErr
}

func (f *fakeHelper) counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

type harness struct {
	backend   *mock.MockBackend
	device    *mock.MockDevice
	commands  chan Command
	responses chan Response
	exit      *exit.Channel
	helper    *fakeHelper
	metrics   *metrics.Metrics
	handler   *Handler
	done      chan error

	// portalUps counts OnPortalUp calls; hotspotsAtUp is the hotspot count
	// seen by the first one.
	portalUps    atomic.Int32
	hotspotsAtUp atomic.Int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	b := mock.New()
	return &harness{
		backend:   b,
		device:    b.DeviceList[0],
		commands:  make(chan Command, 8),
		responses: make(chan Response, 1),
		exit:      exit.NewChannel(),
		helper:    &fakeHelper{},
		metrics:   metrics.New(prometheus.NewRegistry()),
		done:      make(chan error, 1),
	}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	h.startWith(t, fastTimings)
}

func (h *harness) startWith(t *testing.T, timings Timings) {
	t.Helper()
	h.handler = NewHandler(h.backend, h.device, Options{
		Portal: PortalConfig{
			SSID:    "WiFi Connect",
			Gateway: net.ParseIP("192.168.42.1"),
		},
		Commands:    h.commands,
		Responses:   h.responses,
		Exit:        h.exit,
		StartHelper: h.helper.start,
		OnPortalUp:  h.portalUp,
		Metrics:     h.metrics,
		Logger:      testLogger(),
		Timings:     timings,
	})
	go func() {
		h.done <- h.handler.Run()
	}()
	h.waitForHotspots(t, 1)
}

func (h *harness) portalUp() {
	if h.portalUps.Add(1) == 1 {
		h.hotspotsAtUp.Store(int32(h.device.HotspotCount()))
	}
}

func (h *harness) waitForHotspots(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.device.HotspotCount() >= n && h.backend.ActiveHotspots() == 1
	}, 2*time.Second, time.Millisecond)
}

// result waits for the exit result and for Run to return.
func (h *harness) result(t *testing.T) (exit.Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r, err := h.exit.Wait(ctx)
	require.NoError(t, err, "no exit result")

	select {
	case runErr := <-h.done:
		return r, runErr
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return")
	}
	return r, nil
}

// assertNoExit checks that nothing is sent on the exit channel for d.
func (h *harness) assertNoExit(t *testing.T, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	r, err := h.exit.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded, "unexpected exit result %+v", r)
}

func (h *harness) assertCleanedUp(t *testing.T) {
	t.Helper()
	assert.Equal(t, 0, h.backend.ActiveHotspots())
	for _, p := range h.backend.LiveProfiles() {
		assert.False(t, p.IsAccessPoint(), "hotspot profile %q left behind", p.ID)
	}
	starts, stops := h.helper.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
	assert.Equal(t, StateTerminal, h.handler.State())
}

func TestHandler_Exit(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.commands <- Command{Kind: Exit}
	r, err := h.result(t)
	require.NoError(t, err)
	assert.Equal(t, exit.Result{Event: exit.ExitSignal}, r)
	h.assertCleanedUp(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PortalStarts))
}

func TestHandler_ActivatePortal(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.commands <- Command{Kind: ActivatePortal}
	select {
	case resp := <-h.responses:
		assert.Equal(t, []Network{
			{SSID: "HideYoKidsHideYoWiFi", Security: "wpa"},
			{SSID: "NeverGonnaGiveYouIP", Security: "wep"},
			{SSID: "Unencrypted_Honeypot", Security: "none"},
			{SSID: "Dunder MiffLAN", Security: "wpa"},
			{SSID: "Corporate Overlords", Security: "enterprise"},
		}, resp.Networks)
	case <-time.After(2 * time.Second):
		t.Fatal("no network list")
	}

	h.commands <- Command{Kind: Exit}
	r, err := h.result(t)
	require.NoError(t, err)
	assert.Equal(t, exit.ExitSignal, r.Event)
}

func TestHandler_ActivityTimeout(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	go exit.AfterTimeout(context.Background(), 20*time.Millisecond, func() {
		h.commands <- Command{Kind: Timeout}
	})

	r, err := h.result(t)
	require.NoError(t, err)
	assert.Equal(t, exit.Result{Event: exit.Timeout}, r)
	h.assertCleanedUp(t)
}

func TestHandler_TimeoutIgnoredWhilePortalActive(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.commands <- Command{Kind: ActivatePortal}
	<-h.responses
	go exit.AfterTimeout(context.Background(), 10*time.Millisecond, func() {
		h.commands <- Command{Kind: Timeout}
	})

	h.assertNoExit(t, 100*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Commands.WithLabelValues("Timeout")))

	h.commands <- Command{Kind: Exit}
	r, _ := h.result(t)
	assert.Equal(t, exit.ExitSignal, r.Event)
}

func TestHandler_WiFiConnect(t *testing.T) {
	h := newHarness(t)
	stale := h.backend.AddProfile(wifi.ConnectionSettings{
		ID:   "HideYoKidsHideYoWiFi",
		Kind: wifi.KindWireless,
		Mode: "infrastructure",
		SSID: "HideYoKidsHideYoWiFi",
	})
	timings := fastTimings
	timings.ConnectivityTimeout = 30 * time.Second
	h.startWith(t, timings)

	started := time.Now()
	h.commands <- Command{Kind: WiFiConnect, SSID: "HideYoKidsHideYoWiFi", Passphrase: "correct"}

	r, err := h.result(t)
	require.NoError(t, err)
	assert.Equal(t, exit.Result{Event: exit.WiFiConnected}, r)
	assert.Less(t, time.Since(started), 5*time.Second)

	assert.True(t, stale.Deleted(), "stale profile for the same ssid is removed first")
	require.Len(t, h.device.Connects, 1)
	assert.Equal(t, wifi.Credentials{Kind: wifi.CredentialsWPA, Passphrase: "correct"}, h.device.Connects[0])
	h.assertCleanedUp(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ConnectAttempts.WithLabelValues("success")))
}

func TestHandler_WiFiConnectEnterprise(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.commands <- Command{Kind: WiFiConnect, SSID: "Corporate Overlords", Identity: "michael", Passphrase: "worldsbestboss"}
	r, _ := h.result(t)
	assert.Equal(t, exit.WiFiConnected, r.Event)

	require.Len(t, h.device.Connects, 1)
	assert.Equal(t, wifi.Credentials{Kind: wifi.CredentialsEnterprise, Identity: "michael", Passphrase: "worldsbestboss"}, h.device.Connects[0])
}

func TestHandler_WiFiConnectWithoutVerifiedInternet(t *testing.T) {
	h := newHarness(t)
	h.device.ConnectedConnectivity = wifi.ConnectivityPortal
	h.start(t)

	h.commands <- Command{Kind: WiFiConnect, SSID: "Unencrypted_Honeypot"}
	r, err := h.result(t)
	require.NoError(t, err)
	assert.Equal(t, exit.WiFiConnected, r.Event, "association is accepted after the connectivity poll times out")
}

func TestHandler_WiFiConnectFailedState(t *testing.T) {
	h := newHarness(t)
	h.device.ConnectState = wifi.ConnectionStateDeactivated
	h.start(t)

	h.commands <- Command{Kind: WiFiConnect, SSID: "HideYoKidsHideYoWiFi", Passphrase: "wrong"}

	// The portal comes back so the user can retry.
	h.waitForHotspots(t, 2)
	h.assertNoExit(t, 50*time.Millisecond)

	for _, p := range h.backend.LiveProfiles() {
		assert.True(t, p.IsAccessPoint(), "failed client profile %q was not deleted", p.ID)
	}
	starts, stops := h.helper.counts()
	assert.Equal(t, 1, starts, "helper survives a reload")
	assert.Equal(t, 0, stops)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ConnectAttempts.WithLabelValues("failure")))

	h.commands <- Command{Kind: Exit}
	r, _ := h.result(t)
	assert.Equal(t, exit.ExitSignal, r.Event)
	h.assertCleanedUp(t)
}

func TestHandler_PortalUpOnce(t *testing.T) {
	h := newHarness(t)
	h.device.Scans = [][]wifi.AccessPoint{nil, nil, {{SSID: "Late", Strength: 50}}}
	h.start(t)

	require.Eventually(t, func() bool { return h.portalUps.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), h.hotspotsAtUp.Load(), "called after the hotspot exists")
	starts, _ := h.helper.counts()
	assert.Equal(t, 1, starts)

	// A reload recreates the portal without announcing it again.
	h.commands <- Command{Kind: WiFiConnect, SSID: "NotThere"}
	h.waitForHotspots(t, 2)
	assert.Equal(t, int32(1), h.portalUps.Load())

	h.commands <- Command{Kind: Exit}
	h.result(t)
}

func TestHandler_WiFiConnectUnknownSSID(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.commands <- Command{Kind: WiFiConnect, SSID: "NotThere", Passphrase: "whatever"}
	h.waitForHotspots(t, 2)
	assert.Equal(t, 0, h.device.ConnectCount())

	h.commands <- Command{Kind: Exit}
	r, _ := h.result(t)
	assert.Equal(t, exit.ExitSignal, r.Event)
}

func TestHandler_WiFiConnectError(t *testing.T) {
	h := newHarness(t)
	h.device.ConnectError = errors.New("secrets were required")
	h.start(t)

	h.commands <- Command{Kind: WiFiConnect, SSID: "Dunder MiffLAN", Passphrase: "x"}
	h.waitForHotspots(t, 2)
	h.assertNoExit(t, 20*time.Millisecond)

	h.commands <- Command{Kind: Exit}
	h.result(t)
}

func TestHandler_WiFiConnectActivationError(t *testing.T) {
	h := newHarness(t)
	h.device.ActivationError = errors.New("activation timed out")
	h.start(t)

	h.commands <- Command{Kind: WiFiConnect, SSID: "Dunder MiffLAN", Passphrase: "x"}
	h.waitForHotspots(t, 2)
	h.assertNoExit(t, 20*time.Millisecond)

	require.Equal(t, 1, h.device.ConnectCount())
	for _, p := range h.backend.LiveProfiles() {
		assert.True(t, p.IsAccessPoint(), "half-created client profile %q was not deleted", p.ID)
	}

	h.commands <- Command{Kind: Exit}
	r, _ := h.result(t)
	assert.Equal(t, exit.ExitSignal, r.Event)
	h.assertCleanedUp(t)
}

func TestHandler_WiFiConnectKeepsPortalSSIDProfile(t *testing.T) {
	h := newHarness(t)
	// A leftover access point profile sharing the target name is not a
	// client profile and must not be touched by the stale-profile sweep.
	other := h.backend.AddProfile(wifi.ConnectionSettings{
		ID:   "Unencrypted_Honeypot",
		Kind: wifi.KindWireless,
		Mode: wifi.ModeAP,
		SSID: "Unencrypted_Honeypot",
	})
	h.start(t)

	h.commands <- Command{Kind: WiFiConnect, SSID: "Unencrypted_Honeypot"}
	r, err := h.result(t)
	require.NoError(t, err)
	assert.Equal(t, exit.WiFiConnected, r.Event)
	assert.False(t, other.Deleted())
}

func TestHandler_TimeoutAfterFailedConnect(t *testing.T) {
	h := newHarness(t)
	h.device.ConnectState = wifi.ConnectionStateDeactivated
	h.start(t)

	h.commands <- Command{Kind: ActivatePortal}
	<-h.responses
	h.commands <- Command{Kind: WiFiConnect, SSID: "HideYoKidsHideYoWiFi"}
	h.waitForHotspots(t, 2)

	// The recreated portal has not been loaded yet.
	h.commands <- Command{Kind: Timeout}
	r, _ := h.result(t)
	assert.Equal(t, exit.Timeout, r.Event)
}

func TestHandler_RestartApp(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.commands <- Command{Kind: RestartApp}
	h.waitForHotspots(t, 2)

	starts, stops := h.helper.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 0, stops)

	h.commands <- Command{Kind: Exit}
	h.result(t)
	h.assertCleanedUp(t)
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.PortalStarts))
}

func TestHandler_InternetConnected(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.backend.SetConnectivity(wifi.ConnectivityLimited)
	h.assertNoExit(t, 20*time.Millisecond)

	h.backend.SetConnectivity(wifi.ConnectivityFull)
	r, err := h.result(t)
	require.NoError(t, err)
	assert.Equal(t, exit.Result{Event: exit.InternetConnected}, r)
	h.assertCleanedUp(t)
}

func TestHandler_CommandChannelClosed(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	close(h.commands)
	r, err := h.result(t)
	assert.ErrorIs(t, err, ErrRecvCommand)
	assert.Equal(t, exit.UnexpectedExit, r.Event)
	assert.ErrorIs(t, r.Err, ErrRecvCommand)
	h.assertCleanedUp(t)
}

func TestHandler_CreatePortalFails(t *testing.T) {
	h := newHarness(t)
	h.device.HotspotError = errors.New("no AP mode")
	h.handler = NewHandler(h.backend, h.device, Options{
		Commands: h.commands,
		Exit:     h.exit,
		Logger:   testLogger(),
		Timings:  fastTimings,
	})

	err := h.handler.Run()
	assert.ErrorIs(t, err, ErrCreatePortal)

	r, werr := h.exit.Wait(context.Background())
	require.NoError(t, werr)
	assert.Equal(t, exit.UnexpectedExit, r.Event)
	assert.ErrorIs(t, r.Err, ErrCreatePortal)
}

type panickyDevice struct {
	*mock.MockDevice
}

func (d panickyDevice) AccessPoints() ([]wifi.AccessPoint, error) {
	panic("driver exploded")
}

func TestHandler_PanicTearsDown(t *testing.T) {
	h := newHarness(t)
	h.handler = NewHandler(h.backend, panickyDevice{h.device}, Options{
		Commands: h.commands,
		Exit:     h.exit,
		Logger:   testLogger(),
		Timings:  fastTimings,
	})

	err := h.handler.Run()
	assert.ErrorIs(t, err, ErrHandlerPanic)

	r, werr := h.exit.Wait(context.Background())
	require.NoError(t, werr)
	assert.Equal(t, exit.UnexpectedExit, r.Event)
	assert.Equal(t, StateTerminal, h.handler.State())
}

func TestHandler_StopErrorsStillReportEvent(t *testing.T) {
	h := newHarness(t)
	h.helper.stopErr = errors.New("dnsmasq is stuck")
	h.start(t)

	h.commands <- Command{Kind: Exit}
	r, err := h.result(t)
	assert.ErrorIs(t, err, ErrStopHelper)
	assert.Equal(t, exit.Result{Event: exit.ExitSignal}, r)
	assert.Equal(t, 0, h.backend.ActiveHotspots(), "portal is stopped before the helper")
}

func TestStopPortal_Idempotent(t *testing.T) {
	b := mock.New()
	d := b.DeviceList[0]
	h := NewHandler(b, d, Options{Logger: testLogger(), Timings: fastTimings})

	conn, err := d.CreateHotspot(wifi.HotspotConfig{SSID: "WiFi Connect"})
	require.NoError(t, err)
	h.portal = conn
	h.state = StatePortalUp

	require.NoError(t, h.stopPortal())
	require.NoError(t, h.stopPortal())
	assert.Equal(t, StateNoPortal, h.State())
	assert.Equal(t, 0, b.ActiveHotspots())
}

func TestStopPortal_DeactivateFailureStillDeletes(t *testing.T) {
	b := mock.New()
	d := b.DeviceList[0]
	h := NewHandler(b, d, Options{Logger: testLogger(), Timings: fastTimings})

	conn := b.AddProfile(wifi.ConnectionSettings{Kind: wifi.KindWireless, Mode: wifi.ModeAP, SSID: "WiFi Connect"})
	h.portal = conn

	require.NoError(t, h.stopPortal())
	assert.True(t, conn.Deleted())
}

func TestStopPortal_DeleteFailure(t *testing.T) {
	b := mock.New()
	d := b.DeviceList[0]
	h := NewHandler(b, d, Options{Logger: testLogger(), Timings: fastTimings})

	conn := b.AddProfile(wifi.ConnectionSettings{Kind: wifi.KindWireless, Mode: wifi.ModeAP, SSID: "WiFi Connect"})
	conn.DeleteError = errors.New("permission denied")
	h.portal = conn

	assert.ErrorIs(t, h.stopPortal(), ErrStopPortal)
	assert.Nil(t, h.portal)
}

func TestCommandKindString(t *testing.T) {
	assert.Equal(t, "WiFiConnect", WiFiConnect.String())
	assert.Equal(t, "CheckConnectivity", CheckConnectivity.String())
	assert.Equal(t, "PortalActive", StatePortalActive.String())
}
