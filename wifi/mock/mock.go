package mock

import (
	"fmt"
	"sync"
	"time"

	"github.com/shazow/wifi-connect/wifi"
)

// MockBackend is a mock implementation of the wifi.Backend interface for testing.
// All state is guarded by a single mutex so tests may inspect it while a
// handler goroutine drives the backend.
type MockBackend struct {
	mu sync.Mutex

	DeviceList   []*MockDevice
	Profiles     []*MockConnection
	Service      wifi.ServiceState
	StartedState wifi.ServiceState

	// ConnectivitySequence is consumed one entry per Connectivity call; the
	// last entry repeats. Connectivity is used once the sequence is empty.
	ConnectivitySequence []wifi.Connectivity
	CurrentConnectivity  wifi.Connectivity

	ConnectivityError error
	ServiceStateError error
	StartServiceError error
	ConnectionsError  error

	ConnectivityCalls int
	ServiceStarts     int
}

// MockDevice is a scriptable wifi.Device.
type MockDevice struct {
	backend *MockBackend

	Name        string
	Kind        wifi.DeviceType
	DeviceState wifi.DeviceState

	// Scans is consumed one entry per AccessPoints call; the last entry repeats.
	Scans     [][]wifi.AccessPoint
	ScanError error
	ScanCalls int

	// ConnectState is the activation state reported by Connect.
	ConnectState wifi.ConnectionState
	ConnectError error
	// ActivationError is returned by Connect together with the new,
	// inactive profile, like a backend that timed out waiting for it.
	ActivationError error
	// ConnectedConnectivity becomes the backend connectivity after a
	// successful Connect, if non-zero.
	ConnectedConnectivity wifi.Connectivity

	HotspotError error
	Hotspots     []wifi.HotspotConfig
	Connects     []wifi.Credentials
}

// MockConnection is an in-memory connection profile.
type MockConnection struct {
	backend *MockBackend

	settings wifi.ConnectionSettings
	active   bool
	deleted  bool

	DeactivateError error
	DeleteError     error
}

// New creates a MockBackend with a single managed WiFi device, wlan0, that
// sees a few fun networks.
func New() *MockBackend {
	b := &MockBackend{
		Service:             wifi.ServiceStateActive,
		StartedState:        wifi.ServiceStateActive,
		CurrentConnectivity: wifi.ConnectivityNone,
	}
	b.AddDevice(&MockDevice{
		Name:        "wlan0",
		Kind:        wifi.DeviceTypeWiFi,
		DeviceState: wifi.DeviceStateDisconnected,
		Scans: [][]wifi.AccessPoint{{
			{SSID: "HideYoKidsHideYoWiFi", Strength: 72, Security: wifi.SecurityWPA2},
			{SSID: "NeverGonnaGiveYouIP", Strength: 40, Security: wifi.SecurityWEP},
			{SSID: "Unencrypted_Honeypot", Strength: 91, Security: wifi.SecurityNone},
			{SSID: "Dunder MiffLAN", Strength: 55, Security: wifi.SecurityWPA | wifi.SecurityWPA2},
			{SSID: "Corporate Overlords", Strength: 63, Security: wifi.SecurityEnterprise | wifi.SecurityWPA2},
		}},
		ConnectState:          wifi.ConnectionStateActivated,
		ConnectedConnectivity: wifi.ConnectivityFull,
	})
	return b
}

// AddDevice attaches d to the backend and returns it.
func (m *MockBackend) AddDevice(d *MockDevice) *MockDevice {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.backend = m
	m.DeviceList = append(m.DeviceList, d)
	return d
}

// AddProfile stores a connection profile and returns it.
func (m *MockBackend) AddProfile(settings wifi.ConnectionSettings) *MockConnection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addProfileLocked(settings, false)
}

func (m *MockBackend) addProfileLocked(settings wifi.ConnectionSettings, active bool) *MockConnection {
	c := &MockConnection{backend: m, settings: settings, active: active}
	m.Profiles = append(m.Profiles, c)
	return c
}

// SetConnectivity replaces the connectivity state and clears any sequence.
func (m *MockBackend) SetConnectivity(c wifi.Connectivity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConnectivitySequence = nil
	m.CurrentConnectivity = c
}

// LiveProfiles returns the settings of all profiles not deleted.
func (m *MockBackend) LiveProfiles() []wifi.ConnectionSettings {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []wifi.ConnectionSettings
	for _, c := range m.Profiles {
		if !c.deleted {
			out = append(out, c.settings)
		}
	}
	return out
}

// ActiveHotspots counts live, active access point profiles.
func (m *MockBackend) ActiveHotspots() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Profiles {
		if !c.deleted && c.active && c.settings.IsAccessPoint() {
			n++
		}
	}
	return n
}

// HotspotCount returns how many hotspots d has created.
func (d *MockDevice) HotspotCount() int {
	d.backend.mu.Lock()
	defer d.backend.mu.Unlock()
	return len(d.Hotspots)
}

// ConnectCount returns how many connection attempts d has seen.
func (d *MockDevice) ConnectCount() int {
	d.backend.mu.Lock()
	defer d.backend.mu.Unlock()
	return len(d.Connects)
}

// Calls returns how many scans d has served.
func (d *MockDevice) Calls() int {
	d.backend.mu.Lock()
	defer d.backend.mu.Unlock()
	return d.ScanCalls
}

func (m *MockBackend) Devices() ([]wifi.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	devices := make([]wifi.Device, 0, len(m.DeviceList))
	for _, d := range m.DeviceList {
		devices = append(devices, d)
	}
	return devices, nil
}

func (m *MockBackend) DeviceByInterface(name string) (wifi.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.DeviceList {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no device for interface %s: %w", name, wifi.ErrNotFound)
}

func (m *MockBackend) Connections() ([]wifi.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ConnectionsError != nil {
		return nil, m.ConnectionsError
	}
	var conns []wifi.Connection
	for _, c := range m.Profiles {
		if !c.deleted {
			conns = append(conns, c)
		}
	}
	return conns, nil
}

func (m *MockBackend) Connectivity() (wifi.Connectivity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConnectivityCalls++
	if m.ConnectivityError != nil {
		return wifi.ConnectivityUnknown, m.ConnectivityError
	}
	if len(m.ConnectivitySequence) > 0 {
		m.CurrentConnectivity = m.ConnectivitySequence[0]
		if len(m.ConnectivitySequence) > 1 {
			m.ConnectivitySequence = m.ConnectivitySequence[1:]
		}
	}
	return m.CurrentConnectivity, nil
}

func (m *MockBackend) ServiceState() (wifi.ServiceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ServiceStateError != nil {
		return wifi.ServiceStateUnknown, m.ServiceStateError
	}
	return m.Service, nil
}

func (m *MockBackend) StartService(timeout time.Duration) (wifi.ServiceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ServiceStarts++
	if m.StartServiceError != nil {
		return wifi.ServiceStateUnknown, m.StartServiceError
	}
	m.Service = m.StartedState
	return m.Service, nil
}

func (d *MockDevice) Interface() string { return d.Name }

func (d *MockDevice) Type() wifi.DeviceType { return d.Kind }

func (d *MockDevice) State() (wifi.DeviceState, error) {
	d.backend.mu.Lock()
	defer d.backend.mu.Unlock()
	return d.DeviceState, nil
}

func (d *MockDevice) AccessPoints() ([]wifi.AccessPoint, error) {
	d.backend.mu.Lock()
	defer d.backend.mu.Unlock()
	if d.Kind != wifi.DeviceTypeWiFi {
		return nil, fmt.Errorf("%s: %w", d.Name, wifi.ErrNotAWiFiDevice)
	}
	d.ScanCalls++
	if d.ScanError != nil {
		return nil, d.ScanError
	}
	if len(d.Scans) == 0 {
		return nil, nil
	}
	scan := d.Scans[0]
	if len(d.Scans) > 1 {
		d.Scans = d.Scans[1:]
	}
	return append([]wifi.AccessPoint(nil), scan...), nil
}

func (d *MockDevice) Connect(ap wifi.AccessPoint, creds wifi.Credentials) (wifi.Connection, wifi.ConnectionState, error) {
	m := d.backend
	m.mu.Lock()
	defer m.mu.Unlock()
	d.Connects = append(d.Connects, creds)
	if d.ConnectError != nil {
		return nil, wifi.ConnectionStateUnknown, d.ConnectError
	}
	if d.ActivationError != nil {
		conn := m.addProfileLocked(wifi.ConnectionSettings{
			ID:   ap.SSID,
			Kind: wifi.KindWireless,
			Mode: "infrastructure",
			SSID: ap.SSID,
		}, false)
		return conn, wifi.ConnectionStateUnknown, d.ActivationError
	}
	active := d.ConnectState == wifi.ConnectionStateActivated || d.ConnectState == wifi.ConnectionStateActivating
	conn := m.addProfileLocked(wifi.ConnectionSettings{
		ID:   ap.SSID,
		Kind: wifi.KindWireless,
		Mode: "infrastructure",
		SSID: ap.SSID,
	}, active)
	if active && d.ConnectedConnectivity != wifi.ConnectivityUnknown {
		m.ConnectivitySequence = nil
		m.CurrentConnectivity = d.ConnectedConnectivity
	}
	return conn, d.ConnectState, nil
}

func (d *MockDevice) CreateHotspot(cfg wifi.HotspotConfig) (wifi.Connection, error) {
	m := d.backend
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.HotspotError != nil {
		return nil, d.HotspotError
	}
	d.Hotspots = append(d.Hotspots, cfg)
	return m.addProfileLocked(wifi.ConnectionSettings{
		ID:   cfg.SSID,
		Kind: wifi.KindWireless,
		Mode: wifi.ModeAP,
		SSID: cfg.SSID,
	}, true), nil
}

func (c *MockConnection) Settings() (wifi.ConnectionSettings, error) {
	c.backend.mu.Lock()
	defer c.backend.mu.Unlock()
	return c.settings, nil
}

func (c *MockConnection) Deactivate() error {
	c.backend.mu.Lock()
	defer c.backend.mu.Unlock()
	if c.DeactivateError != nil {
		return c.DeactivateError
	}
	if c.deleted {
		return fmt.Errorf("deactivate %s: %w", c.settings.ID, wifi.ErrNotFound)
	}
	if !c.active {
		return fmt.Errorf("deactivate %s: %w", c.settings.ID, wifi.ErrNoActiveInstance)
	}
	c.active = false
	return nil
}

func (c *MockConnection) Delete() error {
	c.backend.mu.Lock()
	defer c.backend.mu.Unlock()
	if c.DeleteError != nil {
		return c.DeleteError
	}
	if c.deleted {
		return fmt.Errorf("delete %s: %w", c.settings.ID, wifi.ErrNotFound)
	}
	c.deleted = true
	c.active = false
	return nil
}

// Deleted reports whether the profile was removed.
func (c *MockConnection) Deleted() bool {
	c.backend.mu.Lock()
	defer c.backend.mu.Unlock()
	return c.deleted
}

// Active reports whether the profile is activated.
func (c *MockConnection) Active() bool {
	c.backend.mu.Lock()
	defer c.backend.mu.Unlock()
	return c.active
}
