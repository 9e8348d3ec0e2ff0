//go:build linux

package networkmanager

import (
	"fmt"
	"log/slog"
	"time"

	gonetworkmanager "github.com/Wifx/gonetworkmanager/v3"
	"github.com/shazow/wifi-connect/wifi"
)

const activationTimeout = 30 * time.Second

// Backend implements the wifi.Backend interface using D-Bus to communicate with NetworkManager.
type Backend struct {
	NM       gonetworkmanager.NetworkManager
	Settings gonetworkmanager.Settings
	Service  *Service

	logger *slog.Logger
}

// New creates a new networkmanager.Backend.
func New(logger *slog.Logger) (*Backend, error) {
	nm, err := gonetworkmanager.NewNetworkManager()
	if err != nil {
		return nil, fmt.Errorf("failed to create network manager client: %w", wifi.ErrNotAvailable)
	}

	settings, err := gonetworkmanager.NewSettings()
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", wifi.ErrOperationFailed)
	}

	service, err := NewService(serviceUnit)
	if err != nil {
		logger.Warn("systemd is not reachable, service management disabled", "error", err)
	}

	return &Backend{
		NM:       nm,
		Settings: settings,
		Service:  service,
		logger:   logger,
	}, nil
}

func (b *Backend) wrapDevice(d gonetworkmanager.Device) (*Device, error) {
	iface, err := d.GetPropertyInterface()
	if err != nil {
		return nil, err
	}
	typ, err := d.GetPropertyDeviceType()
	if err != nil {
		return nil, err
	}
	dev := &Device{
		backend: b,
		device:  d,
		iface:   iface,
		kind:    deviceType(typ),
	}
	if w, ok := d.(gonetworkmanager.DeviceWireless); ok {
		dev.wireless = w
	}
	return dev, nil
}

// Devices enumerates devices in NetworkManager order.
func (b *Backend) Devices() ([]wifi.Device, error) {
	devices, err := b.NM.GetDevices()
	if err != nil {
		return nil, err
	}

	var out []wifi.Device
	for _, d := range devices {
		dev, err := b.wrapDevice(d)
		if err != nil {
			b.logger.Debug("skipping unreadable device", "path", d.GetPath(), "error", err)
			continue
		}
		out = append(out, dev)
	}
	return out, nil
}

func (b *Backend) DeviceByInterface(name string) (wifi.Device, error) {
	d, err := b.NM.GetDeviceByIpIface(name)
	if err != nil {
		return nil, fmt.Errorf("no device for interface %s: %w", name, wifi.ErrNotFound)
	}
	return b.wrapDevice(d)
}

func (b *Backend) Connections() ([]wifi.Connection, error) {
	conns, err := b.Settings.ListConnections()
	if err != nil {
		return nil, err
	}
	out := make([]wifi.Connection, 0, len(conns))
	for _, c := range conns {
		out = append(out, &Connection{backend: b, conn: c})
	}
	return out, nil
}

func (b *Backend) Connectivity() (wifi.Connectivity, error) {
	c, err := b.NM.GetPropertyConnectivity()
	if err != nil {
		return wifi.ConnectivityUnknown, err
	}
	return connectivity(c), nil
}

func (b *Backend) ServiceState() (wifi.ServiceState, error) {
	if b.Service == nil {
		return wifi.ServiceStateUnknown, fmt.Errorf("systemd: %w", wifi.ErrNotAvailable)
	}
	return b.Service.State()
}

func (b *Backend) StartService(timeout time.Duration) (wifi.ServiceState, error) {
	if b.Service == nil {
		return wifi.ServiceStateUnknown, fmt.Errorf("systemd: %w", wifi.ErrNotAvailable)
	}
	return b.Service.Start(timeout)
}

// Device wraps a NetworkManager device.
type Device struct {
	backend  *Backend
	device   gonetworkmanager.Device
	wireless gonetworkmanager.DeviceWireless
	iface    string
	kind     wifi.DeviceType
}

func (d *Device) Interface() string { return d.iface }

func (d *Device) Type() wifi.DeviceType { return d.kind }

func (d *Device) State() (wifi.DeviceState, error) {
	s, err := d.device.GetPropertyState()
	if err != nil {
		return wifi.DeviceStateUnknown, err
	}
	return deviceState(s), nil
}

func (d *Device) wifiDevice() (gonetworkmanager.DeviceWireless, error) {
	if d.wireless == nil {
		return nil, fmt.Errorf("%s: %w", d.iface, wifi.ErrNotAWiFiDevice)
	}
	return d.wireless, nil
}

// AccessPoints requests a scan and returns the visible access points.
func (d *Device) AccessPoints() ([]wifi.AccessPoint, error) {
	w, err := d.wifiDevice()
	if err != nil {
		return nil, err
	}

	// Scanning is refused while in AP mode or right after a previous scan;
	// the cached list is still useful then.
	if err := w.RequestScan(); err != nil {
		d.backend.logger.Debug("scan request refused", "interface", d.iface, "error", err)
	}

	aps, err := w.GetAccessPoints()
	if err != nil {
		return nil, err
	}

	out := make([]wifi.AccessPoint, 0, len(aps))
	for _, ap := range aps {
		ssid, err := ap.GetPropertySSID()
		if err != nil {
			continue
		}
		bssid, _ := ap.GetPropertyHWAddress()
		strength, _ := ap.GetPropertyStrength()
		flags, _ := ap.GetPropertyFlags()
		wpaFlags, _ := ap.GetPropertyWPAFlags()
		rsnFlags, _ := ap.GetPropertyRSNFlags()

		out = append(out, wifi.AccessPoint{
			SSID:     ssid,
			BSSID:    bssid,
			Strength: strength,
			Security: securityFromFlags(uint32(flags), uint32(wpaFlags), uint32(rsnFlags)),
		})
	}
	return out, nil
}

func (d *Device) findAccessPoint(ssid string) (gonetworkmanager.AccessPoint, error) {
	w, err := d.wifiDevice()
	if err != nil {
		return nil, err
	}
	aps, err := w.GetAccessPoints()
	if err != nil {
		return nil, err
	}
	for _, ap := range aps {
		s, err := ap.GetPropertySSID()
		if err == nil && s == ssid {
			return ap, nil
		}
	}
	return nil, fmt.Errorf("access point not found for %s: %w", ssid, wifi.ErrNotFound)
}

// Connect creates a client profile for ap and waits for it to settle.
func (d *Device) Connect(ap wifi.AccessPoint, creds wifi.Credentials) (wifi.Connection, wifi.ConnectionState, error) {
	nmAP, err := d.findAccessPoint(ap.SSID)
	if err != nil {
		return nil, wifi.ConnectionStateUnknown, err
	}

	settings := clientSettings(d.iface, ap.SSID, creds)
	activeConn, err := d.backend.NM.AddAndActivateWirelessConnection(settings, d.device, nmAP)
	if err != nil {
		return nil, wifi.ConnectionStateUnknown, err
	}

	profile, err := activeConn.GetPropertyConnection()
	if err != nil {
		return nil, wifi.ConnectionStateUnknown, err
	}
	conn := &Connection{backend: d.backend, conn: profile}

	state, err := waitForActivation(activeConn, activationTimeout)
	if err != nil {
		return conn, wifi.ConnectionStateUnknown, err
	}
	return conn, state, nil
}

// waitForActivation blocks until the connection is activated, deactivated,
// or the timeout elapses, and returns the last state seen.
func waitForActivation(activeConn gonetworkmanager.ActiveConnection, timeout time.Duration) (wifi.ConnectionState, error) {
	stateChanges := make(chan gonetworkmanager.StateChange, 1)
	done := make(chan struct{})
	defer close(done)
	if err := activeConn.SubscribeState(stateChanges, done); err != nil {
		return wifi.ConnectionStateUnknown, err
	}

	// Check the initial state first
	initialState, err := activeConn.GetPropertyState()
	if err != nil {
		return wifi.ConnectionStateUnknown, err
	}
	last := connectionState(initialState)
	if last == wifi.ConnectionStateActivated || last == wifi.ConnectionStateDeactivated {
		return last, nil
	}

	deadline := time.After(timeout)
	for {
		select {
		case change := <-stateChanges:
			last = connectionState(change.State)
			if last == wifi.ConnectionStateActivated || last == wifi.ConnectionStateDeactivated {
				return last, nil
			}
		case <-deadline:
			return last, nil
		}
	}
}

// CreateHotspot creates and activates an access point profile on the device.
func (d *Device) CreateHotspot(cfg wifi.HotspotConfig) (wifi.Connection, error) {
	if _, err := d.wifiDevice(); err != nil {
		return nil, err
	}

	settings := hotspotSettings(d.iface, cfg)
	activeConn, err := d.backend.NM.AddAndActivateConnection(settings, d.device)
	if err != nil {
		return nil, err
	}

	profile, err := activeConn.GetPropertyConnection()
	if err != nil {
		return nil, err
	}

	state, err := waitForActivation(activeConn, activationTimeout)
	if err != nil {
		return nil, err
	}
	if state != wifi.ConnectionStateActivated {
		_ = profile.Delete()
		return nil, fmt.Errorf("hotspot %s ended in state %s: %w", cfg.SSID, state, wifi.ErrOperationFailed)
	}
	return &Connection{backend: d.backend, conn: profile}, nil
}

// Connection wraps a NetworkManager settings connection.
type Connection struct {
	backend *Backend
	conn    gonetworkmanager.Connection
}

func (c *Connection) Settings() (wifi.ConnectionSettings, error) {
	s, err := c.conn.GetSettings()
	if err != nil {
		return wifi.ConnectionSettings{}, err
	}
	return parseSettings(s), nil
}

// Deactivate finds the active connection backed by this profile and deactivates it.
func (c *Connection) Deactivate() error {
	actives, err := c.backend.NM.GetPropertyActiveConnections()
	if err != nil {
		return err
	}
	for _, ac := range actives {
		profile, err := ac.GetPropertyConnection()
		if err != nil || profile == nil {
			continue
		}
		if profile.GetPath() == c.conn.GetPath() {
			return c.backend.NM.DeactivateConnection(ac)
		}
	}
	return fmt.Errorf("%s: %w", c.conn.GetPath(), wifi.ErrNoActiveInstance)
}

func (c *Connection) Delete() error {
	return c.conn.Delete()
}
