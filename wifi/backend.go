package wifi

import (
	"net"
	"time"
	"unicode/utf8"
)

// Security is the set of security capabilities advertised by an access point.
// Flags are not mutually exclusive.
type Security uint8

const (
	SecurityNone       Security = 0
	SecurityWEP        Security = 1 << 0
	SecurityWPA        Security = 1 << 1
	SecurityWPA2       Security = 1 << 2
	SecurityEnterprise Security = 1 << 3
)

// Has reports whether all flags in f are set.
func (s Security) Has(f Security) bool {
	return s&f == f
}

// Label returns the single security class shown to users, following the same
// priority as credential selection: enterprise, wpa, wep, none.
func (s Security) Label() string {
	switch {
	case s.Has(SecurityEnterprise):
		return "enterprise"
	case s.Has(SecurityWPA2), s.Has(SecurityWPA):
		return "wpa"
	case s.Has(SecurityWEP):
		return "wep"
	default:
		return "none"
	}
}

// AccessPoint is a single wireless network seen by a scan.
type AccessPoint struct {
	SSID     string
	BSSID    string
	Strength uint8 // 0-100
	Security Security
}

// ValidSSID reports whether the SSID decodes as UTF-8 text.
func (ap AccessPoint) ValidSSID() bool {
	return utf8.ValidString(ap.SSID)
}

// Connectivity is the backend-reported reachability of the active network path.
type Connectivity int

const (
	ConnectivityUnknown Connectivity = iota
	ConnectivityNone
	ConnectivityPortal
	ConnectivityLimited
	ConnectivityFull
)

func (c Connectivity) String() string {
	switch c {
	case ConnectivityNone:
		return "none"
	case ConnectivityPortal:
		return "portal"
	case ConnectivityLimited:
		return "limited"
	case ConnectivityFull:
		return "full"
	default:
		return "unknown"
	}
}

// ConnectionState is the activation state of a connection.
type ConnectionState int

const (
	ConnectionStateUnknown ConnectionState = iota
	ConnectionStateActivating
	ConnectionStateActivated
	ConnectionStateDeactivating
	ConnectionStateDeactivated
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateActivating:
		return "activating"
	case ConnectionStateActivated:
		return "activated"
	case ConnectionStateDeactivating:
		return "deactivating"
	case ConnectionStateDeactivated:
		return "deactivated"
	default:
		return "unknown"
	}
}

// DeviceType is the kind of a network device.
type DeviceType int

const (
	DeviceTypeUnknown DeviceType = iota
	DeviceTypeEthernet
	DeviceTypeWiFi
	DeviceTypeOther
)

// DeviceState is the management state of a device.
type DeviceState int

const (
	DeviceStateUnknown DeviceState = iota
	DeviceStateUnmanaged
	DeviceStateUnavailable
	DeviceStateDisconnected
	DeviceStateActivating
	DeviceStateActivated
	DeviceStateFailed
)

// ServiceState is the state of the backend system service.
type ServiceState int

const (
	ServiceStateUnknown ServiceState = iota
	ServiceStateActive
	ServiceStateReloading
	ServiceStateInactive
	ServiceStateFailed
	ServiceStateActivating
	ServiceStateDeactivating
)

func (s ServiceState) String() string {
	switch s {
	case ServiceStateActive:
		return "active"
	case ServiceStateReloading:
		return "reloading"
	case ServiceStateInactive:
		return "inactive"
	case ServiceStateFailed:
		return "failed"
	case ServiceStateActivating:
		return "activating"
	case ServiceStateDeactivating:
		return "deactivating"
	default:
		return "unknown"
	}
}

// ConnectionSettings is the subset of a connection profile the daemon inspects.
type ConnectionSettings struct {
	ID   string
	Kind string // e.g. "802-11-wireless"
	Mode string // e.g. "ap", "infrastructure"
	SSID string
}

const (
	KindWireless = "802-11-wireless"
	ModeAP       = "ap"
)

// IsWiFi reports whether the profile is a wireless profile.
func (s ConnectionSettings) IsWiFi() bool {
	return s.Kind == KindWireless
}

// IsAccessPoint reports whether the profile is a wireless profile in AP mode.
func (s ConnectionSettings) IsAccessPoint() bool {
	return s.IsWiFi() && s.Mode == ModeAP
}

// SameSSID reports whether the profile's SSID decodes as text and equals ssid.
func (s ConnectionSettings) SameSSID(ssid string) bool {
	return utf8.ValidString(s.SSID) && s.SSID == ssid
}

// HotspotConfig describes an access point profile to create.
type HotspotConfig struct {
	SSID       string
	Passphrase string // empty for an open hotspot
	Gateway    net.IP
}

// Connection is a named connection profile known to the backend.
type Connection interface {
	// Settings returns the profile settings.
	Settings() (ConnectionSettings, error)
	// Deactivate tears down the active instance of this profile, if any.
	Deactivate() error
	// Delete removes the profile from the backend.
	Delete() error
}

// Device is a network interface managed by the backend.
type Device interface {
	// Interface returns the kernel interface name, e.g. wlan0.
	Interface() string
	// Type returns the device type.
	Type() DeviceType
	// State returns the current management state.
	State() (DeviceState, error)
	// AccessPoints requests a scan and returns the access points visible to
	// the device in backend order. Only valid for WiFi devices.
	AccessPoints() ([]AccessPoint, error)
	// Connect creates and activates a client profile for ap and returns it
	// together with the activation state reached.
	Connect(ap AccessPoint, creds Credentials) (Connection, ConnectionState, error)
	// CreateHotspot creates and activates an access point profile.
	CreateHotspot(cfg HotspotConfig) (Connection, error)
}

// Backend is the OS network management service.
type Backend interface {
	// Devices enumerates devices in backend order.
	Devices() ([]Device, error)
	// DeviceByInterface returns the device bound to the named interface.
	DeviceByInterface(name string) (Device, error)
	// Connections lists all stored connection profiles.
	Connections() ([]Connection, error)
	// Connectivity returns the global connectivity state.
	Connectivity() (Connectivity, error)
	// ServiceState returns the state of the backend system service.
	ServiceState() (ServiceState, error)
	// StartService starts the backend system service and waits up to timeout
	// for it to settle, returning the final state.
	StartService(timeout time.Duration) (ServiceState, error)
}
