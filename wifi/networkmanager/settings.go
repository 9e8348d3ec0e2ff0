//go:build linux

package networkmanager

import (
	gonetworkmanager "github.com/Wifx/gonetworkmanager/v3"
	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"github.com/shazow/wifi-connect/wifi"
)

// hotspotPrefix is the netmask length of the portal subnet.
const hotspotPrefix = 24

// securityFromFlags classifies an access point from its NetworkManager
// privacy, WPA and RSN flags.
func securityFromFlags(flags, wpaFlags, rsnFlags uint32) wifi.Security {
	security := wifi.SecurityNone
	if flags&uint32(gonetworkmanager.Nm80211APFlagsPrivacy) != 0 && wpaFlags == 0 && rsnFlags == 0 {
		security |= wifi.SecurityWEP
	}
	if wpaFlags != 0 {
		security |= wifi.SecurityWPA
	}
	if rsnFlags != 0 {
		security |= wifi.SecurityWPA2
	}
	if (wpaFlags|rsnFlags)&uint32(gonetworkmanager.Nm80211APSecKeyMgmt8021X) != 0 {
		security |= wifi.SecurityEnterprise
	}
	return security
}

// clientSettings builds an infrastructure-mode profile for joining ssid.
func clientSettings(iface, ssid string, creds wifi.Credentials) map[string]map[string]interface{} {
	connection := map[string]map[string]interface{}{
		"connection": {
			"id":             ssid,
			"uuid":           uuid.New().String(),
			"type":           wifi.KindWireless,
			"interface-name": iface,
			"autoconnect":    true,
		},
		"802-11-wireless": {
			"mode": "infrastructure",
			"ssid": []byte(ssid),
		},
		"ipv4": {"method": "auto"},
		"ipv6": {"method": "auto"},
	}

	switch creds.Kind {
	case wifi.CredentialsNone:
		// No security settings needed
	case wifi.CredentialsWEP:
		connection["802-11-wireless"]["security"] = "802-11-wireless-security"
		connection["802-11-wireless-security"] = map[string]interface{}{
			"key-mgmt":     "none",
			"wep-key0":     creds.Passphrase,
			"wep-key-type": uint32(2), // passphrase
		}
	case wifi.CredentialsEnterprise:
		connection["802-11-wireless"]["security"] = "802-11-wireless-security"
		connection["802-11-wireless-security"] = map[string]interface{}{
			"key-mgmt": "wpa-eap",
		}
		connection["802-1x"] = map[string]interface{}{
			"eap":         []string{"peap"},
			"identity":    creds.Identity,
			"password":    creds.Passphrase,
			"phase2-auth": "mschapv2",
		}
	default: // WPA/WPA2
		connection["802-11-wireless"]["security"] = "802-11-wireless-security"
		connection["802-11-wireless-security"] = map[string]interface{}{
			"key-mgmt": "wpa-psk",
			"psk":      creds.Passphrase,
		}
	}
	return connection
}

// hotspotSettings builds an AP-mode profile with a static gateway address.
func hotspotSettings(iface string, cfg wifi.HotspotConfig) map[string]map[string]interface{} {
	addressData := []map[string]dbus.Variant{{
		"address": dbus.MakeVariant(cfg.Gateway.String()),
		"prefix":  dbus.MakeVariant(uint32(hotspotPrefix)),
	}}

	connection := map[string]map[string]interface{}{
		"connection": {
			"id":             cfg.SSID,
			"uuid":           uuid.New().String(),
			"type":           wifi.KindWireless,
			"interface-name": iface,
			"autoconnect":    false,
		},
		"802-11-wireless": {
			"ssid":   []byte(cfg.SSID),
			"band":   "bg",
			"hidden": false,
			"mode":   wifi.ModeAP,
		},
		"ipv4": {
			"method":       "manual",
			"address-data": addressData,
		},
		"ipv6": {"method": "ignore"},
	}

	if cfg.Passphrase != "" {
		connection["802-11-wireless"]["security"] = "802-11-wireless-security"
		connection["802-11-wireless-security"] = map[string]interface{}{
			"key-mgmt": "wpa-psk",
			"psk":      cfg.Passphrase,
		}
	}
	return connection
}

// parseSettings extracts the fields we care about from a settings map.
func parseSettings(s gonetworkmanager.ConnectionSettings) wifi.ConnectionSettings {
	var out wifi.ConnectionSettings
	if c, ok := s["connection"]; ok {
		if id, ok := c["id"].(string); ok {
			out.ID = id
		}
		if t, ok := c["type"].(string); ok {
			out.Kind = t
		}
	}
	if w, ok := s["802-11-wireless"]; ok {
		if mode, ok := w["mode"].(string); ok {
			out.Mode = mode
		}
		if ssid, ok := w["ssid"].([]byte); ok {
			out.SSID = string(ssid)
		}
	}
	return out
}

func deviceType(t gonetworkmanager.NmDeviceType) wifi.DeviceType {
	switch t {
	case gonetworkmanager.NmDeviceTypeWifi:
		return wifi.DeviceTypeWiFi
	case gonetworkmanager.NmDeviceTypeEthernet:
		return wifi.DeviceTypeEthernet
	case gonetworkmanager.NmDeviceTypeUnknown:
		return wifi.DeviceTypeUnknown
	default:
		return wifi.DeviceTypeOther
	}
}

func deviceState(s gonetworkmanager.NmDeviceState) wifi.DeviceState {
	switch {
	case s == gonetworkmanager.NmDeviceStateUnmanaged:
		return wifi.DeviceStateUnmanaged
	case s == gonetworkmanager.NmDeviceStateUnavailable:
		return wifi.DeviceStateUnavailable
	case s == gonetworkmanager.NmDeviceStateDisconnected:
		return wifi.DeviceStateDisconnected
	case s == gonetworkmanager.NmDeviceStateActivated:
		return wifi.DeviceStateActivated
	case s == gonetworkmanager.NmDeviceStateFailed:
		return wifi.DeviceStateFailed
	case s > gonetworkmanager.NmDeviceStateDisconnected && s < gonetworkmanager.NmDeviceStateActivated:
		return wifi.DeviceStateActivating
	default:
		return wifi.DeviceStateUnknown
	}
}

func connectivity(c gonetworkmanager.NmConnectivity) wifi.Connectivity {
	switch c {
	case gonetworkmanager.NmConnectivityNone:
		return wifi.ConnectivityNone
	case gonetworkmanager.NmConnectivityPortal:
		return wifi.ConnectivityPortal
	case gonetworkmanager.NmConnectivityLimited:
		return wifi.ConnectivityLimited
	case gonetworkmanager.NmConnectivityFull:
		return wifi.ConnectivityFull
	default:
		return wifi.ConnectivityUnknown
	}
}

func connectionState(s gonetworkmanager.NmActiveConnectionState) wifi.ConnectionState {
	switch s {
	case gonetworkmanager.NmActiveConnectionStateActivating:
		return wifi.ConnectionStateActivating
	case gonetworkmanager.NmActiveConnectionStateActivated:
		return wifi.ConnectionStateActivated
	case gonetworkmanager.NmActiveConnectionStateDeactivating:
		return wifi.ConnectionStateDeactivating
	case gonetworkmanager.NmActiveConnectionStateDeactivated:
		return wifi.ConnectionStateDeactivated
	default:
		return wifi.ConnectionStateUnknown
	}
}
