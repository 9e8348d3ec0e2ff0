package network

import (
	"fmt"
	"time"

	"github.com/shazow/wifi-connect/wifi"
)

// connectToWiFi joins ssid. The portal is already gone when this returns an
// error; the caller reloads.
func (h *Handler) connectToWiFi(ssid, identity, passphrase string) error {
	h.deleteConnectionsTo(ssid)

	if err := h.stopPortal(); err != nil {
		return err
	}
	h.setState(StateConnecting)

	aps, err := Discover(h.device, h.timings.ScanRetries, h.timings.ScanInterval, h.logger)
	if err != nil {
		return err
	}
	h.accessPoints = aps
	h.metrics.AccessPoints.Set(float64(len(aps)))

	ap, ok := findAccessPoint(aps, ssid)
	if !ok {
		return fmt.Errorf("%w: access point %q not found", ErrWiFiConnectionFailed, ssid)
	}

	creds := wifi.CredentialsFor(ap, identity, passphrase)
	h.logger.Info("Connecting to access point...", "ssid", ssid, "security", creds.Kind)

	conn, state, err := h.device.Connect(ap, creds)
	if err != nil {
		h.logger.Warn("Error connecting to access point", "ssid", ssid, "error", err)
		if conn != nil {
			if err := conn.Delete(); err != nil {
				h.logger.Error("Deleting connection object failed", "error", err)
			}
		}
		return fmt.Errorf("%w: %w", ErrWiFiConnectionFailed, err)
	}
	if state != wifi.ConnectionStateActivated && state != wifi.ConnectionStateActivating {
		h.logger.Error("Wrong connection state", "ssid", ssid, "state", state)
		if err := conn.Delete(); err != nil {
			h.logger.Error("Deleting connection object failed", "error", err)
		}
		return fmt.Errorf("%w: connection state %s", ErrWiFiConnectionFailed, state)
	}

	connected, err := h.waitForConnectivity()
	switch {
	case err != nil:
		h.logger.Error("Getting Internet connectivity failed", "error", err)
	case connected:
		h.logger.Info("Internet connectivity established")
	default:
		h.logger.Warn("Cannot establish Internet connectivity")
	}
	return nil
}

// waitForConnectivity polls the backend until it reports full or limited
// connectivity, or the timeout elapses.
func (h *Handler) waitForConnectivity() (bool, error) {
	var elapsed time.Duration
	for {
		c, err := h.backend.Connectivity()
		if err != nil {
			return false, err
		}
		if c == wifi.ConnectivityFull || c == wifi.ConnectivityLimited {
			h.logger.Debug("Connectivity established", "connectivity", c, "elapsed", elapsed)
			return true, nil
		}
		if elapsed >= h.timings.ConnectivityTimeout {
			h.logger.Debug("Timeout reached in waiting for connectivity", "connectivity", c, "elapsed", elapsed)
			return false, nil
		}
		time.Sleep(h.timings.PollInterval)
		elapsed += h.timings.PollInterval
		h.logger.Debug("Still waiting for connectivity", "connectivity", c, "elapsed", elapsed)
	}
}

// deleteConnectionsTo removes saved client profiles for ssid so that stale
// credentials cannot win over the new ones. Access point profiles are left to
// stopPortal. Failures are only logged.
func (h *Handler) deleteConnectionsTo(ssid string) {
	conns, err := h.backend.Connections()
	if err != nil {
		h.logger.Error("Getting existing connections failed", "error", err)
		return
	}
	for _, conn := range conns {
		settings, err := conn.Settings()
		if err != nil || !settings.IsWiFi() || settings.IsAccessPoint() || !settings.SameSSID(ssid) {
			continue
		}
		h.logger.Info("Deleting existing WiFi connection to the same network", "ssid", ssid)
		if err := conn.Delete(); err != nil {
			h.logger.Error("Deleting existing WiFi connection failed", "error", err)
		}
	}
}
