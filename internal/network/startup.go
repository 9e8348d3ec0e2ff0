package network

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shazow/wifi-connect/wifi"
)

// serviceStartTimeout bounds the wait for the backend service to come up.
const serviceStartTimeout = 15 * time.Second

// Init makes sure the backend service runs and removes any portal profile
// left behind by an unclean exit.
func Init(backend wifi.Backend, portalSSID string, logger *slog.Logger) error {
	if err := startService(backend, logger); err != nil {
		return err
	}
	if err := deleteStalePortal(backend, portalSSID, logger); err != nil {
		return fmt.Errorf("%w: %w", ErrDeleteAccessPoint, err)
	}
	return nil
}

func startService(backend wifi.Backend, logger *slog.Logger) error {
	state, err := backend.ServiceState()
	if err != nil {
		logger.Info("Cannot get the NetworkManager service state", "error", err)
		return nil
	}
	if state == wifi.ServiceStateActive {
		logger.Debug("NetworkManager service already running")
		return nil
	}

	logger.Info("Starting NetworkManager service", "state", state)
	state, err = backend.StartService(serviceStartTimeout)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStartService, err)
	}
	if state != wifi.ServiceStateActive {
		return fmt.Errorf("%w: %s", ErrServiceNotActive, state)
	}
	logger.Info("NetworkManager service started successfully")
	return nil
}

func deleteStalePortal(backend wifi.Backend, ssid string, logger *slog.Logger) error {
	conns, err := backend.Connections()
	if err != nil {
		return err
	}
	for _, conn := range conns {
		settings, err := conn.Settings()
		if err != nil {
			logger.Debug("skipping unreadable connection profile", "error", err)
			continue
		}
		if settings.IsAccessPoint() && settings.SameSSID(ssid) {
			logger.Info("Deleting stale access point connection profile", "ssid", settings.SSID)
			if err := conn.Delete(); err != nil {
				return err
			}
		}
	}
	return nil
}

// FindDevice returns the named interface, or the first managed WiFi device
// when iface is empty.
func FindDevice(backend wifi.Backend, iface string, logger *slog.Logger) (wifi.Device, error) {
	if iface != "" {
		device, err := backend.DeviceByInterface(iface)
		if err != nil {
			return nil, fmt.Errorf("%w %s: %w", ErrDeviceByInterface, iface, err)
		}
		logger.Info("Targeted WiFi device", "interface", iface)

		if device.Type() != wifi.DeviceTypeWiFi {
			return nil, fmt.Errorf("%s: %w", iface, wifi.ErrNotAWiFiDevice)
		}
		state, err := device.State()
		if err != nil {
			return nil, fmt.Errorf("get state of %s: %w", iface, err)
		}
		if state == wifi.DeviceStateUnmanaged {
			return nil, fmt.Errorf("%s: %w", iface, wifi.ErrUnmanagedDevice)
		}
		return device, nil
	}

	devices, err := backend.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	for _, device := range devices {
		if device.Type() != wifi.DeviceTypeWiFi {
			continue
		}
		state, err := device.State()
		if err != nil {
			return nil, fmt.Errorf("get state of %s: %w", device.Interface(), err)
		}
		if state != wifi.DeviceStateUnmanaged {
			logger.Info("WiFi device", "interface", device.Interface())
			return device, nil
		}
	}
	return nil, ErrNoWiFiDevice
}
