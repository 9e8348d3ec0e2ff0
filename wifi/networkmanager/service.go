//go:build linux

package networkmanager

import (
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/shazow/wifi-connect/wifi"
)

const (
	serviceUnit = "NetworkManager.service"

	systemdDest         = "org.freedesktop.systemd1"
	systemdPath         = "/org/freedesktop/systemd1"
	systemdManagerIface = "org.freedesktop.systemd1.Manager"
	systemdUnitIface    = "org.freedesktop.systemd1.Unit"

	servicePollInterval = time.Second
)

// Service controls a systemd unit over the system bus.
type Service struct {
	conn *dbus.Conn
	unit string
}

// NewService connects to systemd for the named unit.
func NewService(unit string) (*Service, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	return &Service{conn: conn, unit: unit}, nil
}

func (s *Service) unitPath() (dbus.ObjectPath, error) {
	var path dbus.ObjectPath
	obj := s.conn.Object(systemdDest, systemdPath)
	err := obj.Call(systemdManagerIface+".LoadUnit", 0, s.unit).Store(&path)
	if err != nil {
		return "", fmt.Errorf("load unit %s: %w", s.unit, err)
	}
	return path, nil
}

// State returns the unit's ActiveState.
func (s *Service) State() (wifi.ServiceState, error) {
	path, err := s.unitPath()
	if err != nil {
		return wifi.ServiceStateUnknown, err
	}
	v, err := s.conn.Object(systemdDest, path).GetProperty(systemdUnitIface + ".ActiveState")
	if err != nil {
		return wifi.ServiceStateUnknown, fmt.Errorf("get %s state: %w", s.unit, err)
	}
	state, ok := v.Value().(string)
	if !ok {
		return wifi.ServiceStateUnknown, fmt.Errorf("unexpected ActiveState %v: %w", v, wifi.ErrOperationFailed)
	}
	return parseServiceState(state), nil
}

// Start asks systemd to start the unit and polls until it leaves the
// transitional states or the timeout elapses.
func (s *Service) Start(timeout time.Duration) (wifi.ServiceState, error) {
	var job dbus.ObjectPath
	obj := s.conn.Object(systemdDest, systemdPath)
	if err := obj.Call(systemdManagerIface+".StartUnit", 0, s.unit, "replace").Store(&job); err != nil {
		return wifi.ServiceStateUnknown, fmt.Errorf("start unit %s: %w", s.unit, err)
	}

	deadline := time.Now().Add(timeout)
	for {
		state, err := s.State()
		if err != nil {
			return state, err
		}
		if state != wifi.ServiceStateActivating && state != wifi.ServiceStateReloading {
			return state, nil
		}
		if time.Now().After(deadline) {
			return state, nil
		}
		time.Sleep(servicePollInterval)
	}
}

func parseServiceState(s string) wifi.ServiceState {
	switch s {
	case "active":
		return wifi.ServiceStateActive
	case "reloading":
		return wifi.ServiceStateReloading
	case "inactive":
		return wifi.ServiceStateInactive
	case "failed":
		return wifi.ServiceStateFailed
	case "activating":
		return wifi.ServiceStateActivating
	case "deactivating":
		return wifi.ServiceStateDeactivating
	default:
		return wifi.ServiceStateUnknown
	}
}
