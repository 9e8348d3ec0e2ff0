//go:build linux && !mock

package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/shazow/wifi-connect/wifi"
	"github.com/shazow/wifi-connect/wifi/networkmanager"
)

func GetBackend(logger *slog.Logger) (wifi.Backend, error) {
	b, err := networkmanager.New(logger)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// checkPrivileges fails unless running as root, which NetworkManager and
// dnsmasq need for creating the portal.
func checkPrivileges() error {
	if os.Geteuid() != 0 {
		return errors.New("wifi-connect must be run as root")
	}
	return nil
}
