//go:build mock

package main

import (
	"log/slog"

	"github.com/shazow/wifi-connect/wifi"
	mockBackend "github.com/shazow/wifi-connect/wifi/mock"
)

func GetBackend(logger *slog.Logger) (wifi.Backend, error) {
	logger.Warn("using the mock backend")
	return mockBackend.New(), nil
}

func checkPrivileges() error {
	return nil
}
