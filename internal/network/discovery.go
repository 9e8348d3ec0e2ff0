package network

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shazow/wifi-connect/wifi"
)

// FilterAccessPoints drops undecodable SSIDs, keeps the first access point
// seen for each SSID and then drops hidden (empty) SSIDs. Order is preserved.
func FilterAccessPoints(aps []wifi.AccessPoint) []wifi.AccessPoint {
	seen := make(map[string]struct{}, len(aps))
	out := make([]wifi.AccessPoint, 0, len(aps))
	for _, ap := range aps {
		if !ap.ValidSSID() {
			continue
		}
		if _, ok := seen[ap.SSID]; ok {
			continue
		}
		seen[ap.SSID] = struct{}{}
		if ap.SSID == "" {
			continue
		}
		out = append(out, ap)
	}
	return out
}

// Discover scans device until it reports at least one usable access point.
// After retries empty scans it gives up and returns an empty list; results
// can lag for a while after a hotspot is torn down. A scan error is returned
// immediately.
func Discover(device wifi.Device, retries int, interval time.Duration, logger *slog.Logger) ([]wifi.AccessPoint, error) {
	for attempt := 1; attempt <= retries; attempt++ {
		aps, err := device.AccessPoints()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoAccessPoints, err)
		}

		aps = FilterAccessPoints(aps)
		if len(aps) > 0 {
			logger.Info("Access points", "ssids", ssids(aps))
			return aps, nil
		}

		logger.Debug("No access points found", "retry", attempt)
		time.Sleep(interval)
	}

	logger.Warn("No access points found - giving up...")
	return []wifi.AccessPoint{}, nil
}

func findAccessPoint(aps []wifi.AccessPoint, ssid string) (wifi.AccessPoint, bool) {
	for _, ap := range aps {
		if ap.ValidSSID() && ap.SSID == ssid {
			return ap, true
		}
	}
	return wifi.AccessPoint{}, false
}

func ssids(aps []wifi.AccessPoint) []string {
	out := make([]string, len(aps))
	for i, ap := range aps {
		out[i] = ap.SSID
	}
	return out
}
