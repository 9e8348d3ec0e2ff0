package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/shazow/wifi-connect/internal/network"
	"github.com/shazow/wifi-connect/wifi"
)

const (
	scanRetries  = 3
	scanInterval = time.Second
)

var (
	signalHigh = lipgloss.AdaptiveColor{Light: "#00B300", Dark: "#00FF00"}
	signalLow  = lipgloss.AdaptiveColor{Light: "#D05F00", Dark: "#BC3C00"}
)

type scanResult struct {
	SSID     string `json:"ssid"`
	BSSID    string `json:"bssid,omitempty"`
	Security string `json:"security"`
	Strength uint8  `json:"strength"`
}

// runScan prints the networks the portal would offer, strongest first.
func runScan(w io.Writer, jsonOutput bool, backend wifi.Backend, iface string, logger *slog.Logger) error {
	device, err := network.FindDevice(backend, iface, logger)
	if err != nil {
		return err
	}
	aps, err := network.Discover(device, scanRetries, scanInterval, logger)
	if err != nil {
		return fmt.Errorf("failed to scan networks: %w", err)
	}
	wifi.SortAccessPoints(aps)

	if jsonOutput {
		results := make([]scanResult, 0, len(aps))
		for _, ap := range aps {
			results = append(results, scanResult{
				SSID:     ap.SSID,
				BSSID:    ap.BSSID,
				Security: ap.Security.Label(),
				Strength: ap.Strength,
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	r := lipgloss.NewRenderer(w)
	for _, ap := range aps {
		fmt.Fprintf(w, "%s\t%s\t%s\n", ap.SSID, ap.Security.Label(), formatStrength(r, ap.Strength))
	}
	return nil
}

// formatStrength colors the signal percentage along a low to high gradient.
func formatStrength(r *lipgloss.Renderer, strength uint8) string {
	high, low := signalHigh.Light, signalLow.Light
	if r.HasDarkBackground() {
		high, low = signalHigh.Dark, signalLow.Dark
	}
	start, _ := colorful.Hex(low)
	end, _ := colorful.Hex(high)
	blend := start.BlendRgb(end, float64(strength)/100.0)

	return r.NewStyle().Foreground(lipgloss.Color(blend.Hex())).Render(fmt.Sprintf("%d%%", strength))
}

// runQRCode prints the portal join code.
func runQRCode(w io.Writer, ssid, passphrase string) error {
	code, err := GenerateWifiQRCode(ssid, passphrase)
	if err != nil {
		return fmt.Errorf("failed to generate qr code: %w", err)
	}
	fmt.Fprint(w, code)
	fmt.Fprintf(w, "Scan to join %q\n", ssid)
	return nil
}
