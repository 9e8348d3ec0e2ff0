package main

import (
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// qrcodeSize is the edge length in pixels of the PNG served by the portal.
const qrcodeSize = 256

// EscapeWifiString handles the special character escaping for SSID and Password.
func EscapeWifiString(s string) string {
	// A replacer is more efficient than calling strings.Replace multiple times.
	r := strings.NewReplacer(
		`\`, `\\`,
		`;`, `\;`,
		`,`, `\,`,
		`:`, `\:`,
		`"`, `\"`,
	)
	return r.Replace(s)
}

// wifiQRContent builds the Wi-Fi join string for the portal network, which
// is either open or WPA2-PSK.
func wifiQRContent(ssid, passphrase string) string {
	var b strings.Builder

	b.WriteString("WIFI:S:")
	b.WriteString(EscapeWifiString(ssid))
	b.WriteString(";")

	if passphrase == "" {
		b.WriteString("T:nopass;")
	} else {
		b.WriteString("T:WPA;P:")
		b.WriteString(EscapeWifiString(passphrase))
		b.WriteString(";")
	}

	b.WriteString(";")
	return b.String()
}

// GenerateWifiQRCode returns the portal join code rendered for a terminal.
func GenerateWifiQRCode(ssid, passphrase string) (string, error) {
	q, err := qrcode.New(wifiQRContent(ssid, passphrase), qrcode.Medium)
	if err != nil {
		return "", err
	}
	return q.ToSmallString(false), nil
}

// GenerateWifiQRCodePNG returns the portal join code as a PNG image.
func GenerateWifiQRCodePNG(ssid, passphrase string) ([]byte, error) {
	return qrcode.Encode(wifiQRContent(ssid, passphrase), qrcode.Medium, qrcodeSize)
}
