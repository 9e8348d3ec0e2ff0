// Package config defines the daemon's settings and how they are parsed from
// flags, PORTAL_* environment variables and an optional TOML file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/peterbourgon/ff/v3"
)

// EnvPrefix is prepended to upper-cased flag names to form env var names.
const EnvPrefix = "PORTAL"

const (
	DefaultSSID          = "WiFi Connect"
	DefaultGateway       = "192.168.42.1"
	DefaultDHCPRange     = "192.168.42.2,192.168.42.254"
	DefaultListeningPort = 80
	DefaultUIDirectory   = "ui"
	DefaultCheckURL      = "https://www.google.com"
	DefaultCheckInterval = 10 * time.Second
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the daemon's runtime configuration.
type Config struct {
	SSID            string
	Passphrase      string
	Gateway         string
	DHCPRange       string
	Interface       string
	ListeningPort   int
	ActivityTimeout time.Duration
	UIDirectory     string
	CheckURL        string
	CheckInterval   time.Duration
	LogLevel        string
	Metrics         bool
	ConfigFile      string
}

// RegisterFlags binds c's fields to fs with their defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.SSID, "ssid", DefaultSSID, "SSID of the captive portal network (env: PORTAL_SSID)")
	fs.StringVar(&c.Passphrase, "passphrase", "", "WPA2 passphrase of the portal network, open if empty (env: PORTAL_PASSPHRASE)")
	fs.StringVar(&c.Gateway, "gateway", DefaultGateway, "gateway address of the portal network (env: PORTAL_GATEWAY)")
	fs.StringVar(&c.DHCPRange, "dhcp-range", DefaultDHCPRange, "DHCP range handed out on the portal network (env: PORTAL_DHCP_RANGE)")
	fs.StringVar(&c.Interface, "interface", "", "wireless interface to use, first managed WiFi device if empty (env: PORTAL_INTERFACE)")
	fs.IntVar(&c.ListeningPort, "listening-port", DefaultListeningPort, "portal web server port (env: PORTAL_LISTENING_PORT)")
	fs.DurationVar(&c.ActivityTimeout, "activity-timeout", 0, "exit if nobody uses the portal for this long, 0 disables (env: PORTAL_ACTIVITY_TIMEOUT)")
	fs.StringVar(&c.UIDirectory, "ui-directory", DefaultUIDirectory, "directory of static portal UI files (env: PORTAL_UI_DIRECTORY)")
	fs.StringVar(&c.CheckURL, "check-url", DefaultCheckURL, "URL probed to detect internet access (env: PORTAL_CHECK_URL)")
	fs.DurationVar(&c.CheckInterval, "check-interval", DefaultCheckInterval, "interval between internet probes (env: PORTAL_CHECK_INTERVAL)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "log level: debug, info, warn or error (env: PORTAL_LOG_LEVEL)")
	fs.BoolVar(&c.Metrics, "metrics", true, "serve prometheus metrics on /metrics (env: PORTAL_METRICS)")
	fs.StringVar(&c.ConfigFile, "config", "", "path to a TOML config file (env: PORTAL_CONFIG)")
}

// Options returns the ff options used to parse a flag set registered with
// RegisterFlags.
func Options() []ff.Option {
	return []ff.Option{
		ff.WithEnvVarPrefix(EnvPrefix),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(TOMLParser),
	}
}

// TOMLParser is an ff.ConfigFileParser for flat TOML files whose keys are
// flag names, e.g. `listening-port = 8080`.
func TOMLParser(r io.Reader, set func(name, value string) error) error {
	var values map[string]interface{}
	if _, err := toml.NewDecoder(r).Decode(&values); err != nil {
		return fmt.Errorf("parse toml: %w", err)
	}
	for name, v := range values {
		var s string
		switch v := v.(type) {
		case map[string]interface{}:
			return fmt.Errorf("%w: table %q is not supported", ErrInvalidConfig, name)
		case []interface{}:
			parts := make([]string, len(v))
			for i, p := range v {
				parts[i] = fmt.Sprint(p)
			}
			s = strings.Join(parts, ",")
		default:
			s = fmt.Sprint(v)
		}
		if err := set(name, s); err != nil {
			return err
		}
	}
	return nil
}

// GatewayIP returns the parsed gateway address, nil if invalid.
func (c *Config) GatewayIP() net.IP {
	return net.ParseIP(c.Gateway).To4()
}

// ListenAddr is the portal server's listen address.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Gateway, fmt.Sprint(c.ListeningPort))
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.LogLevel)
	}
	return level, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidConfig}, args...)...))
	}

	if c.SSID == "" || len(c.SSID) > 32 {
		invalid("ssid must be 1 to 32 bytes, got %d", len(c.SSID))
	}
	if c.Passphrase != "" && (len(c.Passphrase) < 8 || len(c.Passphrase) > 63) {
		invalid("passphrase must be 8 to 63 characters")
	}
	gw := c.GatewayIP()
	if gw == nil {
		invalid("gateway %q is not an IPv4 address", c.Gateway)
	}
	if err := c.validateDHCPRange(gw); err != nil {
		errs = append(errs, err)
	}
	if c.ListeningPort < 1 || c.ListeningPort > 65535 {
		invalid("listening port %d out of range", c.ListeningPort)
	}
	if c.ActivityTimeout < 0 {
		invalid("activity timeout must not be negative")
	}
	if c.CheckInterval <= 0 {
		invalid("check interval must be positive")
	}
	if c.CheckURL == "" {
		invalid("check url is required")
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) validateDHCPRange(gw net.IP) error {
	start, end, ok := strings.Cut(c.DHCPRange, ",")
	if !ok {
		return fmt.Errorf("%w: dhcp range %q must be start,end", ErrInvalidConfig, c.DHCPRange)
	}
	for _, s := range []string{start, end} {
		ip := net.ParseIP(strings.TrimSpace(s)).To4()
		if ip == nil {
			return fmt.Errorf("%w: dhcp range address %q is not IPv4", ErrInvalidConfig, s)
		}
		if gw != nil && !ip.Mask(net.CIDRMask(24, 32)).Equal(gw.Mask(net.CIDRMask(24, 32))) {
			return fmt.Errorf("%w: dhcp range address %s is outside the gateway's /24", ErrInvalidConfig, ip)
		}
	}
	return nil
}
