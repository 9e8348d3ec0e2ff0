package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/shazow/wifi-connect/internal/config"
	"github.com/shazow/wifi-connect/internal/log"
)

var (
	// Version is the version of the application. It is set at build time.
	Version string = "dev"
)

// main is the entry point of the application
func main() {
	var (
		cfg         config.Config
		rootFlagSet = flag.NewFlagSet("wifi-connect", flag.ExitOnError)
		version     = rootFlagSet.Bool("version", false, "display version")
	)
	cfg.RegisterFlags(rootFlagSet)

	var logs *log.RecordHandler

	scanFlagSet := flag.NewFlagSet("scan", flag.ExitOnError)
	scanJSON := scanFlagSet.Bool("json", false, "output in JSON format")
	scanCmd := &ffcli.Command{
		Name:       "scan",
		ShortUsage: "wifi-connect [flags] scan [-json]",
		ShortHelp:  "List the networks the portal would offer",
		FlagSet:    scanFlagSet,
		Exec: func(ctx context.Context, args []string) error {
			logger := slog.Default()
			b, err := GetBackend(logger)
			if err != nil {
				return err
			}
			return runScan(os.Stdout, *scanJSON, b, cfg.Interface, logger)
		},
	}

	qrcodeCmd := &ffcli.Command{
		Name:       "qrcode",
		ShortUsage: "wifi-connect [flags] qrcode",
		ShortHelp:  "Print a QR code for joining the portal network",
		FlagSet:    flag.NewFlagSet("qrcode", flag.ExitOnError),
		Exec: func(ctx context.Context, args []string) error {
			return runQRCode(os.Stdout, cfg.SSID, cfg.Passphrase)
		},
	}

	root := &ffcli.Command{
		ShortUsage:  "wifi-connect [flags] [<subcommand>]",
		ShortHelp:   "Captive portal for configuring WiFi on headless devices",
		FlagSet:     rootFlagSet,
		Options:     config.Options(),
		Subcommands: []*ffcli.Command{scanCmd, qrcodeCmd},
		Exec: func(ctx context.Context, args []string) error {
			return runDaemon(ctx, &cfg, logs, slog.Default())
		},
	}

	if err := root.Parse(os.Args[1:]); err != nil {
		reportError(os.Stderr, fmt.Errorf("error parsing flags: %w", err))
		os.Exit(1)
	}

	if *version {
		fmt.Println(Version)
		os.Exit(0)
	}

	if err := cfg.Validate(); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}

	level, _ := cfg.Level()
	logs = log.Init(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := root.Run(context.Background()); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}
