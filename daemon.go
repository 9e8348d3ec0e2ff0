package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shazow/wifi-connect/internal/config"
	"github.com/shazow/wifi-connect/internal/connectivity"
	"github.com/shazow/wifi-connect/internal/dnsmasq"
	"github.com/shazow/wifi-connect/internal/exit"
	"github.com/shazow/wifi-connect/internal/metrics"
	"github.com/shazow/wifi-connect/internal/network"
	"github.com/shazow/wifi-connect/internal/server"
	"github.com/shazow/wifi-connect/wifi"
)

const (
	probeTimeout  = 10 * time.Second
	commandBuffer = 16
)

// runDaemon is the root command: it returns nil for every orderly exit and
// an error for startup failures and unexpected handler exits.
func runDaemon(ctx context.Context, cfg *config.Config, logs server.LogSource, logger *slog.Logger) error {
	// Signals stay caught until teardown is over. One arriving during
	// startup is handled as soon as the handler runs.
	signals := exit.NewSignalTrap()
	defer signals.Stop()

	if err := checkPrivileges(); err != nil {
		return err
	}

	prober := connectivity.New(cfg.CheckURL, probeTimeout)
	if err := prober.Check(ctx); err == nil {
		logger.Info("Internet connected, skipping wifi-connect")
		return nil
	}

	backend, err := GetBackend(logger)
	if err != nil {
		return fmt.Errorf("failed to initialize backend: %w", err)
	}
	if err := network.Init(backend, cfg.SSID, logger); err != nil {
		return err
	}
	device, err := network.FindDevice(backend, cfg.Interface, logger)
	if err != nil {
		return err
	}

	d := &daemon{
		cfg:     cfg,
		backend: backend,
		device:  device,
		prober:  prober,
		signals: signals,
		startHelper: func(iface string) (network.Helper, error) {
			p, err := dnsmasq.Start(dnsmasq.Config{
				Gateway:   cfg.GatewayIP(),
				DHCPRange: cfg.DHCPRange,
				Interface: iface,
			}, logger)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		qrcode: func() ([]byte, error) {
			return GenerateWifiQRCodePNG(cfg.SSID, cfg.Passphrase)
		},
		logs:    logs,
		logger:  logger,
		timings: network.DefaultTimings(),
	}

	result := d.run(ctx)
	if result.Err != nil {
		logger.Error("Exiting", "event", result.Event, "error", result.Err)
		return result.Err
	}
	logger.Info("Exiting", "event", result.Event)
	return nil
}

// daemon runs the command handler alongside its producers and waits for the
// single exit result.
type daemon struct {
	cfg         *config.Config
	backend     wifi.Backend
	device      wifi.Device
	prober      *connectivity.Prober
	signals     *exit.SignalTrap
	listen      func(string, string) (net.Listener, error)
	startHelper func(iface string) (network.Helper, error)
	qrcode      func() ([]byte, error)
	logs        server.LogSource
	logger      *slog.Logger
	timings     network.Timings
}

func (d *daemon) run(ctx context.Context) exit.Result {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	exitCh := exit.NewChannel()
	commands := make(chan network.Command, commandBuffer)
	responses := make(chan network.Response, 1)

	var gatherer prometheus.Gatherer
	var reg *prometheus.Registry
	if d.cfg.Metrics {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		gatherer = reg
	}
	m := metrics.New(registerer(reg))

	portalUp := make(chan struct{})
	handler := network.NewHandler(d.backend, d.device, network.Options{
		Portal: network.PortalConfig{
			SSID:       d.cfg.SSID,
			Passphrase: d.cfg.Passphrase,
			Gateway:    d.cfg.GatewayIP(),
		},
		Commands:    commands,
		Responses:   responses,
		Exit:        exitCh,
		StartHelper: d.startHelper,
		OnPortalUp:  func() { close(portalUp) },
		Metrics:     m,
		Logger:      d.logger,
		Timings:     d.timings,
	})
	handlerDone := make(chan struct{})
	go func() {
		defer close(handlerDone)
		if err := handler.Run(); err != nil {
			d.logger.Debug("command handler returned", "error", err)
		}
	}()

	enqueue := func(cmd network.Command) {
		select {
		case commands <- cmd:
		case <-handlerDone:
		case <-ctx.Done():
		}
	}

	if d.signals != nil {
		exiting := false
		go d.signals.Wait(ctx, func(sig os.Signal) {
			if exiting {
				d.logger.Warn("Already exiting, ignoring signal", "signal", sig)
				return
			}
			exiting = true
			d.logger.Info("Received exit signal", "signal", sig)
			enqueue(network.Command{Kind: network.Exit})
		})
	}
	go exit.AfterTimeout(ctx, d.cfg.ActivityTimeout, func() {
		enqueue(network.Command{Kind: network.Timeout})
	})
	go d.prober.Watch(ctx, d.cfg.CheckInterval, d.logger, func() {
		exitCh.Event(exit.InternetConnected)
	})

	srv := server.New(server.Config{
		Addr:        d.cfg.ListenAddr(),
		Gateway:     d.cfg.GatewayIP(),
		UIDirectory: d.cfg.UIDirectory,
	}, server.Options{
		Commands:  commands,
		Responses: responses,
		Exit:      exitCh,
		Gatherer:  gatherer,
		Logs:      d.logs,
		QRCode:    d.qrcode,
		Listen:    d.listen,
		Logger:    d.logger,
	})
	// The gateway address does not exist until the hotspot is up.
	go func() {
		select {
		case <-portalUp:
			srv.ListenAndServe()
		case <-handlerDone:
		case <-ctx.Done():
		}
	}()

	result, err := exitCh.Wait(ctx)
	if err != nil {
		// Cancelled from outside; treat like a trapped signal.
		result = exit.Result{Event: exit.ExitSignal}
	}

	// The handler may still own the portal if someone else decided the
	// outcome. Ask it to tear down and wait for it either way.
	select {
	case commands <- network.Command{Kind: network.Exit}:
	case <-handlerDone:
	}
	<-handlerDone

	if err := srv.Shutdown(context.Background()); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		d.logger.Warn("HTTP server shutdown failed", "error", err)
	}
	return result
}

// registerer avoids handing metrics.New a typed nil.
func registerer(reg *prometheus.Registry) prometheus.Registerer {
	if reg == nil {
		return nil
	}
	return reg
}
