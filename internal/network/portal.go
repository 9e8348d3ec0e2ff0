package network

import (
	"errors"
	"fmt"
	"time"

	"github.com/shazow/wifi-connect/internal/exit"
	"github.com/shazow/wifi-connect/wifi"
)

// startPortal rescans and brings up the hotspot, then the helper if it is
// not already running.
func (h *Handler) startPortal() error {
	aps, err := Discover(h.device, h.timings.ScanRetries, h.timings.ScanInterval, h.logger)
	if err != nil {
		return err
	}
	h.accessPoints = aps
	h.metrics.AccessPoints.Set(float64(len(aps)))

	h.logger.Info("Starting access point...")
	conn, err := h.device.CreateHotspot(wifi.HotspotConfig{
		SSID:       h.portalConfig.SSID,
		Passphrase: h.portalConfig.Passphrase,
		Gateway:    h.portalConfig.Gateway,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreatePortal, err)
	}
	h.portal = conn
	h.setState(StatePortalUp)
	h.metrics.PortalStarts.Inc()
	h.logger.Info("Access point created", "ssid", h.portalConfig.SSID)

	if h.helper == nil && h.startHelper != nil {
		helper, err := h.startHelper(h.device.Interface())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStartHelper, err)
		}
		h.helper = helper
	}
	return nil
}

// stopPortal deactivates and deletes the hotspot profile. Without a profile
// it only logs a warning. The cached state is cleared even on failure so a
// later retry does not act on a dead profile.
func (h *Handler) stopPortal() error {
	if h.portal == nil {
		h.logger.Warn("No connection to deactivate or delete.")
		h.setState(StateNoPortal)
		return nil
	}

	h.logger.Info("Stopping access point...", "ssid", h.portalConfig.SSID)
	conn := h.portal
	h.portal = nil
	h.setState(StateNoPortal)

	if err := conn.Deactivate(); err != nil {
		h.logger.Warn("Deactivating access point failed", "error", err)
	}
	if err := conn.Delete(); err != nil {
		return fmt.Errorf("%w: %w", ErrStopPortal, err)
	}
	time.Sleep(h.timings.SettleDelay)
	h.logger.Info("Access point stopped", "ssid", h.portalConfig.SSID)
	return nil
}

func (h *Handler) stopHelper() error {
	if h.helper == nil {
		return nil
	}
	helper := h.helper
	h.helper = nil
	if err := helper.Stop(); err != nil {
		return fmt.Errorf("%w: %w", ErrStopHelper, err)
	}
	return nil
}

// reload drops the portal but keeps the helper, so the next loop iteration
// can scan with a free radio and bring up a fresh hotspot.
func (h *Handler) reload() error {
	return h.stopPortal()
}

// stop tears everything down and reports event.
func (h *Handler) stop(event exit.Event) error {
	return h.finish(exit.Result{Event: event})
}

// teardown is the safety net for a handler that ended without stop.
func (h *Handler) teardown(cause error) {
	if cause != nil {
		h.logger.Error("Command handler exited unexpectedly", "error", cause)
	}
	if err := h.finish(exit.Result{Event: exit.UnexpectedExit, Err: cause}); err != nil {
		h.logger.Error("Teardown failed", "error", err)
	}
}

// finish runs every teardown step even if an earlier one fails, then sends r.
// It only ever runs once.
func (h *Handler) finish(r exit.Result) error {
	if h.stopped {
		return nil
	}
	h.stopped = true

	err := errors.Join(h.stopPortal(), h.stopHelper())
	h.setState(StateTerminal)
	h.exit.Send(r)
	return err
}
