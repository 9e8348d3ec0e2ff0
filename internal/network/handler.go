package network

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/shazow/wifi-connect/internal/exit"
	"github.com/shazow/wifi-connect/internal/metrics"
	"github.com/shazow/wifi-connect/wifi"
)

// State is the Handler's position in the portal lifecycle.
type State int

const (
	// StateNoPortal means no hotspot is held; the next loop iteration creates one.
	StateNoPortal State = iota
	// StatePortalUp means the hotspot is live but no client has loaded the UI.
	StatePortalUp
	// StatePortalActive means the UI has fetched the network list.
	StatePortalActive
	// StateConnecting means a WiFiConnect attempt is in flight.
	StateConnecting
	// StateTerminal means an exit event was sent; nothing else happens.
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateNoPortal:
		return "NoPortal"
	case StatePortalUp:
		return "PortalUp"
	case StatePortalActive:
		return "PortalActive"
	case StateConnecting:
		return "Connecting"
	case StateTerminal:
		return "Terminal"
	default:
		return "Unknown"
	}
}

// Helper is a running DHCP/DNS helper process paired with the portal.
type Helper interface {
	Stop() error
}

// Timings are the delays used by the Handler.
type Timings struct {
	ScanRetries         int
	ScanInterval        time.Duration
	SettleDelay         time.Duration
	IdleInterval        time.Duration
	ConnectivityTimeout time.Duration
	PollInterval        time.Duration
}

// DefaultTimings returns the production delays.
func DefaultTimings() Timings {
	return Timings{
		ScanRetries:         10,
		ScanInterval:        time.Second,
		SettleDelay:         time.Second,
		IdleInterval:        2 * time.Second,
		ConnectivityTimeout: 30 * time.Second,
		PollInterval:        time.Second,
	}
}

// PortalConfig describes the hotspot the Handler brings up.
type PortalConfig struct {
	SSID       string
	Passphrase string
	Gateway    net.IP
}

// Options configures a Handler.
type Options struct {
	Portal PortalConfig

	// Commands is the handler's only input. Closing it is a fatal error.
	Commands <-chan Command
	// Responses receives network lists for ActivatePortal. Sends never block;
	// the channel should be buffered.
	Responses chan<- Response
	Exit      *exit.Channel

	// StartHelper launches the DHCP/DNS helper on the portal interface. If
	// nil, no helper is run.
	StartHelper func(iface string) (Helper, error)

	// OnPortalUp is called once, after the first hotspot and helper are up.
	// The gateway address is only assigned from then on.
	OnPortalUp func()

	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Timings Timings
}

// Handler owns the wireless device and the portal for its whole lifetime.
// All of its state is confined to the goroutine calling Run.
type Handler struct {
	backend wifi.Backend
	device  wifi.Device

	state        State
	portal       wifi.Connection
	helper       Helper
	accessPoints []wifi.AccessPoint
	stopped      bool

	portalConfig PortalConfig
	commands     <-chan Command
	responses    chan<- Response
	exit         *exit.Channel
	startHelper  func(iface string) (Helper, error)
	onPortalUp   func()
	metrics      *metrics.Metrics
	logger       *slog.Logger
	timings      Timings
}

// NewHandler returns a Handler for device. It does not touch the backend
// until Run is called.
func NewHandler(backend wifi.Backend, device wifi.Device, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.Exit == nil {
		opts.Exit = exit.NewChannel()
	}
	if opts.Timings == (Timings{}) {
		opts.Timings = DefaultTimings()
	}
	return &Handler{
		backend:      backend,
		device:       device,
		state:        StateNoPortal,
		portalConfig: opts.Portal,
		commands:     opts.Commands,
		responses:    opts.Responses,
		exit:         opts.Exit,
		startHelper:  opts.StartHelper,
		onPortalUp:   opts.OnPortalUp,
		metrics:      opts.Metrics,
		logger:       opts.Logger.With("component", "network"),
		timings:      opts.Timings,
	}
}

// State returns the current state. Only safe to call from the Run goroutine
// or after Run returned.
func (h *Handler) State() State {
	return h.state
}

func (h *Handler) setState(s State) {
	if h.state == s {
		return
	}
	h.logger.Debug("state transition", "from", h.state, "to", s)
	h.state = s
	h.metrics.SetPortalActive(s == StatePortalActive)
}

// Run processes commands until a terminal transition. Whatever ends Run, the
// portal and helper are torn down and exactly one exit result is sent.
func (h *Handler) Run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
		if !h.stopped {
			h.teardown(err)
		}
	}()

	for {
		if h.portal == nil {
			if err := h.startPortal(); err != nil {
				return err
			}
			if h.onPortalUp != nil {
				h.onPortalUp()
				h.onPortalUp = nil
			}
		}

		done, err := h.serve()
		if err != nil || done {
			return err
		}
	}
}

// serve handles commands until the handler is done or the portal has to be
// recreated.
func (h *Handler) serve() (done bool, err error) {
	for {
		cmd, err := h.receive()
		if err != nil {
			return false, err
		}
		h.metrics.Command(cmd.Kind.String())

		switch cmd.Kind {
		case ActivatePortal:
			h.activatePortal()

		case Timeout:
			if h.state == StatePortalActive {
				h.logger.Debug("Timeout ignored, portal is in use")
				continue
			}
			h.logger.Info("Timeout reached. Exiting...")
			return true, h.stop(exit.Timeout)

		case Exit:
			h.logger.Info("Signal for Exiting...")
			return true, h.stop(exit.ExitSignal)

		case WiFiConnect:
			if err := h.connectToWiFi(cmd.SSID, cmd.Identity, cmd.Passphrase); err != nil {
				h.metrics.ConnectResult(false)
				if errors.Is(err, ErrWiFiConnectionFailed) {
					h.logger.Error("WiFi connection failed", "ssid", cmd.SSID, "error", err)
				} else {
					h.logger.Error("Unknown error while connecting", "ssid", cmd.SSID, "error", err)
				}
				return false, h.reload()
			}
			h.metrics.ConnectResult(true)
			return true, h.stop(exit.WiFiConnected)

		case RestartApp:
			h.logger.Info("Restarting...")
			return false, h.reload()

		case CheckConnectivity:
			c, err := h.backend.Connectivity()
			if err != nil {
				h.logger.Debug("connectivity check failed", "error", err)
			} else if c == wifi.ConnectivityFull {
				h.logger.Info("Full internet connectivity")
				return true, h.stop(exit.InternetConnected)
			}
			time.Sleep(h.timings.IdleInterval)
		}
	}
}

// receive never blocks: an empty queue yields CheckConnectivity.
func (h *Handler) receive() (Command, error) {
	select {
	case cmd, ok := <-h.commands:
		if !ok {
			return Command{}, fmt.Errorf("%w: command channel closed", ErrRecvCommand)
		}
		return cmd, nil
	default:
		return Command{Kind: CheckConnectivity}, nil
	}
}

func (h *Handler) activatePortal() {
	h.setState(StatePortalActive)

	resp := Response{Networks: Networks(h.accessPoints)}
	select {
	case h.responses <- resp:
	default:
		h.logger.Warn("UI is not waiting for the network list, dropping it")
	}
}
