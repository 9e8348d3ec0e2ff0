// Package server serves the captive portal UI and its API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shazow/wifi-connect/internal/exit"
	"github.com/shazow/wifi-connect/internal/network"
)

const (
	// responseTimeout bounds the wait for the network list.
	responseTimeout = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

var ErrListen = errors.New("portal server failed")

// LogSource provides recent and live log records for /events.
type LogSource interface {
	Logs() []slog.Record
	Subscribe() (<-chan slog.Record, func())
}

// Config is where and what the server serves.
type Config struct {
	// Addr is the host:port to listen on.
	Addr string
	// Gateway is the portal address unknown paths redirect to.
	Gateway     net.IP
	UIDirectory string
}

// Options are the server's collaborators. Only Commands and Responses are
// required.
type Options struct {
	Commands  chan<- network.Command
	Responses <-chan network.Response
	Exit      *exit.Channel

	// Gatherer enables /metrics when set.
	Gatherer prometheus.Gatherer
	// Logs enables /events when set.
	Logs LogSource
	// QRCode renders the portal join code for /qrcode.png when set.
	QRCode func() ([]byte, error)

	// Listen opens the listening socket, net.Listen if nil.
	Listen func(string, string) (net.Listener, error)

	Logger *slog.Logger
}

// Server is the portal HTTP server.
type Server struct {
	cfg       Config
	commands  chan<- network.Command
	responses <-chan network.Response
	exit      *exit.Channel
	gatherer  prometheus.Gatherer
	logs      LogSource
	qrcode    func() ([]byte, error)
	listen    func(string, string) (net.Listener, error)
	logger    *slog.Logger

	// networksMu pairs each /networks request with its response.
	networksMu      sync.Mutex
	responseTimeout time.Duration

	http *http.Server
}

// New builds a Server.
func New(cfg Config, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Exit == nil {
		opts.Exit = exit.NewChannel()
	}
	if opts.Listen == nil {
		opts.Listen = net.Listen
	}
	s := &Server{
		cfg:             cfg,
		commands:        opts.Commands,
		responses:       opts.Responses,
		exit:            opts.Exit,
		gatherer:        opts.Gatherer,
		logs:            opts.Logs,
		qrcode:          opts.QRCode,
		listen:          opts.Listen,
		logger:          opts.Logger.With("component", "server"),
		responseTimeout: responseTimeout,
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router returns the HTTP handler with every route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)

	r.Get("/networks", s.handleNetworks)
	r.Post("/connect", s.handleConnect)
	r.Post("/restart", s.handleRestart)

	if s.qrcode != nil {
		r.Get("/qrcode.png", s.handleQRCode)
	}
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.logs != nil {
		r.Get("/events", s.handleEvents)
	}

	r.NotFound(s.handleStatic)
	r.MethodNotAllowed(s.handleStatic)
	return r
}

// ListenAndServe blocks serving the portal. Any failure other than a
// shutdown is reported on the exit channel.
func (s *Server) ListenAndServe() error {
	s.logger.Info("Starting HTTP server", "addr", s.http.Addr)
	l, err := s.listen("tcp", s.http.Addr)
	if err == nil {
		err = s.http.Serve(l)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	err = fmt.Errorf("%w: %w", ErrListen, err)
	s.exit.Fail(err)
	return err
}

// Shutdown stops the server, waiting for in-flight requests for a while.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// handleStatic serves files from the UI directory and sends everything else
// to the portal root, which is what triggers captive portal detection.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		name := path.Clean("/" + r.URL.Path)
		full := filepath.Join(s.cfg.UIDirectory, filepath.FromSlash(name))
		if info, err := os.Stat(full); err == nil {
			if !info.IsDir() {
				http.ServeFile(w, r, full)
				return
			}
			if _, err := os.Stat(filepath.Join(full, "index.html")); err == nil {
				http.ServeFile(w, r, filepath.Join(full, "index.html"))
				return
			}
		}
	}
	http.Redirect(w, r, "http://"+s.cfg.Gateway.String()+"/", http.StatusFound)
}
