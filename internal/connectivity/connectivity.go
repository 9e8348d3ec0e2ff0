// Package connectivity probes outbound internet reachability over HTTP.
package connectivity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const DefaultURL = "https://www.google.com"

var ErrNoInternet = errors.New("no internet connection")

// Prober checks reachability by issuing a GET request and expecting a 2xx status.
type Prober struct {
	URL    string
	Client *http.Client
}

// New returns a Prober for url using a client with the given timeout.
func New(url string, timeout time.Duration) *Prober {
	if url == "" {
		url = DefaultURL
	}
	return &Prober{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

// Check returns nil when the probe URL answered with a success status.
func (p *Prober) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send get request: %w", errors.Join(ErrNoInternet, err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("probe %s returned %s: %w", p.URL, resp.Status, ErrNoInternet)
	}
	return nil
}

// Watch probes every interval until a probe succeeds, then calls onConnected
// once and returns. It returns early without calling onConnected when ctx ends.
func (p *Prober) Watch(ctx context.Context, interval time.Duration, logger *slog.Logger, onConnected func()) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		err := p.Check(ctx)
		if err == nil {
			logger.Info("Internet connected")
			onConnected()
			return
		}
		logger.Debug("connectivity probe failed", "url", p.URL, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
