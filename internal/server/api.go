package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/shazow/wifi-connect/internal/network"
)

type connectRequest struct {
	SSID       string `json:"ssid"`
	Identity   string `json:"identity"`
	Passphrase string `json:"passphrase"`
}

func (s *Server) handleNetworks(w http.ResponseWriter, r *http.Request) {
	s.networksMu.Lock()
	defer s.networksMu.Unlock()

	// A response left over from a request that timed out would otherwise
	// answer this one.
	select {
	case <-s.responses:
	default:
	}

	if !s.send(w, r, network.Command{Kind: network.ActivatePortal}) {
		return
	}

	timer := time.NewTimer(s.responseTimeout)
	defer timer.Stop()

	select {
	case resp := <-s.responses:
		writeJSON(w, http.StatusOK, resp.Networks)
	case <-timer.C:
		s.logger.Warn("Timed out waiting for the network list")
		http.Error(w, "timed out waiting for networks", http.StatusGatewayTimeout)
	case <-r.Context().Done():
	}
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form body", http.StatusBadRequest)
			return
		}
		req = connectRequest{
			SSID:       r.PostForm.Get("ssid"),
			Identity:   r.PostForm.Get("identity"),
			Passphrase: r.PostForm.Get("passphrase"),
		}
	}

	if req.SSID == "" {
		http.Error(w, "ssid is required", http.StatusBadRequest)
		return
	}

	s.logger.Info("Incoming connection request", "ssid", req.SSID)
	cmd := network.Command{
		Kind:       network.WiFiConnect,
		SSID:       req.SSID,
		Identity:   req.Identity,
		Passphrase: req.Passphrase,
	}
	if s.send(w, r, cmd) {
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("Restart requested")
	if s.send(w, r, network.Command{Kind: network.RestartApp}) {
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) handleQRCode(w http.ResponseWriter, r *http.Request) {
	png, err := s.qrcode()
	if err != nil {
		s.logger.Error("Rendering QR code failed", "error", err)
		http.Error(w, "qr code unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// send enqueues cmd for the network handler, giving up if the client leaves.
func (s *Server) send(w http.ResponseWriter, r *http.Request, cmd network.Command) bool {
	select {
	case s.commands <- cmd:
		return true
	case <-r.Context().Done():
		http.Error(w, "request cancelled", http.StatusServiceUnavailable)
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
