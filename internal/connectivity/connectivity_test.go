package connectivity

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCheck(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ok.Close()

	p := New(ok.URL, time.Second)
	assert.NoError(t, p.Check(context.Background()))
}

func TestCheck_BadStatus(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer bad.Close()

	p := New(bad.URL, time.Second)
	assert.ErrorIs(t, p.Check(context.Background()), ErrNoInternet)
}

func TestCheck_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := New(url, time.Second)
	assert.ErrorIs(t, p.Check(context.Background()), ErrNoInternet)
}

func TestNew_DefaultURL(t *testing.T) {
	assert.Equal(t, DefaultURL, New("", time.Second).URL)
}

func TestWatch(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(srv.URL, time.Second)
	connected := make(chan struct{})
	go p.Watch(context.Background(), 5*time.Millisecond, discard(), func() { close(connected) })

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("watch never reported connectivity")
	}
	require.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestWatch_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(srv.URL, time.Second).Watch(ctx, time.Hour, discard(), func() { t.Error("unexpected connectivity") })
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop on cancel")
	}
}
