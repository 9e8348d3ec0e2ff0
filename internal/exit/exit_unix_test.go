//go:build unix

package exit

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalTrap_RepeatedSignals(t *testing.T) {
	trap := NewSignalTrap()
	defer trap.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan os.Signal, 4)
	go trap.Wait(ctx, func(sig os.Signal) { got <- sig })

	for i := 0; i < 2; i++ {
		require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGHUP))
		select {
		case sig := <-got:
			assert.Equal(t, syscall.SIGHUP, sig)
		case <-time.After(2 * time.Second):
			t.Fatalf("signal %d was not caught", i+1)
		}
	}
}

func TestSignalTrap_CaughtBeforeWait(t *testing.T) {
	trap := NewSignalTrap()
	defer trap.Stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGHUP))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var got os.Signal
	trap.Wait(ctx, func(sig os.Signal) {
		got = sig
		cancel()
	})
	assert.Equal(t, syscall.SIGHUP, got)
}
