// Package dnsmasq runs the DHCP and catch-all DNS helper for the portal.
package dnsmasq

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"syscall"
	"time"
)

const (
	binary      = "dnsmasq"
	stopTimeout = 5 * time.Second
)

var ErrStartDnsmasq = errors.New("start dnsmasq failed")

// Config holds the addressing handed out on the portal network.
type Config struct {
	Gateway   net.IP
	DHCPRange string
	Interface string
}

// Args returns the dnsmasq command line for cfg.
func (cfg Config) Args() []string {
	gw := cfg.Gateway.String()
	return []string{
		"--address=/#/" + gw,
		"--dhcp-range=" + cfg.DHCPRange,
		"--dhcp-option=option:router," + gw,
		"--interface=" + cfg.Interface,
		"--keep-in-foreground",
		"--bind-interfaces",
		"--except-interface=lo",
		"--conf-file",
		"--no-hosts",
	}
}

// Process is a running dnsmasq child.
type Process struct {
	cmd    *exec.Cmd
	done   chan error
	logger *slog.Logger
}

// Start launches dnsmasq for cfg. The child's output goes to stderr.
func Start(cfg Config, logger *slog.Logger) (*Process, error) {
	return start(binary, cfg.Args(), logger)
}

func start(name string, args []string, logger *slog.Logger) (*Process, error) {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStartDnsmasq, err)
	}
	logger.Debug("dnsmasq started", "pid", cmd.Process.Pid, "args", args)

	p := &Process{cmd: cmd, done: make(chan error, 1), logger: logger}
	go func() {
		p.done <- cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// Stop terminates the process, escalating to SIGKILL if it lingers.
// Stopping an already exited process is not an error.
func (p *Process) Stop() error {
	select {
	case <-p.done:
		return nil
	default:
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signal dnsmasq: %w", err)
	}

	select {
	case <-p.done:
	case <-time.After(stopTimeout):
		p.logger.Warn("dnsmasq did not exit, killing", "pid", p.cmd.Process.Pid)
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill dnsmasq: %w", err)
		}
		<-p.done
	}
	p.logger.Debug("dnsmasq stopped")
	return nil
}
