package overlay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/meshnet-io/meshconn/internal/pkg/log"
	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

var logger = log.Logger("core/overlay")

// Adapter supervises the external overlay-controller process (spec
// §4.9). It reads exactly one readiness line from the process's stdout —
// "<onion-address> <socks5-port>" — then leaves the process running for
// the adapter's lifetime.
type Adapter struct {
	cfg Config

	mu           sync.Mutex
	cmd          *exec.Cmd
	onionAddress string
	socks5       meshnet.Endpoint
	started      bool
}

func New(cfg Config) *Adapter {
	return &Adapter{cfg: cfg}
}

// Start launches the controller process and blocks until it reports
// readiness or cfg.StartTimeout elapses. The returned endpoint is the
// onion address the DHT manager (C4) should publish as the overlay DHT
// node's own endpoint (spec §4.9: "its onion address is published to the
// DHT manager as the overlay DHT node's own endpoint").
func (a *Adapter) Start(ctx context.Context) (meshnet.Endpoint, error) {
	if len(a.cfg.ControllerCommand) == 0 {
		return meshnet.Endpoint{}, ErrControllerNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.startTimeout())
	defer cancel()

	cmd := exec.Command(a.cfg.ControllerCommand[0], a.cfg.ControllerCommand[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return meshnet.Endpoint{}, err
	}
	if err := cmd.Start(); err != nil {
		return meshnet.Endpoint{}, err
	}

	var onion string
	var socksPort uint16
	readyCh := make(chan error, 1)
	go func() {
		var rerr error
		onion, socksPort, rerr = readReadyLine(stdout)
		readyCh <- rerr
	}()
	select {
	case err = <-readyCh:
	case <-ctx.Done():
		err = ErrControllerStartTimeout
	}
	if err != nil {
		_ = cmd.Process.Kill()
		return meshnet.Endpoint{}, err
	}

	a.mu.Lock()
	a.cmd = cmd
	a.onionAddress = onion
	a.socks5 = meshnet.NewV4(net.ParseIP("127.0.0.1"), socksPort)
	a.started = true
	a.mu.Unlock()

	go a.superviseExit()

	return meshnet.NewDomain(onion, a.cfg.LocalPort), nil
}

func (a *Adapter) superviseExit() {
	a.mu.Lock()
	cmd := a.cmd
	a.mu.Unlock()
	if cmd == nil {
		return
	}
	if err := cmd.Wait(); err != nil {
		logger.Warn("overlay controller process exited", "err", err)
	} else {
		logger.Warn("overlay controller process exited cleanly")
	}
}

// SOCKS5Endpoint is the outbound-tunneling SOCKS5 endpoint the controller
// reported, on loopback per spec §4.9 ("(loopback, localPort+2)" — the
// exact port is whatever the controller itself reports, not assumed).
func (a *Adapter) SOCKS5Endpoint() (meshnet.Endpoint, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.socks5, a.started
}

func (a *Adapter) OnionAddress() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.onionAddress, a.started
}

// Stop terminates the controller process.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	cmd := a.cmd
	a.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func readReadyLine(r interface{ Read([]byte) (int, error) }) (onion string, socksPort uint16, err error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", 0, err
		}
		return "", 0, ErrControllerExited
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) != 2 {
		return "", 0, fmt.Errorf("%w: got %q", ErrMalformedReadyLine, scanner.Text())
	}
	port, err := strconv.ParseUint(fields[1], 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrMalformedReadyLine, err)
	}
	return fields[0], uint16(port), nil
}
