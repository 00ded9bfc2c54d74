package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/cephdeploy/pkg/log"
	"github.com/cuemby/cephdeploy/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHConfig configures the SSH transport
type SSHConfig struct {
	User           string
	Port           int
	KeyFile        string
	KnownHostsFile string
	DialTimeout    time.Duration
}

// SSHExecutor runs commands over one cached SSH connection per host
type SSHExecutor struct {
	cfg     SSHConfig
	hosts   map[string]types.Host
	auth    []ssh.AuthMethod
	hostKey ssh.HostKeyCallback

	mu      sync.Mutex
	clients map[string]*ssh.Client
	logger  zerolog.Logger
}

// NewSSHExecutor creates an executor for the given inventory
func NewSSHExecutor(cfg SSHConfig, hosts []types.Host) (*SSHExecutor, error) {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	if cfg.KeyFile == "" {
		return nil, fmt.Errorf("ssh key file is required")
	}

	key, err := os.ReadFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ssh key %s: %w", cfg.KeyFile, err)
	}

	logger := log.WithComponent("ssh")

	hostKey := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsFile != "" {
		hostKey, err = knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
	} else {
		logger.Warn().Msg("No known_hosts file configured, host keys are not verified")
	}

	byName := make(map[string]types.Host, len(hosts))
	for _, h := range hosts {
		byName[h.Name] = h
	}

	return &SSHExecutor{
		cfg:     cfg,
		hosts:   byName,
		auth:    []ssh.AuthMethod{ssh.PublicKeys(signer)},
		hostKey: hostKey,
		clients: make(map[string]*ssh.Client),
		logger:  logger,
	}, nil
}

// Run executes cmd on host
func (e *SSHExecutor) Run(ctx context.Context, host string, cmd Command) (*Result, error) {
	client, err := e.client(ctx, host)
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		e.drop(host)
		return nil, fmt.Errorf("failed to open session on %s: %w", host, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if cmd.Stdin != nil {
		session.Stdin = bytes.NewReader(cmd.Stdin)
	}

	line := cmd.Line()
	e.logger.Debug().Str("host", host).Str("cmd", cmd.String()).Msg("Running")

	done := make(chan error, 1)
	go func() {
		done <- session.Run(line)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		return nil, fmt.Errorf("command on %s interrupted: %w", host, ctx.Err())
	case err = <-done:
	}

	res := &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return res, nil
	}

	var exitErr *ssh.ExitError
	var missingErr *ssh.ExitMissingError
	switch {
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitStatus()
	case errors.As(err, &missingErr):
		res.ExitCode = -1
	default:
		e.drop(host)
		return nil, fmt.Errorf("ssh session on %s failed: %w", host, err)
	}

	return res, &CommandError{
		Host:     host,
		Command:  cmd.String(),
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
	}
}

// Close closes all cached connections
func (e *SSHExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	for name, c := range e.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(e.clients, name)
	}
	return errors.Join(errs...)
}

func (e *SSHExecutor) client(ctx context.Context, host string) (*ssh.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.clients[host]; ok {
		return c, nil
	}

	h, ok := e.hosts[host]
	if !ok {
		return nil, fmt.Errorf("unknown host %q", host)
	}
	addr := h.Address
	if addr == "" {
		addr = h.Name
	}
	user := h.User
	if user == "" {
		user = e.cfg.User
	}

	target := net.JoinHostPort(addr, strconv.Itoa(e.cfg.Port))
	dialer := net.Dialer{Timeout: e.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s (%s): %w", host, target, err)
	}

	sshConfig := &ssh.ClientConfig{
		User:            user,
		Auth:            e.auth,
		HostKeyCallback: e.hostKey,
		Timeout:         e.cfg.DialTimeout,
	}
	cc, chans, reqs, err := ssh.NewClientConn(conn, target, sshConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", host, err)
	}

	c := ssh.NewClient(cc, chans, reqs)
	e.clients[host] = c
	e.logger.Debug().Str("host", host).Str("addr", target).Msg("Connected")
	return c, nil
}

func (e *SSHExecutor) drop(host string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.clients[host]; ok {
		c.Close()
		delete(e.clients, host)
	}
}

// PeerAddress returns the primary network address used to reach host
func (e *SSHExecutor) PeerAddress(host string) (string, error) {
	h, ok := e.hosts[host]
	if !ok {
		return "", fmt.Errorf("unknown host %q", host)
	}
	if h.Address != "" {
		if ip := net.ParseIP(h.Address); ip != nil {
			return ip.String(), nil
		}
	}

	e.mu.Lock()
	c, ok := e.clients[host]
	e.mu.Unlock()
	if ok {
		if tcp, ok := c.RemoteAddr().(*net.TCPAddr); ok {
			return tcp.IP.String(), nil
		}
	}

	name := h.Address
	if name == "" {
		name = h.Name
	}
	addrs, err := net.LookupHost(name)
	if err != nil {
		return "", fmt.Errorf("cannot resolve address of %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("no address found for %s", host)
	}
	return addrs[0], nil
}
