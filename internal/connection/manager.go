package connection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"p2pmsg/internal/config"
	"p2pmsg/internal/domain"
	"p2pmsg/internal/handshake"
)

// Manager owns the TCP lifecycle for one logical endpoint: it accepts or
// dials exactly one peer at a time (spec §4.F single-session invariant)
// and drives that connection's handshake and record layer to completion.
type Manager struct {
	cfg   config.Config
	id    domain.Identity
	peers handshake.PeerStore
	store domain.MessageStore
	bus   domain.EventPublisher
	log   zerolog.Logger

	mu       sync.Mutex
	active   *conn
	listener net.Listener
	stopped  bool
}

// New returns a Manager ready to Listen or Dial.
func New(cfg config.Config, id domain.Identity, peers handshake.PeerStore, store domain.MessageStore, bus domain.EventPublisher, log zerolog.Logger) *Manager {
	return &Manager{cfg: cfg, id: id, peers: peers, store: store, bus: bus, log: log}
}

// reuseControl sets SO_REUSEADDR unconditionally and SO_REUSEPORT on a
// best-effort basis (spec §4.F, §9 design note iii).
func reuseControl(_ string, _ string, c syscall.RawConn) error {
	var ctrlErr error
	err := c.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1) // best effort
	})
	if err != nil {
		ctrlErr = err
	}
	return ctrlErr
}

// Listen binds 0.0.0.0:port and accepts at most one peer connection at a
// time. It runs until ctx is cancelled or Stop is called. Each accepted
// connection that arrives while another session is active is closed
// immediately without a handshake; no Busy error is sent to that peer or
// returned to the caller.
func (m *Manager) Listen(ctx context.Context, port int) error {
	if m.isStopped() {
		return &domain.ResourceError{Kind: domain.ResourceBusy, Err: fmt.Errorf("manager is stopped")}
	}
	lc := net.ListenConfig{Control: reuseControl}
	ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return &domain.NetworkError{Kind: domain.NetworkBindFailed, Err: err}
	}

	m.mu.Lock()
	m.listener = ln
	m.mu.Unlock()

	m.bus.Publish(domain.EventPeerConnecting{Addr: ln.Addr().String()})
	m.log.Info().Str("addr", ln.Addr().String()).Msg("listening")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	tl, ok := ln.(*net.TCPListener)
	for {
		var nc net.Conn
		var acceptErr error
		if ok {
			_ = tl.SetDeadline(time.Now().Add(1 * time.Second))
			nc, acceptErr = tl.Accept()
		} else {
			nc, acceptErr = ln.Accept()
		}
		if acceptErr != nil {
			if ctx.Err() != nil {
				return nil
			}
			if ne, isNetErr := acceptErr.(net.Error); isNetErr && ne.Timeout() {
				continue
			}
			return &domain.NetworkError{Kind: domain.NetworkIOError, Err: acceptErr}
		}

		if !m.tryClaim() {
			m.log.Warn().Str("remote", nc.RemoteAddr().String()).Msg("rejecting connection: session already active")
			_ = nc.Close()
			continue
		}
		go m.serve(ctx, nc, domain.RoleResponder)
	}
}

// Dial connects to addr as the initiator, with a 10s connect timeout. If
// the connection later drops with a transport error after the handshake
// completed, it is redialed with the same exponential backoff up to
// ReconnectMaxAttempts (spec §4.F) before Dial gives up and returns.
func (m *Manager) Dial(ctx context.Context, addr string) error {
	if m.isStopped() {
		return &domain.ResourceError{Kind: domain.ResourceBusy, Err: fmt.Errorf("manager is stopped")}
	}
	m.bus.Publish(domain.EventPeerConnecting{Addr: addr})

	bo := newBackoff()
	for attempt := 0; attempt <= m.cfg.ReconnectMaxAttempts; attempt++ {
		if !m.tryClaim() {
			return &domain.ResourceError{Kind: domain.ResourceBusy, Err: fmt.Errorf("a session is already active")}
		}
		d := net.Dialer{Timeout: m.cfg.ConnectTimeout}
		nc, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			m.release()
			netErr := classifyDialError(err)
			if attempt == m.cfg.ReconnectMaxAttempts {
				return netErr
			}
			select {
			case <-time.After(bo.next()):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		serveErr := m.serve(ctx, nc, domain.RoleInitiator)
		var netErr *domain.NetworkError
		if !errors.As(serveErr, &netErr) {
			// Either a clean shutdown (serveErr == nil) or a non-transport
			// failure (bad handshake, protocol error): nothing to retry.
			return serveErr
		}
		if attempt == m.cfg.ReconnectMaxAttempts {
			return serveErr
		}
		m.log.Warn().Err(serveErr).Int("attempt", attempt+1).Msg("session dropped, reconnecting")
		m.bus.Publish(domain.EventPeerConnecting{Addr: addr})
		select {
		case <-time.After(bo.next()):
			continue
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return &domain.NetworkError{Kind: domain.NetworkUnreachable, Err: fmt.Errorf("exhausted reconnect attempts")}
}

func classifyDialError(err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return &domain.NetworkError{Kind: domain.NetworkTimeout, Err: err}
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return &domain.NetworkError{Kind: domain.NetworkConnectRefused, Err: err}
	}
	return &domain.NetworkError{Kind: domain.NetworkUnreachable, Err: err}
}

// tryClaim enforces the single-session invariant.
func (m *Manager) tryClaim() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return false
	}
	m.active = &conn{} // placeholder until serve() installs the real conn
	return true
}

func (m *Manager) release() {
	m.mu.Lock()
	m.active = nil
	m.mu.Unlock()
}

// Addr returns the listener's bound address, or nil if not listening.
// Mainly useful in tests that bind to port 0 and need the chosen port.
func (m *Manager) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return nil
	}
	return m.listener.Addr()
}

func (m *Manager) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// Send enqueues a TEXT message on the active session.
func (m *Manager) Send(body []byte) error {
	c := m.currentConn()
	if c == nil {
		return &domain.ResourceError{Kind: domain.ResourceBusy, Err: fmt.Errorf("no active session")}
	}
	return c.sendText(body)
}

// SendFile enqueues a FILE message on the active session.
func (m *Manager) SendFile(name string, content []byte) error {
	c := m.currentConn()
	if c == nil {
		return &domain.ResourceError{Kind: domain.ResourceBusy, Err: fmt.Errorf("no active session")}
	}
	return c.sendFile(name, content)
}

// Disconnect tears down the active session, if any, with LocalClose.
func (m *Manager) Disconnect() {
	c := m.currentConn()
	if c == nil {
		return
	}
	c.closeLocal()
}

// CurrentPeer returns the fingerprint of the peer on the active session,
// if any (spec §6 current_peer query).
func (m *Manager) CurrentPeer() (domain.Fingerprint, bool) {
	c := m.currentConn()
	if c == nil {
		return domain.Fingerprint{}, false
	}
	return c.peerFP, true
}

func (m *Manager) currentConn() *conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.netConn == nil {
		return nil
	}
	return m.active
}

// Stop closes the listener, if any, and disconnects any active session.
func (m *Manager) Stop() {
	m.mu.Lock()
	ln := m.listener
	m.stopped = true
	m.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	m.Disconnect()
}
