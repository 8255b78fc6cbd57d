package connection

import (
	"context"
	"net"
	"time"

	"p2pmsg/internal/crypto"
	"p2pmsg/internal/domain"
	"p2pmsg/internal/handshake"
	"p2pmsg/internal/record"
	"p2pmsg/internal/wire"
)

// serve runs the handshake and, on success, the full connection lifecycle
// for nc. It always releases the single-session claim on return.
func (m *Manager) serve(ctx context.Context, nc net.Conn, role domain.Role) error {
	defer func() {
		_ = nc.Close()
		m.release()
	}()

	engine := handshake.New(m.id, m.peers)
	if role == domain.RoleResponder {
		if err := engine.Accept(); err != nil {
			return err
		}
	}

	hsCtx, cancel := context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
	defer cancel()
	if err := m.runHandshake(hsCtx, nc, engine, role == domain.RoleInitiator); err != nil {
		m.bus.Publish(domain.EventError{Kind: "handshake", Detail: err.Error()})
		m.log.Warn().Err(err).Msg("handshake failed")
		return err
	}

	if err := engine.CommitPeer(time.Now(), ""); err != nil {
		m.log.Warn().Err(err).Msg("failed to persist peer pin")
	}
	m.bus.Publish(domain.EventHandshakeComplete{
		PeerFingerprint: engine.PeerFingerprint(),
		FirstContact:    engine.FirstContact(),
	})

	ownFP := crypto.Fingerprint(m.id.SigningPub)
	sess := record.New(role, engine.SessionKey(), ownFP, engine.PeerFingerprint(), m.cfg.ReplayWindow, m.cfg.RekeyMsgThreshold, m.cfg.RekeyTime, time.Now())

	c := newConn(nc, sess, role, engine.PeerFingerprint(), m.cfg, m.store, m.bus, m.log)
	m.mu.Lock()
	m.active = c
	m.mu.Unlock()

	return c.run()
}

// runHandshake drives engine to Established, writing and reading frames
// directly off nc under ctx's deadline.
func (m *Manager) runHandshake(ctx context.Context, nc net.Conn, engine *handshake.Engine, initiator bool) error {
	if dl, ok := ctx.Deadline(); ok {
		_ = nc.SetDeadline(dl)
	}
	defer func() { _ = nc.SetDeadline(time.Time{}) }()

	if initiator {
		f, err := engine.Start()
		if err != nil {
			return err
		}
		if err := wire.WriteFrame(nc, f); err != nil {
			return &domain.NetworkError{Kind: domain.NetworkIOError, Err: err}
		}
	}

	for engine.State() != handshake.Established {
		f, err := wire.ReadFrame(nc, m.cfg.MaxFrameBytes)
		if err != nil {
			return &domain.NetworkError{Kind: domain.NetworkIOError, Err: err}
		}
		out, err := engine.Step(f, time.Now())
		if err != nil {
			return err
		}
		if out != nil {
			if err := wire.WriteFrame(nc, *out); err != nil {
				return &domain.NetworkError{Kind: domain.NetworkIOError, Err: err}
			}
		}
	}
	return nil
}
