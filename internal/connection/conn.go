package connection

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"p2pmsg/internal/config"
	"p2pmsg/internal/domain"
	"p2pmsg/internal/record"
	"p2pmsg/internal/wire"
)

// outboundQueueDepth is the writer's backpressure buffer (spec §4.F).
const outboundQueueDepth = 256

// conn is the live state of one established session: the socket, the
// record layer, and the reader/writer/heartbeat workers that drive them.
type conn struct {
	netConn net.Conn
	session *record.Session
	role    domain.Role
	peerFP  domain.Fingerprint
	convID  string

	cfg   config.Config
	store domain.MessageStore
	bus   domain.EventPublisher
	log   zerolog.Logger

	outbound chan wire.Frame
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	lastSend atomic.Int64 // unix nanoseconds
	lastRecv atomic.Int64

	disconnectOnce sync.Once
	terminalErr    error // set once by disconnect; nil for a graceful close
}

func newConn(nc net.Conn, sess *record.Session, role domain.Role, peerFP domain.Fingerprint, cfg config.Config, store domain.MessageStore, bus domain.EventPublisher, log zerolog.Logger) *conn {
	c := &conn{
		netConn:  nc,
		session:  sess,
		role:     role,
		peerFP:   peerFP,
		cfg:      cfg,
		store:    store,
		bus:      bus,
		log:      log,
		outbound: make(chan wire.Frame, outboundQueueDepth),
		stopCh:   make(chan struct{}),
	}
	now := time.Now().UnixNano()
	c.lastSend.Store(now)
	c.lastRecv.Store(now)
	return c
}

// run drives the connection until it tears down, for any reason, blocks
// until every worker has exited, and returns the error that caused the
// teardown (nil for a graceful local close or peer BYE). A *domain.
// NetworkError return indicates a transport-class failure, which Dial
// uses to decide whether to redial (spec §4.F).
func (c *conn) run() error {
	if c.store != nil {
		if conv, err := c.store.EnsureConversation(c.peerFP); err != nil {
			c.log.Warn().Err(err).Msg("failed to open conversation")
		} else {
			c.convID = conv.ID
		}
	}

	c.wg.Add(2)
	go c.writeLoop()
	go c.heartbeatLoop()

	c.readLoop()

	c.stop()
	c.wg.Wait()
	return c.terminalErr
}

func (c *conn) stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// closeLocal is the UI-facing disconnect path (spec §4.H LocalClose).
func (c *conn) closeLocal() {
	c.enqueueBestEffort(wire.Frame{Type: wire.TypeBye})
	c.stop()
	c.disconnect("local close", nil)
}

// disconnect tears the connection down exactly once, recording err (nil
// for a graceful close) as the reason run() reports to its caller.
func (c *conn) disconnect(reason string, err error) {
	c.disconnectOnce.Do(func() {
		_ = c.netConn.Close()
		c.terminalErr = err
		c.bus.Publish(domain.EventPeerDisconnected{Reason: reason})
		c.log.Info().Str("reason", reason).Msg("connection closed")
	})
}

func (c *conn) readLoop() {
	defer c.disconnect("peer closed", nil)
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		f, err := wire.ReadFrame(c.netConn, c.cfg.MaxFrameBytes)
		if err != nil {
			c.disconnect(fmt.Sprintf("read error: %v", err), &domain.NetworkError{Kind: domain.NetworkIOError, Err: err})
			return
		}
		c.lastRecv.Store(time.Now().UnixNano())

		if err := c.handleFrame(f); err != nil {
			c.bus.Publish(domain.EventError{Kind: "record", Detail: err.Error()})
			c.disconnect(fmt.Sprintf("protocol failure: %v", err), err)
			return
		}
		if f.Type == wire.TypeBye {
			c.disconnect("peer sent BYE", nil)
			return
		}
	}
}

func (c *conn) handleFrame(f wire.Frame) error {
	now := time.Now()
	switch f.Type {
	case wire.TypeHeartbeat, wire.TypeBye:
		if len(f.Payload) > 0 {
			if _, err := c.session.Open(f, now); err != nil {
				return err
			}
		}
		return nil

	case wire.TypeText:
		pt, err := c.session.Open(f, now)
		if err != nil {
			return err
		}
		c.bus.Publish(domain.EventMessageReceived{Kind: domain.KindText, Body: pt, Timestamp: now})
		c.logMessage(domain.DirectionReceived, domain.KindText, pt, "", now)
		return nil

	case wire.TypeFile:
		pt, err := c.session.Open(f, now)
		if err != nil {
			return err
		}
		name, content, err := wire.DecodeFilePayload(pt)
		if err != nil {
			return &domain.ProtocolError{Kind: domain.ProtocolBadFrame, Err: err}
		}
		if c.store != nil {
			if _, err := c.store.SaveAttachment(c.peerFP, name, content); err != nil {
				c.log.Warn().Err(err).Msg("failed to save attachment")
			}
		}
		c.bus.Publish(domain.EventMessageReceived{Kind: domain.KindFile, Body: content, FileName: name, Timestamp: now})
		c.logMessage(domain.DirectionReceived, domain.KindFile, content, name, now)
		return nil

	case wire.TypeRekeyRequest:
		pt, err := c.session.Open(f, now)
		if err != nil {
			return err
		}
		ack, err := c.session.RespondRekey(pt, now)
		if err != nil {
			return err
		}
		c.enqueueBestEffort(ack)
		return nil

	case wire.TypeRekeyAck:
		pt, err := c.session.Open(f, now)
		if err != nil {
			return err
		}
		return c.session.CompleteRekey(pt, now)

	default:
		return &domain.ProtocolError{Kind: domain.ProtocolBadFrame, Err: fmt.Errorf("unexpected frame type %s on established session", f.Type)}
	}
}

func (c *conn) writeLoop() {
	defer c.wg.Done()
	for {
		select {
		case f := <-c.outbound:
			if err := wire.WriteFrame(c.netConn, f); err != nil {
				c.disconnect(fmt.Sprintf("write error: %v", err), &domain.NetworkError{Kind: domain.NetworkIOError, Err: err})
				return
			}
			c.lastSend.Store(time.Now().UnixNano())
		case <-c.stopCh:
			return
		}
	}
}

func (c *conn) heartbeatLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			silence := now.Sub(time.Unix(0, c.lastRecv.Load()))
			if silence > 3*c.cfg.HeartbeatInterval {
				c.bus.Publish(domain.EventError{Kind: "network", Detail: "peer unreachable"})
				c.disconnect("peer unreachable", &domain.NetworkError{Kind: domain.NetworkTimeout, Err: fmt.Errorf("no frames received for %s", silence)})
				c.stop()
				return
			}
			if now.Sub(time.Unix(0, c.lastSend.Load())) >= c.cfg.HeartbeatInterval {
				f, err := c.session.Seal(wire.TypeHeartbeat, nil, now)
				if err != nil {
					c.disconnect(fmt.Sprintf("heartbeat seal failed: %v", err), err)
					return
				}
				c.enqueueBestEffort(f)
			}
			c.maybeRekey(now)
		case <-c.stopCh:
			return
		}
	}
}

func (c *conn) maybeRekey(now time.Time) {
	if !c.session.NeedsRekey(now) {
		return
	}
	f, err := c.session.BeginRekey(now)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to begin rekey")
		return
	}
	c.enqueueBestEffort(f)
}

// enqueueBestEffort drops a frame rather than block the caller when the
// outbound queue is saturated; used for internally-generated control
// traffic (heartbeats, rekey) where losing one beat is recoverable.
func (c *conn) enqueueBestEffort(f wire.Frame) {
	select {
	case c.outbound <- f:
	case <-c.stopCh:
	default:
		c.log.Warn().Str("type", f.Type.String()).Msg("outbound queue full, dropping control frame")
	}
}

// sendText seals body and blocks until it is queued for the writer,
// applying backpressure per spec §4.F.
func (c *conn) sendText(body []byte) error {
	now := time.Now()
	f, err := c.session.Seal(wire.TypeText, body, now)
	if err != nil {
		return err
	}
	select {
	case c.outbound <- f:
	case <-c.stopCh:
		return &domain.NetworkError{Kind: domain.NetworkIOError, Err: fmt.Errorf("connection closed")}
	}
	c.bus.Publish(domain.EventMessageSent{Kind: domain.KindText, Body: body, Timestamp: now})
	c.logMessage(domain.DirectionSent, domain.KindText, body, "", now)
	c.maybeRekey(now)
	return nil
}

func (c *conn) sendFile(name string, content []byte) error {
	if int64(len(content)) > c.cfg.MaxFileBytes {
		return &domain.UserError{Kind: domain.UserFileTooLarge, Err: fmt.Errorf("%q is %d bytes, exceeds the %d byte limit", name, len(content), c.cfg.MaxFileBytes)}
	}
	now := time.Now()
	f, err := c.session.Seal(wire.TypeFile, wire.EncodeFilePayload(name, content), now)
	if err != nil {
		return err
	}
	select {
	case c.outbound <- f:
	case <-c.stopCh:
		return &domain.NetworkError{Kind: domain.NetworkIOError, Err: fmt.Errorf("connection closed")}
	}
	c.bus.Publish(domain.EventMessageSent{Kind: domain.KindFile, Body: content, FileName: name, Timestamp: now})
	c.logMessage(domain.DirectionSent, domain.KindFile, content, name, now)
	c.maybeRekey(now)
	return nil
}

// logMessage appends to the message log off the hot path: each call starts
// its own goroutine for the store write, so the network goroutines never
// wait on it. The store's own connection pool serializes the writers.
func (c *conn) logMessage(dir domain.MessageDirection, kind domain.MessageKind, body []byte, fileName string, ts time.Time) {
	if c.store == nil {
		return
	}
	msg := domain.Message{
		ConversationID: c.convID,
		Direction:      dir,
		Kind:           kind,
		Plaintext:      body,
		Timestamp:      ts,
		FileName:       fileName,
		FileSize:       int64(len(body)),
	}
	go func() {
		if err := c.store.AppendMessage(msg); err != nil {
			c.log.Warn().Err(err).Msg("failed to append message to log")
		}
	}()
}
