// Package gateway wires the presence subsystem into the connection
// lifecycle: admit, register, announce, serve events, deregister,
// announce. Nothing reaches business handlers before authentication and
// rate-limit checks clear it.
package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"AmoraGateway/config"
	"AmoraGateway/service/limiter"
	"AmoraGateway/service/registry"
	"AmoraGateway/tools/errs"
	"AmoraGateway/tools/security"
)

const (
	readTimeout  = 60 * time.Second
	pingEvery    = 30 * time.Second
	controlGrace = 5 * time.Second

	// Room for the JSON envelope (event name, ack id, quoting) around
	// a payload at the byte cap.
	frameEnvelopeHeadroom = 64 << 10
)

// Announcer is the presence broadcaster as seen by the gateway core.
type Announcer interface {
	Announce(ctx context.Context, externalID string, online bool)
}

// Mirror is the optional out-of-process online-status write-through.
// All calls are best effort.
type Mirror interface {
	Online(ctx context.Context, externalID, connID string) error
	Refresh(ctx context.Context, externalID string) error
	Offline(ctx context.Context, externalID string) error
}

type Server struct {
	conf      *config.Config
	authOpts  security.Options
	reg       *registry.Registry[*Conn]
	admission *limiter.Admission
	limits    *limiter.EventLimiter
	disp      *Dispatcher
	announcer Announcer
	mirror    Mirror
	upgrader  websocket.Upgrader
	log       *zap.Logger
}

func NewServer(conf *config.Config, reg *registry.Registry[*Conn], admission *limiter.Admission, limits *limiter.EventLimiter, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		conf: conf,
		authOpts: security.Options{
			Secret: []byte(conf.Auth.Secret),
			Alg:    conf.Auth.Alg,
		},
		reg:       reg,
		admission: admission,
		limits:    limits,
		disp:      NewDispatcher(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
	s.disp.Register(eventPing, func(_ context.Context, c *Conn, _ *Frame) error {
		return c.enqueue(buildPong())
	})
	return s
}

// SetAnnouncer injects the presence broadcaster. Done post-construction
// because the broadcaster pushes through this server.
func (s *Server) SetAnnouncer(a Announcer) { s.announcer = a }

// SetMirror injects the Redis online-status mirror.
func (s *Server) SetMirror(m Mirror) { s.mirror = m }

// Dispatcher exposes event registration to the business services.
func (s *Server) Dispatcher() *Dispatcher { return s.disp }

// ResolveConn looks up the live connection for a user by either the
// external or the internal identifier. This is the surface the chat and
// match services use to address a socket.
func (s *Server) ResolveConn(identifier string) (*Conn, bool) {
	return s.reg.Lookup(identifier)
}

// OnlineCount reports distinct online connections.
func (s *Server) OnlineCount() int { return s.reg.Count() }

// PushOnlineSet delivers a filtered online-match list to one user.
// Implements the broadcaster's push side.
func (s *Server) PushOnlineSet(externalID string, online []string) error {
	c, ok := s.reg.Lookup(externalID)
	if !ok {
		return errs.New("recipient not online")
	}
	return c.enqueue(BuildOnlineSet(online))
}

// HandleWS is the gin route for the upgrade endpoint.
func (s *Server) HandleWS(c *gin.Context) {
	r := c.Request

	// Query strings end up in proxy and browser logs; a token there is
	// rejected outright, never parsed.
	if tok := r.URL.Query().Get("token"); tok != "" {
		s.log.Warn("handshake rejected: token in query string",
			zap.String("token", security.MaskID(tok)),
			zap.String("remote", c.ClientIP()))
		c.JSON(http.StatusForbidden, gin.H{"reason": errs.ErrQueryToken.Msg})
		return
	}

	ws, err := s.upgrader.Upgrade(c.Writer, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := newConn(ws)
	go conn.writePump(s.log)
	s.serve(conn, r)
}

// serve runs the full lifecycle of one connection and returns when it
// is closed.
func (s *Server) serve(conn *Conn, r *http.Request) {
	identity, err := s.handshake(conn, r)
	if err != nil {
		s.reject(conn, err)
		return
	}

	if err := s.admission.Admit(identity.ExternalID); err != nil {
		s.log.Warn("handshake rejected: admission denied",
			zap.String("user", security.MaskID(identity.ExternalID)))
		s.reject(conn, err)
		return
	}

	conn.setIdentity(identity.ExternalID, identity.InternalID)
	conn.setState(StateAdmitted)
	s.reg.Register(conn, identity.ExternalID, identity.InternalID)
	s.mirrorOnline(conn)

	s.log.Info("connection admitted",
		zap.String("conn", conn.ID()),
		zap.String("user", security.MaskID(identity.ExternalID)),
		zap.Int("online", s.reg.Count()))

	if s.announcer != nil {
		s.announcer.Announce(context.Background(), identity.ExternalID, true)
	}
	conn.setState(StateActive)

	s.readLoop(conn)

	// Closing: de-announce while the registry entries are still present,
	// then tear everything down.
	conn.setState(StateClosing)
	if s.announcer != nil {
		s.announcer.Announce(context.Background(), identity.ExternalID, false)
	}
	s.reg.Deregister(conn, identity.ExternalID, identity.InternalID)
	s.admission.Release(identity.ExternalID)
	s.limits.RemoveConn(conn.ID())
	s.mirrorOffline(conn)
	conn.close(websocket.CloseNormalClosure, "")
	conn.setState(StateClosed)

	s.log.Info("connection closed",
		zap.String("conn", conn.ID()),
		zap.String("user", security.MaskID(identity.ExternalID)),
		zap.Int("online", s.reg.Count()))
}

// handshake resolves the identity pair from the preferred token source.
// The cookie wins because page-level script cannot read it; the auth
// frame is the fallback for non-browser clients. Verification always
// completes before any registry mutation.
func (s *Server) handshake(conn *Conn, r *http.Request) (security.Identity, error) {
	if cookie, err := r.Cookie(s.conf.Auth.CookieName); err == nil && cookie.Value != "" {
		id, verr := security.Verify(s.authOpts, cookie.Value)
		s.logAuthAttempt("cookie", cookie.Value, id, verr)
		return id, verr
	}

	// No cookie: the first frame must carry the token, within the
	// handshake deadline.
	deadline := time.Now().Add(s.conf.Auth.HandshakeTimeout)
	if err := conn.ws.SetReadDeadline(deadline); err != nil {
		return security.Identity{}, errs.ErrTokenVerify.WithDetail(err.Error())
	}
	_, raw, err := conn.ws.ReadMessage()
	if err != nil {
		return security.Identity{}, errs.ErrTokenMissing.WithDetail("no auth frame before deadline")
	}
	f, err := ParseFrame(raw)
	if err != nil || f.Event != eventAuth {
		return security.Identity{}, errs.ErrTokenMissing.WithDetail("first frame was not auth")
	}
	var data AuthData
	if f.Data != nil {
		if err := json.Unmarshal(f.Data, &data); err != nil {
			return security.Identity{}, errs.ErrTokenMissing.WithDetail("auth payload malformed")
		}
	}
	id, verr := security.Verify(s.authOpts, data.Token)
	s.logAuthAttempt("payload", data.Token, id, verr)
	return id, verr
}

// logAuthAttempt emits one structured line per verification attempt,
// success or failure, with the identity masked.
func (s *Server) logAuthAttempt(source, token string, id security.Identity, err error) {
	if err != nil {
		s.log.Warn("auth attempt failed",
			zap.String("source", source),
			zap.String("token", security.MaskID(token)),
			zap.String("reason", errs.Reason(err)))
		return
	}
	s.log.Info("auth attempt ok",
		zap.String("source", source),
		zap.String("user", security.MaskID(id.ExternalID)))
}

// reject ends a connection attempt before admission. The close reason
// carries the machine-readable failure so clients can distinguish auth
// errors from admission denial.
func (s *Server) reject(conn *Conn, err error) {
	reason := errs.Reason(err)
	_ = conn.enqueue(BuildError(reason))
	conn.close(websocket.ClosePolicyViolation, reason)
	conn.setState(StateClosed)
}

// readLoop pumps inbound frames through the rate-limit gate and the
// dispatcher until the socket closes. Events on one connection reach
// handlers in arrival order.
func (s *Server) readLoop(conn *Conn) {
	conn.ws.SetReadLimit(s.readLimit())
	_ = conn.ws.SetReadDeadline(time.Now().Add(readTimeout))
	conn.ws.SetPongHandler(func(string) error {
		_ = conn.ws.SetReadDeadline(time.Now().Add(readTimeout))
		s.mirrorRefresh(conn)
		return nil
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go s.pingLoop(conn, stopPing)

	for {
		_, raw, err := conn.ws.ReadMessage()
		if err != nil {
			s.logReadExit(conn, err)
			return
		}
		_ = conn.ws.SetReadDeadline(time.Now().Add(readTimeout))

		f, perr := ParseFrame(raw)
		if perr != nil {
			_ = conn.enqueue(BuildError(errs.Reason(perr)))
			continue
		}

		if lerr := s.limits.Allow(conn.ID(), f.Event, len(raw)); lerr != nil {
			s.ackReject(conn, f, lerr)
			s.log.Debug("event denied",
				zap.String("conn", conn.ID()),
				zap.String("event", f.Event),
				zap.String("reason", errs.Reason(lerr)))
			continue
		}

		if derr := s.disp.dispatch(context.Background(), conn, f); derr != nil {
			s.ackReject(conn, f, derr)
			continue
		}
		if f.AckID != "" {
			_ = conn.enqueue(BuildAck(f.AckID, true, ""))
		}
	}
}

// readLimit is the transport-level frame bound. It must admit the
// largest frame any event class accepts; byte budgets within that
// bound belong to the limiter, which nacks the frame and keeps the
// connection open.
func (s *Server) readLimit() int64 {
	limit := s.conf.RateLimit.MaxMegabytes
	for _, c := range s.conf.RateLimit.PerEvent {
		if c.MaxMegabytes > limit {
			limit = c.MaxMegabytes
		}
	}
	return int64(limit)<<20 + frameEnvelopeHeadroom
}

// ackReject answers a denied or failed event. The event is dropped, the
// sender is told why, and the connection stays open.
func (s *Server) ackReject(conn *Conn, f *Frame, err error) {
	reason := errs.Reason(err)
	if f.AckID != "" {
		_ = conn.enqueue(BuildAck(f.AckID, false, reason))
		return
	}
	_ = conn.enqueue(BuildError(reason))
}

func (s *Server) pingLoop(conn *Conn, stop <-chan struct{}) {
	t := time.NewTicker(pingEvery)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if err := conn.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlGrace)); err != nil {
				return
			}
		}
	}
}

func (s *Server) logReadExit(conn *Conn, err error) {
	switch {
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		s.log.Debug("peer closed", zap.String("conn", conn.ID()))
	default:
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			s.log.Debug("read timeout", zap.String("conn", conn.ID()))
			return
		}
		s.log.Debug("read error", zap.String("conn", conn.ID()), zap.Error(err))
	}
}

func (s *Server) mirrorOnline(conn *Conn) {
	if s.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.mirror.Online(ctx, conn.ExternalID(), conn.ID()); err != nil {
		s.log.Warn("presence mirror online failed", zap.Error(err))
	}
}

func (s *Server) mirrorRefresh(conn *Conn) {
	if s.mirror == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.mirror.Refresh(ctx, conn.ExternalID()); err != nil {
			s.log.Debug("presence mirror refresh failed", zap.Error(err))
		}
	}()
}

func (s *Server) mirrorOffline(conn *Conn) {
	if s.mirror == nil {
		return
	}
	// After a same-user reconnect the registry entries belong to the
	// newer connection; the mirror key is then still live and must not
	// be deleted during the stale connection's teardown.
	if s.reg.Online(conn.ExternalID()) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.mirror.Offline(ctx, conn.ExternalID()); err != nil {
		s.log.Warn("presence mirror offline failed", zap.Error(err))
	}
}
