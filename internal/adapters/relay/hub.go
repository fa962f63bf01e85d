// Package relay is the signaling relay: it pairs two users into a call and
// forwards their negotiation messages. Media never passes through it.
package relay

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/dkeye/VoiceCall/internal/proto"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

var ErrBackpressure = errors.New("backpressure")

// Errors reported back on acks; the text is the wire code.
var (
	errNotFound   = errors.New(proto.ErrCodeNotFound)
	errForbidden  = errors.New(proto.ErrCodeForbidden)
	errBadRequest = errors.New(proto.ErrCodeBadRequest)
	errInCall     = errors.New(proto.ErrCodeInCall)
	errBusy       = errors.New(proto.ErrCodeBusy)
	errOffline    = errors.New(proto.ErrCodeOffline)
	errSelf       = errors.New(proto.ErrCodeSelf)
	errRateLimit  = errors.New(proto.ErrCodeRateLimit)
)

type Options struct {
	PingPeriod time.Duration
	WriteWait  time.Duration
	ReadLimit  int64
	SendBuffer int
	// InitiateLimit caps call-initiate per user per InitiateWindow; zero
	// disables the cap.
	InitiateLimit  int
	InitiateWindow time.Duration
	Clock          clock.Clock
}

type Hub struct {
	calls   *Registry
	limiter *InitiateLimiter
	opts    Options
	logger  zerolog.Logger
	wg      conc.WaitGroup

	mu    sync.RWMutex
	peers map[domain.UserID]*peerConn
}

func NewHub(opts Options) *Hub {
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 5 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 32768
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Hub{
		calls:   NewRegistry(),
		limiter: NewInitiateLimiter(opts.InitiateLimit, opts.InitiateWindow, opts.Clock),
		opts:    opts,
		logger:  log.With().Str("module", "relay").Logger(),
		peers:   make(map[domain.UserID]*peerConn),
	}
}

type peerConn struct {
	user domain.User
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *peerConn) TrySend(frame []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- frame:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *peerConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS upgrades an authenticated request and serves user on it. A newer
// connection of the same user replaces the older one.
func (h *Hub) HandleWS(ctx context.Context, c *gin.Context, user domain.User) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("ws upgrade")
		return
	}
	p := &peerConn{user: user, conn: ws, send: make(chan []byte, h.opts.SendBuffer)}

	h.mu.Lock()
	old := h.peers[user.ID]
	h.peers[user.ID] = p
	h.mu.Unlock()
	if old != nil {
		h.logger.Info().Str("user", string(user.ID)).Msg("replacing connection")
		old.Close()
	}
	h.logger.Info().Str("user", string(user.ID)).Msg("peer online")

	ctx, cancel := context.WithCancel(ctx)
	h.wg.Go(func() { h.writePump(ctx, p) })
	h.wg.Go(func() {
		defer cancel()
		h.readPump(ctx, p)
	})
}

// Online reports whether uid has a live connection.
func (h *Hub) Online(uid domain.UserID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.peers[uid]
	return ok
}

func (h *Hub) ActiveCalls() int { return h.calls.Len() }

// Close drops every connection and waits for the pumps.
func (h *Hub) Close() {
	h.mu.Lock()
	peers := make([]*peerConn, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()
	for _, p := range peers {
		p.Close()
	}
	h.wg.Wait()
}

// disconnect ends every call of p's user unless a newer connection took over.
func (h *Hub) disconnect(p *peerConn) {
	h.mu.Lock()
	if h.peers[p.user.ID] != p {
		h.mu.Unlock()
		return
	}
	delete(h.peers, p.user.ID)
	h.mu.Unlock()

	h.limiter.Forget(p.user.ID)
	for _, c := range h.calls.RemoveUser(p.user.ID) {
		h.logger.Info().Str("call_id", string(c.ID)).Str("user", string(p.user.ID)).Msg("call ended by disconnect")
		h.sendTo(c.other(p.user.ID), proto.TypeEnded, proto.Ended{CallID: c.ID, Reason: "disconnect"})
	}
	h.logger.Info().Str("user", string(p.user.ID)).Msg("peer offline")
}

func (h *Hub) sendTo(uid domain.UserID, typ string, payload any) {
	h.mu.RLock()
	p, ok := h.peers[uid]
	h.mu.RUnlock()
	if !ok {
		h.logger.Debug().Str("user", string(uid)).Str("type", typ).Msg("recipient offline")
		return
	}
	frame, err := proto.Encode(typ, "", payload)
	if err != nil {
		h.logger.Error().Err(err).Msg("encode")
		return
	}
	if err := p.TrySend(frame); err != nil {
		h.logger.Warn().Err(err).Str("user", string(uid)).Str("type", typ).Msg("send dropped")
	}
}

// reply acks a request. Frames without a ref get no ack.
func (h *Hub) reply(p *peerConn, ref string, payload any, err error) {
	if ref == "" {
		if err != nil {
			h.logger.Warn().Err(err).Str("user", string(p.user.ID)).Msg("request failed")
		}
		return
	}
	var frame []byte
	var encErr error
	if err != nil {
		frame, encErr = proto.EncodeError(ref, err.Error())
	} else {
		frame, encErr = proto.Encode(proto.TypeAck, ref, payload)
	}
	if encErr != nil {
		h.logger.Error().Err(encErr).Msg("encode ack")
		return
	}
	if err := p.TrySend(frame); err != nil {
		h.logger.Warn().Err(err).Str("user", string(p.user.ID)).Msg("ack dropped")
	}
}
