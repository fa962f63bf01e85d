// Package signal is the client side of the call signaling channel: one
// websocket to the relay at /api/ws/call, separate from chat traffic.
package signal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/dkeye/VoiceCall/internal/proto"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

const Path = "/api/ws/call"

var (
	ErrClosed = errors.New("signaling channel closed")
	// ErrRelay wraps an error code the relay put on an ack.
	ErrRelay = errors.New("relay error")
)

type Options struct {
	PingPeriod time.Duration
	WriteWait  time.Duration
	ReadLimit  int64
	// SendBuffer is the depth of the outbound queue.
	SendBuffer int
}

func (o *Options) defaults() {
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
}

// Client implements core.Signaler over one websocket.
type Client struct {
	conn   *websocket.Conn
	opts   Options
	logger zerolog.Logger

	send   chan []byte
	events chan core.Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu      sync.Mutex
	pending map[string]chan proto.Envelope
	closed  bool
}

// Dial connects to the relay at base (http or ws scheme) with a bearer token.
func Dial(ctx context.Context, base, token string, opts Options) (*Client, error) {
	opts.defaults()
	u, err := url.Parse(strings.TrimRight(base, "/") + Path)
	if err != nil {
		return nil, fmt.Errorf("relay url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", u, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}
	return newClient(ws, opts), nil
}

func newClient(ws *websocket.Conn, opts Options) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:    ws,
		opts:    opts,
		logger:  log.With().Str("module", "signal").Logger(),
		send:    make(chan []byte, opts.SendBuffer),
		events:  make(chan core.Event, opts.SendBuffer),
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]chan proto.Envelope),
	}
	c.wg.Go(c.writePump)
	c.wg.Go(c.readPump)
	return c
}

func (c *Client) Events() <-chan core.Event { return c.events }

// Close is idempotent. Pending requests fail with ErrClosed.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(c.opts.WriteWait))
	_ = c.conn.Close()
	c.wg.Wait()
	c.logger.Info().Msg("signaling closed")
}

// enqueue hands a frame to the write pump.
func (c *Client) enqueue(ctx context.Context, frame []byte) error {
	select {
	case c.send <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrClosed
	}
}

func (c *Client) post(ctx context.Context, typ string, payload any) error {
	frame, err := proto.Encode(typ, uuid.NewString(), payload)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, frame)
}

// request sends a frame and waits for the ack carrying the same ref.
func (c *Client) request(ctx context.Context, typ string, payload any) (proto.Envelope, error) {
	ref := uuid.NewString()
	frame, err := proto.Encode(typ, ref, payload)
	if err != nil {
		return proto.Envelope{}, err
	}
	ch := make(chan proto.Envelope, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return proto.Envelope{}, ErrClosed
	}
	c.pending[ref] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, ref)
		c.mu.Unlock()
	}()

	if err := c.enqueue(ctx, frame); err != nil {
		return proto.Envelope{}, err
	}
	select {
	case ack := <-ch:
		if ack.Error != "" {
			return ack, relayError(ack.Error)
		}
		return ack, nil
	case <-ctx.Done():
		return proto.Envelope{}, ctx.Err()
	case <-c.ctx.Done():
		return proto.Envelope{}, ErrClosed
	}
}

func relayError(code string) error {
	if code == proto.ErrCodeBusy {
		return domain.ErrBusy
	}
	return fmt.Errorf("%w: %s", ErrRelay, code)
}

func (c *Client) Initiate(ctx context.Context, req core.InitiateRequest) (domain.CallID, error) {
	ack, err := c.request(ctx, proto.TypeInitiate, proto.Initiate{
		CallerID:        req.CallerID,
		ReceiverID:      req.ReceiverID,
		CallKind:        req.Kind,
		ConversationRef: req.ConversationRef,
		Offer:           req.Offer,
	})
	if err != nil {
		return "", err
	}
	var body proto.Ack
	if err := ack.Payload(&body); err != nil {
		return "", err
	}
	if body.CallID == "" {
		return "", fmt.Errorf("%w: ack without call id", ErrRelay)
	}
	return body.CallID, nil
}

func (c *Client) Accept(ctx context.Context, id domain.CallID, answer string) error {
	_, err := c.request(ctx, proto.TypeAccept, proto.Answer{CallID: id, Answer: answer})
	return err
}

func (c *Client) Reject(ctx context.Context, id domain.CallID, reason string) error {
	return c.post(ctx, proto.TypeReject, proto.Reject{CallID: id, Reason: reason})
}

// SendCandidates does not wait for the ack; a relay error on it is logged
// by the read pump.
func (c *Client) SendCandidates(ctx context.Context, id domain.CallID, batch []domain.Candidate) error {
	return c.post(ctx, proto.TypeCandidate, proto.Candidates{CallID: id, Candidates: batch})
}

func (c *Client) SendAnswer(ctx context.Context, id domain.CallID, answer string) error {
	return c.post(ctx, proto.TypeAnswer, proto.Answer{CallID: id, Answer: answer})
}

func (c *Client) Renegotiate(ctx context.Context, id domain.CallID, offer string) error {
	return c.post(ctx, proto.TypeRenegotiate, proto.Offer{CallID: id, Offer: offer})
}

func (c *Client) End(ctx context.Context, id domain.CallID, d time.Duration) error {
	return c.post(ctx, proto.TypeEnd, proto.End{CallID: id, Duration: int64(d / time.Second)})
}
