package signal

import (
	"time"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/dkeye/VoiceCall/internal/proto"
	"github.com/gorilla/websocket"
)

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			c.logger.Debug().Msg("writePump ctx done")
			return
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
				c.logger.Error().Err(err).Msg("writePump set deadline")
				c.cancel()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error().Err(err).Msg("writePump write error")
				c.cancel()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteWait)); err != nil {
				c.logger.Warn().Err(err).Msg("writePump ping")
				c.cancel()
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.logger.Info().Msg("readPump closing")
		c.cancel()
		close(c.events)
	}()

	pongWait := c.opts.PingPeriod * 10 / 9
	c.conn.SetReadLimit(c.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Error().Err(err).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	env, err := proto.Decode(data)
	if err != nil {
		c.logger.Error().Err(err).Msg("bad frame")
		return
	}
	if env.Type == proto.TypeAck {
		c.mu.Lock()
		ch, ok := c.pending[env.Ref]
		c.mu.Unlock()
		if ok {
			select {
			case ch <- env:
			default:
			}
			return
		}
		if env.Error != "" {
			c.logger.Warn().Str("ref", env.Ref).Str("error", env.Error).Msg("relay reported error")
		}
		return
	}
	ev, err := toEvent(env)
	if err != nil {
		c.logger.Error().Err(err).Str("type", env.Type).Msg("bad payload")
		return
	}
	if ev == nil {
		c.logger.Warn().Str("type", env.Type).Msg("unknown signal")
		return
	}
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

// toEvent maps an inbound frame to a typed event. Unknown types give nil.
func toEvent(env proto.Envelope) (core.Event, error) {
	switch env.Type {
	case proto.TypeIncoming:
		var p proto.Incoming
		if err := env.Payload(&p); err != nil {
			return nil, err
		}
		return core.IncomingCallEvent{
			ID:     p.CallID,
			Caller: domain.User{ID: p.CallerID, DisplayName: p.CallerName},
			Kind:   p.CallKind,
		}, nil
	case proto.TypeOffer:
		var p proto.Offer
		if err := env.Payload(&p); err != nil {
			return nil, err
		}
		return core.OfferEvent{ID: p.CallID, SDP: p.Offer}, nil
	case proto.TypeAnswer:
		var p proto.Answer
		if err := env.Payload(&p); err != nil {
			return nil, err
		}
		return core.AnswerEvent{ID: p.CallID, SDP: p.Answer, Candidates: p.Candidates}, nil
	case proto.TypeCandidate:
		var p proto.Candidates
		if err := env.Payload(&p); err != nil {
			return nil, err
		}
		return core.CandidateEvent{ID: p.CallID, Candidates: p.Candidates}, nil
	case proto.TypeRejected:
		var p proto.Reject
		if err := env.Payload(&p); err != nil {
			return nil, err
		}
		return core.RejectedEvent{ID: p.CallID, Reason: p.Reason}, nil
	case proto.TypeEnded:
		var p proto.Ended
		if err := env.Payload(&p); err != nil {
			return nil, err
		}
		return core.EndedEvent{ID: p.CallID, Reason: p.Reason}, nil
	case proto.TypeRenegotiate:
		var p proto.Offer
		if err := env.Payload(&p); err != nil {
			return nil, err
		}
		return core.RenegotiateEvent{ID: p.CallID, SDP: p.Offer}, nil
	}
	return nil, nil
}
