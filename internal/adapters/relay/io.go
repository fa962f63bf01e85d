package relay

import (
	"context"
	"time"

	"github.com/dkeye/VoiceCall/internal/proto"
	"github.com/gorilla/websocket"
)

func (h *Hub) writePump(ctx context.Context, c *peerConn) {
	ticker := time.NewTicker(h.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug().Str("user", string(c.user.ID)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				h.logger.Debug().Str("user", string(c.user.ID)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait)); err != nil {
				h.logger.Error().Err(err).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Error().Err(err).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.opts.WriteWait)); err != nil {
				h.logger.Warn().Err(err).Msg("writePump ping")
				return
			}
		}
	}
}

func (h *Hub) readPump(ctx context.Context, c *peerConn) {
	defer func() {
		h.logger.Info().Str("user", string(c.user.ID)).Msg("readPump closing")
		h.disconnect(c)
		c.Close()
	}()

	pongWait := h.opts.PingPeriod * 10 / 9
	c.conn.SetReadLimit(h.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str("user", string(c.user.ID)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.logger.Error().Err(err).Str("user", string(c.user.ID)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
			h.handleSignal(c, data)
		}
	}
}

func (h *Hub) handleSignal(c *peerConn, data []byte) {
	env, err := proto.Decode(data)
	if err != nil {
		h.logger.Error().Err(err).Str("user", string(c.user.ID)).Msg("bad json")
		return
	}

	switch env.Type {
	case proto.TypePing:
		h.reply(c, env.Ref, nil, nil)
		h.sendTo(c.user.ID, proto.TypePong, nil)
	case proto.TypeInitiate:
		h.handleInitiate(c, env)
	case proto.TypeAccept:
		h.handleAccept(c, env)
	case proto.TypeReject:
		h.handleReject(c, env)
	case proto.TypeCandidate:
		h.handleCandidates(c, env)
	case proto.TypeEnd:
		h.handleEnd(c, env)
	case proto.TypeRenegotiate, proto.TypeAnswer:
		h.handleForward(c, env)
	default:
		h.logger.Warn().Str("user", string(c.user.ID)).Str("type", env.Type).Msg("unknown signal")
		h.reply(c, env.Ref, nil, errBadRequest)
	}
}
