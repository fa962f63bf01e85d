package relay

import (
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/dkeye/VoiceCall/internal/proto"
	"github.com/google/uuid"
)

func (h *Hub) handleInitiate(c *peerConn, env proto.Envelope) {
	var req proto.Initiate
	if err := env.Payload(&req); err != nil {
		h.reply(c, env.Ref, nil, errBadRequest)
		return
	}
	caller := c.user
	switch {
	case req.CallerID != "" && req.CallerID != caller.ID:
		h.reply(c, env.Ref, nil, errForbidden)
		return
	case !req.CallKind.Valid() || req.ReceiverID == "":
		h.reply(c, env.Ref, nil, errBadRequest)
		return
	case req.ReceiverID == caller.ID:
		h.reply(c, env.Ref, nil, errSelf)
		return
	case !h.limiter.Allow(caller.ID):
		h.reply(c, env.Ref, nil, errRateLimit)
		return
	case h.calls.Engaged(caller.ID):
		h.reply(c, env.Ref, nil, errInCall)
		return
	}

	h.mu.RLock()
	receiver, online := h.peers[req.ReceiverID]
	h.mu.RUnlock()
	if !online {
		h.reply(c, env.Ref, nil, errOffline)
		return
	}
	if h.calls.Engaged(req.ReceiverID) {
		h.reply(c, env.Ref, nil, errBusy)
		return
	}

	cl := &call{
		ID:        domain.CallID(uuid.NewString()),
		Caller:    caller,
		Receiver:  receiver.user,
		Kind:      req.CallKind,
		Ref:       req.ConversationRef,
		Status:    statusRinging,
		CreatedAt: h.opts.Clock.Now(),
	}
	h.calls.Add(cl)
	h.reply(c, env.Ref, proto.Ack{CallID: cl.ID}, nil)

	h.sendTo(receiver.user.ID, proto.TypeIncoming, proto.Incoming{
		CallID:     cl.ID,
		CallerID:   caller.ID,
		CallerName: caller.DisplayName,
		CallKind:   cl.Kind,
	})
	h.sendTo(receiver.user.ID, proto.TypeOffer, proto.Offer{CallID: cl.ID, Offer: req.Offer})
}

func (h *Hub) handleAccept(c *peerConn, env proto.Envelope) {
	var req proto.Answer
	if err := env.Payload(&req); err != nil {
		h.reply(c, env.Ref, nil, errBadRequest)
		return
	}
	cl, held, err := h.calls.Activate(req.CallID, c.user.ID)
	if err != nil {
		h.reply(c, env.Ref, nil, err)
		return
	}
	h.reply(c, env.Ref, proto.Ack{CallID: cl.ID}, nil)
	h.sendTo(cl.Caller.ID, proto.TypeAnswer, proto.Answer{CallID: cl.ID, Answer: req.Answer})
	if len(held) > 0 {
		h.sendTo(c.user.ID, proto.TypeCandidate, proto.Candidates{CallID: cl.ID, Candidates: held})
	}
	h.logger.Info().Str("call_id", string(cl.ID)).Int("held", len(held)).Msg("call accepted")
}

func (h *Hub) handleReject(c *peerConn, env proto.Envelope) {
	var req proto.Reject
	if err := env.Payload(&req); err != nil {
		h.reply(c, env.Ref, nil, errBadRequest)
		return
	}
	cl, ok := h.calls.Remove(req.CallID, c.user.ID)
	if !ok {
		h.reply(c, env.Ref, nil, errNotFound)
		return
	}
	h.reply(c, env.Ref, proto.Ack{CallID: cl.ID}, nil)
	h.sendTo(cl.other(c.user.ID), proto.TypeRejected, proto.Reject{CallID: cl.ID, Reason: req.Reason})
	h.logger.Info().Str("call_id", string(cl.ID)).Str("reason", req.Reason).Msg("call rejected")
}

func (h *Hub) handleCandidates(c *peerConn, env proto.Envelope) {
	var req proto.Candidates
	if err := env.Payload(&req); err != nil {
		h.reply(c, env.Ref, nil, errBadRequest)
		return
	}
	cl, held, err := h.calls.Hold(req.CallID, c.user.ID, req.Candidates)
	if err != nil {
		h.reply(c, env.Ref, nil, err)
		return
	}
	h.reply(c, env.Ref, proto.Ack{CallID: cl.ID}, nil)
	if held {
		return
	}
	h.sendTo(cl.other(c.user.ID), proto.TypeCandidate, req)
}

func (h *Hub) handleEnd(c *peerConn, env proto.Envelope) {
	var req proto.End
	if err := env.Payload(&req); err != nil {
		h.reply(c, env.Ref, nil, errBadRequest)
		return
	}
	cl, ok := h.calls.Remove(req.CallID, c.user.ID)
	if !ok {
		h.reply(c, env.Ref, nil, errNotFound)
		return
	}
	h.reply(c, env.Ref, proto.Ack{CallID: cl.ID}, nil)
	h.sendTo(cl.other(c.user.ID), proto.TypeEnded, proto.Ended{CallID: cl.ID})
	h.logger.Info().Str("call_id", string(cl.ID)).Int64("duration_s", req.Duration).Msg("call ended")
}

// handleForward passes renegotiation offers and answers through unchanged.
// Both need an accepted call.
func (h *Hub) handleForward(c *peerConn, env proto.Envelope) {
	var ids struct {
		CallID domain.CallID `json:"callId"`
	}
	if err := env.Payload(&ids); err != nil {
		h.reply(c, env.Ref, nil, errBadRequest)
		return
	}
	cl, ok := h.calls.Get(ids.CallID, c.user.ID)
	if !ok {
		h.reply(c, env.Ref, nil, errNotFound)
		return
	}
	if cl.Status != statusActive {
		h.reply(c, env.Ref, nil, errBadRequest)
		return
	}
	h.reply(c, env.Ref, proto.Ack{CallID: cl.ID}, nil)
	h.sendTo(cl.other(c.user.ID), env.Type, env.Data)
}
