package relay

import (
	"sync"
	"time"

	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/rs/zerolog/log"
)

type callStatus int

const (
	statusRinging callStatus = iota
	statusActive
)

// call is one relayed call. The relay never looks inside SDP.
type call struct {
	ID        domain.CallID
	Caller    domain.User
	Receiver  domain.User
	Kind      domain.CallKind
	Ref       domain.ConversationRef
	Status    callStatus
	CreatedAt time.Time

	// held are caller candidates sent while ringing; the receiver has no
	// connection to apply them to until it accepts.
	held []domain.Candidate
}

func (c *call) other(uid domain.UserID) domain.UserID {
	if c.Caller.ID == uid {
		return c.Receiver.ID
	}
	return c.Caller.ID
}

func (c *call) member(uid domain.UserID) bool {
	return c.Caller.ID == uid || c.Receiver.ID == uid
}

// Registry tracks calls by id and the call each user is engaged in. A
// caller is engaged from initiate, a receiver from accept.
type Registry struct {
	mu        sync.RWMutex
	calls     map[domain.CallID]*call
	userCalls map[domain.UserID]domain.CallID
}

func NewRegistry() *Registry {
	return &Registry{
		calls:     make(map[domain.CallID]*call),
		userCalls: make(map[domain.UserID]domain.CallID),
	}
}

func (r *Registry) Engaged(uid domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.userCalls[uid]
	return ok
}

func (r *Registry) Add(c *call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[c.ID] = c
	r.userCalls[c.Caller.ID] = c.ID
	log.Info().Str("module", "relay.registry").Str("call_id", string(c.ID)).Str("caller", string(c.Caller.ID)).Str("receiver", string(c.Receiver.ID)).Msg("call added")
}

// Get returns a copy of the call if uid takes part in it.
func (r *Registry) Get(id domain.CallID, uid domain.UserID) (call, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.calls[id]
	if !ok || !c.member(uid) {
		return call{}, false
	}
	return *c, true
}

// Activate marks a ringing call accepted by its receiver and hands back the
// candidates held for it.
func (r *Registry) Activate(id domain.CallID, receiver domain.UserID) (call, []domain.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return call{}, nil, errNotFound
	}
	if c.Receiver.ID != receiver {
		return call{}, nil, errForbidden
	}
	if c.Status != statusRinging {
		return call{}, nil, errBadRequest
	}
	if other, busy := r.userCalls[receiver]; busy && other != id {
		return call{}, nil, errInCall
	}
	c.Status = statusActive
	r.userCalls[receiver] = id
	held := c.held
	c.held = nil
	log.Info().Str("module", "relay.registry").Str("call_id", string(id)).Msg("call active")
	return *c, held, nil
}

// Hold keeps caller candidates while the call rings. It reports false when
// the call is already active and the candidates should be forwarded.
func (r *Registry) Hold(id domain.CallID, from domain.UserID, cands []domain.Candidate) (call, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return call{}, false, errNotFound
	}
	if !c.member(from) {
		return call{}, false, errForbidden
	}
	if c.Status == statusRinging && c.Caller.ID == from {
		c.held = append(c.held, cands...)
		return *c, true, nil
	}
	return *c, false, nil
}

// Remove deletes the call if uid takes part in it.
func (r *Registry) Remove(id domain.CallID, uid domain.UserID) (call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok || !c.member(uid) {
		return call{}, false
	}
	r.dropLocked(c)
	return *c, true
}

// RemoveUser deletes every call uid takes part in, ringing ones included.
func (r *Registry) RemoveUser(uid domain.UserID) []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []call
	for _, c := range r.calls {
		if c.member(uid) {
			out = append(out, *c)
			r.dropLocked(c)
		}
	}
	return out
}

func (r *Registry) dropLocked(c *call) {
	delete(r.calls, c.ID)
	for _, uid := range []domain.UserID{c.Caller.ID, c.Receiver.ID} {
		if r.userCalls[uid] == c.ID {
			delete(r.userCalls, uid)
		}
	}
	log.Info().Str("module", "relay.registry").Str("call_id", string(c.ID)).Msg("call removed")
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}
