package signal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/dkeye/VoiceCall/internal/proto"
	"github.com/gorilla/websocket"
)

// fakeRelay upgrades one connection and hands every frame to handle.
type fakeRelay struct {
	srv    *httptest.Server
	frames chan proto.Envelope
	conns  chan *websocket.Conn
	auth   chan string
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	r := &fakeRelay{
		frames: make(chan proto.Envelope, 16),
		conns:  make(chan *websocket.Conn, 1),
		auth:   make(chan string, 1),
	}
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	mux := http.NewServeMux()
	mux.HandleFunc(Path, func(w http.ResponseWriter, req *http.Request) {
		r.auth <- req.Header.Get("Authorization")
		ws, err := up.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		r.conns <- ws
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			env, err := proto.Decode(data)
			if err != nil {
				continue
			}
			r.frames <- env
		}
	})
	r.srv = httptest.NewServer(mux)
	t.Cleanup(r.srv.Close)
	return r
}

func (r *fakeRelay) dial(t *testing.T) (*Client, *websocket.Conn) {
	t.Helper()
	c, err := Dial(context.Background(), r.srv.URL, "tok", Options{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(c.Close)
	select {
	case ws := <-r.conns:
		return c, ws
	case <-time.After(time.Second):
		t.Fatal("relay saw no connection")
	}
	return nil, nil
}

func (r *fakeRelay) next(t *testing.T) proto.Envelope {
	t.Helper()
	select {
	case env := <-r.frames:
		return env
	case <-time.After(time.Second):
		t.Fatal("no frame")
	}
	return proto.Envelope{}
}

func write(t *testing.T, ws *websocket.Conn, typ, ref string, payload any) {
	t.Helper()
	frame, err := proto.Encode(typ, ref, payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestInitiateWaitsForAck(t *testing.T) {
	relay := newFakeRelay(t)
	c, ws := relay.dial(t)
	if got := <-relay.auth; got != "Bearer tok" {
		t.Fatalf("auth header = %q", got)
	}

	type result struct {
		id  domain.CallID
		err error
	}
	done := make(chan result, 1)
	go func() {
		id, err := c.Initiate(context.Background(), core.InitiateRequest{
			CallerID: "alice", ReceiverID: "bob", Kind: domain.CallAudio, Offer: "v=0",
		})
		done <- result{id, err}
	}()

	env := relay.next(t)
	if env.Type != proto.TypeInitiate || env.Ref == "" {
		t.Fatalf("frame = %+v", env)
	}
	var init proto.Initiate
	if err := env.Payload(&init); err != nil {
		t.Fatalf("Payload: %v", err)
	}
	if init.Offer != "v=0" || init.ReceiverID != "bob" {
		t.Fatalf("initiate = %+v", init)
	}
	write(t, ws, proto.TypeAck, env.Ref, proto.Ack{CallID: "c-1"})

	select {
	case r := <-done:
		if r.err != nil || r.id != "c-1" {
			t.Fatalf("Initiate = %q, %v", r.id, r.err)
		}
	case <-time.After(time.Second):
		t.Fatal("Initiate did not return")
	}
}

func TestRelayErrorsOnAck(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{proto.ErrCodeBusy, domain.ErrBusy},
		{proto.ErrCodeOffline, ErrRelay},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			relay := newFakeRelay(t)
			c, ws := relay.dial(t)
			errc := make(chan error, 1)
			go func() {
				_, err := c.Initiate(context.Background(), core.InitiateRequest{CallerID: "a", ReceiverID: "b", Kind: domain.CallAudio})
				errc <- err
			}()
			env := relay.next(t)
			frame, _ := proto.EncodeError(env.Ref, tt.code)
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				t.Fatalf("write: %v", err)
			}
			if err := <-errc; !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestInboundEventsAreTyped(t *testing.T) {
	relay := newFakeRelay(t)
	c, ws := relay.dial(t)

	mid := "0"
	write(t, ws, proto.TypeIncoming, "", proto.Incoming{CallID: "c-9", CallerID: "bob", CallerName: "Bob", CallKind: domain.CallVideo})
	write(t, ws, proto.TypeOffer, "", proto.Offer{CallID: "c-9", Offer: "offer"})
	write(t, ws, proto.TypeAnswer, "", proto.Answer{CallID: "c-9", Answer: "answer", Candidates: []domain.Candidate{{Candidate: "x", SDPMid: &mid}}})
	write(t, ws, "presence", "", nil)
	write(t, ws, proto.TypeEnded, "", proto.Ended{CallID: "c-9"})

	var got []core.Event
	for len(got) < 4 {
		select {
		case ev := <-c.Events():
			got = append(got, ev)
		case <-time.After(time.Second):
			t.Fatalf("got %d events", len(got))
		}
	}
	in, ok := got[0].(core.IncomingCallEvent)
	if !ok || in.Caller.DisplayName != "Bob" || in.Kind != domain.CallVideo {
		t.Fatalf("event 0 = %#v", got[0])
	}
	if off, ok := got[1].(core.OfferEvent); !ok || off.SDP != "offer" {
		t.Fatalf("event 1 = %#v", got[1])
	}
	if ans, ok := got[2].(core.AnswerEvent); !ok || len(ans.Candidates) != 1 {
		t.Fatalf("event 2 = %#v", got[2])
	}
	if _, ok := got[3].(core.EndedEvent); !ok {
		t.Fatalf("event 3 = %#v", got[3])
	}
}

func TestEndCarriesWholeSeconds(t *testing.T) {
	relay := newFakeRelay(t)
	c, _ := relay.dial(t)
	if err := c.End(context.Background(), "c-1", 7500*time.Millisecond); err != nil {
		t.Fatalf("End: %v", err)
	}
	env := relay.next(t)
	var end proto.End
	if err := env.Payload(&end); err != nil {
		t.Fatalf("Payload: %v", err)
	}
	if env.Type != proto.TypeEnd || end.Duration != 7 {
		t.Fatalf("end = %s %+v", env.Type, end)
	}
}

func TestCloseReleasesPendingRequest(t *testing.T) {
	relay := newFakeRelay(t)
	c, _ := relay.dial(t)
	errc := make(chan error, 1)
	go func() {
		errc <- c.Accept(context.Background(), "c-1", "answer")
	}()
	relay.next(t)
	c.Close()
	c.Close()
	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Accept still waiting")
	}
	if _, ok := <-c.Events(); ok {
		t.Fatal("events channel still open")
	}
}
