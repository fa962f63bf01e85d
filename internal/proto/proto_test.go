package proto

import (
	"strings"
	"testing"

	"github.com/dkeye/VoiceCall/internal/domain"
)

func TestEncodeDecode(t *testing.T) {
	frame, err := Encode(TypeEnd, "r1", End{CallID: "c1", Duration: 42})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(frame), `"type":"call-end"`) {
		t.Fatalf("frame = %s", frame)
	}
	env, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.Ref != "r1" {
		t.Fatalf("ref = %q", env.Ref)
	}
	var end End
	if err := env.Payload(&end); err != nil {
		t.Fatalf("Payload: %v", err)
	}
	if end.CallID != "c1" || end.Duration != 42 {
		t.Fatalf("end = %+v", end)
	}
}

func TestCandidateWireNames(t *testing.T) {
	mid := "0"
	idx := uint16(0)
	frame, err := Encode(TypeCandidate, "", Candidates{
		CallID:     "c1",
		Candidates: []domain.Candidate{{Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host", SDPMid: &mid, SDPMLineIndex: &idx}},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for _, want := range []string{`"callId":"c1"`, `"sdpMid":"0"`, `"sdpMLineIndex":0`} {
		if !strings.Contains(string(frame), want) {
			t.Fatalf("frame %s lacks %s", frame, want)
		}
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", "nope"},
		{"no type", `{"ref":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.frame)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestEmptyPayload(t *testing.T) {
	frame, err := EncodeError("r9", ErrCodeBusy)
	if err != nil {
		t.Fatalf("EncodeError: %v", err)
	}
	env, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.Type != TypeAck || env.Error != ErrCodeBusy {
		t.Fatalf("env = %+v", env)
	}
	var ack Ack
	if err := env.Payload(&ack); err == nil {
		t.Fatal("expected empty payload error")
	}
}
