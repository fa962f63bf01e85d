package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/dkeye/VoiceCall/internal/testutil"
)

func TestAcquire(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Settings
		c         core.Constraints
		wantKinds []domain.MediaKind
		wantErr   error
	}{
		{"audio only", Settings{Microphone: true, Camera: true}, core.ConstraintsFor(domain.CallAudio), []domain.MediaKind{domain.MediaAudio}, nil},
		{"audio and video", Settings{Microphone: true, Camera: true}, core.ConstraintsFor(domain.CallVideo), []domain.MediaKind{domain.MediaAudio, domain.MediaVideo}, nil},
		{"camera missing", Settings{Microphone: true}, core.ConstraintsFor(domain.CallVideo), []domain.MediaKind{domain.MediaAudio}, nil},
		{"no device at all", Settings{}, core.ConstraintsFor(domain.CallAudio), nil, domain.ErrDeviceNotFound},
		{"permission refused", Settings{Microphone: true, Deny: true}, core.ConstraintsFor(domain.CallAudio), nil, domain.ErrPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Clock = clock.NewMock()
			src := NewSource(tt.cfg)
			tracks, err := src.Acquire(context.Background(), tt.c)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if len(tracks) != len(tt.wantKinds) {
				t.Fatalf("tracks = %d, want %d", len(tracks), len(tt.wantKinds))
			}
			for i, tr := range tracks {
				if tr.Kind() != tt.wantKinds[i] {
					t.Fatalf("track %d kind = %s, want %s", i, tr.Kind(), tt.wantKinds[i])
				}
				if tr.TrackLocal() == nil {
					t.Fatal("track without rtp source")
				}
				tr.Stop()
			}
		})
	}
}

func TestTrackWritesOnlyWhileEnabled(t *testing.T) {
	clk := clock.NewMock()
	src := NewSource(Settings{Microphone: true, Clock: clk})
	tracks, err := src.Acquire(context.Background(), core.Constraints{Audio: true})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	mic := tracks[0].(*Track)
	defer mic.Stop()

	testutil.Eventually(t, time.Second, func() bool {
		clk.Add(audioFrame)
		return mic.Written() > 0
	}, "samples written")

	mic.SetEnabled(false)
	time.Sleep(10 * time.Millisecond)
	before := mic.Written()
	for i := 0; i < 5; i++ {
		clk.Add(audioFrame)
	}
	if got := mic.Written(); got > before+1 {
		t.Fatalf("muted track kept writing: %d -> %d", before, got)
	}
}

func TestResetDevicesReenablesLiveTracks(t *testing.T) {
	src := NewSource(Settings{Microphone: true, Camera: true, Clock: clock.NewMock()})
	tracks, err := src.Acquire(context.Background(), core.ConstraintsFor(domain.CallVideo))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	mic, cam := tracks[0], tracks[1]
	mic.SetEnabled(false)
	cam.SetEnabled(false)
	cam.Stop()

	if n := src.ResetDevices(); n != 1 {
		t.Fatalf("reset = %d, want 1", n)
	}
	if !mic.Enabled() {
		t.Fatal("mic not re-enabled")
	}
	mic.Stop()
	mic.Stop()
}
