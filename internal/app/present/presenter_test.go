package present

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/dkeye/VoiceCall/internal/retry"
	"github.com/dkeye/VoiceCall/internal/testutil"
)

func instant(context.Context, time.Duration) error { return nil }

func TestAttachRetriesUntilMounted(t *testing.T) {
	surface := testutil.NewSurface()
	sink := surface.Mount(domain.SlotRemote, 3)
	var delays []time.Duration
	record := func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	policy := retry.Policy{BaseDelay: 50 * time.Millisecond, Factor: 1.5, MaxAttempts: 5, Sleep: record}
	p := New(surface, policy, clock.NewMock())

	stream := core.NewStream("remote", testutil.NewTrack("r-audio", domain.MediaAudio))
	if err := p.Attach(context.Background(), domain.SlotRemote, stream); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if sink.Count() != 1 {
		t.Fatalf("attached %d times", sink.Count())
	}
	if surface.Lookups(domain.SlotRemote) != 3 {
		t.Fatalf("lookups = %d, want 3", surface.Lookups(domain.SlotRemote))
	}
	if len(delays) != 2 || delays[1] != 75*time.Millisecond {
		t.Fatalf("delays = %v", delays)
	}
}

func TestAttachGivesUpQuietly(t *testing.T) {
	surface := testutil.NewSurface()
	surface.Mount(domain.SlotLocal, -1)
	p := New(surface, retry.Policy{BaseDelay: time.Millisecond, MaxAttempts: 4, Sleep: instant}, clock.NewMock())

	err := p.Attach(context.Background(), domain.SlotLocal, core.NewStream("local"))
	if !errors.Is(err, ErrNotMounted) || !errors.Is(err, retry.ErrExhausted) {
		t.Fatalf("err = %v", err)
	}
	if surface.Lookups(domain.SlotLocal) != 4 {
		t.Fatalf("lookups = %d, want 4", surface.Lookups(domain.SlotLocal))
	}
	if len(surface.FailureList()) != 0 {
		t.Fatal("attach failure escalated to the user")
	}
}

func resetDevices(mic, cam *testutil.Track) {
	mic.SetEnabled(true)
	cam.SetEnabled(true)
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name      string
		intent    domain.Intent
		drift     func(mic, cam *testutil.Track)
		wantMic   bool
		wantCam   bool
		wantFixed int
	}{
		{
			name:    "user muted stays muted",
			intent:  domain.Intent{Muted: true},
			wantMic: false,
			wantCam: true,
		},
		{
			name:      "unexpected disable while user wants audio",
			drift:     func(mic, _ *testutil.Track) { mic.SetEnabled(false) },
			wantMic:   true,
			wantCam:   true,
			wantFixed: 1,
		},
		{
			name:      "device reset re-enables a muted mic and camera",
			intent:    domain.Intent{Muted: true, CameraOff: true},
			drift:     resetDevices,
			wantMic:   false,
			wantCam:   false,
			wantFixed: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mic := testutil.NewTrack("mic", domain.MediaAudio)
			cam := testutil.NewTrack("cam", domain.MediaVideo)
			p := New(testutil.NewSurface(), retry.Policy{}, clock.NewMock())
			p.SetIntent(tt.intent)
			p.Watch(mic, cam)

			if tt.drift != nil {
				tt.drift(mic, cam)
			}
			if got := p.Reconcile(); got != tt.wantFixed {
				t.Fatalf("fixed = %d, want %d", got, tt.wantFixed)
			}
			if mic.Enabled() != tt.wantMic || cam.Enabled() != tt.wantCam {
				t.Fatalf("mic=%v cam=%v, want mic=%v cam=%v", mic.Enabled(), cam.Enabled(), tt.wantMic, tt.wantCam)
			}
			if p.Reconcile() != 0 {
				t.Fatal("second pass changed flags")
			}
		})
	}
}

func TestRunReconcilesOnTick(t *testing.T) {
	clk := clock.NewMock()
	p := New(testutil.NewSurface(), retry.Policy{}, clk)
	mic := testutil.NewTrack("mic", domain.MediaAudio)
	p.Watch(mic)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx, time.Second)

	mic.SetEnabled(false)
	testutil.Eventually(t, time.Second, func() bool {
		clk.Add(time.Second)
		return mic.Enabled()
	}, "mic re-enabled by reconciliation")
}

func TestUpdateIntentKeepsConcurrentToggles(t *testing.T) {
	p := New(testutil.NewSurface(), retry.Policy{}, clock.NewMock())
	mic := testutil.NewTrack("mic", domain.MediaAudio)
	cam := testutil.NewTrack("cam", domain.MediaVideo)
	p.Watch(mic, cam)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			p.UpdateIntent(func(i *domain.Intent) { i.Muted = true })
		}()
		go func() {
			defer wg.Done()
			p.UpdateIntent(func(i *domain.Intent) { i.CameraOff = true })
		}()
	}
	wg.Wait()

	if got := p.Intent(); !got.Muted || !got.CameraOff {
		t.Fatalf("intent = %+v, want both flags", got)
	}
	p.Reconcile()
	if mic.Enabled() || cam.Enabled() {
		t.Fatalf("mic=%v cam=%v, want both disabled", mic.Enabled(), cam.Enabled())
	}
}
