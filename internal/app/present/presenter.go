// Package present hands media streams to rendering surfaces and keeps local
// track enabled flags in line with what the user last asked for.
package present

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/dkeye/VoiceCall/internal/retry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrNotMounted = errors.New("rendering surface not mounted")

const DefaultReconcileInterval = 2 * time.Second

type Presenter struct {
	mounts core.Mounts
	policy retry.Policy
	clock  clock.Clock
	logger zerolog.Logger

	mu     sync.Mutex
	intent domain.Intent
	tracks []core.MediaTrack
}

func New(mounts core.Mounts, policy retry.Policy, clk clock.Clock) *Presenter {
	if clk == nil {
		clk = clock.New()
	}
	if policy.Clock == nil {
		policy.Clock = clk
	}
	return &Presenter{
		mounts: mounts,
		policy: policy,
		clock:  clk,
		logger: log.With().Str("module", "present").Logger(),
	}
}

// Attach hands stream to the surface for slot, waiting for it to mount.
// A surface that never mounts is logged and reported as an error; the
// caller is not expected to escalate it.
func (p *Presenter) Attach(ctx context.Context, slot domain.StreamSlot, stream *core.Stream) error {
	err := p.policy.Do(ctx, func(attempt int) error {
		sink, ok := p.mounts.Sink(slot)
		if !ok {
			p.logger.Debug().Str("slot", string(slot)).Int("attempt", attempt).Msg("surface not mounted")
			return ErrNotMounted
		}
		return sink.Attach(stream)
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("slot", string(slot)).Str("stream", stream.ID).Msg("attach gave up")
		return err
	}
	p.logger.Info().Str("slot", string(slot)).Str("stream", stream.ID).Msg("attached")
	return nil
}

// Watch replaces the set of local tracks kept in line with the intent.
func (p *Presenter) Watch(tracks ...core.MediaTrack) {
	p.mu.Lock()
	p.tracks = append([]core.MediaTrack(nil), tracks...)
	p.mu.Unlock()
	p.Reconcile()
}

func (p *Presenter) Add(t core.MediaTrack) {
	p.mu.Lock()
	p.tracks = append(p.tracks, t)
	p.mu.Unlock()
	p.Reconcile()
}

func (p *Presenter) Forget() {
	p.mu.Lock()
	p.tracks = nil
	p.mu.Unlock()
}

// SetIntent records a user choice and applies it at once.
func (p *Presenter) SetIntent(i domain.Intent) {
	p.mu.Lock()
	p.intent = i
	p.mu.Unlock()
	p.Reconcile()
}

// UpdateIntent applies fn to the recorded intent under the lock, so
// concurrent toggles of different flags do not overwrite each other.
func (p *Presenter) UpdateIntent(fn func(*domain.Intent)) domain.Intent {
	p.mu.Lock()
	fn(&p.intent)
	i := p.intent
	p.mu.Unlock()
	p.Reconcile()
	return i
}

func (p *Presenter) Intent() domain.Intent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.intent
}

// Reconcile makes one pass and returns how many tracks it corrected. A
// track disabled while the user has it muted is left alone; only a flag
// that disagrees with the recorded intent is changed.
func (p *Presenter) Reconcile() int {
	p.mu.Lock()
	intent := p.intent
	tracks := append([]core.MediaTrack(nil), p.tracks...)
	p.mu.Unlock()

	fixed := 0
	for _, t := range tracks {
		want := intent.WantsEnabled(t.Kind())
		if t.Enabled() == want {
			continue
		}
		t.SetEnabled(want)
		fixed++
		p.logger.Info().
			Str("track_id", t.ID()).
			Str("kind", string(t.Kind())).
			Bool("enabled", want).
			Msg("track flag drifted, restored")
	}
	return fixed
}

// Run reconciles every interval until ctx is done.
func (p *Presenter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	ticker := p.clock.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Reconcile()
		}
	}
}
