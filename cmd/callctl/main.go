// Command callctl is a headless call client: it places or answers one call
// over the relay and logs what a call UI would show.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dkeye/VoiceCall/internal/adapters/console"
	"github.com/dkeye/VoiceCall/internal/adapters/media"
	"github.com/dkeye/VoiceCall/internal/adapters/rtc"
	callsignal "github.com/dkeye/VoiceCall/internal/adapters/signal"
	"github.com/dkeye/VoiceCall/internal/adapters/store"
	"github.com/dkeye/VoiceCall/internal/app/call"
	"github.com/dkeye/VoiceCall/internal/app/supervisor"
	"github.com/dkeye/VoiceCall/internal/config"
	"github.com/dkeye/VoiceCall/internal/domain"
)

var errCallOver = errors.New("call over")

type options struct {
	user     string
	name     string
	token    string
	peer     string
	kind     string
	ref      string
	answer   bool
	video    bool
	muted    bool
	duration time.Duration
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var o options
	fs := pflag.NewFlagSet("callctl", pflag.ExitOnError)
	config.Flags(fs)
	fs.StringVar(&o.user, "user", "", "local user id")
	fs.StringVar(&o.name, "name", "", "local display name")
	fs.StringVar(&o.token, "token", os.Getenv("VOICECALL_TOKEN"), "bearer token")
	fs.StringVar(&o.peer, "call", "", "user id to call; empty waits for calls")
	fs.StringVar(&o.kind, "kind", "audio", "call kind: audio or video")
	fs.StringVar(&o.ref, "conversation", "", "conversation reference")
	fs.BoolVar(&o.answer, "answer", true, "accept incoming calls")
	fs.BoolVar(&o.muted, "muted", false, "start with the microphone muted")
	fs.BoolVar(&o.video, "upgrade-video", false, "add video once connected")
	fs.DurationVar(&o.duration, "hangup-after", 0, "hang up after this long connected; 0 keeps the call")
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	config.ApplyLogLevel(cfg.LogLevel)
	cfg.WatchLogLevel()

	if err := run(ctx, cfg, o); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("callctl")
	}
}

func run(ctx context.Context, cfg *config.Config, o options) error {
	me, err := domain.NewIdentity(o.user, o.name, o.token)
	if err != nil {
		return err
	}
	cc := cfg.Client

	factory, err := rtc.NewFactory(rtc.Settings{
		ICEServers:          cc.ICEServers,
		DisconnectedTimeout: cc.DisconnectedTimeout,
		FailedTimeout:       cc.FailedTimeout,
		KeepAliveInterval:   cc.KeepAliveInterval,
	})
	if err != nil {
		return err
	}
	snapshots, err := store.Open(cc.StatePath)
	if err != nil {
		return err
	}
	defer snapshots.Close()

	sig, err := callsignal.Dial(ctx, cc.RelayURL, me.Token, callsignal.Options{PingPeriod: cfg.PingPeriod, ReadLimit: cfg.ReadLimit})
	if err != nil {
		return err
	}
	defer sig.Close()

	source := media.NewSource(media.Settings{Microphone: cc.Microphone, Camera: cc.Camera})
	surface := console.New()
	surface.Mount(domain.SlotLocal)
	surface.Mount(domain.SlotRemote)

	ctl := call.New(call.Deps{
		Identity: me,
		Signaler: sig,
		Factory:  factory,
		Media:    source,
		Store:    snapshots,
		Surface:  surface,
	}, call.Options{
		RingTimeout:       cc.RingTimeout,
		ResumeWindow:      cc.ResumeWindow,
		ReconcileInterval: cc.ReconcileInterval,
		Supervisor: supervisor.Config{
			HealthInterval: cc.HealthInterval,
			DrainRate:      rate.Limit(cc.CandidateRate),
			BatchSize:      cc.CandidateBatch,
		},
	})
	ctl.SetMuted(o.muted)
	if err := ctl.Start(ctx); err != nil {
		return err
	}
	defer ctl.Close()

	g, ctx := errgroup.WithContext(ctx)
	if o.peer != "" {
		g.Go(func() error {
			peer := domain.User{ID: domain.UserID(o.peer), DisplayName: o.peer}
			return ctl.Initiate(ctx, peer, domain.CallKind(o.kind), domain.ConversationRef(o.ref))
		})
	}
	g.Go(func() error { return answerLoop(ctx, ctl, surface, o.answer) })
	g.Go(func() error { return watch(ctx, ctl, surface, o) })
	g.Go(func() error { return deviceResets(ctx, source) })

	err = g.Wait()
	if errors.Is(err, errCallOver) {
		err = nil
	}
	if hangErr := ctl.Hangup(context.Background()); hangErr != nil && !errors.Is(hangErr, domain.ErrNoActiveCall) {
		log.Warn().Err(hangErr).Msg("hangup")
	}
	return err
}

func answerLoop(ctx context.Context, ctl *call.Controller, surface *console.Surface, accept bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in := <-surface.Incoming():
			if !accept {
				if err := ctl.Reject(ctx, in.CallID, call.ReasonDeclined); err != nil {
					log.Warn().Err(err).Msg("reject")
				}
				continue
			}
			if err := ctl.Accept(ctx, in.CallID); err != nil {
				log.Warn().Err(err).Str("call_id", string(in.CallID)).Msg("accept")
			}
		}
	}
}

// deviceResets re-enables capture tracks on SIGUSR1, the way a device
// change does. Reconciliation then restores the user's mute choice.
func deviceResets(ctx context.Context, source *media.Source) error {
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	defer signal.Stop(usr1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-usr1:
			source.ResetDevices()
		}
	}
}

// watch applies the scripted actions once connected and stops the client
// when an outgoing call ends.
func watch(ctx context.Context, ctl *call.Controller, surface *console.Surface, o options) error {
	var hangup <-chan time.Time
	upgraded := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-hangup:
			return ctl.Hangup(ctx)
		case v := <-surface.States():
			switch v.Lifecycle {
			case domain.StateConnected.String():
				if o.video && !upgraded && v.Kind == domain.CallAudio {
					upgraded = true
					if err := ctl.EnableVideo(ctx); err != nil {
						log.Warn().Err(err).Msg("enable video")
					}
				}
				if o.duration > 0 && hangup == nil {
					hangup = time.After(o.duration)
				}
			case domain.StateEnded.String():
				if o.peer != "" {
					return errCallOver
				}
			}
		}
	}
}
