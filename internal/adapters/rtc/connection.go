package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Settings struct {
	ICEServers []string
	// ICE agent timeouts. Disconnected may still heal; Failed is final.
	DisconnectedTimeout time.Duration
	FailedTimeout       time.Duration
	KeepAliveInterval   time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		ICEServers:          []string{"stun:stun.l.google.com:19302"},
		DisconnectedTimeout: 30 * time.Second,
		FailedTimeout:       120 * time.Second,
		KeepAliveInterval:   2 * time.Second,
	}
}

// Factory builds pion peer connections sharing one API.
type Factory struct {
	api *webrtc.API
	cfg webrtc.Configuration
}

func NewFactory(s Settings) (*Factory, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}
	se := webrtc.SettingEngine{}
	se.SetICETimeouts(s.DisconnectedTimeout, s.FailedTimeout, s.KeepAliveInterval)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	)
	var cfg webrtc.Configuration
	if len(s.ICEServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: s.ICEServers}}
	}
	return &Factory{api: api, cfg: cfg}, nil
}

func (f *Factory) NewPeerConnection(ctx context.Context) (core.PeerConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pc, err := f.api.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		pc:     pc,
		ctx:    ctx,
		cancel: cancel,
		logger: log.With().Str("module", "webrtc").Logger(),
	}
	return c, nil
}

// Connection is a core.PeerConnection over pion.
type Connection struct {
	pc     *webrtc.PeerConnection
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger
	wg     sync.WaitGroup

	mu      sync.Mutex
	reports map[uint32]rtcp.ReceptionReport
	remotes []*remoteTrack
}

func (c *Connection) CreateOffer() (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(nil)
}

func (c *Connection) CreateAnswer() (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

func (c *Connection) SetLocalDescription(d webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(d)
}

func (c *Connection) SetRemoteDescription(d webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(d)
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

// AddLocalTrack attaches t and starts reading RTCP the far side sends back for it.
func (c *Connection) AddLocalTrack(t core.LocalTrack) error {
	local := t.TrackLocal()
	if local == nil {
		return errors.New("track has no local rtp source")
	}
	sender, err := c.pc.AddTrack(local)
	if err != nil {
		return err
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.readRTCP(sender)
	}()
	return nil
}

func (c *Connection) readRTCP(sender *webrtc.RTPSender) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, pkt := range packets {
			rr, ok := pkt.(*rtcp.ReceiverReport)
			if !ok {
				continue
			}
			c.mu.Lock()
			if c.reports == nil {
				c.reports = make(map[uint32]rtcp.ReceptionReport)
			}
			for _, r := range rr.Reports {
				c.reports[r.SSRC] = r
			}
			c.mu.Unlock()
		}
	}
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil {
			fn(cand.ToJSON())
		}
	})
}

func (c *Connection) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.pc.OnConnectionStateChange(fn)
}

func (c *Connection) OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState)) {
	c.pc.OnICEConnectionStateChange(fn)
}

func (c *Connection) OnICEGatheringStateChange(fn func(webrtc.ICEGatheringState)) {
	c.pc.OnICEGatheringStateChange(fn)
}

// OnTrack wraps each remote track and drains its RTP until the connection closes.
func (c *Connection) OnTrack(fn func(core.RemoteTrack)) {
	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		rt := newRemoteTrack(track)
		c.mu.Lock()
		c.remotes = append(c.remotes, rt)
		c.mu.Unlock()
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			rt.drain(c.ctx)
		}()
		fn(rt)
	})
}

func (c *Connection) Close() error {
	c.cancel()
	err := c.pc.Close()
	if err != nil {
		c.logger.Error().Err(err).Msg("close error")
	} else {
		c.logger.Info().Msg("closed")
	}
	c.wg.Wait()
	return err
}
