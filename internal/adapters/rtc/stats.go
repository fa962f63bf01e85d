package rtc

import (
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/pion/webrtc/v4"
)

// LinkHealth folds inbound RTP stats, the nominated candidate pair RTT and
// the latest RTCP receiver reports into one sample.
func (c *Connection) LinkHealth() (domain.LinkHealth, error) {
	var (
		h         domain.LinkHealth
		jitterSum float64
		jitterN   int
	)
	inbound := func(st webrtc.InboundRTPStreamStats) {
		h.PacketsReceived += uint64(st.PacketsReceived)
		h.PacketsLost += int64(st.PacketsLost)
		jitterSum += st.Jitter
		jitterN++
	}
	pair := func(st webrtc.ICECandidatePairStats) {
		if st.Nominated && st.CurrentRoundTripTime > 0 {
			h.RoundTripSeconds = st.CurrentRoundTripTime
		}
	}
	for _, s := range c.pc.GetStats() {
		switch st := s.(type) {
		case webrtc.InboundRTPStreamStats:
			inbound(st)
		case *webrtc.InboundRTPStreamStats:
			inbound(*st)
		case webrtc.ICECandidatePairStats:
			pair(st)
		case *webrtc.ICECandidatePairStats:
			pair(*st)
		}
	}
	if jitterN > 0 {
		h.JitterSeconds = jitterSum / float64(jitterN)
	}

	c.mu.Lock()
	var worst uint8
	for _, r := range c.reports {
		if r.FractionLost > worst {
			worst = r.FractionLost
		}
	}
	var received uint64
	for _, rt := range c.remotes {
		received += rt.Packets()
	}
	c.mu.Unlock()

	h.RemoteFractionLost = float64(worst) / 256
	if h.PacketsReceived == 0 {
		h.PacketsReceived = received
	}
	return h, nil
}
