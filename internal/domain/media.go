package domain

import "time"

type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// Intent is the last media choice the user made.
type Intent struct {
	Muted     bool
	CameraOff bool
}

// WantsEnabled reports the enabled flag a local track of kind k should carry.
func (i Intent) WantsEnabled(k MediaKind) bool {
	switch k {
	case MediaAudio:
		return !i.Muted
	case MediaVideo:
		return !i.CameraOff
	}
	return true
}

// StreamSlot names a rendering surface.
type StreamSlot string

const (
	SlotLocal  StreamSlot = "local"
	SlotRemote StreamSlot = "remote"
)

// LinkHealth is one RTP-level delivery sample.
type LinkHealth struct {
	At                 time.Time
	PacketsReceived    uint64
	PacketsLost        int64
	JitterSeconds      float64
	RoundTripSeconds   float64
	RemoteFractionLost float64
}

// Candidate is an ICE candidate as it travels over signaling.
type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}
