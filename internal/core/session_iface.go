package core

import (
	"context"
	"time"

	"github.com/dkeye/VoiceCall/internal/domain"
)

//go:generate mockgen -destination=mocks/snapshot_store.go -package=mocks . SnapshotStore

// SnapshotStore is the durable store of the active call snapshot.
type SnapshotStore interface {
	Save(ctx context.Context, s domain.Snapshot) error
	// Load reports ok=false when no snapshot is stored.
	Load(ctx context.Context) (s domain.Snapshot, ok bool, err error)
	Clear(ctx context.Context) error
}

// RenderSink is a mounted rendering surface.
type RenderSink interface {
	Attach(s *Stream) error
}

// Mounts resolves rendering surfaces; ok=false means not mounted yet.
type Mounts interface {
	Sink(slot domain.StreamSlot) (RenderSink, bool)
}

// Surface is the UI the controller reports to. Calls arrive from controller
// goroutines and must not block.
type Surface interface {
	Mounts
	CallStateChanged(v domain.View)
	IncomingCall(c domain.IncomingCall)
	DurationTick(d time.Duration)
	StreamPresence(slot domain.StreamSlot, present bool)
	LinkHealth(h domain.LinkHealth)
	// CallFailed reports a user-facing failure with a specific cause.
	CallFailed(err error)
}
