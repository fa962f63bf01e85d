package store

import (
	"context"
	"sync"

	"github.com/dkeye/VoiceCall/internal/domain"
)

// Memory is a process-local store; nothing survives a restart.
type Memory struct {
	mu   sync.Mutex
	snap *domain.Snapshot
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Save(_ context.Context, s domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = &s
	return nil
}

func (m *Memory) Load(context.Context) (domain.Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return domain.Snapshot{}, false, nil
	}
	return *m.snap, true, nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = nil
	return nil
}
