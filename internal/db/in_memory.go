package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/speechscroll/prompterd/internal/domain"
)

// MemoryStore keeps scripts and archived session audio in process memory.
// Used when no Redis URL is configured.
type MemoryStore struct {
	scripts map[string]*domain.Script
	audio   map[string][]byte

	lock sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scripts: make(map[string]*domain.Script),
		audio:   make(map[string][]byte),
	}
}

// SaveScript stores the reference script for a user.
func (m *MemoryStore) SaveScript(ctx context.Context, userID string, script *domain.Script) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	cp := *script
	m.scripts[userID] = &cp
	return nil
}

// GetScript returns the stored script or an empty one if none exists.
func (m *MemoryStore) GetScript(ctx context.Context, userID string) (*domain.Script, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	script, ok := m.scripts[userID]
	if !ok {
		return &domain.Script{}, nil
	}
	cp := *script
	return &cp, nil
}

// SaveAudio assembles PCM frames into a WAV and keeps it in memory.
func (m *MemoryStore) SaveAudio(ctx context.Context, id string, chunks [][]byte) error {
	goapp.Log.Info().Str("id", id).Int("chunks", len(chunks)).Msg("save audio")
	m.lock.Lock()
	defer m.lock.Unlock()

	res, err := buildWAV(chunks)
	if err != nil {
		return fmt.Errorf("to wav: %w", err)
	}
	m.audio[id] = res
	return nil
}

// GetAudio returns an archived WAV by ID.
func (m *MemoryStore) GetAudio(ctx context.Context, id string) ([]byte, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	data, ok := m.audio[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
