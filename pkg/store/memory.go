package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/provn-io/provn/pkg/ledger"
)

// MemoryStore is an in-process MetadataStore for tests and dev mode.
type MemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]*ArtifactMeta
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		artifacts: make(map[string]*ArtifactMeta),
	}
}

func (m *MemoryStore) SaveArtifact(ctx context.Context, meta *ArtifactMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if meta.ID == "" {
		meta.ID = uuid.New().String()
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}

	copied := *meta
	m.artifacts[meta.ID] = &copied

	return nil
}

func (m *MemoryStore) ListByFingerprint(ctx context.Context, fp ledger.Fingerprint) ([]ArtifactMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rows []ArtifactMeta
	for _, meta := range m.artifacts {
		if meta.Fingerprint == fp {
			rows = append(rows, *meta)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})

	return rows, nil
}

func (m *MemoryStore) GetArtifact(ctx context.Context, id string) (*ArtifactMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	meta, ok := m.artifacts[id]
	if !ok {
		return nil, fmt.Errorf("artifact %s: %w", id, ErrArtifactNotFound)
	}

	copied := *meta
	return &copied, nil
}

var _ MetadataStore = (*MemoryStore)(nil)
