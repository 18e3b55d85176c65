package persist

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the development fallback used when neither Redis nor Postgres is configured.
type MemoryStore struct {
	mu sync.RWMutex

	players map[string]*Player // id -> player
	byKey   map[string]string  // identity key -> id
	games   map[string]GameRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		players: make(map[string]*Player),
		byKey:   make(map[string]string),
		games:   make(map[string]GameRecord),
	}
}

func (m *MemoryStore) FindOrCreatePlayer(ctx context.Context, key, name string) (*Player, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrInvalidKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byKey[key]; ok {
		cp := *m.players[id]
		return &cp, nil
	}
	p := &Player{ID: uuid.NewString(), Key: key, Name: strings.TrimSpace(name), CreatedAt: time.Now().UTC()}
	m.players[p.ID] = p
	m.byKey[key] = p.ID
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) FindPlayer(ctx context.Context, key string) (*Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byKey[strings.TrimSpace(key)]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	cp := *m.players[id]
	return &cp, nil
}

func (m *MemoryStore) IncrementStatistics(ctx context.Context, playerID string, d StatsDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[playerID]
	if !ok {
		return ErrPlayerNotFound
	}
	p.Stats = p.Stats.add(d)
	return nil
}

func (m *MemoryStore) RecordFinishedGame(ctx context.Context, rec GameRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[rec.SessionID] = rec
	return nil
}

// Games returns stored records, most recently ended first.
func (m *MemoryStore) Games() []GameRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]GameRecord, 0, len(m.games))
	for _, g := range m.games {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EndedAt.Equal(out[j].EndedAt) {
			return out[i].EndedAt.After(out[j].EndedAt)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}
