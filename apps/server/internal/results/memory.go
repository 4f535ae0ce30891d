package results

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryService keeps the most recent games in an LRU; older games fall out.
type MemoryService struct {
	mu    sync.Mutex
	games *lru.Cache[string, Record]
}

func NewMemoryService(size int) (*MemoryService, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, Record](size)
	if err != nil {
		return nil, err
	}
	return &MemoryService{games: cache}, nil
}

func (s *MemoryService) RecordGameOver(_ context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.games.Contains(rec.GameID) {
		return nil
	}
	rec.Players = append([]PlayerResult(nil), rec.Players...)
	s.games.Add(rec.GameID, rec)
	return nil
}

func (s *MemoryService) ListRecent(_ context.Context, username string, limit int) ([]Record, error) {
	limit = clampLimit(limit)
	s.mu.Lock()
	defer s.mu.Unlock()

	// Keys are oldest first
	keys := s.games.Keys()
	out := make([]Record, 0, limit)
	for i := len(keys) - 1; i >= 0 && len(out) < limit; i-- {
		rec, ok := s.games.Peek(keys[i])
		if !ok || (username != "" && !rec.Includes(username)) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *MemoryService) Close() error { return nil }
