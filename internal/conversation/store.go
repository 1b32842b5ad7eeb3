// Package conversation keeps the append-only chat history of each video and
// orders chat turns that target the same video.
package conversation

import (
	"context"
	"sync"
	"time"

	"ai-video-cutter/internal/types"
)

// Store is an append-only per-video history.
type Store interface {
	// Append adds turns atomically and returns them with positions assigned.
	Append(ctx context.Context, videoID string, turns ...types.ConversationTurn) ([]types.ConversationTurn, error)
	// History returns a copy of every turn in order.
	History(ctx context.Context, videoID string) ([]types.ConversationTurn, error)
}

// MemoryStore keeps history for the lifetime of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	history map[string][]types.ConversationTurn
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		history: make(map[string][]types.ConversationTurn),
		now:     time.Now,
	}
}

func (s *MemoryStore) Append(_ context.Context, videoID string, turns ...types.ConversationTurn) ([]types.ConversationTurn, error) {
	if len(turns) == 0 {
		return nil, nil
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.history[videoID]
	out := stamp(turns, len(existing), now)
	s.history[videoID] = append(existing, out...)
	return append([]types.ConversationTurn(nil), out...), nil
}

func (s *MemoryStore) History(_ context.Context, videoID string) ([]types.ConversationTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.ConversationTurn{}, s.history[videoID]...), nil
}

// stamp assigns consecutive positions starting at base and fills missing
// timestamps.
func stamp(turns []types.ConversationTurn, base int, now time.Time) []types.ConversationTurn {
	out := make([]types.ConversationTurn, len(turns))
	for i, turn := range turns {
		turn.Position = base + i
		if turn.CreatedAt.IsZero() {
			turn.CreatedAt = now
		}
		out[i] = turn
	}
	return out
}

// ToMessages converts stored turns into completer context, keeping at most
// the last limit turns. A non-positive limit keeps everything.
func ToMessages(turns []types.ConversationTurn, limit int) []types.Message {
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]types.Message, 0, len(turns))
	for _, turn := range turns {
		out = append(out, types.Message{Role: turn.Role, Content: turn.Content})
	}
	return out
}
