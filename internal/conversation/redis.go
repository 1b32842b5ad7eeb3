package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ai-video-cutter/internal/types"

	"github.com/redis/go-redis/v9"
)

const historyKeyFormat = "chat_history:%s"

func HistoryKey(videoID string) string {
	return fmt.Sprintf(historyKeyFormat, videoID)
}

// RedisStore keeps each history as a list of JSON turns. Positions are
// derived from the list length returned by RPUSH, so the pair written by a
// single Append is contiguous even with several writers. RPUSH and EXPIRE go
// out in one MULTI/EXEC so a failed append stores nothing.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore wraps client. A positive ttl is refreshed on every append.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

func (s *RedisStore) Append(ctx context.Context, videoID string, turns ...types.ConversationTurn) ([]types.ConversationTurn, error) {
	if len(turns) == 0 {
		return nil, nil
	}
	stamped := stamp(turns, 0, s.now())

	values := make([]interface{}, 0, len(stamped))
	for _, turn := range stamped {
		data, err := json.Marshal(storedTurn{Role: turn.Role, Content: turn.Content, CreatedAt: turn.CreatedAt})
		if err != nil {
			return nil, fmt.Errorf("marshal turn: %w", err)
		}
		values = append(values, data)
	}

	key := HistoryKey(videoID)
	var push *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		push = pipe.RPush(ctx, key, values...)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("append %s: %w", key, err)
	}
	base := int(push.Val()) - len(stamped)
	for i := range stamped {
		stamped[i].Position = base + i
	}
	return stamped, nil
}

func (s *RedisStore) History(ctx context.Context, videoID string) ([]types.ConversationTurn, error) {
	key := HistoryKey(videoID)
	raw, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}
	return decodeTurns(raw)
}

// storedTurn is the JSON shape of one list element.
type storedTurn struct {
	Role      types.Role `json:"role"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
}

func decodeTurns(raw []string) ([]types.ConversationTurn, error) {
	out := make([]types.ConversationTurn, 0, len(raw))
	for i, item := range raw {
		var st storedTurn
		if err := json.Unmarshal([]byte(item), &st); err != nil {
			return nil, fmt.Errorf("decode turn %d: %w", i, err)
		}
		out = append(out, types.ConversationTurn{
			Role:      st.Role,
			Content:   st.Content,
			Position:  i,
			CreatedAt: st.CreatedAt,
		})
	}
	return out, nil
}
