package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"university-assistant/internal/assistant/intent"
	"university-assistant/internal/common/database"
	"university-assistant/internal/common/logger"
)

const keyPrefix = "university_assistant_context_"

var ErrContextSave = errors.New("CONTEXT_SAVE_FAILED")

// Exchange is one completed question/answer turn.
type Exchange struct {
	Timestamp string        `json:"timestamp"`
	Query     string        `json:"query"`
	Response  string        `json:"response"`
	Intent    intent.Result `json:"intent"`
}

// Context is the per-client conversational state.
type Context struct {
	CreatedAt string            `json:"created_at"`
	History   []Exchange        `json:"conversation_history"`
	UserData  map[string]string `json:"user_data"`
}

func newContext() *Context {
	return &Context{
		CreatedAt: time.Now().Format(time.RFC3339),
		History:   []Exchange{},
		UserData:  map[string]string{},
	}
}

// RecentPrompt renders the last n exchanges for prompt construction.
func (c *Context) RecentPrompt(n int) string {
	history := c.History
	if len(history) > n {
		history = history[len(history)-n:]
	}
	lines := make([]string, 0, len(history))
	for _, e := range history {
		lines = append(lines, fmt.Sprintf("User: %s\nAssistant: %s", e.Query, e.Response))
	}
	return strings.Join(lines, "\n")
}

// MergeEntities accumulates newly extracted entity values. A value already
// stored under any key is not stored again.
func (c *Context) MergeEntities(entities map[string]string) {
	for key, value := range entities {
		if value == "" {
			continue
		}
		seen := false
		for _, existing := range c.UserData {
			if existing == value {
				seen = true
				break
			}
		}
		if !seen {
			c.UserData[key] = value
		}
	}
}

func (c *Context) Append(e Exchange) {
	c.History = append(c.History, e)
}

// Store keeps per-client contexts in Redis, keyed by client IP.
type Store struct {
	redis  *database.RedisClient
	ttl    time.Duration
	logger logger.Logger
}

func NewStore(rdb *database.RedisClient, ttl time.Duration, log logger.Logger) *Store {
	return &Store{
		redis: rdb,
		ttl:   ttl,
		logger: log.With(map[string]interface{}{
			"component": "conversation-store",
		}),
	}
}

func contextKey(clientIP string) string {
	return keyPrefix + clientIP
}

// Get loads the context for a client. A miss, an expired key or an
// unreadable payload yields a fresh context that is persisted with the full
// TTL before being returned. A hit does not renew the TTL.
func (s *Store) Get(ctx context.Context, clientIP string) *Context {
	raw, err := s.redis.Get(ctx, contextKey(clientIP))
	if err == nil {
		stored := &Context{}
		if jsonErr := json.Unmarshal([]byte(raw), stored); jsonErr == nil {
			if stored.UserData == nil {
				stored.UserData = map[string]string{}
			}
			return stored
		}
		s.logger.Warn("stored context is unreadable, starting fresh", map[string]interface{}{
			"client_ip": clientIP,
		})
	} else if err != redis.Nil {
		s.logger.Warn("context lookup failed, starting fresh", map[string]interface{}{
			"client_ip": clientIP,
			"error":     err.Error(),
		})
	}

	fresh := newContext()
	if err := s.Put(ctx, clientIP, fresh); err != nil {
		s.logger.WithError(err).Warn("could not persist fresh context", map[string]interface{}{
			"client_ip": clientIP,
		})
	}
	return fresh
}

// Put overwrites the stored context and resets its TTL.
func (s *Store) Put(ctx context.Context, clientIP string, c *Context) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrContextSave, err)
	}
	if err := s.redis.Set(ctx, contextKey(clientIP), payload, s.ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrContextSave, err)
	}
	return nil
}
