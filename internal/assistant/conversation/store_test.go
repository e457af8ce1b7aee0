package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"university-assistant/internal/assistant/intent"
	"university-assistant/internal/common/database"
	"university-assistant/internal/common/logger"
)

func setupStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := &database.RedisClient{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { rdb.Close() })
	return NewStore(rdb, ttl, logger.NewTestLogger(t)), mr
}

func TestGetMissCreatesFreshContextWithTTL(t *testing.T) {
	store, mr := setupStore(t, time.Hour)

	c := store.Get(context.Background(), "10.0.0.1")
	require.NotNil(t, c)
	assert.Empty(t, c.History)
	assert.Empty(t, c.UserData)

	key := "university_assistant_context_10.0.0.1"
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Hour, mr.TTL(key))
}

func TestGetHitDoesNotRenewTTL(t *testing.T) {
	store, mr := setupStore(t, time.Hour)

	store.Get(context.Background(), "10.0.0.1")
	mr.FastForward(30 * time.Minute)

	store.Get(context.Background(), "10.0.0.1")
	assert.Equal(t, 30*time.Minute, mr.TTL("university_assistant_context_10.0.0.1"))
}

func TestPutRenewsTTLAndRoundTrips(t *testing.T) {
	store, mr := setupStore(t, time.Hour)
	ctx := context.Background()

	c := store.Get(ctx, "10.0.0.2")
	c.Append(Exchange{
		Timestamp: "2026-09-01T10:00:00Z",
		Query:     "List departments",
		Response:  "Here are the departments.",
		Intent:    intent.Result{Intent: intent.DepartmentInfo, Entities: map[string]string{}},
	})
	c.MergeEntities(map[string]string{"department": "CS"})

	mr.FastForward(30 * time.Minute)
	require.NoError(t, store.Put(ctx, "10.0.0.2", c))
	assert.Equal(t, time.Hour, mr.TTL("university_assistant_context_10.0.0.2"))

	reloaded := store.Get(ctx, "10.0.0.2")
	require.Len(t, reloaded.History, 1)
	assert.Equal(t, "List departments", reloaded.History[0].Query)
	assert.Equal(t, intent.DepartmentInfo, reloaded.History[0].Intent.Intent)
	assert.Equal(t, "CS", reloaded.UserData["department"])
}

func TestExpiredContextIsReplaced(t *testing.T) {
	store, mr := setupStore(t, time.Hour)
	ctx := context.Background()

	c := store.Get(ctx, "10.0.0.3")
	c.Append(Exchange{Query: "anything"})
	require.NoError(t, store.Put(ctx, "10.0.0.3", c))

	mr.FastForward(2 * time.Hour)

	fresh := store.Get(ctx, "10.0.0.3")
	assert.Empty(t, fresh.History)
}

func TestCorruptContextIsReplaced(t *testing.T) {
	store, mr := setupStore(t, time.Hour)

	require.NoError(t, mr.Set("university_assistant_context_10.0.0.4", "{not json"))

	fresh := store.Get(context.Background(), "10.0.0.4")
	assert.Empty(t, fresh.History)
	assert.NotNil(t, fresh.UserData)
}

func TestGetSurvivesRedisFailure(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewStore(&database.RedisClient{Client: client}, time.Hour, logger.NewTestLogger(t))

	key := "university_assistant_context_10.0.0.9"
	mock.ExpectGet(key).SetErr(errors.New("connection reset"))
	mock.Regexp().ExpectSet(key, `.*`, time.Hour).SetErr(errors.New("connection reset"))

	c := store.Get(context.Background(), "10.0.0.9")
	require.NotNil(t, c)
	assert.Empty(t, c.History)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeEntitiesSkipsKnownValues(t *testing.T) {
	c := newContext()
	c.MergeEntities(map[string]string{"department": "CS"})
	c.MergeEntities(map[string]string{"dept_name": "CS", "faculty_name": "Turing", "empty": ""})

	assert.Equal(t, "CS", c.UserData["department"])
	assert.NotContains(t, c.UserData, "dept_name")
	assert.Equal(t, "Turing", c.UserData["faculty_name"])
	assert.NotContains(t, c.UserData, "empty")
}

func TestRecentPromptWindowsHistory(t *testing.T) {
	c := newContext()
	for _, q := range []string{"one", "two", "three", "four"} {
		c.Append(Exchange{Query: q, Response: "answer " + q})
	}

	prompt := c.RecentPrompt(3)
	assert.NotContains(t, prompt, "User: one")
	assert.Contains(t, prompt, "User: two\nAssistant: answer two")
	assert.Contains(t, prompt, "User: four")
}
