package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cuappdev/clicker-backend/internal/models"
)

// setupTestRedis creates a miniredis instance and a redis client for testing
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

var group = models.Group{ID: "g1", Name: "CS 1110", Code: "ABC234"}

func TestPublisher_TracksLiveSessions(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	p := NewPublisher(rdb, "clicker:events", zap.NewNop())
	ctx := context.Background()

	p.SessionStarted(group)

	codes, err := p.LiveCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC234"}, codes)

	host, err := p.HostOf(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, p.InstanceID(), host)
	assert.Equal(t, "ABC234", mr.HGet("clicker:session:g1", "code"))
	assert.True(t, mr.TTL("clicker:session:g1") > 0)

	p.SessionClosed(group)

	codes, err = p.LiveCodes(ctx)
	require.NoError(t, err)
	assert.Empty(t, codes)
	host, err = p.HostOf(ctx, group.ID)
	require.NoError(t, err)
	assert.Empty(t, host)
}

func TestPublisher_RedisDownDoesNotPanic(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	p := NewPublisher(rdb, "clicker:events", zap.NewNop())
	mr.Close()

	p.SessionStarted(group)
	p.PollEnded(group, "poll-1", true)
	p.SessionClosed(group)
}

func TestPublisher_ListenSkipsOwnEvents(t *testing.T) {
	_, rdb := setupTestRedis(t)
	local := NewPublisher(rdb, "clicker:events", zap.NewNop())
	remote := NewPublisher(rdb, "clicker:events", zap.NewNop())

	var mu sync.Mutex
	var got []models.SessionEvent
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go local.Listen(ctx, func(ev models.SessionEvent) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})

	require.Eventually(t, func() bool {
		local.PollEnded(group, "own", true)
		require.NoError(t, remote.RequestEnd(context.Background(), group.ID, true))
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, ev := range got {
		assert.Equal(t, EndRequested, ev.Type)
		assert.Equal(t, remote.InstanceID(), ev.InstanceID)
		assert.Equal(t, "g1", ev.GroupID)
		assert.True(t, ev.Save)
	}
}
