package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	ristretto_store "github.com/eko/gocache/store/ristretto/v4"
	"go.uber.org/zap"

	"github.com/cuappdev/clicker-backend/internal/models"
)

const endedPollsTTL = 5 * time.Minute

// CachedPollRepository keeps each group's ended-poll list in an in-process
// cache. Writes go through to the database and drop the group's entry. A list
// read while a write to the same group was in flight is returned but not
// cached.
type CachedPollRepository struct {
	repo   *PollRepository
	client *ristretto.Cache
	cache  *cache.Cache[[]models.Poll]
	log    *zap.Logger

	mu   sync.Mutex
	gens map[string]uint64 // bumped by every write to a group

	afterLoad func() // runs between the database read and the cache fill
}

func NewCachedPollRepository(repo *PollRepository, log *zap.Logger) (*CachedPollRepository, error) {
	client, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedPollRepository{
		repo:   repo,
		client: client,
		cache:  cache.New[[]models.Poll](ristretto_store.NewRistretto(client)),
		log:    log,
		gens:   make(map[string]uint64),
	}, nil
}

func endedKey(groupID string) string { return "ended:" + groupID }

func (r *CachedPollRepository) Save(ctx context.Context, poll models.Poll) (string, error) {
	id, err := r.repo.Save(ctx, poll)
	if err != nil {
		return "", err
	}
	r.invalidate(ctx, poll.GroupID)
	return id, nil
}

func (r *CachedPollRepository) Delete(ctx context.Context, pollID string) error {
	poll, err := r.repo.Get(ctx, pollID)
	if err != nil {
		return err
	}
	if err := r.repo.Delete(ctx, pollID); err != nil {
		return err
	}
	r.invalidate(ctx, poll.GroupID)
	return nil
}

func (r *CachedPollRepository) LoadEndedPolls(ctx context.Context, groupID string) ([]models.Poll, error) {
	key := endedKey(groupID)
	if polls, err := r.cache.Get(ctx, key); err == nil {
		return polls, nil
	}

	r.mu.Lock()
	gen := r.gens[groupID]
	r.mu.Unlock()

	polls, err := r.repo.LoadEndedPolls(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if r.afterLoad != nil {
		r.afterLoad()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gens[groupID] != gen {
		return polls, nil
	}
	if err := r.cache.Set(ctx, key, polls, store.WithCost(1), store.WithExpiration(endedPollsTTL)); err != nil {
		r.log.Debug("ended polls not cached", zap.String("groupId", groupID), zap.Error(err))
	}
	return polls, nil
}

func (r *CachedPollRepository) invalidate(ctx context.Context, groupID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gens[groupID]++
	_ = r.cache.Delete(ctx, endedKey(groupID))
}
