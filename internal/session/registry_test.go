package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuappdev/clicker-backend/internal/models"
)

func TestRegistry_StartNewSessionRejectsDuplicate(t *testing.T) {
	reg, n := newTestRegistry(t, newMemStore())

	first, err := reg.StartNewSession(testGroup)
	require.NoError(t, err)
	_, err = reg.StartNewSession(testGroup)
	assert.ErrorIs(t, err, ErrAlreadyActive)

	require.True(t, first.Close())
	second, err := reg.StartNewSession(testGroup)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 2, n.started)
}

func TestRegistry_LookupByIDAndCode(t *testing.T) {
	reg, _ := newTestRegistry(t, newMemStore())
	s, err := reg.StartNewSession(testGroup)
	require.NoError(t, err)

	got, ok := reg.Get(testGroup.ID)
	require.True(t, ok)
	assert.Same(t, s, got)

	got, ok = reg.GetByCode(testGroup.Code)
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = reg.GetByCode("NOPE00")
	assert.False(t, ok)
}

func TestRegistry_EndSessionStoresBeforeTeardown(t *testing.T) {
	store := newMemStore()
	reg, _ := newTestRegistry(t, store)
	s, err := reg.StartNewSession(testGroup)
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	record := func(ev string) {
		mu.Lock()
		order = append(order, ev)
		mu.Unlock()
	}
	store.onSave = func() { record("save") }
	c := NewClient(nil, "u1", models.RoleMember)
	c.SetSendHook(func(f models.WSFrame) { record(f.Type) })
	require.NoError(t, s.Attach(c))

	require.NoError(t, s.StartPoll(singleChoiceDraft("A", "B")))
	require.NoError(t, s.SubmitAnswer("u1", models.Submission{Choices: []int{1}}))
	require.NoError(t, reg.EndSession(context.Background(), testGroup.ID, true))

	assert.Equal(t, []string{"poll", "poll", "save", "poll-ended", "session-closed"}, order)
	assert.Zero(t, reg.Len())
	assert.True(t, c.Closed())
}

func TestRegistry_EndSessionUnknownGroupIsNoop(t *testing.T) {
	reg, _ := newTestRegistry(t, newMemStore())
	assert.NoError(t, reg.EndSession(context.Background(), "missing", true))
}

func TestRegistry_EndSessionPersistenceFailureKeepsSession(t *testing.T) {
	store := newMemStore()
	store.saveErr = errors.New("db down")
	reg, _ := newTestRegistry(t, store)
	s, err := reg.StartNewSession(testGroup)
	require.NoError(t, err)
	require.NoError(t, s.StartPoll(singleChoiceDraft("A", "B")))

	err = reg.EndSession(context.Background(), testGroup.ID, true)
	assert.ErrorIs(t, err, ErrPersistenceFailure)
	_, ok := reg.Get(testGroup.ID)
	assert.True(t, ok)
	assert.NotNil(t, s.AdminView())
}

func TestRegistry_ListLiveFiltersByCode(t *testing.T) {
	reg, _ := newTestRegistry(t, newMemStore())
	_, err := reg.StartNewSession(models.Group{ID: "g1", Name: "One", Code: "AAAAAA"})
	require.NoError(t, err)
	s2, err := reg.StartNewSession(models.Group{ID: "g2", Name: "Two", Code: "BBBBBB"})
	require.NoError(t, err)
	_, err = reg.StartNewSession(models.Group{ID: "g3", Name: "Three", Code: "CCCCCC"})
	require.NoError(t, err)

	live := reg.ListLive([]string{"AAAAAA", "BBBBBB", "ZZZZZZ", "AAAAAA"})
	assert.Equal(t, []models.LiveGroup{
		{ID: "g1", Name: "One", Code: "AAAAAA"},
		{ID: "g2", Name: "Two", Code: "BBBBBB"},
	}, live)

	s2.Close()
	live = reg.ListLive([]string{"BBBBBB"})
	assert.Empty(t, live)
	assert.Empty(t, reg.ListLive(nil))
}

func TestRegistry_ReplacementSurvivesOldSessionTeardown(t *testing.T) {
	store := newMemStore()
	store.entered = make(chan struct{})
	store.release = make(chan struct{})
	reg, _ := newTestRegistry(t, store)
	old, err := reg.StartNewSession(testGroup)
	require.NoError(t, err)
	require.NoError(t, old.StartPoll(singleChoiceDraft("A", "B")))

	done := make(chan error, 1)
	go func() { done <- reg.EndSession(context.Background(), testGroup.ID, true) }()
	<-store.entered

	replacement, err := reg.StartNewSession(testGroup)
	require.NoError(t, err)

	close(store.release)
	require.NoError(t, <-done)

	got, ok := reg.Get(testGroup.ID)
	require.True(t, ok)
	assert.Same(t, replacement, got)
	got, ok = reg.GetByCode(testGroup.Code)
	require.True(t, ok)
	assert.Same(t, replacement, got)
}

func TestRegistry_ReplacedSessionClosesEvenWhenSaveFails(t *testing.T) {
	store := newMemStore()
	store.entered = make(chan struct{})
	store.release = make(chan struct{})
	reg, n := newTestRegistry(t, store)
	old, err := reg.StartNewSession(testGroup)
	require.NoError(t, err)
	require.NoError(t, old.StartPoll(singleChoiceDraft("A", "B")))
	c, member := attach(t, old, "u1", models.RoleMember)

	done := make(chan error, 1)
	go func() { done <- reg.EndSession(context.Background(), testGroup.ID, true) }()
	<-store.entered

	replacement, err := reg.StartNewSession(testGroup)
	require.NoError(t, err)

	store.mu.Lock()
	store.saveErr = errors.New("db down")
	store.mu.Unlock()
	close(store.release)
	assert.ErrorIs(t, <-done, ErrPersistenceFailure)

	assert.True(t, old.IsClosing())
	assert.Nil(t, old.AdminView())
	assert.True(t, c.Closed())
	assert.Len(t, member.ofType("session-closed"), 1)
	assert.ErrorIs(t, old.StartPoll(singleChoiceDraft("A", "B")), ErrInvalidState)

	got, ok := reg.Get(testGroup.ID)
	require.True(t, ok)
	assert.Same(t, replacement, got)
	assert.Equal(t, 1, reg.Len())
	assert.Zero(t, n.closedCount())
}

func TestRegistry_ShutdownEndsEverySession(t *testing.T) {
	store := newMemStore()
	reg, _ := newTestRegistry(t, store)
	for _, g := range []models.Group{{ID: "g1", Code: "AAAAAA"}, {ID: "g2", Code: "BBBBBB"}} {
		s, err := reg.StartNewSession(g)
		require.NoError(t, err)
		require.NoError(t, s.StartPoll(singleChoiceDraft("A", "B")))
	}

	require.NoError(t, reg.Shutdown(context.Background()))
	assert.Zero(t, reg.Len())
	assert.Equal(t, 2, store.saves)
}

func TestRegistry_ShutdownClosesSessionsThatFailToSave(t *testing.T) {
	store := newMemStore()
	store.saveErr = errors.New("db down")
	reg, _ := newTestRegistry(t, store)
	s, err := reg.StartNewSession(testGroup)
	require.NoError(t, err)
	require.NoError(t, s.StartPoll(singleChoiceDraft("A", "B")))

	err = reg.Shutdown(context.Background())
	assert.ErrorIs(t, err, ErrPersistenceFailure)
	assert.Zero(t, reg.Len())
}
