package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cuappdev/clicker-backend/internal/models"
)

type memStore struct {
	mu        sync.Mutex
	polls     map[string]models.Poll
	saveErr   error
	deleteErr error
	saves     int
	// when set, Save signals entered and waits on release
	entered chan struct{}
	release chan struct{}
	onSave  func()
}

func newMemStore() *memStore {
	return &memStore{polls: make(map[string]models.Poll)}
}

func (m *memStore) Save(ctx context.Context, poll models.Poll) (string, error) {
	if m.entered != nil {
		m.entered <- struct{}{}
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.onSave != nil {
		m.onSave()
	}
	if m.saveErr != nil {
		return "", m.saveErr
	}
	poll.ID = fmt.Sprintf("poll-%d", m.saves)
	m.polls[poll.ID] = poll
	return poll.ID, nil
}

func (m *memStore) Delete(_ context.Context, pollID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.polls[pollID]; !ok {
		return errors.New("not found")
	}
	delete(m.polls, pollID)
	return nil
}

func (m *memStore) LoadEndedPolls(_ context.Context, groupID string) ([]models.Poll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Poll
	for _, p := range m.polls {
		if p.GroupID == groupID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) get(id string) (models.Poll, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.polls[id]
	return p, ok
}

type recordingNotifier struct {
	mu      sync.Mutex
	started int
	closed  int
	ended   []string
}

func (n *recordingNotifier) SessionStarted(models.Group) {
	n.mu.Lock()
	n.started++
	n.mu.Unlock()
}

func (n *recordingNotifier) SessionClosed(models.Group) {
	n.mu.Lock()
	n.closed++
	n.mu.Unlock()
}

func (n *recordingNotifier) PollEnded(_ models.Group, pollID string, _ bool) {
	n.mu.Lock()
	n.ended = append(n.ended, pollID)
	n.mu.Unlock()
}

func (n *recordingNotifier) closedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

type frameCapture struct {
	mu     sync.Mutex
	frames []models.WSFrame
}

func (f *frameCapture) hook(frame models.WSFrame) {
	f.mu.Lock()
	f.frames = append(f.frames, frame)
	f.mu.Unlock()
}

func (f *frameCapture) ofType(typ string) []models.WSFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.WSFrame
	for _, fr := range f.frames {
		if fr.Type == typ {
			out = append(out, fr)
		}
	}
	return out
}

func (f *frameCapture) last(t *testing.T, typ string) models.WSFrame {
	t.Helper()
	frames := f.ofType(typ)
	require.NotEmptyf(t, frames, "no %q frame received", typ)
	return frames[len(frames)-1]
}

var testGroup = models.Group{ID: "g1", Name: "CS 1110", Code: "ABC123"}

func newTestRegistry(t *testing.T, store PollStore) (*Registry, *recordingNotifier) {
	t.Helper()
	n := &recordingNotifier{}
	return NewRegistry(store, zap.NewNop(), WithNotifier(n)), n
}

func startTestSession(t *testing.T, store PollStore) (*GroupSession, *Registry, *recordingNotifier) {
	t.Helper()
	reg, n := newTestRegistry(t, store)
	s, err := reg.StartNewSession(testGroup)
	require.NoError(t, err)
	return s, reg, n
}

func attach(t *testing.T, s *GroupSession, userID string, role models.Role) (*Client, *frameCapture) {
	t.Helper()
	c := NewClient(nil, userID, role)
	capture := &frameCapture{}
	c.SetSendHook(capture.hook)
	require.NoError(t, s.Attach(c))
	return c, capture
}
