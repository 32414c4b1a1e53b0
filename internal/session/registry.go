package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/cuappdev/clicker-backend/internal/metrics"
	"github.com/cuappdev/clicker-backend/internal/models"
)

const defaultPersistTimeout = 10 * time.Second

// Registry holds every live GroupSession in the process, keyed by group id,
// with a second index by join code. At most one open session exists per group.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*GroupSession
	byCode   map[string]string

	store          PollStore
	notify         Notifier
	log            *zap.Logger
	persistTimeout time.Duration
}

type Option func(*Registry)

func WithNotifier(n Notifier) Option {
	return func(r *Registry) { r.notify = n }
}

func WithPersistTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.persistTimeout = d
		}
	}
}

func NewRegistry(store PollStore, log *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		sessions:       make(map[string]*GroupSession),
		byCode:         make(map[string]string),
		store:          store,
		notify:         nopNotifier{},
		log:            log,
		persistTimeout: defaultPersistTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StartNewSession opens a session for group on a fresh channel. It fails with
// ErrAlreadyActive while an open session for the group exists.
func (r *Registry) StartNewSession(group models.Group) (*GroupSession, error) {
	r.mu.Lock()
	if existing, ok := r.sessions[group.ID]; ok && !existing.IsClosing() {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: group %s", ErrAlreadyActive, group.ID)
	}
	s := newGroupSession(group, r.store, r.notify, r.log, r.persistTimeout)
	s.onClose = r.remove
	s.registered = r.holds
	s.channel.OnLastDetach(s.handleLastDetach)
	r.sessions[group.ID] = s
	r.byCode[group.Code] = group.ID
	live := len(r.sessions)
	r.mu.Unlock()

	metrics.SetLiveSessions(live)
	r.notify.SessionStarted(group)
	r.log.Info("session started", zap.String("groupId", group.ID), zap.String("code", group.Code))
	return s, nil
}

// remove drops s from the registry if it is still the registered session and
// reports whether it was.
func (r *Registry) remove(s *GroupSession) bool {
	r.mu.Lock()
	cur, ok := r.sessions[s.Group.ID]
	removed := ok && cur == s
	if removed {
		delete(r.sessions, s.Group.ID)
		if r.byCode[s.Group.Code] == s.Group.ID {
			delete(r.byCode, s.Group.Code)
		}
	}
	live := len(r.sessions)
	r.mu.Unlock()
	metrics.SetLiveSessions(live)
	return removed
}

// holds reports whether s is the session registered for its group.
func (r *Registry) holds(s *GroupSession) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[s.Group.ID] == s
}

// EndSession ends the running poll of the group and then closes its session.
// Unknown groups are ignored.
func (r *Registry) EndSession(ctx context.Context, groupID string, save bool) error {
	s, ok := r.Get(groupID)
	if !ok {
		return nil
	}
	return s.Shutdown(ctx, save)
}

func (r *Registry) Get(groupID string) (*GroupSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[groupID]
	return s, ok
}

func (r *Registry) GetByCode(code string) (*GroupSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byCode[code]
	if !ok {
		return nil, false
	}
	s, ok := r.sessions[id]
	return s, ok
}

// ListLive returns the open sessions whose group code is in codes.
func (r *Registry) ListLive(codes []string) []models.LiveGroup {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.LiveGroup, 0, len(codes))
	for _, code := range lo.Uniq(codes) {
		s, ok := r.sessions[r.byCode[code]]
		if !ok || s.IsClosing() {
			continue
		}
		out = append(out, models.LiveGroup{ID: s.Group.ID, Name: s.Group.Name, Code: s.Group.Code})
	}
	return out
}

// Sessions returns a snapshot of the registered sessions.
func (r *Registry) Sessions() []*GroupSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.sessions)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Shutdown ends every session, storing running polls. Sessions whose poll
// cannot be stored are closed anyway and the failures are returned.
func (r *Registry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, s := range r.Sessions() {
		if err := s.Shutdown(ctx, true); err != nil {
			errs = append(errs, fmt.Errorf("group %s: %w", s.Group.ID, err))
			s.Close()
		}
	}
	return errors.Join(errs...)
}
