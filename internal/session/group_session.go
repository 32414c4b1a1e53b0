package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cuappdev/clicker-backend/internal/metrics"
	"github.com/cuappdev/clicker-backend/internal/models"
)

// PollStore is the durable home of ended polls.
type PollStore interface {
	Save(ctx context.Context, poll models.Poll) (string, error)
	Delete(ctx context.Context, pollID string) error
	LoadEndedPolls(ctx context.Context, groupID string) ([]models.Poll, error)
}

// Notifier is told about session and poll lifecycle changes.
type Notifier interface {
	SessionStarted(group models.Group)
	SessionClosed(group models.Group)
	PollEnded(group models.Group, pollID string, saved bool)
}

type nopNotifier struct{}

func (nopNotifier) SessionStarted(models.Group)          {}
func (nopNotifier) SessionClosed(models.Group)           {}
func (nopNotifier) PollEnded(models.Group, string, bool) {}

// GroupSession is the live state of one group: its channel and at most one
// running poll. All mutations go through its methods and are serialized by mu.
type GroupSession struct {
	Group models.Group

	channel        *Channel
	store          PollStore
	notify         Notifier
	log            *zap.Logger
	persistTimeout time.Duration
	onClose        func(*GroupSession) bool
	// registered reports whether the registry still maps the group to this
	// session. Nil means always.
	registered func(*GroupSession) bool

	// closing is set before any persistence done on the way down, so a
	// second close attempt returns immediately instead of queueing on mu.
	closing atomic.Bool

	mu           sync.Mutex
	current      *LivePoll
	endRequested bool
	endSave      bool
}

func newGroupSession(group models.Group, store PollStore, notify Notifier, log *zap.Logger, persistTimeout time.Duration) *GroupSession {
	return &GroupSession{
		Group:          group,
		channel:        NewChannel(group.ID),
		store:          store,
		notify:         notify,
		log:            log.With(zap.String("groupId", group.ID), zap.String("code", group.Code)),
		persistTimeout: persistTimeout,
	}
}

func (s *GroupSession) Channel() *Channel { return s.channel }

func (s *GroupSession) IsClosing() bool { return s.closing.Load() }

// Attach adds c to the channel and sends it the current poll, if any.
func (s *GroupSession) Attach(c *Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return fmt.Errorf("%w: session closing", ErrInvalidState)
	}
	if err := s.channel.Attach(c); err != nil {
		return err
	}
	metrics.ConnectionOpened()
	if s.current != nil {
		c.Send(s.viewFrameLocked(c))
	}
	return nil
}

// Detach removes an attached client. If an end was requested and c was the
// last connection, the session shuts down before Detach returns.
func (s *GroupSession) Detach(c *Client) {
	s.channel.Detach(c)
	metrics.ConnectionClosed()
}

// StartPoll makes d the running poll. A poll that is already running is
// replaced and its answers are dropped.
func (s *GroupSession) StartPoll(d models.PollDraft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return fmt.Errorf("%w: session closing", ErrInvalidState)
	}
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidChoice, err)
	}
	if s.current != nil {
		s.log.Warn("replacing running poll", zap.Int("droppedAnswers", s.current.answerCount()))
	}
	s.current = newLivePoll(d)
	s.log.Info("poll started", zap.String("type", string(d.Type)))
	s.broadcastPollLocked()
	return nil
}

func (s *GroupSession) SubmitAnswer(userID string, sub models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return fmt.Errorf("%w: session closing", ErrInvalidState)
	}
	if s.current == nil {
		return ErrNoActivePoll
	}
	if err := s.current.submit(userID, sub); err != nil {
		if !errors.Is(err, errTallyUnderflow) {
			return err
		}
		s.log.Error("tally reconciliation clamped a count", zap.String("userId", userID), zap.Error(err))
	}
	metrics.AnswerSubmitted()
	s.broadcastPollLocked()
	return nil
}

// StopPoll ends voting on the running poll without removing it.
func (s *GroupSession) StopPoll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return fmt.Errorf("%w: session closing", ErrInvalidState)
	}
	if s.current == nil {
		return ErrNoActivePoll
	}
	if s.current.state != models.PollLive {
		return fmt.Errorf("%w: poll is %s", ErrInvalidState, s.current.state)
	}
	s.current.state = models.PollEnded
	s.broadcastPollLocked()
	return nil
}

// ShareResults lets members see counts once voting has stopped.
func (s *GroupSession) ShareResults() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return fmt.Errorf("%w: session closing", ErrInvalidState)
	}
	if s.current == nil {
		return ErrNoActivePoll
	}
	s.current.shared = true
	s.broadcastPollLocked()
	return nil
}

// AdminView returns the running poll with counts and every selection, or nil.
func (s *GroupSession) AdminView() *models.AdminPollView {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	v := s.current.adminView()
	return &v
}

// MemberView returns the running poll as userID may see it, or nil.
func (s *GroupSession) MemberView(userID string) *models.MemberPollView {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	v := s.current.memberView(userID)
	return &v
}

// CurrentPollView returns the role-appropriate view of the running poll, or
// nil when there is none.
func (s *GroupSession) CurrentPollView(role models.Role, userID string) any {
	if role == models.RoleAdmin {
		if v := s.AdminView(); v != nil {
			return v
		}
		return nil
	}
	if v := s.MemberView(userID); v != nil {
		return v
	}
	return nil
}

// EndPoll finishes the running poll, storing it first when save is set. The
// poll stays running if the store fails. Without a running poll it does nothing.
func (s *GroupSession) EndPoll(ctx context.Context, save bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return fmt.Errorf("%w: session closing", ErrInvalidState)
	}
	return s.endPollLocked(ctx, save)
}

func (s *GroupSession) endPollLocked(ctx context.Context, save bool) error {
	if s.current == nil {
		return nil
	}
	var pollID string
	if save {
		ctx, cancel := context.WithTimeout(ctx, s.persistTimeout)
		defer cancel()
		id, err := s.store.Save(ctx, s.current.snapshot(s.Group.ID))
		if err != nil {
			s.log.Error("failed to save poll", zap.Error(err))
			return fmt.Errorf("%w: save poll: %w", ErrPersistenceFailure, err)
		}
		pollID = id
	}
	s.current = nil
	s.channel.Broadcast(Everyone, func(*Client) (models.WSFrame, bool) {
		return models.WSFrame{Type: "poll-ended", Data: models.PollEndedNotice{PollID: pollID, Saved: save}}, true
	})
	metrics.PollEnded(save)
	s.notify.PollEnded(s.Group, pollID, save)
	s.log.Info("poll ended", zap.String("pollId", pollID), zap.Bool("saved", save))
	return nil
}

// DeleteLivePoll drops the running poll without storing it.
func (s *GroupSession) DeleteLivePoll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return fmt.Errorf("%w: session closing", ErrInvalidState)
	}
	if s.current == nil {
		return ErrNoActivePoll
	}
	s.current = nil
	s.channel.Broadcast(Everyone, func(*Client) (models.WSFrame, bool) {
		return models.WSFrame{Type: "poll-deleted", Data: models.PollDeletedNotice{Live: true}}, true
	})
	return nil
}

// DeletePoll removes a stored poll of this group. The running poll is untouched.
func (s *GroupSession) DeletePoll(ctx context.Context, pollID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return fmt.Errorf("%w: session closing", ErrInvalidState)
	}
	ctx, cancel := context.WithTimeout(ctx, s.persistTimeout)
	defer cancel()
	if err := s.store.Delete(ctx, pollID); err != nil {
		s.log.Error("failed to delete poll", zap.String("pollId", pollID), zap.Error(err))
		return fmt.Errorf("%w: delete poll: %w", ErrPersistenceFailure, err)
	}
	s.channel.Broadcast(Everyone, func(*Client) (models.WSFrame, bool) {
		return models.WSFrame{Type: "poll-deleted", Data: models.PollDeletedNotice{PollID: pollID}}, true
	})
	return nil
}

// RequestEnd asks for the session to end once its last connection detaches.
// If nobody is attached it ends now.
func (s *GroupSession) RequestEnd(ctx context.Context, save bool) error {
	s.mu.Lock()
	if s.closing.Load() {
		s.mu.Unlock()
		return nil
	}
	s.endRequested = true
	s.endSave = save
	s.mu.Unlock()

	if s.channel.Len() == 0 {
		return s.Shutdown(ctx, save)
	}
	return nil
}

func (s *GroupSession) handleLastDetach() {
	s.mu.Lock()
	requested, save := s.endRequested, s.endSave
	s.mu.Unlock()
	if !requested {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()
	if err := s.Shutdown(ctx, save); err != nil {
		s.log.Error("requested end failed", zap.Error(err))
	}
}

// Shutdown ends the running poll and then closes the session. If storing the
// poll fails the session stays open and the error is returned, unless a newer
// session has replaced it in the registry meanwhile; then it is torn down
// anyway. Calls after the first successful or in-flight one do nothing.
func (s *GroupSession) Shutdown(ctx context.Context, save bool) error {
	if !s.closing.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	if err := s.endPollLocked(ctx, save); err != nil {
		if s.registered == nil || s.registered(s) {
			s.closing.Store(false)
			s.mu.Unlock()
			return err
		}
		s.teardownLocked("replaced")
		s.mu.Unlock()
		s.finish()
		return err
	}
	s.teardownLocked("ended")
	s.mu.Unlock()
	s.finish()
	return nil
}

// Close tears the session down without storing anything. It reports whether
// this call performed the teardown.
func (s *GroupSession) Close() bool {
	if !s.closing.CompareAndSwap(false, true) {
		return false
	}
	s.mu.Lock()
	s.teardownLocked("closed")
	s.mu.Unlock()
	s.finish()
	return true
}

func (s *GroupSession) teardownLocked(reason string) {
	if s.current != nil {
		s.log.Warn("discarding running poll on close", zap.Int("answers", s.current.answerCount()))
	}
	s.current = nil
	n := s.channel.Release(models.WSFrame{
		Type: "session-closed",
		Data: models.SessionClosedNotice{GroupID: s.Group.ID, Reason: reason},
	})
	s.log.Info("session closed", zap.String("reason", reason), zap.Int("disconnected", n))
}

func (s *GroupSession) finish() {
	// A session already replaced in the registry must not announce the
	// group as closed.
	if s.onClose != nil && !s.onClose(s) {
		return
	}
	s.notify.SessionClosed(s.Group)
}

func (s *GroupSession) broadcastPollLocked() {
	admin := s.current.adminView()
	s.channel.Broadcast(Admins, func(*Client) (models.WSFrame, bool) {
		return models.WSFrame{Type: "poll", Data: admin}, true
	})
	s.channel.Broadcast(Members, func(c *Client) (models.WSFrame, bool) {
		return models.WSFrame{Type: "poll", Data: s.current.memberView(c.UserID)}, true
	})
}

func (s *GroupSession) viewFrameLocked(c *Client) models.WSFrame {
	if c.IsAdmin() {
		return models.WSFrame{Type: "poll", Data: s.current.adminView()}
	}
	return models.WSFrame{Type: "poll", Data: s.current.memberView(c.UserID)}
}
