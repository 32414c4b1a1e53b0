package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cuappdev/clicker-backend/internal/models"
)

const (
	SessionStarted = "session_started"
	SessionEnded   = "session_ended"
	PollEnded      = "poll_ended"
	EndRequested   = "end_requested"

	liveCodesKey  = "clicker:live_codes"
	sessionKeyFmt = "clicker:session:%s"
	sessionTTL    = 24 * time.Hour
	redisTimeout  = 2 * time.Second
)

// Publisher mirrors session lifecycle into Redis so other instances and
// tools can see which groups are live, and relays end requests for sessions
// hosted elsewhere. Redis failures are logged and never block a session.
type Publisher struct {
	rdb        *redis.Client
	channel    string
	instanceID string
	log        *zap.Logger
}

func NewPublisher(rdb *redis.Client, channel string, log *zap.Logger) *Publisher {
	return &Publisher{
		rdb:        rdb,
		channel:    channel,
		instanceID: uuid.NewString(),
		log:        log,
	}
}

func (p *Publisher) InstanceID() string { return p.instanceID }

func (p *Publisher) publish(ctx context.Context, ev models.SessionEvent) error {
	ev.InstanceID = p.instanceID
	ev.Timestamp = time.Now().Unix()
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}
	return p.rdb.Publish(ctx, p.channel, data).Err()
}

func (p *Publisher) SessionStarted(group models.Group) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	key := fmt.Sprintf(sessionKeyFmt, group.ID)
	_, err := p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, liveCodesKey, group.Code)
		pipe.HSet(ctx, key, map[string]interface{}{
			"code":       group.Code,
			"instanceId": p.instanceID,
			"startedAt":  time.Now().Unix(),
		})
		pipe.Expire(ctx, key, sessionTTL)
		return nil
	})
	if err == nil {
		err = p.publish(ctx, models.SessionEvent{Type: SessionStarted, GroupID: group.ID, Code: group.Code})
	}
	if err != nil {
		p.log.Warn("failed to record session start", zap.String("groupId", group.ID), zap.Error(err))
	}
}

func (p *Publisher) SessionClosed(group models.Group) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	key := fmt.Sprintf(sessionKeyFmt, group.ID)
	_, err := p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, liveCodesKey, group.Code)
		pipe.Del(ctx, key)
		return nil
	})
	if err == nil {
		err = p.publish(ctx, models.SessionEvent{Type: SessionEnded, GroupID: group.ID, Code: group.Code})
	}
	if err != nil {
		p.log.Warn("failed to record session end", zap.String("groupId", group.ID), zap.Error(err))
	}
}

func (p *Publisher) PollEnded(group models.Group, pollID string, saved bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	ev := models.SessionEvent{Type: PollEnded, GroupID: group.ID, Code: group.Code, PollID: pollID, Save: saved}
	if err := p.publish(ctx, ev); err != nil {
		p.log.Warn("failed to publish poll end", zap.String("groupId", group.ID), zap.Error(err))
	}
}

// RequestEnd asks whichever instance hosts groupID to end its session.
func (p *Publisher) RequestEnd(ctx context.Context, groupID string, save bool) error {
	return p.publish(ctx, models.SessionEvent{Type: EndRequested, GroupID: groupID, Save: save})
}

// LiveCodes returns the join codes of sessions live on any instance.
func (p *Publisher) LiveCodes(ctx context.Context) ([]string, error) {
	return p.rdb.SMembers(ctx, liveCodesKey).Result()
}

// HostOf returns the instance hosting groupID's session, or "" if none.
func (p *Publisher) HostOf(ctx context.Context, groupID string) (string, error) {
	host, err := p.rdb.HGet(ctx, fmt.Sprintf(sessionKeyFmt, groupID), "instanceId").Result()
	if err == redis.Nil {
		return "", nil
	}
	return host, err
}
