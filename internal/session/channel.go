package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuappdev/clicker-backend/internal/models"
)

// Audience selects which attached clients receive a broadcast.
type Audience func(*Client) bool

var (
	Everyone Audience = func(*Client) bool { return true }
	Admins   Audience = func(c *Client) bool { return c.Role == models.RoleAdmin }
	Members  Audience = func(c *Client) bool { return c.Role != models.RoleAdmin }
)

// Channel is the broadcast scope of one group: the set of attached
// connections plus a notification fired when the last one detaches.
type Channel struct {
	ID string

	mu         sync.Mutex
	clients    map[*Client]struct{}
	emptySince time.Time
	onEmpty    func()
	released   bool
}

func NewChannel(id string) *Channel {
	return &Channel{
		ID:         id,
		clients:    make(map[*Client]struct{}),
		emptySince: time.Now(),
	}
}

// OnLastDetach registers fn to run after a detach leaves the channel empty.
// fn runs on the detaching goroutine with no channel lock held.
func (ch *Channel) OnLastDetach(fn func()) {
	ch.mu.Lock()
	ch.onEmpty = fn
	ch.mu.Unlock()
}

func (ch *Channel) Attach(c *Client) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.released {
		return fmt.Errorf("%w: channel %s released", ErrInvalidState, ch.ID)
	}
	ch.clients[c] = struct{}{}
	ch.emptySince = time.Time{}
	return nil
}

// Detach removes c and returns the number of clients left.
func (ch *Channel) Detach(c *Client) int {
	ch.mu.Lock()
	_, ok := ch.clients[c]
	delete(ch.clients, c)
	left := len(ch.clients)
	var fire func()
	if ok && left == 0 {
		ch.emptySince = time.Now()
		fire = ch.onEmpty
	}
	ch.mu.Unlock()

	if fire != nil {
		fire()
	}
	return left
}

func (ch *Channel) Len() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.clients)
}

// IdleSince returns when the channel last became empty, or false if clients
// are attached.
func (ch *Channel) IdleSince() (time.Time, bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if len(ch.clients) > 0 {
		return time.Time{}, false
	}
	return ch.emptySince, true
}

// Broadcast sends the frame built for each client in the audience. build may
// return false to skip a client.
func (ch *Channel) Broadcast(aud Audience, build func(*Client) (models.WSFrame, bool)) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	for c := range ch.clients {
		if !aud(c) {
			continue
		}
		if frame, ok := build(c); ok {
			c.Send(frame)
		}
	}
}

// Release sends farewell to every client, closes them and refuses further
// attaches. It returns the number of clients disconnected.
func (ch *Channel) Release(farewell models.WSFrame) int {
	ch.mu.Lock()
	if ch.released {
		ch.mu.Unlock()
		return 0
	}
	ch.released = true
	clients := make([]*Client, 0, len(ch.clients))
	for c := range ch.clients {
		clients = append(clients, c)
	}
	ch.clients = make(map[*Client]struct{})
	ch.onEmpty = nil
	ch.mu.Unlock()

	for _, c := range clients {
		c.Send(farewell)
		c.Close()
	}
	return len(clients)
}
