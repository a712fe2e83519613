// Package notify delivers user-visible notifications. Upload and auth
// failures are published here so no error dies silently in a log file;
// the frontend subscribes and renders whatever arrives.
package notify

import (
	"sync"
	"time"
)

type Level int

const (
	Info Level = iota
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

type Notification struct {
	Seq       int64
	Level     Level
	Text      string
	Timestamp time.Time
}

// Center is a bounded-replay publish/subscribe hub for notifications.
// Subscribers that stop draining are dropped rather than blocking
// publishers.
type Center struct {
	mu      sync.Mutex
	nextSeq int64
	limit   int
	history []Notification
	subs    map[int]chan Notification
	nextSub int
}

func NewCenter(replayLimit int) *Center {
	if replayLimit < 1 {
		replayLimit = 1
	}
	return &Center{
		limit: replayLimit,
		subs:  make(map[int]chan Notification),
	}
}

func (c *Center) Publish(level Level, text string) Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSeq++
	n := Notification{
		Seq:       c.nextSeq,
		Level:     level,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
	c.history = append(c.history, n)
	if len(c.history) > c.limit {
		c.history = append([]Notification(nil), c.history[len(c.history)-c.limit:]...)
	}

	for id, ch := range c.subs {
		select {
		case ch <- n:
		default:
			close(ch)
			delete(c.subs, id)
		}
	}

	return n
}

// Subscribe returns the retained history after fromSeq, a live channel,
// and a cancel function.
func (c *Center) Subscribe(fromSeq int64) ([]Notification, <-chan Notification, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	replay := make([]Notification, 0)
	for _, n := range c.history {
		if n.Seq > fromSeq {
			replay = append(replay, n)
		}
	}

	id := c.nextSub
	c.nextSub++
	ch := make(chan Notification, 64)
	c.subs[id] = ch

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			close(sub)
			delete(c.subs, id)
		}
	}

	return replay, ch, cancel
}

// Recent returns up to the retained history, newest last.
func (c *Center) Recent() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notification(nil), c.history...)
}
