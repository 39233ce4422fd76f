// Package notice holds user-facing notifications. Transient notices
// dismiss themselves after a fixed duration; blocking ones stay until
// dismissed explicitly.
package notice

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultDuration is how long a transient notice stays visible.
const DefaultDuration = 5 * time.Second

type Kind string

const (
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindSuccess Kind = "success"
	KindInfo    Kind = "info"
)

type Notice struct {
	ID       string
	Kind     Kind
	Message  string
	Blocking bool
	Shown    time.Time
}

// Center tracks active notices.
type Center struct {
	duration time.Duration

	mu        sync.Mutex
	active    []Notice
	timers    map[string]*time.Timer
	listeners []func(Notice)
}

// NewCenter creates a Center whose transient notices last d. A
// non-positive d selects DefaultDuration.
func NewCenter(d time.Duration) *Center {
	if d <= 0 {
		d = DefaultDuration
	}
	return &Center{duration: d, timers: make(map[string]*time.Timer)}
}

// Listen registers fn to be called for every notice shown.
func (c *Center) Listen(fn func(Notice)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Show raises a transient notice.
func (c *Center) Show(kind Kind, msg string) Notice {
	return c.add(kind, msg, false)
}

// Block raises a notice that never dismisses itself.
func (c *Center) Block(kind Kind, msg string) Notice {
	return c.add(kind, msg, true)
}

func (c *Center) add(kind Kind, msg string, blocking bool) Notice {
	n := Notice{
		ID:       uuid.NewString(),
		Kind:     kind,
		Message:  msg,
		Blocking: blocking,
		Shown:    time.Now(),
	}

	c.mu.Lock()
	c.active = append(c.active, n)
	if !blocking {
		id := n.ID
		c.timers[id] = time.AfterFunc(c.duration, func() { c.Dismiss(id) })
	}
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(n)
	}
	return n
}

// Dismiss removes a notice. It reports whether the notice was active.
func (c *Center) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
	i := slices.IndexFunc(c.active, func(n Notice) bool { return n.ID == id })
	if i < 0 {
		return false
	}
	c.active = slices.Delete(c.active, i, i+1)
	return true
}

// Active returns the notices currently shown, oldest first.
func (c *Center) Active() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.active)
}

// Close stops all pending dismiss timers. Active notices are kept.
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}
