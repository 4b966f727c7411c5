package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeWelcome       Type = "user.welcome"
	TypePasswordReset Type = "user.password_reset"
	TypePasswordSet   Type = "user.password_changed"
)

// Message is a fire-and-forget notification. Nothing in the auth flow
// depends on delivery; a dropped message is an inconvenience, not a bug.
type Message struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Email     string    `json:"email"`
	Token     string    `json:"token,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Notifier interface {
	Publish(m Message)
}

// InMemoryBus fans messages out to subscribers without ever blocking the
// publisher. Slow subscribers lose messages.
type InMemoryBus struct {
	mu          sync.RWMutex
	subscribers map[string]chan Message
}

func NewBus() *InMemoryBus {
	return &InMemoryBus{
		subscribers: make(map[string]chan Message),
	}
}

func (b *InMemoryBus) Publish(m Message) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- m:
		default:
			// Subscriber buffer full; drop rather than block the request path.
		}
	}
}

func (b *InMemoryBus) Subscribe() (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan Message, 100)
	b.subscribers[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, exists := b.subscribers[id]; exists {
			close(ch)
			delete(b.subscribers, id)
		}
	}

	return ch, unsubscribe
}
