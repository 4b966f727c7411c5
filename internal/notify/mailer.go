package notify

import (
	"context"
	"log/slog"
)

// LogMailer consumes notification messages and writes them to the log.
// Stands in for a real mail sender; swapping it out does not touch the
// auth flow because delivery is not required for correctness.
type LogMailer struct {
	bus *InMemoryBus
}

func NewLogMailer(bus *InMemoryBus) *LogMailer {
	return &LogMailer{bus: bus}
}

func (m *LogMailer) Run(ctx context.Context) {
	ch, unsubscribe := m.bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			switch msg.Type {
			case TypePasswordReset:
				// The raw token is intentionally not logged in full.
				slog.Info("password reset mail", "email", msg.Email, "token_len", len(msg.Token))
			default:
				slog.Info("notification mail", "type", string(msg.Type), "email", msg.Email)
			}
		}
	}
}
