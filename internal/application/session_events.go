package application

import (
	evbus "github.com/asaskevich/EventBus"
)

// Session event topics.
const (
	// TopicSessionChanged carries the new Session after every state transition.
	TopicSessionChanged = "session:changed"
	// TopicCredentialsRefreshed fires after a refreshed pair has been persisted.
	// It carries no arguments so tokens never leave the manager.
	TopicCredentialsRefreshed = "session:refreshed"
)

// SessionEvents is the subscription side of the session manager's bus.
// Handlers run synchronously on the publishing goroutine and must not
// publish or subscribe themselves.
type SessionEvents interface {
	OnSessionChanged(fn func(Session)) error
	OnCredentialsRefreshed(fn func()) error
}

type sessionEvents struct {
	bus evbus.Bus
}

func newSessionEvents() *sessionEvents {
	return &sessionEvents{bus: evbus.New()}
}

func (e *sessionEvents) OnSessionChanged(fn func(Session)) error {
	return e.bus.Subscribe(TopicSessionChanged, fn)
}

func (e *sessionEvents) OnCredentialsRefreshed(fn func()) error {
	return e.bus.Subscribe(TopicCredentialsRefreshed, fn)
}

func (e *sessionEvents) sessionChanged(s Session) {
	e.bus.Publish(TopicSessionChanged, s)
}

func (e *sessionEvents) credentialsRefreshed() {
	e.bus.Publish(TopicCredentialsRefreshed)
}
