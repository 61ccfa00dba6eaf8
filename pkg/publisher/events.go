package publisher

import "github.com/enku/gentoo-build-publisher/pkg/model"

// EventType names a build state transition
type EventType string

const (
	// EventPrePull fires before an artifact download starts
	EventPrePull EventType = "prepull"

	// EventPostPull fires after a build is committed to the store
	EventPostPull EventType = "postpull"

	// EventPublished fires after the publish pointer moved to a build
	EventPublished EventType = "published"

	// EventPreDelete fires before a build is removed
	EventPreDelete EventType = "predelete"

	// EventPostDelete fires after a build was removed
	EventPostDelete EventType = "postdelete"
)

// Event is one build state transition
type Event struct {
	Type  EventType
	Build model.Build
}

// Observer receives events synchronously, in subscription order, on
// the goroutine performing the transition. Observers must not call
// back into the publisher for the same machine.
type Observer func(Event)

// Subscribe registers an observer for all events
func (p *Publisher) Subscribe(fn Observer) {
	p.obsMu.Lock()
	defer p.obsMu.Unlock()
	p.observers = append(p.observers, fn)
}

func (p *Publisher) notify(event Event) {
	p.obsMu.RLock()
	observers := p.observers
	p.obsMu.RUnlock()
	for _, fn := range observers {
		fn(event)
	}
}
