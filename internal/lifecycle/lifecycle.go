// Package lifecycle models application-lifecycle signals as an inbound
// event stream. The concrete source (OS notifications, a test, the REPL's
// bg/fg commands) is an external collaborator; consumers only see the
// channel.
package lifecycle

import "fmt"

type Event int

const (
	Foreground Event = iota
	Background
	Active
	Inactive
)

func (e Event) String() string {
	switch e {
	case Foreground:
		return "foreground"
	case Background:
		return "background"
	case Active:
		return "active"
	case Inactive:
		return "inactive"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Source delivers lifecycle events.
type Source interface {
	Events() <-chan Event
}

// ManualSource is a Source driven by explicit Emit calls.
type ManualSource struct {
	ch chan Event
}

func NewManualSource() *ManualSource {
	return &ManualSource{ch: make(chan Event, 8)}
}

func (s *ManualSource) Events() <-chan Event { return s.ch }

// Emit delivers an event, dropping it if the consumer is saturated.
func (s *ManualSource) Emit(e Event) {
	select {
	case s.ch <- e:
	default:
	}
}
