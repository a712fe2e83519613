// Package hub abstracts the real-time connection to the messaging server.
//
// The orchestrator and chat layers are written only against Transport, so
// the concrete wire (websocket here, anything with invoke/event semantics
// in general) stays swappable and mockable.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// State is the transport-reported connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrNotConnected = errors.New("hub not connected")
	// ErrConnectionClosed fails pending invocations when the link drops.
	ErrConnectionClosed = errors.New("hub connection closed")
)

// InvokeError is a hub-side rejection of an invocation.
type InvokeError struct {
	Method string
	Reason string
}

func (e *InvokeError) Error() string {
	return fmt.Sprintf("hub invoke %s failed: %s", e.Method, e.Reason)
}

// Transport is the hub connection handle.
//
// Contract:
//   - Connect/Disconnect are idempotent from the caller's perspective.
//   - Invoke sends a request and waits for its correlated result.
//   - On registers an event handler; registrations survive reconnects.
//   - States delivers transport state changes; slow consumers may miss
//     intermediate states but always observe the latest.
//   - Live reports whether the link is currently usable.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Invoke(ctx context.Context, method string, args ...any) (json.RawMessage, error)
	On(event string, handler func(json.RawMessage))
	States() <-chan State
	Live() bool
}

// TokenSource supplies a currently valid bearer token. *session.Manager
// satisfies this.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}
