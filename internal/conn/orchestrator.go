// Package conn owns the real-time connection's lifecycle: it reacts to
// application-lifecycle transitions, runs the heartbeat while the link is
// active, and drives reconnection with a catch-up data reload when the
// transport drops.
//
// All state lives in a single event loop (Run); commands, lifecycle events,
// transport state changes and timer fires are inputs to that loop. There is
// deliberately no second place that mutates connection state.
package conn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chatlink/internal/hub"
	"chatlink/internal/lifecycle"
	"chatlink/internal/logging"
	"chatlink/internal/observability/metrics"
)

// State is the orchestrator's lifecycle state. It is coarser than the
// transport state: SuspendedBackground exists only here.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	SuspendedBackground
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
	case SuspendedBackground:
		return "suspended_background"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrNotRunning is returned by commands when the event loop has stopped.
var ErrNotRunning = errors.New("orchestrator is not running")

// ErrReconnectFailed is returned when the bounded reconnect attempts are
// exhausted. The caller decides whether to try again.
var ErrReconnectFailed = errors.New("reconnect attempts exhausted")

// Reloader performs the full data reload after a recovered drop: re-fetch
// the conversation list and the open conversation's history. Messages that
// arrived during the gap are not replayed by the transport, so they must be
// fetched explicitly.
type Reloader interface {
	ReloadAll(ctx context.Context) error
}

// Options tune the lifecycle policy. Zero values fall back to defaults.
type Options struct {
	HeartbeatInterval time.Duration // default 30s
	BackgroundGrace   time.Duration // default 25s
	PingTimeout       time.Duration // default 10s
	ReconnectAttempts int           // default 5
	ReconnectDelay    time.Duration // default 2s
	PingMethod        string        // default "Ping"
	ReloadTimeout     time.Duration // default 30s
}

func (o *Options) defaults() {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.BackgroundGrace <= 0 {
		o.BackgroundGrace = 25 * time.Second
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = 10 * time.Second
	}
	if o.ReconnectAttempts <= 0 {
		o.ReconnectAttempts = 5
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = 2 * time.Second
	}
	if o.PingMethod == "" {
		o.PingMethod = "Ping"
	}
	if o.ReloadTimeout <= 0 {
		o.ReloadTimeout = 30 * time.Second
	}
}

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdStop
	cmdEnsureLive
)

type command struct {
	kind  cmdKind
	ctx   context.Context
	reply chan error
}

type Orchestrator struct {
	tr     hub.Transport
	reload Reloader
	events <-chan lifecycle.Event
	log    logging.Logger
	mtr    *metrics.Metrics
	opts   Options

	cmds chan command
	done chan struct{}

	mu    sync.Mutex
	state State

	// loop-owned; never touched outside Run
	needsReload bool
	heartbeat   *time.Ticker
	heartbeatC  <-chan time.Time
	grant       *time.Timer
	grantC      <-chan time.Time
}

func New(tr hub.Transport, reload Reloader, src lifecycle.Source, mtr *metrics.Metrics, log logging.Logger, opts Options) *Orchestrator {
	opts.defaults()
	if log == nil {
		log = logging.NewNopLogger()
	}
	if mtr == nil {
		mtr = metrics.New(nil)
	}
	return &Orchestrator{
		tr:     tr,
		reload: reload,
		events: src.Events(),
		log:    log,
		mtr:    mtr,
		opts:   opts,
		cmds:   make(chan command),
		done:   make(chan struct{}),
		state:  Disconnected,
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Start establishes the connection. An establishment failure is returned
// as-is; there is no retry loop here, the caller owns that decision.
func (o *Orchestrator) Start(ctx context.Context) error { return o.send(ctx, cmdStart) }

// Stop tears the connection down and moves to Disconnected.
func (o *Orchestrator) Stop(ctx context.Context) error { return o.send(ctx, cmdStop) }

// EnsureLive is the eager health check run before a conversation fetch:
// if the transport is not live it forces a reconnect first, so the caller
// never reads stale state over a dead link.
func (o *Orchestrator) EnsureLive(ctx context.Context) error { return o.send(ctx, cmdEnsureLive) }

func (o *Orchestrator) send(ctx context.Context, kind cmdKind) error {
	c := command{kind: kind, ctx: ctx, reply: make(chan error, 1)}
	select {
	case o.cmds <- c:
	case <-o.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-c.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the event loop. It owns every piece of lifecycle state and every
// timer; it returns when ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	defer close(o.done)
	defer o.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-o.cmds:
			c.reply <- o.handleCommand(c)
		case ev, ok := <-o.events:
			if !ok {
				o.events = nil
				continue
			}
			o.handleLifecycle(ctx, ev)
		case s := <-o.tr.States():
			o.handleTransportState(ctx, s)
		case <-o.heartbeatC:
			o.handleHeartbeat(ctx)
		case <-o.grantC:
			o.handleGrantExpiry(ctx)
		}
	}
}

func (o *Orchestrator) shutdown() {
	o.stopHeartbeat()
	o.stopGrant()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = o.tr.Disconnect(ctx)
	o.setState(Disconnected)
}

func (o *Orchestrator) setState(next State) {
	o.mu.Lock()
	prev := o.state
	o.state = next
	o.mu.Unlock()

	if prev != next {
		o.mtr.ConnTransitionsTotal.WithLabelValues(prev.String(), next.String()).Inc()
		o.log.Info(context.Background(), "connection state changed", "from", prev.String(), "to", next.String())
	}
}

func (o *Orchestrator) handleCommand(c command) error {
	switch c.kind {
	case cmdStart:
		return o.connectFresh(c.ctx)
	case cmdStop:
		o.stopHeartbeat()
		o.stopGrant()
		o.needsReload = false
		_ = o.tr.Disconnect(c.ctx)
		o.setState(Disconnected)
		return nil
	case cmdEnsureLive:
		return o.ensureLive(c.ctx)
	default:
		return fmt.Errorf("unknown command %d", c.kind)
	}
}

// connectFresh is the explicit-start path: no reload is owed because the
// caller performs its initial data load after a successful start.
func (o *Orchestrator) connectFresh(ctx context.Context) error {
	if o.State() == Connected && o.tr.Live() {
		return nil
	}
	o.stopGrant()
	o.setState(Connecting)

	if err := o.tr.Connect(ctx); err != nil {
		o.setState(Disconnected)
		return err
	}
	o.enterConnected(ctx)
	return nil
}

func (o *Orchestrator) ensureLive(ctx context.Context) error {
	st := o.State()
	if st == Connected && o.tr.Live() {
		return nil
	}
	if st == SuspendedBackground && o.tr.Live() {
		// quick resume; nothing was missed while the link stayed up
		o.stopGrant()
		o.enterConnected(ctx)
		return nil
	}

	o.stopGrant()
	o.stopHeartbeat()
	o.needsReload = true
	o.setState(Reconnecting)
	return o.attemptReconnect(ctx)
}

func (o *Orchestrator) handleLifecycle(ctx context.Context, ev lifecycle.Event) {
	o.log.Debug(ctx, "lifecycle event", "event", ev.String())

	switch ev {
	case lifecycle.Background:
		if o.State() != Connected {
			return
		}
		// Keep the transport up within the grace window so a quick
		// foreground return costs nothing.
		o.stopHeartbeat()
		o.startGrant()
		o.setState(SuspendedBackground)

	case lifecycle.Foreground:
		if o.State() != SuspendedBackground {
			return
		}
		o.stopGrant()
		o.resume(ctx)

	case lifecycle.Active, lifecycle.Inactive:
		// informational only
	}
}

// resume leaves SuspendedBackground: a live transport goes straight back
// to Connected without a reload; a dead one forces reconnect + reload.
func (o *Orchestrator) resume(ctx context.Context) {
	if o.tr.Live() {
		o.enterConnected(ctx)
		return
	}
	o.needsReload = true
	o.setState(Reconnecting)
	if err := o.attemptReconnect(ctx); err != nil {
		o.log.Error(ctx, "reconnect after background failed", "err", err)
	}
}

func (o *Orchestrator) handleGrantExpiry(ctx context.Context) {
	if o.State() != SuspendedBackground {
		return
	}
	o.stopGrant()
	o.resume(ctx)
}

func (o *Orchestrator) handleTransportState(ctx context.Context, s hub.State) {
	switch s {
	case hub.Disconnected:
		switch o.State() {
		case Connected:
			if o.tr.Live() {
				// stale event from an earlier connect attempt
				return
			}
			// spontaneous drop while active
			o.stopHeartbeat()
			o.needsReload = true
			o.setState(Reconnecting)
			if err := o.attemptReconnect(ctx); err != nil {
				o.log.Error(ctx, "reconnect after drop failed", "err", err)
			}
		case SuspendedBackground:
			// dealt with on resume; the grace window keeps running
		}
	case hub.Connected:
		// Our own Connect calls already drive enterConnected; a ready
		// signal while Connected is a duplicate and must not trigger
		// another reload.
	}
}

func (o *Orchestrator) handleHeartbeat(ctx context.Context) {
	if o.State() != Connected {
		return
	}

	pingCtx, cancel := context.WithTimeout(ctx, o.opts.PingTimeout)
	_, err := o.tr.Invoke(pingCtx, o.opts.PingMethod)
	cancel()
	if err == nil {
		return
	}

	// A failed or timed-out ping is treated identically to a spontaneous
	// drop.
	o.mtr.HeartbeatFailuresTotal.Inc()
	o.log.Warn(ctx, "heartbeat failed", "err", err)

	o.stopHeartbeat()
	_ = o.tr.Disconnect(ctx)
	o.needsReload = true
	o.setState(Reconnecting)
	if err := o.attemptReconnect(ctx); err != nil {
		o.log.Error(ctx, "reconnect after heartbeat failure failed", "err", err)
	}
}

// attemptReconnect makes a bounded number of connect attempts. Exhausting
// them lands in Disconnected; the caller may issue a new Start.
func (o *Orchestrator) attemptReconnect(ctx context.Context) error {
	for attempt := 1; attempt <= o.opts.ReconnectAttempts; attempt++ {
		if err := o.tr.Connect(ctx); err == nil {
			o.enterConnected(ctx)
			return nil
		} else {
			o.log.Warn(ctx, "reconnect attempt failed", "attempt", attempt, "err", err)
		}

		select {
		case <-ctx.Done():
			o.setState(Disconnected)
			return ctx.Err()
		case <-time.After(o.opts.ReconnectDelay):
		}
	}
	o.setState(Disconnected)
	return ErrReconnectFailed
}

// enterConnected installs the Connected state, arms the heartbeat, and
// performs the owed catch-up reload exactly once.
func (o *Orchestrator) enterConnected(ctx context.Context) {
	o.startHeartbeat()
	o.setState(Connected)

	if !o.needsReload {
		return
	}
	// Clear the flag before running: repeated ready signals without an
	// intervening drop must not reload twice.
	o.needsReload = false

	if o.reload == nil {
		return
	}
	reloadCtx, cancel := context.WithTimeout(ctx, o.opts.ReloadTimeout)
	defer cancel()
	if err := o.reload.ReloadAll(reloadCtx); err != nil {
		o.log.Error(ctx, "data reload after recovery failed", "err", err)
		return
	}
	o.mtr.ReloadsTotal.Inc()
}

func (o *Orchestrator) startHeartbeat() {
	o.stopHeartbeat()
	o.heartbeat = time.NewTicker(o.opts.HeartbeatInterval)
	o.heartbeatC = o.heartbeat.C
}

func (o *Orchestrator) stopHeartbeat() {
	if o.heartbeat == nil {
		return
	}
	o.heartbeat.Stop()
	o.heartbeat = nil
	o.heartbeatC = nil
}

func (o *Orchestrator) startGrant() {
	o.stopGrant()
	o.grant = time.NewTimer(o.opts.BackgroundGrace)
	o.grantC = o.grant.C
}

func (o *Orchestrator) stopGrant() {
	if o.grant == nil {
		return
	}
	if !o.grant.Stop() {
		select {
		case <-o.grant.C:
		default:
		}
	}
	o.grant = nil
	o.grantC = nil
}
