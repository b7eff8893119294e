// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package controller decides the traffic light color and countdown from the classification of road images.
//
// The decision itself is a pure function (Rules.Decide) of the current State and a prediction. The Controller
// wraps it with the state of the last decisions, a background Countdown and a broadcaster of events,
// so user interfaces never block: they subscribe to events and render them.
package controller

import (
	"sync"
	"time"

	"github.com/gomlx/trafficlight/classifier"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// EventKind identifies the type of an Event.
type EventKind int

const (
	// DecisionEvent is published for every prediction applied.
	DecisionEvent EventKind = iota

	// TickEvent is published for every second of the countdown.
	TickEvent

	// ErrorEvent is published when a source of images fails, see Controller.ReportError.
	ErrorEvent
)

// String implements fmt.Stringer.
func (k EventKind) String() string {
	switch k {
	case DecisionEvent:
		return "decision"
	case TickEvent:
		return "tick"
	case ErrorEvent:
		return "error"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler, used for JSON.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, used for JSON.
func (k *EventKind) UnmarshalText(text []byte) error {
	for _, candidate := range []EventKind{DecisionEvent, TickEvent, ErrorEvent} {
		if candidate.String() == string(text) {
			*k = candidate
			return nil
		}
	}
	return errors.Errorf("unknown event kind %q", text)
}

// Event published by the Controller to its subscribers.
type Event struct {
	Kind EventKind `json:"kind"`
	Time time.Time `json:"time"`

	// State after the event.
	State State `json:"state"`

	// Decision, for DecisionEvent.
	Decision *Decision `json:"decision,omitempty"`

	// Prediction that led to the decision, for DecisionEvent.
	Prediction *classifier.Prediction `json:"prediction,omitempty"`

	// Remaining seconds of the countdown, for TickEvent.
	Remaining int `json:"remaining"`

	// Err for ErrorEvent.
	Err error `json:"-"`

	// Message is the error message for ErrorEvent.
	Message string `json:"message,omitempty"`
}

// DefaultSubscriberBuffer is the number of events buffered per subscriber. Events are dropped for
// subscribers that fall further behind.
const DefaultSubscriberBuffer = 64

// Controller holds the traffic light state, applies predictions to it and runs the countdown.
// It is safe for concurrent use.
type Controller struct {
	rules     Rules
	countdown *Countdown

	// applyMu serializes Apply, so the countdown started is the one of the latest decision.
	applyMu sync.Mutex

	// mu protects the fields below.
	mu          sync.Mutex
	state       State
	subscribers map[int]chan Event
	nextID      int
	dropped     int
	closed      bool
}

// New creates a Controller with the given rules, in the InitialState. The countdown ticks every tickInterval,
// normally time.Second.
func New(rules Rules, tickInterval time.Duration) *Controller {
	c := &Controller{
		rules:       rules,
		state:       InitialState(),
		subscribers: make(map[int]chan Event),
	}
	c.countdown = NewCountdown(tickInterval, c.onTick)
	return c
}

// Rules used by the controller.
func (c *Controller) Rules() Rules { return c.rules }

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Apply a prediction: it updates the state, publishes a DecisionEvent and, if the prediction was accepted,
// restarts the countdown with the green time of the predicted class.
func (c *Controller) Apply(prediction classifier.Prediction) Decision {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	c.mu.Lock()
	var decision Decision
	c.state, decision = c.rules.Decide(c.state, prediction)
	prediction.Input = nil // Not kept around.
	c.publishLocked(Event{Kind: DecisionEvent, State: c.state, Decision: &decision, Prediction: &prediction})
	closed := c.closed
	c.mu.Unlock()

	if decision.Outcome == Accepted && !closed {
		klog.V(1).Infof("accepted %q (confidence %.4f): light %s, countdown %ds",
			decision.Label, decision.Confidence, decision.Light, decision.GreenTime)
		c.countdown.Start(decision.GreenTime)
	}
	return decision
}

// ReportError publishes an ErrorEvent, e.g. when the camera fails.
func (c *Controller) ReportError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishLocked(Event{Kind: ErrorEvent, State: c.state, Err: err, Message: err.Error()})
}

func (c *Controller) onTick(tick Tick) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Remaining = tick.Remaining
	c.publishLocked(Event{Kind: TickEvent, State: c.state, Remaining: tick.Remaining})
}

// Subscribe returns a channel of events, buffered with bufferSize (DefaultSubscriberBuffer if <= 0),
// and a function to cancel the subscription. Events that don't fit in the buffer are dropped:
// the controller never blocks on a slow subscriber.
func (c *Controller) Subscribe(bufferSize int) (events <-chan Event, cancel func()) {
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriberBuffer
	}
	ch := make(chan Event, bufferSize)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextID
	c.nextID++
	c.subscribers[id] = ch
	var once sync.Once
	cancel = func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, found := c.subscribers[id]; found {
				delete(c.subscribers, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Dropped returns the number of events dropped because a subscriber was full.
func (c *Controller) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

func (c *Controller) publishLocked(event Event) {
	if c.closed {
		return
	}
	event.Time = time.Now()
	for _, sub := range c.subscribers {
		select {
		case sub <- event:
		default:
			c.dropped++
		}
	}
}

// Close stops the countdown and closes all subscriptions.
func (c *Controller) Close() {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()
	c.countdown.Stop()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, sub := range c.subscribers {
		delete(c.subscribers, id)
		close(sub)
	}
}
