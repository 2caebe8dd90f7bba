package intersections

import (
	"sync"
	"time"
)

// Component is the shared capability set backing both sensors and
// actuators: read state, set state, reset,
// timestamp, triggered-for-duration. S is one of LightState,
// SensorState, GateState, or DeckState.
//
// The owning group is a non-owning back reference:
// components never outlive their group in practice, but Component
// does not keep the group alive by itself.
type Component[S ComponentState] struct {
	mu      sync.RWMutex
	group   *Group
	id      ComponentId
	state   S
	initial S
	ts      time.Time
	clock   Clock
	changes *feed[ComponentUid]
}

func newComponent[S ComponentState](group *Group, id ComponentId, initial S, clock Clock) *Component[S] {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Component[S]{
		group:   group,
		id:      id,
		state:   initial,
		initial: initial,
		ts:      clock.Now(),
		clock:   clock,
		changes: newFeed[ComponentUid](),
	}
}

// ID returns the component's id within its group.
func (c *Component[S]) ID() ComponentId { return c.id }

// Group returns the owning group.
func (c *Component[S]) Group() *Group { return c.group }

// UID returns the fully-qualified address of the component.
func (c *Component[S]) UID() ComponentUid {
	return ComponentUid{GroupId: c.group.ID(), ComponentId: c.id}
}

// State returns the current state.
func (c *Component[S]) State() S {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// InitialState returns the state the component was constructed with,
// and that Reset restores.
func (c *Component[S]) InitialState() S {
	return c.initial
}

// Timestamp returns the wall-clock instant of the most recent SetState.
func (c *Component[S]) Timestamp() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ts
}

// Receiver returns the component's own change-notification channel.
// May be read from multiple goroutines.
func (c *Component[S]) Receiver() <-chan ComponentUid {
	return c.changes.out()
}

// SetState updates the state and timestamp atomically, then emits
// exactly one notification on the component's own channel and exactly
// one on the owning group's per-kind channel.
func (c *Component[S]) SetState(s S) error {
	c.mu.Lock()
	c.state = s
	c.ts = c.clock.Now()
	c.mu.Unlock()

	uid := c.UID()
	c.changes.send(uid)
	return c.group.broadcastChange(uid)
}

// Reset sets the state back to the initial state. It is defined as
// SetState(InitialState()) and follows the same emission rule.
func (c *Component[S]) Reset() error {
	return c.SetState(c.InitialState())
}

// TriggeredFor reports whether the component's current state equals s
// and has held continuously for at least d.
func (c *Component[S]) TriggeredFor(d time.Duration, s S) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == s && c.clock.Now().Sub(c.ts) >= d
}

// Sensor is a Component[SensorState] plus the approach-distance weight
// used by the score poller.
type Sensor struct {
	Component[SensorState]
	distance int
}

func newSensor(group *Group, id ComponentId, initial SensorState, distance int, clock Clock) *Sensor {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Sensor{
		Component: Component[SensorState]{
			group:   group,
			id:      id,
			state:   initial,
			initial: initial,
			ts:      clock.Now(),
			clock:   clock,
			changes: newFeed[ComponentUid](),
		},
		distance: distance,
	}
}

// Distance is the approach-loop weight: 0 for simple presence
// detectors, positive for distance-weighted approach sensors.
func (s *Sensor) Distance() int { return s.distance }

// LightActuator, GateActuator, and DeckActuator are the three
// concrete actuator instantiations. They are plain Component[S]: an
// actuator has no capabilities beyond the shared set.
type (
	LightActuator = Component[LightState]
	GateActuator  = Component[GateState]
	DeckActuator  = Component[DeckState]
)
