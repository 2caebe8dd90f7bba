package intersections

import "sync"

// Group is a named collection of sensors and actuators sharing a
// traffic modality. Mutation requires the write
// lock; reads take the read lock. block and score are advisory:
// readers (schedulers) accept that a value may change right after
// they read it.
type Group struct {
	intersection *Intersection
	id           GroupId

	mu           sync.RWMutex
	canBeBlocked bool
	block        bool
	score        int

	sensors map[ComponentId]*Sensor
	lights  map[ComponentId]*LightActuator
	gates   map[ComponentId]*GateActuator
	decks   map[ComponentId]*DeckActuator

	blocksMu     sync.RWMutex
	blocks       []*Group
	concurrences []*Group

	sensorFeed   *feed[ComponentUid]
	lightFeed    *feed[ComponentUid]
	gateFeed     *feed[ComponentUid]
	deckFeed     *feed[ComponentUid]
	actuatorFeed *feed[ComponentUid]
}

func newGroup(intersection *Intersection, id GroupId, canBeBlocked bool) *Group {
	return &Group{
		intersection: intersection,
		id:           id,
		canBeBlocked: canBeBlocked,

		sensors: make(map[ComponentId]*Sensor),
		lights:  make(map[ComponentId]*LightActuator),
		gates:   make(map[ComponentId]*GateActuator),
		decks:   make(map[ComponentId]*DeckActuator),

		sensorFeed:   newFeed[ComponentUid](),
		lightFeed:    newFeed[ComponentUid](),
		gateFeed:     newFeed[ComponentUid](),
		deckFeed:     newFeed[ComponentUid](),
		actuatorFeed: newFeed[ComponentUid](),
	}
}

// ID returns the group's identifier.
func (g *Group) ID() GroupId { return g.id }

// CanBeBlocked reports whether the scheduler's jam-overflow logic
// may toggle this group's block flag.
func (g *Group) CanBeBlocked() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.canBeBlocked
}

// Blocked reports the current (advisory, possibly racy) block flag.
func (g *Group) Blocked() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.block
}

// SetBlocked sets the block flag. Only the scheduler's jam-overflow
// check writes this.
func (g *Group) SetBlocked(blocked bool) {
	g.mu.Lock()
	g.block = blocked
	g.mu.Unlock()
}

// Score returns the current (advisory, possibly racy) demand score.
func (g *Group) Score() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.score
}

// SetScore writes the score and emits a ScoreUpdated notification.
// Only the ScorePoller, phase cleanup (TrafficLightsRunner), and the
// controller's lifecycle reset write scores.
func (g *Group) SetScore(score int) error {
	g.mu.Lock()
	g.score = score
	g.mu.Unlock()
	return g.intersection.sendScore(g.id)
}

// ResetScore sets the score to zero.
func (g *Group) ResetScore() error {
	return g.SetScore(0)
}

// Sensors returns a snapshot of this group's sensors.
func (g *Group) Sensors() []*Sensor {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Sensor, 0, len(g.sensors))
	for _, s := range g.sensors {
		out = append(out, s)
	}
	return out
}

// Lights returns a snapshot of this group's light actuators.
func (g *Group) Lights() []*LightActuator {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*LightActuator, 0, len(g.lights))
	for _, l := range g.lights {
		out = append(out, l)
	}
	return out
}

// Gates returns a snapshot of this group's gate actuators.
func (g *Group) Gates() []*GateActuator {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*GateActuator, 0, len(g.gates))
	for _, gt := range g.gates {
		out = append(out, gt)
	}
	return out
}

// Decks returns a snapshot of this group's deck actuators.
func (g *Group) Decks() []*DeckActuator {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*DeckActuator, 0, len(g.decks))
	for _, d := range g.decks {
		out = append(out, d)
	}
	return out
}

// FindSensor looks up a sensor by its component id within this group.
func (g *Group) FindSensor(id ComponentId) (*Sensor, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.sensors[id]
	return s, ok
}

// FindLight looks up a light actuator by its component id.
func (g *Group) FindLight(id ComponentId) (*LightActuator, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	l, ok := g.lights[id]
	return l, ok
}

// FindGate looks up a gate actuator by its component id.
func (g *Group) FindGate(id ComponentId) (*GateActuator, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	gt, ok := g.gates[id]
	return gt, ok
}

// FindDeck looks up a deck actuator by its component id.
func (g *Group) FindDeck(id ComponentId) (*DeckActuator, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	d, ok := g.decks[id]
	return d, ok
}

// OneSensorHigh reports whether any sensor in this group currently
// reads High.
func (g *Group) OneSensorHigh() bool {
	for _, s := range g.Sensors() {
		if s.State() == SensorHigh {
			return true
		}
	}
	return false
}

// BlocksGroup reports whether this group conflicts with other.
func (g *Group) BlocksGroup(other *Group) bool {
	g.blocksMu.RLock()
	defer g.blocksMu.RUnlock()
	for _, b := range g.blocks {
		if b.id == other.id {
			return true
		}
	}
	return false
}

// Concurrences returns a snapshot of the groups this group may run
// alongside (the complement of blocks, inclusive of self).
func (g *Group) Concurrences() []*Group {
	g.blocksMu.RLock()
	defer g.blocksMu.RUnlock()
	out := make([]*Group, len(g.concurrences))
	copy(out, g.concurrences)
	return out
}

// Blocks returns a snapshot of the groups this group conflicts with.
func (g *Group) Blocks() []*Group {
	g.blocksMu.RLock()
	defer g.blocksMu.RUnlock()
	out := make([]*Group, len(g.blocks))
	copy(out, g.blocks)
	return out
}

func (g *Group) pushBlock(other *Group) {
	g.blocksMu.Lock()
	g.blocks = append(g.blocks, other)
	g.blocksMu.Unlock()
}

func (g *Group) pushConcurrent(other *Group) {
	g.blocksMu.Lock()
	g.concurrences = append(g.concurrences, other)
	g.blocksMu.Unlock()
}

// ResetAll resets every owned component to its initial state. Each
// reset emits its own StateUpdated notification.
func (g *Group) ResetAll() error {
	for _, s := range g.Sensors() {
		if err := s.Reset(); err != nil {
			return err
		}
	}
	for _, l := range g.Lights() {
		if err := l.Reset(); err != nil {
			return err
		}
	}
	for _, gt := range g.Gates() {
		if err := gt.Reset(); err != nil {
			return err
		}
	}
	for _, d := range g.Decks() {
		if err := d.Reset(); err != nil {
			return err
		}
	}
	return nil
}

// broadcastChange is called once per SetState by the component that
// changed. It forwards to the intersection's state stream and then
// fans the uid into this group's per-kind channel.
func (g *Group) broadcastChange(uid ComponentUid) error {
	if err := g.intersection.sendState(uid); err != nil {
		return err
	}

	switch uid.ComponentId.Kind {
	case KindSensor:
		g.sensorFeed.send(uid)
	case KindLight:
		g.lightFeed.send(uid)
		g.actuatorFeed.send(uid)
	case KindGate:
		g.gateFeed.send(uid)
		g.actuatorFeed.send(uid)
	case KindDeck:
		g.deckFeed.send(uid)
		g.actuatorFeed.send(uid)
	}

	return nil
}

// SensorChanges returns the per-group sensor change-notification
// channel. Used by BridgeRunner to wake on vessel-queue sensors
// without polling.
func (g *Group) SensorChanges() <-chan ComponentUid { return g.sensorFeed.out() }

// ActuatorChanges returns the per-group actuator change-notification channel.
func (g *Group) ActuatorChanges() <-chan ComponentUid { return g.actuatorFeed.out() }
