package intersections

import "sync"

// NotificationKind distinguishes the two shapes of Notification.
type NotificationKind int

const (
	// StateUpdated carries a ComponentUid whose SetState just ran.
	StateUpdated NotificationKind = iota
	// ScoreUpdated carries a GroupId whose score just changed.
	ScoreUpdated
)

// Notification is the tagged union published on an Intersection's
// notification stream: every component state
// change and every score change, in one ordered feed, so the
// controller can drive StatePublisher without polling every component.
type Notification struct {
	kind         NotificationKind
	componentUid ComponentUid
	groupId      GroupId
}

// NKind reports which variant this notification holds.
func (n Notification) NKind() NotificationKind { return n.kind }

// ComponentUid returns the changed component. Only meaningful when
// NKind() == StateUpdated.
func (n Notification) ComponentUid() ComponentUid { return n.componentUid }

// GroupId returns the rescored group. Only meaningful when
// NKind() == ScoreUpdated.
func (n Notification) GroupId() GroupId { return n.groupId }

func stateNotification(uid ComponentUid) Notification {
	return Notification{kind: StateUpdated, componentUid: uid}
}

func scoreNotification(id GroupId) Notification {
	return Notification{kind: ScoreUpdated, groupId: id}
}

// Intersection owns every group and component built from a single set
// of definitions plus the two fan-out streams
// every subscriber reads instead of polling.
type Intersection struct {
	mu     sync.RWMutex
	groups map[GroupId]*Group

	stateFeed  *feed[ComponentUid]
	notifyFeed *feed[Notification]
}

func newIntersection() *Intersection {
	return &Intersection{
		groups:     make(map[GroupId]*Group),
		stateFeed:  newFeed[ComponentUid](),
		notifyFeed: newFeed[Notification](),
	}
}

func (i *Intersection) addGroup(g *Group) {
	i.mu.Lock()
	i.groups[g.id] = g
	i.mu.Unlock()
}

// Groups returns a snapshot of every group.
func (i *Intersection) Groups() []*Group {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]*Group, 0, len(i.groups))
	for _, g := range i.groups {
		out = append(out, g)
	}
	return out
}

// FindGroup looks up a group by id.
func (i *Intersection) FindGroup(id GroupId) (*Group, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	g, ok := i.groups[id]
	return g, ok
}

// UnblockedGroups returns every group whose block flag is currently
// false: the candidate set GetRunnables selects from.
func (i *Intersection) UnblockedGroups() []*Group {
	var out []*Group
	for _, g := range i.Groups() {
		if !g.Blocked() {
			out = append(out, g)
		}
	}
	return out
}

// BlockableGroups returns every group the jam-overflow check may
// toggle.
func (i *Intersection) BlockableGroups() []*Group {
	var out []*Group
	for _, g := range i.Groups() {
		if g.CanBeBlocked() {
			out = append(out, g)
		}
	}
	return out
}

// Sensors returns every sensor across every group.
func (i *Intersection) Sensors() []*Sensor {
	var out []*Sensor
	for _, g := range i.Groups() {
		out = append(out, g.Sensors()...)
	}
	return out
}

// FindSensor, FindLight, FindGate, and FindDeck resolve a fully
// qualified ComponentUid to its live component, or ErrComponentNotFound.
func (i *Intersection) FindSensor(uid ComponentUid) (*Sensor, error) {
	g, ok := i.FindGroup(uid.GroupId)
	if !ok {
		return nil, ErrComponentNotFound
	}
	s, ok := g.FindSensor(uid.ComponentId)
	if !ok {
		return nil, ErrComponentNotFound
	}
	return s, nil
}

func (i *Intersection) FindLight(uid ComponentUid) (*LightActuator, error) {
	g, ok := i.FindGroup(uid.GroupId)
	if !ok {
		return nil, ErrComponentNotFound
	}
	l, ok := g.FindLight(uid.ComponentId)
	if !ok {
		return nil, ErrComponentNotFound
	}
	return l, nil
}

func (i *Intersection) FindGate(uid ComponentUid) (*GateActuator, error) {
	g, ok := i.FindGroup(uid.GroupId)
	if !ok {
		return nil, ErrComponentNotFound
	}
	gt, ok := g.FindGate(uid.ComponentId)
	if !ok {
		return nil, ErrComponentNotFound
	}
	return gt, nil
}

func (i *Intersection) FindDeck(uid ComponentUid) (*DeckActuator, error) {
	g, ok := i.FindGroup(uid.GroupId)
	if !ok {
		return nil, ErrComponentNotFound
	}
	d, ok := g.FindDeck(uid.ComponentId)
	if !ok {
		return nil, ErrComponentNotFound
	}
	return d, nil
}

// StateChanges returns the intersection-wide component-state stream.
func (i *Intersection) StateChanges() <-chan ComponentUid { return i.stateFeed.out() }

// Notifications returns the combined state+score stream StatePublisher
// reads from.
func (i *Intersection) Notifications() <-chan Notification { return i.notifyFeed.out() }

func (i *Intersection) sendState(uid ComponentUid) error {
	i.stateFeed.send(uid)
	i.notifyFeed.send(stateNotification(uid))
	return nil
}

func (i *Intersection) sendScore(id GroupId) error {
	i.notifyFeed.send(scoreNotification(id))
	return nil
}

// GetRunnables computes a maximal conflict-free subset of the
// unblocked groups, greedily, highest score first: start from the
// empty set; repeatedly add the highest-scoring
// remaining candidate that conflicts with nothing already chosen;
// stop when no candidate qualifies. Ties break on GroupId.Kind then
// GroupId.ID so the result is deterministic given equal scores.
func (i *Intersection) GetRunnables() []*Group {
	candidates := i.UnblockedGroups()
	var selected []*Group

	for {
		best := highestScoringGroup(candidates, selected)
		if best == nil {
			break
		}
		selected = append(selected, best)
	}

	return selected
}

// highestScoringGroup picks the highest-scoring candidate that does
// not conflict with any group already in selected, or nil if none
// qualify. A candidate with score <= 0 never qualifies: zero demand
// never runs.
func highestScoringGroup(candidates, selected []*Group) *Group {
	var best *Group
	for _, c := range candidates {
		if c.Score() <= 0 {
			continue
		}
		if containsGroup(selected, c) {
			continue
		}
		if conflictsWithAny(c, selected) {
			continue
		}
		if best == nil || c.Score() > best.Score() ||
			(c.Score() == best.Score() && lessGroupId(c.id, best.id)) {
			best = c
		}
	}
	return best
}

func conflictsWithAny(g *Group, selected []*Group) bool {
	for _, s := range selected {
		if g.BlocksGroup(s) || s.BlocksGroup(g) {
			return true
		}
	}
	return false
}

func containsGroup(groups []*Group, g *Group) bool {
	for _, x := range groups {
		if x.id == g.id {
			return true
		}
	}
	return false
}

func lessGroupId(a, b GroupId) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	return a.ID < b.ID
}
