package intersections

import "fmt"

// GroupDef describes one group to build: its identity and the
// components that belong to it.
type GroupDef struct {
	Kind         GroupKind
	ID           int
	Alias        string
	CanBeBlocked bool
	Components   []ComponentDef
}

// ComponentDef describes one component within a GroupDef.
type ComponentDef struct {
	Kind         ComponentKind
	ID           int
	Alias        string
	Distance     int
	DefaultState int
}

// BlockDef records that GroupA conflicts with GroupB: neither may
// appear in the same GetRunnables result while the other runs
// The relation is stored symmetrically
// regardless of which side config listed it from.
type BlockDef struct {
	A GroupId
	B GroupId
}

// Builder assembles an Intersection from Definitions and Blocks, the
// Go equivalent of the reference implementation's IntersectionsBuilder
// (grounded on intersection_builder.rs): WithDefs, WithBlocks, Finish.
type Builder struct {
	defs   []GroupDef
	blocks []BlockDef
	clock  Clock
	err    error
}

// NewBuilder returns an empty Builder. clock may be nil to use the
// system clock; tests pass a fake Clock to drive TriggeredFor
// deterministically.
func NewBuilder(clock Clock) *Builder {
	return &Builder{clock: clock}
}

// WithDefs attaches the group/component definitions to build.
func (b *Builder) WithDefs(defs []GroupDef) *Builder {
	b.defs = defs
	return b
}

// WithBlocks attaches the group-conflict relation.
func (b *Builder) WithBlocks(blocks []BlockDef) *Builder {
	b.blocks = blocks
	return b
}

// Finish builds the Intersection, or returns the first error
// encountered (ErrNoDefinitions, ErrUnknownGroup, or a state-decode
// failure from a bad DefaultState value).
func (b *Builder) Finish() (*Intersection, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.defs) == 0 {
		return nil, ErrNoDefinitions
	}

	in := newIntersection()

	if err := b.buildGroups(in); err != nil {
		return nil, err
	}
	if err := b.buildComponents(in); err != nil {
		return nil, err
	}
	if err := b.fillBlocks(in); err != nil {
		return nil, err
	}
	b.fillConcurrences(in)

	return in, nil
}

func (b *Builder) buildGroups(in *Intersection) error {
	for _, def := range b.defs {
		id := GroupId{Kind: def.Kind, ID: def.ID}
		in.addGroup(newGroup(in, id, def.CanBeBlocked))
	}
	return nil
}

func (b *Builder) buildComponents(in *Intersection) error {
	for _, def := range b.defs {
		id := GroupId{Kind: def.Kind, ID: def.ID}
		g, ok := in.FindGroup(id)
		if !ok {
			return fmt.Errorf("%w: group %s", ErrUnknownGroup, id)
		}

		for _, c := range def.Components {
			cid := ComponentId{Kind: c.Kind, ID: c.ID}
			switch c.Kind {
			case KindSensor:
				st, err := ParseSensorState(c.DefaultState)
				if err != nil {
					return err
				}
				g.sensors[cid] = newSensor(g, cid, st, c.Distance, b.clock)
			case KindLight:
				st, err := ParseLightState(c.DefaultState)
				if err != nil {
					return err
				}
				g.lights[cid] = newComponent(g, cid, st, b.clock)
			case KindGate:
				st, err := ParseGateState(c.DefaultState)
				if err != nil {
					return err
				}
				g.gates[cid] = newComponent(g, cid, st, b.clock)
			case KindDeck:
				st, err := ParseDeckState(c.DefaultState)
				if err != nil {
					return err
				}
				g.decks[cid] = newComponent(g, cid, st, b.clock)
			default:
				return fmt.Errorf("%w: component kind %v", ErrUnknownKind, c.Kind)
			}
		}
	}
	return nil
}

// fillBlocks records each BlockDef symmetrically: if A blocks B, B
// also blocks A, since neither may run while the other does.
func (b *Builder) fillBlocks(in *Intersection) error {
	for _, bd := range b.blocks {
		ga, ok := in.FindGroup(bd.A)
		if !ok {
			return fmt.Errorf("%w: group %s", ErrUnknownGroup, bd.A)
		}
		gb, ok := in.FindGroup(bd.B)
		if !ok {
			return fmt.Errorf("%w: group %s", ErrUnknownGroup, bd.B)
		}
		ga.pushBlock(gb)
		gb.pushBlock(ga)
	}
	return nil
}

// fillConcurrences derives, for every group, the set of groups it does
// not conflict with, itself included, by checking BlocksGroup both ways
// across every pair (grounded on intersection_builder.rs's nested loop).
func (b *Builder) fillConcurrences(in *Intersection) {
	groups := in.Groups()
	for _, g := range groups {
		for _, other := range groups {
			if !g.BlocksGroup(other) && !other.BlocksGroup(g) {
				g.pushConcurrent(other)
			}
		}
	}
}
