package intersections

import "fmt"

// ComponentKind identifies which capability a component exposes.
type ComponentKind int

const (
	KindLight ComponentKind = iota
	KindSensor
	KindGate
	KindDeck
)

func (k ComponentKind) String() string {
	switch k {
	case KindLight:
		return "light"
	case KindSensor:
		return "sensor"
	case KindGate:
		return "gate"
	case KindDeck:
		return "deck"
	default:
		return fmt.Sprintf("ComponentKind(%d)", int(k))
	}
}

// ParseComponentKind decodes a topic segment into a ComponentKind.
func ParseComponentKind(s string) (ComponentKind, error) {
	switch s {
	case "light":
		return KindLight, nil
	case "sensor":
		return KindSensor, nil
	case "gate":
		return KindGate, nil
	case "deck":
		return KindDeck, nil
	default:
		return 0, fmt.Errorf("%w: component kind %q", ErrUnknownKind, s)
	}
}

// GroupKind identifies the traffic modality a Group belongs to.
type GroupKind int

const (
	MotorVehicle GroupKind = iota
	Cycle
	Foot
	Vessel
	Bridge
)

func (k GroupKind) String() string {
	switch k {
	case MotorVehicle:
		return "motor_vehicle"
	case Cycle:
		return "cycle"
	case Foot:
		return "foot"
	case Vessel:
		return "vessel"
	case Bridge:
		return "bridge"
	default:
		return fmt.Sprintf("GroupKind(%d)", int(k))
	}
}

// ParseGroupKind decodes a topic segment or config string into a GroupKind.
func ParseGroupKind(s string) (GroupKind, error) {
	switch s {
	case "motor_vehicle":
		return MotorVehicle, nil
	case "cycle":
		return Cycle, nil
	case "foot":
		return Foot, nil
	case "vessel":
		return Vessel, nil
	case "bridge":
		return Bridge, nil
	default:
		return 0, fmt.Errorf("%w: group kind %q", ErrUnknownKind, s)
	}
}

// ComponentId identifies a component within its owning group.
type ComponentId struct {
	Kind ComponentKind
	ID   int
}

func (c ComponentId) String() string {
	return fmt.Sprintf("%s/%d", c.Kind, c.ID)
}

// GroupId identifies a group within an intersection.
type GroupId struct {
	Kind GroupKind
	ID   int
}

func (g GroupId) String() string {
	return fmt.Sprintf("%s/%d", g.Kind, g.ID)
}

// ComponentUid is the fully-qualified address of a component: the
// group it lives in, plus its id within that group.
type ComponentUid struct {
	GroupId     GroupId
	ComponentId ComponentId
}

// NewComponentUid is a convenience constructor mirroring the
// reference implementation's ComponentUid::new.
func NewComponentUid(groupKind GroupKind, groupID int, componentKind ComponentKind, componentID int) ComponentUid {
	return ComponentUid{
		GroupId:     GroupId{Kind: groupKind, ID: groupID},
		ComponentId: ComponentId{Kind: componentKind, ID: componentID},
	}
}

func (u ComponentUid) String() string {
	return fmt.Sprintf("%s/%s", u.GroupId, u.ComponentId)
}
