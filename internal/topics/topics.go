// Package topics encodes and decodes the MQTT topic shapes used to
// address components and to announce controller/simulator lifecycle
// events.
package topics

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nugget/intersection-controller/internal/intersections"
)

// ErrInvalidTopic is returned when a raw topic string does not match
// the expected shape for its kind.
var ErrInvalidTopic = fmt.Errorf("invalid topic")

// ComponentTopic addresses a single component: team_id/group_kind/
// group_id/component_kind/component_id.
type ComponentTopic struct {
	TeamID int
	UID    intersections.ComponentUid
}

// ParseComponentTopic decodes a five-part component topic.
func ParseComponentTopic(raw string) (ComponentTopic, error) {
	parts := strings.Split(raw, "/")
	if len(parts) != 5 {
		return ComponentTopic{}, fmt.Errorf("%w: component topic %q: expected 5 parts, got %d", ErrInvalidTopic, raw, len(parts))
	}

	teamID, err := strconv.Atoi(parts[0])
	if err != nil {
		return ComponentTopic{}, fmt.Errorf("%w: component topic %q: bad team id: %v", ErrInvalidTopic, raw, err)
	}

	groupKind, err := intersections.ParseGroupKind(parts[1])
	if err != nil {
		return ComponentTopic{}, fmt.Errorf("%w: component topic %q: %v", ErrInvalidTopic, raw, err)
	}
	groupID, err := strconv.Atoi(parts[2])
	if err != nil {
		return ComponentTopic{}, fmt.Errorf("%w: component topic %q: bad group id: %v", ErrInvalidTopic, raw, err)
	}

	componentKind, err := intersections.ParseComponentKind(parts[3])
	if err != nil {
		return ComponentTopic{}, fmt.Errorf("%w: component topic %q: %v", ErrInvalidTopic, raw, err)
	}
	componentID, err := strconv.Atoi(parts[4])
	if err != nil {
		return ComponentTopic{}, fmt.Errorf("%w: component topic %q: bad component id: %v", ErrInvalidTopic, raw, err)
	}

	return ComponentTopic{
		TeamID: teamID,
		UID:    intersections.NewComponentUid(groupKind, groupID, componentKind, componentID),
	}, nil
}

// NewComponentTopic builds a ComponentTopic for publishing under the
// caller-supplied teamID.
func NewComponentTopic(teamID int, uid intersections.ComponentUid) ComponentTopic {
	return ComponentTopic{TeamID: teamID, UID: uid}
}

func (t ComponentTopic) String() string {
	return fmt.Sprintf("%d/%s/%d/%s/%d",
		t.TeamID,
		t.UID.GroupId.Kind, t.UID.GroupId.ID,
		t.UID.ComponentId.Kind, t.UID.ComponentId.ID,
	)
}

// Device identifies who raised a lifecycle event.
type Device int

const (
	Controller Device = iota
	Simulator
)

func (d Device) String() string {
	if d == Simulator {
		return "simulator"
	}
	return "controller"
}

// Handler identifies which lifecycle edge fired.
type Handler int

const (
	OnConnect Handler = iota
	OnDisconnect
)

func (h Handler) String() string {
	if h == OnDisconnect {
		return "ondisconnect"
	}
	return "onconnect"
}

// LifeCycleTopic announces broker connect/disconnect events for the
// controller or a simulator: team_id/features/lifecycle/device/handler.
type LifeCycleTopic struct {
	TeamID  int
	Device  Device
	Handler Handler
}

var lifeCycleRe = regexp.MustCompile(`^(\d+)/features/lifecycle/(controller|simulator)/(onconnect|ondisconnect)$`)

// ParseLifeCycleTopic decodes a lifecycle topic string.
func ParseLifeCycleTopic(raw string) (LifeCycleTopic, error) {
	m := lifeCycleRe.FindStringSubmatch(raw)
	if m == nil {
		return LifeCycleTopic{}, fmt.Errorf("%w: lifecycle topic %q", ErrInvalidTopic, raw)
	}

	teamID, err := strconv.Atoi(m[1])
	if err != nil {
		return LifeCycleTopic{}, fmt.Errorf("%w: lifecycle topic %q: bad team id: %v", ErrInvalidTopic, raw, err)
	}

	device := Controller
	if m[2] == "simulator" {
		device = Simulator
	}
	handler := OnConnect
	if m[3] == "ondisconnect" {
		handler = OnDisconnect
	}

	return LifeCycleTopic{TeamID: teamID, Device: device, Handler: handler}, nil
}

// NewLifeCycleTopic builds a LifeCycleTopic for publishing.
func NewLifeCycleTopic(teamID int, device Device, handler Handler) LifeCycleTopic {
	return LifeCycleTopic{TeamID: teamID, Device: device, Handler: handler}
}

func (t LifeCycleTopic) String() string {
	return fmt.Sprintf("%d/features/lifecycle/%s/%s", t.TeamID, t.Device, t.Handler)
}

// SubscriptionFilter is the wildcard filter matching every component
// topic for a given team. The controller subscribes to each sensor
// topic individually rather than to this filter.
func SubscriptionFilter(teamID int) string {
	return fmt.Sprintf("%d/+/+/+/+", teamID)
}

// LifeCycleFilter is the wildcard filter for every lifecycle topic
// under a team.
func LifeCycleFilter(teamID int) string {
	return fmt.Sprintf("%d/features/lifecycle/+/+", teamID)
}
