package controller

import (
	"testing"
	"time"

	"github.com/nugget/intersection-controller/internal/intersections"
	"github.com/nugget/intersection-controller/internal/topics"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time         { return c.now }
func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type fakeTiming struct{}

func (fakeTiming) Duration(kind intersections.GroupKind) (time.Duration, time.Duration, bool) {
	return 0, 0, false
}

func buildTrafficLights(t *testing.T, clock intersections.Clock) *intersections.Intersection {
	t.Helper()
	in, err := intersections.NewBuilder(clock).WithDefs([]intersections.GroupDef{
		{
			Kind: intersections.MotorVehicle, ID: 1, CanBeBlocked: true,
			Components: []intersections.ComponentDef{
				{Kind: intersections.KindLight, ID: 1, DefaultState: int(intersections.LightProhibit)},
			},
		},
		{
			Kind: intersections.MotorVehicle, ID: 14,
			Components: []intersections.ComponentDef{
				{Kind: intersections.KindSensor, ID: 1, DefaultState: int(intersections.SensorLow)},
			},
		},
	}).Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return in
}

func buildBridgeIntersection(t *testing.T) *intersections.Intersection {
	t.Helper()
	in, err := intersections.NewBuilder(nil).WithDefs([]intersections.GroupDef{
		{
			Kind: intersections.Bridge, ID: 1,
			Components: []intersections.ComponentDef{
				{Kind: intersections.KindSensor, ID: 1, DefaultState: int(intersections.SensorLow)},
				{Kind: intersections.KindLight, ID: 1, DefaultState: int(intersections.LightProhibit)},
				{Kind: intersections.KindGate, ID: 1, DefaultState: int(intersections.GateOpen)},
				{Kind: intersections.KindGate, ID: 2, DefaultState: int(intersections.GateOpen)},
				{Kind: intersections.KindDeck, ID: 1, DefaultState: int(intersections.DeckClose)},
			},
		},
		{
			Kind: intersections.Vessel, ID: 1,
			Components: []intersections.ComponentDef{
				{Kind: intersections.KindSensor, ID: 1, DefaultState: int(intersections.SensorLow)},
				{Kind: intersections.KindLight, ID: 1, DefaultState: int(intersections.LightProhibit)},
			},
		},
		{
			Kind: intersections.Vessel, ID: 2,
			Components: []intersections.ComponentDef{
				{Kind: intersections.KindSensor, ID: 1, DefaultState: int(intersections.SensorLow)},
				{Kind: intersections.KindLight, ID: 1, DefaultState: int(intersections.LightProhibit)},
			},
		},
		{
			Kind: intersections.Vessel, ID: 3,
			Components: []intersections.ComponentDef{
				{Kind: intersections.KindSensor, ID: 1, DefaultState: int(intersections.SensorLow)},
			},
		},
	}).Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return in
}

func buildTestController(t *testing.T) (*Controller, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(0, 0)}
	tl := buildTrafficLights(t, clock)
	br := buildBridgeIntersection(t)
	c := New(tl, br, nil, nil, 18, fakeTiming{}, nil)
	return c, clock
}

func TestHandleComponentMessageRoutesToTrafficLights(t *testing.T) {
	c, _ := buildTestController(t)

	uid := intersections.NewComponentUid(intersections.MotorVehicle, 14, intersections.KindSensor, 1)
	topic := topics.NewComponentTopic(18, uid)

	c.handleComponentMessage(topic, "1")

	group, _ := c.trafficLights.FindGroup(intersections.GroupId{Kind: intersections.MotorVehicle, ID: 14})
	sensor, _ := group.FindSensor(intersections.ComponentId{Kind: intersections.KindSensor, ID: 1})
	if sensor.State() != intersections.SensorHigh {
		t.Fatalf("expected sensor to be set High, got %v", sensor.State())
	}
}

func TestHandleComponentMessageRoutesToBridge(t *testing.T) {
	c, _ := buildTestController(t)

	uid := intersections.NewComponentUid(intersections.Vessel, 1, intersections.KindSensor, 1)
	topic := topics.NewComponentTopic(18, uid)

	c.handleComponentMessage(topic, "1")

	group, _ := c.bridgeIn.FindGroup(intersections.GroupId{Kind: intersections.Vessel, ID: 1})
	sensor, _ := group.FindSensor(intersections.ComponentId{Kind: intersections.KindSensor, ID: 1})
	if sensor.State() != intersections.SensorHigh {
		t.Fatalf("expected vessel sensor to be set High, got %v", sensor.State())
	}
}

func TestHandleComponentMessageIgnoresBadPayload(t *testing.T) {
	c, _ := buildTestController(t)
	uid := intersections.NewComponentUid(intersections.MotorVehicle, 14, intersections.KindSensor, 1)
	topic := topics.NewComponentTopic(18, uid)

	c.handleComponentMessage(topic, "not-a-number")

	group, _ := c.trafficLights.FindGroup(intersections.GroupId{Kind: intersections.MotorVehicle, ID: 14})
	sensor, _ := group.FindSensor(intersections.ComponentId{Kind: intersections.KindSensor, ID: 1})
	if sensor.State() != intersections.SensorLow {
		t.Fatalf("bad payload should not change sensor state, got %v", sensor.State())
	}
}

func TestResetClearsScoresAndStates(t *testing.T) {
	c, _ := buildTestController(t)

	group, _ := c.trafficLights.FindGroup(intersections.GroupId{Kind: intersections.MotorVehicle, ID: 1})
	if err := group.SetScore(7); err != nil {
		t.Fatalf("SetScore: %v", err)
	}

	c.reset()

	if group.Score() != 0 {
		t.Fatalf("expected score reset to 0, got %d", group.Score())
	}
}

func TestStopRunnersIsIdempotentWhenNeverStarted(t *testing.T) {
	c, _ := buildTestController(t)
	c.stopRunners()
	c.stopRunners()
}

func TestHandleLifeCycleMessageIgnoresNonSimulatorDevice(t *testing.T) {
	c, _ := buildTestController(t)
	c.handleLifeCycleMessage(topics.LifeCycleTopic{TeamID: 18, Device: topics.Controller, Handler: topics.OnConnect})
	if c.runnerGroup != nil {
		t.Fatal("a controller-device lifecycle message should not start runners")
	}
}
