package intersections

import (
	"testing"
	"time"
)

// fakeClock lets tests drive TriggeredFor without racing the wall
// clock.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func buildSingleGroup(t *testing.T, clock Clock) (*Intersection, *Group) {
	t.Helper()
	in, err := NewBuilder(clock).WithDefs([]GroupDef{
		{
			Kind: MotorVehicle,
			ID:   1,
			Components: []ComponentDef{
				{Kind: KindSensor, ID: 1, DefaultState: int(SensorLow)},
				{Kind: KindLight, ID: 1, DefaultState: int(LightProhibit)},
				{Kind: KindGate, ID: 1, DefaultState: int(GateOpen)},
				{Kind: KindDeck, ID: 1, DefaultState: int(DeckClose)},
			},
		},
	}).Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	g, ok := in.FindGroup(GroupId{Kind: MotorVehicle, ID: 1})
	if !ok {
		t.Fatalf("group not built")
	}
	return in, g
}

func TestSetStateUpdatesStateAndTimestamp(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	_, g := buildSingleGroup(t, clock)

	sensor, ok := g.FindSensor(ComponentId{Kind: KindSensor, ID: 1})
	if !ok {
		t.Fatalf("sensor not found")
	}
	if sensor.State() != SensorLow {
		t.Fatalf("expected initial state Low, got %v", sensor.State())
	}

	clock.advance(time.Second)
	if err := sensor.SetState(SensorHigh); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	if sensor.State() != SensorHigh {
		t.Fatalf("expected High after SetState, got %v", sensor.State())
	}
	if sensor.Timestamp() != clock.now {
		t.Fatalf("timestamp not updated to clock time")
	}
}

func TestSetStateEmitsExactlyOneNotificationPerChannel(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	in, g := buildSingleGroup(t, clock)

	sensor, _ := g.FindSensor(ComponentId{Kind: KindSensor, ID: 1})
	componentCh := sensor.Receiver()
	groupCh := g.SensorChanges()
	stateCh := in.StateChanges()

	if err := sensor.SetState(SensorHigh); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	select {
	case uid := <-componentCh:
		if uid != sensor.UID() {
			t.Fatalf("component channel uid mismatch: %v", uid)
		}
	default:
		t.Fatalf("expected a notification on the component channel")
	}

	select {
	case uid := <-groupCh:
		if uid != sensor.UID() {
			t.Fatalf("group channel uid mismatch: %v", uid)
		}
	default:
		t.Fatalf("expected a notification on the group's sensor channel")
	}

	select {
	case uid := <-stateCh:
		if uid != sensor.UID() {
			t.Fatalf("intersection state channel uid mismatch: %v", uid)
		}
	default:
		t.Fatalf("expected a notification on the intersection state channel")
	}

	// No duplicate notifications: a second read must not be ready.
	select {
	case uid := <-componentCh:
		t.Fatalf("unexpected second notification on component channel: %v", uid)
	default:
	}
}

func TestTriggeredFor(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	_, g := buildSingleGroup(t, clock)
	sensor, _ := g.FindSensor(ComponentId{Kind: KindSensor, ID: 1})

	if err := sensor.SetState(SensorHigh); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	if sensor.TriggeredFor(time.Second, SensorHigh) {
		t.Fatalf("should not be triggered before the duration elapses")
	}

	clock.advance(time.Second)
	if !sensor.TriggeredFor(time.Second, SensorHigh) {
		t.Fatalf("should be triggered once the duration elapses")
	}
	if sensor.TriggeredFor(time.Second, SensorLow) {
		t.Fatalf("should not report triggered for a state it is not in")
	}
}

func TestResetRestoresInitialState(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	_, g := buildSingleGroup(t, clock)
	light, _ := g.FindLight(ComponentId{Kind: KindLight, ID: 1})

	if err := light.SetState(LightProceed); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	if err := light.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if light.State() != LightProhibit {
		t.Fatalf("expected Reset to restore LightProhibit, got %v", light.State())
	}
}

func TestResetAllResetsEveryComponent(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	_, g := buildSingleGroup(t, clock)

	sensor, _ := g.FindSensor(ComponentId{Kind: KindSensor, ID: 1})
	light, _ := g.FindLight(ComponentId{Kind: KindLight, ID: 1})
	gate, _ := g.FindGate(ComponentId{Kind: KindGate, ID: 1})
	deck, _ := g.FindDeck(ComponentId{Kind: KindDeck, ID: 1})

	sensor.SetState(SensorHigh)
	light.SetState(LightProceed)
	gate.SetState(GateClose)
	deck.SetState(DeckOpen)

	if err := g.ResetAll(); err != nil {
		t.Fatalf("ResetAll: %v", err)
	}

	if sensor.State() != SensorLow || light.State() != LightProhibit ||
		gate.State() != GateOpen || deck.State() != DeckClose {
		t.Fatalf("ResetAll did not restore every component to its initial state")
	}
}
