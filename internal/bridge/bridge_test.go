package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/nugget/intersection-controller/internal/intersections"
)

func buildBridgeFixture(t *testing.T) *intersections.Intersection {
	t.Helper()
	defs := []intersections.GroupDef{
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
	}
	in, err := intersections.NewBuilder(nil).WithDefs(defs).Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return in
}

func TestNewRunnerResolvesFixedAddresses(t *testing.T) {
	in := buildBridgeFixture(t)
	r, err := NewRunner(in, nil)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	if r.aboveDeckSensor == nil || r.belowDeckSensor == nil || r.light == nil ||
		r.frontGate == nil || r.backGate == nil || r.deck == nil {
		t.Fatal("NewRunner left a fixed component unresolved")
	}
}

func TestNewRunnerErrorsOnMissingComponents(t *testing.T) {
	in, err := intersections.NewBuilder(nil).WithDefs([]intersections.GroupDef{
		{Kind: intersections.Bridge, ID: 1},
	}).Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if _, err := NewRunner(in, nil); err == nil {
		t.Fatal("expected an error when the fixed bridge components are absent")
	}
}

func TestRunIdlesUntilCancelledWithNoVesselDemand(t *testing.T) {
	in := buildBridgeFixture(t)
	r, err := NewRunner(in, nil)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned an error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after ctx cancellation while idle")
	}
}

func TestOneVesselHigh(t *testing.T) {
	in := buildBridgeFixture(t)
	r, err := NewRunner(in, nil)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	if r.oneVesselHigh() {
		t.Fatal("expected no vessel demand initially")
	}

	g, _ := in.FindGroup(intersections.GroupId{Kind: intersections.Vessel, ID: 1})
	sensor, _ := g.FindSensor(intersections.ComponentId{Kind: intersections.KindSensor, ID: 1})
	sensor.SetState(intersections.SensorHigh)

	if !r.oneVesselHigh() {
		t.Fatal("expected vessel demand once a vessel sensor reads High")
	}
}
