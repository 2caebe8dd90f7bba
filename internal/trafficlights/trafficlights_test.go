package trafficlights

import (
	"context"
	"testing"
	"time"

	"github.com/nugget/intersection-controller/internal/intersections"
)

type fakeTiming struct {
	minGo, minTransition time.Duration
}

func (f fakeTiming) Duration(kind intersections.GroupKind) (time.Duration, time.Duration, bool) {
	return f.minGo, f.minTransition, true
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func buildJamFixture(t *testing.T, clock intersections.Clock) *intersections.Intersection {
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

func buildSingleLightGroup(t *testing.T) *intersections.Intersection {
	t.Helper()
	in, err := intersections.NewBuilder(nil).WithDefs([]intersections.GroupDef{
		{
			Kind: intersections.MotorVehicle,
			ID:   1,
			Components: []intersections.ComponentDef{
				{Kind: intersections.KindLight, ID: 1, DefaultState: int(intersections.LightProhibit)},
			},
		},
	}).Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return in
}

func TestRunnerCyclesThroughPhases(t *testing.T) {
	in := buildSingleLightGroup(t)
	timing := fakeTiming{minGo: 5 * time.Millisecond, minTransition: 5 * time.Millisecond}
	r := NewRunner(in, timing, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	g, _ := in.FindGroup(intersections.GroupId{Kind: intersections.MotorVehicle, ID: 1})
	if err := g.SetScore(1); err != nil {
		t.Fatalf("SetScore: %v", err)
	}
	light, _ := g.FindLight(intersections.ComponentId{Kind: intersections.KindLight, ID: 1})
	changes := light.Receiver()

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	seenProceed := false
	deadline := time.After(500 * time.Millisecond)
	for !seenProceed {
		select {
		case <-changes:
			if light.State() == intersections.LightProceed {
				seenProceed = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for a Proceed phase")
		}
	}

	cancel()
	<-done
}

func TestApplyJamBlockEngagesOnlyAfterThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	in := buildJamFixture(t, clock)
	r := NewRunner(in, fakeTiming{minGo: time.Millisecond, minTransition: time.Millisecond}, nil)

	blockable, _ := in.FindGroup(intersections.GroupId{Kind: intersections.MotorVehicle, ID: 1})
	jamGroup, _ := in.FindGroup(intersections.GroupId{Kind: intersections.MotorVehicle, ID: 14})
	jamSensor, _ := jamGroup.FindSensor(intersections.ComponentId{Kind: intersections.KindSensor, ID: 1})

	if err := jamSensor.SetState(intersections.SensorHigh); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	r.applyJamBlock()
	if blockable.Blocked() {
		t.Fatal("should not block before the jam threshold elapses")
	}

	clock.advance(jamThreshold)
	r.applyJamBlock()
	if !blockable.Blocked() {
		t.Fatal("expected blockable group to be blocked once the jam sensor is sustained high")
	}

	if err := jamSensor.SetState(intersections.SensorLow); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	r.applyJamBlock()
	if blockable.Blocked() {
		t.Fatal("expected blockable group to unblock once the jam sensor clears")
	}
}

func TestRunnerIdlesWithNoRunnableGroups(t *testing.T) {
	in, err := intersections.NewBuilder(nil).WithDefs([]intersections.GroupDef{
		{Kind: intersections.MotorVehicle, ID: 1, CanBeBlocked: true},
	}).Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	g, _ := in.FindGroup(intersections.GroupId{Kind: intersections.MotorVehicle, ID: 1})
	g.SetBlocked(true)

	r := NewRunner(in, fakeTiming{minGo: time.Millisecond, minTransition: time.Millisecond}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run returned an error: %v", err)
	}
}
