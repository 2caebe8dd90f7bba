// Package trafficlights implements the traffic-light phase scheduler:
// repeatedly compute a conflict-free runnable set, partition it by
// group kind, and run each kind's Proceed/Transitioning/Prohibit cycle
// on its own worker so every kind finishes the phase in the same
// real-time window despite different per-kind durations. Grounded on
// the reference implementation's
// traffic_lights_runner.rs, generalized from its single hardcoded
// (10s/4s) phase to per-kind timing read from configuration, and with
// the stop() polarity bug (self.stop = false) corrected.
package trafficlights

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nugget/intersection-controller/internal/intersections"
)

// tickInterval bounds how long an idle runner waits, with no runnable
// groups, before rechecking the jam sensor and runnables.
const tickInterval = 100 * time.Millisecond

// interCycleSettle is the fixed pause after one phase's workers all
// join and before the next phase is computed.
const interCycleSettle = 1 * time.Second

// jamThreshold is how long the designated jam sensor must read High
// before blockable groups are blocked. The reference implementation
// used 5 seconds; this deployment runs a 3-second threshold instead.
const jamThreshold = 3 * time.Second

var jamGroupID = intersections.GroupId{Kind: intersections.MotorVehicle, ID: 14}
var jamSensorID = intersections.ComponentId{Kind: intersections.KindSensor, ID: 1}

// Timing supplies the minimum proceed and transition durations for a
// group kind (config.Groups in practice). A false ok means the kind
// has no configuration and its runnable groups sit out the phase.
type Timing interface {
	Duration(kind intersections.GroupKind) (minGo, minTransition time.Duration, ok bool)
}

// Runner schedules one intersection's traffic lights.
type Runner struct {
	in     *intersections.Intersection
	timing Timing
	logger *slog.Logger
}

// NewRunner builds a Runner.
func NewRunner(in *intersections.Intersection, timing Timing, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{in: in, timing: timing, logger: logger}
}

// Run schedules phases until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		r.applyJamBlock()

		runnables := r.in.GetRunnables()
		if len(runnables) == 0 {
			if r.waitForTick(ctx) {
				return nil
			}
			continue
		}

		r.runPhase(ctx, runnables)

		if r.sleep(ctx, interCycleSettle) {
			return nil
		}
	}
}

// applyJamBlock implements the overflow-protection rule: if the
// designated jam sensor has been High for at least jamThreshold,
// every blockable group is blocked; otherwise every blockable group is
// unblocked. Evaluated once per tick, independent of whether a sensor
// message happens to arrive during the threshold window.
func (r *Runner) applyJamBlock() {
	group, ok := r.in.FindGroup(jamGroupID)
	if !ok {
		return
	}
	sensor, ok := group.FindSensor(jamSensorID)
	if !ok {
		return
	}

	jammed := sensor.TriggeredFor(jamThreshold, intersections.SensorHigh)
	for _, g := range r.in.BlockableGroups() {
		g.SetBlocked(jammed)
	}
}

// kindDuration holds one kind's compensated Proceed duration and its
// own Transitioning duration for one phase.
type kindDuration struct {
	proceed       time.Duration
	transitioning time.Duration
}

// runPhase partitions runnables by kind, computes each present kind's
// compensated durations, and runs one worker per kind concurrently,
// joining all of them before returning.
func (r *Runner) runPhase(ctx context.Context, runnables []*intersections.Group) {
	byKind := partitionByKind(runnables)
	durations := r.phaseDurations(byKind)

	var wg sync.WaitGroup
	for kind, groups := range byKind {
		d, ok := durations[kind]
		if !ok {
			// No per-kind config: this kind sits out the phase
			// entirely, per the scheduler's skip-unconfigured rule.
			continue
		}
		wg.Add(1)
		go func(groups []*intersections.Group, d kindDuration) {
			defer wg.Done()
			r.runKindWorker(ctx, groups, d)
		}(groups, d)
	}
	wg.Wait()
}

// runKindWorker drives one kind's groups through Proceed, Transitioning,
// and Prohibit, resetting each group's score once the phase ends.
// Cancellation ends the phase immediately; the Prohibit/reset step may
// be skipped.
func (r *Runner) runKindWorker(ctx context.Context, groups []*intersections.Group, d kindDuration) {
	r.setPhase(groups, intersections.LightProceed)
	if r.sleep(ctx, d.proceed) {
		return
	}

	r.setPhase(groups, intersections.LightTransitioning)
	if r.sleep(ctx, d.transitioning) {
		return
	}

	r.setPhase(groups, intersections.LightProhibit)
	for _, g := range groups {
		if err := g.ResetScore(); err != nil {
			r.logger.Error("trafficlights: reset score failed", "group", g.ID(), "error", err)
		}
	}
}

// phaseDurations computes each present kind's compensated Proceed
// duration and unchanged Transitioning duration: the largest
// (min_go + min_transition) total across configured kinds sets the
// real-time window every kind's phase must fit; a kind's Proceed
// duration absorbs the gap so every kind finishes together.
func (r *Runner) phaseDurations(byKind map[intersections.GroupKind][]*intersections.Group) map[intersections.GroupKind]kindDuration {
	type minMax struct{ minGo, minTransition time.Duration }
	configured := make(map[intersections.GroupKind]minMax, len(byKind))

	var largestTotal time.Duration
	for kind := range byKind {
		minGo, minTransition, ok := r.timing.Duration(kind)
		if !ok {
			continue
		}
		configured[kind] = minMax{minGo, minTransition}
		if total := minGo + minTransition; total > largestTotal {
			largestTotal = total
		}
	}

	out := make(map[intersections.GroupKind]kindDuration, len(configured))
	for kind, mm := range configured {
		total := mm.minGo + mm.minTransition
		out[kind] = kindDuration{
			proceed:       mm.minGo + (largestTotal - total),
			transitioning: mm.minTransition,
		}
	}
	return out
}

func partitionByKind(groups []*intersections.Group) map[intersections.GroupKind][]*intersections.Group {
	out := make(map[intersections.GroupKind][]*intersections.Group)
	for _, g := range groups {
		kind := g.ID().Kind
		out[kind] = append(out[kind], g)
	}
	return out
}

func (r *Runner) setPhase(groups []*intersections.Group, state intersections.LightState) {
	for _, g := range groups {
		for _, light := range g.Lights() {
			if err := light.SetState(state); err != nil {
				r.logger.Error("trafficlights: set light state failed",
					"group", g.ID(), "light", light.ID(), "error", err)
			}
		}
	}
}

// waitForTick waits for the next tick boundary while idle: whichever
// comes first of cancellation, a state change on the intersection, or
// the fixed poll interval.
func (r *Runner) waitForTick(ctx context.Context) bool {
	timer := time.NewTimer(tickInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-r.in.StateChanges():
		return false
	case <-timer.C:
		return false
	}
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return false
	case <-ctx.Done():
		return true
	}
}
