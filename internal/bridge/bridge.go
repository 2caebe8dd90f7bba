// Package bridge implements the bridge opening/closing state machine
// that arbitrates between road traffic and vessel traffic over a
// single movable-deck crossing. Grounded on the
// reference implementation's bridge_runner.rs.
package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/nugget/intersection-controller/internal/intersections"
)

const (
	transitioningDuration = 4 * time.Second
	prohibitDuration      = 6 * time.Second
	gateCloseSettle       = 4 * time.Second
	deckOpenSettle        = 10 * time.Second
	deckCloseSettle       = 10 * time.Second
	gateOpenSettle        = 4 * time.Second
	roadGoDuration        = 30 * time.Second
)

// Runner drives one bridge intersection through its full road/vessel
// cycle: warn the road, stop it, drain the deck, close the gates,
// open the deck, serve queued vessels one at a time, close the deck,
// reopen the gates, and wave the road through again. It idles when no
// vessel is waiting.
type Runner struct {
	in     *intersections.Intersection
	logger *slog.Logger

	aboveDeckSensor *intersections.Sensor
	belowDeckSensor *intersections.Sensor
	light           *intersections.LightActuator
	frontGate       *intersections.GateActuator
	backGate        *intersections.GateActuator
	deck            *intersections.DeckActuator

	topVessel    *intersections.Group
	bottomVessel *intersections.Group
}

// NewRunner resolves every fixed component address the bridge state
// machine needs out of in, per the reference layout: Bridge/1 for the
// light/gates/deck/above-deck sensor, Vessel/1 and Vessel/2 for the
// two main queues, Vessel/3 for the below-deck clearance sensor.
func NewRunner(in *intersections.Intersection, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}

	aboveDeck, err := in.FindSensor(intersections.NewComponentUid(intersections.Bridge, 1, intersections.KindSensor, 1))
	if err != nil {
		return nil, err
	}
	belowDeck, err := in.FindSensor(intersections.NewComponentUid(intersections.Vessel, 3, intersections.KindSensor, 1))
	if err != nil {
		return nil, err
	}
	light, err := in.FindLight(intersections.NewComponentUid(intersections.Bridge, 1, intersections.KindLight, 1))
	if err != nil {
		return nil, err
	}
	frontGate, err := in.FindGate(intersections.NewComponentUid(intersections.Bridge, 1, intersections.KindGate, 1))
	if err != nil {
		return nil, err
	}
	backGate, err := in.FindGate(intersections.NewComponentUid(intersections.Bridge, 1, intersections.KindGate, 2))
	if err != nil {
		return nil, err
	}
	deck, err := in.FindDeck(intersections.NewComponentUid(intersections.Bridge, 1, intersections.KindDeck, 1))
	if err != nil {
		return nil, err
	}

	topVessel, ok := in.FindGroup(intersections.GroupId{Kind: intersections.Vessel, ID: 1})
	if !ok {
		return nil, intersections.ErrUnknownGroup
	}
	bottomVessel, ok := in.FindGroup(intersections.GroupId{Kind: intersections.Vessel, ID: 2})
	if !ok {
		return nil, intersections.ErrUnknownGroup
	}

	return &Runner{
		in:              in,
		logger:          logger,
		aboveDeckSensor: aboveDeck,
		belowDeckSensor: belowDeck,
		light:           light,
		frontGate:       frontGate,
		backGate:        backGate,
		deck:            deck,
		topVessel:       topVessel,
		bottomVessel:    bottomVessel,
	}, nil
}

// Run drives the cycle until ctx is cancelled. It returns nil on
// cancellation; the only errors it can return come from component
// SetState calls, which in practice never fail.
func (r *Runner) Run(ctx context.Context) error {
	for {
		if !r.oneVesselHigh() {
			if stop := r.waitAny(ctx, r.topVessel.SensorChanges(), r.bottomVessel.SensorChanges()); stop {
				return nil
			}
			continue
		}

		if err := r.light.SetState(intersections.LightTransitioning); err != nil {
			return err
		}
		if r.sleep(ctx, transitioningDuration) {
			return nil
		}

		if err := r.light.SetState(intersections.LightProhibit); err != nil {
			return err
		}
		if r.sleep(ctx, prohibitDuration) {
			return nil
		}

		if stop := r.waitForDeckClear(ctx); stop {
			return nil
		}

		if err := r.frontGate.SetState(intersections.GateClose); err != nil {
			return err
		}
		if err := r.backGate.SetState(intersections.GateClose); err != nil {
			return err
		}
		if r.sleep(ctx, gateCloseSettle) {
			return nil
		}

		if err := r.deck.SetState(intersections.DeckOpen); err != nil {
			return err
		}
		if r.sleep(ctx, deckOpenSettle) {
			return nil
		}

		if stop := r.serveVessels(ctx); stop {
			return nil
		}

		if err := r.deck.SetState(intersections.DeckClose); err != nil {
			return err
		}
		if r.sleep(ctx, deckCloseSettle) {
			return nil
		}

		if err := r.frontGate.SetState(intersections.GateOpen); err != nil {
			return err
		}
		if err := r.backGate.SetState(intersections.GateOpen); err != nil {
			return err
		}
		if r.sleep(ctx, gateOpenSettle) {
			return nil
		}

		if err := r.light.SetState(intersections.LightProceed); err != nil {
			return err
		}
		if r.sleep(ctx, roadGoDuration) {
			return nil
		}
	}
}

// serveVessels waves each main vessel queue (Vessel/1, Vessel/2)
// through one at a time: it watches the below-deck clearance sensor
// rise and fall once per queue before prohibiting it again, and loops
// until no vessel queue is waiting anymore.
func (r *Runner) serveVessels(ctx context.Context) (stop bool) {
	for r.oneVesselHigh() {
		for _, vessel := range []*intersections.Group{r.topVessel, r.bottomVessel} {
			if !vessel.OneSensorHigh() {
				continue
			}

			for _, light := range vessel.Lights() {
				if err := light.SetState(intersections.LightProceed); err != nil {
					r.logger.Error("bridge: set vessel light failed", "error", err)
				}
			}

			if r.waitForSensorState(ctx, intersections.SensorLow) {
				return true
			}
			if r.waitForSensorState(ctx, intersections.SensorHigh) {
				return true
			}

			for _, light := range vessel.Lights() {
				if err := light.SetState(intersections.LightProhibit); err != nil {
					r.logger.Error("bridge: set vessel light failed", "error", err)
				}
			}
		}
	}
	return false
}

// waitForSensorState blocks until the below-deck sensor no longer
// equals want, polling its own change channel. Naming mirrors the
// reference implementation's two-phase wait: first for the vessel's
// bow to arrive (Low -> High), then for its stern to clear (High ->
// Low).
func (r *Runner) waitForSensorState(ctx context.Context, want intersections.SensorState) (stop bool) {
	for r.belowDeckSensor.State() == want {
		if r.waitAny(ctx, r.belowDeckSensor.Receiver()) {
			return true
		}
	}
	return false
}

func (r *Runner) waitForDeckClear(ctx context.Context) (stop bool) {
	for r.aboveDeckSensor.State() == intersections.SensorHigh {
		if r.waitAny(ctx, r.aboveDeckSensor.Receiver()) {
			return true
		}
	}
	return false
}

func (r *Runner) oneVesselHigh() bool {
	for _, g := range r.in.Groups() {
		if g.ID().Kind != intersections.Vessel {
			continue
		}
		if g.OneSensorHigh() {
			return true
		}
	}
	return false
}

// sleep waits for d or cancellation, reporting whether ctx ended
// first.
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

// waitAny blocks until any of the given channels delivers a value or
// ctx is cancelled, reporting whether ctx ended first.
func (r *Runner) waitAny(ctx context.Context, chans ...<-chan intersections.ComponentUid) bool {
	done := make(chan struct{})
	defer close(done)

	result := make(chan struct{}, 1)
	for _, ch := range chans {
		ch := ch
		go func() {
			select {
			case <-ch:
				select {
				case result <- struct{}{}:
				default:
				}
			case <-done:
			}
		}()
	}

	select {
	case <-result:
		return false
	case <-ctx.Done():
		return true
	}
}
