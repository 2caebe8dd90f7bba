// Package scoring computes per-group demand scores from sensor state,
// the input GetRunnables uses to pick which groups run next. Grounded
// on the reference implementation's
// score_poller.rs, adopting the distance-weighted formula its own
// comments describe as the intended behavior over the flat +1 it
// actually ships.
package scoring

import (
	"context"
	"time"

	"github.com/nugget/intersection-controller/internal/intersections"
)

// sustainedThreshold is how long a sensor must have read High before
// its approach distance, rather than a flat unit, counts toward its
// group's score.
const sustainedThreshold = 3 * time.Second

// Strategy scores a single sensor's contribution to its group's
// demand score. It is pluggable so tests and future tuning can swap
// the formula without touching the poller loop.
type Strategy func(s *intersections.Sensor) int

// DefaultStrategy returns 0 for a Low sensor, the sensor's approach
// distance for a sensor that has read High continuously for at least
// 3 seconds and carries a positive distance weight, and 1 otherwise
// (a freshly triggered or zero-distance presence sensor).
func DefaultStrategy(s *intersections.Sensor) int {
	if s.State() != intersections.SensorHigh {
		return 0
	}
	if s.Distance() > 0 && s.TriggeredFor(sustainedThreshold, intersections.SensorHigh) {
		return s.Distance()
	}
	return 1
}

// Poller adds to every group's score on a fixed tick, grounded on
// score_poller.rs's 100ms polling loop.
type Poller struct {
	intersection *intersections.Intersection
	strategy     Strategy
	interval     time.Duration
}

// NewPoller builds a Poller over every group in in. A nil strategy
// uses DefaultStrategy; interval <= 0 uses the reference
// implementation's 100ms tick.
func NewPoller(in *intersections.Intersection, strategy Strategy, interval time.Duration) *Poller {
	if strategy == nil {
		strategy = DefaultStrategy
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Poller{intersection: in, strategy: strategy, interval: interval}
}

// Run ticks until ctx is cancelled, rescoring every group each tick.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

// tick accumulates onto each group's existing score rather than
// recomputing it fresh, so a sensor that drops back to Low between
// ticks cannot pull a group's score down: only a phase reset
// (Group.ResetScore) ever lowers it.
func (p *Poller) tick() {
	for _, g := range p.intersection.Groups() {
		score := g.Score()
		for _, s := range g.Sensors() {
			score += p.strategy(s)
		}
		g.SetScore(score)
	}
}
