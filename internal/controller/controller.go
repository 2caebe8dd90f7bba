// Package controller wires the intersection model, the broker clients,
// and the scheduler goroutines together, and routes every inbound
// message to the right handler: sensor state updates and simulator
// lifecycle events that start and stop the traffic-light and bridge
// runners. The jam-block rule lives on TrafficLightsRunner's own tick,
// not here. Grounded on the reference
// implementation's controller.rs, rewritten around context.Context
// cancellation and a sync.WaitGroup in place of its
// AtomicBool-plus-broadcast-channel stop signal.
package controller

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/nugget/intersection-controller/internal/bridge"
	"github.com/nugget/intersection-controller/internal/broker"
	"github.com/nugget/intersection-controller/internal/intersections"
	"github.com/nugget/intersection-controller/internal/messaging"
	"github.com/nugget/intersection-controller/internal/scoring"
	"github.com/nugget/intersection-controller/internal/topics"
	"github.com/nugget/intersection-controller/internal/trafficlights"
)

// Controller owns both intersections, the broker clients, and every
// supporting goroutine (message pump, state publisher, score poller,
// traffic-light runner, bridge runner). It starts and stops the two
// runners in response to simulator connect/disconnect lifecycle
// messages, resetting all component state and scores on each
// transition.
type Controller struct {
	trafficLights *intersections.Intersection
	bridgeIn      *intersections.Intersection

	publisher  *broker.Client
	subscriber *broker.Client
	teamID     int

	timing trafficlights.Timing
	logger *slog.Logger

	outbound chan messaging.Message

	mu          sync.Mutex
	runnerStop  context.CancelFunc
	runnerGroup *sync.WaitGroup
}

// New builds a Controller over the two already-constructed
// intersections and the two broker clients (publisher and
// subscriber). It does not start anything; call Run.
func New(trafficLights, bridgeIn *intersections.Intersection, publisher, subscriber *broker.Client, teamID int, timing trafficlights.Timing, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		trafficLights: trafficLights,
		bridgeIn:      bridgeIn,
		publisher:     publisher,
		subscriber:    subscriber,
		teamID:        teamID,
		timing:        timing,
		logger:        logger,
		outbound:      make(chan messaging.Message, 256),
	}
}

// Run starts the broker clients, subscribes to every sensor topic and
// the simulator lifecycle topics, and then services inbound messages
// until ctx is cancelled. It blocks.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("starting controller")

	// MessageSubscriber registers itself as the handler before the
	// client connects, and Start blocks for the client's lifetime, so
	// both clients run under their own goroutines.
	subscriber := messaging.NewMessageSubscriber(c.subscriber, 256)

	go func() {
		if err := c.publisher.Start(ctx); err != nil {
			c.logger.Error("publisher client stopped", "error", err)
		}
	}()
	go func() {
		if err := c.subscriber.Start(ctx); err != nil {
			c.logger.Error("subscriber client stopped", "error", err)
		}
	}()

	if err := awaitConnection(ctx, c.publisher); err != nil {
		return err
	}
	if err := awaitConnection(ctx, c.subscriber); err != nil {
		return err
	}

	for _, sensor := range c.trafficLights.Sensors() {
		if err := c.subscriber.Subscribe(ctx, topics.NewComponentTopic(c.teamID, sensor.UID()).String()); err != nil {
			return err
		}
	}
	for _, sensor := range c.bridgeIn.Sensors() {
		if err := c.subscriber.Subscribe(ctx, topics.NewComponentTopic(c.teamID, sensor.UID()).String()); err != nil {
			return err
		}
	}

	connect := topics.NewLifeCycleTopic(c.teamID, topics.Simulator, topics.OnConnect).String()
	disconnect := topics.NewLifeCycleTopic(c.teamID, topics.Simulator, topics.OnDisconnect).String()
	if err := c.subscriber.Subscribe(ctx, connect); err != nil {
		return err
	}
	if err := c.subscriber.Subscribe(ctx, disconnect); err != nil {
		return err
	}

	publisher := messaging.NewMessagePublisher(c.publisher, c.outbound, c.logger)
	go publisher.Run(ctx)

	statePublisher := messaging.NewStatePublisher(c.teamID, c.outbound, c.trafficLights, c.bridgeIn)
	go func() {
		if err := statePublisher.Run(ctx); err != nil {
			c.logger.Error("state publisher stopped", "error", err)
		}
	}()

	scorePoller := scoring.NewPoller(c.trafficLights, nil, 0)
	go scorePoller.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			c.stopRunners()
			return nil
		case msg := <-subscriber.Messages():
			c.handleMessage(msg)
		}
	}
}

// handleMessage dispatches one inbound broker message to the
// lifecycle handler or the component-state handler, matching whichever
// topic shape it parses as.
func (c *Controller) handleMessage(msg messaging.InboundMessage) {
	if lc, err := topics.ParseLifeCycleTopic(msg.Topic); err == nil {
		c.handleLifeCycleMessage(lc)
		return
	}
	if ct, err := topics.ParseComponentTopic(msg.Topic); err == nil {
		c.handleComponentMessage(ct, string(msg.Payload))
		return
	}
	c.logger.Debug("ignoring message on unrecognized topic", "topic", msg.Topic)
}

// handleLifeCycleMessage restarts both runners on a simulator connect,
// and stops them (leaving both intersections reset and idle) on a
// simulator disconnect.
func (c *Controller) handleLifeCycleMessage(topic topics.LifeCycleTopic) {
	if topic.Device != topics.Simulator {
		return
	}

	switch topic.Handler {
	case topics.OnConnect:
		c.logger.Info("simulator connected")
		c.stopRunners()
		c.reset()
		c.startRunners()
	case topics.OnDisconnect:
		c.logger.Warn("simulator disconnected")
		c.stopRunners()
		c.reset()
	}
}

// handleComponentMessage applies an inbound sensor reading to whichever
// intersection owns that component. The jam-block rule is evaluated
// separately, on TrafficLightsRunner's own tick.
func (c *Controller) handleComponentMessage(topic topics.ComponentTopic, payload string) {
	value, err := strconv.Atoi(payload)
	if err != nil {
		c.logger.Warn("non-integer sensor payload", "topic", topic.String(), "payload", payload, "error", err)
		return
	}
	state, err := intersections.ParseSensorState(value)
	if err != nil {
		c.logger.Warn("invalid sensor state", "topic", topic.String(), "value", value, "error", err)
		return
	}

	if sensor, err := c.trafficLights.FindSensor(topic.UID); err == nil {
		if err := sensor.SetState(state); err != nil {
			c.logger.Error("set sensor state failed", "uid", topic.UID, "error", err)
		}
		return
	}

	if sensor, err := c.bridgeIn.FindSensor(topic.UID); err == nil {
		if err := sensor.SetState(state); err != nil {
			c.logger.Error("set sensor state failed", "uid", topic.UID, "error", err)
		}
	}
}

// reset clears every component back to its default state and every
// group's score to zero, across both intersections.
func (c *Controller) reset() {
	c.logger.Info("resetting all states and scores")
	for _, g := range c.trafficLights.Groups() {
		if err := g.ResetAll(); err != nil {
			c.logger.Error("reset all failed", "group", g.ID(), "error", err)
		}
		if err := g.ResetScore(); err != nil {
			c.logger.Error("reset score failed", "group", g.ID(), "error", err)
		}
	}
	for _, g := range c.bridgeIn.Groups() {
		if err := g.ResetAll(); err != nil {
			c.logger.Error("reset all failed", "group", g.ID(), "error", err)
		}
		if err := g.ResetScore(); err != nil {
			c.logger.Error("reset score failed", "group", g.ID(), "error", err)
		}
	}
}

// startRunners launches fresh traffic-light and bridge runner
// goroutines under a new cancellable context. Must be called with no
// runners already active (callers always call stopRunners first).
func (c *Controller) startRunners() {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}

	tlRunner := trafficlights.NewRunner(c.trafficLights, c.timing, c.logger)
	bridgeRunner, err := bridge.NewRunner(c.bridgeIn, c.logger)
	if err != nil {
		c.logger.Error("bridge runner unavailable, traffic lights will run alone", "error", err)
		bridgeRunner = nil
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tlRunner.Run(ctx); err != nil {
			c.logger.Error("traffic lights runner stopped", "error", err)
		}
	}()

	if bridgeRunner != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bridgeRunner.Run(ctx); err != nil {
				c.logger.Error("bridge runner stopped", "error", err)
			}
		}()
	}

	c.runnerStop = cancel
	c.runnerGroup = wg
}

// stopRunners cancels the active runner goroutines, if any, and waits
// for them to exit before returning. Idempotent.
func (c *Controller) stopRunners() {
	c.mu.Lock()
	stop := c.runnerStop
	wg := c.runnerGroup
	c.runnerStop = nil
	c.runnerGroup = nil
	c.mu.Unlock()

	if stop == nil {
		return
	}
	stop()
	wg.Wait()
}

// awaitConnection waits for a broker client's connection manager to
// come up, retrying AwaitConnection's "client not started" error
// during the brief window between the client's Start goroutine being
// scheduled and it assigning its connection manager.
func awaitConnection(ctx context.Context, client *broker.Client) error {
	for {
		err := client.AwaitConnection(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}
