// Package messaging moves component state and lifecycle notifications
// between the intersection model and the broker, decoupling the
// scheduler goroutines from broker I/O. Grounded
// on the reference implementation's message_publisher.rs,
// message_subscriber.rs, and state_publisher.rs.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/nugget/intersection-controller/internal/broker"
	"github.com/nugget/intersection-controller/internal/intersections"
	"github.com/nugget/intersection-controller/internal/topics"
)

// Message is one outbound broker publish: a topic and its payload.
type Message struct {
	Topic   string
	Payload []byte
}

// MessagePublisher drains a channel of outbound Messages onto a
// broker.Client. One goroutine, one client: publishes never
// interleave badly ordered partial writes.
type MessagePublisher struct {
	client   *broker.Client
	messages <-chan Message
	logger   *slog.Logger
}

// NewMessagePublisher builds a MessagePublisher. A nil logger is
// replaced with slog.Default.
func NewMessagePublisher(client *broker.Client, messages <-chan Message, logger *slog.Logger) *MessagePublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessagePublisher{client: client, messages: messages, logger: logger}
}

// Run drains messages until ctx is cancelled or the channel closes.
func (p *MessagePublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-p.messages:
			if !ok {
				return
			}
			if err := p.client.Publish(ctx, m.Topic, m.Payload); err != nil {
				p.logger.Warn("broker publish failed", "topic", m.Topic, "error", err)
			}
		}
	}
}

// InboundMessage is one message observed on a subscribed topic.
type InboundMessage struct {
	Topic   string
	Payload []byte
}

// MessageSubscriber wires a broker.Client's message handler to a
// channel, so callers can range over inbound messages instead of
// implementing a callback.
type MessageSubscriber struct {
	out chan InboundMessage
}

// NewMessageSubscriber registers itself as client's message handler.
// Must be called before client.Start.
func NewMessageSubscriber(client *broker.Client, bufferSize int) *MessageSubscriber {
	s := &MessageSubscriber{out: make(chan InboundMessage, bufferSize)}
	client.SetMessageHandler(func(topic string, payload []byte) {
		msg := InboundMessage{Topic: topic, Payload: append([]byte(nil), payload...)}
		select {
		case s.out <- msg:
		default:
			// Channel full: drop rather than block the broker's receive loop.
		}
	})
	return s
}

// Messages returns the inbound message stream.
func (s *MessageSubscriber) Messages() <-chan InboundMessage { return s.out }

// StatePublisher forwards every actuator StateUpdated notification
// from one or more intersections onto an outbound Message channel, as
// a ComponentTopic carrying the new state's integer codec. Sensor
// state changes are not republished: sensors are driven externally
// and the controller only ever reads them.
type StatePublisher struct {
	teamID        int
	intersections []*intersections.Intersection
	out           chan<- Message
}

// NewStatePublisher builds a StatePublisher over one or more
// intersections (the reference implementation wires exactly two: the
// traffic-lights intersection and the bridge intersection).
func NewStatePublisher(teamID int, out chan<- Message, in ...*intersections.Intersection) *StatePublisher {
	return &StatePublisher{teamID: teamID, intersections: in, out: out}
}

// Run reads every intersection's Notifications channel via a fan-in
// goroutine per intersection, and publishes a Message for each
// non-sensor StateUpdated notification. It blocks until ctx is
// cancelled.
func (p *StatePublisher) Run(ctx context.Context) error {
	notifications := make(chan intersections.Notification)

	for _, in := range p.intersections {
		go fanIn(ctx, in.Notifications(), notifications)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-notifications:
			if n.NKind() != intersections.StateUpdated {
				continue
			}
			uid := n.ComponentUid()
			if uid.ComponentId.Kind == intersections.KindSensor {
				continue
			}

			payload, err := p.payloadFor(uid)
			if err != nil {
				slog.Default().Warn("state publisher dropped update", "uid", uid, "error", err)
				continue
			}

			select {
			case p.out <- Message{
				Topic:   topics.NewComponentTopic(p.teamID, uid).String(),
				Payload: []byte(strconv.Itoa(payload)),
			}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func fanIn(ctx context.Context, in <-chan intersections.Notification, out chan<- intersections.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-in:
			select {
			case out <- n:
			case <-ctx.Done():
				return
			}
		}
	}
}

// payloadFor resolves a component's current state to its integer
// codec, checking every intersection in order.
func (p *StatePublisher) payloadFor(uid intersections.ComponentUid) (int, error) {
	for _, in := range p.intersections {
		switch uid.ComponentId.Kind {
		case intersections.KindLight:
			if l, err := in.FindLight(uid); err == nil {
				return l.State().Int(), nil
			}
		case intersections.KindGate:
			if g, err := in.FindGate(uid); err == nil {
				return g.State().Int(), nil
			}
		case intersections.KindDeck:
			if d, err := in.FindDeck(uid); err == nil {
				return d.State().Int(), nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %s", intersections.ErrComponentNotFound, uid)
}
