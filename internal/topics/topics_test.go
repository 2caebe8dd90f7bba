package topics

import (
	"testing"

	"github.com/nugget/intersection-controller/internal/intersections"
)

func TestParseComponentTopic(t *testing.T) {
	got, err := ParseComponentTopic("18/motor_vehicle/3/light/1")
	if err != nil {
		t.Fatalf("ParseComponentTopic: %v", err)
	}
	want := ComponentTopic{
		TeamID: 18,
		UID:    intersections.NewComponentUid(intersections.MotorVehicle, 3, intersections.KindLight, 1),
	}
	if got != want {
		t.Fatalf("ParseComponentTopic = %+v, want %+v", got, want)
	}
}

func TestParseComponentTopicInvalidKind(t *testing.T) {
	if _, err := ParseComponentTopic("18/car/3/lamp/1"); err == nil {
		t.Fatalf("expected an error for unknown kinds")
	}
}

func TestParseComponentTopicWrongPartCount(t *testing.T) {
	if _, err := ParseComponentTopic("18/motor_vehicle/3/light"); err == nil {
		t.Fatalf("expected an error for a malformed topic")
	}
}

func TestComponentTopicRoundTrip(t *testing.T) {
	uid := intersections.NewComponentUid(intersections.Vessel, 2, intersections.KindGate, 1)
	topic := NewComponentTopic(7, uid)

	parsed, err := ParseComponentTopic(topic.String())
	if err != nil {
		t.Fatalf("ParseComponentTopic: %v", err)
	}
	if parsed != topic {
		t.Fatalf("round trip mismatch: got %+v, want %+v", parsed, topic)
	}
}

func TestParseLifeCycleTopic(t *testing.T) {
	got, err := ParseLifeCycleTopic("4/features/lifecycle/simulator/ondisconnect")
	if err != nil {
		t.Fatalf("ParseLifeCycleTopic: %v", err)
	}
	want := LifeCycleTopic{TeamID: 4, Device: Simulator, Handler: OnDisconnect}
	if got != want {
		t.Fatalf("ParseLifeCycleTopic = %+v, want %+v", got, want)
	}
}

func TestParseLifeCycleTopicInvalidFormat(t *testing.T) {
	if _, err := ParseLifeCycleTopic("4/features/lifecycle/drone/onconnect"); err == nil {
		t.Fatalf("expected an error for an unknown device")
	}
}

func TestLifeCycleTopicRoundTrip(t *testing.T) {
	topic := NewLifeCycleTopic(9, Controller, OnConnect)
	parsed, err := ParseLifeCycleTopic(topic.String())
	if err != nil {
		t.Fatalf("ParseLifeCycleTopic: %v", err)
	}
	if parsed != topic {
		t.Fatalf("round trip mismatch: got %+v, want %+v", parsed, topic)
	}
}
