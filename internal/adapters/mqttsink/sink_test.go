package mqttsink

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/np_relay/pkg/np"
)

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakePublisher struct {
	messages []published
	failOn   string
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if topic == f.failOn {
		return errors.New("broker gone")
	}
	f.messages = append(f.messages, published{topic: topic, qos: qos, retained: retained, payload: payload})
	return nil
}

func TestSinkPublishesRetainedPerStation(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewSink(pub, "", 1, zap.NewNop())
	polledAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	outcomes := []np.PollOutcome{
		{
			Station:  np.StationEndpoint{ID: "jazz", Name: "Jazz FM", MountPoint: "/radio"},
			Protocol: np.Icecast,
			State:    np.StateParsed,
			PolledAt: polledAt,
			Result:   np.Online(np.Track{Artist: "A", Title: "T"}, np.Listeners{Current: 2}, np.StreamMeta{}, []byte("raw")),
		},
		{
			Station: np.StationEndpoint{ID: "rock"},
			State:   np.StateFailed,
			Err:     errors.New("unreachable"),
			Result:  np.Offline(nil),
		},
	}
	if err := sink.Publish(context.Background(), outcomes); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(pub.messages) != 2 {
		t.Fatalf("expected 2 messages got %d", len(pub.messages))
	}
	first := pub.messages[0]
	if first.topic != "np/v1/station/jazz/nowplaying" || !first.retained || first.qos != 1 {
		t.Fatalf("unexpected publish %+v", first)
	}
	var msg struct {
		Station  string `json:"station"`
		Protocol string `json:"protocol"`
		State    string `json:"state"`
		Result   struct {
			IsOnline     bool `json:"isOnline"`
			CurrentTrack struct {
				Text     string `json:"text"`
				Duration int    `json:"duration"`
			} `json:"currentTrack"`
		} `json:"result"`
	}
	if err := json.Unmarshal(first.payload, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Station != "jazz" || msg.Protocol != "icecast" || msg.State != "parsed" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if !msg.Result.IsOnline || msg.Result.CurrentTrack.Text != "A - T" || msg.Result.CurrentTrack.Duration != -1 {
		t.Fatalf("unexpected result %+v", msg.Result)
	}

	var offline Message
	if err := json.Unmarshal(pub.messages[1].payload, &offline); err != nil {
		t.Fatalf("decode offline: %v", err)
	}
	if offline.Error != "unreachable" || offline.Result.IsOnline {
		t.Fatalf("unexpected offline message %+v", offline)
	}
}

func TestSinkContinuesPastFailures(t *testing.T) {
	pub := &fakePublisher{failOn: "custom/station/a/nowplaying"}
	sink := NewSink(pub, "custom", 0, zap.NewNop())
	outcomes := []np.PollOutcome{
		{Station: np.StationEndpoint{ID: "a"}, Result: np.Offline(nil)},
		{Station: np.StationEndpoint{ID: "b"}, Result: np.Offline(nil)},
	}
	if err := sink.Publish(context.Background(), outcomes); err == nil {
		t.Fatalf("expected joined error")
	}
	if len(pub.messages) != 1 || pub.messages[0].topic != "custom/station/b/nowplaying" {
		t.Fatalf("expected second station published, got %+v", pub.messages)
	}
}

func TestBuildTLSConfig(t *testing.T) {
	cfg, err := BuildTLSConfig("", "", "")
	if err != nil || cfg != nil {
		t.Fatalf("expected no tls config, got %v %v", cfg, err)
	}
	if _, err := BuildTLSConfig("", "cert.pem", ""); err == nil {
		t.Fatalf("expected error when key missing")
	}
	if _, err := BuildTLSConfig("/nonexistent/ca.pem", "", ""); err == nil {
		t.Fatalf("expected error for missing ca")
	}
}

func TestMessageOutcome(t *testing.T) {
	payload, err := json.Marshal(NewMessage(np.PollOutcome{
		Station:  np.StationEndpoint{ID: "rock", Name: "Rock", MountPoint: "/live", AdminPassword: "secret"},
		Protocol: np.Shoutcast2,
		State:    np.StateFailed,
		Err:      errors.New("timeout"),
		Result:   np.Offline(nil),
	}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var message Message
	if err := json.Unmarshal(payload, &message); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	outcome := message.Outcome()
	if outcome.Station.ID != "rock" || outcome.Station.MountPoint != "/live" || outcome.Station.AdminPassword != "" {
		t.Fatalf("unexpected station %+v", outcome.Station)
	}
	if outcome.Protocol != np.Shoutcast2 || outcome.State != np.StateFailed || outcome.ErrorText() != "timeout" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
}
