package mqttsink

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/np_relay/internal/ports"
	"github.com/mikey-austin/np_relay/pkg/np"
)

// Publisher is the slice of the MQTT client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Message is the retained payload published per station.
type Message struct {
	Station  string              `json:"station"`
	Name     string              `json:"name,omitempty"`
	Mount    string              `json:"mount,omitempty"`
	Protocol np.ProtocolKind     `json:"protocol"`
	State    np.PollState        `json:"state"`
	Error    string              `json:"error,omitempty"`
	PolledAt time.Time           `json:"polledAt"`
	Result   np.NowPlayingResult `json:"result"`
}

// Sink publishes one retained message per station so late subscribers see
// the latest state immediately.
type Sink struct {
	pub       Publisher
	topicBase string
	qos       byte
	log       *zap.Logger
}

var _ ports.ResultSink = (*Sink)(nil)

// NewSink creates a sink publishing under topicBase.
func NewSink(pub Publisher, topicBase string, qos byte, log *zap.Logger) *Sink {
	if topicBase == "" {
		topicBase = np.BaseTopic
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{pub: pub, topicBase: topicBase, qos: qos, log: log}
}

// Publish sends every outcome, continuing past individual failures.
func (s *Sink) Publish(ctx context.Context, outcomes []np.PollOutcome) error {
	var errs []error
	for _, outcome := range outcomes {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := json.Marshal(NewMessage(outcome))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		topic := np.TopicNowPlaying(s.topicBase, outcome.Station.Label())
		if err := s.pub.Publish(topic, s.qos, true, payload); err != nil {
			s.log.Warn("mqtt publish failed", zap.String("topic", topic), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewMessage converts an outcome into its wire form.
func NewMessage(outcome np.PollOutcome) Message {
	return Message{
		Station:  outcome.Station.Label(),
		Name:     outcome.Station.Name,
		Mount:    outcome.Station.MountPoint,
		Protocol: outcome.Protocol,
		State:    outcome.State,
		Error:    outcome.ErrorText(),
		PolledAt: outcome.PolledAt,
		Result:   outcome.Result,
	}
}

// Outcome converts a received message back into a poll outcome.
func (m Message) Outcome() np.PollOutcome {
	outcome := np.PollOutcome{
		Station:  np.StationEndpoint{ID: m.Station, Name: m.Name, MountPoint: m.Mount, ProtocolHint: m.Protocol},
		Protocol: m.Protocol,
		State:    m.State,
		Result:   m.Result,
		PolledAt: m.PolledAt,
	}
	if m.Error != "" {
		outcome.Err = errors.New(m.Error)
	}
	return outcome
}
