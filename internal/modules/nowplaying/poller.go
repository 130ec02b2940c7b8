package nowplaying

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mikey-austin/np_relay/internal/adapters/clock"
	"github.com/mikey-austin/np_relay/internal/core"
	"github.com/mikey-austin/np_relay/internal/ports"
	"github.com/mikey-austin/np_relay/pkg/np"
)

// Poller runs single polls. It never retries; the scheduler polls again on
// its next cycle.
type Poller struct {
	factory *Factory
	log     *zap.Logger
	clock   ports.Clock
	ids     ports.IDGen
}

var _ ports.Poller = (*Poller)(nil)

// NewPoller creates a poller. ids may be nil when polls need no correlation id.
func NewPoller(factory *Factory, log *zap.Logger, clk ports.Clock, ids ports.IDGen) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	if clk == nil {
		clk = clock.Clock{}
	}
	return &Poller{factory: factory, log: log, clock: clk, ids: ids}
}

// Poll walks Idle -> Building -> Querying -> Parsed|Failed and always returns
// a well formed outcome. Failed outcomes are offline.
func (p *Poller) Poll(ctx context.Context, endpoint np.StationEndpoint) np.PollOutcome {
	start := p.clock.Now()
	outcome := np.PollOutcome{
		Station:  endpoint,
		Protocol: endpoint.ProtocolHint,
		State:    np.StateIdle,
		PolledAt: start,
	}
	log := p.log.With(zap.String("station", endpoint.Label()))
	if p.ids != nil {
		log = log.With(zap.String("poll_id", p.ids.NewID()))
	}

	outcome.State = np.StateBuilding
	handle, err := p.factory.Build(ctx, endpoint)
	if err != nil {
		return p.finish(log, outcome, np.Offline(nil), err, start)
	}
	outcome.Protocol = handle.Kind()

	outcome.State = np.StateQuerying
	result, err := handle.Fetch(ctx)
	return p.finish(log, outcome, result, err, start)
}

func (p *Poller) finish(log *zap.Logger, outcome np.PollOutcome, result np.NowPlayingResult, err error, start time.Time) np.PollOutcome {
	outcome.Duration = p.clock.Now().Sub(start)
	outcome.Err = err
	switch {
	case err == nil:
		outcome.State = np.StateParsed
	case core.KindOf(err) == core.KindPartialData:
		// The primary call succeeded, so the result stands.
		outcome.State = np.StateParsed
	default:
		outcome.State = np.StateFailed
		if result.IsOnline {
			result = np.Offline(result.Raw)
		}
	}
	outcome.Result = result
	if err != nil {
		logFailure(log, outcome)
	} else {
		log.Debug("now playing poll",
			zap.String("protocol", outcome.Protocol.String()),
			zap.Bool("online", result.IsOnline),
			zap.Int("listeners", result.Listeners.Current),
			zap.Duration("elapsed", outcome.Duration),
		)
	}
	return outcome
}

// logFailure writes one record per classified failure.
func logFailure(log *zap.Logger, outcome np.PollOutcome) {
	kind := core.KindOf(outcome.Err)
	level := zapcore.ErrorLevel
	switch kind {
	case core.KindUnreachable, core.KindPartialData:
		level = zapcore.WarnLevel
	case core.KindNoProtocolMatched:
		if core.TransportKindOf(outcome.Err) != core.KindNone {
			level = zapcore.WarnLevel
		}
	}
	if core.TransportKindOf(outcome.Err) == core.KindCanceled {
		// Shutdown, not a station problem.
		level = zapcore.DebugLevel
	}
	fields := []zap.Field{
		zap.String("protocol", outcome.Protocol.String()),
		zap.String("state", outcome.State.String()),
		zap.String("kind", kind.String()),
		zap.Duration("elapsed", outcome.Duration),
		zap.Error(outcome.Err),
	}
	if transport := core.TransportKindOf(outcome.Err); transport != core.KindNone {
		fields = append(fields, zap.String("transport", transport.String()))
	}
	if ce := log.Check(level, "now playing poll degraded"); ce != nil {
		ce.Write(fields...)
	}
}
