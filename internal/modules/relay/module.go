package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mikey-austin/np_relay/internal/core"
	"github.com/mikey-austin/np_relay/internal/ports"
	"github.com/mikey-austin/np_relay/pkg/np"
)

const (
	defaultInterval     = 15 * time.Second
	defaultConcurrency  = 8
	defaultSinkInterval = time.Second
)

// Config configures the relay scheduler.
type Config struct {
	Interval    time.Duration // time between poll cycles
	Concurrency int           // polls in flight at once
	// SinkInterval is the minimum gap between two sink publishes.
	SinkInterval time.Duration
	// Timeout applies to stations without their own timeout_ms.
	Timeout time.Duration
}

// Module polls every station on a fixed interval and forwards the outcomes to
// its sinks.
type Module struct {
	log      *zap.Logger
	stations ports.StationSource
	poller   ports.Poller
	sinks    []ports.ResultSink
	monitor  ports.ProcessMonitor
	limiter  *rate.Limiter
	config   Config
}

// NewModule creates a relay module. monitor may be nil.
func NewModule(log *zap.Logger, stations ports.StationSource, poller ports.Poller, sinks []ports.ResultSink, monitor ports.ProcessMonitor, cfg Config) (*Module, error) {
	if stations == nil {
		return nil, errors.New("relay requires a station source")
	}
	if poller == nil {
		return nil, errors.New("relay requires a poller")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.SinkInterval <= 0 {
		cfg.SinkInterval = defaultSinkInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Module{
		log:      log.With(zap.String("module", "relay")),
		stations: stations,
		poller:   poller,
		sinks:    sinks,
		monitor:  monitor,
		limiter:  rate.NewLimiter(rate.Every(cfg.SinkInterval), 1),
		config:   cfg,
	}, nil
}

// Run polls immediately and then once per interval until ctx is done.
func (m *Module) Run(ctx context.Context) error {
	m.log.Info("starting relay",
		zap.Duration("interval", m.config.Interval),
		zap.Int("concurrency", m.config.Concurrency),
		zap.Int("sinks", len(m.sinks)),
	)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := m.RunOnce(ctx); err != nil && ctx.Err() == nil {
			m.log.Warn("relay cycle failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce runs a single cycle and returns its outcomes in station order.
// Stations from sources that answered are polled even when another source
// failed. Source and sink failures do not stop the cycle and are returned
// joined.
func (m *Module) RunOnce(ctx context.Context) ([]np.PollOutcome, error) {
	start := time.Now()
	m.checkProcesses(ctx)

	var errs []error
	stations, err := m.stations.ListStations(ctx)
	if err != nil {
		if len(stations) == 0 {
			return nil, fmt.Errorf("list stations: %w", err)
		}
		errs = append(errs, fmt.Errorf("list stations: %w", err))
	}
	outcomes := core.PollAll(ctx, m.poller, stations, m.config.Concurrency, m.config.Timeout)

	online := 0
	for _, outcome := range outcomes {
		if outcome.Result.IsOnline {
			online++
		}
	}

	for _, sink := range m.sinks {
		if err := m.limiter.Wait(ctx); err != nil {
			errs = append(errs, err)
			break
		}
		if err := sink.Publish(ctx, outcomes); err != nil {
			m.log.Warn("sink publish failed", zap.String("sink", fmt.Sprintf("%T", sink)), zap.Error(err))
			errs = append(errs, err)
		}
	}

	m.log.Info("relay cycle complete",
		zap.Int("stations", len(outcomes)),
		zap.Int("online", online),
		zap.Duration("elapsed", time.Since(start)),
	)
	return outcomes, errors.Join(errs...)
}

func (m *Module) checkProcesses(ctx context.Context) {
	if m.monitor == nil {
		return
	}
	running, err := m.monitor.IsRunning(ctx)
	switch {
	case err != nil:
		m.log.Warn("process check failed", zap.Error(err))
	case !running:
		m.log.Warn("supervised processes not running")
	}
}
