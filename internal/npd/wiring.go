package npd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/np_relay/internal/adapters/azuracast"
	"github.com/mikey-austin/np_relay/internal/adapters/clock"
	"github.com/mikey-austin/np_relay/internal/adapters/config"
	"github.com/mikey-austin/np_relay/internal/adapters/httpclient"
	"github.com/mikey-austin/np_relay/internal/adapters/idgen"
	"github.com/mikey-austin/np_relay/internal/adapters/supervisor"
	"github.com/mikey-austin/np_relay/internal/modules/nowplaying"
	"github.com/mikey-austin/np_relay/internal/ports"
	"github.com/mikey-austin/np_relay/pkg/np"
)

// Deps holds the long-lived components shared by np and npd.
type Deps struct {
	Executor *httpclient.Client
	Poller   *nowplaying.Poller
	Stations ports.StationSource
	// Upstream is nil unless [upstream] is enabled.
	Upstream *azuracast.Client
	// Monitor is nil unless [supervisor] is enabled.
	Monitor ports.ProcessMonitor
}

// PollTimeout is the request timeout for stations without their own.
func (c Config) PollTimeout() time.Duration {
	if c.HTTP.TimeoutMS <= 0 {
		return httpclient.DefaultTimeout
	}
	return time.Duration(c.HTTP.TimeoutMS) * time.Millisecond
}

// BuildDeps wires the HTTP client, poller, station sources and process
// monitor. Failing to resolve trusted roots is fatal.
func BuildDeps(cfg Config, logger *zap.Logger) (Deps, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	roots, err := httpclient.LoadRoots(cfg.HTTP.CAFile)
	if err != nil {
		return Deps{}, fmt.Errorf("trusted roots: %w", err)
	}
	logger.Debug("trusted roots loaded", zap.String("source", roots.Source))

	exec := httpclient.New(httpclient.Options{
		Roots:     roots,
		Timeout:   cfg.PollTimeout(),
		UserAgent: cfg.HTTP.UserAgent,
		Logger:    logger.With(zap.String("module", "http")),
	})
	factory := nowplaying.NewFactory(exec, logger.With(zap.String("module", "nowplaying")))
	poller := nowplaying.NewPoller(factory, logger.With(zap.String("module", "nowplaying")), clock.Clock{}, idgen.Generator{})

	deps := Deps{Executor: exec, Poller: poller}
	sources := stationSources{
		sources: []ports.StationSource{config.StaticStations(cfg.Stations)},
		log:     logger.With(zap.String("module", "stations")),
	}

	if cfg.Upstream.Enabled {
		upstream, err := azuracast.New(azuracast.Options{
			BaseURL:      cfg.Upstream.BaseURL,
			APIKey:       cfg.Upstream.APIKey,
			RelayName:    cfg.Upstream.RelayName,
			RelayBaseURL: cfg.Upstream.RelayBaseURL,
			RelayHost:    cfg.Upstream.RelayHost,
			Visible:      cfg.Upstream.Visible,
			Timeout:      time.Duration(cfg.Upstream.TimeoutMS) * time.Millisecond,
			RetryMax:     cfg.Upstream.RetryMax,
			Transport:    httpclient.NewTransport(roots),
			Logger:       logger.With(zap.String("module", "upstream")),
		})
		if err != nil {
			return Deps{}, fmt.Errorf("upstream: %w", err)
		}
		deps.Upstream = upstream
		sources.sources = append(sources.sources, upstream)
	}
	deps.Stations = sources

	if cfg.Supervisor.Enabled {
		deps.Monitor = supervisor.New(exec, supervisor.Options{
			URL:      cfg.Supervisor.URL,
			Username: cfg.Supervisor.Username,
			Password: cfg.Supervisor.Password,
			Process:  cfg.Supervisor.Process,
			Timeout:  cfg.PollTimeout(),
		})
	}
	return deps, nil
}

// stationSources concatenates several sources in order. A failing source is
// logged and skipped so the others are still polled; its error is returned
// alongside the partial list.
type stationSources struct {
	sources []ports.StationSource
	log     *zap.Logger
}

func (s stationSources) ListStations(ctx context.Context) ([]np.StationEndpoint, error) {
	var out []np.StationEndpoint
	var errs []error
	for _, source := range s.sources {
		stations, err := source.ListStations(ctx)
		if err != nil {
			s.log.Warn("station source failed", zap.String("source", fmt.Sprintf("%T", source)), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		out = append(out, stations...)
	}
	return out, errors.Join(errs...)
}
