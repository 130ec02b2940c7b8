package core

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/mikey-austin/np_relay/internal/ports"
	"github.com/mikey-austin/np_relay/pkg/np"
)

// Service orchestrates np CLI use cases.
type Service struct {
	Poller      ports.Poller
	Stations    ports.StationSource
	Monitor     ports.ProcessMonitor
	Resolver    Resolver
	Concurrency int
	Timeout     time.Duration
}

// NowPlaying polls the selected stations concurrently. Offline stations are
// results, not errors.
func (s Service) NowPlaying(ctx context.Context, selectors []string) (NowPlayingResult, error) {
	stations, err := s.Resolver.ResolveStations(ctx, selectors)
	if err != nil {
		return NowPlayingResult{}, err
	}
	return NowPlayingResult{Outcomes: PollAll(ctx, s.Poller, stations, s.Concurrency, s.Timeout)}, nil
}

// Probe polls an ad hoc URL. hint may be np.Unknown to detect the protocol.
func (s Service) Probe(ctx context.Context, rawURL string, hint np.ProtocolKind, mount string) (ProbeResult, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ProbeResult{}, &CLIError{Code: ExitUsage, Msg: "url required"}
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "http://" + rawURL
	}
	endpoint := np.StationEndpoint{
		ID:           hostID(rawURL),
		BaseURL:      rawURL,
		ProtocolHint: hint,
		MountPoint:   mount,
		TimeoutMS:    int(s.Timeout / time.Millisecond),
	}
	if err := endpoint.Validate(); err != nil {
		return ProbeResult{}, WrapError(ExitUsage, "invalid url", err)
	}
	return ProbeResult{Outcome: s.Poller.Poll(ctx, endpoint)}, nil
}

// ListStations returns the configured stations.
func (s Service) ListStations(ctx context.Context) (StationsResult, error) {
	stations, err := s.Stations.ListStations(ctx)
	if err != nil {
		return StationsResult{}, WrapError(ExitRuntime, "list stations", err)
	}
	return StationsResult{Stations: stations}, nil
}

// Check asks the process supervisor whether the relayed servers are up.
func (s Service) Check(ctx context.Context) (CheckResult, error) {
	if s.Monitor == nil {
		return CheckResult{}, &CLIError{Code: ExitUsage, Msg: "supervisor not configured"}
	}
	running, err := s.Monitor.IsRunning(ctx)
	if err != nil {
		return CheckResult{}, WrapError(ExitRuntime, "supervisor check", err)
	}
	return CheckResult{Running: running}, nil
}

func hostID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "probe"
	}
	return u.Host
}
