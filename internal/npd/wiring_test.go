package npd

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mikey-austin/np_relay/internal/adapters/config"
	"github.com/mikey-austin/np_relay/internal/ports"
	"github.com/mikey-austin/np_relay/pkg/np"
)

type failingSource struct{ err error }

func (f failingSource) ListStations(ctx context.Context) ([]np.StationEndpoint, error) {
	return nil, f.err
}

func TestStationSourcesSkipFailingSource(t *testing.T) {
	obs, logs := observer.New(zapcore.WarnLevel)
	sources := stationSources{
		sources: []ports.StationSource{
			failingSource{err: errors.New("upstream 503")},
			config.StaticStations{{ID: "jazz", BaseURL: "http://jazz.example"}},
		},
		log: zap.New(obs),
	}
	stations, err := sources.ListStations(context.Background())
	if err == nil {
		t.Fatalf("expected source error")
	}
	if len(stations) != 1 || stations[0].ID != "jazz" {
		t.Fatalf("expected static station kept, got %v", stations)
	}
	if logs.FilterMessage("station source failed").Len() != 1 {
		t.Fatalf("expected one warn record")
	}
}

func TestBuildDepsStaticOnly(t *testing.T) {
	cfg := Config{Stations: []np.StationEndpoint{{ID: "jazz", BaseURL: "http://jazz.example"}}}
	deps, err := BuildDeps(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("build deps: %v", err)
	}
	if deps.Upstream != nil || deps.Monitor != nil {
		t.Fatalf("expected optional components disabled")
	}
	stations, err := deps.Stations.ListStations(context.Background())
	if err != nil || len(stations) != 1 || stations[0].ID != "jazz" {
		t.Fatalf("unexpected stations %v %v", stations, err)
	}
}

func TestBuildDepsMergesUpstreamStations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1,"name":"Rock","shortcode":"rock","type":"icecast","port":8000,"mounts":[{"path":"/live"}]}]`))
	}))
	defer srv.Close()

	cfg := Config{
		Stations:   []np.StationEndpoint{{ID: "jazz", BaseURL: "http://jazz.example"}},
		Upstream:   UpstreamConfig{Enabled: true, BaseURL: srv.URL, APIKey: "k"},
		Supervisor: SupervisorConfig{Enabled: true},
	}
	deps, err := BuildDeps(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("build deps: %v", err)
	}
	if deps.Upstream == nil || deps.Monitor == nil {
		t.Fatalf("expected upstream and monitor")
	}
	stations, err := deps.Stations.ListStations(context.Background())
	if err != nil {
		t.Fatalf("list stations: %v", err)
	}
	if len(stations) != 2 || stations[0].ID != "jazz" || stations[1].ID != "rock:/live" {
		t.Fatalf("unexpected stations %+v", stations)
	}
}

func TestBuildDepsRejectsBadRoots(t *testing.T) {
	cfg := Config{HTTP: HTTPConfig{CAFile: "/nonexistent/ca.pem"}}
	if _, err := BuildDeps(cfg, zap.NewNop()); err == nil {
		t.Fatalf("expected trusted roots error")
	}
}

func TestUpstreamRequiresCredentials(t *testing.T) {
	cfg := Config{Upstream: UpstreamConfig{Enabled: true}}
	if _, err := BuildDeps(cfg, zap.NewNop()); err == nil {
		t.Fatalf("expected upstream error")
	}
}
