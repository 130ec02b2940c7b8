//go:build integration
// +build integration

package integration

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/np_relay/internal/adapters/idgen"
	"github.com/mikey-austin/np_relay/internal/adapters/mqtt"
	"github.com/mikey-austin/np_relay/internal/adapters/mqttsink"
	"github.com/mikey-austin/np_relay/internal/modules/embedded_mqtt"
	"github.com/mikey-austin/np_relay/internal/modules/relay"
	"github.com/mikey-austin/np_relay/internal/npd"
	"github.com/mikey-austin/np_relay/internal/ports"
	"github.com/mikey-austin/np_relay/pkg/np"
)

const icecastStatus = `{"icestats":{"server_id":"Icecast 2.4.4","source":[
{"listenurl":"http://localhost:8000/radio.mp3","listeners":12,"bitrate":128,"server_type":"audio/mpeg","server_name":"Jazz FM","artist":"John Coltrane","title":"Naima"},
{"listenurl":"http://localhost:8000/radio.aac","listeners":3,"bitrate":64,"server_type":"audio/aac","title":"Other"}]}}`

type integrationHarness struct {
	ctx    context.Context
	relay  *relay.Module
	reader *mqtt.Client
}

func TestRelayPublishesRetainedNowPlaying(t *testing.T) {
	h := setupIntegration(t)

	outcomes, err := h.relay.RunOnce(h.ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}

	messages := waitForSnapshot(t, h.reader, 2)
	byStation := map[string]mqttsink.Message{}
	for _, message := range messages {
		byStation[message.Station] = message
	}
	jazz := byStation["jazz"]
	if !jazz.Result.IsOnline || jazz.Result.CurrentTrack.Text != "John Coltrane - Naima" || jazz.Result.Listeners.Current != 12 {
		t.Fatalf("unexpected jazz message %+v", jazz)
	}
	if jazz.Protocol != np.Icecast || jazz.State != np.StateParsed {
		t.Fatalf("unexpected jazz protocol/state %s %s", jazz.Protocol, jazz.State)
	}
	down := byStation["down"]
	if down.Result.IsOnline || down.State != np.StateFailed || down.Error == "" {
		t.Fatalf("unexpected down message %+v", down)
	}
}

func TestWatchSeesNextCycle(t *testing.T) {
	h := setupIntegration(t)

	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()
	messages, errs := h.reader.Watch(ctx)

	if _, err := h.relay.RunOnce(h.ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case message, ok := <-messages:
			if !ok {
				t.Fatalf("watch closed early")
			}
			if message.Station == "jazz" {
				return
			}
		case err := <-errs:
			if err != nil {
				t.Fatalf("watch: %v", err)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for jazz update")
		}
	}
}

func setupIntegration(t *testing.T) *integrationHarness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := testLogger()
	listen := freeListenAddr(t)
	brokerURL := embeddedmqtt.BrokerURL(listen, false)

	broker, err := embeddedmqtt.NewModule(logger, embeddedmqtt.Config{Listen: listen, AllowAnonymous: true})
	if err != nil {
		t.Fatalf("embedded mqtt module: %v", err)
	}
	errCh := make(chan error, 1)
	go func() { errCh <- broker.Run(ctx) }()
	select {
	case <-broker.Ready():
	case err := <-errCh:
		t.Fatalf("embedded mqtt failed: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatalf("embedded mqtt not ready")
	}
	waitForBrokerReady(t, listen)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status-json.xsl" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(icecastStatus))
	}))
	t.Cleanup(srv.Close)

	cfg := npd.Config{Stations: []np.StationEndpoint{
		{ID: "jazz", BaseURL: srv.URL, MountPoint: "/radio.mp3"},
		{ID: "down", BaseURL: "http://" + freeListenAddr(t), TimeoutMS: 500},
	}}
	deps, err := npd.BuildDeps(cfg, logger)
	if err != nil {
		t.Fatalf("build deps: %v", err)
	}

	gen := idgen.Generator{}
	writer, err := mqttsink.NewClient(mqttsink.Options{
		BrokerURL: brokerURL,
		ClientID:  "npd-int-" + gen.NewID(),
		Timeout:   2 * time.Second,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("connect sink client: %v", err)
	}
	t.Cleanup(writer.Close)
	sink := mqttsink.NewSink(writer, np.BaseTopic, 1, logger)

	mod, err := relay.NewModule(logger, deps.Stations, deps.Poller, []ports.ResultSink{sink}, nil, relay.Config{SinkInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("relay module: %v", err)
	}

	reader, err := mqtt.NewClient(mqtt.Options{
		BrokerURL: brokerURL,
		ClientID:  "np-int-" + gen.NewID(),
		Timeout:   2 * time.Second,
	})
	if err != nil {
		t.Fatalf("connect reader: %v", err)
	}
	t.Cleanup(reader.Close)

	return &integrationHarness{ctx: ctx, relay: mod, reader: reader}
}

func waitForSnapshot(t *testing.T, client *mqtt.Client, want int) []mqttsink.Message {
	t.Helper()
	deadline := time.Now().Add(4 * time.Second)
	var last []mqttsink.Message
	for time.Now().Before(deadline) {
		messages, err := client.Snapshot(context.Background())
		if err == nil && len(messages) >= want {
			return messages
		}
		last = messages
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d retained messages, got %+v", want, last)
	return nil
}

func freeListenAddr(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		if errors.Is(err, syscall.EPERM) || strings.Contains(err.Error(), "operation not permitted") {
			t.Skip("network listen not permitted in this environment")
		}
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	if err := listener.Close(); err != nil {
		t.Fatalf("close listener: %v", err)
	}
	return addr
}

func waitForBrokerReady(t *testing.T, listen string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", listen, 200*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return
		}
		if errors.Is(err, syscall.EPERM) || strings.Contains(err.Error(), "operation not permitted") {
			t.Skip("network dial not permitted in this environment")
		}
		lastErr = err
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("broker not ready: %v", lastErr)
}

func testLogger() *zap.Logger {
	if strings.EqualFold(os.Getenv("NP_INTEGRATION_DEBUG"), "1") || strings.EqualFold(os.Getenv("NP_INTEGRATION_DEBUG"), "true") {
		logger, err := zap.NewDevelopment()
		if err == nil {
			return logger
		}
	}
	return zap.NewNop()
}
