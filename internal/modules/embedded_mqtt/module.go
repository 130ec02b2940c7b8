package embeddedmqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"go.uber.org/zap"

	"github.com/mikey-austin/np_relay/pkg/np"
)

// DefaultListen is the broker address when none is configured.
const DefaultListen = "127.0.0.1:1883"

// Config configures the broker now-playing results are published to when no
// external broker is available.
type Config struct {
	Listen string
	// TopicBase is the root the relay publishes under. Defaults to np.BaseTopic.
	TopicBase string
	// AllowAnonymous lets clients without credentials subscribe to results.
	AllowAnonymous bool
	// Username and Password identify the publishing relay. Without them only
	// loopback clients may publish.
	Username string
	Password string
	TLSCA    string
	TLSCert  string
	TLSKey   string
}

// TLSEnabled reports whether the listener serves TLS.
func (c Config) TLSEnabled() bool {
	return c.TLSCert != "" || c.TLSKey != "" || c.TLSCA != ""
}

// Module runs the broker.
type Module struct {
	log    *zap.Logger
	server *mqtt.Server
	config Config
	ready  chan struct{}
}

// NewModule validates cfg and prepares the broker. Nothing listens until Run.
func NewModule(log *zap.Logger, cfg Config) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.TopicBase == "" {
		cfg.TopicBase = np.BaseTopic
	}

	log = log.With(zap.String("module", "embedded_mqtt"))
	server, err := newServer(log, cfg)
	if err != nil {
		return nil, err
	}
	return &Module{log: log, server: server, config: cfg, ready: make(chan struct{})}, nil
}

// Ready is closed once the listener is bound, so sinks can connect.
func (m *Module) Ready() <-chan struct{} {
	return m.ready
}

// BrokerURL is the URL sinks should dial to reach this broker.
func (m *Module) BrokerURL() string {
	return BrokerURL(m.config.Listen, m.config.TLSEnabled())
}

// Run serves until ctx is done.
func (m *Module) Run(ctx context.Context) error {
	listenerConfig := listeners.Config{ID: "tcp-np", Address: m.config.Listen}
	if m.config.TLSEnabled() {
		tlsConfig, err := serverTLSConfig(m.config.TLSCA, m.config.TLSCert, m.config.TLSKey)
		if err != nil {
			return err
		}
		listenerConfig.TLSConfig = tlsConfig
	}
	if err := m.server.AddListener(listeners.NewTCP(listenerConfig)); err != nil {
		return fmt.Errorf("listen %s: %w", m.config.Listen, err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.server.Serve()
	}()
	close(m.ready)
	m.log.Info("embedded mqtt broker listening",
		zap.String("url", m.BrokerURL()),
		zap.String("topics", np.TopicNowPlaying(m.config.TopicBase, "+")),
		zap.Bool("anonymous_read", m.config.AllowAnonymous),
	)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
		<-ctx.Done()
	}
	return m.server.Close()
}

func newServer(log *zap.Logger, cfg Config) (*mqtt.Server, error) {
	ledger, err := newLedger(cfg)
	if err != nil {
		return nil, err
	}
	server := mqtt.New(&mqtt.Options{InlineClient: true, Logger: newSlogLogger(log)})
	if err := server.AddHook(new(auth.Hook), &auth.Options{Ledger: ledger}); err != nil {
		return nil, err
	}
	return server, nil
}

// serverTLSConfig loads the listener certificate. A CA bundle enables
// verification of client certificates when clients present one.
func serverTLSConfig(caPath, certPath, keyPath string) (*tls.Config, error) {
	if certPath == "" || keyPath == "" {
		return nil, errors.New("embedded mqtt tls requires cert and key")
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	config := &tls.Config{MinVersion: tls.VersionTLS12, Certificates: []tls.Certificate{cert}}
	if caPath != "" {
		pem, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("failed to parse client CA bundle")
		}
		config.ClientCAs = pool
		config.ClientAuth = tls.VerifyClientCertIfGiven
	}
	return config, nil
}

// BrokerURL returns the broker URL for a listen address.
func BrokerURL(listen string, tlsEnabled bool) string {
	scheme := "mqtt"
	if tlsEnabled {
		scheme = "mqtts"
	}
	return fmt.Sprintf("%s://%s", scheme, listen)
}
