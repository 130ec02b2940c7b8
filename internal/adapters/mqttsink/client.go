package mqttsink

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Options configures the MQTT connection.
type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	TLSCA     string
	TLSCert   string
	TLSKey    string
	Timeout   time.Duration
	Logger    *zap.Logger
	Debug     bool
}

// Client wraps an MQTT connection used for publishing results.
type Client struct {
	client paho.Client
	log    *zap.Logger
	debug  bool
}

// NewClient connects to MQTT.
func NewClient(opts Options) (*Client, error) {
	if opts.BrokerURL == "" {
		return nil, errors.New("broker url required")
	}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	clientOpts := paho.NewClientOptions().AddBroker(opts.BrokerURL)
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetConnectTimeout(opts.Timeout)
	clientOpts.SetWriteTimeout(opts.Timeout)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		opts.Logger.Warn("mqtt connection lost", zap.Error(err))
	})

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}

	tlsConfig, err := BuildTLSConfig(opts.TLSCA, opts.TLSCert, opts.TLSKey)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		clientOpts.SetTLSConfig(tlsConfig)
	}

	client := paho.NewClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(opts.Timeout) {
		return nil, errors.New("mqtt connect timed out")
	}
	if err := token.Error(); err != nil {
		return nil, err
	}

	return &Client{client: client, log: opts.Logger, debug: opts.Debug}, nil
}

// Publish publishes a message.
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if c.debug {
		c.log.Debug("mqtt publish", zap.String("topic", topic), zap.Int("bytes", len(payload)), zap.String("payload", truncatePayload(payload)))
	}
	token := c.client.Publish(topic, qos, retained, payload)
	token.Wait()
	return token.Error()
}

// Close disconnects, giving in-flight publishes a moment to drain.
func (c *Client) Close() {
	c.client.Disconnect(250)
}

func truncatePayload(payload []byte) string {
	const max = 2048
	if len(payload) <= max {
		return string(payload)
	}
	return string(payload[:max]) + "..."
}

// BuildTLSConfig loads client TLS material. It returns nil when no paths are
// set.
func BuildTLSConfig(caPath, certPath, keyPath string) (*tls.Config, error) {
	if caPath == "" && certPath == "" && keyPath == "" {
		return nil, nil
	}

	config := &tls.Config{MinVersion: tls.VersionTLS12}
	if caPath != "" {
		pem, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("failed to parse CA bundle")
		}
		config.RootCAs = pool
	}

	if certPath != "" || keyPath != "" {
		if certPath == "" || keyPath == "" {
			return nil, errors.New("both tls cert and key are required")
		}
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, err
		}
		config.Certificates = []tls.Certificate{cert}
	}

	return config, nil
}
