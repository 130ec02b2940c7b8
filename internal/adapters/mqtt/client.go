package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/mikey-austin/np_relay/internal/adapters/mqttsink"
	"github.com/mikey-austin/np_relay/pkg/np"
)

// Options configures the MQTT client.
type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	TLSCA     string
	TLSCert   string
	TLSKey    string
	TopicBase string
	Timeout   time.Duration
	// Settle is how long Snapshot waits for retained messages.
	Settle time.Duration
}

// Client reads the now-playing messages npd publishes.
type Client struct {
	client    paho.Client
	topicBase string
	timeout   time.Duration
	settle    time.Duration
}

// NewClient creates and connects an MQTT client.
func NewClient(opts Options) (*Client, error) {
	if opts.BrokerURL == "" {
		return nil, errors.New("broker url required")
	}
	if opts.TopicBase == "" {
		opts.TopicBase = np.BaseTopic
	}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.Settle == 0 {
		opts.Settle = 250 * time.Millisecond
	}

	clientOpts := paho.NewClientOptions().AddBroker(opts.BrokerURL)
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetConnectTimeout(opts.Timeout)
	clientOpts.SetAutoReconnect(true)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}

	tlsConfig, err := mqttsink.BuildTLSConfig(opts.TLSCA, opts.TLSCert, opts.TLSKey)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		clientOpts.SetTLSConfig(tlsConfig)
	}

	c := &Client{topicBase: opts.TopicBase, timeout: opts.Timeout, settle: opts.Settle}
	c.client = paho.NewClient(clientOpts)
	token := c.client.Connect()
	if !token.WaitTimeout(opts.Timeout) {
		return nil, errors.New("mqtt connect timed out")
	}
	if err := token.Error(); err != nil {
		return nil, err
	}
	return c, nil
}

// Close disconnects from the broker.
func (c *Client) Close() {
	c.client.Disconnect(250)
}

func (c *Client) filter() string {
	return np.TopicNowPlaying(c.topicBase, "+")
}

// Snapshot collects the retained now-playing message of every station,
// sorted by station.
func (c *Client) Snapshot(ctx context.Context) ([]mqttsink.Message, error) {
	collect := make(map[string]mqttsink.Message)
	var lock sync.Mutex

	handler := func(_ paho.Client, msg paho.Message) {
		var message mqttsink.Message
		if err := json.Unmarshal(msg.Payload(), &message); err != nil {
			return
		}
		lock.Lock()
		collect[message.Station] = message
		lock.Unlock()
	}

	topic := c.filter()
	if token := c.client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	defer func() {
		token := c.client.Unsubscribe(topic)
		token.Wait()
	}()

	wait := time.NewTimer(c.settle)
	select {
	case <-ctx.Done():
		wait.Stop()
	case <-wait.C:
	}

	lock.Lock()
	defer lock.Unlock()
	out := make([]mqttsink.Message, 0, len(collect))
	for _, message := range collect {
		out = append(out, message)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Station < out[j].Station })
	return out, nil
}

// Watch streams now-playing messages until ctx is done. Retained messages
// arrive first. Messages are dropped when the reader falls behind.
func (c *Client) Watch(ctx context.Context) (<-chan mqttsink.Message, <-chan error) {
	messages := make(chan mqttsink.Message, 16)
	errCh := make(chan error, 1)

	var lock sync.RWMutex
	closed := false

	handler := func(_ paho.Client, msg paho.Message) {
		var message mqttsink.Message
		if err := json.Unmarshal(msg.Payload(), &message); err != nil {
			return
		}
		lock.RLock()
		defer lock.RUnlock()
		if closed {
			return
		}
		select {
		case messages <- message:
		default:
		}
	}

	topic := c.filter()
	if token := c.client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
		errCh <- token.Error()
		close(messages)
		close(errCh)
		return messages, errCh
	}

	go func() {
		<-ctx.Done()
		c.client.Unsubscribe(topic).WaitTimeout(c.timeout)
		lock.Lock()
		closed = true
		close(messages)
		close(errCh)
		lock.Unlock()
	}()
	return messages, errCh
}
