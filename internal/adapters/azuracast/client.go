package azuracast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/mikey-austin/np_relay/internal/ports"
	"github.com/mikey-austin/np_relay/pkg/np"
)

const (
	relaysPath       = "/api/internal/relays"
	defaultTimeout   = 10 * time.Second
	defaultRetryMax  = 3
	defaultRelayHost = "http://127.0.0.1"
	maxResponseBytes = 4 << 20
)

// Options configures the upstream API client.
type Options struct {
	BaseURL string
	APIKey  string
	// RelayName and RelayBaseURL describe this relay to the central server.
	RelayName    string
	RelayBaseURL string
	// RelayHost is where the relayed streaming servers listen locally.
	RelayHost    string
	Visible      bool
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Transport    http.RoundTripper
	Logger       *zap.Logger
}

// Client talks to the central AzuraCast API. It supplies the station list
// and receives poll results.
type Client struct {
	opts Options
	http *http.Client
	log  *zap.Logger
}

var (
	_ ports.StationSource = (*Client)(nil)
	_ ports.ResultSink    = (*Client)(nil)
)

// New creates an upstream client. Only this client retries; polls never do.
func New(opts Options) (*Client, error) {
	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if opts.BaseURL == "" {
		return nil, errors.New("base_url required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("base_url: %w", err)
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("api_key required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RetryMax == 0 {
		opts.RetryMax = defaultRetryMax
	}
	if opts.RelayHost == "" {
		opts.RelayHost = defaultRelayHost
	}
	opts.RelayHost = strings.TrimRight(opts.RelayHost, "/")
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	if opts.RetryWaitMin > 0 {
		retryClient.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		retryClient.RetryWaitMax = opts.RetryWaitMax
	}
	retryClient.Logger = leveledLogger{log: opts.Logger.Sugar()}
	retryClient.HTTPClient = &http.Client{Timeout: opts.Timeout}
	if opts.Transport != nil {
		retryClient.HTTPClient.Transport = opts.Transport
	}

	return &Client{
		opts: opts,
		http: retryClient.StandardClient(),
		log:  opts.Logger,
	}, nil
}

type relayStation struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Shortcode string `json:"shortcode"`
	Type      string `json:"type"`
	Port      int    `json:"port"`
	AdminPW   string `json:"admin_pw"`
	Mounts    []struct {
		Path      string `json:"path"`
		IsDefault bool   `json:"is_default"`
	} `json:"mounts"`
}

// ListStations returns one endpoint per relayed mount.
func (c *Client) ListStations(ctx context.Context) ([]np.StationEndpoint, error) {
	body, err := c.do(ctx, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}
	var relays []relayStation
	if err := json.Unmarshal(body, &relays); err != nil {
		return nil, fmt.Errorf("decode relays: %w", err)
	}

	var out []np.StationEndpoint
	for _, relay := range relays {
		kind, err := np.ParseProtocolKind(relay.Type)
		if err != nil {
			c.log.Warn("skipping relay with unknown frontend",
				zap.String("station", relay.Shortcode),
				zap.String("type", relay.Type),
			)
			continue
		}
		key := relay.Shortcode
		if key == "" {
			key = fmt.Sprintf("%d", relay.ID)
		}
		base := c.opts.RelayHost
		if relay.Port > 0 {
			base = fmt.Sprintf("%s:%d", base, relay.Port)
		}
		for _, mount := range relay.Mounts {
			out = append(out, np.StationEndpoint{
				ID:            RelayID(key, mount.Path),
				Name:          relay.Name,
				BaseURL:       base,
				ProtocolHint:  kind,
				AdminPassword: relay.AdminPW,
				MountPoint:    mount.Path,
			})
		}
	}
	return out, nil
}

// RelayID joins a station key and mount into an endpoint id.
func RelayID(station string, mount string) string {
	return station + ":" + mount
}

// splitRelayID reverses RelayID. Endpoints not created by ListStations are
// grouped under their own id.
func splitRelayID(endpoint np.StationEndpoint) (string, string) {
	if station, mount, ok := strings.Cut(endpoint.ID, ":"); ok && strings.HasPrefix(mount, "/") {
		return station, mount
	}
	mount := endpoint.MountPoint
	if mount == "" {
		mount = "/"
	}
	return endpoint.Label(), mount
}

type relayNowPlaying struct {
	np.NowPlayingResult
	Protocol string    `json:"protocol"`
	State    string    `json:"state"`
	Error    string    `json:"error,omitempty"`
	PolledAt time.Time `json:"polled_at"`
}

type relayUpdate struct {
	BaseURL    string                                `json:"base_url"`
	Name       string                                `json:"name"`
	Visible    bool                                  `json:"is_visible_on_public_pages"`
	NowPlaying map[string]map[string]relayNowPlaying `json:"nowplaying"`
}

// Publish posts a cycle's outcomes grouped by station and mount.
func (c *Client) Publish(ctx context.Context, outcomes []np.PollOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	update := relayUpdate{
		BaseURL:    c.opts.RelayBaseURL,
		Name:       c.opts.RelayName,
		Visible:    c.opts.Visible,
		NowPlaying: map[string]map[string]relayNowPlaying{},
	}
	for _, outcome := range outcomes {
		station, mount := splitRelayID(outcome.Station)
		if update.NowPlaying[station] == nil {
			update.NowPlaying[station] = map[string]relayNowPlaying{}
		}
		update.NowPlaying[station][mount] = relayNowPlaying{
			NowPlayingResult: outcome.Result,
			Protocol:         outcome.Protocol.String(),
			State:            outcome.State.String(),
			Error:            outcome.ErrorText(),
			PolledAt:         outcome.PolledAt,
		}
	}
	payload, err := json.Marshal(update)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, payload)
	return err
}

func (c *Client) do(ctx context.Context, method string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.opts.BaseURL+relaysPath, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-Key", c.opts.APIKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, relaysPath, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, relaysPath, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}
