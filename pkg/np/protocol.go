package np

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// BaseTopic is the default MQTT topic prefix for published results.
const BaseTopic = "np/v1"

// DefaultTimeoutMS is the request timeout used when an endpoint sets none.
const DefaultTimeoutMS = 3000

// ProtocolKind names a streaming server wire protocol.
type ProtocolKind int

const (
	Unknown ProtocolKind = iota
	Icecast
	Shoutcast2
	Shoutcast1
	AzuraCast
)

// ProbeOrder is the fixed order in which unknown servers are probed.
var ProbeOrder = []ProtocolKind{Icecast, Shoutcast2, Shoutcast1, AzuraCast}

var kindNames = map[ProtocolKind]string{
	Unknown:    "unknown",
	Icecast:    "icecast",
	Shoutcast2: "shoutcast2",
	Shoutcast1: "shoutcast1",
	AzuraCast:  "azuracast",
}

func (k ProtocolKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("protocol(%d)", int(k))
}

// ParseProtocolKind parses a protocol name. Empty and "auto" map to Unknown.
func ParseProtocolKind(s string) (ProtocolKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "auto":
		return Unknown, nil
	case "shoutcast", "shoutcast_v2", "shoutcast-v2":
		return Shoutcast2, nil
	case "shoutcast_v1", "shoutcast-v1":
		return Shoutcast1, nil
	}
	for kind, name := range kindNames {
		if name == s {
			return kind, nil
		}
	}
	return Unknown, fmt.Errorf("unknown protocol %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k ProtocolKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ProtocolKind) UnmarshalText(text []byte) error {
	kind, err := ParseProtocolKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// StationEndpoint holds the connection details of one streaming server mount.
type StationEndpoint struct {
	ID            string       `json:"id" toml:"id" yaml:"id"`
	Name          string       `json:"name,omitempty" toml:"name" yaml:"name"`
	BaseURL       string       `json:"baseUrl" toml:"base_url" yaml:"base_url"`
	ProtocolHint  ProtocolKind `json:"protocol" toml:"protocol" yaml:"protocol"`
	AdminUser     string       `json:"-" toml:"admin_user" yaml:"admin_user"`
	AdminPassword string       `json:"-" toml:"admin_password" yaml:"admin_password"`
	MountPoint    string       `json:"mount,omitempty" toml:"mount" yaml:"mount"`
	TimeoutMS     int          `json:"timeoutMs,omitempty" toml:"timeout_ms" yaml:"timeout_ms"`
}

// Timeout returns the request timeout for the endpoint.
func (e StationEndpoint) Timeout() time.Duration {
	if e.TimeoutMS <= 0 {
		return DefaultTimeoutMS * time.Millisecond
	}
	return time.Duration(e.TimeoutMS) * time.Millisecond
}

// HasAdmin reports whether elevated status pages may be requested.
func (e StationEndpoint) HasAdmin() bool {
	return e.AdminPassword != ""
}

// Label returns the identifier used in logs and topics.
func (e StationEndpoint) Label() string {
	if e.ID != "" {
		return e.ID
	}
	return e.BaseURL
}

// ErrInvalidEndpoint marks endpoint validation failures.
var ErrInvalidEndpoint = errors.New("invalid endpoint")

// Validate checks that the endpoint is well formed.
func (e StationEndpoint) Validate() error {
	if strings.TrimSpace(e.BaseURL) == "" {
		return fmt.Errorf("%w: base url is required", ErrInvalidEndpoint)
	}
	u, err := url.Parse(e.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidEndpoint)
	}
	if e.TimeoutMS < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidEndpoint)
	}
	if _, ok := kindNames[e.ProtocolHint]; !ok {
		return fmt.Errorf("%w: %s", ErrInvalidEndpoint, e.ProtocolHint)
	}
	return nil
}

// TopicNowPlaying builds the retained now-playing topic for a station.
func TopicNowPlaying(topicBase, stationID string) string {
	return fmt.Sprintf("%s/station/%s/nowplaying", topicBase, stationID)
}
