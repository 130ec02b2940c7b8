package np

import (
	"errors"
	"testing"
	"time"
)

func TestValidateEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint StationEndpoint
		ok       bool
	}{
		{"valid", StationEndpoint{BaseURL: "http://stream.example:8000"}, true},
		{"https with path", StationEndpoint{BaseURL: "https://stream.example/status-json.xsl", TimeoutMS: 500}, true},
		{"empty", StationEndpoint{}, false},
		{"no scheme", StationEndpoint{BaseURL: "stream.example"}, false},
		{"ftp", StationEndpoint{BaseURL: "ftp://stream.example"}, false},
		{"negative timeout", StationEndpoint{BaseURL: "http://stream.example", TimeoutMS: -1}, false},
		{"bad hint", StationEndpoint{BaseURL: "http://stream.example", ProtocolHint: ProtocolKind(42)}, false},
	}

	for _, test := range tests {
		err := test.endpoint.Validate()
		if test.ok && err != nil {
			t.Fatalf("%s: unexpected error: %v", test.name, err)
		}
		if !test.ok {
			if err == nil {
				t.Fatalf("%s: expected error", test.name)
			}
			if !errors.Is(err, ErrInvalidEndpoint) {
				t.Fatalf("%s: expected ErrInvalidEndpoint, got %v", test.name, err)
			}
		}
	}
}

func TestEndpointTimeout(t *testing.T) {
	if got := (StationEndpoint{}).Timeout(); got != 3*time.Second {
		t.Fatalf("expected default 3s, got %v", got)
	}
	if got := (StationEndpoint{TimeoutMS: 250}).Timeout(); got != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %v", got)
	}
}

func TestParseProtocolKind(t *testing.T) {
	tests := []struct {
		in   string
		want ProtocolKind
	}{
		{"", Unknown},
		{"auto", Unknown},
		{"Icecast", Icecast},
		{"shoutcast2", Shoutcast2},
		{"shoutcast", Shoutcast2},
		{"shoutcast1", Shoutcast1},
		{"azuracast", AzuraCast},
	}
	for _, test := range tests {
		got, err := ParseProtocolKind(test.in)
		if err != nil {
			t.Fatalf("parse %q: %v", test.in, err)
		}
		if got != test.want {
			t.Fatalf("parse %q: expected %s got %s", test.in, test.want, got)
		}
	}
	if _, err := ParseProtocolKind("rtmp"); err == nil {
		t.Fatalf("expected error for rtmp")
	}
}

func TestProtocolKindTextRoundTrip(t *testing.T) {
	for _, kind := range append([]ProtocolKind{Unknown}, ProbeOrder...) {
		text, err := kind.MarshalText()
		if err != nil {
			t.Fatalf("marshal %s: %v", kind, err)
		}
		var back ProtocolKind
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("unmarshal %s: %v", text, err)
		}
		if back != kind {
			t.Fatalf("expected %s got %s", kind, back)
		}
	}
}

func TestTopicNowPlaying(t *testing.T) {
	if got := TopicNowPlaying(BaseTopic, "radio"); got != "np/v1/station/radio/nowplaying" {
		t.Fatalf("unexpected topic %s", got)
	}
}
