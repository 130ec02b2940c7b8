package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/pterm/pterm"

	"github.com/mikey-austin/np_relay/internal/core"
	"github.com/mikey-austin/np_relay/pkg/np"
)

func testOutcomes() []np.PollOutcome {
	bitrate := 128
	unique := 3
	return []np.PollOutcome{
		{
			Station:  np.StationEndpoint{ID: "jazz", BaseURL: "http://jazz.example:8000"},
			Protocol: np.Icecast,
			State:    np.StateParsed,
			Result: np.Online(
				np.Track{Artist: "Miles Davis", Title: "So What", ElapsedSeconds: 65, DurationSeconds: 545},
				np.Listeners{Current: 7, Unique: &unique},
				np.StreamMeta{BitrateKbps: &bitrate},
				nil,
			),
		},
		{
			Station:  np.StationEndpoint{ID: "rock", BaseURL: "http://rock.example:8000"},
			Protocol: np.Unknown,
			State:    np.StateFailed,
			Result:   np.Offline(nil),
			Err:      errors.New("unreachable: connection refused"),
		},
	}
}

func TestHumanNowPlaying(t *testing.T) {
	pterm.DisableStyling()
	defer pterm.EnableStyling()

	var buf bytes.Buffer
	if err := (HumanPrinter{Out: &buf}).Print(core.NowPlayingResult{Outcomes: testOutcomes()}); err != nil {
		t.Fatalf("print: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"STATION", "Miles Davis - So What [1:05 / 9:05]", "7 (3 unique)", "128 kbps", "offline", "connection refused"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestHumanDetectionSkipsEmptyFields(t *testing.T) {
	var buf bytes.Buffer
	outcome := testOutcomes()[1]
	if err := (HumanPrinter{Out: &buf}).Print(core.ProbeResult{Outcome: outcome}); err != nil {
		t.Fatalf("print: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "state:") || !strings.Contains(out, "failed") || !strings.Contains(out, "error:") {
		t.Fatalf("unexpected probe output:\n%s", out)
	}
	if strings.Contains(out, "track:") || strings.Contains(out, "bitrate:") {
		t.Fatalf("expected empty fields skipped:\n%s", out)
	}
}

func TestHumanStationsAndCheck(t *testing.T) {
	var buf bytes.Buffer
	printer := HumanPrinter{Out: &buf}
	if err := printer.Print(core.StationsResult{}); err != nil || strings.TrimSpace(buf.String()) != "(none)" {
		t.Fatalf("expected (none), got %q %v", buf.String(), err)
	}
	buf.Reset()
	if err := printer.Print(core.CheckResult{Running: true}); err != nil || strings.TrimSpace(buf.String()) != "running" {
		t.Fatalf("expected running, got %q %v", buf.String(), err)
	}
}

func TestJSONIncludesErrorText(t *testing.T) {
	var buf bytes.Buffer
	if err := (JSONPrinter{Out: &buf}).Print(core.NowPlayingResult{Outcomes: testOutcomes()}); err != nil {
		t.Fatalf("print: %v", err)
	}
	var decoded struct {
		Outcomes []struct {
			State  string `json:"state"`
			Error  string `json:"error"`
			Result struct {
				IsOnline     bool `json:"isOnline"`
				CurrentTrack struct {
					Duration int `json:"duration"`
				} `json:"currentTrack"`
			} `json:"result"`
		} `json:"outcomes"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v\n%s", err, buf.String())
	}
	if len(decoded.Outcomes) != 2 {
		t.Fatalf("expected 2 outcomes got %d", len(decoded.Outcomes))
	}
	if !decoded.Outcomes[0].Result.IsOnline || decoded.Outcomes[0].Result.CurrentTrack.Duration != 545 {
		t.Fatalf("unexpected first outcome %+v", decoded.Outcomes[0])
	}
	if decoded.Outcomes[1].State != "failed" || decoded.Outcomes[1].Error == "" {
		t.Fatalf("unexpected second outcome %+v", decoded.Outcomes[1])
	}
}
