package np

import (
	"fmt"
	"strings"
	"time"
)

// UnknownDuration is the only value used for a track of unknown length.
const UnknownDuration = -1

// Track describes the current song.
type Track struct {
	Title           string `json:"title"`
	Artist          string `json:"artist"`
	Text            string `json:"text"`
	ElapsedSeconds  int    `json:"elapsed"`
	DurationSeconds int    `json:"duration"`
}

// Listeners holds listener counts.
type Listeners struct {
	Current int  `json:"current"`
	Unique  *int `json:"unique,omitempty"`
}

// StreamMeta holds stream properties reported by the server.
type StreamMeta struct {
	BitrateKbps *int   `json:"bitrate,omitempty"`
	Format      string `json:"format,omitempty"`
	ServerName  string `json:"serverName,omitempty"`
	Genre       string `json:"genre,omitempty"`
}

// NowPlayingResult is an immutable snapshot of a station's state.
type NowPlayingResult struct {
	IsOnline     bool       `json:"isOnline"`
	CurrentTrack Track      `json:"currentTrack"`
	Listeners    Listeners  `json:"listeners"`
	StreamMeta   StreamMeta `json:"streamMeta"`
	Raw          []byte     `json:"-"`
}

// Offline returns a result with no track or listener data.
func Offline(raw []byte) NowPlayingResult {
	return NowPlayingResult{Raw: raw}
}

// Online returns a normalized online result.
func Online(track Track, listeners Listeners, meta StreamMeta, raw []byte) NowPlayingResult {
	if track.ElapsedSeconds < 0 {
		track.ElapsedSeconds = 0
	}
	if track.DurationSeconds <= 0 {
		track.DurationSeconds = UnknownDuration
	}
	if track.Text == "" {
		switch {
		case track.Artist != "" && track.Title != "":
			track.Text = track.Artist + " - " + track.Title
		default:
			track.Text = track.Title
		}
	}
	if listeners.Current < 0 {
		listeners.Current = 0
	}
	if listeners.Unique != nil && *listeners.Unique < 0 {
		listeners.Unique = nil
	}
	if meta.BitrateKbps != nil && *meta.BitrateKbps <= 0 {
		meta.BitrateKbps = nil
	}
	return NowPlayingResult{
		IsOnline:     true,
		CurrentTrack: track,
		Listeners:    listeners,
		StreamMeta:   meta,
		Raw:          raw,
	}
}

var trackSeparators = []string{" - ", " – ", " — "}

// SplitTrackText splits "Artist - Title" text. Without a separator the whole
// text is the title.
func SplitTrackText(text string) (artist string, title string) {
	text = strings.TrimSpace(text)
	best := -1
	sepLen := 0
	for _, sep := range trackSeparators {
		if i := strings.Index(text, sep); i >= 0 && (best < 0 || i < best) {
			best = i
			sepLen = len(sep)
		}
	}
	if best < 0 {
		return "", text
	}
	return strings.TrimSpace(text[:best]), strings.TrimSpace(text[best+sepLen:])
}

// PollState is a step of a single poll.
type PollState int

const (
	StateIdle PollState = iota
	StateBuilding
	StateQuerying
	StateParsed
	StateFailed
)

func (s PollState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuilding:
		return "building"
	case StateQuerying:
		return "querying"
	case StateParsed:
		return "parsed"
	case StateFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s PollState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *PollState) UnmarshalText(text []byte) error {
	for state := StateIdle; state <= StateFailed; state++ {
		if state.String() == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown poll state %q", text)
}

// PollOutcome is what one poll hands back to its scheduler.
type PollOutcome struct {
	Station  StationEndpoint  `json:"station"`
	Protocol ProtocolKind     `json:"protocol"`
	State    PollState        `json:"state"`
	Result   NowPlayingResult `json:"result"`
	Err      error            `json:"-"`
	Duration time.Duration    `json:"durationNs"`
	PolledAt time.Time        `json:"polledAt"`
}

// ErrorText returns the classified failure message, if any.
func (o PollOutcome) ErrorText() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
