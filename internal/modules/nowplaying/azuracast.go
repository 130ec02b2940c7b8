package nowplaying

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/mikey-austin/np_relay/internal/ports"
	"github.com/mikey-austin/np_relay/pkg/np"
)

type azuracastNowPlaying struct {
	Station struct {
		Name      string `json:"name"`
		Shortcode string `json:"shortcode"`
		Mounts    []struct {
			IsDefault bool   `json:"is_default"`
			Bitrate   int    `json:"bitrate"`
			Format    string `json:"format"`
		} `json:"mounts"`
	} `json:"station"`
	Listeners struct {
		Total   int  `json:"total"`
		Current int  `json:"current"`
		Unique  *int `json:"unique"`
	} `json:"listeners"`
	NowPlaying *struct {
		Elapsed  int `json:"elapsed"`
		Duration int `json:"duration"`
		Song     struct {
			Text   string `json:"text"`
			Artist string `json:"artist"`
			Title  string `json:"title"`
		} `json:"song"`
	} `json:"now_playing"`
	IsOnline bool `json:"is_online"`
}

func azuracastPath(mount string) string {
	mount = strings.Trim(strings.TrimSpace(mount), "/")
	if mount == "" {
		return "/api/nowplaying"
	}
	return "/api/nowplaying/" + url.PathEscape(mount)
}

func azuracastProbe(h *Handle) ports.Request {
	return h.request(azuracastPath(h.endpoint.MountPoint), nil, false)
}

func azuracastRecognize(resp ports.Response) bool {
	if !isSuccess(resp.StatusCode) {
		return false
	}
	_, err := parseAzuracast(resp.Body)
	return err == nil
}

func azuracastFetch(ctx context.Context, h *Handle) (np.NowPlayingResult, error) {
	resp, err := h.primary(ctx, h.request(azuracastPath(h.endpoint.MountPoint), nil, false))
	if err != nil {
		return np.Offline(nil), err
	}
	doc, err := parseAzuracast(resp.Body)
	if err != nil {
		return np.Offline(resp.Body), h.parseFailure(resp, err)
	}
	if !doc.IsOnline {
		return np.Offline(resp.Body), nil
	}

	var meta np.StreamMeta
	meta.ServerName = doc.Station.Name
	for i, mount := range doc.Station.Mounts {
		if mount.IsDefault || i == 0 {
			if mount.Bitrate > 0 {
				meta.BitrateKbps = intPtr(mount.Bitrate)
			}
			meta.Format = mount.Format
		}
	}

	current := doc.Listeners.Current
	if current == 0 {
		current = doc.Listeners.Total
	}
	var track np.Track
	if doc.NowPlaying != nil {
		song := doc.NowPlaying.Song
		track = np.Track{
			Artist:          song.Artist,
			Title:           song.Title,
			Text:            song.Text,
			ElapsedSeconds:  doc.NowPlaying.Elapsed,
			DurationSeconds: doc.NowPlaying.Duration,
		}
		if track.Artist == "" && track.Title == "" {
			track.Artist, track.Title = np.SplitTrackText(song.Text)
		}
	}
	return np.Online(
		track,
		np.Listeners{Current: current, Unique: doc.Listeners.Unique},
		meta,
		resp.Body,
	), nil
}

// parseAzuracast accepts the single-station object, or the station list
// returned when no mount is configured, taking its first entry.
func parseAzuracast(body []byte) (azuracastNowPlaying, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return azuracastNowPlaying{}, errors.New("empty azuracast response")
	}
	var doc azuracastNowPlaying
	if trimmed[0] == '[' {
		var list []azuracastNowPlaying
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return azuracastNowPlaying{}, errors.Wrap(err, "decode azuracast list")
		}
		if len(list) == 0 {
			return azuracastNowPlaying{}, errors.New("azuracast returned no stations")
		}
		doc = list[0]
	} else if err := json.Unmarshal(trimmed, &doc); err != nil {
		return azuracastNowPlaying{}, errors.Wrap(err, "decode azuracast now playing")
	}
	if doc.NowPlaying == nil && doc.Station.Shortcode == "" {
		return azuracastNowPlaying{}, errors.New("azuracast response missing now_playing")
	}
	return doc, nil
}
