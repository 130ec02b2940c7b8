package nowplaying

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/mikey-austin/np_relay/internal/core"
	"github.com/mikey-austin/np_relay/internal/ports"
	"github.com/mikey-austin/np_relay/pkg/np"
)

type shoutcast2Stats struct {
	CurrentListeners int    `mapstructure:"currentlisteners"`
	UniqueListeners  *int   `mapstructure:"uniquelisteners"`
	StreamStatus     int    `mapstructure:"streamstatus"`
	SongTitle        string `mapstructure:"songtitle"`
	Bitrate          int    `mapstructure:"bitrate"`
	Content          string `mapstructure:"content"`
	ServerTitle      string `mapstructure:"servertitle"`
	ServerGenre      string `mapstructure:"servergenre"`
}

type shoutcast2Listener struct {
	Hostname  string `json:"hostname"`
	UserAgent string `json:"useragent"`
}

// streamID maps the mount point to a SHOUTcast stream id; mounts like "/2"
// select stream 2 and anything else selects stream 1.
func streamID(mount string) string {
	mount = strings.Trim(strings.TrimSpace(mount), "/")
	if id, err := strconv.Atoi(mount); err == nil && id > 0 {
		return strconv.Itoa(id)
	}
	return "1"
}

func shoutcast2Probe(h *Handle) ports.Request {
	return h.request("/stats", url.Values{"sid": {"1"}, "json": {"1"}}, false)
}

func shoutcast2Recognize(resp ports.Response) bool {
	if !isSuccess(resp.StatusCode) {
		return false
	}
	_, err := parseShoutcast2Stats(resp.Body)
	return err == nil
}

func shoutcast2Fetch(ctx context.Context, h *Handle) (np.NowPlayingResult, error) {
	sid := streamID(h.endpoint.MountPoint)
	resp, err := h.primary(ctx, h.request("/stats", url.Values{"sid": {sid}, "json": {"1"}}, false))
	if err != nil {
		return np.Offline(nil), err
	}
	stats, err := parseShoutcast2Stats(resp.Body)
	if err != nil {
		return np.Offline(resp.Body), h.parseFailure(resp, err)
	}
	if stats.StreamStatus == 0 {
		return np.Offline(resp.Body), nil
	}

	result := shoutcast2Result(stats, stats.UniqueListeners, resp.Body)
	if !h.endpoint.HasAdmin() {
		return result, nil
	}

	detail, err := h.detail(ctx, h.request("/admin.cgi", url.Values{
		"sid":  {sid},
		"mode": {"viewjson"},
		"page": {"3"},
	}, true))
	if err != nil {
		return result, err
	}
	count, err := parseShoutcast2Listeners(detail.Body)
	if err != nil {
		return result, h.fail(core.KindPartialData, err)
	}
	return shoutcast2Result(stats, intPtr(count), resp.Body), nil
}

func shoutcast2Result(stats shoutcast2Stats, unique *int, raw []byte) np.NowPlayingResult {
	artist, title := np.SplitTrackText(stats.SongTitle)
	var bitrate *int
	if stats.Bitrate > 0 {
		bitrate = intPtr(stats.Bitrate)
	}
	return np.Online(
		np.Track{Artist: artist, Title: title},
		np.Listeners{Current: stats.CurrentListeners, Unique: unique},
		np.StreamMeta{
			BitrateKbps: bitrate,
			Format:      stats.Content,
			ServerName:  stats.ServerTitle,
			Genre:       stats.ServerGenre,
		},
		raw,
	)
}

func parseShoutcast2Stats(body []byte) (shoutcast2Stats, error) {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return shoutcast2Stats{}, errors.Wrap(err, "decode shoutcast stats")
	}
	if _, ok := fields["streamstatus"]; !ok {
		return shoutcast2Stats{}, errors.New("shoutcast stats missing streamstatus")
	}
	var stats shoutcast2Stats
	if err := decodeWeak(fields, &stats); err != nil {
		return shoutcast2Stats{}, err
	}
	return stats, nil
}

func parseShoutcast2Listeners(body []byte) (int, error) {
	var listeners []shoutcast2Listener
	if err := json.Unmarshal(body, &listeners); err != nil {
		return 0, errors.Wrap(err, "decode shoutcast listeners")
	}
	keys := make([]listenerKey, 0, len(listeners))
	for _, l := range listeners {
		keys = append(keys, listenerKey{addr: l.Hostname, agent: l.UserAgent})
	}
	return countUnique(keys), nil
}
