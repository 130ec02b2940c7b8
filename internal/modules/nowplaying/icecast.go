package nowplaying

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/mikey-austin/np_relay/internal/core"
	"github.com/mikey-austin/np_relay/internal/ports"
	"github.com/mikey-austin/np_relay/pkg/np"
)

type icecastSource struct {
	Mount        string `mapstructure:"mount"`
	ListenURL    string `mapstructure:"listenurl"`
	Listeners    int    `mapstructure:"listeners"`
	ListenerPeak int    `mapstructure:"listener_peak"`
	Title        string `mapstructure:"title"`
	Artist       string `mapstructure:"artist"`
	Bitrate      int    `mapstructure:"bitrate"`
	AudioBitrate int    `mapstructure:"audio_bitrate"`
	IceBitrate   int    `mapstructure:"ice-bitrate"`
	ServerType   string `mapstructure:"server_type"`
	ServerName   string `mapstructure:"server_name"`
	Genre        string `mapstructure:"genre"`
}

func (s icecastSource) mountPath() string {
	if s.Mount != "" {
		return normalizeMount(s.Mount)
	}
	if u, err := url.Parse(s.ListenURL); err == nil && u.Path != "" {
		return normalizeMount(u.Path)
	}
	return ""
}

func (s icecastSource) bitrateKbps() *int {
	switch {
	case s.Bitrate > 0:
		return intPtr(s.Bitrate)
	case s.AudioBitrate > 0:
		return intPtr(s.AudioBitrate / 1000)
	case s.IceBitrate > 0:
		return intPtr(s.IceBitrate)
	}
	return nil
}

func icecastProbe(h *Handle) ports.Request {
	return h.request("/status-json.xsl", nil, false)
}

func icecastRecognize(resp ports.Response) bool {
	if !isSuccess(resp.StatusCode) {
		return false
	}
	_, err := parseIcecastJSON(resp.Body)
	return err == nil
}

func icecastFetch(ctx context.Context, h *Handle) (np.NowPlayingResult, error) {
	admin := h.endpoint.HasAdmin()
	var req ports.Request
	if admin {
		req = h.request("/admin/stats", nil, true)
	} else {
		req = h.request("/status-json.xsl", nil, false)
	}
	resp, err := h.primary(ctx, req)
	if err != nil {
		return np.Offline(nil), err
	}

	var sources []icecastSource
	if admin {
		sources, err = parseIcecastXML(resp.Body)
	} else {
		sources, err = parseIcecastJSON(resp.Body)
	}
	if err != nil {
		return np.Offline(resp.Body), h.parseFailure(resp, err)
	}

	wanted := normalizeMount(h.endpoint.MountPoint)
	source, found := selectIcecastSource(sources, wanted)
	if !found {
		if wanted != "" {
			// The mount has no connected source.
			return np.Offline(resp.Body), nil
		}
		return np.Online(np.Track{}, np.Listeners{}, np.StreamMeta{}, resp.Body), nil
	}
	result := icecastResult(source, nil, resp.Body)

	mount := source.mountPath()
	if !admin || mount == "" {
		return result, nil
	}
	detail, err := h.detail(ctx, h.request("/admin/listclients", url.Values{"mount": {mount}}, true))
	if err != nil {
		return result, err
	}
	unique, err := parseIcecastListeners(detail.Body)
	if err != nil {
		return result, h.fail(core.KindPartialData, err)
	}
	return icecastResult(source, intPtr(unique), resp.Body), nil
}

func icecastResult(source icecastSource, unique *int, raw []byte) np.NowPlayingResult {
	artist, title := source.Artist, source.Title
	if artist == "" {
		artist, title = np.SplitTrackText(title)
	}
	return np.Online(
		np.Track{Artist: strings.TrimSpace(artist), Title: strings.TrimSpace(title)},
		np.Listeners{Current: source.Listeners, Unique: unique},
		np.StreamMeta{
			BitrateKbps: source.bitrateKbps(),
			Format:      source.ServerType,
			ServerName:  source.ServerName,
			Genre:       source.Genre,
		},
		raw,
	)
}

func selectIcecastSource(sources []icecastSource, wanted string) (icecastSource, bool) {
	if len(sources) == 0 {
		return icecastSource{}, false
	}
	if wanted == "" {
		return sources[0], true
	}
	for _, source := range sources {
		if source.mountPath() == wanted {
			return source, true
		}
	}
	return icecastSource{}, false
}

// parseIcecastJSON reads status-json.xsl. "source" is an object for a single
// mount, an array for several, and absent when nothing is connected.
func parseIcecastJSON(body []byte) ([]icecastSource, error) {
	var doc struct {
		Icestats *struct {
			Source json.RawMessage `json:"source"`
		} `json:"icestats"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, errors.Wrap(err, "decode icecast status")
	}
	if doc.Icestats == nil {
		return nil, errors.New("icecast status missing icestats")
	}
	raw := bytes.TrimSpace(doc.Icestats.Source)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var items []map[string]any
	switch raw[0] {
	case '{':
		var item map[string]any
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, errors.Wrap(err, "decode icecast source")
		}
		items = append(items, item)
	case '[':
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, errors.Wrap(err, "decode icecast sources")
		}
	default:
		return nil, errors.Errorf("unexpected icecast source %q", raw[:1])
	}

	sources := make([]icecastSource, 0, len(items))
	for _, item := range items {
		var source icecastSource
		if err := decodeWeak(item, &source); err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}
	return sources, nil
}

// parseIcecastXML reads /admin/stats.
func parseIcecastXML(body []byte) ([]icecastSource, error) {
	root, err := decodeXML(body)
	if err != nil {
		return nil, err
	}
	if root.name() != "icestats" {
		return nil, errors.Errorf("unexpected icecast root element %q", root.XMLName.Local)
	}
	var sources []icecastSource
	for _, node := range root.children("source") {
		var source icecastSource
		if err := decodeWeak(node.fields(), &source); err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}
	return sources, nil
}

// parseIcecastListeners counts distinct (IP, user agent) pairs in
// /admin/listclients.
func parseIcecastListeners(body []byte) (int, error) {
	root, err := decodeXML(body)
	if err != nil {
		return 0, err
	}
	if root.name() != "icestats" {
		return 0, errors.Errorf("unexpected listclients root element %q", root.XMLName.Local)
	}
	var keys []listenerKey
	for _, source := range root.children("source") {
		for _, listener := range source.children("listener") {
			fields := listener.fields()
			keys = append(keys, listenerKey{addr: str(fields["ip"]), agent: str(fields["useragent"])})
		}
	}
	return countUnique(keys), nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
