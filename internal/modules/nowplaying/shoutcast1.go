package nowplaying

import (
	"bytes"
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html"

	"github.com/mikey-austin/np_relay/internal/ports"
	"github.com/mikey-austin/np_relay/pkg/np"
)

// shoutcast1Stats is the common shape of the 7.html line and the viewxml
// document.
type shoutcast1Stats struct {
	CurrentListeners int    `mapstructure:"currentlisteners"`
	StreamStatus     int    `mapstructure:"streamstatus"`
	Bitrate          int    `mapstructure:"bitrate"`
	SongTitle        string `mapstructure:"songtitle"`
	Content          string `mapstructure:"content"`
	ServerTitle      string `mapstructure:"servertitle"`
	ServerGenre      string `mapstructure:"servergenre"`
	Unique           *int   `mapstructure:"uniquelisteners"`
}

func shoutcast1Probe(h *Handle) ports.Request {
	return h.request("/7.html", nil, false)
}

func shoutcast1Recognize(resp ports.Response) bool {
	if !isSuccess(resp.StatusCode) {
		return false
	}
	_, err := parseSevenHTML(resp.Body)
	return err == nil
}

func shoutcast1Fetch(ctx context.Context, h *Handle) (np.NowPlayingResult, error) {
	admin := h.endpoint.HasAdmin()
	var req ports.Request
	if admin {
		req = h.request("/admin.cgi", url.Values{"mode": {"viewxml"}, "page": {"0"}}, true)
	} else {
		req = h.request("/7.html", nil, false)
	}
	resp, err := h.primary(ctx, req)
	if err != nil {
		return np.Offline(nil), err
	}

	var stats shoutcast1Stats
	if admin {
		stats, err = parseShoutcast1XML(resp.Body)
	} else {
		stats, err = parseSevenHTML(resp.Body)
	}
	if err != nil {
		return np.Offline(resp.Body), h.parseFailure(resp, err)
	}
	if stats.StreamStatus == 0 {
		return np.Offline(resp.Body), nil
	}

	artist, title := np.SplitTrackText(stats.SongTitle)
	var bitrate *int
	if stats.Bitrate > 0 {
		bitrate = intPtr(stats.Bitrate)
	}
	return np.Online(
		np.Track{Artist: artist, Title: title},
		np.Listeners{Current: stats.CurrentListeners, Unique: stats.Unique},
		np.StreamMeta{
			BitrateKbps: bitrate,
			Format:      stats.Content,
			ServerName:  stats.ServerTitle,
			Genre:       stats.ServerGenre,
		},
		resp.Body,
	), nil
}

// parseSevenHTML reads the legacy 7.html page whose body is
// "current,status,peak,max,unique,bitrate,songtitle". The title may itself
// contain commas.
func parseSevenHTML(body []byte) (shoutcast1Stats, error) {
	doc, err := html.Parse(bytes.NewReader(toUTF8(body)))
	if err != nil {
		return shoutcast1Stats{}, errors.Wrap(err, "parse 7.html")
	}
	text := strings.TrimSpace(bodyText(doc))
	parts := strings.SplitN(text, ",", 7)
	if len(parts) < 7 {
		return shoutcast1Stats{}, errors.Errorf("7.html has %d fields, want 7", len(parts))
	}
	numbers := make([]int, 6)
	for i := 0; i < 6; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return shoutcast1Stats{}, errors.Wrapf(err, "7.html field %d", i)
		}
		numbers[i] = n
	}
	return shoutcast1Stats{
		CurrentListeners: numbers[0],
		StreamStatus:     numbers[1],
		Unique:           intPtr(numbers[4]),
		Bitrate:          numbers[5],
		SongTitle:        strings.TrimSpace(parts[6]),
	}, nil
}

// parseShoutcast1XML reads admin.cgi?mode=viewxml. The listener list, when
// present, gives the unique count.
func parseShoutcast1XML(body []byte) (shoutcast1Stats, error) {
	root, err := decodeXML(body)
	if err != nil {
		return shoutcast1Stats{}, err
	}
	if root.name() != "shoutcastserver" {
		return shoutcast1Stats{}, errors.Errorf("unexpected shoutcast root element %q", root.XMLName.Local)
	}
	fields := root.fields()
	if _, ok := fields["streamstatus"]; !ok {
		return shoutcast1Stats{}, errors.New("shoutcast status missing STREAMSTATUS")
	}
	var stats shoutcast1Stats
	if err := decodeWeak(fields, &stats); err != nil {
		return shoutcast1Stats{}, err
	}
	if list, ok := root.child("listeners"); ok {
		var keys []listenerKey
		for _, listener := range list.children("listener") {
			lf := listener.fields()
			keys = append(keys, listenerKey{addr: str(lf["hostname"]), agent: str(lf["useragent"])})
		}
		stats.Unique = intPtr(countUnique(keys))
	}
	return stats, nil
}

func bodyText(doc *html.Node) string {
	var body *html.Node
	var find func(n *html.Node)
	find = func(n *html.Node) {
		if body != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "body" {
			body = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)
	if body == nil {
		return ""
	}
	var sb strings.Builder
	var collect func(n *html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(body)
	return sb.String()
}
