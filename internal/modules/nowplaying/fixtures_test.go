package nowplaying

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/mikey-austin/np_relay/internal/ports"
)

const icecastJSONSingle = `{"icestats":{"admin":"icemaster@localhost","host":"stream.example","server_id":"Icecast 2.4.4",
"source":{"audio_info":"bitrate=128","bitrate":128,"genre":"Various","listener_peak":4,"listeners":1,
"listenurl":"http://stream.example:8000/radio","server_name":"Example FM","server_type":"audio/mpeg",
"title":"Artist – Title"}}}`

const icecastJSONMulti = `{"icestats":{"source":[
{"listeners":"2","listenurl":"http://stream.example:8000/low","title":"Low - Song","audio_bitrate":64000,"server_type":"audio/aacp"},
{"listeners":5,"listenurl":"http://stream.example:8000/high","artist":"High","title":"Tune","ice-bitrate":"320","server_type":"audio/mpeg"}]}}`

const icecastJSONEmpty = `{"icestats":{"admin":"icemaster@localhost","server_id":"Icecast 2.4.4"}}`

const icecastAdminStats = `<?xml version="1.0"?>
<icestats><admin>icemaster@localhost</admin><sources>1</sources>
<source mount="/radio"><artist>Artist</artist><title>Title</title><listeners>3</listeners>
<audio_bitrate>128000</audio_bitrate><server_type>audio/mpeg</server_type>
<server_name>Example FM</server_name><genre>Jazz</genre></source></icestats>`

const icecastListClients = `<?xml version="1.0"?>
<icestats><source mount="/radio"><Listeners>3</Listeners>
<listener id="1"><IP>10.0.0.1</IP><UserAgent>VLC</UserAgent><Connected>10</Connected></listener>
<listener id="2"><IP>10.0.0.1</IP><UserAgent>VLC</UserAgent><Connected>12</Connected></listener>
<listener id="3"><IP>10.0.0.2</IP><UserAgent>Winamp</UserAgent><Connected>40</Connected></listener>
</source></icestats>`

const shoutcast2StatsJSON = `{"currentlisteners":4,"peaklisteners":9,"maxlisteners":100,"uniquelisteners":3,
"averagetime":120,"servergenre":"Rock","servertitle":"Rock Radio","songtitle":"Band - Anthem",
"streamhits":12,"streamstatus":1,"backupstatus":0,"streamlisted":1,"bitrate":"192","content":"audio/mpeg","version":"2.6.0"}`

const shoutcast2Idle = `{"currentlisteners":0,"uniquelisteners":0,"servertitle":"Rock Radio","songtitle":"",
"streamstatus":1,"bitrate":"128","content":"audio/mpeg"}`

const shoutcast2Offline = `{"currentlisteners":0,"streamstatus":0,"songtitle":"","bitrate":""}`

const shoutcast2Listeners = `[{"hostname":"10.0.0.1","useragent":"VLC","connecttime":30},
{"hostname":"10.0.0.2","useragent":"VLC","connecttime":31},
{"hostname":"10.0.0.1","useragent":"VLC","connecttime":32}]`

const sevenHTML = `<html><meta http-equiv="Pragma" content="no-cache"></head><body>7,1,12,250,6,128,Artist - Title, Part 2</body></html>`

const sevenHTMLOffline = `<html><body>0,0,12,250,0,128,</body></html>`

const shoutcast1XML = `<?xml version="1.0" standalone="yes" ?>
<SHOUTCASTSERVER><CURRENTLISTENERS>2</CURRENTLISTENERS><PEAKLISTENERS>5</PEAKLISTENERS>
<MAXLISTENERS>32</MAXLISTENERS><SERVERGENRE>Talk</SERVERGENRE><SERVERTITLE>Talk Radio</SERVERTITLE>
<SONGTITLE>Host - Morning Show</SONGTITLE><STREAMSTATUS>1</STREAMSTATUS><BITRATE>96</BITRATE>
<CONTENT>audio/mpeg</CONTENT><LISTENERS>
<LISTENER><HOSTNAME>10.0.0.7</HOSTNAME><USERAGENT>Winamp</USERAGENT></LISTENER>
<LISTENER><HOSTNAME>10.0.0.8</HOSTNAME><USERAGENT>Winamp</USERAGENT></LISTENER>
</LISTENERS></SHOUTCASTSERVER>`

const azuracastJSON = `{"station":{"id":1,"name":"Azura FM","shortcode":"azura_fm",
"mounts":[{"name":"low","is_default":false,"bitrate":64,"format":"aac"},{"name":"high","is_default":true,"bitrate":192,"format":"mp3"}]},
"listeners":{"total":8,"unique":6,"current":8},
"now_playing":{"elapsed":65,"remaining":115,"duration":180,"song":{"text":"Singer - Ballad","artist":"Singer","title":"Ballad"}},
"is_online":true}`

const azuracastLive = `[{"station":{"name":"Live FM","shortcode":"live_fm","mounts":[]},
"listeners":{"total":1,"current":1},
"now_playing":{"elapsed":-5,"duration":0,"song":{"text":"DJ - Live Set","artist":"","title":""}},
"is_online":true}]`

const azuracastOffline = `{"station":{"name":"Azura FM","shortcode":"azura_fm"},"listeners":{"current":0},
"now_playing":null,"is_online":false}`

// stubExecutor answers requests by URL path. Unknown paths get 404.
type stubExecutor struct {
	mu        sync.Mutex
	responses map[string]ports.Response
	errs      map[string]error
	calls     []ports.Request
}

func newStub() *stubExecutor {
	return &stubExecutor{responses: map[string]ports.Response{}, errs: map[string]error{}}
}

func (s *stubExecutor) on(path string, status int, body string) *stubExecutor {
	s.responses[path] = ports.Response{StatusCode: status, Header: http.Header{}, Body: []byte(body)}
	return s
}

func (s *stubExecutor) fail(path string, err error) *stubExecutor {
	s.errs[path] = err
	return s
}

func (s *stubExecutor) Execute(ctx context.Context, req ports.Request) (ports.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	u, err := url.Parse(req.URL)
	if err != nil {
		return ports.Response{}, err
	}
	if err := s.errs[u.Path]; err != nil {
		return ports.Response{}, err
	}
	if resp, ok := s.responses[u.Path]; ok {
		return resp, nil
	}
	return ports.Response{StatusCode: http.StatusNotFound, Header: http.Header{}}, nil
}

func (s *stubExecutor) paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.calls))
	for _, call := range s.calls {
		u, _ := url.Parse(call.URL)
		out = append(out, u.Path)
	}
	return out
}
