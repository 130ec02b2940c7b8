package nowplaying

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/mikey-austin/np_relay/internal/core"
	"github.com/mikey-austin/np_relay/internal/ports"
	"github.com/mikey-austin/np_relay/pkg/np"
)

// Adapter fetches the current state of one station.
type Adapter interface {
	Kind() np.ProtocolKind
	Fetch(ctx context.Context) (np.NowPlayingResult, error)
}

// behavior is the per-protocol entry of the dispatch table.
type behavior struct {
	// probe builds the lightweight capability request used when the protocol
	// is unknown.
	probe func(h *Handle) ports.Request
	// recognize reports whether a probe response has this protocol's shape.
	recognize func(resp ports.Response) bool
	fetch     func(ctx context.Context, h *Handle) (np.NowPlayingResult, error)
}

// selectAdapter returns the behavior table for kind.
func selectAdapter(kind np.ProtocolKind) (behavior, bool) {
	switch kind {
	case np.Icecast:
		return behavior{probe: icecastProbe, recognize: icecastRecognize, fetch: icecastFetch}, true
	case np.Shoutcast2:
		return behavior{probe: shoutcast2Probe, recognize: shoutcast2Recognize, fetch: shoutcast2Fetch}, true
	case np.Shoutcast1:
		return behavior{probe: shoutcast1Probe, recognize: shoutcast1Recognize, fetch: shoutcast1Fetch}, true
	case np.AzuraCast:
		return behavior{probe: azuracastProbe, recognize: azuracastRecognize, fetch: azuracastFetch}, true
	default:
		return behavior{}, false
	}
}

// Handle is a protocol-bound query object. It belongs to a single poll. When
// it was selected by probing, the recognized probe response stands in for
// the first identical primary request.
type Handle struct {
	kind     np.ProtocolKind
	endpoint np.StationEndpoint
	root     string
	exec     ports.Executor
	log      *zap.Logger
	behavior behavior
	probed   *probedResponse
}

type probedResponse struct {
	url  string
	resp ports.Response
}

var _ Adapter = (*Handle)(nil)

func (h *Handle) Kind() np.ProtocolKind {
	return h.kind
}

func (h *Handle) Endpoint() np.StationEndpoint {
	return h.endpoint
}

// Fetch queries the server. The returned result is always well formed; a
// non-nil error is a *core.AdapterError.
func (h *Handle) Fetch(ctx context.Context) (np.NowPlayingResult, error) {
	return h.behavior.fetch(ctx, h)
}

func (h *Handle) url(path string, query url.Values) string {
	u := h.root + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (h *Handle) request(path string, query url.Values, admin bool) ports.Request {
	req := ports.Request{
		Method:  http.MethodGet,
		URL:     h.url(path, query),
		Header:  http.Header{},
		Timeout: h.endpoint.Timeout(),
	}
	if admin && h.endpoint.HasAdmin() {
		user := h.endpoint.AdminUser
		if user == "" {
			user = "admin"
		}
		token := base64.StdEncoding.EncodeToString([]byte(user + ":" + h.endpoint.AdminPassword))
		req.Header.Set("Authorization", "Basic "+token)
	}
	return req
}

// primary runs the call that decides whether the station is online. Transport
// failures become Unreachable.
func (h *Handle) primary(ctx context.Context, req ports.Request) (ports.Response, error) {
	if probed := h.probed; probed != nil {
		h.probed = nil
		// Probes are sent without credentials.
		if probed.url == req.URL && req.Header.Get("Authorization") == "" {
			h.log.Debug("reusing probe response", zap.String("uri", req.URL))
			return probed.resp, nil
		}
	}
	resp, err := h.exec.Execute(ctx, req)
	if errors.Is(err, ports.ErrBodyTooLarge) {
		return resp, h.fail(core.KindParseFailure, err)
	}
	if err != nil {
		return ports.Response{}, h.fail(core.KindUnreachable, err)
	}
	return resp, nil
}

// detail runs a secondary call. Any failure, including a non-2xx status, is
// PartialData.
func (h *Handle) detail(ctx context.Context, req ports.Request) (ports.Response, error) {
	resp, err := h.exec.Execute(ctx, req)
	if err != nil {
		h.log.Debug("detail request failed", zap.String("uri", req.URL), zap.Error(err))
		return ports.Response{}, h.fail(core.KindPartialData, err)
	}
	if !isSuccess(resp.StatusCode) {
		return resp, h.fail(core.KindPartialData, fmt.Errorf("detail %s returned status %d", req.URL, resp.StatusCode))
	}
	return resp, nil
}

// parseFailure reports a primary body that does not match the grammar,
// noting the status when it was not 2xx.
func (h *Handle) parseFailure(resp ports.Response, err error) error {
	if !isSuccess(resp.StatusCode) {
		err = fmt.Errorf("status %d: %w", resp.StatusCode, err)
	}
	return h.fail(core.KindParseFailure, err)
}

func (h *Handle) fail(kind core.ErrorKind, err error) *core.AdapterError {
	return &core.AdapterError{Kind: kind, Protocol: h.kind.String(), Err: err}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
