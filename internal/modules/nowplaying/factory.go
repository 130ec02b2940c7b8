package nowplaying

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey-austin/np_relay/internal/core"
	"github.com/mikey-austin/np_relay/internal/ports"
	"github.com/mikey-austin/np_relay/pkg/np"
)

// Factory builds adapter handles around one shared executor.
type Factory struct {
	exec ports.Executor
	log  *zap.Logger
}

// NewFactory creates a factory. exec is shared by every handle it builds.
func NewFactory(exec ports.Executor, log *zap.Logger) *Factory {
	if log == nil {
		log = zap.NewNop()
	}
	return &Factory{exec: exec, log: log}
}

// Build returns a handle for endpoint. A known protocol hint is used
// directly; otherwise candidates are probed in np.ProbeOrder and the first
// recognized response wins. The probed kind lives only on the handle.
func (f *Factory) Build(ctx context.Context, endpoint np.StationEndpoint) (*Handle, error) {
	if err := endpoint.Validate(); err != nil {
		return nil, &core.FactoryError{Kind: core.KindInvalidEndpoint, Err: err}
	}
	root, err := serverRoot(endpoint.BaseURL)
	if err != nil {
		return nil, &core.FactoryError{Kind: core.KindInvalidEndpoint, Err: err}
	}

	if endpoint.ProtocolHint != np.Unknown {
		h, ok := f.handle(endpoint.ProtocolHint, endpoint, root)
		if !ok {
			return nil, &core.FactoryError{
				Kind: core.KindInvalidEndpoint,
				Err:  fmt.Errorf("no adapter for protocol %s", endpoint.ProtocolHint),
			}
		}
		return h, nil
	}
	return f.probe(ctx, endpoint, root)
}

// probe tries each candidate in order. The whole phase shares one request
// timeout so an unknown endpoint costs no more than a single slow call before
// the primary request.
func (f *Factory) probe(ctx context.Context, endpoint np.StationEndpoint, root string) (*Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, endpoint.Timeout())
	defer cancel()

	var firstMiss error
	for _, kind := range np.ProbeOrder {
		h, ok := f.handle(kind, endpoint, root)
		if !ok {
			continue
		}
		req := h.behavior.probe(h)
		resp, err := f.exec.Execute(ctx, req)
		if err != nil && !errors.Is(err, ports.ErrBodyTooLarge) {
			// Every candidate targets the same host, so a transport failure
			// ends probing.
			return nil, &core.FactoryError{Kind: core.KindNoProtocolMatched, Err: err}
		}
		if err == nil && h.behavior.recognize(resp) {
			f.log.Debug("protocol detected",
				zap.String("station", endpoint.Label()),
				zap.String("protocol", kind.String()),
			)
			h.probed = &probedResponse{url: req.URL, resp: resp}
			return h, nil
		}
		if firstMiss == nil {
			if err == nil {
				err = fmt.Errorf("unrecognized probe response from %s (status %d)", req.URL, resp.StatusCode)
			}
			firstMiss = h.fail(core.KindParseFailure, err)
		}
	}
	return nil, &core.FactoryError{Kind: core.KindNoProtocolMatched, Err: firstMiss}
}

func (f *Factory) handle(kind np.ProtocolKind, endpoint np.StationEndpoint, root string) (*Handle, bool) {
	b, ok := selectAdapter(kind)
	if !ok {
		return nil, false
	}
	return &Handle{
		kind:     kind,
		endpoint: endpoint,
		root:     root,
		exec:     f.exec,
		log:      f.log.With(zap.String("protocol", kind.String())),
		behavior: b,
	}, true
}
