package ports

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mikey-austin/np_relay/pkg/np"
)

// Request is a single HTTP exchange handed to an Executor.
type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Timeout time.Duration
}

// Response is the result of an HTTP exchange. Non-2xx statuses are not errors.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ErrBodyTooLarge is returned by an Executor when a response body exceeds
// its size limit. The exchange itself succeeded.
var ErrBodyTooLarge = errors.New("response body too large")

// Executor performs HTTP requests. Implementations must be safe for
// concurrent use and must never return an error for a non-2xx status.
type Executor interface {
	Execute(ctx context.Context, req Request) (Response, error)
}

// Poller runs one now-playing poll and always returns a well-formed outcome.
type Poller interface {
	Poll(ctx context.Context, endpoint np.StationEndpoint) np.PollOutcome
}

// ResultSink receives the outcomes of a poll cycle.
type ResultSink interface {
	Publish(ctx context.Context, outcomes []np.PollOutcome) error
}

// StationSource lists the stations to poll.
type StationSource interface {
	ListStations(ctx context.Context) ([]np.StationEndpoint, error)
}

// ProcessMonitor reports whether the local supervised processes are up.
type ProcessMonitor interface {
	IsRunning(ctx context.Context) (bool, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGen returns unique correlation IDs.
type IDGen interface {
	NewID() string
}
