package core

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mikey-austin/np_relay/internal/ports"
	"github.com/mikey-austin/np_relay/pkg/np"
)

const defaultConcurrency = 8

// PollAll polls stations with at most limit polls in flight and returns the
// outcomes in station order. timeout is applied to stations without their
// own timeout_ms.
func PollAll(ctx context.Context, poller ports.Poller, stations []np.StationEndpoint, limit int, timeout time.Duration) []np.PollOutcome {
	if limit <= 0 {
		limit = defaultConcurrency
	}
	outcomes := make([]np.PollOutcome, len(stations))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, station := range stations {
		i, station := i, station
		if station.TimeoutMS == 0 && timeout > 0 {
			station.TimeoutMS = int(timeout / time.Millisecond)
		}
		g.Go(func() error {
			outcomes[i] = poller.Poll(ctx, station)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}
