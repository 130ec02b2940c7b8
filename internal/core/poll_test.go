package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mikey-austin/np_relay/pkg/np"
)

type countingPoller struct {
	mu       sync.Mutex
	inFlight int
	peak     int
}

func (p *countingPoller) Poll(ctx context.Context, endpoint np.StationEndpoint) np.PollOutcome {
	p.mu.Lock()
	p.inFlight++
	if p.inFlight > p.peak {
		p.peak = p.inFlight
	}
	p.mu.Unlock()
	time.Sleep(10 * time.Millisecond)
	p.mu.Lock()
	p.inFlight--
	p.mu.Unlock()
	return np.PollOutcome{Station: endpoint, State: np.StateParsed}
}

func TestPollAllKeepsOrderAndLimit(t *testing.T) {
	stations := []np.StationEndpoint{
		{ID: "a"}, {ID: "b", TimeoutMS: 100}, {ID: "c"}, {ID: "d"}, {ID: "e"},
	}
	poller := &countingPoller{}
	outcomes := PollAll(context.Background(), poller, stations, 2, time.Second)
	if len(outcomes) != len(stations) {
		t.Fatalf("expected %d outcomes got %d", len(stations), len(outcomes))
	}
	for i, outcome := range outcomes {
		if outcome.Station.ID != stations[i].ID {
			t.Fatalf("outcome %d is %s, want %s", i, outcome.Station.ID, stations[i].ID)
		}
	}
	if outcomes[0].Station.TimeoutMS != 1000 || outcomes[1].Station.TimeoutMS != 100 {
		t.Fatalf("unexpected timeouts %d %d", outcomes[0].Station.TimeoutMS, outcomes[1].Station.TimeoutMS)
	}
	if poller.peak > 2 {
		t.Fatalf("expected at most 2 polls in flight, saw %d", poller.peak)
	}
}
