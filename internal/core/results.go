package core

import "github.com/mikey-austin/np_relay/pkg/np"

// NowPlayingResult holds the outcomes of one round of polls, in selector order.
type NowPlayingResult struct {
	Outcomes []np.PollOutcome `json:"outcomes"`
}

// AllOffline reports whether no polled station is online.
func (r NowPlayingResult) AllOffline() bool {
	for _, outcome := range r.Outcomes {
		if outcome.Result.IsOnline {
			return false
		}
	}
	return true
}

// ProbeResult reports what an ad hoc URL speaks and what it is playing.
type ProbeResult struct {
	Outcome np.PollOutcome `json:"outcome"`
}

// StationsResult holds the configured stations.
type StationsResult struct {
	Stations []np.StationEndpoint `json:"stations"`
}

// CheckResult reports the local supervised process state.
type CheckResult struct {
	Running bool `json:"running"`
}
