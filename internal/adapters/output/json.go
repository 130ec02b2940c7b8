package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/mikey-austin/np_relay/internal/core"
	"github.com/mikey-austin/np_relay/pkg/np"
)

// JSONPrinter prints JSON, to stdout unless Out is set.
type JSONPrinter struct {
	Out io.Writer
}

// outcomeJSON adds the classified failure text that PollOutcome leaves out.
type outcomeJSON struct {
	np.PollOutcome
	Error string `json:"error,omitempty"`
}

// Print renders JSON output.
func (p JSONPrinter) Print(v any) error {
	switch data := v.(type) {
	case core.NowPlayingResult:
		outcomes := make([]outcomeJSON, 0, len(data.Outcomes))
		for _, outcome := range data.Outcomes {
			outcomes = append(outcomes, outcomeJSON{PollOutcome: outcome, Error: outcome.ErrorText()})
		}
		v = struct {
			Outcomes []outcomeJSON `json:"outcomes"`
		}{outcomes}
	case core.ProbeResult:
		v = struct {
			Outcome outcomeJSON `json:"outcome"`
		}{outcomeJSON{PollOutcome: data.Outcome, Error: data.Outcome.ErrorText()}}
	}
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(writerOrStdout(p.Out), string(payload))
	return err
}
