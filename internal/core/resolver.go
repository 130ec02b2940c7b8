package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mikey-austin/np_relay/internal/ports"
	"github.com/mikey-austin/np_relay/pkg/np"
)

// Resolver resolves selectors to configured stations.
type Resolver struct {
	Stations ports.StationSource
	Config   Config
}

// ResolveStations resolves each selector. No selectors means the default
// station when one is configured, otherwise every station.
func (r Resolver) ResolveStations(ctx context.Context, selectors []string) ([]np.StationEndpoint, error) {
	stations, err := r.Stations.ListStations(ctx)
	if err != nil && len(stations) == 0 {
		return nil, WrapError(ExitRuntime, "list stations", err)
	}
	if len(selectors) == 0 {
		if r.Config.Defaults.Station == "" {
			if len(stations) == 0 {
				return nil, &CLIError{Code: ExitNotFound, Msg: "no stations configured"}
			}
			return stations, nil
		}
		selectors = []string{r.Config.Defaults.Station}
	}

	out := make([]np.StationEndpoint, 0, len(selectors))
	for _, selector := range selectors {
		station, err := resolveSelector(selector, stations, r.Config.Aliases)
		if err != nil {
			return nil, err
		}
		out = append(out, station)
	}
	return out, nil
}

// ResolveStation resolves a single selector using config defaults.
func (r Resolver) ResolveStation(ctx context.Context, selector string) (np.StationEndpoint, error) {
	var selectors []string
	if selector != "" {
		selectors = []string{selector}
	}
	stations, err := r.ResolveStations(ctx, selectors)
	if err != nil {
		return np.StationEndpoint{}, err
	}
	if len(stations) != 1 {
		return np.StationEndpoint{}, &CLIError{Code: ExitUsage, Msg: "selector required"}
	}
	return stations[0], nil
}

func resolveSelector(selector string, stations []np.StationEndpoint, aliases map[string]string) (np.StationEndpoint, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return np.StationEndpoint{}, &CLIError{Code: ExitUsage, Msg: "selector required"}
	}
	if alias, ok := aliases[selector]; ok {
		selector = alias
	}

	for _, station := range stations {
		if station.ID == selector {
			return station, nil
		}
	}

	matches := make([]np.StationEndpoint, 0)
	for _, station := range stations {
		if strings.EqualFold(station.Name, selector) || strings.EqualFold(station.ID, selector) {
			matches = append(matches, station)
		}
	}

	if len(matches) == 1 {
		return matches[0], nil
	}
	if len(matches) == 0 {
		return np.StationEndpoint{}, &CLIError{Code: ExitNotFound, Msg: fmt.Sprintf("no match for %q", selector)}
	}
	return np.StationEndpoint{}, &CLIError{Code: ExitUsage, Msg: fmt.Sprintf("ambiguous selector %q: %s", selector, suggestionList(matches))}
}

func suggestionList(matches []np.StationEndpoint) string {
	names := make([]string, 0, len(matches))
	for _, station := range matches {
		names = append(names, fmt.Sprintf("%s (%s)", station.Name, station.ID))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
