package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/mikey-austin/np_relay/internal/ports"
	"github.com/mikey-austin/np_relay/pkg/np"
)

// StationFile is the layout of a standalone stations file.
type StationFile struct {
	Stations []np.StationEndpoint `toml:"stations" yaml:"stations"`
}

// LoadStations reads a stations file. Files ending in .yaml or .yml are YAML;
// everything else is TOML.
func LoadStations(path string) ([]np.StationEndpoint, error) {
	if path == "" {
		return nil, errors.New("stations path required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, errors.New("stations path is a directory")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file StationFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&file); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	default:
		if _, err := toml.Decode(string(data), &file); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return file.Stations, nil
}

// CheckStations rejects duplicate or missing station ids.
func CheckStations(stations []np.StationEndpoint) error {
	seen := map[string]bool{}
	for i, station := range stations {
		id := strings.TrimSpace(station.ID)
		if id == "" {
			return fmt.Errorf("station %d: id required", i)
		}
		if seen[id] {
			return fmt.Errorf("station %q: duplicate id", id)
		}
		seen[id] = true
	}
	return nil
}

// StaticStations serves a fixed station list.
type StaticStations []np.StationEndpoint

var _ ports.StationSource = StaticStations(nil)

// ListStations returns a copy of the list.
func (s StaticStations) ListStations(ctx context.Context) ([]np.StationEndpoint, error) {
	out := make([]np.StationEndpoint, len(s))
	copy(out, s)
	return out, nil
}
