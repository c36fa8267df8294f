package tfa

import (
	"errors"
	"fmt"
	"os"
)

// Location is a candidate source root supplied by the host, such as one
// installation of the game.
type Location struct {
	Label string
	Path  string
}

// Config is the plain settings bag a host hands to the engine.
type Config struct {
	// Source is the archive root. When empty, the first usable Location is
	// used.
	Source string

	// Destination is the extracted tree.
	Destination string

	// Snapshots is the directory for versioned old/new copies.
	// Required when Advanced is set.
	Snapshots string

	// Advanced enables versioned snapshots in changes mode.
	Advanced bool

	// Performance enables manifest-based skipping.
	Performance bool

	// Locations are candidate roots in preference order.
	Locations []Location
}

// ResolveSource returns the explicit Source, or the path of the first
// Location that is an existing directory.
func (c Config) ResolveSource() (string, error) {
	if c.Source != "" {
		return c.Source, nil
	}
	for _, loc := range c.Locations {
		if loc.Path == "" {
			continue
		}
		if info, err := os.Stat(loc.Path); err == nil && info.IsDir() {
			return loc.Path, nil
		}
	}
	if len(c.Locations) == 0 {
		return "", errors.New("tfa: no source directory configured")
	}
	return "", fmt.Errorf("tfa: none of %d candidate locations exists", len(c.Locations))
}

// NewEngine resolves the source and creates an Engine for c.
// opts are applied after the options derived from c.
func (c Config) NewEngine(opts ...Option) (*Engine, error) {
	source, err := c.ResolveSource()
	if err != nil {
		return nil, err
	}
	all := append([]Option{WithPerformanceMode(c.Performance)}, opts...)
	return New(source, c.Destination, all...)
}

// ExtractOptions returns the extraction options implied by c.
func (c Config) ExtractOptions() ([]ExtractOption, error) {
	if !c.Advanced {
		return nil, nil
	}
	if c.Snapshots == "" {
		return nil, errors.New("tfa: advanced mode requires a snapshot directory")
	}
	return []ExtractOption{ExtractWithSnapshots(c.Snapshots)}, nil
}
