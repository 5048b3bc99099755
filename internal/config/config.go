// Package config turns command-line settings into a validated pipeline
// configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/lox/flowstats/internal/models"
)

const DateLayout = "2006-01-02"

// DefaultStations are the two Indiana gauges the metrics were first
// produced for.
var DefaultStations = []string{
	"Wildcat=data/WildcatCreek_Discharge_03335000_19540601-20200315.txt",
	"Tippe=data/TippecanoeRiver_Discharge_03331500_19431001-20200315.txt",
}

const (
	DefaultStart = "1969-10-01"
	DefaultEnd   = "2019-09-30"
)

type Config struct {
	Stations      []models.Station
	Start         time.Time
	End           time.Time
	SkewCorrected bool
	RequireData   bool
}

// ParseStations parses ordered label=source pairs. Labels must be unique.
func ParseStations(specs []string) ([]models.Station, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("no stations configured")
	}
	seen := make(map[string]bool, len(specs))
	stations := make([]models.Station, 0, len(specs))
	for _, spec := range specs {
		label, source, ok := strings.Cut(spec, "=")
		label, source = strings.TrimSpace(label), strings.TrimSpace(source)
		if !ok || label == "" || source == "" {
			return nil, fmt.Errorf("station %q: want label=source", spec)
		}
		if seen[label] {
			return nil, fmt.Errorf("station %q: duplicate label", label)
		}
		seen[label] = true
		stations = append(stations, models.Station{Label: label, Source: source})
	}
	return stations, nil
}

// ParseWindow parses an inclusive clip window. Either bound may be empty,
// meaning unbounded on that side.
func ParseWindow(start, end string) (time.Time, time.Time, error) {
	var s, e time.Time
	var err error
	if start != "" {
		if s, err = time.Parse(DateLayout, start); err != nil {
			return s, e, fmt.Errorf("parse start date: %w", err)
		}
	}
	if end != "" {
		if e, err = time.Parse(DateLayout, end); err != nil {
			return s, e, fmt.Errorf("parse end date: %w", err)
		}
	} else {
		e = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)
	}
	if e.Before(s) {
		return s, e, fmt.Errorf("end date %s is before start date %s", end, start)
	}
	return s, e, nil
}

// New builds a validated Config.
func New(stations []string, start, end string, skewCorrected, requireData bool) (*Config, error) {
	st, err := ParseStations(stations)
	if err != nil {
		return nil, err
	}
	s, e, err := ParseWindow(start, end)
	if err != nil {
		return nil, err
	}
	return &Config{
		Stations:      st,
		Start:         s,
		End:           e,
		SkewCorrected: skewCorrected,
		RequireData:   requireData,
	}, nil
}
