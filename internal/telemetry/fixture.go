package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// FixtureSource reads canned telemetry from JSON files, one file per
// resource, named <dir>/<resource-id>.json. Sample times are expressed as
// minute offsets relative to the end of the requested window, so fixtures
// stay valid no matter when they are replayed:
//
//	{
//	  "metrics": {
//	    "cpu_utilization": {
//	      "period_seconds": 60,
//	      "points": [{"offset_minutes": -12, "value": 97.0}]
//	    }
//	  },
//	  "events": [
//	    {"offset_minutes": -5, "actor": "ci-deployer", "operation": "GetObject",
//	     "outcome": "denied", "event_id": "fx-001"}
//	  ]
//	}
//
// A resource without a fixture file yields empty telemetry, not an error.
type FixtureSource struct {
	dir string
}

// NewFixtureSource returns a Source backed by JSON files under dir.
func NewFixtureSource(dir string) *FixtureSource {
	return &FixtureSource{dir: dir}
}

type fixtureFile struct {
	Metrics map[string]fixtureSeries `json:"metrics"`
	Events  []fixtureEvent           `json:"events"`
}

type fixtureSeries struct {
	PeriodSeconds int            `json:"period_seconds"`
	Points        []fixturePoint `json:"points"`
}

type fixturePoint struct {
	OffsetMinutes float64 `json:"offset_minutes"`
	Value         float64 `json:"value"`
}

type fixtureEvent struct {
	OffsetMinutes float64 `json:"offset_minutes"`
	Actor         string  `json:"actor"`
	Operation     string  `json:"operation"`
	Outcome       Outcome `json:"outcome"`
	EventID       string  `json:"event_id"`
}

// Series implements Source.
func (f *FixtureSource) Series(_ context.Context, res Resource, metric string, win Window, period time.Duration) (*MetricSeries, error) {
	doc, err := f.load(res)
	if err != nil {
		return nil, err
	}

	series := &MetricSeries{Resource: res.ID, Metric: metric, Period: period}
	fs, ok := doc.Metrics[metric]
	if !ok {
		return series, nil
	}
	if fs.PeriodSeconds > 0 {
		series.Period = time.Duration(fs.PeriodSeconds) * time.Second
	}

	for _, p := range fs.Points {
		t := win.End.Add(time.Duration(p.OffsetMinutes * float64(time.Minute)))
		if !win.Contains(t) {
			continue
		}
		series.Points = append(series.Points, Point{Time: t, Value: p.Value})
	}
	sort.Slice(series.Points, func(i, j int) bool {
		return series.Points[i].Time.Before(series.Points[j].Time)
	})
	return series, nil
}

// Events implements Source.
func (f *FixtureSource) Events(_ context.Context, res Resource, win Window) ([]AuditEvent, error) {
	doc, err := f.load(res)
	if err != nil {
		return nil, err
	}

	var events []AuditEvent
	for _, e := range doc.Events {
		t := win.End.Add(time.Duration(e.OffsetMinutes * float64(time.Minute)))
		if !win.Contains(t) {
			continue
		}
		events = append(events, AuditEvent{
			Time:      t,
			Actor:     e.Actor,
			Resource:  res.ID,
			Operation: e.Operation,
			Outcome:   e.Outcome,
			EventID:   e.EventID,
		})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Time.Before(events[j].Time) })
	return events, nil
}

// load reads and decodes the fixture file for res. A missing file is an
// empty fixture; an undecodable one is malformed data.
func (f *FixtureSource) load(res Resource) (*fixtureFile, error) {
	path := filepath.Join(f.dir, res.ID+".json")
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &fixtureFile{}, nil
	}
	if err != nil {
		return nil, &SourceError{Kind: ErrorTransient, Op: "fixture.read", Resource: res.ID, Err: err}
	}

	var doc fixtureFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &SourceError{
			Kind:     ErrorMalformed,
			Op:       "fixture.decode",
			Resource: res.ID,
			Err:      fmt.Errorf("%s: %w", path, err),
		}
	}
	return &doc, nil
}
