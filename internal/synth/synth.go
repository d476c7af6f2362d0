// Package synth generates deterministic synthetic station networks for demos,
// integration tests and benchmarks.
package synth

import (
	"cmp"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strconv"
	"time"

	"github.com/okian/stationqc/internal/domain/model"
)

// Anomaly is a kind of fault injected into a generated series.
type Anomaly uint8

// Injected fault kinds.
const (
	// Dip pulls a single value down.
	Dip Anomaly = iota
	// Step shifts the target and every later value.
	Step
	// Flatline repeats the target value for FlatlineLen points.
	Flatline
	// Outlier pushes a single value far up, away from the station's buddies.
	Outlier
)

var anomalyNames = [...]string{Dip: "dip", Step: "step", Flatline: "flatline", Outlier: "outlier"}

func (a Anomaly) String() string {
	if int(a) < len(anomalyNames) {
		return anomalyNames[a]
	}
	return "anomaly(" + strconv.Itoa(int(a)) + ")"
}

// Defaults for zero-valued Options fields.
const (
	defaultRows        = 8
	defaultCols        = 8
	defaultSpacing     = 0.1 // degrees
	defaultPoints      = 48
	defaultStep        = time.Hour
	defaultBase        = 10
	defaultAmplitude   = 5
	defaultNoise       = 0.2
	defaultMaxElev     = 500
	defaultMagnitude   = 8
	defaultFlatlineLen = 6
	lapseRate          = -0.0065
	// seedSalt decorrelates the second PCG word from the first.
	seedSalt = 0x9e3779b97f4a7c15
)

// Options controls network generation. Zero grid, timing and fault sizes
// take defaults; signal and noise fields are used as given.
type Options struct {
	Seed        uint64        `koanf:"seed"`
	Rows        int           `koanf:"rows"`
	Cols        int           `koanf:"cols"`
	OriginLat   float64       `koanf:"origin_lat"`
	OriginLon   float64       `koanf:"origin_lon"`
	Spacing     float64       `koanf:"spacing"`
	MaxElev     float64       `koanf:"max_elev"`
	Start       time.Time     `koanf:"start"`
	Step        time.Duration `koanf:"step"`
	Points      int           `koanf:"points"`
	Base        float64       `koanf:"base"`
	Amplitude   float64       `koanf:"amplitude"`
	Noise       float64       `koanf:"noise"`
	Anomalies   int           `koanf:"anomalies"`
	Magnitude   float64       `koanf:"magnitude"`
	FlatlineLen int           `koanf:"flatline_len"`
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Seed:        1,
		Rows:        defaultRows,
		Cols:        defaultCols,
		OriginLat:   59.5,
		OriginLon:   10.0,
		Spacing:     defaultSpacing,
		MaxElev:     defaultMaxElev,
		Start:       time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Step:        defaultStep,
		Points:      defaultPoints,
		Base:        defaultBase,
		Amplitude:   defaultAmplitude,
		Noise:       defaultNoise,
		Anomalies:   4,
		Magnitude:   defaultMagnitude,
		FlatlineLen: defaultFlatlineLen,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Rows == 0 {
		o.Rows = d.Rows
	}
	if o.Cols == 0 {
		o.Cols = d.Cols
	}
	if o.Spacing == 0 {
		o.Spacing = d.Spacing
	}
	if o.Start.IsZero() {
		o.Start = d.Start
	}
	if o.Step == 0 {
		o.Step = d.Step
	}
	if o.Points == 0 {
		o.Points = d.Points
	}
	if o.Magnitude == 0 {
		o.Magnitude = d.Magnitude
	}
	if o.FlatlineLen == 0 {
		o.FlatlineLen = d.FlatlineLen
	}
	return o
}

// Validate reports options that cannot produce a network once defaults are
// applied.
func (o Options) Validate() error {
	o = o.withDefaults()
	switch {
	case o.Rows < 1 || o.Cols < 1:
		return fmt.Errorf("grid %dx%d must be at least 1x1: %w", o.Rows, o.Cols, model.ErrInvalidInput)
	case o.Spacing <= 0:
		return fmt.Errorf("spacing=%g must be positive: %w", o.Spacing, model.ErrInvalidInput)
	case o.Step <= 0:
		return fmt.Errorf("step=%s must be positive: %w", o.Step, model.ErrInvalidInput)
	case o.Points < 1:
		return fmt.Errorf("points=%d must be positive: %w", o.Points, model.ErrInvalidInput)
	case o.Noise < 0 || o.MaxElev < 0:
		return fmt.Errorf("noise and max_elev must not be negative: %w", model.ErrInvalidInput)
	case o.Anomalies < 0:
		return fmt.Errorf("anomalies=%d must not be negative: %w", o.Anomalies, model.ErrInvalidInput)
	case o.Anomalies > 0 && o.Points < 3:
		return fmt.Errorf("anomalies need at least 3 points per station: %w", model.ErrInvalidInput)
	case o.Anomalies > o.Rows*o.Cols:
		return fmt.Errorf("anomalies=%d exceed station count %d: %w", o.Anomalies, o.Rows*o.Cols, model.ErrInvalidInput)
	case o.FlatlineLen < 2:
		return fmt.Errorf("flatline_len=%d must be at least 2: %w", o.FlatlineLen, model.ErrInvalidInput)
	}
	return nil
}

// Injection records where a fault was placed.
type Injection struct {
	Kind      Anomaly
	StationID string
	Time      time.Time
}

// Network is a generated set of stations and their series.
type Network struct {
	Stations     []model.Station
	Observations []model.Observation
	Injected     []Injection
}

// Series groups the observations by station.
func (n *Network) Series() map[string][]model.Observation {
	out := make(map[string][]model.Observation, len(n.Stations))
	for _, o := range n.Observations {
		out[o.StationID] = append(out[o.StationID], o)
	}
	return out
}

// Generate builds a network. The same options always yield the same network.
func Generate(opts Options) (*Network, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^seedSalt))

	stations := make([]model.Station, 0, opts.Rows*opts.Cols)
	for r := 0; r < opts.Rows; r++ {
		for c := 0; c < opts.Cols; c++ {
			jitter := opts.Spacing / 4
			stations = append(stations, model.Station{
				ID:   fmt.Sprintf("SN%05d", r*opts.Cols+c+1),
				Lat:  opts.OriginLat + float64(r)*opts.Spacing + (rng.Float64()-0.5)*jitter,
				Lon:  opts.OriginLon + float64(c)*opts.Spacing + (rng.Float64()-0.5)*jitter,
				Elev: rng.Float64() * opts.MaxElev,
			})
		}
	}

	values := make([][]float64, len(stations))
	for i, s := range stations {
		row := make([]float64, opts.Points)
		for j := range row {
			t := opts.Start.Add(time.Duration(j) * opts.Step)
			row[j] = climate(opts, s, t) + rng.NormFloat64()*opts.Noise
		}
		values[i] = row
	}

	injected := inject(rng, opts, stations, values)

	obs := make([]model.Observation, 0, len(stations)*opts.Points)
	for i, s := range stations {
		for j, v := range values[i] {
			obs = append(obs, model.Observation{
				StationID: s.ID,
				Time:      opts.Start.Add(time.Duration(j) * opts.Step),
				Value:     v,
			})
		}
	}
	return &Network{Stations: stations, Observations: obs, Injected: injected}, nil
}

// climate is the noise-free signal: a diurnal cycle peaking mid-afternoon,
// a lapse-rate elevation term and a gentle north-south gradient.
func climate(opts Options, s model.Station, t time.Time) float64 {
	hour := float64(t.UTC().Hour()) + float64(t.UTC().Minute())/60
	diurnal := opts.Amplitude * math.Sin(2*math.Pi*(hour-9)/24)
	return opts.Base + diurnal + lapseRate*s.Elev - 0.5*(s.Lat-opts.OriginLat)
}

// inject places opts.Anomalies faults on distinct stations, cycling through
// the anomaly kinds. Targets avoid the first and last point so temporal
// tests have both neighbours.
func inject(rng *rand.Rand, opts Options, stations []model.Station, values [][]float64) []Injection {
	if opts.Anomalies == 0 {
		return nil
	}
	picked := rng.Perm(len(stations))[:opts.Anomalies]
	out := make([]Injection, 0, opts.Anomalies)
	for n, si := range picked {
		kind := Anomaly(n % len(anomalyNames))
		j := 1 + rng.IntN(opts.Points-2)
		row := values[si]
		switch kind {
		case Dip:
			row[j] -= opts.Magnitude
		case Step:
			for k := j; k < len(row); k++ {
				row[k] += opts.Magnitude
			}
		case Flatline:
			// The run ends at j and is full length whenever the series allows.
			j = max(j, min(opts.FlatlineLen-1, opts.Points-2))
			from := max(0, j-opts.FlatlineLen+1)
			for k := from + 1; k <= j; k++ {
				row[k] = row[from]
			}
		case Outlier:
			row[j] += 2 * opts.Magnitude
		}
		out = append(out, Injection{
			Kind:      kind,
			StationID: stations[si].ID,
			Time:      opts.Start.Add(time.Duration(j) * opts.Step),
		})
	}
	slices.SortFunc(out, func(a, b Injection) int {
		if c := cmp.Compare(a.StationID, b.StationID); c != 0 {
			return c
		}
		return a.Time.Compare(b.Time)
	})
	return out
}
