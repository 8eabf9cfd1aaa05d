// Package config holds the tunable simulation parameters, their defaults,
// and the flag and JSON bindings used by the command-line hosts.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"time"
)

// Default simulation parameters.
const (
	DefaultDownsample          = 1
	DefaultVelocityDissipation = 0.998
	DefaultDensityDissipation  = 0.98
	DefaultPressureDissipation = 0.95
	DefaultPressureIterations  = 30
	DefaultCurlStrength        = 2.0
	DefaultSplatRadius         = 0.005
	DefaultSplatForce          = 1.0
	DefaultSplatColorScale     = 0.5
	DefaultMaxDelta            = 16 * time.Millisecond
	DefaultColorInterval       = 100 * time.Millisecond
	DefaultPointerGain         = 8.0
	DefaultGamma               = 0.8

	MinPressureIterations = 1
	MaxPressureIterations = 200
)

// Config is the complete set of session parameters. A session reads a copy
// at the start of every tick, so changes never land mid-tick.
type Config struct {
	Downsample          int      `json:"downsample"`
	VelocityDissipation float64  `json:"velocityDissipation"`
	DensityDissipation  float64  `json:"densityDissipation"`
	PressureDissipation float64  `json:"pressureDissipation"`
	PressureIterations  int      `json:"pressureIterations"`
	CurlStrength        float64  `json:"curlStrength"`
	SplatRadius         float64  `json:"splatRadius"`
	SplatForce          float64  `json:"splatForce"`
	SplatColorScale     float64  `json:"splatColorScale"`
	MaxDelta            Duration `json:"maxDelta"`
	ColorInterval       Duration `json:"colorInterval"`
	PointerGain         float64  `json:"pointerGain"`
	Gamma               float64  `json:"gamma"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Downsample:          DefaultDownsample,
		VelocityDissipation: DefaultVelocityDissipation,
		DensityDissipation:  DefaultDensityDissipation,
		PressureDissipation: DefaultPressureDissipation,
		PressureIterations:  DefaultPressureIterations,
		CurlStrength:        DefaultCurlStrength,
		SplatRadius:         DefaultSplatRadius,
		SplatForce:          DefaultSplatForce,
		SplatColorScale:     DefaultSplatColorScale,
		MaxDelta:            Duration(DefaultMaxDelta),
		ColorInterval:       Duration(DefaultColorInterval),
		PointerGain:         DefaultPointerGain,
		Gamma:               DefaultGamma,
	}
}

// Validate reports every out-of-range parameter. NaN and infinite values
// are out of range everywhere.
func (c Config) Validate() error {
	var errs []error
	if c.Downsample < 1 {
		errs = append(errs, fmt.Errorf("downsample %d must be >= 1", c.Downsample))
	}
	for _, d := range []struct {
		name string
		v    float64
	}{
		{"velocity dissipation", c.VelocityDissipation},
		{"density dissipation", c.DensityDissipation},
	} {
		if !(d.v > 0 && d.v <= 1) {
			errs = append(errs, fmt.Errorf("%s %v outside (0,1]", d.name, d.v))
		}
	}
	if !(c.PressureDissipation >= 0 && c.PressureDissipation <= 1) {
		errs = append(errs, fmt.Errorf("pressure dissipation %v outside [0,1]", c.PressureDissipation))
	}
	if c.PressureIterations < MinPressureIterations || c.PressureIterations > MaxPressureIterations {
		errs = append(errs, fmt.Errorf("pressure iterations %d outside [%d,%d]",
			c.PressureIterations, MinPressureIterations, MaxPressureIterations))
	}
	for _, d := range []struct {
		name string
		v    float64
	}{
		{"curl strength", c.CurlStrength},
		{"splat force", c.SplatForce},
		{"splat color scale", c.SplatColorScale},
	} {
		if !(d.v >= 0) || math.IsInf(d.v, 0) {
			errs = append(errs, fmt.Errorf("%s %v must be finite and >= 0", d.name, d.v))
		}
	}
	for _, d := range []struct {
		name string
		v    float64
	}{
		{"splat radius", c.SplatRadius},
		{"pointer gain", c.PointerGain},
		{"gamma", c.Gamma},
	} {
		if !(d.v > 0) || math.IsInf(d.v, 0) {
			errs = append(errs, fmt.Errorf("%s %v must be finite and > 0", d.name, d.v))
		}
	}
	if c.MaxDelta <= 0 {
		errs = append(errs, fmt.Errorf("max delta %v must be > 0", c.MaxDelta))
	}
	if c.ColorInterval <= 0 {
		errs = append(errs, fmt.Errorf("color interval %v must be > 0", c.ColorInterval))
	}
	return errors.Join(errs...)
}

// RegisterFlags binds every parameter to fs, using the current values as
// defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.Downsample, "downsample", c.Downsample, "simulation resolution divisor relative to the surface")
	fs.Float64Var(&c.VelocityDissipation, "velocity-dissipation", c.VelocityDissipation, "velocity multiplier applied per advection (0-1]")
	fs.Float64Var(&c.DensityDissipation, "density-dissipation", c.DensityDissipation, "dye multiplier applied per advection (0-1]")
	fs.Float64Var(&c.PressureDissipation, "pressure-dissipation", c.PressureDissipation, "warm-start decay of the previous pressure solution")
	fs.IntVar(&c.PressureIterations, "pressure-iterations", c.PressureIterations, "Jacobi iterations per tick")
	fs.Float64Var(&c.CurlStrength, "curl", c.CurlStrength, "vorticity confinement strength")
	fs.Float64Var(&c.SplatRadius, "splat-radius", c.SplatRadius, "splat falloff radius in texture space")
	fs.Float64Var(&c.SplatForce, "splat-force", c.SplatForce, "velocity impulse scale for pointer splats")
	fs.Float64Var(&c.SplatColorScale, "splat-color", c.SplatColorScale, "dye intensity scale for pointer splats")
	fs.Var(&c.MaxDelta, "max-delta", "largest time step simulated in one tick")
	fs.Var(&c.ColorInterval, "color-interval", "minimum time between dye color changes")
	fs.Float64Var(&c.PointerGain, "pointer-gain", c.PointerGain, "multiplier from pointer motion in pixels to velocity impulse")
	fs.Float64Var(&c.Gamma, "gamma", c.Gamma, "display gamma applied after tone mapping")
}

// Load overlays the JSON document at path onto c. A missing file leaves c
// unchanged and reports ok=false.
func (c *Config) Load(path string) (ok bool, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("reading config %q: %w", path, err)
	}
	if err := json.Unmarshal(raw, c); err != nil {
		return false, fmt.Errorf("decoding config %q: %w", path, err)
	}
	return true, nil
}

// Duration is a time.Duration that reads and writes as a Go duration string
// in JSON and on the command line.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) Set(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var ms float64
		if err2 := json.Unmarshal(b, &ms); err2 != nil {
			return fmt.Errorf("duration must be a string like \"16ms\" or milliseconds: %w", err)
		}
		*d = Duration(ms * float64(time.Millisecond))
		return nil
	}
	return d.Set(s)
}

// LoadWithFlags builds a configuration from the defaults, the JSON file at
// path, and then every flag explicitly set on fs, in that order of
// precedence. fs must already be parsed.
func LoadWithFlags(path string, fs *flag.FlagSet) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := cfg.Load(path); err != nil {
			return cfg, err
		}
	}
	bind := flag.NewFlagSet("overlay", flag.ContinueOnError)
	cfg.RegisterFlags(bind)
	var errs []error
	fs.Visit(func(f *flag.Flag) {
		if bind.Lookup(f.Name) == nil {
			return
		}
		if err := bind.Set(f.Name, f.Value.String()); err != nil {
			errs = append(errs, fmt.Errorf("flag -%s: %w", f.Name, err))
		}
	})
	return cfg, errors.Join(errs...)
}
