package config

import (
	"flag"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.PressureIterations != 30 || cfg.MaxDelta.Std() != 16*time.Millisecond {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"downsample", func(c *Config) { c.Downsample = 0 }, "downsample"},
		{"velocity dissipation zero", func(c *Config) { c.VelocityDissipation = 0 }, "velocity dissipation"},
		{"density dissipation above one", func(c *Config) { c.DensityDissipation = 1.01 }, "density dissipation"},
		{"pressure dissipation negative", func(c *Config) { c.PressureDissipation = -0.1 }, "pressure dissipation"},
		{"iterations", func(c *Config) { c.PressureIterations = MaxPressureIterations + 1 }, "pressure iterations"},
		{"curl", func(c *Config) { c.CurlStrength = -1 }, "curl strength"},
		{"radius", func(c *Config) { c.SplatRadius = 0 }, "splat radius"},
		{"max delta", func(c *Config) { c.MaxDelta = 0 }, "max delta"},
		{"color interval", func(c *Config) { c.ColorInterval = -1 }, "color interval"},
		{"gamma", func(c *Config) { c.Gamma = 0 }, "gamma"},
		{"pointer gain zero", func(c *Config) { c.PointerGain = 0 }, "pointer gain"},
		{"pointer gain nan", func(c *Config) { c.PointerGain = math.NaN() }, "pointer gain"},
		{"splat force negative", func(c *Config) { c.SplatForce = -1 }, "splat force"},
		{"splat force infinite", func(c *Config) { c.SplatForce = math.Inf(1) }, "splat force"},
		{"splat color nan", func(c *Config) { c.SplatColorScale = math.NaN() }, "splat color scale"},
		{"velocity dissipation nan", func(c *Config) { c.VelocityDissipation = math.NaN() }, "velocity dissipation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Validate() = %q, want mention of %q", err, tt.field)
			}
		})
	}
}

func TestRegisterFlags(t *testing.T) {
	cfg := Default()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.RegisterFlags(fs)
	err := fs.Parse([]string{"-pressure-iterations", "12", "-max-delta", "33ms", "-curl", "0.5"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PressureIterations != 12 || cfg.MaxDelta.Std() != 33*time.Millisecond || cfg.CurlStrength != 0.5 {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if cfg.Downsample != DefaultDownsample {
		t.Errorf("unset flag changed Downsample to %d", cfg.Downsample)
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fluid.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `{"downsample": 2, "maxDelta": "20ms", "colorInterval": 250}`)
	cfg := Default()
	ok, err := cfg.Load(path)
	if err != nil || !ok {
		t.Fatalf("Load() = %v, %v", ok, err)
	}
	if cfg.Downsample != 2 {
		t.Errorf("Downsample = %d, want 2", cfg.Downsample)
	}
	if cfg.MaxDelta.Std() != 20*time.Millisecond {
		t.Errorf("MaxDelta = %v, want 20ms", cfg.MaxDelta)
	}
	if cfg.ColorInterval.Std() != 250*time.Millisecond {
		t.Errorf("ColorInterval = %v, want 250ms from a bare number", cfg.ColorInterval)
	}
	if cfg.PressureIterations != DefaultPressureIterations {
		t.Errorf("absent key changed PressureIterations to %d", cfg.PressureIterations)
	}

	ok, err = cfg.Load(filepath.Join(t.TempDir(), "missing.json"))
	if ok || err != nil {
		t.Errorf("Load(missing) = %v, %v; want false, nil", ok, err)
	}

	if _, err := cfg.Load(writeFile(t, `{"downsample": "two"}`)); err == nil {
		t.Error("Load accepted a malformed document")
	}
}

func TestLoadWithFlagsPrecedence(t *testing.T) {
	path := writeFile(t, `{"downsample": 3, "pressureIterations": 40}`)
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cli := Default()
	cli.RegisterFlags(fs)
	fs.String("config", "", "")
	if err := fs.Parse([]string{"-config", path, "-pressure-iterations", "8"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadWithFlags(path, fs)
	if err != nil {
		t.Fatalf("LoadWithFlags() error = %v", err)
	}
	if cfg.Downsample != 3 {
		t.Errorf("Downsample = %d, want 3 from file", cfg.Downsample)
	}
	if cfg.PressureIterations != 8 {
		t.Errorf("PressureIterations = %d, want 8 from flag", cfg.PressureIterations)
	}
}

func TestDurationJSON(t *testing.T) {
	d := Duration(1500 * time.Millisecond)
	b, err := d.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"1.5s"` {
		t.Errorf("MarshalJSON() = %s", b)
	}
	var back Duration
	if err := back.UnmarshalJSON(b); err != nil || back != d {
		t.Errorf("UnmarshalJSON(%s) = %v, %v", b, back, err)
	}
}
