// Public domain.

// Package jconf reads the joker command configuration file.
//
// The file is YAML.  Every setting has a default, so an empty file, or no
// file at all, is a valid configuration.  Angles are in radians, periods
// and jitter in the units of the data.
//
//	prior:
//	  period:       {dist: log-uniform, min: 16, max: 8192}
//	  eccentricity: {dist: beta, alpha: 0.867, beta: 3.03}
//	  phase:        {dist: uniform, min: 0, max: 6.283185307179586}
//	  omega:        {dist: uniform, min: 0, max: 6.283185307179586}
//	  jitter:       {dist: fixed, value: 0}
//	  kepler_tol: 1e-10
//	  kepler_max_iter: 128
//	sampler:
//	  num_samples: 131072
//	  chunk_size: 4096
//	  seed: 0
//	  workers: 0
//	  prior_var_k: 1e8
//	  prior_var_v0: 1e8
//	logging:
//	  level: info
//	  format: json
//	  output: stderr
//	  max_age: 0
//	output:
//	  samples: joker.samples
//	  parquet: ""
//
// JOKER_SEED and JOKER_WORKERS in the environment override the sampler
// seed and worker count.
package jconf

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/soniakeys/joker/internal/jprior"
	"github.com/soniakeys/joker/internal/jsolver"
	"github.com/soniakeys/joker/kepler"
)

// Config is the whole configuration file.
type Config struct {
	Prior   PriorConfig   `yaml:"prior"`
	Sampler SamplerConfig `yaml:"sampler"`
	Logging LoggingConfig `yaml:"logging"`
	Output  OutputConfig  `yaml:"output"`
}

type PriorConfig struct {
	Period        DistConfig `yaml:"period"`
	Eccentricity  DistConfig `yaml:"eccentricity"`
	Phase         DistConfig `yaml:"phase"`
	Omega         DistConfig `yaml:"omega"`
	Jitter        DistConfig `yaml:"jitter"`
	KeplerTol     float64    `yaml:"kepler_tol"`
	KeplerMaxIter int        `yaml:"kepler_max_iter"`
}

// DistConfig names a prior distribution and its parameters.  Which
// parameters apply depends on Dist.
type DistConfig struct {
	Dist  string    `yaml:"dist"` // log-uniform, uniform, beta, fixed, grid
	Min   float64   `yaml:"min,omitempty"`
	Max   float64   `yaml:"max,omitempty"`
	Alpha float64   `yaml:"alpha,omitempty"`
	Beta  float64   `yaml:"beta,omitempty"`
	Value float64   `yaml:"value,omitempty"`
	Grid  []float64 `yaml:"grid,omitempty"`
}

type SamplerConfig struct {
	NumSamples int     `yaml:"num_samples"`
	ChunkSize  int     `yaml:"chunk_size"`
	Seed       uint64  `yaml:"seed"`
	Workers    int     `yaml:"workers"` // 0 means GOMAXPROCS
	PriorVarK  float64 `yaml:"prior_var_k"`
	PriorVarV0 float64 `yaml:"prior_var_v0"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"` // days; log file rotation if > 0
}

type OutputConfig struct {
	Samples string `yaml:"samples"` // gob sample file, "" for none
	Parquet string `yaml:"parquet"` // parquet export, "" for none
}

// Default returns the configuration used for settings a file leaves out.
func Default() Config {
	const twoPi = 2 * math.Pi
	return Config{
		Prior: PriorConfig{
			Period:        DistConfig{Dist: "log-uniform", Min: 16, Max: 8192},
			Eccentricity:  DistConfig{Dist: "beta", Alpha: jprior.Kipping.Alpha, Beta: jprior.Kipping.Beta},
			Phase:         DistConfig{Dist: "uniform", Max: twoPi},
			Omega:         DistConfig{Dist: "uniform", Max: twoPi},
			Jitter:        DistConfig{Dist: "fixed"},
			KeplerTol:     kepler.DefaultTol,
			KeplerMaxIter: kepler.DefaultMaxIter,
		},
		Sampler: SamplerConfig{
			NumSamples: 1 << 17,
			ChunkSize:  1 << 12,
			PriorVarK:  1e8,
			PriorVarV0: 1e8,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		Output: OutputConfig{Samples: "joker.samples"},
	}
}

// Load reads the configuration file at path over the defaults, applies
// environment overrides, and validates the result.  An empty path means
// defaults and environment only.
func Load(path string) (*Config, error) {
	var b []byte
	if path > "" {
		var err error
		if b, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("jconf: %w", err)
		}
	}
	return Parse(b)
}

// Parse is Load for file contents already in memory.
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("jconf: parse: %w", err)
	}
	if v := strings.TrimSpace(os.Getenv("JOKER_SEED")); v != "" {
		s, err := strconv.ParseUint(v, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("jconf: JOKER_SEED: %w", err)
		}
		c.Sampler.Seed = s
	}
	if v := strings.TrimSpace(os.Getenv("JOKER_WORKERS")); v != "" {
		w, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("jconf: JOKER_WORKERS: %w", err)
		}
		c.Sampler.Workers = w
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the configuration, including everything the sampler
// itself would reject.
func (c *Config) Validate() error {
	sc, err := c.SolverConfig()
	if err != nil {
		return err
	}
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("jconf: %w", err)
	}
	if c.Sampler.Workers < 0 {
		return fmt.Errorf("jconf: sampler.workers must not be negative")
	}
	switch c.Logging.Format {
	case "json", "text", "":
	default:
		return fmt.Errorf("jconf: logging.format %q not json or text", c.Logging.Format)
	}
	if c.Logging.MaxAge < 0 {
		return fmt.Errorf("jconf: logging.max_age must not be negative")
	}
	return nil
}

// SolverConfig converts to the sampler configuration.
func (c *Config) SolverConfig() (jsolver.Config, error) {
	var sc jsolver.Config
	p := &c.Prior
	for _, d := range []struct {
		name string
		dc   *DistConfig
		dst  *jprior.Dist
	}{
		{"period", &p.Period, &sc.Prior.Period},
		{"eccentricity", &p.Eccentricity, &sc.Prior.Ecc},
		{"phase", &p.Phase, &sc.Prior.Phase},
		{"omega", &p.Omega, &sc.Prior.Omega},
		{"jitter", &p.Jitter, &sc.Prior.Jitter},
	} {
		dist, err := d.dc.Build()
		if err != nil {
			return sc, fmt.Errorf("jconf: prior.%s: %w", d.name, err)
		}
		*d.dst = dist
	}
	sc.Prior.KeplerTol = p.KeplerTol
	sc.Prior.KeplerMaxIter = p.KeplerMaxIter
	sc.NumSamples = c.Sampler.NumSamples
	sc.ChunkSize = c.Sampler.ChunkSize
	sc.Seed = c.Sampler.Seed
	sc.PriorVarK = c.Sampler.PriorVarK
	sc.PriorVarV0 = c.Sampler.PriorVarV0
	return sc, nil
}

// Build returns the distribution d describes.
func (d *DistConfig) Build() (jprior.Dist, error) {
	switch strings.ToLower(d.Dist) {
	case "log-uniform", "loguniform":
		return jprior.LogUniform{Min: d.Min, Max: d.Max}, nil
	case "uniform":
		return jprior.Uniform{Min: d.Min, Max: d.Max}, nil
	case "beta":
		return jprior.Beta{Alpha: d.Alpha, Beta: d.Beta}, nil
	case "fixed":
		return jprior.Fixed(d.Value), nil
	case "grid":
		return jprior.Grid(append([]float64(nil), d.Grid...)), nil
	}
	return nil, fmt.Errorf("unknown distribution %q", d.Dist)
}
