package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the run parameters shared by every rank. They are fixed
// for the duration of a run.
type AppConfig struct {
	Pipeline  string `yaml:"pipeline"`   // composite, edge
	BlurSize  int    `yaml:"blur_size"`  // blur half window, also the column halo
	Threshold int    `yaml:"threshold"`  // convergence threshold, <= 0 runs one pass
	Threads   int    `yaml:"threads"`    // GOMAXPROCS per rank, 0 keeps the runtime default
	Workers   int    `yaml:"workers"`    // batch regions filtered concurrently per rank

	Endpoints []string `yaml:"endpoints"` // one zmq endpoint per rank
	Ranks     int      `yaml:"ranks"`     // rank count of an in-process run

	StatusPort int           `yaml:"status_port"` // 0 disables the status server
	UIRate     time.Duration `yaml:"ui_rate"`
	RecordDir  string        `yaml:"record_dir"` // empty disables the record log
	Journal    string        `yaml:"journal"`    // postgres DSN, empty disables
	LogEvery   int           `yaml:"log_every"`

	Quiet bool `yaml:"quiet"`
	Debug bool `yaml:"debug"`
}

// Default returns the parameters of the reference filter.
func Default() AppConfig {
	return AppConfig{
		Pipeline:  "composite",
		BlurSize:  5,
		Threshold: 20,
		Workers:   2,
		Ranks:     4,
		UIRate:    time.Second,
		LogEvery:  100,
	}
}

// Load overlays the YAML file at path on the defaults. Unknown keys are an
// error.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects parameters no rank could run with.
func (c AppConfig) Validate() error {
	switch c.Pipeline {
	case "composite", "edge":
	default:
		return fmt.Errorf("pipeline %q: want composite or edge", c.Pipeline)
	}
	if c.BlurSize < 1 {
		return fmt.Errorf("blur_size %d: must be at least 1", c.BlurSize)
	}
	if c.Threads < 0 {
		return fmt.Errorf("threads %d: must not be negative", c.Threads)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers %d: must be at least 1", c.Workers)
	}
	if c.Ranks < 1 {
		return fmt.Errorf("ranks %d: must be at least 1", c.Ranks)
	}
	if c.StatusPort < 0 || c.StatusPort > 65535 {
		return fmt.Errorf("status_port %d out of range", c.StatusPort)
	}
	if c.LogEvery < 1 {
		return fmt.Errorf("log_every %d: must be at least 1", c.LogEvery)
	}
	if c.UIRate <= 0 {
		return fmt.Errorf("ui_rate %s: must be positive", c.UIRate)
	}
	seen := make(map[string]int, len(c.Endpoints))
	for i, e := range c.Endpoints {
		if e == "" {
			return fmt.Errorf("endpoint %d is empty", i)
		}
		if j, ok := seen[e]; ok {
			return fmt.Errorf("endpoint %s listed for ranks %d and %d", e, j, i)
		}
		seen[e] = i
	}
	return nil
}
