package cliapp

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the demo scenario file cmd/watchtool reads: the configured
// set of target device names plus the watch/watchdog item definitions,
// given a concrete YAML file format with strict-decode validation.
type Config struct {
	// BasePeriodMS is the watch engine's base sampling period. Zero
	// resolves to watch.DefaultBasePeriodMS.
	BasePeriodMS uint64 `yaml:"base_period_ms"`

	// Interfaces are the target device names the traffic sampler
	// registers on a simulated "device up" event.
	Interfaces []string `yaml:"interfaces"`

	// WatchItems are the items registered with the state watcher.
	WatchItems []WatchItemConfig `yaml:"watch_items"`

	// WatchdogItems are the items registered with the adaptive watchdog.
	WatchdogItems []WatchdogItemConfig `yaml:"watchdog_items"`
}

// WatchItemConfig configures one watch.Item. Values is a scripted
// sequence of sampler outputs that repeats once exhausted, standing in
// for whatever real sampler a host would wire up instead.
type WatchItemConfig struct {
	Name       string  `yaml:"name"`
	PeriodMS   uint64  `yaml:"period_ms"`
	Hysteresis uint64  `yaml:"hysteresis"`
	Values     []int64 `yaml:"values"`
}

// WatchdogItemConfig configures one watchdog.Item.
type WatchdogItemConfig struct {
	Name      string `yaml:"name"`
	TimeoutMS uint64 `yaml:"timeout_ms"`
}

// LoadConfig reads and strictly decodes a scenario file, rejecting
// unknown fields so a typo'd key fails loudly instead of being silently
// ignored.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	for i, wi := range cfg.WatchItems {
		if len(wi.Values) == 0 {
			return nil, fmt.Errorf("watch_items[%d] %q: values must not be empty", i, wi.Name)
		}
	}
	for i, wd := range cfg.WatchdogItems {
		if wd.TimeoutMS == 0 {
			return nil, fmt.Errorf("watchdog_items[%d] %q: timeout_ms is required", i, wd.Name)
		}
	}

	return &cfg, nil
}
