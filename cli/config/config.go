package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/framehub/types"
)

// Config represents a framehub.yaml configuration file.
// All values are optional and act as defaults for framehub serve flags.
// CLI flags always override config values.
type Config struct {
	// Session fixes the session ID. Empty generates one per run.
	Session string        `yaml:"session"`
	Log     LogConfig     `yaml:"log"`
	Bus     BusConfig     `yaml:"bus"`
	Frames  []FrameConfig `yaml:"frames"`
	Relay   RelayConfig   `yaml:"relay"`
	Adapter AdapterConfig `yaml:"adapter"`
	Journal JournalConfig `yaml:"journal"`
	Content ContentConfig `yaml:"content"`
}

// LogConfig holds logging defaults.
type LogConfig struct {
	Level string `yaml:"level"`
}

// BusConfig holds message bus settings.
type BusConfig struct {
	// LogSize is the number of debug log entries retained (default 100).
	LogSize int `yaml:"log_size"`
}

// FrameConfig declares one frame slot.
type FrameConfig struct {
	Service string `yaml:"service"`
	// Listen is the TCP address the slot accepts the frame on.
	Listen string `yaml:"listen"`
	// Origin restricts inbound messages to this origin. Empty trusts all.
	Origin string `yaml:"origin,omitempty"`
}

// RelayConfig wires app:commandSent to a frame's outbox.
type RelayConfig struct {
	// Service is the frame that receives relayed commands. Empty disables the relay.
	Service string `yaml:"service"`
}

// AdapterConfig holds downstream forwarder defaults.
type AdapterConfig struct {
	// Type is redis or webhook. Empty disables forwarding.
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
	// Events limits forwarding. Empty forwards the whole catalog.
	Events    []string `yaml:"events,omitempty"`
	QueueSize int      `yaml:"queue_size,omitempty"`
}

// JournalConfig holds journal storage defaults.
type JournalConfig struct {
	// Backend is fs, s3 or memory. Empty disables the journal.
	Backend       string   `yaml:"backend"`
	Path          string   `yaml:"path"`
	Region        string   `yaml:"region"`
	Endpoint      string   `yaml:"endpoint"`
	S3PathStyle   bool     `yaml:"s3_path_style"`
	Dataset       string   `yaml:"dataset"`
	BatchSize     int      `yaml:"batch_size"`
	FlushInterval Duration `yaml:"flush_interval"`
}

// ContentConfig holds remote content settings.
type ContentConfig struct {
	Timeout Duration `yaml:"timeout"`
	PyPIURL string   `yaml:"pypi_url,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate checks structural problems that would stop serve from starting.
// Unknown event names are not errors; see UnknownEvents.
func (c *Config) Validate() error {
	var errs []error

	if c.Bus.LogSize < 0 {
		errs = append(errs, fmt.Errorf("bus.log_size must be >= 0, got %d", c.Bus.LogSize))
	}

	seen := make(map[string]bool, len(c.Frames))
	for i, f := range c.Frames {
		switch {
		case f.Service == "":
			errs = append(errs, fmt.Errorf("frames[%d].service is required", i))
		case seen[f.Service]:
			errs = append(errs, fmt.Errorf("frames[%d]: duplicate service %q", i, f.Service))
		}
		seen[f.Service] = true
		if f.Listen == "" {
			errs = append(errs, fmt.Errorf("frames[%d].listen is required", i))
		}
	}

	if c.Relay.Service != "" && !seen[c.Relay.Service] {
		errs = append(errs, fmt.Errorf("relay.service %q is not a declared frame", c.Relay.Service))
	}

	switch c.Adapter.Type {
	case "":
	case "redis", "webhook":
		if c.Adapter.URL == "" {
			errs = append(errs, fmt.Errorf("adapter.url is required for %s", c.Adapter.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("adapter.type %q is not one of redis, webhook", c.Adapter.Type))
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		errs = append(errs, fmt.Errorf("adapter.retries must be >= 0, got %d", *c.Adapter.Retries))
	}

	switch c.Journal.Backend {
	case "", "memory":
	case "fs", "s3":
		if c.Journal.Path == "" {
			errs = append(errs, fmt.Errorf("journal.path is required for %s", c.Journal.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("journal.backend %q is not one of fs, s3, memory", c.Journal.Backend))
	}

	return errors.Join(errs...)
}

// UnknownEvents returns adapter.events entries outside the registry.
func (c *Config) UnknownEvents() []string {
	var out []string
	for _, e := range c.Adapter.Events {
		if !types.IsValidEvent(types.EventName(e)) {
			out = append(out, e)
		}
	}
	return out
}

// AdapterEvents converts adapter.events to event names.
func (c *Config) AdapterEvents() []types.EventName {
	if len(c.Adapter.Events) == 0 {
		return nil
	}
	out := make([]types.EventName, len(c.Adapter.Events))
	for i, e := range c.Adapter.Events {
		out[i] = types.EventName(e)
	}
	return out
}
