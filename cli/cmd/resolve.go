package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framehub/cli/config"
	"github.com/pithecene-io/framehub/log"
)

// loadConfig reads --config when set. Without the flag, ./framehub.yaml is
// used if it exists; a missing default file is not an error and yields nil.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		if _, err := os.Stat(config.DefaultPath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, nil
			}
			return nil, fmt.Errorf("cannot stat %s: %w", config.DefaultPath, err)
		}
		path = config.DefaultPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config in %s: %w", path, err)
	}
	return cfg, nil
}

// configVal reads a field from cfg, returning the zero value when cfg is nil.
func configVal[T any](cfg *config.Config, get func(*config.Config) T) T {
	var zero T
	if cfg == nil {
		return zero
	}
	return get(cfg)
}

// resolveString returns the flag value when set on the command line, then the
// config value when non-empty, then the flag's default.
func resolveString(c *cli.Context, name, cfgVal string) string {
	if c.IsSet(name) || cfgVal == "" {
		return c.String(name)
	}
	return cfgVal
}

// resolveInt follows resolveString; a zero config value falls through.
func resolveInt(c *cli.Context, name string, cfgVal int) int {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Int(name)
	}
	return cfgVal
}

// resolveBool follows resolveString; only true config values apply.
func resolveBool(c *cli.Context, name string, cfgVal bool) bool {
	if c.IsSet(name) || !cfgVal {
		return c.Bool(name)
	}
	return cfgVal
}

// resolveDuration follows resolveString; a zero config value falls through.
func resolveDuration(c *cli.Context, name string, cfgVal time.Duration) time.Duration {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Duration(name)
	}
	return cfgVal
}

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// newLogger builds the command logger at the resolved --log-level.
func newLogger(c *cli.Context, cfg *config.Config, sessionID string) *log.Logger {
	level := resolveString(c, "log-level", configVal(cfg, func(c *config.Config) string { return c.Log.Level }))
	meta := &log.SessionMeta{SessionID: sessionID, Host: "dashboard"}
	return log.NewLoggerWithWriter(meta, os.Stderr, log.ParseLevel(level))
}
