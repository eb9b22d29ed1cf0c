// Package config holds runtime settings read from the environment and
// command line flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mariozechner/coderunner/pkg/sandbox/docker"
)

// ErrConfiguration is returned for invalid settings.
var ErrConfiguration = errors.New("invalid configuration")

const (
	DefaultAddr          = "127.0.0.1:8080"
	DefaultLogFile       = "coderunner.log"
	DefaultPythonVersion = "3.11.2"
)

type Config struct {
	// Document is the markdown file whose code blocks are runnable.
	Document string
	// Image is the kernel container image.
	Image string
	// PullImage pulls Image when it is not present locally.
	PullImage bool
	// Addr is the listen address of the web server.
	Addr          string
	LogFile       string
	LogLevel      string
	RunTimeout    time.Duration
	PythonVersion string
	// Prefetch starts the interpreter in the background at startup.
	Prefetch bool
}

// FromEnv returns a Config populated from CODERUNNER_* and LOG_LEVEL.
// Unset variables are left for ApplyDefaults.
func FromEnv() (Config, error) {
	c := Config{
		Image:         os.Getenv("CODERUNNER_IMAGE"),
		Addr:          os.Getenv("CODERUNNER_ADDR"),
		LogFile:       os.Getenv("CODERUNNER_LOG_FILE"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		PythonVersion: os.Getenv("CODERUNNER_PYTHON_VERSION"),
		Prefetch:      true,
	}
	if v := os.Getenv("CODERUNNER_RUN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return c, fmt.Errorf("%w: CODERUNNER_RUN_TIMEOUT: %v", ErrConfiguration, err)
		}
		c.RunTimeout = d
	}
	return c, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Image == "" {
		c.Image = docker.KernelImage
	}
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.LogFile == "" {
		c.LogFile = DefaultLogFile
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.PythonVersion == "" {
		c.PythonVersion = DefaultPythonVersion
	}
}

// Validate checks the config after defaults have been applied.
func (c Config) Validate() error {
	var errs []error
	if c.Document == "" {
		errs = append(errs, errors.New("document path is required"))
	}
	if c.RunTimeout < 0 {
		errs = append(errs, fmt.Errorf("run timeout must not be negative, got %s", c.RunTimeout))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

// ParseLevel maps DEBUG, INFO, WARN and ERROR (any case) to slog levels.
// An empty string is INFO.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
