package config

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/mariozechner/coderunner/pkg/sandbox/docker"
)

func TestFromEnv(t *testing.T) {
	t.Setenv("CODERUNNER_IMAGE", "custom:1")
	t.Setenv("CODERUNNER_ADDR", ":9000")
	t.Setenv("CODERUNNER_LOG_FILE", "/tmp/x.log")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CODERUNNER_RUN_TIMEOUT", "5s")
	t.Setenv("CODERUNNER_PYTHON_VERSION", "3.12.0")

	c, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if c.Image != "custom:1" || c.Addr != ":9000" || c.LogFile != "/tmp/x.log" {
		t.Errorf("unexpected config %+v", c)
	}
	if c.RunTimeout != 5*time.Second || c.PythonVersion != "3.12.0" || c.LogLevel != "debug" {
		t.Errorf("unexpected config %+v", c)
	}
}

func TestFromEnv_BadTimeout(t *testing.T) {
	t.Setenv("CODERUNNER_RUN_TIMEOUT", "soon")
	if _, err := FromEnv(); !errors.Is(err, ErrConfiguration) {
		t.Errorf("FromEnv() error = %v, want ErrConfiguration", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	var c Config
	c.ApplyDefaults()
	if c.Image != docker.KernelImage || c.Addr != DefaultAddr || c.LogFile != DefaultLogFile {
		t.Errorf("defaults not applied: %+v", c)
	}
	if c.LogLevel != "INFO" || c.PythonVersion != DefaultPythonVersion {
		t.Errorf("defaults not applied: %+v", c)
	}

	c = Config{Image: "keep"}
	c.ApplyDefaults()
	if c.Image != "keep" {
		t.Errorf("ApplyDefaults overwrote Image")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"ok", func(*Config) {}, false},
		{"no document", func(c *Config) { c.Document = "" }, true},
		{"negative timeout", func(c *Config) { c.RunTimeout = -time.Second }, true},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Config{Document: "doc.md"}
			c.ApplyDefaults()
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrConfiguration) {
				t.Errorf("error %v does not wrap ErrConfiguration", err)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"Error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
}
