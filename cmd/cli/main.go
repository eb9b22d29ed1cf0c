// Command coderunner shows a markdown document and runs its python code
// blocks in a sandboxed interpreter, either in the terminal or in a browser.
//
// Usage:
//
//	coderunner tutorial.md
//	coderunner serve tutorial.md --addr :8080
//
// Keys (terminal):
//
//	up/down - select a code block
//	enter, r - run the selected block
//	c - copy the selected block
//	q - quit
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/mariozechner/coderunner/pkg/capture"
	"github.com/mariozechner/coderunner/pkg/clipboard"
	"github.com/mariozechner/coderunner/pkg/config"
	"github.com/mariozechner/coderunner/pkg/page"
	"github.com/mariozechner/coderunner/pkg/runner"
	"github.com/mariozechner/coderunner/pkg/sandbox"
	"github.com/mariozechner/coderunner/pkg/sandbox/docker"
	"github.com/mariozechner/coderunner/pkg/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg, envErr := config.FromEnv()

	root := &cobra.Command{
		Use:           "coderunner <document.md>",
		Short:         "Run the python code blocks of a markdown document",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envErr != nil {
				return envErr
			}
			if len(args) > 0 {
				cfg.Document = args[0]
			}
			cfg.ApplyDefaults()
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), cfg)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.Image, "image", cfg.Image, "kernel container image")
	flags.BoolVar(&cfg.PullImage, "pull", cfg.PullImage, "pull the kernel image if it is missing")
	flags.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "log file path")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (DEBUG, INFO, WARN, ERROR)")
	flags.DurationVar(&cfg.RunTimeout, "timeout", cfg.RunTimeout, "limit for a single run (0 disables)")
	flags.StringVar(&cfg.PythonVersion, "python-version", cfg.PythonVersion, "version reported by python --version")
	flags.BoolVar(&cfg.Prefetch, "prefetch", cfg.Prefetch, "start the interpreter in the background at startup")

	serve := &cobra.Command{
		Use:   "serve <document.md>",
		Short: "Serve the document as a web page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), cfg)
		},
	}
	serve.Flags().StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	root.AddCommand(serve)

	return root
}

// app holds the pieces shared by both front ends.
type app struct {
	doc      *page.Document
	launcher *docker.Launcher
	manager  *sandbox.Manager
	runner   *runner.Runner
	logFile  *os.File
}

func setup(ctx context.Context, cfg config.Config) (*app, error) {
	f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	handler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	slog.Info("Logging initialized", "level", level)

	doc, err := page.Load(cfg.Document)
	if err != nil {
		f.Close()
		return nil, err
	}
	slog.Info("Loaded document", "path", cfg.Document, "blocks", len(doc.Blocks))

	launcher, err := docker.New(docker.Options{Image: cfg.Image, Pull: cfg.PullImage})
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := launcher.Cleanup(ctx); err != nil {
		slog.Warn("Failed to remove leftover kernels", "error", err)
	}

	mgr := sandbox.NewManager(launcher.Load)
	r := runner.New(mgr, capture.New(capture.Python{}), runner.Options{
		PythonVersion: cfg.PythonVersion,
		Timeout:       cfg.RunTimeout,
	})
	if cfg.Prefetch {
		mgr.Prefetch(ctx)
	}

	return &app{doc: doc, launcher: launcher, manager: mgr, runner: r, logFile: f}, nil
}

func (a *app) Close() {
	if err := a.manager.Close(); err != nil {
		slog.Error("Failed to stop interpreter", "error", err)
	}
	if err := a.launcher.Close(); err != nil {
		slog.Error("Failed to close docker client", "error", err)
	}
	a.logFile.Close()
}

func runTUI(ctx context.Context, cfg config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	s := &sender{}
	m := newModel(ctx, a.doc, a.runner, a.manager, clipboard.NewSystem(os.Stderr), s.Send)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	s.set(p)

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running terminal UI: %w", err)
	}
	return nil
}

func runServer(ctx context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(a.doc, a.runner)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.Addr) }()
	fmt.Fprintf(os.Stderr, "Serving %s on http://%s\n", cfg.Document, cfg.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
