package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/opstate/controller"
	"github.com/tailored-agentic-units/opstate/observability"
	"github.com/tailored-agentic-units/opstate/source"
)

const maxBodyBytes = 1 << 20

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	var (
		cfgPath string
		verbose bool
	)

	root := &cobra.Command{
		Use:     "statewatch",
		Short:   "Observe async operation states in a terminal UI",
		Version: getVersion(),
		Long: strings.TrimSpace(`
Statewatch drives an operation-state controller against a real data source
and renders every transition: loading with stale data, success, and errors
that keep the last good value on screen.
`),
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default: ~/.config/statewatch/config.toml)")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "log verbose controller events")

	root.AddCommand(newFetchCmd(&cfgPath, &verbose))
	root.AddCommand(newWatchCmd(&cfgPath, &verbose))

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "statewatch: %v\n", err)
		os.Exit(1)
	}
}

func newFetchCmd(cfgPath *string, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <url>",
		Short: "Drive a single-shot HTTP fetch; press r to reload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			obs, closeLog, err := newLogObserver(cfg, *verbose)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			url := args[0]
			client := &http.Client{Timeout: cfg.RequestTimeout}
			fetch := func(ctx context.Context) (string, error) {
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
				if err != nil {
					return "", err
				}
				resp, err := client.Do(req)
				if err != nil {
					return "", err
				}
				defer resp.Body.Close()
				if resp.StatusCode >= 400 {
					return "", fmt.Errorf("%s returned %s", url, resp.Status)
				}
				body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
				if err != nil {
					return "", err
				}
				return string(body), nil
			}

			ctrl := controller.NewFetcher(ctx, fetch,
				&controller.Config{AutoStart: true, WatchBuffer: cfg.WatchBuffer},
				controller.WithObserver[string](obs))
			defer ctrl.Close()

			return runUI(ctx, uiOptions[string]{
				Title:   "fetch " + url,
				Initial: ctrl.State(),
				Sub:     ctrl.Watch(),
				Reload:  func(useCached bool) { ctrl.Load(ctx, useCached) },
				SetIdle: ctrl.SetIdle,
				Render:  renderBody,
			})
		},
	}
}

func newWatchCmd(cfgPath *string, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <path>",
		Short: "Stream a file's contents; every write is a new success state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			obs, closeLog, err := newLogObserver(cfg, *verbose)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			path := args[0]
			ctrl := controller.NewStreamer(ctx, source.WatchFile(path),
				&controller.Config{AutoStart: true, WatchBuffer: cfg.WatchBuffer},
				controller.WithObserver[[]byte](obs))
			defer ctrl.Close()

			return runUI(ctx, uiOptions[[]byte]{
				Title:   "watch " + path,
				Initial: ctrl.State(),
				Sub:     ctrl.Watch(),
				Reload:  func(useCached bool) { ctrl.Listen(ctx, useCached) },
				SetIdle: ctrl.SetIdle,
				Render:  func(b []byte) string { return renderBody(string(b)) },
			})
		},
	}
}

// newLogObserver routes controller events to the log file; the TUI owns the
// terminal.
func newLogObserver(cfg config, verbose bool) (observability.Observer, func(), error) {
	if cfg.LogFile == "" {
		return observability.NoOpObserver{}, func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	logger := zerolog.New(file).With().Timestamp().Logger()
	if !verbose {
		logger = logger.Level(zerolog.InfoLevel)
	}
	return observability.NewZerologObserver(logger), func() { file.Close() }, nil
}

// renderBody trims a payload to a screenful.
func renderBody(body string) string {
	const maxLines = 16
	lines := strings.Split(strings.TrimRight(body, "\n"), "\n")
	if len(lines) > maxLines {
		lines = append(lines[:maxLines], "…")
	}
	return strings.Join(lines, "\n")
}
