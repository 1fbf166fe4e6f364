package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// config captures the fields statewatch reads from its config file.
type config struct {
	RequestTimeout time.Duration
	WatchBuffer    int
	LogFile        string
}

const (
	defaultConfigPath     = "~/.config/statewatch/config.toml"
	defaultLogFile        = "~/.local/share/statewatch/statewatch.log"
	defaultRequestTimeout = 10 * time.Second
	defaultWatchBuffer    = 16
)

// loadConfig locates and parses the config file, falling back to defaults
// when missing.
func loadConfig(path string) (config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return config{}, err
	}

	cfg := config{
		RequestTimeout: defaultRequestTimeout,
		WatchBuffer:    defaultWatchBuffer,
		LogFile:        mustExpand(defaultLogFile),
	}

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
		WatchBuffer           int    `toml:"watch_buffer"`
		LogFile               string `toml:"log_file"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return config{}, fmt.Errorf("parse config: %w", err)
	}

	if raw.RequestTimeoutSeconds > 0 {
		cfg.RequestTimeout = time.Duration(raw.RequestTimeoutSeconds) * time.Second
	}
	if raw.WatchBuffer > 0 {
		cfg.WatchBuffer = raw.WatchBuffer
	}
	if logFile := strings.TrimSpace(raw.LogFile); logFile != "" {
		cfg.LogFile = mustExpand(logFile)
	}

	return cfg, nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
