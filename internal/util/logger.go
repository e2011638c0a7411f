// Package util provides logging setup and host introspection helpers
// shared across the Atto server.
package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// logFilePrefix names the daily log files. Retention pruning only ever
// touches files carrying this prefix, so a log directory shared with
// other artifacts stays intact.
const logFilePrefix = "atto_"

// LogConfig holds configuration for the logging system.
type LogConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxBackups int    `json:"max_backups"`
	Console    bool   `json:"console"`
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		Directory:  "logs",
		MaxBackups: 5,
		Console:    true,
	}
}

// InitLogger points the zerolog global logger at today's log file, plus
// a human-readable console writer when enabled. Dated files beyond the
// retention limit are pruned in the background.
func InitLogger(cfg LogConfig) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	logFile, logFilePath, err := openDailyLogFile(cfg.Directory)
	if err != nil {
		return err
	}

	writers := []io.Writer{logFile}
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		})
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Str("app", "atto").
		Caller().
		Logger()

	log.Info().
		Str("level", level.String()).
		Str("log_file", logFilePath).
		Msg("logger initialized")

	go func() {
		if removed := pruneOldLogs(cfg.Directory, cfg.MaxBackups); removed > 0 {
			log.Debug().Int("removed", removed).Msg("pruned old log files")
		}
	}()

	return nil
}

// openDailyLogFile creates the log directory if needed and opens today's
// file for appending, so restarts within a day share one file.
func openDailyLogFile(directory string) (*os.File, string, error) {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create log directory %s: %w", directory, err)
	}

	name := fmt.Sprintf("%s%s.log", logFilePrefix, time.Now().Format("2006-01-02"))
	path := filepath.Join(directory, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return file, path, nil
}

// pruneOldLogs deletes the oldest daily log files beyond maxBackups and
// reports how many were removed. The date embedded in the name sorts
// lexicographically, so name order is age order. maxBackups <= 0 means
// unlimited retention.
func pruneOldLogs(directory string, maxBackups int) int {
	if maxBackups <= 0 {
		return 0
	}

	entries, err := os.ReadDir(directory)
	if err != nil {
		return 0
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, logFilePrefix) || filepath.Ext(name) != ".log" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	removed := 0
	for len(names) > maxBackups {
		if err := os.Remove(filepath.Join(directory, names[0])); err == nil {
			removed++
		}
		names = names[1:]
	}
	return removed
}

// ComponentLogger creates a logger with a component name field.
func ComponentLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
