package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bookfront/internal/config"

	"github.com/rs/zerolog"
)

// New builds the process logger from the logging section. Empty settings
// mean JSON lines at info level on stdout. The closer is non-nil only when
// the logger owns a file.
func New(cfg config.LoggingConfig, app config.AppConfig) (*zerolog.Logger, io.Closer, error) {
	sink, closer, err := sinkFor(cfg)
	if err != nil {
		return nil, nil, err
	}
	if normalize(cfg.Format) == "console" {
		sink = zerolog.ConsoleWriter{Out: sink, TimeFormat: time.RFC3339}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	fields := zerolog.New(sink).Level(levelOf(cfg.Level)).With().Timestamp()
	for _, f := range []struct{ key, value string }{
		{"app", app.Name},
		{"env", app.Environment},
		{"version", app.Version},
	} {
		// пустые поля не пишем
		if f.value != "" {
			fields = fields.Str(f.key, f.value)
		}
	}

	logger := fields.Logger()
	return &logger, closer, nil
}

// Component derives a child logger tagged with the component name.
func Component(base *zerolog.Logger, name string) *zerolog.Logger {
	if base == nil {
		nop := zerolog.Nop()
		return &nop
	}
	l := base.With().Str("component", name).Logger()
	return &l
}

func levelOf(raw string) zerolog.Level {
	level, err := zerolog.ParseLevel(normalize(raw))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func sinkFor(cfg config.LoggingConfig) (io.Writer, io.Closer, error) {
	switch normalize(cfg.Output) {
	case "", "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	case "file":
		return openLogFile(cfg.FilePath)
	default:
		return nil, nil, fmt.Errorf("unknown logging.output %q", cfg.Output)
	}
}

func openLogFile(path string) (io.Writer, io.Closer, error) {
	if path == "" {
		return nil, nil, fmt.Errorf("logging.output=file requires logging.file_path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return file, file, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
