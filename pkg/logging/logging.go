// Package logging configures the process wide slog logger.
package logging

import (
	"cmp"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/officedev/addin-telemetry/pkg/paths"
)

const (
	DefaultLogFileName = "addin-telemetry.debug.log"
	DefaultMaxSizeMB   = 10
	DefaultMaxBackups  = 3
)

// Options selects where logs go.
type Options struct {
	// Debug writes debug level logs to a rotating file.
	Debug bool
	// Verbose writes logs to Stderr.
	Verbose bool
	// LogFile overrides the debug log location and implies Debug.
	LogFile string
	// Stderr receives verbose output. Defaults to os.Stderr.
	Stderr io.Writer
}

func (o Options) fileLogging() bool {
	return o.Debug || strings.TrimSpace(o.LogFile) != ""
}

// LogFilePath returns the file debug logs are written to.
func (o Options) LogFilePath() string {
	return cmp.Or(strings.TrimSpace(o.LogFile), filepath.Join(paths.GetDataDir(), DefaultLogFileName))
}

// New builds a logger for opts. The returned closer releases the log file,
// if one was opened.
//
// With neither Debug nor Verbose, every record is discarded.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	stderr := cmp.Or[io.Writer](opts.Stderr, os.Stderr)

	if !opts.fileLogging() {
		if !opts.Verbose {
			return slog.New(slog.DiscardHandler), nopCloser{}, nil
		}
		return newTintLogger(stderr, slog.LevelInfo, !isTerminal(stderr)), nopCloser{}, nil
	}

	path := opts.LogFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, err
	}

	logFile := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    DefaultMaxSizeMB,
		MaxBackups: DefaultMaxBackups,
	}

	if opts.Verbose {
		return newTintLogger(io.MultiWriter(stderr, logFile), slog.LevelDebug, true), logFile, nil
	}
	return slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug})), logFile, nil
}

// Setup is New followed by slog.SetDefault.
func Setup(opts Options) (io.Closer, error) {
	logger, closer, err := New(opts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return closer, nil
}

func newTintLogger(w io.Writer, level slog.Level, noColor bool) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    noColor,
	}))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
