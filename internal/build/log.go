// Package build carries the daemon plumbing qbcore binaries share: a
// structured logging environment that fans every record out to the console
// and to a gzip-compressed rotating log file, handing out subsystem-tagged
// loggers from one root handler.
package build

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
	"github.com/jrick/logrotate/rotator"
)

const (
	// DefaultMaxLogFiles is how many rotated log files are kept on disk
	// when LogConfig doesn't say otherwise.
	DefaultMaxLogFiles = 10

	// DefaultMaxLogFileSize is the rotation threshold in megabytes when
	// LogConfig doesn't say otherwise.
	DefaultMaxLogFileSize = 20

	// DefaultLogFilename is the log file name used when LogConfig leaves
	// Filename empty.
	DefaultLogFilename = "qbcore.log"
)

// LogConfig describes one logging environment. The zero value of every
// field falls back to a usable default; only Dir is commonly set.
type LogConfig struct {
	// Dir is the directory the rotating log file lives in. It is created
	// if missing.
	Dir string

	// Filename names the active log file inside Dir.
	Filename string

	// MaxFiles bounds how many rotated files are kept.
	MaxFiles int

	// MaxFileSizeMB is the size a file may reach before rotation.
	MaxFileSizeMB int

	// Level is the initial level applied to both sinks.
	Level btclog.Level

	// Console is the non-file sink, os.Stdout unless overridden.
	Console io.Writer
}

// LogEnv is a running logging environment: one root handler teeing to the
// console and the rotating file, from which subsystem loggers are minted.
type LogEnv struct {
	root btclogv2.Handler
	file *rotatingWriter
}

// NewLogEnv builds the console-plus-rotating-file environment described by
// cfg and starts the file rotator.
func NewLogEnv(cfg LogConfig) (*LogEnv, error) {
	if cfg.Console == nil {
		cfg.Console = os.Stdout
	}
	if cfg.Filename == "" {
		cfg.Filename = DefaultLogFilename
	}
	if cfg.MaxFiles == 0 {
		cfg.MaxFiles = DefaultMaxLogFiles
	}
	if cfg.MaxFileSizeMB == 0 {
		cfg.MaxFileSizeMB = DefaultMaxLogFileSize
	}

	fw, err := newRotatingWriter(
		filepath.Join(cfg.Dir, cfg.Filename), cfg.MaxFiles,
		cfg.MaxFileSizeMB,
	)
	if err != nil {
		return nil, err
	}

	root := &tee{
		handlers: []btclogv2.Handler{
			btclogv2.NewDefaultHandler(cfg.Console),
			btclogv2.NewDefaultHandler(fw),
		},
	}
	root.SetLevel(cfg.Level)

	return &LogEnv{root: root, file: fw}, nil
}

// Logger mints a logger tagged with the given subsystem, backed by both
// sinks.
func (e *LogEnv) Logger(subsystem string) btclogv2.Logger {
	return btclogv2.NewSLogger(e.root.SubSystem(subsystem))
}

// RootLogger returns the untagged logger.
func (e *LogEnv) RootLogger() btclogv2.Logger {
	return btclogv2.NewSLogger(e.root)
}

// SetLevel adjusts the level across both sinks.
func (e *LogEnv) SetLevel(level btclog.Level) {
	e.root.SetLevel(level)
}

// Close stops the rotating file sink, flushing what it buffered. Records
// logged afterward still reach the console.
func (e *LogEnv) Close() error {
	return e.file.Close()
}

// tee is a btclog handler backed by several underlying handlers. A record
// is in scope when any sink wants it, and Handle only dispatches to the
// sinks that do, so the console and the file can sit at different levels.
type tee struct {
	level    btclog.Level
	handlers []btclogv2.Handler
}

var _ btclogv2.Handler = (*tee)(nil)

func (t *tee) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *tee) Handle(ctx context.Context, record slog.Record) error {
	for _, h := range t.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

func (t *tee) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := &slogTee{handlers: make([]slog.Handler, len(t.handlers))}
	for i, h := range t.handlers {
		out.handlers[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t *tee) WithGroup(name string) slog.Handler {
	out := &slogTee{handlers: make([]slog.Handler, len(t.handlers))}
	for i, h := range t.handlers {
		out.handlers[i] = h.WithGroup(name)
	}
	return out
}

func (t *tee) SubSystem(tag string) btclogv2.Handler {
	out := &tee{level: t.level, handlers: make([]btclogv2.Handler, len(t.handlers))}
	for i, h := range t.handlers {
		out.handlers[i] = h.SubSystem(tag)
	}
	return out
}

func (t *tee) WithPrefix(prefix string) btclogv2.Handler {
	out := &tee{level: t.level, handlers: make([]btclogv2.Handler, len(t.handlers))}
	for i, h := range t.handlers {
		out.handlers[i] = h.WithPrefix(prefix)
	}
	return out
}

func (t *tee) SetLevel(level btclog.Level) {
	for _, h := range t.handlers {
		h.SetLevel(level)
	}
	t.level = level
}

func (t *tee) Level() btclog.Level {
	return t.level
}

// slogTee is what tee's WithAttrs/WithGroup produce: those methods return
// plain slog.Handlers, which don't carry the btclog-specific surface.
type slogTee struct {
	handlers []slog.Handler
}

var _ slog.Handler = (*slogTee)(nil)

func (t *slogTee) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *slogTee) Handle(ctx context.Context, record slog.Record) error {
	for _, h := range t.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

func (t *slogTee) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := &slogTee{handlers: make([]slog.Handler, len(t.handlers))}
	for i, h := range t.handlers {
		out.handlers[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t *slogTee) WithGroup(name string) slog.Handler {
	out := &slogTee{handlers: make([]slog.Handler, len(t.handlers))}
	for i, h := range t.handlers {
		out.handlers[i] = h.WithGroup(name)
	}
	return out
}

// rotatingWriter is the file sink: an io.Writer feeding a jrick/logrotate
// rotator through a pipe, with rotated files gzip-compressed.
type rotatingWriter struct {
	pw *io.PipeWriter
}

func newRotatingWriter(path string, maxFiles, maxSizeMB int) (*rotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	// The rotator takes its threshold in KB.
	rot, err := rotator.New(path, int64(maxSizeMB)*1024, false, maxFiles)
	if err != nil {
		return nil, fmt.Errorf("creating log rotator: %w", err)
	}
	rot.SetCompressor(gzip.NewWriter(nil), ".gz")

	pr, pw := io.Pipe()
	go func() {
		// The rotator is the log destination, so its own failure can only
		// go to stderr.
		if err := rot.Run(pr); err != nil {
			fmt.Fprintf(os.Stderr, "log rotator stopped: %v\n", err)
		}
	}()

	return &rotatingWriter{pw: pw}, nil
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

// Close closes the pipe's write end, which stops the rotator goroutine
// after it flushes.
func (w *rotatingWriter) Close() error {
	return w.pw.Close()
}
