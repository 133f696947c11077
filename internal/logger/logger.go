// Package logger provides the daemon's slog handler and rotating log file.
//
// Every record is rendered on a single line:
//
//	2006-01-02T15:04:05.000Z [LEVEL] message | key=value, key2=value2
//
// Two levels extend the slog set: LevelTrace (-8) for per-update tracing
// and LevelFail (12) for errors that stop the daemon.
package logger

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ///////////////////////////////////////////////
// Levels
// ///////////////////////////////////////////////

const (
	LevelTrace slog.Level = -8
	LevelDebug slog.Level = slog.LevelDebug
	LevelInfo  slog.Level = slog.LevelInfo
	LevelWarn  slog.Level = slog.LevelWarn
	LevelError slog.Level = slog.LevelError
	LevelFail  slog.Level = 12
)

// levelNames maps the accepted config spellings to levels.
var levelNames = map[string]slog.Level{
	"trace": LevelTrace,
	"debug": LevelDebug,
	"info":  LevelInfo,
	"warn":  LevelWarn,
	"error": LevelError,
	"fail":  LevelFail,
}

// levelName returns the bracketed label for a level.
func levelName(l slog.Level) string {
	switch {
	case l <= LevelTrace:
		return "TRACE"
	case l <= LevelDebug:
		return "DEBUG"
	case l <= LevelInfo:
		return "INFO"
	case l <= LevelWarn:
		return "WARN"
	case l <= LevelError:
		return "ERROR"
	default:
		return "FAIL"
	}
}

// ParseLevel converts a case-insensitive level name to a slog.Level.
// Unrecognized names yield LevelInfo.
func ParseLevel(s string) slog.Level {
	if l, ok := levelNames[strings.ToLower(s)]; ok {
		return l
	}
	return LevelInfo
}

// ValidLevel reports whether s names a known level.
func ValidLevel(s string) bool {
	_, ok := levelNames[strings.ToLower(s)]
	return ok
}

// ///////////////////////////////////////////////
// Handler
// ///////////////////////////////////////////////

// lineEnding is CRLF on Windows so the log opens cleanly in Notepad.
var lineEnding = "\n"

func init() {
	if runtime.GOOS == "windows" {
		lineEnding = "\r\n"
	}
}

// Handler is a slog.Handler producing the single-line format described in
// the package documentation. Handlers derived through WithAttrs and
// WithGroup share the parent's mutex.
type Handler struct {
	w     io.Writer
	mu    *sync.Mutex
	level slog.Level
	attrs []slog.Attr
	group string
}

// NewHandler creates a Handler writing records at or above level to w.
func NewHandler(w io.Writer, level slog.Level) *Handler {
	return &Handler{w: w, level: level, mu: &sync.Mutex{}}
}

// Enabled reports whether level passes the handler's threshold.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle formats r and writes it as one line.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Time.UTC().Format("2006-01-02T15:04:05.000Z"))
	b.WriteString(" [")
	b.WriteString(levelName(r.Level))
	b.WriteString("] ")
	b.WriteString(r.Message)

	sep := " | "
	write := func(a slog.Attr) {
		b.WriteString(sep)
		sep = ", "
		if h.group != "" {
			b.WriteString(h.group)
			b.WriteByte('.')
		}
		b.WriteString(a.Key)
		b.WriteByte('=')
		b.WriteString(a.Value.String())
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		write(a)
		return true
	})
	b.WriteString(lineEnding)

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

// WithAttrs returns a Handler that prepends attrs to every record.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &Handler{w: h.w, mu: h.mu, level: h.level, attrs: merged, group: h.group}
}

// WithGroup returns a Handler that prefixes attribute keys with name.
// Nested groups are joined with dots ("server.request.method").
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &Handler{w: h.w, mu: h.mu, level: h.level, attrs: h.attrs, group: group}
}

// ///////////////////////////////////////////////
// Logger Constructor
// ///////////////////////////////////////////////

// Options configures [NewLogger].
type Options struct {
	// Path is the log file location; rotated by lumberjack.
	Path string
	// Level is the minimum level written.
	Level slog.Level
	// MaxSizeMB is the size at which the file is rotated.
	MaxSizeMB int
	// Console, when non-nil, receives a copy of every line (foreground runs).
	Console io.Writer
}

// NewLogger creates a slog.Logger writing to a rotating log file.
// The returned io.Closer flushes and closes the file.
func NewLogger(opts Options) (*slog.Logger, io.Closer, error) {
	if opts.Path == "" {
		return nil, nil, fmt.Errorf("log path is empty")
	}
	lj := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: 3,
		MaxAge:     28,
	}

	var w io.Writer = lj
	if opts.Console != nil {
		w = io.MultiWriter(lj, opts.Console)
	}
	return slog.New(NewHandler(w, opts.Level)), lj, nil
}

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

// Trace logs at LevelTrace.
func Trace(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelTrace, msg, args...)
}

// Fail logs at LevelFail.
func Fail(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelFail, msg, args...)
}

// ReadTail returns the last n lines of the file at path, oldest first.
func ReadTail(path string, n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	ring := make([]string, n)
	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		ring[count%n] = scanner.Text()
		count++
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading log file: %w", err)
	}

	if count <= n {
		return strings.Join(ring[:count], "\n"), nil
	}
	start := count % n
	return strings.Join(append(ring[start:], ring[:start]...), "\n"), nil
}
