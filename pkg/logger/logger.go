// Package logger configures the process-wide slog default: a level, an
// output format, and a filter that mutes third-party dependency logging
// (every provider SDK and httpclient's retry chatter) unless the level is
// DEBUG, so a gateway operator running at INFO only sees the gateway's own
// request/router/provider log lines.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

var defaultLogger *slog.Logger

const gatewayPackagePrefix = "github.com/litellm-go/gateway"

// ParseLevel converts the --log-level flag's value ("debug", "info",
// "warn"/"warning", "error") into an slog.Level. Anything else defaults to
// Warn rather than erroring, so a typo doesn't fail boot.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, nil
	}
}

// filteringHandler drops records from outside the gateway's own packages
// once the configured level is above Debug. At Debug, everything passes
// through unfiltered — that's the level an operator reaches for precisely
// to see what a provider SDK or dependency is doing underneath a call.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level < h.minLevel {
		return false
	}
	return h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug {
		return h.handler.Handle(ctx, record)
	}
	if h.isGatewayPackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{
		handler:  h.handler.WithAttrs(attrs),
		minLevel: h.minLevel,
	}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{
		handler:  h.handler.WithGroup(name),
		minLevel: h.minLevel,
	}
}

// isGatewayPackage reports whether pc's call site belongs to this module,
// as opposed to a provider SDK or other third-party dependency.
func (h *filteringHandler) isGatewayPackage(pc uintptr) bool {
	if pc == 0 {
		return false
	}

	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}

	fullName := fn.Name()
	file, _ := fn.FileLine(pc)

	return strings.Contains(fullName, gatewayPackagePrefix) ||
		strings.Contains(file, "gateway/")
}

func getLevelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "\033[31m" // red
	case level >= slog.LevelWarn:
		return "\033[33m" // yellow
	case level >= slog.LevelInfo:
		return "\033[36m" // cyan
	default:
		return "\033[90m" // gray
	}
}

func isTerminal(file *os.File) bool {
	if fileInfo, err := file.Stat(); err == nil {
		return (fileInfo.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

func normalizeLevel(level slog.Level) string {
	s := level.String()
	if s == "WARNING" {
		return "WARN"
	}
	return strings.ToUpper(s)
}

func writeAttrs(buf *strings.Builder, record slog.Record) {
	record.Attrs(func(a slog.Attr) bool {
		buf.WriteString(" ")
		buf.WriteString(a.Key)
		buf.WriteString("=")
		buf.WriteString(a.Value.String())
		return true
	})
}

// coloredTextHandler formats each record as a single colored line, for an
// interactive terminal running `gateway serve` directly rather than under
// a log-collecting supervisor.
type coloredTextHandler struct {
	handler  slog.Handler
	writer   io.Writer
	useColor bool
	simple   bool // level + message only, no timestamp
}

func (h *coloredTextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *coloredTextHandler) Handle(ctx context.Context, record slog.Record) error {
	if !h.useColor {
		return h.handler.Handle(ctx, record)
	}

	colorCode := getLevelColor(record.Level)
	resetCode := "\033[0m"

	var buf strings.Builder
	if !h.simple && !record.Time.IsZero() {
		buf.WriteString(record.Time.Format("2006/01/02 15:04:05 "))
	}
	buf.WriteString(colorCode)
	buf.WriteString(normalizeLevel(record.Level))
	buf.WriteString(resetCode)
	buf.WriteString(" ")
	buf.WriteString(record.Message)
	writeAttrs(&buf, record)
	buf.WriteString("\n")

	_, err := h.writer.Write([]byte(buf.String()))
	return err
}

func (h *coloredTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &coloredTextHandler{
		handler:  h.handler.WithAttrs(attrs),
		writer:   h.writer,
		useColor: h.useColor,
		simple:   h.simple,
	}
}

func (h *coloredTextHandler) WithGroup(name string) slog.Handler {
	return &coloredTextHandler{
		handler:  h.handler.WithGroup(name),
		writer:   h.writer,
		useColor: h.useColor,
		simple:   h.simple,
	}
}

// simpleTextHandler formats each record as level + message + attrs, no
// timestamp, for non-terminal output (a container's stdout, already
// timestamped by the log collector wrapping it) where a color escape code
// would just be noise.
type simpleTextHandler struct {
	handler slog.Handler
	writer  io.Writer
}

func (h *simpleTextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *simpleTextHandler) Handle(ctx context.Context, record slog.Record) error {
	var buf strings.Builder
	buf.WriteString(normalizeLevel(record.Level))
	buf.WriteString(" ")
	buf.WriteString(record.Message)
	writeAttrs(&buf, record)
	buf.WriteString("\n")

	_, err := h.writer.Write([]byte(buf.String()))
	return err
}

func (h *simpleTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &simpleTextHandler{
		handler: h.handler.WithAttrs(attrs),
		writer:  h.writer,
	}
}

func (h *simpleTextHandler) WithGroup(name string) slog.Handler {
	return &simpleTextHandler{
		handler: h.handler.WithGroup(name),
		writer:  h.writer,
	}
}

// Init installs the process-wide slog default at the given level and
// output. format selects "simple" (level + message, the default),
// "verbose" (timestamp + level + message + attrs), or anything else to
// fall back to slog's standard key=value TextHandler output. Color is
// added automatically when output is an interactive terminal.
func Init(level slog.Level, output *os.File, format string) {
	useColor := isTerminal(output)
	simple := format == "simple" || format == ""
	verbose := format == "verbose"

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && a.Value.String() == "WARNING" {
				return slog.String("level", "WARN")
			}
			return a
		},
	}

	baseHandler := slog.NewTextHandler(output, opts)

	var handler slog.Handler = baseHandler
	switch {
	case useColor && (simple || verbose):
		handler = &coloredTextHandler{
			handler:  baseHandler,
			writer:   output,
			useColor: true,
			simple:   simple,
		}
	case !useColor && simple:
		handler = &simpleTextHandler{
			handler: baseHandler,
			writer:  output,
		}
	}

	defaultLogger = slog.New(&filteringHandler{
		handler:  handler,
		minLevel: level,
	})
	slog.SetDefault(defaultLogger)
}

// OpenLogFile opens (creating if needed) a log file for append, returning
// the handle and a cleanup func to defer.
func OpenLogFile(path string) (*os.File, func(), error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}
	return file, func() { file.Close() }, nil
}

// GetLogger returns the process-wide logger, initializing it at Info
// level with simple stderr output if Init hasn't run yet.
func GetLogger() *slog.Logger {
	if defaultLogger == nil {
		Init(slog.LevelInfo, os.Stderr, "simple")
	}
	return defaultLogger
}
