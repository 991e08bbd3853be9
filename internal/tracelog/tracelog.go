// Package tracelog builds the structured logger a cosmopolite.Client uses
// for its whole lifetime, and the handful of trace-level helpers that print
// raw outbound/inbound RPC bodies when COSMO_DEBUG is set — the Go
// equivalent of the original C client's cosmo_log(instance, "--> %s", ...)
// and "<-- %s" lines.
package tracelog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// LevelTrace sits below slog.LevelDebug and carries raw wire bodies. It's
// only emitted when a Logger is built with debug=true.
const LevelTrace = slog.Level(-8)

// ParseLevel converts a string to a slog.Level. Supported values: trace,
// debug, info, warn, error (case-insensitive); "" means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("tracelog: unknown level %q (valid: trace, debug, info, warn, error)", s)
	}
}

func replaceLevelNames(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok && level == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

// New builds the logger for one Client instance, tagged with instanceID so
// log lines from concurrent Clients in the same process can be told apart.
// When debug is true the handler's threshold drops to LevelTrace, which is
// what makes Outbound/Inbound calls actually print. A nil w defaults to
// os.Stderr, rendered as text on an interactive terminal and JSON otherwise
// (piped into a log aggregator, or into a test's bytes.Buffer).
func New(instanceID string, debug bool, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	level := slog.LevelInfo
	if debug {
		level = LevelTrace
	}

	opts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   debug,
		ReplaceAttr: replaceLevelNames,
	}

	var h slog.Handler
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	return slog.New(h).With("instance_id", instanceID)
}

// Outbound logs a raw outbound RPC body, mirroring the original client's
// "--> %s" trace line. nextCycle is rounded to 100ms and logged as the
// next_cycle attribute; the body size is humanized (for example "482 B").
func Outbound(l *slog.Logger, body []byte, nextCycle time.Duration) {
	l.Log(context.Background(), LevelTrace, "--> rpc",
		"size", humanize.Bytes(uint64(len(body))),
		"next_cycle", nextCycle.Round(100*time.Millisecond),
		"body", string(body),
	)
}

// Inbound logs a raw inbound RPC response body, mirroring "<-- %s".
func Inbound(l *slog.Logger, body []byte) {
	l.Log(context.Background(), LevelTrace, "<-- rpc",
		"size", humanize.Bytes(uint64(len(body))),
		"body", string(body),
	)
}
