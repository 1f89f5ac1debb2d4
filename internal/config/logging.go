package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// LevelTrace sits below [slog.LevelDebug] and carries raw model and
// provider payloads (full streamed chunks, tool-call markup before
// stripping). The value -8 is the conventional slot for a Trace level
// in slog extensions.
const LevelTrace = slog.Level(-8)

// ParseLogLevel maps the log_level config string to an [slog.Level].
// Matching is case-insensitive and trims surrounding whitespace; the
// empty string means Info.
//
//	trace           raw payloads (LevelTrace)
//	debug           per-request detail
//	info            normal operation (default)
//	warn, warning   degraded operation
//	error           failures only
//
// Unrecognized values return Info and an error, so a typo in
// config.yaml fails startup instead of silently logging at the wrong
// level.
func ParseLogLevel(s string) (slog.Level, error) {
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
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: trace, debug, info, warn, error)", s)
	}
}

// ReplaceLogLevelNames renders [LevelTrace] as "TRACE" in log output;
// slog itself would print the unnamed level as "DEBUG-4". The quill
// entrypoint passes it as [slog.HandlerOptions.ReplaceAttr] on every
// handler it builds, so trace lines stay greppable:
//
//	slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
//	    Level:       level,
//	    ReplaceAttr: config.ReplaceLogLevelNames,
//	}))
func ReplaceLogLevelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level, ok := a.Value.Any().(slog.Level)
		if ok && level == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}
