// Package logging builds the diagnostic logger of both binaries.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
)

// LevelEnv selects the log level when no flag overrides it.
const LevelEnv = "PLCSIM_LOG_LEVEL"

// Numeric levels, lowest is most verbose.
const (
	LevelTrace = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelNoPrint
)

// FromEnv is passed as Options.Level to read LevelEnv.
const FromEnv = -1

const slogTrace = slog.LevelDebug - 4

// Options configure New.
type Options struct {
	// Level is one of the numeric levels or FromEnv.
	Level int
	// Journal forces the systemd journal handler on.
	Journal bool
	// Out receives the text handler output, os.Stderr if nil.
	Out io.Writer
}

// Level resolves the numeric level, falling back to LevelEnv and then Warn.
func Level(l int) int {
	if l >= LevelTrace && l <= LevelNoPrint {
		return l
	}
	if v := os.Getenv(LevelEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= LevelTrace && n <= LevelNoPrint {
			return n
		}
	}
	return LevelWarn
}

// SlogLevel maps a numeric level to slog.
func SlogLevel(l int) slog.Level {
	switch l {
	case LevelTrace:
		return slogTrace
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelError + 100
	}
}

// New returns a logger writing text to opts.Out and, under systemd, to the
// journal.
func New(opts Options) *slog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	level := new(slog.LevelVar)
	level.Set(SlogLevel(Level(opts.Level)))

	underSystemd := runningAsService()
	var handlers []slog.Handler
	var text slog.Handler
	if !underSystemd || opts.Journal {
		text = slog.NewTextHandler(out, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: replaceTraceLevel,
		})
		handlers = append(handlers, text)
	}
	if underSystemd || opts.Journal {
		journal, err := newJournalHandler(level)
		if err != nil {
			if text != nil {
				r := slog.NewRecord(time.Now(), slog.LevelWarn, "new systemd journal handler", 0)
				r.Add("error", err)
				_ = text.Handle(context.Background(), r)
			}
		} else {
			handlers = append(handlers, journal)
		}
	}
	if len(handlers) == 0 {
		handlers = append(handlers, slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(slogmulti.Fanout(handlers...))
}

func replaceTraceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if l, ok := a.Value.Any().(slog.Level); ok && l <= slogTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

func toJournalKey(str string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, strings.ToUpper(str))
}
