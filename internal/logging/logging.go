// Package logging builds the process logger. Every package logs through
// log/slog; the console format renders records with zerolog.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "15:04:05.000"

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a JSON logger, or a colored console logger when format is "console".
func New(w io.Writer, level, format string) *slog.Logger {
	lvl := ParseLevel(level)

	if format == "console" {
		cw := zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
		return slog.New(NewZerologHandler(zerolog.New(cw), lvl))
	}

	opts := &slog.HandlerOptions{Level: lvl}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ZerologHandler is a slog.Handler writing through a zerolog.Logger.
type ZerologHandler struct {
	logger zerolog.Logger
	level  slog.Leveler
	attrs  []slog.Attr
	group  string
}

func NewZerologHandler(logger zerolog.Logger, level slog.Leveler) *ZerologHandler {
	return &ZerologHandler{logger: logger, level: level}
}

func (h *ZerologHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *ZerologHandler) Handle(_ context.Context, r slog.Record) error {
	e := h.logger.WithLevel(zerologLevel(r.Level))
	if e == nil {
		return nil
	}

	if !r.Time.IsZero() {
		e.Time(zerolog.TimestampFieldName, r.Time)
	}
	for _, a := range h.attrs {
		addAttr(e, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(e, h.group, a)
		return true
	})

	e.Msg(r.Message)
	return nil
}

func (h *ZerologHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	cp.attrs = append(cp.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		cp.attrs = append(cp.attrs, a)
	}
	return &cp
}

func (h *ZerologHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	cp := *h
	if cp.group != "" {
		cp.group += "." + name
	} else {
		cp.group = name
	}
	return &cp
}

func addAttr(e *zerolog.Event, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}

	switch a.Value.Kind() {
	case slog.KindGroup:
		for _, ga := range a.Value.Group() {
			addAttr(e, key, ga)
		}
	case slog.KindString:
		e.Str(key, a.Value.String())
	case slog.KindInt64:
		e.Int64(key, a.Value.Int64())
	case slog.KindUint64:
		e.Uint64(key, a.Value.Uint64())
	case slog.KindFloat64:
		e.Float64(key, a.Value.Float64())
	case slog.KindBool:
		e.Bool(key, a.Value.Bool())
	case slog.KindDuration:
		e.Str(key, a.Value.Duration().String())
	case slog.KindTime:
		e.Time(key, a.Value.Time())
	default:
		switch v := a.Value.Any().(type) {
		case error:
			e.AnErr(key, v)
		case fmt.Stringer:
			e.Str(key, v.String())
		default:
			e.Interface(key, v)
		}
	}
}

func zerologLevel(l slog.Level) zerolog.Level {
	switch {
	case l >= slog.LevelError:
		return zerolog.ErrorLevel
	case l >= slog.LevelWarn:
		return zerolog.WarnLevel
	case l >= slog.LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}
