// Package outputlog tees svn command lines and their results from the slog
// stream to a line sink (the UI "SVN output" channel).
package outputlog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"slices"
	"strings"
	"time"
)

// Line is one teed record.
type Line struct {
	Time    time.Time
	Level   slog.Level
	Group   string
	Message string
	// Attrs holds the record attributes rendered as key=value pairs.
	Attrs string
}

// Sink receives teed lines. It runs on the logging goroutine.
type Sink func(Line)

// Options selects which records are teed.
type Options struct {
	// Groups lists slog group names whose records are teed. A record in a
	// nested group matches its outermost group. Empty tees every group.
	Groups   []string
	MinLevel slog.Level
}

// TeeHandler wraps a base [slog.Handler] and copies matching records to a
// Sink. Matching records reach the sink even when the base handler filters
// them out by level.
type TeeHandler struct {
	base  slog.Handler
	sink  Sink
	opts  Options
	group string
	attrs []slog.Attr
}

// NewTeeHandler returns a TeeHandler delegating to base. A nil sink only
// delegates.
func NewTeeHandler(base slog.Handler, opts Options, sink Sink) *TeeHandler {
	return &TeeHandler{base: base, sink: sink, opts: opts}
}

func (h *TeeHandler) tees(level slog.Level) bool {
	if h.sink == nil || level < h.opts.MinLevel {
		return false
	}
	if len(h.opts.Groups) == 0 {
		return true
	}
	outer, _, _ := strings.Cut(h.group, ".")
	return slices.Contains(h.opts.Groups, outer)
}

func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.tees(level) || h.base.Enabled(ctx, level)
}

// Handle forwards the record to the base handler when it accepts the level,
// then hands it to the sink. A panicking sink is reported on stderr so the
// report does not loop back through slog.
func (h *TeeHandler) Handle(ctx context.Context, record slog.Record) error {
	var err error
	if h.base.Enabled(ctx, record.Level) {
		err = h.base.Handle(ctx, record)
	}
	if !h.tees(record.Level) {
		return err
	}

	line := Line{
		Time:    record.Time,
		Level:   record.Level,
		Group:   h.group,
		Message: record.Message,
		Attrs:   formatAttrs(h.attrs, record),
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				fmt.Fprintf(os.Stderr, "[output-log] sink panicked: %v\n%s\n", r, debug.Stack())
			}
		}()
		h.sink(line)
	}()
	return err
}

func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return &TeeHandler{
		base:  h.base.WithAttrs(attrs),
		sink:  h.sink,
		opts:  h.opts,
		group: h.group,
		attrs: append(slices.Clip(h.attrs), attrs...),
	}
}

func (h *TeeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &TeeHandler{
		base:  h.base.WithGroup(name),
		sink:  h.sink,
		opts:  h.opts,
		group: group,
		attrs: h.attrs,
	}
}

func formatAttrs(preset []slog.Attr, record slog.Record) string {
	var b strings.Builder
	write := func(a slog.Attr) {
		if a.Equal(slog.Attr{}) {
			return
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%v", a.Key, a.Value.Resolve())
	}
	for _, a := range preset {
		write(a)
	}
	record.Attrs(func(a slog.Attr) bool {
		write(a)
		return true
	})
	return b.String()
}

// String renders the line the way the output channel shows it.
func (l Line) String() string {
	var b strings.Builder
	b.WriteString(l.Time.Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(l.Message)
	if l.Attrs != "" {
		b.WriteString("  ")
		b.WriteString(l.Attrs)
	}
	return b.String()
}
