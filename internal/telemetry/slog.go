package telemetry

import (
	"context"
	"fmt"
	"log/slog"
)

// SlogAPI implements API on top of log/slog. A zero SlogAPI writes to slog.Default().
type SlogAPI struct {
	Logger *slog.Logger
}

func (s SlogAPI) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// attrs turns report params into slog attributes, errors go under "err" and the rest are
// keyed by position.
func attrs(params []any) []slog.Attr {
	out := make([]slog.Attr, 0, len(params))
	for i, p := range params {
		if err, ok := p.(error); ok {
			out = append(out, slog.String("err", err.Error()))
			continue
		}
		out = append(out, slog.Any(fmt.Sprintf("params.%d", i), p))
	}
	return out
}

func (s SlogAPI) log(level slog.Level, msg string, lead []slog.Attr, params []any) {
	s.logger().LogAttrs(context.Background(), level, msg, append(lead, attrs(params)...)...)
}

func (s SlogAPI) ReportBroken(id string, params ...any) {
	s.log(slog.LevelError, "broken component", []slog.Attr{slog.String("id", id)}, params)
}

func (s SlogAPI) ReportWarning(id string, params ...any) {
	s.log(slog.LevelWarn, "warning", []slog.Attr{slog.String("id", id)}, params)
}

func (s SlogAPI) ReportDebug(message string, params ...any) {
	s.log(slog.LevelDebug, message, nil, params)
}

func (s SlogAPI) ReportCount(id string, count int64) {
	s.logger().LogAttrs(context.Background(), slog.LevelInfo, "count", slog.String("id", id), slog.Int64("n", count))
}
