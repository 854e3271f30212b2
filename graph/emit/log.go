package emit

import (
	"context"
	"log/slog"
	"sort"
)

// LogEmitter writes events through a structured slog.Logger.
//
// Events carrying an "error" in Meta are logged at Warn level; everything
// else at Info. Meta keys are flattened into a "meta" group in key order.
//
// Example text output (slog.TextHandler):
//
//	level=INFO msg=step_completed work_id=doc-1 step=2 node=generate meta.duration_ms=812
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter creates a LogEmitter. A nil logger uses slog.Default().
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger.With("system", "workflow")}
}

// Emit logs event.
func (l *LogEmitter) Emit(event Event) {
	level := slog.LevelInfo
	if event.Error() != "" {
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("work_id", event.WorkID),
		slog.Int("step", event.Step),
		slog.String("node", event.Node),
	}
	if len(event.Meta) > 0 {
		keys := make([]string, 0, len(event.Meta))
		for k := range event.Meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		meta := make([]any, 0, len(keys))
		for _, k := range keys {
			meta = append(meta, slog.Any(k, event.Meta[k]))
		}
		attrs = append(attrs, slog.Group("meta", meta...))
	}

	l.logger.LogAttrs(context.Background(), level, event.Msg, attrs...)
}
