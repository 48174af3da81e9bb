package tools

import (
	"context"
	"fmt"
)

// ProgressFunc receives progress notes from a running tool body.
type ProgressFunc func(note string)

type progressKey struct{}

// WithProgress attaches a progress sink to the context. Tool bodies report
// through ReportProgress; without a sink the notes are discarded.
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

// ReportProgress emits one progress note from a tool body.
func ReportProgress(ctx context.Context, format string, args ...any) {
	fn, _ := ctx.Value(progressKey{}).(ProgressFunc)
	if fn == nil {
		return
	}
	fn(fmt.Sprintf(format, args...))
}
