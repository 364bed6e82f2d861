package analysis

import "context"

// ProgressSink receives stage lifecycle events during a run. The web server
// plugs the WebSocket broadcaster in here; the CLI uses the no-op sink.
type ProgressSink interface {
	StageStarted(ctx context.Context, stage string)
	StageCompleted(ctx context.Context, stage string, rows int)
}

// NopSink discards all progress events.
type NopSink struct{}

func (NopSink) StageStarted(context.Context, string)        {}
func (NopSink) StageCompleted(context.Context, string, int) {}

// MultiSink fans events out to several sinks in order.
type MultiSink []ProgressSink

func (m MultiSink) StageStarted(ctx context.Context, stage string) {
	for _, s := range m {
		s.StageStarted(ctx, stage)
	}
}

func (m MultiSink) StageCompleted(ctx context.Context, stage string, rows int) {
	for _, s := range m {
		s.StageCompleted(ctx, stage, rows)
	}
}
