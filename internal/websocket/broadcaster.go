package websocket

import (
	"context"

	"wavesight/internal/infrastructure"
)

// StageEvent is the payload broadcast for each pipeline stage transition.
type StageEvent struct {
	Stage   string `json:"stage"`
	Rows    int    `json:"rows,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// RunEvent is the payload broadcast when a run changes state.
type RunEvent struct {
	RunID   string `json:"run_id"`
	Status  string `json:"status"`
	Detail  string `json:"detail,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// ProgressBroadcaster fans pipeline stage events out to websocket
// subscribers. It satisfies the analysis progress sink interface.
type ProgressBroadcaster struct {
	hub *Hub
}

// NewProgressBroadcaster wraps the hub as a progress sink.
func NewProgressBroadcaster(hub *Hub) *ProgressBroadcaster {
	return &ProgressBroadcaster{hub: hub}
}

// StageStarted broadcasts the start of a pipeline stage.
func (b *ProgressBroadcaster) StageStarted(ctx context.Context, stage string) {
	b.hub.Broadcast(TypeStageStarted, StageEvent{
		Stage:   stage,
		TraceID: infrastructure.GetTraceID(ctx),
	})
}

// StageCompleted broadcasts the completion of a stage with its row count.
func (b *ProgressBroadcaster) StageCompleted(ctx context.Context, stage string, rows int) {
	b.hub.Broadcast(TypeStageProgress, StageEvent{
		Stage:   stage,
		Rows:    rows,
		TraceID: infrastructure.GetTraceID(ctx),
	})
}

// RunStatus broadcasts a run state change.
func (b *ProgressBroadcaster) RunStatus(ctx context.Context, runID, status, detail string) {
	b.hub.Broadcast(TypeRunStatus, RunEvent{
		RunID:   runID,
		Status:  status,
		Detail:  detail,
		TraceID: infrastructure.GetTraceID(ctx),
	})
}
