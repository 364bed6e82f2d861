package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"wavesight/internal/analysis"
	apierrors "wavesight/internal/errors"
	"wavesight/internal/exporter"
	"wavesight/internal/infrastructure"
	"wavesight/internal/workbook"
	"wavesight/pkg/contracts/domain"
)

// Run states.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunRequest names the three uploads to analyze plus the run parameters.
type RunRequest struct {
	InventoryID    string
	ConveyorID     string
	OutboundID     string
	ProcessingDate time.Time
	Wave           string
}

// Run is one analysis execution and its retained output.
type Run struct {
	ID             string           `json:"id"`
	Status         string           `json:"status"`
	Wave           string           `json:"wave,omitempty"`
	ProcessingDate string           `json:"processing_date"`
	CreatedAt      time.Time        `json:"created_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	Summary        analysis.Summary `json:"summary"`
	Error          string           `json:"error,omitempty"`

	sections []domain.Table
	workbook []byte
	filename string
}

// RunNotifier receives run state transitions. The websocket broadcaster
// satisfies it; NopNotifier is used when no feed is wired.
type RunNotifier interface {
	RunStatus(ctx context.Context, runID, status, detail string)
}

// NopNotifier discards run events.
type NopNotifier struct{}

// RunStatus implements RunNotifier.
func (NopNotifier) RunStatus(context.Context, string, string, string) {}

// AnalysisService parses the three uploaded reports, runs the pipeline,
// and retains each run's sections and exported workbook for download.
type AnalysisService struct {
	uploads  *UploadStore
	parser   *workbook.Parser
	analyzer *analysis.Analyzer
	exporter *exporter.WorkbookWriter
	csv      *exporter.CSVWriter

	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *infrastructure.RunMetrics
	notifier RunNotifier

	mu   sync.RWMutex
	runs map[string]*Run

	now func() time.Time
}

// AnalysisServiceDeps carries the service's collaborators.
type AnalysisServiceDeps struct {
	Uploads  *UploadStore
	Parser   *workbook.Parser
	Analyzer *analysis.Analyzer
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Metrics  *infrastructure.RunMetrics
	Notifier RunNotifier
}

// NewAnalysisService wires the service. Tracer, Metrics and Notifier may be
// nil.
func NewAnalysisService(deps AnalysisServiceDeps) *AnalysisService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &AnalysisService{
		uploads:  deps.Uploads,
		parser:   deps.Parser,
		analyzer: deps.Analyzer,
		exporter: exporter.NewWorkbookWriter(logger),
		csv:      exporter.NewCSVWriter(logger),
		logger:   logger.With(slog.String("component", "analysis_service")),
		tracer:   deps.Tracer,
		metrics:  deps.Metrics,
		notifier: notifier,
		runs:     make(map[string]*Run),
		now:      time.Now,
	}
}

// Execute runs the pipeline synchronously against the named uploads and
// returns the finished run record.
func (s *AnalysisService) Execute(ctx context.Context, req RunRequest) (*Run, error) {
	if s.tracer != nil {
		var span trace.Span
		ctx, span = s.tracer.Start(ctx, "analysis.execute",
			trace.WithAttributes(attribute.String("wave", req.Wave)))
		defer span.End()
	}

	start := s.now()
	run := &Run{
		ID:             uuid.New().String(),
		Status:         RunStatusRunning,
		Wave:           req.Wave,
		ProcessingDate: req.ProcessingDate.Format("2006-01-02"),
		CreatedAt:      start,
	}
	s.mu.Lock()
	s.runs[run.ID] = run
	s.mu.Unlock()

	s.notifier.RunStatus(ctx, run.ID, RunStatusRunning, "")
	if s.metrics != nil {
		s.metrics.RunsTotal.Add(ctx, 1)
	}

	out, err := s.execute(ctx, req)
	done := s.now()

	// Concurrent readers learn the run ID from the running broadcast, so
	// every field written after publication must happen under the lock.
	s.mu.Lock()
	run.CompletedAt = &done
	if err != nil {
		run.Status = RunStatusFailed
		run.Error = err.Error()
	} else {
		run.Status = RunStatusCompleted
		run.Summary = out.summary
		run.sections = out.sections
		run.workbook = out.workbook
		run.filename = out.filename
	}
	s.mu.Unlock()

	if err != nil {
		s.notifier.RunStatus(ctx, run.ID, RunStatusFailed, err.Error())
		if s.metrics != nil {
			s.metrics.RunsFailed.Add(ctx, 1)
		}
		s.logger.ErrorContext(ctx, "analysis run failed",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()),
		)
		return s.snapshot(run), err
	}

	s.notifier.RunStatus(ctx, run.ID, RunStatusCompleted, "")
	if s.metrics != nil {
		s.metrics.RunSeconds.Record(ctx, done.Sub(start).Seconds())
	}
	s.logger.InfoContext(ctx, "analysis run completed",
		slog.String("run_id", run.ID),
		slog.Int("matched", out.summary.Matched),
		slog.String("duration", done.Sub(start).String()),
	)
	return s.snapshot(run), nil
}

// runOutput is the retained product of a successful execution.
type runOutput struct {
	summary  analysis.Summary
	sections []domain.Table
	workbook []byte
	filename string
}

func (s *AnalysisService) execute(ctx context.Context, req RunRequest) (*runOutput, error) {
	inventoryUp, err := s.uploads.Get(req.InventoryID, KindInventory)
	if err != nil {
		return nil, err
	}
	conveyorUp, err := s.uploads.Get(req.ConveyorID, KindConveyor)
	if err != nil {
		return nil, err
	}
	outboundUp, err := s.uploads.Get(req.OutboundID, KindOutbound)
	if err != nil {
		return nil, err
	}

	inventory, err := s.parser.ParseInventory(bytes.NewReader(inventoryUp.Data))
	if err != nil {
		return nil, err
	}
	conveyor, err := s.parser.ParseConveyor(bytes.NewReader(conveyorUp.Data))
	if err != nil {
		return nil, err
	}
	outbound, err := s.parser.ParseOutbound(bytes.NewReader(outboundUp.Data))
	if err != nil {
		return nil, err
	}

	in := analysis.Input{
		Inventory:      inventory.Records,
		Conveyor:       conveyor.Events,
		Outbound:       outbound.Lines,
		ProcessingDate: req.ProcessingDate,
	}

	res, err := s.analyzer.Run(ctx, in)
	if err != nil {
		return nil, err
	}

	sections := analysis.Assemble(res, in, analysis.Headers{
		Inventory: inventory.Header,
		Conveyor:  conveyor.Header,
		Outbound:  outbound.Header,
	})

	var buf bytes.Buffer
	if err := s.exporter.Write(&buf, sections, analysis.ReferenceColumns(res)); err != nil {
		return nil, fmt.Errorf("export workbook: %w", err)
	}

	return &runOutput{
		summary:  res.Summary,
		sections: sections,
		workbook: buf.Bytes(),
		filename: exporter.WorkbookFilename(s.now()),
	}, nil
}

// Get returns a snapshot of the run for id. Snapshots keep callers from
// observing a run mid-update; the retained slices are never mutated after
// the run completes, so sharing them is safe.
func (s *AnalysisService) Get(id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, apierrors.RunNotFoundError(id)
	}
	return s.snapshotLocked(run), nil
}

func (s *AnalysisService) snapshot(run *Run) *Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(run)
}

func (s *AnalysisService) snapshotLocked(run *Run) *Run {
	copied := *run
	return &copied
}

// Workbook returns the exported workbook bytes and download filename for a
// completed run.
func (s *AnalysisService) Workbook(id string) ([]byte, string, error) {
	run, err := s.Get(id)
	if err != nil {
		return nil, "", err
	}
	if run.Status != RunStatusCompleted {
		return nil, "", apierrors.New(409, "RUN_NOT_COMPLETED",
			fmt.Sprintf("run %s is %s", id, run.Status))
	}
	return run.workbook, run.filename, nil
}

// SectionCSV renders one section of a completed run as CSV.
func (s *AnalysisService) SectionCSV(id, section string) ([]byte, error) {
	run, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if run.Status != RunStatusCompleted {
		return nil, apierrors.New(409, "RUN_NOT_COMPLETED",
			fmt.Sprintf("run %s is %s", id, run.Status))
	}

	for _, table := range run.sections {
		if table.Name == section {
			var buf bytes.Buffer
			if err := s.csv.WriteTable(&buf, table, exporter.WriteOptions{BOMPrefix: true}); err != nil {
				return nil, fmt.Errorf("render csv: %w", err)
			}
			return buf.Bytes(), nil
		}
	}
	return nil, apierrors.NotFoundError("section " + section)
}
