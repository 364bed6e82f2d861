package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"wavesight/pkg/contracts/domain"
)

// Stage names reported through the progress sink and used as metric labels.
const (
	StageFilter      = "filter"
	StageMembership  = "membership"
	StageDemandMatch = "demand_match"
)

// DefaultPartialCLDArea is the inventory area code for partially picked
// case-load-device stock, the only area the analysis considers.
const DefaultPartialCLDArea = "Partial CLD"

// Config holds the tunable literals of the pipeline.
type Config struct {
	// PartialCLDArea is the Area Code value that marks partial CLD stock.
	// Matched exactly after normalization.
	PartialCLDArea string
}

// DefaultConfig returns the pipeline configuration used by both binaries.
func DefaultConfig() Config {
	return Config{PartialCLDArea: DefaultPartialCLDArea}
}

// Input carries the three parsed reports and the processing date for one
// analysis run. The pipeline never mutates any of the slices; each stage
// allocates a fresh result, so one Input may back concurrent runs.
type Input struct {
	Inventory      []domain.InventoryRecord
	Conveyor       []domain.ConveyorEvent
	Outbound       []domain.OutboundDemandLine
	ProcessingDate time.Time
}

// DemandKey identifies a normalized SKU/batch pair. A blank batch is a valid
// key component: blank matches blank, never a non-blank value.
type DemandKey struct {
	SKU   string
	Batch string
}

// Summary mirrors the run counts the original analyst tooling displayed.
type Summary struct {
	InventoryRows int `json:"inventory_rows"`
	AfterFilters  int `json:"after_filters"`
	NotFed        int `json:"not_fed"`
	Matched       int `json:"matched"`
	DemandKeys    int `json:"demand_keys"`
}

// Result holds the three derived tables. Each is a row subset of its
// upstream table with original row order preserved.
type Result struct {
	CleanInventory []domain.InventoryRecord
	NotFed         []domain.InventoryRecord
	NotFedDemanded []domain.InventoryRecord

	// DemandRef maps each demand key to the original-cased SKU+Batch
	// concatenation of its first occurrence in the outbound report. The
	// exporter uses it for the SBL Demand reference column.
	DemandRef map[DemandKey]string

	Summary Summary
}

// Analyzer runs the three-stage not-fed-but-demanded pipeline. It holds no
// per-run state; a single Analyzer is safe for concurrent runs.
type Analyzer struct {
	cfg    Config
	logger *slog.Logger
	sink   ProgressSink
}

// NewAnalyzer creates an analyzer. A nil logger falls back to slog.Default,
// a nil sink disables progress reporting.
func NewAnalyzer(cfg Config, logger *slog.Logger, sink ProgressSink) *Analyzer {
	if cfg.PartialCLDArea == "" {
		cfg.PartialCLDArea = DefaultPartialCLDArea
	}
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = NopSink{}
	}
	return &Analyzer{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "analysis")),
		sink:   sink,
	}
}

// Run executes filter, membership and demand-match in order and returns the
// derived tables with run counts. Empty inputs are not errors; they flow
// through to empty outputs. A zero processing date is a caller configuration
// error because the expiry predicate would be meaningless.
func (a *Analyzer) Run(ctx context.Context, in Input) (*Result, error) {
	if in.ProcessingDate.IsZero() {
		return nil, fmt.Errorf("analysis: processing date is required")
	}

	a.logger.InfoContext(ctx, "analysis run started",
		slog.Int("inventory_rows", len(in.Inventory)),
		slog.Int("conveyor_rows", len(in.Conveyor)),
		slog.Int("outbound_rows", len(in.Outbound)),
		slog.String("processing_date", in.ProcessingDate.Format("2006-01-02")))

	a.sink.StageStarted(ctx, StageFilter)
	clean := a.FilterInventory(in.Inventory, in.ProcessingDate)
	a.sink.StageCompleted(ctx, StageFilter, len(clean))

	a.sink.StageStarted(ctx, StageMembership)
	notFed := a.NotFedInventory(clean, in.Conveyor)
	a.sink.StageCompleted(ctx, StageMembership, len(notFed))

	a.sink.StageStarted(ctx, StageDemandMatch)
	keys, ref := DemandKeys(in.Outbound)
	matched := a.MatchDemand(notFed, keys)
	a.sink.StageCompleted(ctx, StageDemandMatch, len(matched))

	res := &Result{
		CleanInventory: clean,
		NotFed:         notFed,
		NotFedDemanded: matched,
		DemandRef:      ref,
		Summary: Summary{
			InventoryRows: len(in.Inventory),
			AfterFilters:  len(clean),
			NotFed:        len(notFed),
			Matched:       len(matched),
			DemandKeys:    len(keys),
		},
	}

	a.logger.InfoContext(ctx, "analysis run completed",
		slog.Int("after_filters", res.Summary.AfterFilters),
		slog.Int("not_fed", res.Summary.NotFed),
		slog.Int("matched", res.Summary.Matched),
		slog.Int("demand_keys", res.Summary.DemandKeys))

	return res, nil
}

// FilterInventory returns the rows satisfying all six inclusion predicates,
// in original order. Rows failing any predicate are dropped, never flagged;
// a missing or unparseable expiry fails the expiry predicate rather than
// raising an error, since the point is best-effort filtering of imperfect
// warehouse data.
func (a *Analyzer) FilterInventory(records []domain.InventoryRecord, processingDate time.Time) []domain.InventoryRecord {
	area := Normalize(a.cfg.PartialCLDArea)
	refDate := truncateToDay(processingDate)

	out := make([]domain.InventoryRecord, 0, len(records))
	for _, r := range records {
		if Normalize(r.Area) != area {
			continue
		}
		if Normalize(r.BinStatus) != "active" {
			continue
		}
		if Normalize(r.HUType) != "cartons" {
			continue
		}
		if !r.HasExpiry || truncateToDay(r.Expiry).Before(refDate) {
			continue
		}
		if Normalize(r.Quality) != "good" {
			continue
		}
		if Normalize(r.InclusionStatus) != "included" {
			continue
		}
		out = append(out, r)
	}
	return out
}

// NotFedInventory returns the clean rows whose HU code never appears in the
// conveyor feed. Pure set-difference by key; no conveyor data is merged in.
// Any appearance on the conveyor counts as fed regardless of event outcome.
func (a *Analyzer) NotFedInventory(clean []domain.InventoryRecord, events []domain.ConveyorEvent) []domain.InventoryRecord {
	fed := make(map[string]struct{}, len(events))
	for _, ev := range events {
		fed[Normalize(ev.HUCode)] = struct{}{}
	}

	out := make([]domain.InventoryRecord, 0, len(clean))
	for _, r := range clean {
		if _, ok := fed[Normalize(r.HUCode)]; ok {
			continue
		}
		out = append(out, r)
	}
	return out
}

// DemandKeys builds the distinct normalized SKU/batch key set from the
// outbound report, plus the first-occurrence original-cased concatenation
// per key. Duplicate demand lines collapse harmlessly.
func DemandKeys(lines []domain.OutboundDemandLine) (map[DemandKey]struct{}, map[DemandKey]string) {
	keys := make(map[DemandKey]struct{}, len(lines))
	ref := make(map[DemandKey]string, len(lines))
	for _, l := range lines {
		k := DemandKey{SKU: Normalize(l.SKUAllocated), Batch: Normalize(l.BatchAllocated)}
		if _, seen := keys[k]; !seen {
			keys[k] = struct{}{}
			ref[k] = strings.TrimSpace(l.SKUAllocated) + strings.TrimSpace(l.BatchAllocated)
		}
	}
	return keys, ref
}

// MatchDemand returns the not-fed rows whose SKU/batch pair appears in the
// demand key set. Composite-key membership, not a join.
func (a *Analyzer) MatchDemand(notFed []domain.InventoryRecord, keys map[DemandKey]struct{}) []domain.InventoryRecord {
	out := make([]domain.InventoryRecord, 0, len(notFed))
	for _, r := range notFed {
		k := DemandKey{SKU: Normalize(r.SKU), Batch: Normalize(r.Batch)}
		if _, ok := keys[k]; ok {
			out = append(out, r)
		}
	}
	return out
}

// RecordKey returns the demand key of an inventory record.
func RecordKey(r domain.InventoryRecord) DemandKey {
	return DemandKey{SKU: Normalize(r.SKU), Batch: Normalize(r.Batch)}
}

// truncateToDay drops the time-of-day component so the expiry comparison is
// a pure date comparison: stock expiring on the processing date still counts.
func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
