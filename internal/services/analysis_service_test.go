package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"wavesight/internal/analysis"
	apierrors "wavesight/internal/errors"
	"wavesight/internal/workbook"
)

func buildWorkbook(t *testing.T, sheet string, rows [][]interface{}) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	if sheet != "Sheet1" {
		_, err := f.NewSheet(sheet)
		require.NoError(t, err)
		require.NoError(t, f.DeleteSheet("Sheet1"))
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func inventoryWorkbook(t *testing.T) []byte {
	return buildWorkbook(t, workbook.DefaultInventorySheet, [][]interface{}{
		{"HU Code", "Sku Code", "Batch", "Area Code", "Bin Status",
			"HU Type", "Expiry Date", "Quality", "Inclusion Status"},
		// Survives all filters, not fed, demanded.
		{"H1", "S1", "B1", "Partial CLD", "Active", "Cartons", "2099-01-01", "Good", "Included"},
		// Survives filters but was fed to the conveyor.
		{"H2", "S2", "B2", "Partial CLD", "Active", "Cartons", "2099-01-01", "Good", "Included"},
		// Dropped by the area filter.
		{"H3", "S3", "B3", "Full CLD", "Active", "Cartons", "2099-01-01", "Good", "Included"},
	})
}

func conveyorWorkbook(t *testing.T) []byte {
	return buildWorkbook(t, "Sheet1", [][]interface{}{
		{"InnerHU"},
		{"H2"},
	})
}

func outboundWorkbook(t *testing.T) []byte {
	return buildWorkbook(t, "Sheet1", [][]interface{}{
		{"Sku", "Batch Allocated"},
		{"S1", "B1"},
	})
}

type serviceFixture struct {
	service *AnalysisService
	uploads *UploadStore
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	uploads := NewUploadStore(32<<20, time.Hour, slog.Default())
	service := NewAnalysisService(AnalysisServiceDeps{
		Uploads:  uploads,
		Parser:   workbook.NewParser(nil),
		Analyzer: analysis.NewAnalyzer(analysis.DefaultConfig(), slog.Default(), analysis.NopSink{}),
		Logger:   slog.Default(),
	})
	return &serviceFixture{service: service, uploads: uploads}
}

func (f *serviceFixture) storeAll(t *testing.T) (string, string, string) {
	t.Helper()

	inv, err := f.uploads.Put(KindInventory, "inv.xlsx", inventoryWorkbook(t))
	require.NoError(t, err)
	conv, err := f.uploads.Put(KindConveyor, "conv.xlsx", conveyorWorkbook(t))
	require.NoError(t, err)
	out, err := f.uploads.Put(KindOutbound, "sbl.xlsx", outboundWorkbook(t))
	require.NoError(t, err)
	return inv.ID, conv.ID, out.ID
}

func TestAnalysisService_Execute(t *testing.T) {
	f := newServiceFixture(t)
	invID, convID, outID := f.storeAll(t)

	run, err := f.service.Execute(context.Background(), RunRequest{
		InventoryID:    invID,
		ConveyorID:     convID,
		OutboundID:     outID,
		ProcessingDate: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		Wave:           "W-17",
	})
	require.NoError(t, err)

	assert.Equal(t, RunStatusCompleted, run.Status)
	assert.Equal(t, "W-17", run.Wave)
	assert.Equal(t, "2024-03-05", run.ProcessingDate)
	require.NotNil(t, run.CompletedAt)

	assert.Equal(t, 3, run.Summary.InventoryRows)
	assert.Equal(t, 2, run.Summary.AfterFilters)
	assert.Equal(t, 1, run.Summary.NotFed)
	assert.Equal(t, 1, run.Summary.Matched)
	assert.Equal(t, 1, run.Summary.DemandKeys)

	got, err := f.service.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
}

func TestAnalysisService_WorkbookDownload(t *testing.T) {
	f := newServiceFixture(t)
	invID, convID, outID := f.storeAll(t)

	run, err := f.service.Execute(context.Background(), RunRequest{
		InventoryID:    invID,
		ConveyorID:     convID,
		OutboundID:     outID,
		ProcessingDate: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	data, filename, err := f.service.Workbook(run.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Contains(t, filename, "Not_Fed_and_Demanded_")

	wb, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer wb.Close()
	assert.ElementsMatch(t, []string{
		analysis.SectionCleanInventory,
		analysis.SectionNotFed,
		analysis.SectionNotFedDemanded,
		analysis.SectionConveyorRaw,
		analysis.SectionOutboundRaw,
	}, wb.GetSheetList())
}

func TestAnalysisService_SectionCSV(t *testing.T) {
	f := newServiceFixture(t)
	invID, convID, outID := f.storeAll(t)

	run, err := f.service.Execute(context.Background(), RunRequest{
		InventoryID:    invID,
		ConveyorID:     convID,
		OutboundID:     outID,
		ProcessingDate: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	csv, err := f.service.SectionCSV(run.ID, analysis.SectionNotFedDemanded)
	require.NoError(t, err)
	assert.Contains(t, string(csv), "H1")

	_, err = f.service.SectionCSV(run.ID, "No_Such_Section")
	require.Error(t, err)
	var apiErr *apierrors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "NOT_FOUND", apiErr.ErrorCode)
}

func TestAnalysisService_UnknownUpload(t *testing.T) {
	f := newServiceFixture(t)

	run, err := f.service.Execute(context.Background(), RunRequest{
		InventoryID:    "missing",
		ConveyorID:     "missing",
		OutboundID:     "missing",
		ProcessingDate: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	assert.Equal(t, RunStatusFailed, run.Status)

	var apiErr *apierrors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "UPLOAD_NOT_FOUND", apiErr.ErrorCode)
}

func TestAnalysisService_ShapeErrorFailsRun(t *testing.T) {
	f := newServiceFixture(t)

	// Inventory workbook without the expected sheet name.
	inv, err := f.uploads.Put(KindInventory, "inv.xlsx",
		buildWorkbook(t, "Sheet1", [][]interface{}{{"HU Code"}}))
	require.NoError(t, err)
	conv, err := f.uploads.Put(KindConveyor, "conv.xlsx", conveyorWorkbook(t))
	require.NoError(t, err)
	out, err := f.uploads.Put(KindOutbound, "sbl.xlsx", outboundWorkbook(t))
	require.NoError(t, err)

	run, err := f.service.Execute(context.Background(), RunRequest{
		InventoryID:    inv.ID,
		ConveyorID:     conv.ID,
		OutboundID:     out.ID,
		ProcessingDate: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	assert.Equal(t, RunStatusFailed, run.Status)

	var shapeErr *workbook.ShapeError
	assert.True(t, errors.As(err, &shapeErr))

	// A failed run has no workbook to download.
	_, _, err = f.service.Workbook(run.ID)
	require.Error(t, err)
	var apiErr *apierrors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "RUN_NOT_COMPLETED", apiErr.ErrorCode)
}

// startNotifier hands out each run ID as soon as the running broadcast
// fires, the same way a websocket subscriber learns it.
type startNotifier struct {
	ids chan string
}

func (n *startNotifier) RunStatus(_ context.Context, runID, status, _ string) {
	if status == RunStatusRunning {
		select {
		case n.ids <- runID:
		default:
		}
	}
}

func TestAnalysisService_ConcurrentReadsSeeConsistentRun(t *testing.T) {
	notifier := &startNotifier{ids: make(chan string, 1)}

	uploads := NewUploadStore(32<<20, time.Hour, slog.Default())
	service := NewAnalysisService(AnalysisServiceDeps{
		Uploads:  uploads,
		Parser:   workbook.NewParser(nil),
		Analyzer: analysis.NewAnalyzer(analysis.DefaultConfig(), slog.Default(), analysis.NopSink{}),
		Logger:   slog.Default(),
		Notifier: notifier,
	})
	f := &serviceFixture{service: service, uploads: uploads}
	invID, convID, outID := f.storeAll(t)

	execDone := make(chan error, 1)
	go func() {
		_, err := service.Execute(context.Background(), RunRequest{
			InventoryID:    invID,
			ConveyorID:     convID,
			OutboundID:     outID,
			ProcessingDate: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		})
		execDone <- err
	}()

	var runID string
	select {
	case runID = <-notifier.ids:
	case <-time.After(5 * time.Second):
		t.Fatal("run never started")
	}

	// Poll the registry while the run executes. A completed status must
	// imply the workbook is already downloadable.
	deadline := time.After(5 * time.Second)
	for {
		run, err := service.Get(runID)
		require.NoError(t, err)
		if run.Status == RunStatusCompleted {
			data, filename, err := service.Workbook(runID)
			require.NoError(t, err)
			assert.NotEmpty(t, data)
			assert.NotEmpty(t, filename)
			break
		}
		select {
		case <-deadline:
			t.Fatal("run never completed")
		default:
		}
	}

	require.NoError(t, <-execDone)
}

func TestAnalysisService_RunNotFound(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.Get("nope")
	require.Error(t, err)

	var apiErr *apierrors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "RUN_NOT_FOUND", apiErr.ErrorCode)
}
