package exporter

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"wavesight/internal/analysis"
	"wavesight/pkg/contracts/domain"
)

func sampleSections() []domain.Table {
	invHeader := domain.Row{"HU Code", "Sku Code", "Batch"}
	return []domain.Table{
		{Name: analysis.SectionCleanInventory, Header: invHeader, Rows: []domain.Row{
			{"H1", "S1", "B1"},
			{"H2", "S2", "B2"},
		}},
		{Name: analysis.SectionNotFed, Header: invHeader, Rows: []domain.Row{
			{"H1", "S1", "B1"},
		}},
		{Name: analysis.SectionNotFedDemanded, Header: invHeader, Rows: []domain.Row{
			{"H1", "S1", "B1"},
		}},
		{Name: analysis.SectionConveyorRaw, Header: domain.Row{"InnerHU"}, Rows: []domain.Row{
			{"H2"},
		}},
		{Name: analysis.SectionOutboundRaw, Header: domain.Row{"Sku", "Batch Allocated"}, Rows: nil},
	}
}

func TestWorkbookWriter_Write(t *testing.T) {
	sections := sampleSections()
	refs := []analysis.RowReference{{SBLDemand: "S1B1"}}

	var buf bytes.Buffer
	require.NoError(t, NewWorkbookWriter(nil).Write(&buf, sections, refs))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{
		analysis.SectionCleanInventory,
		analysis.SectionNotFed,
		analysis.SectionNotFedDemanded,
		analysis.SectionConveyorRaw,
		analysis.SectionOutboundRaw,
	}, f.GetSheetList())

	rows, err := f.GetRows(analysis.SectionCleanInventory)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"HU Code", "Sku Code", "Batch"}, rows[0])
	assert.Equal(t, []string{"H2", "S2", "B2"}, rows[2])

	// Final sheet carries the two appended reference columns.
	rows, err = f.GetRows(analysis.SectionNotFedDemanded)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"HU Code", "Sku Code", "Batch", "Conveyor_HU", "SBL Demand"}, rows[0])
	require.Len(t, rows[1], 5)
	assert.Equal(t, "", rows[1][3])
	assert.Equal(t, "S1B1", rows[1][4])

	// Empty section renders header-only.
	rows, err = f.GetRows(analysis.SectionOutboundRaw)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Sku", "Batch Allocated"}, rows[0])
}

func TestWorkbookWriter_DoesNotMutateSections(t *testing.T) {
	sections := sampleSections()
	refs := []analysis.RowReference{{SBLDemand: "S1B1"}}

	var buf bytes.Buffer
	require.NoError(t, NewWorkbookWriter(nil).Write(&buf, sections, refs))

	// Appending the reference columns must not grow the caller's header or
	// rows in place.
	assert.Len(t, sections[2].Header, 3)
	assert.Len(t, sections[2].Rows[0], 3)
}

func TestWorkbookWriter_RefMismatch(t *testing.T) {
	var buf bytes.Buffer
	err := NewWorkbookWriter(nil).Write(&buf, sampleSections(), []analysis.RowReference{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reference columns")
}

func TestWorkbookFilename(t *testing.T) {
	now := time.Date(2024, 3, 5, 14, 30, 9, 0, time.UTC)
	assert.Equal(t, "Not_Fed_and_Demanded_20240305_143009.xlsx", WorkbookFilename(now))
}
