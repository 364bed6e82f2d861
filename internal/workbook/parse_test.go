package workbook

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// buildSheet builds a single-sheet workbook in memory.
func buildSheet(t *testing.T, sheet string, rows [][]interface{}) *bytes.Reader {
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
	return bytes.NewReader(buf.Bytes())
}

func inventoryHeader() []interface{} {
	return []interface{}{
		"HU Code", "Sku Code", "Batch", "Area Code", "Bin Status",
		"HU Type", "Expiry Date", "Quality", "Inclusion Status", "Qty",
	}
}

func TestParseInventory(t *testing.T) {
	r := buildSheet(t, DefaultInventorySheet, [][]interface{}{
		inventoryHeader(),
		{"H1", "S1", "B1", "Partial CLD", "Active", "Cartons", "2099-01-01", "Good", "Included", "24"},
		{"H2", "S2", "", "Full CLD", "Blocked", "Pallets", "", "Good", "Included", "6"},
		{"H3", "S3", "B3", "Partial CLD", "Active", "Cartons", "not a date", "Good", "Included", "1"},
	})

	sheet, err := NewParser(nil).ParseInventory(r)
	require.NoError(t, err)
	require.Len(t, sheet.Records, 3)
	assert.Len(t, sheet.Header, 10)

	first := sheet.Records[0]
	assert.Equal(t, "H1", first.HUCode)
	assert.Equal(t, "S1", first.SKU)
	assert.Equal(t, "B1", first.Batch)
	assert.Equal(t, "Partial CLD", first.Area)
	assert.Equal(t, "Active", first.BinStatus)
	assert.Equal(t, "Cartons", first.HUType)
	assert.True(t, first.HasExpiry)
	assert.Equal(t, 2099, first.Expiry.Year())
	assert.Equal(t, "Good", first.Quality)
	assert.Equal(t, "Included", first.InclusionStatus)
	// Passthrough keeps the unexamined Qty column.
	assert.Equal(t, "24", first.Cells[9])

	// Blank and unparseable expiry both flag the record as expiry-less.
	assert.False(t, sheet.Records[1].HasExpiry)
	assert.False(t, sheet.Records[2].HasExpiry)
}

func TestParseInventory_RowWiderThanHeader(t *testing.T) {
	r := buildSheet(t, DefaultInventorySheet, [][]interface{}{
		inventoryHeader(),
		{"H1", "S1", "B1", "Partial CLD", "Active", "Cartons", "2099-01-01", "Good", "Included", "24", "overflow"},
	})

	sheet, err := NewParser(nil).ParseInventory(r)
	require.NoError(t, err)
	require.Len(t, sheet.Records, 1)

	// Cells beyond the header width survive into the passthrough row.
	cells := sheet.Records[0].Cells
	require.Len(t, cells, 11)
	assert.Equal(t, "overflow", cells[10])
}

func TestParseInventory_SheetMissing(t *testing.T) {
	r := buildSheet(t, "Sheet1", [][]interface{}{inventoryHeader()})

	_, err := NewParser(nil).ParseInventory(r)
	require.Error(t, err)

	var shapeErr *ShapeError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, "inventory", shapeErr.Report)
	assert.Contains(t, err.Error(), DefaultInventorySheet)
	assert.Contains(t, err.Error(), "Sheet1") // lists available sheets
}

func TestParseInventory_RequiredColumnMissing(t *testing.T) {
	r := buildSheet(t, DefaultInventorySheet, [][]interface{}{
		{"HU Code", "Sku Code", "Batch", "Area Code", "Bin Status", "HU Type", "Expiry Date", "Quality"},
		{"H1", "S1", "B1", "Partial CLD", "Active", "Cartons", "2099-01-01", "Good"},
	})

	_, err := NewParser(nil).ParseInventory(r)
	var shapeErr *ShapeError
	require.ErrorAs(t, err, &shapeErr)
	assert.Contains(t, err.Error(), "Inclusion Status")
}

func TestParseInventory_HeaderVariationsAndShortRows(t *testing.T) {
	r := buildSheet(t, DefaultInventorySheet, [][]interface{}{
		{"hu code", " SKU CODE ", "batch", "AREA CODE", "bin status", "hu type", "expiry date", "quality", "inclusion status"},
		{"H1", "S1"}, // short row: remaining cells blank
	})

	sheet, err := NewParser(nil).ParseInventory(r)
	require.NoError(t, err)
	require.Len(t, sheet.Records, 1)
	assert.Equal(t, "H1", sheet.Records[0].HUCode)
	assert.Equal(t, "", sheet.Records[0].Batch)
	assert.Len(t, sheet.Records[0].Cells, 9)
}

func TestParseConveyor(t *testing.T) {
	tests := []struct {
		name    string
		header  []interface{}
		wantHU  string
		wantErr bool
	}{
		{name: "exact header", header: []interface{}{"Timestamp", "InnerHU"}, wantHU: "H1"},
		{name: "fallback header", header: []interface{}{"Timestamp", "Inner HU Code"}, wantHU: "H1"},
		{name: "no usable header", header: []interface{}{"Timestamp", "Pallet"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := buildSheet(t, "Sheet1", [][]interface{}{
				tt.header,
				{"2024-01-01 10:00", "H1"},
			})

			sheet, err := NewParser(nil).ParseConveyor(r)
			if tt.wantErr {
				var shapeErr *ShapeError
				require.ErrorAs(t, err, &shapeErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, sheet.Events, 1)
			assert.Equal(t, tt.wantHU, sheet.Events[0].HUCode)
		})
	}
}

func TestParseOutbound(t *testing.T) {
	r := buildSheet(t, "Sheet1", [][]interface{}{
		{"Order", "Sku", "Batch Allocated", "Qty"},
		{"O1", "S1", "B1", "10"},
		{"O2", "S2", "", "5"},
	})

	sheet, err := NewParser(nil).ParseOutbound(r)
	require.NoError(t, err)
	require.Len(t, sheet.Lines, 2)
	assert.Equal(t, "S1", sheet.Lines[0].SKUAllocated)
	assert.Equal(t, "B1", sheet.Lines[0].BatchAllocated)
	assert.Equal(t, "", sheet.Lines[1].BatchAllocated)
	assert.Equal(t, "O2", sheet.Lines[1].Cells[0])
}

func TestParseOutbound_EmptySheet(t *testing.T) {
	f := excelize.NewFile()
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())

	_, err := NewParser(nil).ParseOutbound(bytes.NewReader(buf.Bytes()))
	var shapeErr *ShapeError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, "outbound", shapeErr.Report)
}

func TestParseExpiry(t *testing.T) {
	tests := []struct {
		cell string
		ok   bool
	}{
		{"2099-01-01", true},
		{"01-15-25", true},
		{"15/01/2025", true},
		{"2025/01/15", true},
		{" 2099-01-01 ", true},
		{"", false},
		{"   ", false},
		{"n/a", false},
		{"99999", false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.cell), func(t *testing.T) {
			_, ok := parseExpiry(tt.cell)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
