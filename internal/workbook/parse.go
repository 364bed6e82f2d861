package workbook

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"

	"wavesight/internal/analysis"
	"wavesight/pkg/contracts/domain"
)

// DefaultInventorySheet is the sheet of the inventory workbook the analysis
// reads. Other sheets in the same workbook are ignored.
const DefaultInventorySheet = "HU level"

// Column headers as the WMS exports them. Matching is normalized, so casing
// and padding variations in the reports still resolve.
const (
	colArea      = "Area Code"
	colBinStatus = "Bin Status"
	colHUType    = "HU Type"
	colQuality   = "Quality"
	colInclusion = "Inclusion Status"
	colHUCode    = "HU Code"
	colSKU       = "Sku Code"
	colBatch     = "Batch"
	colExpiry    = "Expiry Date"

	colInnerHU = "InnerHU"

	colOutSKU   = "Sku"
	colOutBatch = "Batch Allocated"
)

// ShapeError reports a workbook whose layout cannot serve the analysis at
// all: a missing sheet or a required column absent across the whole sheet.
// Unlike per-row anomalies, shape errors surface to the caller immediately.
type ShapeError struct {
	Report string
	Detail string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s report: %s", e.Report, e.Detail)
}

// InventorySheet is the parsed "HU level" sheet: the original header row plus
// one typed record per data row.
type InventorySheet struct {
	Header  domain.Row
	Records []domain.InventoryRecord
}

// ConveyorSheet is the parsed conveyor HU events report.
type ConveyorSheet struct {
	Header domain.Row
	Events []domain.ConveyorEvent
}

// OutboundSheet is the parsed outbound SBL report.
type OutboundSheet struct {
	Header domain.Row
	Lines  []domain.OutboundDemandLine
}

// Parser reads the three warehouse reports into typed records.
type Parser struct {
	logger         *slog.Logger
	inventorySheet string
}

// NewParser creates a parser reading the default inventory sheet name.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		logger:         logger.With(slog.String("component", "workbook")),
		inventorySheet: DefaultInventorySheet,
	}
}

// NewParserForSheet creates a parser reading the named inventory sheet
// instead of the default.
func NewParserForSheet(logger *slog.Logger, sheet string) *Parser {
	p := NewParser(logger)
	if sheet != "" {
		p.inventorySheet = sheet
	}
	return p
}

// ParseInventory reads the inventory workbook's "HU level" sheet. The sheet
// must exist and carry all nine inspected columns; rows with unparseable
// expiry dates are kept with HasExpiry unset so the filter stage drops them.
func (p *Parser) ParseInventory(r io.Reader) (*InventorySheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open inventory workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(p.inventorySheet)
	if err != nil {
		return nil, &ShapeError{
			Report: "inventory",
			Detail: fmt.Sprintf("sheet %q not found (available: %s)", p.inventorySheet, strings.Join(f.GetSheetList(), ", ")),
		}
	}

	header, data := splitHeader(rows)
	if header == nil {
		return nil, &ShapeError{Report: "inventory", Detail: "sheet is empty"}
	}

	idx, err := resolveColumns(header, "inventory", []string{
		colArea, colBinStatus, colHUType, colQuality, colInclusion,
		colHUCode, colSKU, colBatch, colExpiry,
	})
	if err != nil {
		return nil, err
	}

	sheet := &InventorySheet{Header: header}
	for _, row := range data {
		cells := padRow(row, len(header))
		expiry, ok := parseExpiry(cells[idx[colExpiry]])
		sheet.Records = append(sheet.Records, domain.InventoryRecord{
			HUCode:          cells[idx[colHUCode]],
			SKU:             cells[idx[colSKU]],
			Batch:           cells[idx[colBatch]],
			Area:            cells[idx[colArea]],
			BinStatus:       cells[idx[colBinStatus]],
			HUType:          cells[idx[colHUType]],
			Expiry:          expiry,
			HasExpiry:       ok,
			Quality:         cells[idx[colQuality]],
			InclusionStatus: cells[idx[colInclusion]],
			Cells:           cells,
		})
	}

	p.logger.Debug("parsed inventory sheet",
		slog.Int("columns", len(header)),
		slog.Int("rows", len(sheet.Records)))

	return sheet, nil
}

// ParseConveyor reads the conveyor HU events report from its first sheet.
// If the InnerHU header is absent it falls back to any header containing
// both "inner" and "hu", matching how site-specific exports rename it.
func (p *Parser) ParseConveyor(r io.Reader) (*ConveyorSheet, error) {
	header, data, err := firstSheet(r, "conveyor")
	if err != nil {
		return nil, err
	}

	huIdx := -1
	for i, h := range header {
		if analysis.Normalize(h) == analysis.Normalize(colInnerHU) {
			huIdx = i
			break
		}
	}
	if huIdx < 0 {
		for i, h := range header {
			n := analysis.Normalize(h)
			if strings.Contains(n, "inner") && strings.Contains(n, "hu") {
				huIdx = i
				p.logger.Warn("conveyor HU column resolved by fallback",
					slog.String("header", h))
				break
			}
		}
	}
	if huIdx < 0 {
		return nil, &ShapeError{Report: "conveyor", Detail: fmt.Sprintf("required column %q not found", colInnerHU)}
	}

	sheet := &ConveyorSheet{Header: header}
	for _, row := range data {
		cells := padRow(row, len(header))
		sheet.Events = append(sheet.Events, domain.ConveyorEvent{
			HUCode: cells[huIdx],
			Cells:  cells,
		})
	}
	return sheet, nil
}

// ParseOutbound reads the outbound SBL report from its first sheet.
func (p *Parser) ParseOutbound(r io.Reader) (*OutboundSheet, error) {
	header, data, err := firstSheet(r, "outbound")
	if err != nil {
		return nil, err
	}

	idx, err := resolveColumns(header, "outbound", []string{colOutSKU, colOutBatch})
	if err != nil {
		return nil, err
	}

	sheet := &OutboundSheet{Header: header}
	for _, row := range data {
		cells := padRow(row, len(header))
		sheet.Lines = append(sheet.Lines, domain.OutboundDemandLine{
			SKUAllocated:   cells[idx[colOutSKU]],
			BatchAllocated: cells[idx[colOutBatch]],
			Cells:          cells,
		})
	}
	return sheet, nil
}

// firstSheet opens a workbook and returns the header and data rows of its
// first sheet.
func firstSheet(r io.Reader, report string) (domain.Row, [][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s workbook: %w", report, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, &ShapeError{Report: report, Detail: "workbook has no sheets"}
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read %s sheet %q: %w", report, sheets[0], err)
	}

	header, data := splitHeader(rows)
	if header == nil {
		return nil, nil, &ShapeError{Report: report, Detail: "sheet is empty"}
	}
	return header, data, nil
}

// splitHeader takes the first non-blank row as the header and returns the
// remaining rows, with fully blank data rows dropped.
func splitHeader(rows [][]string) (domain.Row, [][]string) {
	start := -1
	for i, row := range rows {
		if !blankRow(row) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, nil
	}

	header := domain.Row(rows[start])
	var data [][]string
	for _, row := range rows[start+1:] {
		if blankRow(row) {
			continue
		}
		data = append(data, row)
	}
	return header, data
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// resolveColumns maps required header names to their positions. Every name
// must resolve somewhere in the header or the sheet has the wrong shape.
func resolveColumns(header domain.Row, report string, required []string) (map[string]int, error) {
	byName := make(map[string]int, len(header))
	for i, h := range header {
		n := analysis.Normalize(h)
		if _, taken := byName[n]; !taken {
			byName[n] = i
		}
	}

	idx := make(map[string]int, len(required))
	for _, name := range required {
		i, ok := byName[analysis.Normalize(name)]
		if !ok {
			return nil, &ShapeError{Report: report, Detail: fmt.Sprintf("required column %q not found", name)}
		}
		idx[name] = i
	}
	return idx, nil
}

// padRow extends a short row with empty cells so positional access by header
// index is always in bounds. Rows wider than the header keep their trailing
// cells; passthrough columns are re-exported verbatim.
func padRow(row []string, width int) domain.Row {
	if len(row) > width {
		width = len(row)
	}
	cells := make(domain.Row, width)
	copy(cells, row)
	return cells
}
