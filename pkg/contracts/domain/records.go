package domain

import "time"

// Row holds the cells of one spreadsheet row in original column order.
// Derived tables re-emit these cells verbatim, so nothing outside the
// inspected columns is ever lost on export.
type Row []string

// Clone returns an independent copy of the row.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// InventoryRecord is one row of the inventory workbook's "HU level" sheet.
// Named fields cover the columns the analysis inspects; Cells carries the
// full original row for passthrough.
type InventoryRecord struct {
	HUCode          string    `json:"hu_code"`
	SKU             string    `json:"sku"`
	Batch           string    `json:"batch"`
	Area            string    `json:"area"`
	BinStatus       string    `json:"bin_status"`
	HUType          string    `json:"hu_type"`
	Expiry          time.Time `json:"expiry,omitempty"`
	HasExpiry       bool      `json:"has_expiry"`
	Quality         string    `json:"quality"`
	InclusionStatus string    `json:"inclusion_status"`
	Cells           Row       `json:"-"`
}

// ConveyorEvent is one row of the conveyor HU events report. Only the
// handling-unit code participates in the analysis.
type ConveyorEvent struct {
	HUCode string `json:"hu_code"`
	Cells  Row    `json:"-"`
}

// OutboundDemandLine is one row of the outbound SBL report.
type OutboundDemandLine struct {
	SKUAllocated   string `json:"sku_allocated"`
	BatchAllocated string `json:"batch_allocated"`
	Cells          Row    `json:"-"`
}

// Table is a named tabular section of the analysis output: a header row
// plus zero or more data rows. Empty tables are valid and render as
// header-only sheets.
type Table struct {
	Name   string `json:"name"`
	Header Row    `json:"header"`
	Rows   []Row  `json:"rows"`
}
