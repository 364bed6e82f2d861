package analysis

import "wavesight/pkg/contracts/domain"

// Section names of the exported workbook, in sheet order.
const (
	SectionCleanInventory = "Clean_Inventory"
	SectionNotFed         = "Not_Fed"
	SectionNotFedDemanded = "Not_Fed_and_Demanded"
	SectionConveyorRaw    = "Conveyor_Raw"
	SectionOutboundRaw    = "Outbound_Raw"
)

// Headers carries the original header rows of the three reports, needed to
// re-emit the sections with their source column order.
type Headers struct {
	Inventory domain.Row
	Conveyor  domain.Row
	Outbound  domain.Row
}

// Assemble packages the run output into the five named sections. Nothing is
// transformed here beyond labeling: each section is a faithful rendering of
// its source collection, and empty sections are valid header-only tables.
func Assemble(res *Result, in Input, h Headers) []domain.Table {
	return []domain.Table{
		{Name: SectionCleanInventory, Header: h.Inventory, Rows: recordRows(res.CleanInventory)},
		{Name: SectionNotFed, Header: h.Inventory, Rows: recordRows(res.NotFed)},
		{Name: SectionNotFedDemanded, Header: h.Inventory, Rows: recordRows(res.NotFedDemanded)},
		{Name: SectionConveyorRaw, Header: h.Conveyor, Rows: eventRows(in.Conveyor)},
		{Name: SectionOutboundRaw, Header: h.Outbound, Rows: demandRows(in.Outbound)},
	}
}

// RowReference holds the two reference columns appended to the final sheet
// at export: the conveyor HU (always blank, these units were never fed; the
// column survives for parity with the legacy analyst sheet) and the
// original-cased SKU+Batch concatenation of the matching demand line.
type RowReference struct {
	ConveyorHU string
	SBLDemand  string
}

// ReferenceColumns returns one RowReference per not-fed-but-demanded row,
// in row order.
func ReferenceColumns(res *Result) []RowReference {
	refs := make([]RowReference, 0, len(res.NotFedDemanded))
	for _, r := range res.NotFedDemanded {
		refs = append(refs, RowReference{SBLDemand: res.DemandRef[RecordKey(r)]})
	}
	return refs
}

func recordRows(records []domain.InventoryRecord) []domain.Row {
	rows := make([]domain.Row, 0, len(records))
	for _, r := range records {
		rows = append(rows, r.Cells)
	}
	return rows
}

func eventRows(events []domain.ConveyorEvent) []domain.Row {
	rows := make([]domain.Row, 0, len(events))
	for _, e := range events {
		rows = append(rows, e.Cells)
	}
	return rows
}

func demandRows(lines []domain.OutboundDemandLine) []domain.Row {
	rows := make([]domain.Row, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, l.Cells)
	}
	return rows
}
