// Package analysis implements the not-fed-but-demanded pipeline over the
// three warehouse reports: inventory rows are filtered by the wave inclusion
// rules, reduced to handling units absent from the conveyor feed, then
// intersected with outbound SKU/batch demand. The pipeline is a pure
// function of its inputs; it never mutates them and holds no state between
// runs, so results are reproducible for a given processing date.
package analysis
