package workbook

import (
	"strings"
	"time"
)

// expiryLayouts covers the renderings excelize produces for date cells plus
// the text formats seen in hand-edited exports. Order matters only for
// ambiguous short forms; the WMS emits day-first in those.
var expiryLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"01-02-06",
	"1-2-06",
	"02/01/2006",
	"2/1/2006",
	"02.01.2006",
	"2006/01/02",
	time.RFC3339,
}

// parseExpiry parses an expiry cell. A blank or unparseable value returns
// ok=false; the filter stage treats both as "no usable expiry" and excludes
// the row rather than failing the run.
func parseExpiry(cell string) (time.Time, bool) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
