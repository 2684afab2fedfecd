package ingest

import (
	"strings"
	"time"
)

// accentFolder strips the accented Latin characters that show up in wine
// labels and client names so label_norm/client_code comparisons are
// accent- and case-insensitive.
var accentFolder = strings.NewReplacer(
	"à", "a", "â", "a", "ä", "a", "á", "a",
	"ç", "c",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"î", "i", "ï", "i",
	"ô", "o", "ö", "o",
	"ù", "u", "û", "u", "ü", "u",
	"ÿ", "y", "ñ", "n",
)

// NormalizeLabel lower-cases, strips accents, and collapses internal
// whitespace so "Château Margaux", "chateau  margaux", and "CHATEAU
// MARGAUX" all normalize to the same label_norm.
func NormalizeLabel(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = accentFolder.Replace(s)
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// NormalizeClientCode trims, strips accents, and upper-cases a client
// code; codes are treated as opaque identifiers, not display text, so
// case is normalized toward upper rather than folded to lower.
func NormalizeClientCode(raw string) string {
	s := accentFolder.Replace(strings.ToLower(strings.TrimSpace(raw)))
	return strings.ToUpper(s)
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02-01-2006",
	"02/01/2006",
	"01/02/2006",
	time.RFC3339,
}

// ParseDate tries each layout a raw CSV export commonly uses,
// returning the first successful parse. An empty string is not an error;
// it yields (zero time, false, nil) so callers can treat a missing date
// as "unknown" rather than "malformed".
func ParseDate(raw string) (time.Time, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true, nil
		}
	}
	return time.Time{}, false, errBadDate(raw)
}
