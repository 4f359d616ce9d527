package dataset

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Locale controls numeric parsing. A zero Decimal auto-detects per value; a
// zero Thousands strips the common separators that differ from the decimal.
type Locale struct {
	Decimal   rune
	Thousands rune
}

// ParseLocale maps flag/recipe spellings ("comma", ".", "space") to a Locale.
func ParseLocale(decimal, thousands string) (Locale, bool) {
	var loc Locale
	switch strings.ToLower(strings.TrimSpace(decimal)) {
	case ",", "comma":
		loc.Decimal = ','
	case ".", "dot":
		loc.Decimal = '.'
	case "":
	default:
		return loc, false
	}
	switch strings.ToLower(strings.TrimSpace(thousands)) {
	case ",", "comma":
		loc.Thousands = ','
	case ".", "dot":
		loc.Thousands = '.'
	case "space", " ":
		loc.Thousands = ' '
	case "":
	default:
		return loc, false
	}
	return loc, true
}

var missingTokens = map[string]bool{
	"": true, "na": true, "n/a": true, "nan": true, "null": true, "none": true, "-": true, "--": true,
}

// IsMissing reports whether a cell should be treated as absent.
func IsMissing(s string) bool {
	return missingTokens[strings.ToLower(strings.TrimSpace(s))]
}

// ParseNumeric parses s honouring loc. A trailing or embedded '%' is dropped.
func ParseNumeric(s string, loc Locale) (float64, bool) {
	raw := strings.TrimSpace(s)
	if IsMissing(raw) {
		return 0, false
	}
	raw = strings.ReplaceAll(raw, "%", "")
	raw = strings.ReplaceAll(raw, "\u00A0", " ")
	raw = strings.TrimSpace(raw)
	dec := loc.Decimal
	thou := loc.Thousands
	if dec == 0 {
		cpos := strings.LastIndex(raw, ",")
		dpos := strings.LastIndex(raw, ".")
		switch {
		case cpos >= 0 && dpos >= 0:
			if cpos > dpos {
				dec, thou = ',', '.'
			} else {
				dec, thou = '.', ','
			}
		case cpos >= 0:
			dec = ','
		default:
			dec = '.'
		}
	}
	if thou == 0 {
		for _, sep := range []rune{',', '.', ' '} {
			if sep != dec {
				raw = strings.ReplaceAll(raw, string(sep), "")
			}
		}
	} else if thou != dec {
		raw = strings.ReplaceAll(raw, string(thou), "")
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

var timeLayouts = []string{
	time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
	"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
}

// ParseTime tries the date layouts seen in field sheets.
func ParseTime(s string) (time.Time, bool) {
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var unitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(.*)\s*\(([^)]+)\)\s*$`),  // Alpha (%)
	regexp.MustCompile(`^(.*)\s*\[([^\]]+)\]\s*$`), // Mass [mg/L]
	regexp.MustCompile(`^(.*?)[_\s-]+(mg/L|g/L|ug/L|µS/cm|°[CF]|Brix|%|ppm|ppb|NTU)$`),
}

// SplitUnits separates a trailing unit from a header name.
func SplitUnits(name string) (clean string, unit string) {
	s := strings.TrimSpace(name)
	for _, re := range unitPatterns {
		if m := re.FindStringSubmatch(s); len(m) >= 3 {
			base := strings.TrimSpace(m[1])
			u := strings.TrimSpace(m[2])
			if base != "" && u != "" {
				return base, u
			}
		}
	}
	return s, ""
}
