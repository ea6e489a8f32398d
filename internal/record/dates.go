package record

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/civicarchive/lexharvest/internal/pipeline"
)

// Date is a calendar date serialized as YYYY-MM-DD.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate builds a Date.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// ForJSON implements the canonical-encoder hook.
func (d Date) ForJSON() any { return d.String() }

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool { return d.Year == 0 && d.Month == 0 && d.Day == 0 }

// monthNames maps lowercase localized month names (full and common
// abbreviations) to month numbers, per ISO-639-1 language code.
var monthNames = map[string]map[string]time.Month{
	"en": {
		"january": 1, "february": 2, "march": 3, "april": 4, "may": 5,
		"june": 6, "july": 7, "august": 8, "september": 9, "october": 10,
		"november": 11, "december": 12,
		"jan": 1, "feb": 2, "mar": 3, "apr": 4, "jun": 6, "jul": 7,
		"aug": 8, "sep": 9, "sept": 9, "oct": 10, "nov": 11, "dec": 12,
	},
	"fr": {
		"janvier": 1, "fevrier": 2, "février": 2, "mars": 3, "avril": 4,
		"mai": 5, "juin": 6, "juillet": 7, "aout": 8, "août": 8,
		"septembre": 9, "octobre": 10, "novembre": 11, "decembre": 12,
		"décembre": 12,
		"janv": 1, "fevr": 2, "févr": 2, "avr": 4, "juil": 7, "sept": 9,
		"oct": 10, "nov": 11, "dec": 12, "déc": 12,
	},
	"es": {
		"enero": 1, "febrero": 2, "marzo": 3, "abril": 4, "mayo": 5,
		"junio": 6, "julio": 7, "agosto": 8, "septiembre": 9,
		"setiembre": 9, "octubre": 10, "noviembre": 11, "diciembre": 12,
		"ene": 1, "feb": 2, "mar": 3, "abr": 4, "jun": 6, "jul": 7,
		"ago": 8, "sep": 9, "oct": 10, "nov": 11, "dic": 12,
	},
	"pt": {
		"janeiro": 1, "fevereiro": 2, "marco": 3, "março": 3, "abril": 4,
		"maio": 5, "junho": 6, "julho": 7, "agosto": 8, "setembro": 9,
		"outubro": 10, "novembro": 11, "dezembro": 12,
		"jan": 1, "fev": 2, "mar": 3, "abr": 4, "mai": 5, "jun": 6,
		"jul": 7, "ago": 8, "set": 9, "out": 10, "nov": 11, "dez": 12,
	},
	"de": {
		"januar": 1, "februar": 2, "marz": 3, "märz": 3, "april": 4,
		"mai": 5, "juni": 6, "juli": 7, "august": 8, "september": 9,
		"oktober": 10, "november": 11, "dezember": 12,
		"jan": 1, "feb": 2, "mar": 3, "mär": 3, "apr": 4, "jun": 6,
		"jul": 7, "aug": 8, "sep": 9, "sept": 9, "okt": 10, "nov": 11,
		"dez": 12,
	},
	"nl": {
		"januari": 1, "februari": 2, "maart": 3, "april": 4, "mei": 5,
		"juni": 6, "juli": 7, "augustus": 8, "september": 9, "oktober": 10,
		"november": 11, "december": 12,
		"jan": 1, "feb": 2, "mrt": 3, "apr": 4, "jun": 6, "jul": 7,
		"aug": 8, "sep": 9, "okt": 10, "nov": 11, "dec": 12,
	},
	"it": {
		"gennaio": 1, "febbraio": 2, "marzo": 3, "aprile": 4, "maggio": 5,
		"giugno": 6, "luglio": 7, "agosto": 8, "settembre": 9,
		"ottobre": 10, "novembre": 11, "dicembre": 12,
		"gen": 1, "feb": 2, "mar": 3, "apr": 4, "mag": 5, "giu": 6,
		"lug": 7, "ago": 8, "set": 9, "ott": 10, "nov": 11, "dic": 12,
	},
}

// connective words skipped when tokenizing localized dates.
var dateStopwords = map[string]struct{}{
	"de": {}, "del": {}, "do": {}, "da": {}, "of": {}, "the": {},
	"den": {}, "el": {}, "le": {}, "il": {}, "am": {},
}

// ParseLocalizedDate resolves a date string into YYYY-MM-DD form using
// the jurisdiction's official language list. Parses that differ under
// the candidate languages, and numeric forms whose day/month order
// cannot be determined, fail with pipeline.ErrAmbiguousDate rather than
// guessing.
func ParseLocalizedDate(raw string, languages []string) (Date, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Date{}, fmt.Errorf("parse date: empty input")
	}

	if d, ok := parseISO(trimmed); ok {
		return d, nil
	}
	if d, handled, err := parseNumeric(trimmed); handled {
		return d, err
	}
	return parseTextual(trimmed, languages)
}

func parseISO(s string) (Date, bool) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, false
	}
	return NewDate(t.Year(), t.Month(), t.Day()), true
}

// parseNumeric handles dd/mm/yyyy-style forms with /, . or -
// separators. The order is inferred only when one reading is possible.
func parseNumeric(s string) (Date, bool, error) {
	var sep string
	for _, candidate := range []string{"/", ".", "-"} {
		if strings.Contains(s, candidate) {
			sep = candidate
			break
		}
	}
	if sep == "" {
		return Date{}, false, nil
	}
	parts := strings.Split(s, sep)
	if len(parts) != 3 {
		return Date{}, false, nil
	}
	nums := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return Date{}, false, nil
		}
		nums[i] = n
	}
	year := nums[2]
	if year < 100 {
		return Date{}, true, fmt.Errorf("parse date %q: two-digit years are not accepted", s)
	}
	first, second := nums[0], nums[1]
	var d Date
	var err error
	switch {
	case first > 12 && second <= 12:
		d, err = mkDate(year, second, first, s)
	case second > 12 && first <= 12:
		d, err = mkDate(year, first, second, s)
	case first == second:
		d, err = mkDate(year, first, second, s)
	default:
		return Date{}, true, fmt.Errorf("%w: %q could be day-first or month-first", pipeline.ErrAmbiguousDate, s)
	}
	return d, true, err
}

func parseTextual(s string, languages []string) (Date, error) {
	if len(languages) == 0 {
		languages = []string{"en"}
	}

	cleaned := strings.ToLower(s)
	for _, r := range []string{",", ".", "º", "°"} {
		cleaned = strings.ReplaceAll(cleaned, r, " ")
	}

	var day, year int
	var monthToken string
	for _, token := range strings.Fields(cleaned) {
		if _, skip := dateStopwords[token]; skip {
			continue
		}
		if n, err := strconv.Atoi(stripOrdinal(token)); err == nil {
			switch {
			case n >= 1000:
				year = n
			case n >= 1 && n <= 31 && day == 0:
				day = n
			default:
				return Date{}, fmt.Errorf("parse date %q: unexpected number %d", s, n)
			}
			continue
		}
		if monthToken != "" {
			return Date{}, fmt.Errorf("parse date %q: multiple month candidates", s)
		}
		monthToken = token
	}
	if monthToken == "" || day == 0 || year == 0 {
		return Date{}, fmt.Errorf("parse date %q: could not identify day, month, and year", s)
	}

	var resolved time.Month
	for _, lang := range languages {
		table, ok := monthNames[strings.ToLower(lang)]
		if !ok {
			continue
		}
		month, ok := table[monthToken]
		if !ok {
			continue
		}
		if resolved != 0 && resolved != month {
			return Date{}, fmt.Errorf("%w: %q resolves to different months under languages %v", pipeline.ErrAmbiguousDate, s, languages)
		}
		resolved = month
	}
	if resolved == 0 {
		return Date{}, fmt.Errorf("parse date %q: unknown month %q for languages %v", s, monthToken, languages)
	}

	return mkDate(year, int(resolved), day, s)
}

// stripOrdinal removes day-ordinal suffixes such as 1st, 3rd, 1er,
// 1ro. Only applied when the remainder still parses as a number.
func stripOrdinal(token string) string {
	for _, suffix := range []string{"st", "nd", "rd", "th", "er", "ro", "ra"} {
		trimmed := strings.TrimSuffix(token, suffix)
		if trimmed == token {
			continue
		}
		if _, err := strconv.Atoi(trimmed); err == nil {
			return trimmed
		}
	}
	return token
}

func mkDate(year, month, day int, raw string) (Date, error) {
	if month < 1 || month > 12 {
		return Date{}, fmt.Errorf("parse date %q: month %d out of range", raw, month)
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != time.Month(month) || t.Day() != day {
		return Date{}, fmt.Errorf("parse date %q: day %d out of range", raw, day)
	}
	return NewDate(year, time.Month(month), day), nil
}
