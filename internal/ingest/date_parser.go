package ingest

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	isoDateRegex   = regexp.MustCompile(`\b(20\d{2})-(\d{2})-(\d{2})\b`)
	usDateRegex    = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(20\d{2})\b`)
	monthNameRegex = regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(20\d{2})\b`)
	dayMonthRegex  = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)\.?,?\s+(20\d{2})\b`)
)

// parseDeadline turns a raw deadline string into an ISO date (YYYY-MM-DD).
func parseDeadline(text string) (string, bool) {
	t, err := parseDateRobust(text)
	if err != nil {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

// parseDateRobust attempts to parse dates in multiple formats.
func parseDateRobust(text string) (time.Time, error) {
	text = cleanDateString(text)
	if text == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	// Try ISO format first (most reliable). Offsets are kept so the date
	// is the one the source wrote.
	if t, err := time.Parse(time.RFC3339Nano, text); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", text); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", text); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC1123Z, text); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC1123, text); err == nil {
		return t, nil
	}

	englishFormats := []string{
		"2 January 2006",
		"02 January 2006",
		"January 2, 2006",
		"January 2 2006",
		"Jan 2, 2006",
		"2 Jan 2006",
		"02 Jan 2006",
		"01/02/2006",
		"2006-01-02 15:04:05",
	}
	for _, format := range englishFormats {
		if t, err := time.Parse(format, text); err == nil {
			return t, nil
		}
	}

	if t := parseDateWithRegex(text); !t.IsZero() {
		return t, nil
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s", text)
}

// parseDateWithRegex finds the first recognizable date inside free text.
func parseDateWithRegex(text string) time.Time {
	if m := isoDateRegex.FindString(text); m != "" {
		if t, err := time.Parse("2006-01-02", m); err == nil {
			return t
		}
	}

	// US format: 03/15/2026 or 3/15/2026; falls back to day-first when the
	// month would be out of range.
	if m := usDateRegex.FindStringSubmatch(text); len(m) == 4 {
		if t, err := time.Parse("1/2/2006", fmt.Sprintf("%s/%s/%s", m[1], m[2], m[3])); err == nil {
			return t
		}
		if t, err := time.Parse("1/2/2006", fmt.Sprintf("%s/%s/%s", m[2], m[1], m[3])); err == nil {
			return t
		}
	}

	if m := monthNameRegex.FindStringSubmatch(text); len(m) == 4 {
		if t, ok := parseMonthDayYear(m[1], m[2], m[3]); ok {
			return t
		}
	}
	if m := dayMonthRegex.FindStringSubmatch(text); len(m) == 4 {
		if t, ok := parseMonthDayYear(m[2], m[1], m[3]); ok {
			return t
		}
	}

	return time.Time{}
}

func parseMonthDayYear(month, day, year string) (time.Time, bool) {
	month = strings.ToLower(strings.TrimSuffix(month, "."))
	if month == "sept" {
		month = "sep"
	}
	if len(month) > 3 {
		month = month[:3]
	}
	t, err := time.Parse("Jan 2 2006", fmt.Sprintf("%s %s %s", titleCase(month), day, year))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// cleanDateString removes common prefixes and cleans up date strings
func cleanDateString(s string) string {
	prefixes := []string{
		"Closing date:", "Deadline:", "Apply by:", "Applications close:",
		"Due date:", "Expires:", "Ends:",
	}
	sLower := strings.ToLower(s)
	for _, p := range prefixes {
		if idx := strings.Index(sLower, strings.ToLower(p)); idx != -1 {
			s = s[idx+len(p):]
			sLower = sLower[idx+len(p):]
		}
	}
	return strings.TrimSpace(s)
}
