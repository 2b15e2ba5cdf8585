package core

import (
	"fmt"
	"strings"
	"time"
)

const DateInputLayout = "2006-01-02"

var monthNames = [...]string{
	"Januari", "Februari", "Maret", "April", "Mei", "Juni",
	"Juli", "Agustus", "September", "Oktober", "November", "Desember",
}

// ParseDateInput turns a date-only form value into the start of that day in loc.
func ParseDateInput(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrMissingDate
	}
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateInputLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// FormatDateInput is the inverse of ParseDateInput.
func FormatDateInput(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateInputLayout)
}

// DayBounds returns [start, end) of the calendar day containing t, in t's location.
func DayBounds(t time.Time) (time.Time, time.Time) {
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

// MonthBounds returns [start, end) of the calendar month containing t.
func MonthBounds(t time.Time) (time.Time, time.Time) {
	y, m, _ := t.Date()
	start := time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0)
}

// SameDay reports whether a falls on the calendar day of ref, evaluated in ref's location.
func SameDay(a, ref time.Time) bool {
	start, end := DayBounds(ref)
	a = a.In(ref.Location())
	return !a.Before(start) && a.Before(end)
}

// FormatDate renders t as "02 Januari 2025"; the zero time renders as "-".
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%02d %s %d", t.Day(), monthNames[t.Month()-1], t.Year())
}
