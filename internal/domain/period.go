package domain

import (
	"fmt"
	"time"
)

// PeriodType is the wall-clock window over which usage is aggregated.
type PeriodType string

const (
	PeriodDaily   PeriodType = "daily"
	PeriodWeekly  PeriodType = "weekly"
	PeriodMonthly PeriodType = "monthly"
	PeriodYearly  PeriodType = "yearly"
)

// ParsePeriodType converts a string into a PeriodType.
func ParsePeriodType(s string) (PeriodType, error) {
	switch p := PeriodType(s); p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodYearly:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown period type %q", ErrInvalidPeriod, s)
	}
}

// PeriodBounds returns the half-open UTC window [start, end) of period p containing t.
// Weeks start on Monday.
func PeriodBounds(t time.Time, p PeriodType) (time.Time, time.Time, error) {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	switch p {
	case PeriodDaily:
		return day, day.AddDate(0, 0, 1), nil
	case PeriodWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7), nil
	case PeriodMonthly:
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0), nil
	case PeriodYearly:
		start := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: unknown period type %q", ErrInvalidPeriod, p)
	}
}

// CurrentMonth returns the calendar month window containing t.
func CurrentMonth(t time.Time) (time.Time, time.Time) {
	start, end, _ := PeriodBounds(t, PeriodMonthly)
	return start, end
}

// ValidateWindow checks that start precedes end.
func ValidateWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return fmt.Errorf("%w: period start must precede period end", ErrInvalidPeriod)
	}
	return nil
}
