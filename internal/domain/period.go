package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var isoWeekPattern = regexp.MustCompile(`^(\d{4})-W(\d{2})$`)

// Week is a Monday-to-Sunday UTC window. End is the last representable
// instant at the microsecond precision activities are stored with.
type Week struct {
	Label string
	Start time.Time
	End   time.Time
}

// WeekOf returns the ISO week containing t.
func WeekOf(t time.Time) Week {
	day := UTCDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	start := day.AddDate(0, 0, -offset)
	year, week := start.ISOWeek()
	return Week{
		Label: fmt.Sprintf("%d-W%02d", year, week),
		Start: start,
		End:   start.AddDate(0, 0, 7).Add(-time.Microsecond),
	}
}

// ParseWeek resolves a "YYYY-Www" label. An empty label resolves to the week containing now.
func ParseWeek(label string, now time.Time) (Week, error) {
	if label == "" {
		return WeekOf(now), nil
	}
	match := isoWeekPattern.FindStringSubmatch(label)
	if match == nil {
		return Week{}, &ValidationError{Field: "week", Reason: "must use the YYYY-Www format"}
	}
	year, _ := strconv.Atoi(match[1])
	week, _ := strconv.Atoi(match[2])
	if week < 1 || week > 53 {
		return Week{}, &ValidationError{Field: "week", Reason: "must be between W01 and W53"}
	}

	// January 4th always falls in ISO week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	firstMonday := jan4.AddDate(0, 0, -((int(jan4.Weekday()) + 6) % 7))
	resolved := WeekOf(firstMonday.AddDate(0, 0, (week-1)*7))
	if resolved.Label != label {
		return Week{}, &ValidationError{Field: "week", Reason: fmt.Sprintf("%s does not exist", label)}
	}
	return resolved, nil
}

// StatsPeriod selects the window used by Stats.
type StatsPeriod string

const (
	PeriodWeek  StatsPeriod = "week"
	PeriodMonth StatsPeriod = "month"
	PeriodAll   StatsPeriod = "all"
)

// ParseStatsPeriod validates a period name; empty defaults to week.
func ParseStatsPeriod(value string) (StatsPeriod, error) {
	switch StatsPeriod(value) {
	case "":
		return PeriodWeek, nil
	case PeriodWeek, PeriodMonth, PeriodAll:
		return StatsPeriod(value), nil
	default:
		return "", &ValidationError{Field: "period", Reason: "must be one of week, month, all"}
	}
}

// Bounds returns the [start, end] window for the period ending at now.
func (p StatsPeriod) Bounds(now time.Time) (time.Time, time.Time) {
	end := now.UTC()
	switch p {
	case PeriodMonth:
		return end.AddDate(0, -1, 0), end
	case PeriodAll:
		return time.Unix(0, 0).UTC(), end
	default:
		return end.AddDate(0, 0, -7), end
	}
}
