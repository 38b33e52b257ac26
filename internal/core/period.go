package core

import "time"

// Period is a closed interval of wall-clock time at second precision.
type Period struct {
	Start time.Time
	End   time.Time
}

// Day returns 00:00:00 through 23:59:59 of the calendar day containing t.
func Day(t time.Time) Period {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	end := time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
	return Period{Start: start, End: end}
}

// WeekToDate returns Monday 00:00:00 of the ISO week containing t through t itself.
func WeekToDate(t time.Time) Period {
	offset := (int(t.Weekday()) + 6) % 7 // Monday = 0
	monday := time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, t.Location())
	return Period{Start: monday, End: t.Truncate(time.Second)}
}
