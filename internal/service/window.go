package service

import "time"

// Day boundaries are local midnight to midnight throughout the service.

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// weekRange returns the calendar week containing t, Sunday-start.
func weekRange(t time.Time) (time.Time, time.Time) {
	start := startOfDay(t).AddDate(0, 0, -int(t.Weekday()))
	end := start.AddDate(0, 0, 7).Add(-time.Nanosecond)
	return start, end
}

// monthRange returns the calendar month containing t.
func monthRange(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return start, end
}
