package dto

import (
	"fmt"
	"time"
)

// DateLayout is the calendar day format accepted by date fields
const DateLayout = "2006-01-02"

// ParseDate parses a calendar day in loc. An empty value returns the zero time.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", value)
	}
	return t, nil
}

// ParseInstant accepts either an RFC 3339 instant or a calendar day in loc
func ParseInstant(value string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return ParseDate(value, loc)
}

// DateRange is a pair of calendar days, both inclusive
type DateRange struct {
	From string `json:"from" form:"from" binding:"required,datetime=2006-01-02"`
	To   string `json:"to" form:"to" binding:"required,datetime=2006-01-02"`
}

// Parse returns the range in loc and rejects a range that ends before it starts
func (r DateRange) Parse(loc *time.Location) (time.Time, time.Time, error) {
	from, err := ParseDate(r.From, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := ParseDate(r.To, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to (%s) is before from (%s)", r.To, r.From)
	}
	return from, to, nil
}

// Bounds returns the instants the range covers: from the start of From to
// the last nanosecond of To
func (r DateRange) Bounds(loc *time.Location) (time.Time, time.Time, error) {
	from, to, err := r.Parse(loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
}
