/*
recurrence.go - Series expansion of a seed event

PURPOSE:
  Turns a seed event and a RecurrenceRule into the concrete events of the
  series: the seed at its own date, plus every date in [seed.Date, Until]
  whose weekday is in the rule.

DETERMINISM:
  Expansion is pure. The series id is a UUIDv5 of the seed id, every
  sibling id a UUIDv5 of the series id and the date, so the same inputs
  always give the same events and no two siblings share an id. The seed
  keeps its own id.

EXAMPLE:
  seed 2024-01-01 (Mon), rule {Wed, Fri} until 2024-01-12
  -> 01-01, 01-03, 01-05, 01-10, 01-12
*/
package booking

import (
	"fmt"
	"iter"

	"github.com/google/uuid"
)

// MaxSeriesDays is the longest span, in days after the seed date, a stored
// or previewed series may cover.
const MaxSeriesDays = 366

// CheckSeriesSpan rejects a rule whose end date lies more than MaxSeriesDays
// after start. ExpandRecurrence itself stays lazy and unbounded.
func CheckSeriesSpan(start Date, rule *RecurrenceRule) error {
	if rule == nil || !rule.Until.After(start.AddDays(MaxSeriesDays)) {
		return nil
	}
	return &InvalidRecurrenceError{Reason: fmt.Sprintf("repeat until %s is more than %d days after %s", rule.Until, MaxSeriesDays, start)}
}

// seriesNamespace scopes series ids derived from seed ids.
var seriesNamespace = uuid.MustParse("5d0f1b52-7a58-4c4e-9f3c-2b6f1c2a9e41")

// ExpandRecurrence validates the seed and rule up front and returns the
// lazy, ordered sequence of instances. A nil rule yields just the seed.
func ExpandRecurrence(seed Event, rule *RecurrenceRule) (iter.Seq[Event], error) {
	if seed.ID == "" {
		return nil, invalid("id", "seed event has no id")
	}
	if seed.StartTime >= seed.EndTime {
		return nil, &InvalidRecurrenceError{Reason: "start time " + seed.StartTime.String() + " is not before end time " + seed.EndTime.String()}
	}
	if rule == nil {
		seed.Recurrence = nil
		seed.SeriesID = ""
		return func(yield func(Event) bool) { yield(seed) }, nil
	}
	if len(rule.Weekdays) == 0 {
		return nil, &InvalidRecurrenceError{Reason: "no weekdays selected"}
	}
	if rule.Until.Before(seed.Date) {
		return nil, &InvalidRecurrenceError{Reason: "repeat until " + rule.Until.String() + " is before " + seed.Date.String()}
	}

	series := uuid.NewSHA1(seriesNamespace, []byte(seed.ID))
	r := RecurrenceRule{Weekdays: append(rule.Weekdays[:0:0], rule.Weekdays...), Until: rule.Until}

	return func(yield func(Event) bool) {
		for d := seed.Date; d.BeforeOrEqual(r.Until); d = d.AddDays(1) {
			if d != seed.Date && !r.Includes(d.Weekday()) {
				continue
			}
			ev := seed
			ev.Date = d
			ev.SeriesID = series.String()
			ev.Recurrence = &RecurrenceRule{Weekdays: append(r.Weekdays[:0:0], r.Weekdays...), Until: r.Until}
			if d != seed.Date {
				ev.ID = uuid.NewSHA1(series, []byte(d.String())).String()
			}
			if !yield(ev) {
				return
			}
		}
	}, nil
}
