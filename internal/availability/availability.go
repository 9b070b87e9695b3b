// Package availability computes bookable time for a professional from the
// weekly schedule, layered schedule blocks and existing appointments.
package availability

import (
	"fmt"
	"sort"
	"time"

	"github.com/medpratica/agenda-service/internal/agenda"
)

// Slot is a bookable start time on a given date.
type Slot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type window struct {
	start int // minutes since midnight, inclusive
	end   int // exclusive
}

// Slots returns the open slots for a professional on a date. typeFilter
// restricts results to intervals accepting that appointment type; pass ""
// for any. Intervals may overlap, so candidate slots are deduplicated by
// start time.
func Slots(settings *agenda.AgendaSettings, blocks []agenda.ScheduleBlock, appointments []agenda.Appointment, date, typeFilter string) ([]Slot, error) {
	day, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return nil, fmt.Errorf("availability: parse date %q: %w", date, err)
	}

	duration := settings.SlotDurationMinutes
	if duration <= 0 {
		duration = 30
	}

	intervals := settings.WeeklySchedule[int(day.Weekday())]
	if len(intervals) == 0 {
		return nil, nil
	}

	busy, allDayBlocked, err := busyWindows(blocks, appointments, day, date)
	if err != nil {
		return nil, err
	}
	if allDayBlocked {
		return nil, nil
	}

	seen := make(map[int]bool)
	var slots []Slot
	for _, interval := range intervals {
		if typeFilter != "" && interval.Type != "" && interval.Type != "all" && interval.Type != typeFilter {
			continue
		}
		start, err := agenda.ParseClock(interval.Start)
		if err != nil {
			return nil, err
		}
		end, err := agenda.ParseClock(interval.End)
		if err != nil {
			return nil, err
		}
		for cursor := start; cursor+duration <= end; cursor += duration {
			if seen[cursor] {
				continue
			}
			candidate := window{start: cursor, end: cursor + duration}
			if overlapsAny(candidate, busy) {
				continue
			}
			seen[cursor] = true
			slots = append(slots, Slot{
				Start: agenda.FormatClock(candidate.start),
				End:   agenda.FormatClock(candidate.end),
			})
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Start < slots[j].Start })
	return slots, nil
}

// busyWindows collects the occupied time ranges for the date. The second
// return value is true when an all-day block covers the date entirely.
func busyWindows(blocks []agenda.ScheduleBlock, appointments []agenda.Appointment, day time.Time, date string) ([]window, bool, error) {
	var busy []window

	for i := range blocks {
		b := &blocks[i]
		applies, err := blockAppliesOn(b, day, date)
		if err != nil {
			return nil, false, err
		}
		if !applies {
			continue
		}
		if b.AllDay || b.StartTime == nil || b.EndTime == nil {
			return nil, true, nil
		}
		start, err := agenda.ParseClock(*b.StartTime)
		if err != nil {
			return nil, false, err
		}
		end, err := agenda.ParseClock(*b.EndTime)
		if err != nil {
			return nil, false, err
		}
		busy = append(busy, window{start: start, end: end})
	}

	for i := range appointments {
		a := &appointments[i]
		if a.Date != date || a.Status == agenda.StatusCancelado {
			continue
		}
		start, err := agenda.ParseClock(a.StartTime)
		if err != nil {
			return nil, false, err
		}
		end, err := agenda.ParseClock(a.EndOrDefault())
		if err != nil {
			return nil, false, err
		}
		busy = append(busy, window{start: start, end: end})
	}

	return busy, false, nil
}

func blockAppliesOn(b *agenda.ScheduleBlock, day time.Time, date string) (bool, error) {
	blockStart, err := time.Parse(time.DateOnly, b.StartDate)
	if err != nil {
		return false, fmt.Errorf("availability: parse block start date %q: %w", b.StartDate, err)
	}

	switch b.Recurrence {
	case agenda.RecurrenceWeekly:
		return !day.Before(blockStart) && day.Weekday() == blockStart.Weekday(), nil
	case agenda.RecurrenceMonthly:
		return !day.Before(blockStart) && day.Day() == blockStart.Day(), nil
	default:
		endDate := b.EndDate
		if endDate == "" {
			endDate = b.StartDate
		}
		return date >= b.StartDate && date <= endDate, nil
	}
}

func overlapsAny(candidate window, busy []window) bool {
	for _, w := range busy {
		if candidate.start < w.end && w.start < candidate.end {
			return true
		}
	}
	return false
}
