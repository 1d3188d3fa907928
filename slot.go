package invite

import (
	"strconv"
	"strings"
	"time"
)

const (
	meetingLength = time.Hour
	dateLayout    = "2006-01-02"
	// Ex: "Monday, March 10, 2025 at 2:30 PM EDT"
	displayLayout = "Monday, January 2, 2006 at 3:04 PM MST"
)

// Slot is a resolved meeting time. It is derived once from a MeetingRequest and never mutated.
type Slot struct {
	Start    time.Time
	End      time.Time
	Location *time.Location
}

// Display formats the slot's start time for humans, in the meeting's timezone.
func (s Slot) Display() string {
	return s.Start.In(s.Location).Format(displayLayout)
}

// ResolveSlot converts a calendar date, a 12-hour clock time, a meridiem and an IANA
// timezone into absolute start and end instants. The clock time is read as wall-clock
// time in the given timezone, not the host's, so the same clock string yields different
// instants for different timezones.
func ResolveSlot(date, clock, meridiem, timezone string) (Slot, error) {
	// LoadLocation maps "" to UTC and "Local" to the host zone; neither is a meeting timezone.
	tz := strings.TrimSpace(timezone)
	loc, err := time.LoadLocation(tz)
	if err != nil || tz == "" || tz == "Local" {
		return Slot{}, &InvalidTimeInputError{Field: "timezone", Value: timezone, Reason: "unknown IANA timezone"}
	}

	day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(date), loc)
	if err != nil {
		return Slot{}, &InvalidTimeInputError{Field: "meetingDate", Value: date, Reason: "expected YYYY-MM-DD"}
	}

	hour, minute, err := parseClock(clock)
	if err != nil {
		return Slot{}, err
	}

	hour24, err := to24Hour(hour, meridiem)
	if err != nil {
		return Slot{}, err
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), hour24, minute, 0, 0, loc)
	return Slot{
		Start:    start,
		End:      start.Add(meetingLength),
		Location: loc,
	}, nil
}

// parseClock parses "H:MM", "HH:MM" or a bare "H". The minute defaults to 0.
func parseClock(clock string) (hour, minute int, err error) {
	invalid := func(reason string) error {
		return &InvalidTimeInputError{Field: "meetingTime", Value: clock, Reason: reason}
	}

	rawHour, rawMinute, hasMinute := strings.Cut(strings.TrimSpace(clock), ":")
	hour, err = strconv.Atoi(rawHour)
	if err != nil {
		return 0, 0, invalid("hour is not a number")
	}
	if hour < 1 || hour > 12 {
		return 0, 0, invalid("hour must be between 1 and 12")
	}

	if hasMinute && rawMinute != "" {
		minute, err = strconv.Atoi(rawMinute)
		if err != nil {
			return 0, 0, invalid("minute is not a number")
		}
		if minute < 0 || minute > 59 {
			return 0, 0, invalid("minute must be between 0 and 59")
		}
	}
	return hour, minute, nil
}

// to24Hour converts a 12-hour clock hour (1-12) to its 24-hour value.
// 12 AM is 0, 12 PM is 12, h PM is h+12.
func to24Hour(hour int, meridiem string) (int, error) {
	switch strings.ToUpper(strings.TrimSpace(meridiem)) {
	case "AM":
		if hour == 12 {
			return 0, nil
		}
		return hour, nil
	case "PM":
		if hour != 12 {
			return hour + 12, nil
		}
		return hour, nil
	}
	return 0, &InvalidTimeInputError{Field: "ampm", Value: meridiem, Reason: `must be "AM" or "PM"`}
}
