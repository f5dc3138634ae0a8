package push

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// parseClock parses "HH:MM" into minutes after midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid time %q, want HH:MM", ErrBadRequest, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func validateQuietHours(s UserPushSettings) error {
	if _, err := parseClock(s.QuietHoursStart); err != nil {
		return err
	}
	if _, err := parseClock(s.QuietHoursEnd); err != nil {
		return err
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("%w: unknown timezone %q", ErrBadRequest, s.Timezone)
	}
	return nil
}

// InQuietHours reports whether t falls inside the user's quiet window in the
// user's timezone. The start is inclusive, the end exclusive. Equal bounds
// mean an empty window. Broken stored values disable the window.
func (s UserPushSettings) InQuietHours(t time.Time) bool {
	if !s.QuietHoursEnabled {
		return false
	}
	start, err := parseClock(s.QuietHoursStart)
	if err != nil {
		return false
	}
	end, err := parseClock(s.QuietHoursEnd)
	if err != nil || start == end {
		return false
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := t.In(loc)
	now := local.Hour()*60 + local.Minute()
	if start < end {
		return now >= start && now < end
	}
	return now >= start || now < end
}
