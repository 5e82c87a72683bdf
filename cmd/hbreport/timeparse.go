package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dateTimeLayouts covers the original tool's documented examples
// ("2007/9/5 12:30", "09-sep-07 2:00"); Go's time.Parse matches month
// names case-insensitively, so the "Jan"-shaped layouts below also
// accept "sep" as in the original's own usage text. The unpadded "1"
// and "2" month/day elements accept both "9" and "09".
var dateTimeLayouts = []string{
	"2006/1/2 15:04:05",
	"2006/1/2 15:04",
	"2006-1-2 15:04:05",
	"2006-1-2 15:04",
	"02-Jan-06 15:04",
}

var dateOnlyLayouts = []string{
	"2006/1/2",
	"2006-1-2",
	"02-Jan-06",
}

var timeOnlyLayouts = []string{
	"15:04:05",
	"15:04",
	"3:04pm",
	"3:04PM",
	"3pm",
	"3PM",
}

// parseTime resolves a -f/-t argument into seconds since the epoch.
// It accepts a bare epoch number, an absolute date-and-time, a bare
// date (midnight that day), or a bare time (today, at that time) —
// covering every example in the original tool's own usage text. It is
// intentionally not a full natural-language parser; unrecognized
// input is an error rather than a guess.
func parseTime(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty time value")
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}

	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return float64(t.Unix()), nil
		}
	}
	for _, layout := range dateOnlyLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return float64(t.Unix()), nil
		}
	}

	now := time.Now()
	for _, layout := range timeOnlyLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			combined := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.Local)
			return float64(combined.Unix()), nil
		}
	}

	return 0, fmt.Errorf("unrecognized time format %q", s)
}
