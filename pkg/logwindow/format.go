// Package logwindow implements the log-window extractor of spec §4.2:
// archive discovery, stamp-format detection, binary search by line
// number, and transparent decompression, composed into an extraction
// of the byte range that falls inside a [from, to] timestamp window
// across one or more rotated log files.
package logwindow

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// StampFormat is the detector tag of spec §3 ("Stamp-detector tag").
type StampFormat int

const (
	FormatNone StampFormat = iota
	FormatRFC5424
	FormatSyslog
	FormatLegacy
)

func (f StampFormat) String() string {
	switch f {
	case FormatRFC5424:
		return "rfc5424"
	case FormatSyslog:
		return "syslog"
	case FormatLegacy:
		return "legacy"
	default:
		return "none"
	}
}

// detectCache is the process-wide cache spec §3 describes: "cached in
// process-wide state so that subsequent calls on the same file do not
// re-detect... concurrent collectors never share this state (they are
// distinct processes)". A sync.Map is enough: within one process,
// multiple goroutines (e.g. the master's own local collection, or
// concurrent analysis workers) may query the same file's format.
var detectCache sync.Map // map[string]StampFormat

// ResetCache clears the detector cache; used by tests so they don't
// observe another test's cached result for a reused path.
func ResetCache() {
	detectCache = sync.Map{}
}

// DetectFormat examines up to the first 10 lines of lines, returning
// the format of the first line that parses under one of the three
// grammars (rfc5424, syslog, legacy), caching the result against key
// so repeat calls for the same file are free.
func DetectFormat(key string, lines []string) StampFormat {
	if cached, ok := detectCache.Load(key); ok {
		return cached.(StampFormat)
	}

	limit := len(lines)
	if limit > 10 {
		limit = 10
	}
	format := FormatNone
	for _, line := range lines[:limit] {
		if _, ok := getStampRFC5424(line); ok {
			format = FormatRFC5424
			break
		}
		if _, ok := getStampSyslog(line); ok {
			format = FormatSyslog
			break
		}
		if _, ok := getStampLegacy(line); ok {
			format = FormatLegacy
			break
		}
	}

	detectCache.Store(key, format)
	return format
}

// GetTimestamp extracts line's timestamp according to format, the
// "get_ts" operation referenced by spec §8 scenario 1-2.
func GetTimestamp(format StampFormat, line string) (float64, bool) {
	switch format {
	case FormatRFC5424:
		return getStampRFC5424(line)
	case FormatSyslog:
		return getStampSyslog(line)
	case FormatLegacy:
		return getStampLegacy(line)
	default:
		return 0, false
	}
}

// getStampRFC5424 parses field 0 as an ISO8601 stamp, e.g.
// "2017-01-26T11:04:19.562885+08:00".
func getStampRFC5424(line string) (float64, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, false
	}
	for _, layout := range []string{
		"2006-01-02T15:04:05.999999-07:00",
		"2006-01-02T15:04:05.999999Z07:00",
		time.RFC3339Nano,
	} {
		if t, err := time.Parse(layout, fields[0]); err == nil {
			return float64(t.UnixNano()) / 1e9, true
		}
	}
	return 0, false
}

// getStampSyslog parses fields 0-2 concatenated as a legacy syslog
// stamp, e.g. "May 17 15:52:40", read in the local time zone. The year
// is assumed to be the current year, matching syslog's own omission of
// it; callers that need cross-year accuracy should prefer
// rfc5424-formatted logs.
func getStampSyslog(line string) (float64, bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return 0, false
	}
	stamp := strings.Join(fields[0:3], " ")
	now := time.Now()
	full := fmt.Sprintf("%d %s", now.Year(), stamp)
	t, err := time.ParseInLocation("2006 Jan 2 15:04:05", full, time.Local)
	if err != nil {
		return 0, false
	}
	// syslog logs never claim to be from the future; if parsing as the
	// current year lands after now, it must have been last year.
	if t.After(now) {
		t = t.AddDate(-1, 0, 0)
	}
	return float64(t.Unix()), true
}

// getStampLegacy parses field 1 as a stamp: bare Unix epoch seconds,
// the format heartbeat's own ha-log historically used.
func getStampLegacy(line string) (float64, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, false
	}
	v, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
