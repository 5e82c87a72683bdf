package logwindow

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// maxMalformedRetries bounds the malformed-line recovery of spec §4.2
// step 3: up to 10 attempts (the midpoint itself included) before the
// file is considered corrupt for binary-search purposes.
const maxMalformedRetries = 10

// lineIndex gives random access, by 1-based line number, into a file
// already fully materialized on disk (plain or decompressed). Built
// once per file per LocateLine call is wasteful for repeated
// searches within the same file, so Extract builds it once and reuses
// it for both the FROM and TO line lookups.
type lineIndex struct {
	offsets []int64 // offsets[i] = byte offset of line i+1 (1-based lines)
	size    int64
	path    string
}

func buildLineIndex(f *os.File) (*lineIndex, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	idx := &lineIndex{path: f.Name()}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	var offset int64
	idx.offsets = append(idx.offsets, 0)
	for sc.Scan() {
		offset += int64(len(sc.Bytes())) + 1 // +1 for the newline
		idx.offsets = append(idx.offsets, offset)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("index %s: %w", idx.path, err)
	}
	idx.size = offset
	return idx, nil
}

// N is the number of lines in the indexed file.
func (idx *lineIndex) N() int {
	// offsets has N+1 entries: one per line start, plus the final
	// end-of-file offset.
	return len(idx.offsets) - 1
}

// Line returns the 1-based n'th line's text.
func (idx *lineIndex) Line(f *os.File, n int) (string, error) {
	if n < 1 || n > idx.N() {
		return "", fmt.Errorf("line %d out of range [1,%d]", n, idx.N())
	}
	start := idx.offsets[n-1]
	end := idx.offsets[n]
	buf := make([]byte, end-start)
	if _, err := f.ReadAt(buf, start); err != nil && err != io.EOF {
		return "", fmt.Errorf("read line %d: %w", n, err)
	}
	s := string(buf)
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s, nil
}

// LocateLine implements spec §4.2's binary search: find the first
// line whose timestamp is >= t, or the last line when t is after every
// line. A malformed (unparseable) line at the chosen midpoint is
// recovered from by stampAt, which tries the neighbouring lines within
// [lo, hi], up to maxMalformedRetries attempts in all;
// if no parseable line is found in that many attempts the file is
// considered corrupt for this purpose and an error is returned (the
// caller logs a warning and treats the file as contributing nothing).
func LocateLine(f *os.File, idx *lineIndex, format StampFormat, t float64) (int, error) {
	lo, hi := 1, idx.N()
	if idx.N() == 0 {
		return 0, fmt.Errorf("empty file %s", idx.path)
	}

	for lo <= hi {
		mid := (lo + hi) / 2

		ts, effective, ok := stampAt(f, idx, format, mid, lo, hi)
		if !ok {
			return 0, fmt.Errorf("no parseable line found near %d in %s after %d attempts", mid, idx.path, maxMalformedRetries)
		}

		switch {
		case ts > t:
			hi = effective - 1
		case ts < t:
			lo = effective + 1
		default:
			return effective, nil
		}
	}

	// lo > hi: no exact match. lo now points at the first line whose
	// timestamp is >= t (or idx.N()+1 if t is after every line), which
	// is the contract LocateLine promises its caller.
	if lo > idx.N() {
		return idx.N(), nil
	}
	return lo, nil
}

// stampAt returns the parsed timestamp at line mid and the line number
// it actually came from (effective). When mid's own line fails to
// parse it probes alternately one line further below and above mid
// (mid-1, mid+1, mid-2, mid+2, ...), skipping probes outside [lo, hi];
// every probe, skipped or not, counts toward maxMalformedRetries. The
// binary search narrows around effective, not the original mid.
func stampAt(f *os.File, idx *lineIndex, format StampFormat, mid, lo, hi int) (ts float64, effective int, ok bool) {
	left, right := mid, mid
	for attempt := 0; attempt < maxMalformedRetries; attempt++ {
		candidate := mid
		if attempt > 0 {
			if attempt%2 == 1 {
				left--
				candidate = left
			} else {
				right++
				candidate = right
			}
			if candidate < lo || candidate > hi {
				continue
			}
		}

		line, err := idx.Line(f, candidate)
		if err != nil {
			continue
		}
		if t, found := GetTimestamp(format, line); found {
			return t, candidate, true
		}
	}
	return 0, 0, false
}
