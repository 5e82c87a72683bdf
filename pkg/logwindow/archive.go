package logwindow

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cuemby/hbreport/pkg/decompress"
	"github.com/cuemby/hbreport/pkg/tmpfiles"
)

// Window is the [from, to] timestamp window of spec §3: To == 0 means
// open-ended to end of log.
type Window struct {
	From float64
	To   float64
}

// ArchiveFile is one member of the log-file set (spec §3): the
// primary file plus every rotated generation matching
// primary+"*[0-z9]", sorted ascending by ctime.
type ArchiveFile struct {
	Path  string
	CTime int64
}

// Classification is the per-file result of the archive-discovery
// table in spec §4.2.
type Classification int

const (
	ClassifyOutsideWindow Classification = iota // 0: empty or entirely outside
	ClassifyInsideWindow                         // 1: entirely inside
	ClassifyStopIteration                        // 2: FROM is after file's last line
	ClassifyStraddlesFrom                        // 3: straddles FROM
)

// DiscoverArchive builds the candidate set {primary} ∪
// glob(primary+"*[0-z9]"), sorted ascending by ctime, per spec §4.2
// "Archive discovery".
func DiscoverArchive(primary string) ([]ArchiveFile, error) {
	seen := map[string]bool{}
	var files []ArchiveFile

	add := func(path string) error {
		if seen[path] {
			return nil
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil // vanished between glob and stat; skip, non-fatal
		}
		seen[path] = true
		files = append(files, ArchiveFile{Path: path, CTime: ctime(info)})
		return nil
	}

	if _, err := os.Stat(primary); err == nil {
		if err := add(primary); err != nil {
			return nil, err
		}
	}

	matches, err := filepath.Glob(primary + "*[0-z9]")
	if err != nil {
		return nil, fmt.Errorf("glob rotated logs for %s: %w", primary, err)
	}
	for _, m := range matches {
		if err := add(m); err != nil {
			return nil, err
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].CTime < files[j].CTime })
	return files, nil
}

// Classify reads the first and last 10 lines of f (after transparent
// decompression), extracts the first parseable timestamp from each,
// and compares against w, per spec §4.2's classification table. If
// either end yields no timestamp the file is classified 0 (skip).
func Classify(reg *tmpfiles.Registry, f ArchiveFile, w Window) (Classification, error) {
	info, err := os.Stat(f.Path)
	if err != nil {
		return ClassifyOutsideWindow, nil
	}
	if info.Size() == 0 {
		return ClassifyOutsideWindow, nil
	}

	decomp, err := decompress.Materialize(reg, f.Path)
	if err != nil {
		return ClassifyOutsideWindow, fmt.Errorf("materialize %s: %w", f.Path, err)
	}
	defer decomp.Close()

	lines, err := readLines(decomp)
	if err != nil {
		return ClassifyOutsideWindow, fmt.Errorf("read %s: %w", f.Path, err)
	}
	if len(lines) == 0 {
		return ClassifyOutsideWindow, nil
	}

	format := DetectFormat(f.Path, lines)
	if format == FormatNone {
		return ClassifyOutsideWindow, nil
	}

	firstTS, ok := firstTimestamp(format, head(lines, 10))
	if !ok {
		return ClassifyOutsideWindow, nil
	}
	lastTS, ok := firstTimestamp(format, tail(lines, 10))
	if !ok {
		return ClassifyOutsideWindow, nil
	}

	// Classification 2: FROM is after this file's last line entirely —
	// Extract visits the archive set newest-first, so every file still
	// to visit is older and cannot contain anything in the window
	// either; iteration stops.
	if w.From > 0 && w.From > lastTS {
		return ClassifyStopIteration, nil
	}

	// Classification 0: file starts after the window's upper bound —
	// entirely outside, but (unlike case 2) discovery keeps looking,
	// since an older sibling file might still straddle FROM.
	if w.To > 0 && firstTS > w.To {
		return ClassifyOutsideWindow, nil
	}

	// Classification 3: the window's lower bound falls inside this
	// file's own span.
	if w.From > 0 && firstTS < w.From && lastTS >= w.From {
		return ClassifyStraddlesFrom, nil
	}

	return ClassifyInsideWindow, nil
}

func firstTimestamp(format StampFormat, lines []string) (float64, bool) {
	for _, l := range lines {
		if ts, ok := GetTimestamp(format, l); ok {
			return ts, true
		}
	}
	return 0, false
}

func head(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[:n]
}

func tail(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}

func readLines(f *os.File) ([]string, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}
	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}
	return lines, sc.Err()
}

func ctime(info os.FileInfo) int64 {
	// os.FileInfo has no portable ctime; ModTime is the closest
	// standard-library stand-in and, for rotated logs that are written
	// once and never touched again, is equal to ctime in practice.
	return info.ModTime().Unix()
}
