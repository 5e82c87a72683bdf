package logwindow

import (
	"bufio"
	"bytes"
	"fmt"

	"github.com/cuemby/hbreport/pkg/decompress"
	"github.com/cuemby/hbreport/pkg/tmpfiles"
)

// Extract composes archive discovery, classification, decompression
// and binary search into the final concatenated byte range for
// window w across primary and its rotated siblings, per spec §4.2
// "Whole-file and segment composition": if the archive set has a
// single member, emit one segment; otherwise emit [FROM,∞) from the
// oldest straddler, every middle file in full, and (−∞,TO] from the
// newest.
//
// Per-file errors (unparseable timestamps, a missing/corrupt archive)
// are non-fatal: spec §7 says the extractor "returns what it could".
// Extract collects such problems into warnings rather than aborting.
func Extract(reg *tmpfiles.Registry, primary string, w Window) (data []byte, warnings []string, err error) {
	archives, err := DiscoverArchive(primary)
	if err != nil {
		return nil, nil, fmt.Errorf("discover archive set for %s: %w", primary, err)
	}
	if len(archives) == 0 {
		return nil, []string{fmt.Sprintf("no log files found for %s", primary)}, nil
	}

	// Walk the ascending-ctime set newest-first, so a file that ends
	// before FROM (or straddles it) means every file still unvisited is
	// older and discovery can stop there.
	var included []ArchiveFile
	for i := len(archives) - 1; i >= 0; i-- {
		f := archives[i]
		class, err := Classify(reg, f, w)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("classify %s: %v", f.Path, err))
			continue
		}
		switch class {
		case ClassifyOutsideWindow:
			continue
		case ClassifyStopIteration:
			goto doneDiscovery
		case ClassifyInsideWindow, ClassifyStraddlesFrom:
			included = append(included, f)
			if class == ClassifyStraddlesFrom {
				goto doneDiscovery
			}
		}
	}
doneDiscovery:
	// Restore oldest-first order for segment composition.
	for i, j := 0, len(included)-1; i < j; i, j = i+1, j-1 {
		included[i], included[j] = included[j], included[i]
	}

	if len(included) == 0 {
		return nil, append(warnings, fmt.Sprintf("no log content for %s overlaps the requested window", primary)), nil
	}

	var buf bytes.Buffer
	for i, f := range included {
		isOldest := i == 0
		isNewest := i == len(included)-1
		single := len(included) == 1

		segment, segWarnings, err := extractSegment(reg, f, w, single, isOldest, isNewest)
		warnings = append(warnings, segWarnings...)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("extract %s: %v", f.Path, err))
			continue
		}
		buf.Write(segment)
	}

	return buf.Bytes(), warnings, nil
}

// extractSegment picks the line range to emit from one archive member
// according to its position in the included set: the oldest straddler
// gets [FROM,end], the newest gets [start,TO], everything in the
// middle is emitted whole, and a lone file gets both bounds applied.
func extractSegment(reg *tmpfiles.Registry, f ArchiveFile, w Window, single, isOldest, isNewest bool) ([]byte, []string, error) {
	df, err := decompress.Materialize(reg, f.Path)
	if err != nil {
		return nil, nil, err
	}
	defer df.Close()

	idx, err := buildLineIndex(df)
	if err != nil {
		return nil, nil, err
	}
	if idx.N() == 0 {
		return nil, nil, nil
	}

	lines, err := readLines(df)
	if err != nil {
		return nil, nil, err
	}
	format := DetectFormat(f.Path, lines)
	if format == FormatNone {
		return nil, []string{fmt.Sprintf("%s: no detector matched in leading lines, skipping", f.Path)}, nil
	}

	fromLine := 1
	toLine := idx.N()

	applyFrom := single || isOldest
	applyTo := single || isNewest

	if applyFrom && w.From > 0 {
		n, err := LocateLine(df, idx, format, w.From)
		if err != nil {
			return nil, []string{fmt.Sprintf("%s: %v", f.Path, err)}, nil
		}
		fromLine = n
	}
	if applyTo && w.To > 0 {
		n, err := LocateLine(df, idx, format, w.To)
		if err != nil {
			return nil, []string{fmt.Sprintf("%s: %v", f.Path, err)}, nil
		}
		toLine = n
		// LocateLine finds the first line >= TO; a line stamped after
		// TO lies outside the window.
		if line, err := idx.Line(df, n); err == nil {
			if ts, ok := GetTimestamp(format, line); ok && ts > w.To {
				toLine = n - 1
			}
		}
	}

	if fromLine > toLine {
		return nil, nil, nil
	}

	var out bytes.Buffer
	w2 := bufio.NewWriter(&out)
	for n := fromLine; n <= toLine; n++ {
		line, err := idx.Line(df, n)
		if err != nil {
			break
		}
		w2.WriteString(line)
		w2.WriteByte('\n')
	}
	if err := w2.Flush(); err != nil {
		return nil, nil, err
	}
	return out.Bytes(), nil, nil
}
