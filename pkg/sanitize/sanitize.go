// Package sanitize redacts configured sensitive attributes from
// configuration and scheduler-input files (spec §4.3), which may be
// gzip or bzip2 compressed, preserving filesystem timestamps across
// the rewrite. Grounded on original_source/utillib.py's sub_string
// and the attribute-matching test in
// original_source/test/unittests/test_utillib.py::test_sub_string.
package sanitize

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/cuemby/hbreport/pkg/decompress"
	"github.com/ulikunitz/xz"
)

// attrPattern matches `name="P" ... value="V"` where P is captured so
// the caller can test it against the configured sanitize-pattern list,
// and V is captured so Apply can replace it. Attribute order on a
// line always has name before value in crmsh's own XML serialization,
// matching spec §4.3's "value=... following a matched name=... on the
// same line".
var attrPattern = regexp.MustCompile(`name="([^"]*)"([^<]*?)value="([^"]*)"`)

// Test scans path (transparently decompressed) for any line containing
// name="P" where P matches any of patterns, returning true on the
// first match. This is the "test mode" of spec §4.3: the caller issues
// one aggregate warning if any file tests positive and sanitization
// was not requested.
func Test(path string, patterns []string) (bool, error) {
	compiled, err := compilePatterns(patterns)
	if err != nil {
		return false, err
	}

	r, err := decompress.Open(path)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", path, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		for _, m := range attrPattern.FindAllStringSubmatch(line, -1) {
			if matchesAny(m[1], compiled) {
				return true, nil
			}
		}
	}
	return false, nil
}

// Apply rewrites every offending value="..." to value="******" on the
// same line, writes the result back in the original compression
// format (bzip2 sources are re-emitted as gzip, see
// SPEC_FULL.md §7/§10 open question 3 — the stdlib has no bzip2
// writer and none of the example repos in this tree provide one
// either), and restores the original mtime/atime. Apply is idempotent:
// running it a second time on its own output matches the same
// attribute names but the values are already "******" and the
// substitution is a no-op byte-for-byte.
func Apply(path string, patterns []string) (rewrittenPath string, substitution string, err error) {
	compiled, err := compilePatterns(patterns)
	if err != nil {
		return "", "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", "", fmt.Errorf("stat %s: %w", path, err)
	}
	mtime := info.ModTime()
	atime := accessTime(info)

	kind, err := decompress.Detect(path)
	if err != nil {
		return "", "", err
	}

	r, err := decompress.Open(path)
	if err != nil {
		return "", "", fmt.Errorf("open %s: %w", path, err)
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return "", "", fmt.Errorf("read %s: %w", path, err)
	}

	rewritten := sub(string(data), compiled)

	outPath := path
	note := ""
	if kind == decompress.KindBzip2 {
		outPath = strings.TrimSuffix(path, ".bz2") + ".gz"
		note = fmt.Sprintf("%s: bzip2 write-back unsupported, re-emitted as %s", path, outPath)
		kind = decompress.KindGzip
	}

	if err := writeCompressed(outPath, kind, rewritten); err != nil {
		return "", "", fmt.Errorf("write %s: %w", outPath, err)
	}
	if outPath != path {
		if err := os.Remove(path); err != nil {
			return "", "", fmt.Errorf("remove original %s after re-emit: %w", path, err)
		}
	}

	if err := os.Chtimes(outPath, atime, mtime); err != nil {
		return "", "", fmt.Errorf("restore timestamps on %s: %w", outPath, err)
	}

	return outPath, note, nil
}

// sub performs the attribute substitution; it is the direct analogue
// of original_source/utillib.py's sub_string.
func sub(text string, patterns []*regexp.Regexp) string {
	return attrPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := attrPattern.FindStringSubmatch(match)
		name, middle := groups[1], groups[2]
		if !matchesAny(name, patterns) {
			return match
		}
		return fmt.Sprintf(`name="%s"%svalue="******"`, name, middle)
	})
}

func matchesAny(name string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(name) {
			return true
		}
	}
	return false
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile sanitize pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func writeCompressed(path string, kind decompress.Kind, data string) error {
	switch kind {
	case decompress.KindGzip:
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		gw := gzip.NewWriter(f)
		if _, err := gw.Write([]byte(data)); err != nil {
			gw.Close()
			return err
		}
		return gw.Close()
	case decompress.KindXz:
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		xw, err := xz.NewWriter(f)
		if err != nil {
			return err
		}
		if _, err := xw.Write([]byte(data)); err != nil {
			xw.Close()
			return err
		}
		return xw.Close()
	case decompress.KindBzip2:
		// unreachable: Apply redirects bzip2 targets to gzip before
		// calling writeCompressed; kept for completeness.
		return fmt.Errorf("bzip2 write-back is not supported")
	default:
		return os.WriteFile(path, []byte(data), 0o644)
	}
}

// accessTime pulls atime where the platform reports it; on platforms
// where os.FileInfo's Sys() doesn't carry one, mtime is used for both,
// which is the safe fallback the spec's "within one second" tolerance
// allows for.
func accessTime(info os.FileInfo) time.Time {
	if at, ok := platformAccessTime(info); ok {
		return at
	}
	return info.ModTime()
}
