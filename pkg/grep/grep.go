// Package grep reimplements the shared grep primitive of spec §4.5,
// grounded on original_source/utillib.py's grep/grep_file/grep_row.
// It supports file, directory (recursive), glob, and command-output
// inputs, and the flag set -v/-i/-w/-n/-l/-q.
package grep

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
)

// Options mirrors the flag string accepted by the Python grep(): each
// field corresponds to one letter of "vinlwq".
type Options struct {
	Invert       bool // v
	IgnoreCase   bool // i
	WholeWord    bool // w
	LineNumbers  bool // n
	ListNameOnly bool // l
	Quiet        bool // q: caller only wants a boolean, see Found
}

// Target selects what Search reads from. Exactly one field is set.
type Target struct {
	File    string // plain file or directory (recursive) or glob pattern
	Command string // shell command whose stdout is searched
}

// Search runs pattern against target according to opts, returning
// matched (or, with Invert, unmatched) lines. With opts.ListNameOnly
// and a directory/glob target, the result is the list of file paths
// containing at least one match rather than the matched lines
// themselves, matching grep_file's "l" flag behavior.
func Search(ctx context.Context, pattern string, target Target, opts Options) ([]string, error) {
	switch {
	case target.Command != "":
		data, err := commandOutput(ctx, target.Command)
		if err != nil {
			return nil, err
		}
		return grepRow(pattern, data, opts)
	case target.File == "":
		return nil, nil
	}

	info, err := os.Stat(target.File)
	switch {
	case err == nil && info.IsDir():
		return grepDir(pattern, target.File, opts)
	case err == nil:
		return grepFile(pattern, target.File, opts)
	default:
		matches, globErr := filepath.Glob(target.File)
		if globErr != nil {
			return nil, fmt.Errorf("glob %s: %w", target.File, globErr)
		}
		var res []string
		for _, f := range matches {
			lines, err := grepFile(pattern, f, opts)
			if err != nil {
				return nil, err
			}
			res = append(res, lines...)
		}
		return res, nil
	}
}

// Found runs Search and reports only whether any line matched,
// matching the Python grep(..., flag="q") boolean-return contract.
func Found(ctx context.Context, pattern string, target Target, opts Options) (bool, error) {
	opts.Quiet = true
	res, err := Search(ctx, pattern, target, opts)
	if err != nil {
		return false, err
	}
	return len(res) > 0, nil
}

func grepDir(pattern, root string, opts Options) ([]string, error) {
	var res []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		lines, err := grepFile(pattern, path, opts)
		if err != nil {
			return err
		}
		res = append(res, lines...)
		return nil
	})
	return res, err
}

func grepFile(pattern, path string, opts Options) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	res, err := grepRow(pattern, data, opts)
	if err != nil {
		return nil, err
	}
	if len(res) > 0 && opts.ListNameOnly {
		return []string{path}, nil
	}
	return res, nil
}

func grepRow(pattern string, data []byte, opts Options) ([]string, error) {
	effective := pattern
	if opts.WholeWord {
		effective = `\b` + effective + `\b`
	}
	reFlags := ""
	if opts.IgnoreCase {
		reFlags = "(?i)"
	}
	re, err := regexp.Compile(reFlags + effective)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}

	var res []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		matched := re.MatchString(line)
		if matched == opts.Invert {
			continue
		}
		if opts.LineNumbers {
			res = append(res, fmt.Sprintf("%d:%s", lineNo, line))
		} else {
			res = append(res, line)
		}
	}
	return res, sc.Err()
}

func commandOutput(ctx context.Context, command string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("run %q: %w", command, err)
	}
	return out, nil
}
