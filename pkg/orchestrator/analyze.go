package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/hbreport/pkg/grep"
	"github.com/cuemby/hbreport/pkg/logwindow"
)

// analyze runs spec §4.1 phase 7's two concurrent workers over the
// collected node directories: the grep worker, which searches every
// node's ha-log.txt for m.AnalysisPatterns, and the timeline worker.
// Worker failures are logged, not returned.
func (m *Master) analyze(logger *zerolog.Logger) error {
	nodes := m.collectedNodeDirs()
	if len(nodes) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := m.runGrepWorker(nodes); err != nil {
			logger.Warn().Err(err).Msg("analysis grep worker failed")
		}
	}()
	go func() {
		defer wg.Done()
		if err := m.runTimelineWorker(nodes); err != nil {
			logger.Warn().Err(err).Msg("timeline worker failed")
		}
	}()
	wg.Wait()
	return nil
}

// collectedNodeDirs lists the per-node subdirectories actually present
// under the master's working root, since some nodes may have been
// skipped in earlier phases.
func (m *Master) collectedNodeDirs() []string {
	entries, err := os.ReadDir(m.workRoot)
	if err != nil {
		return nil
	}
	var nodes []string
	for _, e := range entries {
		if e.IsDir() {
			nodes = append(nodes, e.Name())
		}
	}
	sort.Strings(nodes)
	return nodes
}

// runGrepWorker implements spec §4.1 phase 7's "one grepping each
// node's ha-log.txt for the configured pattern set and emitting an
// analysis file".
func (m *Master) runGrepWorker(nodes []string) error {
	if len(m.AnalysisPatterns) == 0 {
		return nil
	}
	var out strings.Builder
	for _, node := range nodes {
		logPath := filepath.Join(m.workRoot, node, "ha-log.txt")
		if _, err := os.Stat(logPath); err != nil {
			continue
		}
		for _, pattern := range m.AnalysisPatterns {
			lines, err := grep.Search(context.Background(), pattern, grep.Target{File: logPath}, grep.Options{LineNumbers: true})
			if err != nil {
				continue
			}
			for _, l := range lines {
				fmt.Fprintf(&out, "%s: %s\n", node, l)
			}
		}
	}
	return os.WriteFile(filepath.Join(m.workRoot, "analysis.txt"), []byte(out.String()), 0o644)
}

// timelineEntry is one merged, time-ordered line of the cross-node
// event timeline spec §4.1 phase 7's second worker builds.
type timelineEntry struct {
	ts   float64
	node string
	line string
}

// runTimelineWorker implements spec §4.1 phase 7's "building an event
// timeline": every node's ha-log.txt lines, tagged with their source
// node and merged in timestamp order into one file.
func (m *Master) runTimelineWorker(nodes []string) error {
	var entries []timelineEntry
	for _, node := range nodes {
		logPath := filepath.Join(m.workRoot, node, "ha-log.txt")
		data, err := os.ReadFile(logPath)
		if err != nil {
			continue
		}
		lines := strings.Split(string(data), "\n")
		format := logwindow.DetectFormat(logPath, lines)
		for _, line := range lines {
			if line == "" {
				continue
			}
			ts, ok := logwindow.GetTimestamp(format, line)
			if !ok {
				continue
			}
			entries = append(entries, timelineEntry{ts: ts, node: node, line: line})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].ts < entries[j].ts })

	var out strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&out, "[%s] %s\n", e.node, e.line)
	}
	return os.WriteFile(filepath.Join(m.workRoot, "timeline.txt"), []byte(out.String()), 0o644)
}
