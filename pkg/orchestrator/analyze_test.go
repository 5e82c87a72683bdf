package orchestrator

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeNodeLog(t *testing.T, root, node string, lines []string) {
	t.Helper()
	dir := filepath.Join(root, node)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ha-log.txt"), []byte(content), 0o644))
}

func TestAnalyzeGrepWorkerWritesMatchingLines(t *testing.T) {
	root := t.TempDir()
	base := time.Now().Unix()
	writeNodeLog(t, root, "node1", []string{
		"host " + itoa(base) + " CRIT: disk failure",
		"host " + itoa(base+1) + " INFO: fine",
	})
	writeNodeLog(t, root, "node2", []string{
		"host " + itoa(base+2) + " ERROR: oops",
	})

	m := &Master{workRoot: root, AnalysisPatterns: []string{"CRIT:", "ERROR:"}}
	logger := zerolog.Nop()
	err := m.analyze(&logger)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "analysis.txt"))
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "node1")
	assert.Contains(t, text, "CRIT: disk failure")
	assert.Contains(t, text, "node2")
	assert.Contains(t, text, "ERROR: oops")
	assert.NotContains(t, text, "INFO: fine")
}

func TestAnalyzeTimelineWorkerOrdersAcrossNodes(t *testing.T) {
	root := t.TempDir()
	base := time.Now().Unix()
	writeNodeLog(t, root, "node1", []string{"host " + itoa(base+20) + " later event"})
	writeNodeLog(t, root, "node2", []string{"host " + itoa(base) + " earlier event"})

	m := &Master{workRoot: root}
	logger := zerolog.Nop()
	err := m.analyze(&logger)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "timeline.txt"))
	require.NoError(t, err)
	text := string(data)

	earlierIdx := indexOf(text, "earlier event")
	laterIdx := indexOf(text, "later event")
	require.GreaterOrEqual(t, earlierIdx, 0)
	require.GreaterOrEqual(t, laterIdx, 0)
	assert.Less(t, earlierIdx, laterIdx)
}

func TestAnalyzeNoNodesIsNoop(t *testing.T) {
	root := t.TempDir()
	m := &Master{workRoot: root}
	logger := zerolog.Nop()
	err := m.analyze(&logger)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, "analysis.txt"))
	assert.True(t, os.IsNotExist(err))
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
