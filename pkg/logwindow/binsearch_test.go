package logwindow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeIndexable(t *testing.T, lines []string) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "indexed.log")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestBuildLineIndexAndLine(t *testing.T) {
	f := writeIndexable(t, []string{"host 100 a", "host 200 b", "host 300 c"})
	idx, err := buildLineIndex(f)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.N())

	line, err := idx.Line(f, 2)
	require.NoError(t, err)
	assert.Equal(t, "host 200 b", line)
}

func TestLineOutOfRange(t *testing.T) {
	f := writeIndexable(t, []string{"host 100 a"})
	idx, err := buildLineIndex(f)
	require.NoError(t, err)

	_, err = idx.Line(f, 0)
	assert.Error(t, err)
	_, err = idx.Line(f, 2)
	assert.Error(t, err)
}

func TestLocateLineFindsExactMatch(t *testing.T) {
	f := writeIndexable(t, []string{
		"host 100 a", "host 200 b", "host 300 c", "host 400 d", "host 500 e",
	})
	idx, err := buildLineIndex(f)
	require.NoError(t, err)

	n, err := LocateLine(f, idx, FormatLegacy, 300)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestLocateLineFindsFirstGreaterOrEqual(t *testing.T) {
	f := writeIndexable(t, []string{
		"host 100 a", "host 200 b", "host 400 c", "host 500 d",
	})
	idx, err := buildLineIndex(f)
	require.NoError(t, err)

	n, err := LocateLine(f, idx, FormatLegacy, 300)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestLocateLinePastEndReturnsLastLine(t *testing.T) {
	f := writeIndexable(t, []string{"host 100 a", "host 200 b"})
	idx, err := buildLineIndex(f)
	require.NoError(t, err)

	n, err := LocateLine(f, idx, FormatLegacy, 9999)
	require.NoError(t, err)
	assert.Equal(t, idx.N(), n)
}

func TestLocateLineRecoversFromMalformedMidpoint(t *testing.T) {
	f := writeIndexable(t, []string{
		"host 100 a",
		"host 200 b",
		"garbage unparseable line",
		"host 400 c",
		"host 500 d",
	})
	idx, err := buildLineIndex(f)
	require.NoError(t, err)

	n, err := LocateLine(f, idx, FormatLegacy, 400)
	require.NoError(t, err)
	line, err := idx.Line(f, n)
	require.NoError(t, err)
	assert.Equal(t, "host 400 c", line)
}

func TestLocateLineEmptyFileErrors(t *testing.T) {
	f := writeIndexable(t, nil)
	idx, err := buildLineIndex(f)
	require.NoError(t, err)

	_, err = LocateLine(f, idx, FormatLegacy, 100)
	assert.Error(t, err)
}
