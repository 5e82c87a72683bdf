package logwindow

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/hbreport/pkg/tmpfiles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSingleFileAppliesBothBounds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ha-log")
	base := float64(time.Now().Unix())
	writeLogFile(t, path, []string{
		legacyLine(base, "one"),
		legacyLine(base+10, "two"),
		legacyLine(base+20, "three"),
		legacyLine(base+30, "four"),
	}, time.Now())

	reg, err := tmpfiles.New()
	require.NoError(t, err)
	defer reg.Cleanup()

	data, warnings, err := Extract(reg, path, Window{From: base + 5, To: base + 25})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	text := string(data)
	assert.NotContains(t, text, "one")
	assert.Contains(t, text, "two")
	assert.Contains(t, text, "three")
	assert.NotContains(t, text, "four")
}

func TestExtractNoMatchesReturnsWarning(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ha-log")
	base := float64(time.Now().Unix())
	writeLogFile(t, path, []string{legacyLine(base, "only")}, time.Now())

	reg, err := tmpfiles.New()
	require.NoError(t, err)
	defer reg.Cleanup()

	_, warnings, err := Extract(reg, path, Window{From: base + 1000})
	require.NoError(t, err)
	assert.NotEmpty(t, warnings)
}

func TestExtractMissingPrimaryReturnsWarningNotError(t *testing.T) {
	dir := t.TempDir()
	reg, err := tmpfiles.New()
	require.NoError(t, err)
	defer reg.Cleanup()

	data, warnings, err := Extract(reg, filepath.Join(dir, "nonexistent"), Window{})
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.NotEmpty(t, warnings)
}

func TestExtractAcrossRotatedFilesAppliesFromToOldestAndTo(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "ha-log")
	rotated := primary + ".1"
	base := float64(time.Now().Unix())

	writeLogFile(t, rotated, []string{
		legacyLine(base-100, "old-before"),
		legacyLine(base-50, "old-after-from"),
	}, time.Now().Add(-time.Hour))
	writeLogFile(t, primary, []string{
		legacyLine(base, "new-one"),
		legacyLine(base+50, "new-two"),
	}, time.Now())

	reg, err := tmpfiles.New()
	require.NoError(t, err)
	defer reg.Cleanup()

	data, _, err := Extract(reg, primary, Window{From: base - 60, To: base + 10})
	require.NoError(t, err)
	text := string(data)
	assert.NotContains(t, text, "old-before")
	assert.Contains(t, text, "old-after-from")
	assert.Contains(t, text, "new-one")
	assert.NotContains(t, text, "new-two")
}

func TestExtractEmptyPrimaryFileNoArchives(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ha-log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	reg, err := tmpfiles.New()
	require.NoError(t, err)
	defer reg.Cleanup()

	data, warnings, err := Extract(reg, path, Window{})
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.NotEmpty(t, warnings)
}
