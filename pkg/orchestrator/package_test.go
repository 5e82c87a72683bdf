package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/hbreport/pkg/reportcfg"
)

func configWithDest(dest string) reportcfg.Config {
	return reportcfg.Config{Dest: dest}
}

func TestWriteDescriptionSkippedWhenNoEditorConfigured(t *testing.T) {
	root := t.TempDir()
	m := &Master{workRoot: root}
	logger := zerolog.Nop()
	err := m.writeDescription(&logger)
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(root, "description.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteDescriptionSkippedWhenSkipDescriptionSet(t *testing.T) {
	root := t.TempDir()
	m := &Master{workRoot: root, SkipDescription: true, EditorProg: "true"}
	logger := zerolog.Nop()
	err := m.writeDescription(&logger)
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(root, "description.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteDescriptionUsesEditorOutput(t *testing.T) {
	root := t.TempDir()
	// "editor" here is a tiny shell script standing in for a real
	// interactive editor: it appends fixed text to whatever scratch
	// file it's invoked against.
	script := filepath.Join(root, "fake-editor.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho 'operator notes' > \"$1\"\n"), 0o755))

	m := &Master{workRoot: root, EditorProg: script}
	logger := zerolog.Nop()
	err := m.writeDescription(&logger)
	require.NoError(t, err)

	data, readErr := os.ReadFile(filepath.Join(root, "description.txt"))
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "operator notes")
}

func TestPackageReportKeepDirMovesWorkRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "sysinfo.txt"), []byte("x"), 0o644))

	destDir := t.TempDir()
	m := &Master{
		workRoot: root,
		DestDir:  destDir,
		KeepDir:  true,
		Config:   configWithDest("kept"),
	}
	logger := zerolog.Nop()
	dest, err := m.packageReport(&logger)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "kept"), dest)

	info, statErr := os.Stat(dest)
	require.NoError(t, statErr)
	assert.True(t, info.IsDir())
}

func TestPackageReportCompressesByDefault(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "sysinfo.txt"), []byte("x"), 0o644))

	destDir := t.TempDir()
	m := &Master{
		workRoot: root,
		DestDir:  destDir,
		Config:   configWithDest("compressed"),
	}
	logger := zerolog.Nop()
	dest, err := m.packageReport(&logger)
	require.NoError(t, err)
	assert.Contains(t, dest, "compressed.tar.")

	_, statErr := os.Stat(dest)
	assert.NoError(t, statErr)
}
