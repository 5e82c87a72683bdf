package clusterexec

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTimedSuccess(t *testing.T) {
	out, err := runTimed(context.Background(), time.Second, "echo", "hello")
	require.NoError(t, err)
	assert.Contains(t, string(out), "hello")
}

func TestRunTimedTimeout(t *testing.T) {
	_, err := runTimed(context.Background(), 10*time.Millisecond, "sleep", "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestRunTimedNonZeroExit(t *testing.T) {
	_, err := runTimed(context.Background(), time.Second, "false")
	require.Error(t, err)
}

func TestRunAllowNonZeroCapturesOutput(t *testing.T) {
	out, err := runAllowNonZero(context.Background(), time.Second, "sh", "-c", "echo partial; exit 1")
	require.NoError(t, err)
	assert.Contains(t, string(out), "partial")
}

func TestBinaryAvailable(t *testing.T) {
	assert.True(t, binaryAvailable("echo"))
	assert.False(t, binaryAvailable("definitely-not-a-real-binary-xyz"))
}

func TestStatePEInputFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pe-input-0.bz2"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pe-warn-1.bz2"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644))

	s := State{}
	files, err := s.PEInputFiles(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestStatePEInputFilesEmptyDir(t *testing.T) {
	s := State{}
	files, err := s.PEInputFiles(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestPathsEnvOverride(t *testing.T) {
	t.Setenv("OCF_ROOT", "/tmp/fake-ocf-root")
	p := Paths{}
	got, err := p.OCFRoot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/tmp/fake-ocf-root", got)
}

func TestPathsOverrideField(t *testing.T) {
	p := Paths{OCFRootOverride: "/opt/ocf"}
	got, err := p.OCFRoot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/opt/ocf", got)
}
