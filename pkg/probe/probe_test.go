package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/hbreport/pkg/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePaths struct {
	ocfRoot      string
	ocfRootErr   error
	crmDaemonDir string
	peStateDir   string
	cibDir       string
}

func (f fakePaths) OCFRoot(ctx context.Context) (string, error) { return f.ocfRoot, f.ocfRootErr }
func (f fakePaths) CRMDaemonDir(ctx context.Context) (string, error) {
	return f.crmDaemonDir, nil
}
func (f fakePaths) PEStateDir(ctx context.Context) (string, error) { return f.peStateDir, nil }
func (f fakePaths) CIBDir(ctx context.Context) (string, error)     { return f.cibDir, nil }

// setupClusterTree builds a minimal on-disk layout satisfying every
// step of Probe, returning the fakePaths pointing at it.
func setupClusterTree(t *testing.T) fakePaths {
	t.Helper()
	root := t.TempDir()

	ocf := filepath.Join(root, "ocf")
	require.NoError(t, os.MkdirAll(filepath.Join(ocf, "lib", "heartbeat"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(ocf, "lib", "heartbeat", "ocf-directories"),
		[]byte("HA_VARLIB:=/var/lib/heartbeat}\nHA_BIN:=/usr/lib/heartbeat}\n"),
		0o644,
	))

	daemon := filepath.Join(root, "daemon")
	require.NoError(t, os.MkdirAll(daemon, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(daemon, "crmd"), []byte("#!/bin/true"), 0o755))

	pe := filepath.Join(root, "pengine")
	require.NoError(t, os.MkdirAll(pe, 0o755))

	cib := filepath.Join(root, "cib")
	require.NoError(t, os.MkdirAll(cib, 0o755))

	return fakePaths{ocfRoot: ocf, crmDaemonDir: daemon, peStateDir: pe, cibDir: cib}
}

func TestProbeHappyPath(t *testing.T) {
	cp := setupClusterTree(t)
	p, err := Probe(context.Background(), cp, nil)
	require.NoError(t, err)
	assert.Equal(t, cp.ocfRoot, p.OCFDir)
	assert.Equal(t, "/var/lib/heartbeat", p.HAVarlib)
	assert.Equal(t, "/usr/lib/heartbeat", p.HABin)
	assert.Equal(t, cp.crmDaemonDir, p.CRMDaemonDir)
	assert.Equal(t, cp.peStateDir, p.PEStateDir)
	assert.Equal(t, cp.cibDir, p.CIBDir)
}

func TestProbeMissingOCFRootIsFatal(t *testing.T) {
	cp := fakePaths{ocfRootErr: errors.New("not found")}
	_, err := Probe(context.Background(), cp, nil)
	require.Error(t, err)
	assert.True(t, report.IsFatal(err))
}

func TestProbeDaemonDirWithoutExecutableCrmdIsFatal(t *testing.T) {
	cp := setupClusterTree(t)
	require.NoError(t, os.Chmod(filepath.Join(cp.crmDaemonDir, "crmd"), 0o644))
	_, err := Probe(context.Background(), cp, nil)
	require.Error(t, err)
	assert.True(t, report.IsFatal(err))
}

func TestFindLogPrecedence(t *testing.T) {
	dir := t.TempDir()
	p := &Paths{HAVarlib: dir}

	// nothing exists yet: falls through to the debug-log default.
	assert.Equal(t, filepath.Join(dir, "ha-debug"), FindLog(p, nil))

	pacemakerLog := filepath.Join(dir, "pacemaker.log")
	require.NoError(t, os.WriteFile(pacemakerLog, nil, 0o644))
	assert.Equal(t, pacemakerLog, FindLog(p, nil))

	journal := filepath.Join(dir, "journal.log")
	require.NoError(t, os.WriteFile(journal, nil, 0o644))
	assert.Equal(t, journal, FindLog(p, nil))

	extra := filepath.Join(dir, "extra.log")
	require.NoError(t, os.WriteFile(extra, nil, 0o644))
	assert.Equal(t, extra, FindLog(p, []string{extra}))

	// the pacemaker log itself, if listed as an "extra" log, is
	// skipped rather than treated as a hit for that tier.
	assert.Equal(t, journal, FindLog(p, []string{pacemakerLog}))
}
