package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/hbreport/pkg/metrics"
	"github.com/cuemby/hbreport/pkg/nodetable"
	"github.com/cuemby/hbreport/pkg/probe"
	"github.com/cuemby/hbreport/pkg/tmpfiles"
)

func TestCollectLocalWritesUnderWorkRootWhenLocalhostIsAMember(t *testing.T) {
	reg, err := tmpfiles.New()
	require.NoError(t, err)
	defer reg.Cleanup()

	root := t.TempDir()
	m := &Master{
		Reg:       reg,
		State:     fakeClusterState{},
		Localhost: "local",
		workRoot:  root,
		table:     nodetable.Table{Nodes: []string{"local", "peer1"}},
	}
	logger := zerolog.Nop()
	err = m.collectLocal(context.Background(), &probe.Paths{}, &logger)
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(root, "local", "sysinfo.txt"))
	assert.NoError(t, statErr)
}

func TestCollectLocalNoopWhenNotAMember(t *testing.T) {
	reg, err := tmpfiles.New()
	require.NoError(t, err)
	defer reg.Cleanup()

	root := t.TempDir()
	m := &Master{
		Reg:      reg,
		State:    fakeClusterState{},
		workRoot: root,
		table:    nodetable.Table{Nodes: []string{"peer1"}},
	}
	logger := zerolog.Nop()
	err = m.collectLocal(context.Background(), &probe.Paths{}, &logger)
	require.NoError(t, err)

	entries, _ := os.ReadDir(root)
	assert.Empty(t, entries)
}

func TestFanOutReassemblesEachPeerUnderItsOwnDir(t *testing.T) {
	root := t.TempDir()
	m := &Master{
		workRoot: root,
		table: nodetable.Table{
			Nodes:            []string{"peer1", "peer2"},
			PasswordRequired: map[string]bool{},
		},
		users: map[string]string{"peer1": "hacluster", "peer2": "hacluster"},
		Shell: fakeShell{
			collectFn: func(node string) ([]byte, error) {
				return tarOf(t, map[string]string{"sysinfo.txt": "data-" + node}), nil
			},
		},
	}
	logger := zerolog.Nop()
	err := m.fanOut(context.Background(), &logger)
	require.NoError(t, err)

	for _, node := range []string{"peer1", "peer2"} {
		data, readErr := os.ReadFile(filepath.Join(root, node, "sysinfo.txt"))
		require.NoError(t, readErr)
		assert.Equal(t, "data-"+node, string(data))
	}
}

func TestFanOutSkipsLocalhost(t *testing.T) {
	root := t.TempDir()
	calls := map[string]bool{}
	m := &Master{
		workRoot:  root,
		Localhost: "local",
		table: nodetable.Table{
			Nodes:            []string{"local", "peer1"},
			PasswordRequired: map[string]bool{},
		},
		users: map[string]string{"peer1": "hacluster"},
		Shell: fakeShell{
			collectFn: func(node string) ([]byte, error) {
				calls[node] = true
				return tarOf(t, map[string]string{"f": "x"}), nil
			},
		},
	}
	logger := zerolog.Nop()
	err := m.fanOut(context.Background(), &logger)
	require.NoError(t, err)
	assert.True(t, calls["peer1"])
	assert.False(t, calls["local"])
}

func TestFanOutSingleNodeIsNoop(t *testing.T) {
	root := t.TempDir()
	m := &Master{
		workRoot: root,
		table: nodetable.Table{
			Nodes:            []string{"peer1"},
			PasswordRequired: map[string]bool{},
		},
		SingleNode: true,
		Shell: fakeShell{
			collectFn: func(node string) ([]byte, error) {
				t.Fatalf("should not be called in single-node mode")
				return nil, nil
			},
		},
	}
	logger := zerolog.Nop()
	err := m.fanOut(context.Background(), &logger)
	require.NoError(t, err)
}

func TestFanOutRecordsBytesEmitted(t *testing.T) {
	root := t.TempDir()
	m := &Master{
		workRoot: root,
		table: nodetable.Table{
			Nodes:            []string{"peer1"},
			PasswordRequired: map[string]bool{},
		},
		users:   map[string]string{"peer1": "hacluster"},
		Metrics: metrics.New(),
		Shell: fakeShell{
			collectFn: func(node string) ([]byte, error) {
				return tarOf(t, map[string]string{"sysinfo.txt": "some collected bytes"}), nil
			},
		},
	}
	logger := zerolog.Nop()
	err := m.fanOut(context.Background(), &logger)
	require.NoError(t, err)

	assert.Greater(t, testutil.ToFloat64(m.Metrics.BytesEmitted), float64(0))
}

func TestCollectPeerToleratesShellError(t *testing.T) {
	root := t.TempDir()
	m := &Master{
		workRoot: root,
		table: nodetable.Table{
			Nodes:            []string{"peer1"},
			PasswordRequired: map[string]bool{},
		},
		users: map[string]string{"peer1": "hacluster"},
		Shell: fakeShell{
			collectFn: func(node string) ([]byte, error) {
				return nil, errors.New("ssh failed")
			},
		},
	}
	logger := zerolog.Nop()
	err := m.fanOut(context.Background(), &logger)
	require.NoError(t, err) // collectPeer failures are logged, never fatal

	entries, _ := os.ReadDir(root)
	assert.Empty(t, entries)
}
