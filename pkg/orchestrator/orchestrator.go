// Package orchestrator implements the master side of spec §4.1: the
// controller that discovers peer nodes, establishes remote-shell
// connectivity, launches identical collector processes on each peer
// with a serialized environment, and reassembles their tar-streamed
// outputs into one local directory tree. Its eight phases
// (probe, discover, negotiate, resolvePrivilege, collectLocal, fanOut,
// analyze, package) are strictly sequential, matching spec §4.1
// "Master phases are strictly sequential."
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cuemby/hbreport/pkg/collector"
	hblog "github.com/cuemby/hbreport/pkg/log"
	"github.com/cuemby/hbreport/pkg/metrics"
	"github.com/cuemby/hbreport/pkg/nodetable"
	"github.com/cuemby/hbreport/pkg/probe"
	"github.com/cuemby/hbreport/pkg/report"
	"github.com/cuemby/hbreport/pkg/reportcfg"
	"github.com/cuemby/hbreport/pkg/sshcache"
	"github.com/cuemby/hbreport/pkg/tmpfiles"
	"github.com/rs/zerolog"
)

// candidateUsers is the default remote-login candidate list of spec
// §4.1 phase 3, tried in order until one succeeds. "__default" stands
// for "no explicit user" (ssh's own default: the invoking user's own
// account on the remote host).
var candidateUsers = []string{"__default", "root", "hacluster"}

// Master drives the eight ordered phases of spec §4.1 against one
// invocation's configuration. Every field is resolved before Run is
// called; Run itself performs no argument parsing.
type Master struct {
	Config    reportcfg.Config
	Paths     probe.ClusterPaths
	Querier   nodetable.ClusterQuerier
	State     collector.ClusterState
	Logger    zerolog.Logger
	Reg       *tmpfiles.Registry
	Metrics   *metrics.Registry
	SSHCache  *sshcache.Cache
	Shell     RemoteShell
	Localhost string // this host's own node name, "" if not a member

	ExplicitUser     string   // -u, overrides candidateUsers entirely
	SSHOpts          string   // -X, extra ssh(1) options
	BinaryPath       string   // path to this executable, for the remote command line
	DestDir          string   // directory DEST is created under
	KeepDir          bool     // -d: leave DEST as a directory, skip packaging
	SingleNode       bool     // -S: never negotiate or fan out to other nodes
	ForceOverwrite   bool     // -Z: remove a pre-existing destination instead of failing
	EditorProg       string   // -e: editor invoked for the operator's free-text description
	SkipDescription  bool     // -D: never invoke an editor, even if EditorProg is set
	AnalysisPatterns []string // -L, patterns the analysis grep worker searches for

	// workRoot is the master's own working directory,
	// <tmp>/<report-name>/ of spec §3. Populated by Run.
	workRoot string
	table    nodetable.Table
	users    map[string]string // node -> resolved login user
}

// RemoteShell abstracts the ssh invocation of spec §4.1 phases 3 and
// 6, so orchestration logic is unit-testable without a real network.
type RemoteShell interface {
	// Probe attempts a non-interactive login as user@node and reports
	// success, matching "ssh -T -o BatchMode=yes NODE true".
	Probe(ctx context.Context, node, user, sshOpts string) bool
	// Collect runs the collector command on node as user and streams
	// its stdout (a tar archive) to the returned ReadCloser.
	Collect(ctx context.Context, node, user, sshOpts, remoteCmd string) (io.ReadCloser, error)
}

// phaseNames is the ordered list Run executes, used for both
// log.WithPhase scoping and metrics.PhaseDuration labels.
var phaseNames = []string{
	"probe", "discover", "negotiate", "resolve-privilege",
	"collect-local", "fan-out", "analyze", "package",
}

// Run executes all eight phases in order against ctx, returning the
// first fatal error encountered (spec §7: only the four fatal classes
// ever abort the whole run). Non-fatal per-node and per-file problems
// are logged and recorded in the tree instead of returned.
func (m *Master) Run(ctx context.Context) (string, error) {
	var paths *probe.Paths

	for _, phase := range phaseNames {
		timer := m.timer(phase)
		logger := hblog.WithPhase(m.Logger, phase)

		var err error
		switch phase {
		case "probe":
			paths, err = probe.Probe(ctx, m.Paths, m.Config.ExtraLogs)
		case "discover":
			err = m.discover(ctx, &logger)
		case "negotiate":
			err = m.negotiate(ctx, &logger)
		case "resolve-privilege":
			m.resolvePrivilege()
		case "collect-local":
			err = m.collectLocal(ctx, paths, &logger)
		case "fan-out":
			err = m.fanOut(ctx, &logger)
		case "analyze":
			err = m.analyze(&logger)
		case "package":
			var dest string
			dest, err = m.packageReport(&logger)
			if err == nil {
				timer.Stop()
				return dest, nil
			}
		}

		timer.Stop()
		if err != nil {
			if report.IsFatal(err) {
				return "", err
			}
			logger.Warn().Err(err).Msg("phase completed with warnings")
		}
	}

	return m.workRoot, nil
}

func (m *Master) timer(phase string) *metrics.Timer {
	if m.Metrics == nil {
		m.Metrics = metrics.New()
	}
	return m.Metrics.StartPhase(phase)
}

// discover implements spec §4.1 phase 2: node discovery via
// pkg/nodetable's three-tier precedence, then creates the master's
// own working directory root (spec §3 "Working directory tree").
func (m *Master) discover(ctx context.Context, logger *zerolog.Logger) error {
	table, err := nodetable.Discover(ctx, m.Querier, m.Config.UserNodes)
	if err != nil {
		return report.Fatal(fmt.Errorf("no nodes could be determined: %w", err))
	}
	if len(table.Nodes) == 0 && m.Localhost == "" {
		return report.Fatal(fmt.Errorf("no nodes determined and this host is not a cluster member"))
	}
	m.table = table
	m.Config.Nodes = table.Nodes

	if err := m.validateDestName(); err != nil {
		return report.Fatal(err)
	}
	root := filepath.Join(os.TempDir(), m.Config.Dest)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return report.Fatal(fmt.Errorf("create working directory %s: %w", root, err))
	}
	if err := m.Reg.Add(root); err != nil {
		return report.Fatal(fmt.Errorf("register working directory: %w", err))
	}
	m.workRoot = root

	logger.Info().Strs("nodes", table.Nodes).Msg("node discovery complete")
	return nil
}

// validateDestName enforces spec §4.1's "fatal if the destination
// name is not a safe filename" by rejecting an empty name, path
// separators, "." and ".." (other names starting with a dot are
// accepted), and spec §4.1's "the destination directory does not
// exist" by requiring DestDir already exist.
func (m *Master) validateDestName() error {
	dest := m.Config.Dest
	if dest == "" || dest != filepath.Base(dest) || dest == "." || dest == ".." {
		return fmt.Errorf("unsafe report destination name %q", dest)
	}
	if m.DestDir != "" {
		info, err := os.Stat(m.DestDir)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("destination directory %s does not exist", m.DestDir)
		}
	}
	return nil
}

// resolvePrivilege implements spec §4.1 phase 4: nothing to compute
// beyond what negotiate already resolved per-node into m.users: the
// sudo prefix is applied lazily wherever a remote command is built
// (pkg/orchestrator's fanOut), since it only ever depends on which
// user negotiate settled on for that node.
func (m *Master) resolvePrivilege() {}

// sudoPrefix returns "sudo -u root " for a named login user other
// than root, and "" for root or for the ssh default login (user "").
func sudoPrefix(user string) string {
	if user == "root" || user == "" {
		return ""
	}
	return "sudo -u root "
}
