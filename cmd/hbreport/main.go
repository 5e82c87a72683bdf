// Command hbreport is the two-role binary of spec §4.1: invoked
// directly it is the master, orchestrating collection across a
// cluster's nodes; invoked as `hbreport __slave KEY=VALUE ...` it is
// the collector body a remote shell runs on one peer. The sentinel is
// checked before cobra ever sees the arguments, since the collector's
// single positional argument isn't flag-shaped.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuemby/hbreport/pkg/clusterexec"
	"github.com/cuemby/hbreport/pkg/collector"
	"github.com/cuemby/hbreport/pkg/log"
	"github.com/cuemby/hbreport/pkg/orchestrator"
	"github.com/cuemby/hbreport/pkg/probe"
	"github.com/cuemby/hbreport/pkg/report"
	"github.com/cuemby/hbreport/pkg/reportcfg"
	"github.com/cuemby/hbreport/pkg/sshcache"
	"github.com/cuemby/hbreport/pkg/stdioscope"
	"github.com/cuemby/hbreport/pkg/tmpfiles"
)

// Version is set via ldflags at build time, matching the teacher's own
// cmd/warren/main.go convention.
var Version = "dev"

const sentinel = "__slave"

func main() {
	if len(os.Args) > 1 && os.Args[1] == sentinel {
		runCollector(os.Args[2:])
		return
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	// -h prints usage and exits 1, as in the original tool.
	if help, _ := rootCmd.Flags().GetBool("help"); help {
		os.Exit(1)
	}
}

var opts struct {
	from        string
	to          string
	user        string
	sshOpts     string
	logFile     string
	nodes       []string
	extraLogs   []string
	sanitize    []string
	analysis    []string
	editor      string
	noExtraLogs bool
	singleNode  bool
	noDescribe  bool
	force       bool
	skipLevel   bool
	sanitizeOn  bool
	keepDir     bool
}

var rootCmd = &cobra.Command{
	Use:     "hbreport [flags] DEST",
	Short:   "Collect a point-in-time diagnostic report from a Pacemaker/Corosync cluster",
	Version: Version,
	Args:    cobra.MaximumNArgs(1),
	RunE:    runMaster,
}

func init() {
	d := loadDefaultsFile()

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.from, "from", "f", "", "time to start from (required)")
	flags.StringVarP(&opts.to, "to", "t", "", "time to finish at (default: now)")
	flags.StringVarP(&opts.user, "user", "u", d.User, "ssh user to access other nodes (default: empty, root, hacluster)")
	flags.StringVarP(&opts.sshOpts, "ssh-options", "X", d.SSHOptions, "extra ssh(1) options")
	flags.StringVarP(&opts.logFile, "log-file", "l", "", "log file")
	flags.StringArrayVarP(&opts.nodes, "nodes", "n", nil, "node names for this cluster (additive)")
	flags.StringArrayVarP(&opts.extraLogs, "extra-logs", "E", d.ExtraLogs, "extra logs to collect (additive, default: /var/log/messages)")
	flags.StringArrayVarP(&opts.sanitize, "sanitize-pattern", "p", d.Sanitize, `variable-name pattern to sanitize (additive, default: "passw.*")`)
	flags.StringArrayVarP(&opts.analysis, "analysis-pattern", "L", d.Analysis, "log pattern for analysis (additive, default: CRIT: ERROR:)")
	flags.StringVarP(&opts.editor, "editor", "e", "", "editor used to write the report description")
	flags.BoolVarP(&opts.noExtraLogs, "no-extra-logs", "M", false, "don't collect extra logs")
	flags.BoolVarP(&opts.singleNode, "single-node", "S", false, "single node operation; don't start collectors on other nodes")
	flags.BoolVarP(&opts.noDescribe, "no-description", "D", false, "don't invoke an editor to write a description")
	flags.BoolVarP(&opts.force, "force", "Z", false, "remove existing destination instead of exiting")
	flags.BoolVarP(&opts.skipLevel, "quick", "Q", false, "don't run resource intensive operations")
	flags.BoolVarP(&opts.sanitizeOn, "sanitize", "s", false, "sanitize the PE and CIB files")
	flags.BoolVarP(&opts.keepDir, "dir", "d", false, "don't compress, leave the result in a directory")
	flags.CountP("verbose", "v", "increase verbosity")
	flags.BoolP("version", "V", false, "print version and exit")

	rootCmd.SetVersionTemplate("hbreport version {{.Version}}\n")
}

func runMaster(cmd *cobra.Command, args []string) error {
	log.Init(log.Config{Level: verbosityLevel(cmd)})

	dest := "hbreport"
	destDir := ""
	if len(args) == 1 {
		destDir, dest = filepath.Split(args[0])
		destDir = strings.TrimSuffix(destDir, "/")
		if dest == "" {
			dest = "hbreport"
		}
	}

	if opts.from == "" {
		return fmt.Errorf("-f (time to start from) is required")
	}
	from, err := parseTime(opts.from)
	if err != nil {
		return fmt.Errorf("parse -f %q: %w", opts.from, err)
	}
	to := 0.0
	if opts.to != "" {
		to, err = parseTime(opts.to)
		if err != nil {
			return fmt.Errorf("parse -t %q: %w", opts.to, err)
		}
	}

	extraLogs := opts.extraLogs
	if len(extraLogs) == 0 {
		extraLogs = []string{"/var/log/messages"}
	}
	if opts.noExtraLogs {
		extraLogs = nil
	}
	skipLevel := 0
	if opts.skipLevel {
		skipLevel = 1
	}

	cfg := reportcfg.Config{
		Dest:       dest,
		FromTime:   from,
		ToTime:     to,
		UserNodes:  splitAll(opts.nodes),
		HALog:      opts.logFile,
		Sanitize:   defaultSanitizePatterns(opts.sanitize),
		DoSanitize: opts.sanitizeOn,
		SkipLevel:  skipLevel,
		ExtraLogs:  extraLogs,
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	reg, err := tmpfiles.New()
	if err != nil {
		return fmt.Errorf("create temp file registry: %w", err)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve own executable path: %w", err)
	}
	hostname, _ := os.Hostname()

	cache, err := openSSHCache()
	if err != nil {
		log.Logger.Warn().Err(err).Msg("ssh negotiation cache unavailable, candidate order will not be remembered across runs")
	}
	if cache != nil {
		defer cache.Close()
	}

	m := &orchestrator.Master{
		Config:           cfg,
		Paths:            clusterexec.Paths{},
		Querier:          clusterexec.Querier{},
		State:            clusterexec.State{Hostname: hostname},
		Logger:           log.WithComponent("master"),
		Reg:              reg,
		SSHCache:         cache,
		Shell:            orchestrator.SSHShell{},
		Localhost:        localMembership(cmd.Context(), hostname),
		ExplicitUser:     opts.user,
		SSHOpts:          opts.sshOpts,
		BinaryPath:       exe,
		DestDir:          destDir,
		KeepDir:          opts.keepDir,
		SingleNode:       opts.singleNode,
		ForceOverwrite:   opts.force,
		EditorProg:       opts.editor,
		SkipDescription:  opts.noDescribe,
		AnalysisPatterns: defaultAnalysisPatterns(opts.analysis),
	}

	ctx := context.Background()
	artifact, err := m.Run(ctx)
	if err != nil {
		if report.IsFatal(err) {
			report.Exit(m.Logger, reg, err)
		}
		return err
	}
	reg.Cleanup()
	fmt.Println(artifact)
	return nil
}

// localMembership reports this host's own node name when it is itself
// a cluster member, matching spec §4.1's "master host is itself a
// cluster member" collect-local condition, "" otherwise.
func localMembership(ctx context.Context, hostname string) string {
	members, err := (clusterexec.Querier{}).LiveMembers(ctx)
	if err != nil {
		members, err = (clusterexec.Querier{}).StoppedMembers(ctx)
		if err != nil {
			return ""
		}
	}
	for _, m := range members {
		if m == hostname {
			return hostname
		}
	}
	return ""
}

func openSSHCache() (*sshcache.Cache, error) {
	path, err := sshcache.DefaultPath()
	if err != nil {
		return nil, err
	}
	return sshcache.Open(path)
}

// runCollector is the `__slave` entry point: the arguments after the
// sentinel, joined by single spaces, form the serialized environment
// spec §6 describes. The master passes it as one shell-quoted
// positional argument.
func runCollector(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "hbreport __slave: missing serialized environment")
		os.Exit(1)
	}

	cfg, err := reportcfg.Parse(strings.Join(args, " "))
	if err != nil {
		fmt.Fprintf(os.Stderr, "hbreport __slave: %v\n", err)
		os.Exit(1)
	}

	level := log.InfoLevel
	if cfg.Verbosity > 0 {
		level = log.DebugLevel
	}
	log.Init(log.Config{Level: level})
	logger := log.WithComponent("collector")

	reg, err := tmpfiles.New()
	if err != nil {
		logger.Error().Err(err).Msg("create temp file registry")
		os.Exit(1)
	}

	ctx := context.Background()
	paths, err := probe.Probe(ctx, clusterexec.Paths{}, cfg.ExtraLogs)
	if err != nil {
		report.Exit(logger, reg, err)
	}

	hostname, _ := os.Hostname()
	workDir := filepath.Join(os.TempDir(), "hbreport."+cfg.Dest)
	c := &collector.Collector{
		Paths:  paths,
		State:  clusterexec.State{Hostname: hostname},
		Logger: logger,
		Reg:    reg,
	}

	// The tar stream on stdout is the sole transport back to the
	// master; anything else that writes to the real os.Stdout during
	// collection (a stray fmt.Println in a future step, a child
	// process that doesn't go through runTimed's output capture) would
	// corrupt it. Redirect the global for the duration of collection
	// and hand the real stream, captured beforehand, straight to Run.
	realStdout := os.Stdout
	runErr := stdioscope.With(os.Stderr, stdioscope.Stdout, func() error {
		return c.Run(ctx, cfg, workDir, realStdout)
	})
	if runErr != nil {
		report.Exit(logger, reg, runErr)
	}
	reg.Cleanup()
}

func verbosityLevel(cmd *cobra.Command) log.Level {
	v, _ := cmd.Flags().GetCount("verbose")
	if v > 0 {
		return log.DebugLevel
	}
	return log.InfoLevel
}

func splitAll(values []string) []string {
	var out []string
	for _, v := range values {
		out = append(out, splitWhitespace(v)...)
	}
	return out
}

func splitWhitespace(s string) []string {
	var out []string
	var cur []rune
	for _, r := range s {
		if r == ' ' || r == '\t' {
			if len(cur) > 0 {
				out = append(out, string(cur))
				cur = nil
			}
			continue
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		out = append(out, string(cur))
	}
	return out
}

func defaultSanitizePatterns(patterns []string) []string {
	if len(patterns) == 0 {
		return []string{"passw.*"}
	}
	return patterns
}

func defaultAnalysisPatterns(patterns []string) []string {
	if len(patterns) == 0 {
		return []string{"CRIT:", "ERROR:"}
	}
	return patterns
}
