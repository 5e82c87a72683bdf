// Package probe locates the cluster stack's on-disk layout (spec
// §4.4): the OCF root, the var-lib/bin paths it advertises, the
// daemon/scheduler/CIB directories, the cores directories, and which
// log file to collect by precedence.
package probe

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuemby/hbreport/pkg/grep"
	"github.com/cuemby/hbreport/pkg/report"
)

// Paths holds every filesystem location the probe resolves, in the
// order spec §4.4 populates them.
type Paths struct {
	OCFDir       string
	HAVarlib     string
	HABin        string
	CRMDaemonDir string
	PEStateDir   string
	CIBDir       string
	PCMKLib      string
	CoresDirs    []string
	TraceRADir   string
	LogPath      string
}

// ClusterPaths is the out-of-scope collaborator (spec §1: "the
// cluster stack's on-disk layout... selected via the cluster's config
// interface") that would, in a real deployment, shell out to crmsh or
// read its configuration module. It is injected so probe logic itself
// is unit-testable without a real cluster installation.
type ClusterPaths interface {
	OCFRoot(ctx context.Context) (string, error)
	CRMDaemonDir(ctx context.Context) (string, error)
	PEStateDir(ctx context.Context) (string, error)
	CIBDir(ctx context.Context) (string, error)
}

// Probe runs the five steps of spec §4.4 in order, returning a fully
// populated Paths or a *report.FatalError. Every failure is fatal: a
// missing OCF root, a missing ocf-directories file or assignment, a
// daemon directory that does not contain an executable crmd, or a
// missing PE state or CIB directory.
func Probe(ctx context.Context, cp ClusterPaths, extraLogs []string) (*Paths, error) {
	p := &Paths{}

	ocfDir, err := cp.OCFRoot(ctx)
	if err != nil {
		return nil, report.Fatal(fmt.Errorf("locate OCF_ROOT_DIR: %w", err))
	}
	info, err := os.Stat(ocfDir)
	if err != nil || !info.IsDir() {
		return nil, report.Fatal(fmt.Errorf("OCF_ROOT_DIR %s is not a directory", ocfDir))
	}
	p.OCFDir = ocfDir

	varlib, bin, err := loadOCFDirs(ctx, ocfDir)
	if err != nil {
		return nil, report.Fatal(err)
	}
	p.HAVarlib = varlib
	p.HABin = bin

	daemonDir, err := cp.CRMDaemonDir(ctx)
	if err != nil {
		return nil, report.Fatal(fmt.Errorf("locate CRM_DAEMON_DIR: %w", err))
	}
	if err := requireExecutable(filepath.Join(daemonDir, "crmd")); err != nil {
		return nil, report.Fatal(fmt.Errorf("daemon directory %s: %w", daemonDir, err))
	}
	p.CRMDaemonDir = daemonDir

	peDir, err := cp.PEStateDir(ctx)
	if err != nil {
		return nil, report.Fatal(fmt.Errorf("locate PE_STATE_DIR: %w", err))
	}
	if err := requireDir(peDir); err != nil {
		return nil, report.Fatal(err)
	}
	p.PEStateDir = peDir

	cibDir, err := cp.CIBDir(ctx)
	if err != nil {
		return nil, report.Fatal(fmt.Errorf("locate CIB_DIR: %w", err))
	}
	if err := requireDir(cibDir); err != nil {
		return nil, report.Fatal(err)
	}
	p.CIBDir = cibDir

	p.PCMKLib = filepath.Dir(cibDir)

	p.CoresDirs = []string{filepath.Join(p.PCMKLib, "cores")}
	if _, err := os.Stat("/etc/corosync/corosync.conf"); err == nil {
		p.CoresDirs = append(p.CoresDirs, "/var/lib/corosync")
	}

	p.TraceRADir = filepath.Join(p.HAVarlib, "trace_ra")

	p.LogPath = FindLog(p, extraLogs)

	return p, nil
}

func requireDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}

func requireExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("missing executable %s: %w", path, err)
	}
	if info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

// loadOCFDirs greps HA_VARLIB and HA_BIN out of
// OCF_DIR/lib/heartbeat/ocf-directories, matching spec §4.4 step 2.
func loadOCFDirs(ctx context.Context, ocfDir string) (varlib, bin string, err error) {
	inf := filepath.Join(ocfDir, "lib", "heartbeat", "ocf-directories")
	if _, err := os.Stat(inf); err != nil {
		return "", "", fmt.Errorf("file %s does not exist", inf)
	}

	varlib, err = grepAssignment(ctx, inf, "HA_VARLIB:=")
	if err != nil {
		return "", "", err
	}
	bin, err = grepAssignment(ctx, inf, "HA_BIN:=")
	if err != nil {
		return "", "", err
	}
	return varlib, bin, nil
}

func grepAssignment(ctx context.Context, file, marker string) (string, error) {
	lines, err := grep.Search(ctx, marker, grep.Target{File: file}, grep.Options{})
	if err != nil {
		return "", fmt.Errorf("grep %s in %s: %w", marker, file, err)
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("marker %s not found in %s", marker, file)
	}
	_, rest, ok := strings.Cut(lines[0], marker)
	if !ok {
		return "", fmt.Errorf("malformed line %q", lines[0])
	}
	return strings.Trim(strings.TrimSpace(rest), "}"), nil
}

// CorosyncLogConfig is what spec §4.4 step 6 reads out of
// corosync.conf: its declared loglevel, logfile path and facility.
type CorosyncLogConfig struct {
	LogLevel string
	LogFile  string
	Facility string
}

// ReadCorosyncLogConfig scans corosync.conf for the logfile,
// syslog_facility and debug keys. Keys are matched on any line, not
// only inside the `logging { }` stanza, and to_logfile is not read.
func ReadCorosyncLogConfig(path string) (CorosyncLogConfig, error) {
	var cfg CorosyncLogConfig
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "logfile:"):
			cfg.LogFile = strings.TrimSpace(strings.TrimPrefix(line, "logfile:"))
		case strings.HasPrefix(line, "syslog_facility:"):
			cfg.Facility = strings.TrimSpace(strings.TrimPrefix(line, "syslog_facility:"))
		case strings.HasPrefix(line, "debug:"):
			cfg.LogLevel = strings.TrimSpace(strings.TrimPrefix(line, "debug:"))
		}
	}
	return cfg, sc.Err()
}

// FindLog implements spec §4.4 step 6's precedence: the first
// existing of the extra-log list (excluding the pacemaker log itself),
// the collected journal file, the pacemaker log, or the resolved
// debug file.
func FindLog(p *Paths, extraLogs []string) string {
	pacemakerLog := filepath.Join(p.HAVarlib, "pacemaker.log")

	for _, candidate := range extraLogs {
		if candidate == pacemakerLog {
			continue
		}
		if exists(candidate) {
			return candidate
		}
	}

	journal := filepath.Join(p.HAVarlib, "journal.log")
	if exists(journal) {
		return journal
	}

	if exists(pacemakerLog) {
		return pacemakerLog
	}

	debugLog := filepath.Join(p.HAVarlib, "ha-debug")
	return debugLog
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
