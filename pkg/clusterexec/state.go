package clusterexec

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
)

// State implements collector.ClusterState, the per-node collection
// facts spec §4.1's collector contract needs: CIB/crm_mon/members
// dumps, host system info and stats, the set of scheduler input files,
// DC status and permission audit output. Every method here degrades
// to a non-fatal error on a missing tool, matching spec §7's "per-file
// data errors... logged as warnings, the extractor returns what it
// could" — the caller (pkg/collector) is the one that turns a returned
// error into a warnings.txt entry.
type State struct {
	Hostname string
}

// IsRunning reports whether the local cluster stack answers to
// crm_mon at all; a non-zero exit means "stopped" per pacemakerd's own
// convention.
func (State) IsRunning(ctx context.Context) bool {
	_, err := runTimed(ctx, 0, "crm_mon", "-1")
	return err == nil
}

type dcXML struct {
	Summary struct {
		CurrentDC struct {
			Name string `xml:"name,attr"`
		} `xml:"current_dc"`
	} `xml:"summary"`
}

// IsDC reports whether this node is the elected Designated
// Coordinator, per spec §3's "a DC sentinel on the designated
// coordinator".
func (s State) IsDC(ctx context.Context) (bool, error) {
	out, err := runTimed(ctx, 0, "crm_mon", "-1", "-X")
	if err != nil {
		return false, fmt.Errorf("crm_mon: %w", err)
	}
	var doc dcXML
	if err := xml.Unmarshal(out, &doc); err != nil {
		return false, fmt.Errorf("parse crm_mon summary: %w", err)
	}
	return doc.Summary.CurrentDC.Name == s.Hostname, nil
}

// CIBXML dumps the full cluster information base via cibadmin, spec
// §3's cib.xml.
func (State) CIBXML(ctx context.Context) ([]byte, error) {
	out, err := runTimed(ctx, 0, "cibadmin", "-Q")
	if err != nil {
		return nil, fmt.Errorf("cibadmin: %w", err)
	}
	return out, nil
}

// CRMMonText renders the human-readable cluster status, spec §3's
// crm_mon.txt.
func (State) CRMMonText(ctx context.Context) ([]byte, error) {
	out, err := runTimed(ctx, 0, "crm_mon", "-1", "-A", "-f")
	if err != nil {
		return nil, fmt.Errorf("crm_mon: %w", err)
	}
	return out, nil
}

// MembersText lists cluster members, spec §3's members.txt.
func (State) MembersText(ctx context.Context) ([]byte, error) {
	out, err := runTimed(ctx, 0, "crm_mon", "-1", "--as-xml")
	if err == nil {
		var doc crmMonXML
		if xerr := xml.Unmarshal(out, &doc); xerr == nil {
			var buf bytes.Buffer
			for _, n := range doc.Nodes.Node {
				fmt.Fprintln(&buf, n.Name)
			}
			return buf.Bytes(), nil
		}
	}
	out, err = runTimed(ctx, 0, "corosync-cmapctl", "-g", "runtime.totem.pg.mrp.srp.members")
	if err != nil {
		return nil, fmt.Errorf("corosync-cmapctl: %w", err)
	}
	return out, nil
}

// SysInfo gathers host identification facts, spec §3's sysinfo.txt.
func (State) SysInfo(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "GOOS=%s GOARCH=%s\n", runtime.GOOS, runtime.GOARCH)
	for _, tool := range []struct {
		name string
		args []string
	}{
		{"uname", []string{"-a"}},
		{"lsb_release", []string{"-a"}},
	} {
		if !binaryAvailable(tool.name) {
			continue
		}
		out, err := runTimed(ctx, 0, tool.name, tool.args...)
		if err != nil {
			fmt.Fprintf(&buf, "# %s %v failed: %v\n", tool.name, tool.args, err)
			continue
		}
		buf.Write(out)
	}
	return buf.Bytes(), nil
}

// SysStats gathers a snapshot of host resource usage, spec §3's
// sysstats.txt, each command independently timeout-guarded per spec
// §5's "e.g. df" example.
func (State) SysStats(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	for _, tool := range []struct {
		name string
		args []string
	}{
		{"df", []string{"-h"}},
		{"free", []string{"-m"}},
		{"uptime", nil},
	} {
		if !binaryAvailable(tool.name) {
			continue
		}
		out, err := runTimed(ctx, 10*time.Second, tool.name, tool.args...)
		if err != nil {
			fmt.Fprintf(&buf, "# %s timed out or failed: %v\n", tool.name, err)
			continue
		}
		fmt.Fprintf(&buf, "--- %s %v ---\n", tool.name, tool.args)
		buf.Write(out)
	}
	return buf.Bytes(), nil
}

// PEInputFiles lists the rotating scheduler-input snapshots under
// peStateDir, spec's "pengine/pe-input-*.bz2" glossary entry.
func (State) PEInputFiles(ctx context.Context, peStateDir string) ([]string, error) {
	if peStateDir == "" {
		return nil, nil
	}
	matches, err := filepath.Glob(filepath.Join(peStateDir, "pe-*"))
	if err != nil {
		return nil, fmt.Errorf("glob PE inputs in %s: %w", peStateDir, err)
	}
	return matches, nil
}

// Permissions runs `rpm --verify` (or dpkg equivalent) over paths for
// the permission audit spec §3 names (permissions.txt).
func (State) Permissions(ctx context.Context, paths []string) ([]byte, error) {
	var buf bytes.Buffer
	if binaryAvailable("rpm") {
		for _, p := range paths {
			out, err := runTimed(ctx, 10*time.Second, "rpm", "-qf", p)
			if err != nil {
				continue
			}
			pkgName := string(bytes.TrimSpace(out))
			// rpm --verify exits non-zero whenever it finds a
			// discrepancy; that output is the whole point, so capture
			// stdout regardless of exit status.
			verify, _ := runAllowNonZero(ctx, 10*time.Second, "rpm", "--verify", pkgName)
			buf.Write(verify)
		}
		return buf.Bytes(), nil
	}
	if binaryAvailable("dpkg") {
		for _, p := range paths {
			out, err := runTimed(ctx, 10*time.Second, "dpkg", "-S", p)
			if err != nil {
				continue
			}
			buf.Write(out)
		}
		return buf.Bytes(), nil
	}
	return nil, nil
}

// Journal dumps the systemd journal for the requested window, spec
// §3's journal.log / §4.1's "backtraces, RA traces, blackbox dumps"
// collection step.
func (State) Journal(ctx context.Context, from, to float64) ([]byte, error) {
	if !binaryAvailable("journalctl") {
		return nil, nil
	}
	args := []string{"--no-pager", "-o", "short-iso"}
	if from > 0 {
		args = append(args, "--since", "@"+strconv.FormatInt(int64(from), 10))
	}
	if to > 0 {
		args = append(args, "--until", "@"+strconv.FormatInt(int64(to), 10))
	}
	out, err := runTimed(ctx, 0, "journalctl", args...)
	if err != nil {
		return nil, fmt.Errorf("journalctl: %w", err)
	}
	return out, nil
}

// Backtraces runs gdb's full-thread backtrace against every core file
// found under coresDirs, spec §4.1's "backtraces" collection step.
func (State) Backtraces(ctx context.Context, coresDirs []string) ([]byte, error) {
	if !binaryAvailable("gdb") {
		return nil, nil
	}
	var buf bytes.Buffer
	for _, dir := range coresDirs {
		matches, err := filepath.Glob(filepath.Join(dir, "core*"))
		if err != nil {
			continue
		}
		for _, core := range matches {
			out, err := runTimed(ctx, 30*time.Second, "gdb", "-batch", "-ex", "thread apply all bt full", "-c", core)
			if err != nil {
				fmt.Fprintf(&buf, "# %s: %v\n", core, err)
				continue
			}
			fmt.Fprintf(&buf, "--- %s ---\n", core)
			buf.Write(out)
		}
	}
	return buf.Bytes(), nil
}

// RATraceFiles lists resource-agent trace files written under
// traceDir (the OCF_TRACE_FILE output directory), spec §4.1's "RA
// traces" collection step.
func (State) RATraceFiles(ctx context.Context, traceDir string) ([]string, error) {
	if traceDir == "" {
		return nil, nil
	}
	matches, err := filepath.Glob(filepath.Join(traceDir, "*"))
	if err != nil {
		return nil, fmt.Errorf("glob RA traces in %s: %w", traceDir, err)
	}
	return matches, nil
}

// BlackboxDump decodes the corosync blackbox ring buffer, spec §4.1's
// "blackbox dumps" collection step.
func (State) BlackboxDump(ctx context.Context) ([]byte, error) {
	if !binaryAvailable("corosync-blackbox") {
		return nil, nil
	}
	out, err := runTimed(ctx, 10*time.Second, "corosync-blackbox")
	if err != nil {
		return nil, fmt.Errorf("corosync-blackbox: %w", err)
	}
	return out, nil
}

// runAllowNonZero is runTimed's counterpart for commands like
// `rpm --verify` whose non-zero exit is itself the useful signal: it
// still returns captured stdout when the only failure was a non-zero
// exit, and only reports an error for a genuine launch failure or
// timeout.
func runAllowNonZero(ctx context.Context, timeout time.Duration, name string, args ...string) ([]byte, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, name, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	err := cmd.Run()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return nil, fmt.Errorf("%s %v: %w", name, args, err)
	}
	return stdout.Bytes(), nil
}
