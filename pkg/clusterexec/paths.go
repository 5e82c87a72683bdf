package clusterexec

import (
	"context"
	"fmt"
	"os"
)

// Paths implements probe.ClusterPaths against a conventional
// Pacemaker/Corosync on-disk layout, trying environment-variable
// overrides first (the way crmsh itself resolves these, via
// OCF_ROOT/PCMK install-time configure flags) and falling back to the
// handful of locations real packages install to across distributions.
type Paths struct {
	// OCFRootOverride, when set, short-circuits candidate search.
	OCFRootOverride string
}

var ocfRootCandidates = []string{
	"/usr/lib/ocf",
	"/usr/lib64/ocf",
	"/usr/local/lib/ocf",
}

var crmDaemonDirCandidates = []string{
	"/usr/libexec/pacemaker",
	"/usr/lib/pacemaker",
	"/usr/lib64/pacemaker",
}

var peStateDirCandidates = []string{
	"/var/lib/pacemaker/pengine",
	"/var/lib/pengine",
}

var cibDirCandidates = []string{
	"/var/lib/pacemaker/cib",
	"/var/lib/heartbeat/crm",
}

func firstExisting(candidates []string) (string, error) {
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("none of %v exist", candidates)
}

// OCFRoot implements probe.ClusterPaths.
func (p Paths) OCFRoot(ctx context.Context) (string, error) {
	if p.OCFRootOverride != "" {
		return p.OCFRootOverride, nil
	}
	if v := os.Getenv("OCF_ROOT"); v != "" {
		return v, nil
	}
	return firstExisting(ocfRootCandidates)
}

// CRMDaemonDir implements probe.ClusterPaths.
func (p Paths) CRMDaemonDir(ctx context.Context) (string, error) {
	if v := os.Getenv("CRM_DAEMON_DIR"); v != "" {
		return v, nil
	}
	return firstExisting(crmDaemonDirCandidates)
}

// PEStateDir implements probe.ClusterPaths.
func (p Paths) PEStateDir(ctx context.Context) (string, error) {
	if v := os.Getenv("PE_STATE_DIR"); v != "" {
		return v, nil
	}
	return firstExisting(peStateDirCandidates)
}

// CIBDir implements probe.ClusterPaths.
func (p Paths) CIBDir(ctx context.Context) (string, error) {
	if v := os.Getenv("CIB_DIR"); v != "" {
		return v, nil
	}
	return firstExisting(cibDirCandidates)
}
