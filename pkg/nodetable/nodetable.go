// Package nodetable resolves the set of cluster member hostnames
// (spec §3 "Node table") by the three-tier precedence of spec §4.1
// phase 2: user argument, then live cluster query, then stopped-
// cluster CIB query. It also tracks the password-required set: nodes
// for which passwordless remote login failed (spec §3).
package nodetable

import "context"

// ClusterQuerier is the out-of-scope collaborator (crm_mon / cibadmin,
// spec §1) injected so node-discovery precedence is unit testable
// without a live cluster.
type ClusterQuerier interface {
	// LiveMembers returns member hostnames from a running cluster
	// (crm_mon), or an error if the cluster isn't responding.
	LiveMembers(ctx context.Context) ([]string, error)
	// StoppedMembers returns member hostnames parsed out of the CIB on
	// disk when the cluster isn't running.
	StoppedMembers(ctx context.Context) ([]string, error)
}

// Table is the resolved node set plus bookkeeping for nodes that could
// not be reached.
type Table struct {
	Nodes            []string
	PasswordRequired map[string]bool
}

// Discover implements spec §3's precedence: (1) user argument always
// wins outright over (2) live cluster query, which in turn is
// preferred over (3) stopped-cluster CIB query. userNodes, when
// non-empty, is returned as given apart from dropping empty and
// duplicate names — spec §8 scenario 5: with
// USER_NODES="a b", even if the live cluster reports {a,c}, the
// resolved set is {a,b}.
func Discover(ctx context.Context, q ClusterQuerier, userNodes []string) (Table, error) {
	if len(userNodes) > 0 {
		return Table{Nodes: dedup(userNodes), PasswordRequired: map[string]bool{}}, nil
	}

	if live, err := q.LiveMembers(ctx); err == nil && len(live) > 0 {
		return Table{Nodes: dedup(live), PasswordRequired: map[string]bool{}}, nil
	}

	stopped, err := q.StoppedMembers(ctx)
	if err != nil {
		return Table{}, err
	}
	return Table{Nodes: dedup(stopped), PasswordRequired: map[string]bool{}}, nil
}

func dedup(nodes []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, n := range nodes {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// MarkPasswordRequired records that node could not be logged into
// without a password, so the fan-out phase skips it with a warning
// rather than blocking on an interactive prompt.
func (t *Table) MarkPasswordRequired(node string) {
	if t.PasswordRequired == nil {
		t.PasswordRequired = map[string]bool{}
	}
	t.PasswordRequired[node] = true
}

// Reachable returns Nodes minus whatever has been marked password-
// required, preserving original order.
func (t *Table) Reachable() []string {
	var out []string
	for _, n := range t.Nodes {
		if !t.PasswordRequired[n] {
			out = append(out, n)
		}
	}
	return out
}
