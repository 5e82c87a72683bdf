package orchestrator

import (
	"context"

	"github.com/rs/zerolog"

	hblog "github.com/cuemby/hbreport/pkg/log"
)

// negotiate implements spec §4.1 phase 3: for each non-local node,
// iterate the candidate user list ({__default, root, hacluster}, or
// the explicit -u user) until a non-interactive login succeeds.
// "First success fixes the user for remaining nodes": once any node
// accepts a user, that user is tried first for every subsequent node.
func (m *Master) negotiate(ctx context.Context, logger *zerolog.Logger) error {
	m.users = map[string]string{}
	if m.SingleNode {
		logger.Info().Msg("single node operation requested, skipping remote login negotiation")
		return nil
	}
	fixedUser := ""

	for _, node := range m.table.Nodes {
		if node == m.Localhost {
			continue
		}

		nodeLogger := hblog.WithNode(*logger, node)
		candidates := m.candidatesFor(node, fixedUser)
		user, ok := m.tryCandidates(ctx, node, candidates)
		if !ok {
			m.table.MarkPasswordRequired(node)
			nodeLogger.Warn().Msg("no candidate user could log in without a password, skipping")
			if m.Metrics != nil {
				m.Metrics.NodesSkipped.WithLabelValues(node, "no-ssh").Inc()
			}
			continue
		}

		m.users[node] = user
		if fixedUser == "" {
			fixedUser = user
		}
		if m.SSHCache != nil {
			_ = m.SSHCache.Record(node, user, true)
		}
	}
	return nil
}

// candidatesFor builds this node's ordered candidate-user list: an
// explicit -u user short-circuits everything else; otherwise the
// already-fixed user (if any) goes first, then the sshcache's
// last-known-successful user (reordering only, never filtering, per
// pkg/sshcache's contract), then the remaining defaults.
func (m *Master) candidatesFor(node, fixedUser string) []string {
	if m.ExplicitUser != "" {
		return []string{m.ExplicitUser}
	}

	ordered := append([]string{}, candidateUsers...)
	if m.SSHCache != nil {
		ordered = m.SSHCache.OrderCandidates(node, ordered)
	}
	if fixedUser != "" {
		rest := make([]string, 0, len(ordered))
		rest = append(rest, fixedUser)
		for _, c := range ordered {
			if c != fixedUser {
				rest = append(rest, c)
			}
		}
		ordered = rest
	}
	return ordered
}

func (m *Master) tryCandidates(ctx context.Context, node string, candidates []string) (string, bool) {
	for _, user := range candidates {
		loginUser := user
		if loginUser == "__default" {
			loginUser = ""
		}
		if m.Shell.Probe(ctx, node, loginUser, m.SSHOpts) {
			return loginUser, true
		}
	}
	return "", false
}
