/*
Package log provides structured logging for hbreport using zerolog.

The master and collector are separate OS processes (see pkg/orchestrator
and pkg/collector) with no shared memory, so each configures its own
logger via Init at entry. Every log line a support engineer needs to
correlate across a multi-node run carries two optional scopes on top of
zerolog's usual fields:

  - WithNode(logger, name) — which cluster node a line is about.
    Master and collector both use this; the collector's own process
    only ever logs about its own node, but the master logs about every
    peer it fans out to. It takes the logger to scope explicitly
    (rather than always scoping the package global), since the
    master's own Logger is itself swapped out per run (and to
    zerolog.Nop() in tests).
  - WithPhase(logger, name) — which of the eight ordered master phases
    (probe, discover, negotiate, privilege, collect-local, fan-out,
    analyze, package) a line belongs to.

Both compose: a fan-out failure is logged with both
WithPhase(logger, "fanout") and WithNode(logger, peer) applied in
sequence, so `grep phase=fanout` and `grep node=n3` both find it in
the binary's own stderr output.

Output goes through a console writer by default; Config.JSONOutput
switches it to JSON, and Config.Output, when nil, defaults to stderr.
Nothing here retries, buffers, or
ships logs anywhere else: hbreport's log stream is stderr, the report
tree it produces is a separate artifact.
*/
package log
