package orchestrator

import (
	"context"
	"io"
	"os/exec"
	"strings"
)

// SSHShell is the concrete RemoteShell backing a real run: ssh(1)
// spawned via os/exec, matching spec §1's "the shell-out calls to
// external tools" and §4.1's literal "ssh -T -o BatchMode=yes NODE
// true" probe command.
type SSHShell struct{}

// target renders user@node, or bare node when user is "" (spec §4.1
// phase 3's "__default" candidate).
func target(node, user string) string {
	if user == "" {
		return node
	}
	return user + "@" + node
}

func splitOpts(opts string) []string {
	if strings.TrimSpace(opts) == "" {
		return nil
	}
	return strings.Fields(opts)
}

// Probe implements RemoteShell.Probe via `ssh -T -o BatchMode=yes
// [opts] target true`, reporting success only on a clean exit.
func (SSHShell) Probe(ctx context.Context, node, user, sshOpts string) bool {
	args := append([]string{"-T", "-o", "BatchMode=yes"}, splitOpts(sshOpts)...)
	args = append(args, target(node, user), "true")
	cmd := exec.CommandContext(ctx, "ssh", args...)
	return cmd.Run() == nil
}

// Collect implements RemoteShell.Collect via `ssh [opts] target
// remoteCmd`, returning the child's stdout as the tar stream spec
// §4.1 phase 6 reassembles.
func (SSHShell) Collect(ctx context.Context, node, user, sshOpts, remoteCmd string) (io.ReadCloser, error) {
	args := append([]string{}, splitOpts(sshOpts)...)
	args = append(args, target(node, user), remoteCmd)
	cmd := exec.CommandContext(ctx, "ssh", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &cmdReadCloser{Reader: stdout, cmd: cmd}, nil
}

// cmdReadCloser waits on the child process when the caller is done
// reading its stdout, so fan-out never leaves a zombie. Per
// exec.Cmd.StdoutPipe's own documentation, the pipe must not be
// closed directly — Wait closes it once the child has exited.
type cmdReadCloser struct {
	io.Reader
	cmd *exec.Cmd
}

func (c *cmdReadCloser) Close() error {
	return c.cmd.Wait()
}
