package orchestrator

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/ulikunitz/xz"

	"github.com/cuemby/hbreport/pkg/report"
	"github.com/cuemby/hbreport/pkg/tarstream"
)

// compressor is one entry in the packaging preference list of spec
// §4.1 phase 8 / §6 ("DEST.tar.{bz2|gz|xz}, selecting the first
// available compressor in that preference order").
type compressor struct {
	suffix    string
	available func() bool
	wrap      func(w io.Writer) (io.WriteCloser, error)
}

// compressorPreference tries bzip2 first, then gzip, then xz. bzip2
// has no Go writer in the standard library or anywhere in the example
// pack, so its arm shells out to the bzip2(1) binary. gzip is a stdlib
// writer and always available, so the xz arm (the already-imported
// github.com/ulikunitz/xz writer) is used only when the gzip arm fails.
var compressorPreference = []compressor{
	{
		suffix:    "bz2",
		available: func() bool { _, err := exec.LookPath("bzip2"); return err == nil },
		wrap:      wrapExternalCompressor("bzip2"),
	},
	{
		suffix:    "gz",
		available: func() bool { return true },
		wrap:      func(w io.Writer) (io.WriteCloser, error) { return gzip.NewWriter(w), nil },
	},
	{
		suffix:    "xz",
		available: func() bool { return true },
		wrap:      func(w io.Writer) (io.WriteCloser, error) { return xz.NewWriter(w) },
	},
}

// wrapExternalCompressor shells name's stdin/stdout around w, for the
// one compressor (bzip2) with no Go writer anywhere in the example
// pack's dependency surface.
func wrapExternalCompressor(name string) func(w io.Writer) (io.WriteCloser, error) {
	return func(w io.Writer) (io.WriteCloser, error) {
		cmd := exec.Command(name)
		cmd.Stdout = w
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, err
		}
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return &externalCompressorWriter{stdin: stdin, cmd: cmd}, nil
	}
}

type externalCompressorWriter struct {
	stdin io.WriteCloser
	cmd   *exec.Cmd
}

func (e *externalCompressorWriter) Write(p []byte) (int, error) { return e.stdin.Write(p) }

func (e *externalCompressorWriter) Close() error {
	if err := e.stdin.Close(); err != nil {
		return err
	}
	return e.cmd.Wait()
}

// packageReport implements spec §4.1 phase 8: if compression is
// enabled, tar the working root through the first available
// compressor and write it to DESTDIR/DEST.tar.EXT; otherwise move the
// directory to DESTDIR/DEST. Returns the final artifact path.
func (m *Master) packageReport(logger *zerolog.Logger) (string, error) {
	if err := m.writeDescription(logger); err != nil {
		logger.Warn().Err(err).Msg("failed to record operator description")
	}
	if err := m.writeMetricsSnapshot(); err != nil {
		logger.Warn().Err(err).Msg("failed to write metrics snapshot")
	}

	destBase := filepath.Join(m.DestDir, m.Config.Dest)

	if err := m.clearExistingDestinations(destBase); err != nil {
		return "", err
	}

	if m.KeepDir {
		if err := os.Rename(m.workRoot, destBase); err != nil {
			return "", report.Fatal(fmt.Errorf("move report to %s: %w", destBase, err))
		}
		logger.Info().Str("dest", destBase).Msg("report complete")
		return destBase, nil
	}

	for _, c := range compressorPreference {
		if !c.available() {
			continue
		}
		dest := destBase + ".tar." + c.suffix
		if err := m.writeCompressedTar(dest, c); err != nil {
			logger.Warn().Err(err).Str("compressor", c.suffix).Msg("packaging with this compressor failed, trying next")
			continue
		}
		logger.Info().Str("dest", dest).Msg("report complete")
		return dest, nil
	}
	return "", report.Fatal(fmt.Errorf("no compressor in the preference list succeeded"))
}

// clearExistingDestinations implements spec §6's -Z flag: by default a
// pre-existing destination (the bare directory, or any
// DEST.tar.{bz2,gz,xz} from a previous run) is fatal; -Z removes it
// instead so CTS-style repeated runs against the same name succeed.
func (m *Master) clearExistingDestinations(destBase string) error {
	candidates := []string{destBase}
	for _, c := range compressorPreference {
		candidates = append(candidates, destBase+".tar."+c.suffix)
	}

	var existing []string
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			existing = append(existing, c)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if !m.ForceOverwrite {
		return report.Fatal(fmt.Errorf("destination already exists: %v (use -Z to overwrite)", existing))
	}
	for _, c := range existing {
		if err := os.RemoveAll(c); err != nil {
			return report.Fatal(fmt.Errorf("remove existing destination %s: %w", c, err))
		}
	}
	return nil
}

func (m *Master) writeCompressedTar(dest string, c compressor) error {
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	defer f.Close()

	cw, err := c.wrap(f)
	if err != nil {
		return fmt.Errorf("start %s compressor: %w", c.suffix, err)
	}
	if err := tarstream.WriteDir(cw, m.workRoot); err != nil {
		cw.Close()
		return fmt.Errorf("tar %s: %w", m.workRoot, err)
	}
	return cw.Close()
}

// writeDescription implements the interactive free-text description
// prompt spec.md §5 mentions as optional and skippable by flag (-D):
// it launches EditorProg on an empty scratch file and writes whatever
// the operator saved into it to the report root's own description.txt,
// next to (not instead of) the fixed per-node description.txt files
// pkg/collector writes.
func (m *Master) writeDescription(logger *zerolog.Logger) error {
	if m.SkipDescription || m.EditorProg == "" {
		return nil
	}

	scratch := filepath.Join(m.workRoot, ".description.scratch")
	if err := os.WriteFile(scratch, nil, 0o644); err != nil {
		return fmt.Errorf("create description scratch file: %w", err)
	}
	defer os.Remove(scratch)

	cmd := exec.Command(m.EditorProg, scratch)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run editor %s: %w", m.EditorProg, err)
	}

	text, err := os.ReadFile(scratch)
	if err != nil {
		return fmt.Errorf("read description scratch file: %w", err)
	}
	if len(text) == 0 {
		return nil
	}

	logger.Info().Msg("recording operator-supplied description")
	return os.WriteFile(filepath.Join(m.workRoot, "description.txt"), text, 0o644)
}

func (m *Master) writeMetricsSnapshot() error {
	if m.Metrics == nil {
		return nil
	}
	f, err := os.Create(filepath.Join(m.workRoot, "metrics.txt"))
	if err != nil {
		return err
	}
	defer f.Close()
	return m.Metrics.WriteSnapshot(f)
}
