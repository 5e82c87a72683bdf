// Package tarstream streams a collector's working directory to stdout
// and reassembles it on the master side, replacing the teacher's
// shell-out-to-tar(1) convention (spec §4.1 phase 6: "the collector's
// output is a single tar stream on stdout; the master reassembles it
// under <dest>/<node>/").
package tarstream

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// WriteDir tars every regular file and directory under root into w,
// using paths relative to root as tar entry names. Symlinks are
// skipped rather than followed, matching spec §4.1's "collected files
// only" contract — the collector never stages symlinks into its
// working directory in the first place, but WriteDir is defensive
// about it regardless.
func WriteDir(w io.Writer, root string) error {
	tw := tar.NewWriter(w)
	defer tw.Close()

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("tar %s: %w", root, err)
	}
	return tw.Close()
}

// Extract reads a tar stream produced by WriteDir and recreates it
// under destRoot. Entry names are sanitized against path traversal
// (".." components) since the stream crosses an ssh trust boundary
// from a node that may be compromised or misbehaving; an entry with a
// ".." component aborts the extraction with an error.
func Extract(r io.Reader, destRoot string) error {
	if err := os.MkdirAll(destRoot, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", destRoot, err)
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar stream: %w", err)
		}

		name := filepath.ToSlash(hdr.Name)
		if strings.Contains(name, "..") {
			return fmt.Errorf("refusing tar entry with path traversal: %s", hdr.Name)
		}
		target := filepath.Join(destRoot, filepath.FromSlash(name))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
		default:
			// skip anything else (symlinks, devices): collectors never
			// emit them, and a malicious stream shouldn't get to create
			// them on the master.
		}
	}
}
