// Package tmpfiles implements the temp-file registry (spec §3, §4.5):
// an append-only text file whose lines are absolute paths scheduled
// for deletion, with a guarantee that no process creates a temporary
// path without registering it and that every registered path is
// deleted exactly once, on every exit path including fatal ones.
//
// This is the one mutable process-wide global the spec calls for
// (spec §9 design notes); everywhere else state is gathered into an
// explicit, immutable configuration value. Master and collector each
// own exactly one Registry, since they are always separate processes.
package tmpfiles

import (
	"bufio"
	"os"
	"sync"

	"github.com/google/uuid"
)

// Registry is a single append-mode text file mirroring, in memory,
// every path it has ever been asked to delete. Add is safe to call
// from concurrent goroutines within one process; appends are
// serialized by mu.
type Registry struct {
	mu    sync.Mutex
	file  *os.File
	paths []string
}

// New creates the backing registry file (named with a short UUID
// suffix, replacing the Python implementation's random_string) and
// returns an empty Registry.
func New() (*Registry, error) {
	name := "tmp.hbreport-registry-" + uuid.NewString()[:8]
	f, err := os.CreateTemp("", name)
	if err != nil {
		return nil, err
	}
	return &Registry{file: f}, nil
}

// Path returns the registry's own backing file path, itself never
// auto-registered: Cleanup removes it explicitly as a last step.
func (r *Registry) Path() string {
	return r.file.Name()
}

// Add appends path to the registry, fsyncing so a crash between Add
// and the creation of path itself never loses track of a partially
// created temp resource. path may name a file or a directory; Cleanup
// inspects which at deletion time.
func (r *Registry) Add(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.file.WriteString(path + "\n"); err != nil {
		return err
	}
	if err := r.file.Sync(); err != nil {
		return err
	}
	r.paths = append(r.paths, path)
	return nil
}

// Cleanup deletes every path ever registered (files unlinked,
// directories recursively removed) and then removes the registry file
// itself. It is safe to call more than once; the second call is a
// no-op since the in-memory path list and backing file are both
// already gone.
func (r *Registry) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if info.IsDir() {
			_ = os.RemoveAll(p)
		} else {
			_ = os.Remove(p)
		}
	}
	r.paths = nil

	if r.file != nil {
		name := r.file.Name()
		_ = r.file.Close()
		_ = os.Remove(name)
		// r.file stays set (closed) so Path still names the removed file;
		// a second Close and Remove fail harmlessly.
	}
}

// LoadForRecovery reads an existing registry file's contents, used
// only by tests that want to verify the on-disk format without going
// through a live Registry.
func LoadForRecovery(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var paths []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			paths = append(paths, line)
		}
	}
	return paths, sc.Err()
}
