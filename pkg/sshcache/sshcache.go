// Package sshcache remembers, across separate hbreport runs, which
// remote-shell user last worked for a given node so that the next
// run's candidate-user negotiation (see pkg/orchestrator) tries that
// user first instead of always restarting from the top of the
// candidate list. It is grounded on pkg/storage/boltdb.go's use of an
// embedded bbolt file as a single-process key/value store.
//
// The cache only reorders candidates; it never causes a node to be
// skipped. A node that regained SSH access since the last run is
// still probed fresh every time, exactly as if the cache did not
// exist.
package sshcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketOutcomes = []byte("ssh_outcomes")

// Outcome is the last recorded result of a login probe for one node.
type Outcome struct {
	User      string    `json:"user"`
	Succeeded bool      `json:"succeeded"`
	At        time.Time `json:"at"`
}

// Cache wraps a bbolt database at $HOME/.cache/hbreport/sshcache.db.
type Cache struct {
	db *bolt.DB
}

// DefaultPath returns the default cache file location, creating its
// parent directory if necessary.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".cache", "hbreport")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create cache directory: %w", err)
	}
	return filepath.Join(dir, "sshcache.db"), nil
}

// Open opens (creating if absent) the cache database at path.
func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open ssh cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketOutcomes)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init ssh cache bucket: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// LastSuccess returns the user of node's most recently recorded
// outcome when that outcome was a success; ok is false when nothing is
// on record or the most recent outcome was a failure.
func (c *Cache) LastSuccess(node string) (user string, ok bool) {
	var o Outcome
	found := false
	_ = c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOutcomes)
		data := b.Get([]byte(node))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &o); err != nil {
			return nil
		}
		found = o.Succeeded
		return nil
	})
	if !found {
		return "", false
	}
	return o.User, true
}

// Record stores the outcome of a login probe.
func (c *Cache) Record(node, user string, succeeded bool) error {
	o := Outcome{User: user, Succeeded: succeeded, At: time.Now()}
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal ssh outcome: %w", err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOutcomes)
		return b.Put([]byte(node), data)
	})
}

// OrderCandidates moves the last-known-successful user for node to the
// front of candidates, preserving the relative order of the rest.
// candidates is never shortened or filtered, only reordered.
func (c *Cache) OrderCandidates(node string, candidates []string) []string {
	user, ok := c.LastSuccess(node)
	if !ok {
		return candidates
	}
	ordered := make([]string, 0, len(candidates))
	ordered = append(ordered, user)
	for _, cand := range candidates {
		if cand != user {
			ordered = append(ordered, cand)
		}
	}
	// user might not have been in the original candidate list (e.g. an
	// explicit -u was dropped between runs); in that case fall back to
	// the caller's original order untouched.
	found := false
	for _, cand := range candidates {
		if cand == user {
			found = true
			break
		}
	}
	if !found {
		return candidates
	}
	return ordered
}
