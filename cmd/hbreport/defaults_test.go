package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultsFileCandidatesIncludesHomeDotfile(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available in this environment")
	}
	candidates := defaultsFileCandidates()
	assert.Contains(t, candidates, "/etc/hbreport/report.yaml")
	assert.Contains(t, candidates, filepath.Join(home, ".hbreport.yaml"))
}

func TestLoadDefaultsFileZeroValueWhenNoFileExists(t *testing.T) {
	// Neither candidate path is expected to exist in a test sandbox.
	d := loadDefaultsFile()
	assert.Empty(t, d.User)
	assert.Empty(t, d.Sanitize)
}
