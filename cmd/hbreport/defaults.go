package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// fileDefaults is the optional YAML defaults file of SPEC_FULL §2.3:
// a convenience layer over the CLI flags it mirrors. Every field here
// has an equivalent flag, and the flag always wins — this only
// supplies the starting value cobra registers each flag with.
type fileDefaults struct {
	User       string   `yaml:"user"`
	SSHOptions string   `yaml:"ssh_options"`
	Sanitize   []string `yaml:"sanitize"`
	Analysis   []string `yaml:"analysis"`
	ExtraLogs  []string `yaml:"extra_logs"`
}

// loadDefaultsFile reads /etc/hbreport/report.yaml, falling back to
// $HOME/.hbreport.yaml, and returns a zero-value fileDefaults when
// neither exists. A malformed file is a warning, not a fatal error:
// this layer is a convenience, not part of the report contract.
func loadDefaultsFile() fileDefaults {
	for _, path := range defaultsFileCandidates() {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var d fileDefaults
		if err := yaml.Unmarshal(data, &d); err != nil {
			fmt.Fprintf(os.Stderr, "hbreport: ignoring malformed defaults file %s: %v\n", path, err)
			return fileDefaults{}
		}
		return d
	}
	return fileDefaults{}
}

func defaultsFileCandidates() []string {
	candidates := []string{"/etc/hbreport/report.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".hbreport.yaml"))
	}
	return candidates
}
