// Package scenario loads the YAML descriptor cmd/simulate runs the kernel
// core against: the heap size to carve out of host memory, the directory
// tree and file contents to preload into the in-memory file-system
// provider, and, for headless runs, a fixed script of shell command lines
// to replay instead of reading a live terminal.
package scenario

import (
	"os"

	"gopkg.in/yaml.v3"
)

// defaultHeapBytes matches the freestanding entrypoint's own fixed arena
// size (see cmd/kernel) when a scenario file leaves heap_bytes unset.
const defaultHeapBytes = 64 * 1024 * 1024

// File describes one regular file the provider should hold before the
// shell starts.
type File struct {
	Path string `yaml:"path"`
	Data string `yaml:"data"`
}

// Scenario is the root of a scenario YAML document.
type Scenario struct {
	Name      string   `yaml:"name"`
	HeapBytes uint64   `yaml:"heap_bytes"`
	InitPath  string   `yaml:"init_path"`
	Dirs      []string `yaml:"dirs"`
	Files     []File   `yaml:"files"`

	// Script, when non-empty, names the command lines a headless run
	// feeds to kernel/shell in order instead of reading from a terminal.
	Script []string `yaml:"script"`
}

// Default returns the scenario used when no -scenario flag is given: a
// minimal root with nothing but the directories kernel/fs needs to resolve
// "/" against.
func Default() *Scenario {
	return &Scenario{
		Name:      "default",
		HeapBytes: defaultHeapBytes,
		Dirs:      []string{"/"},
		Script:    []string{"help", "ls", "uptime"},
	}
}

// Load reads and parses the scenario file at path, filling in HeapBytes
// with defaultHeapBytes when the document leaves it at zero.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.HeapBytes == 0 {
		s.HeapBytes = defaultHeapBytes
	}
	if len(s.Dirs) == 0 {
		s.Dirs = []string{"/"}
	}
	return &s, nil
}
