// Package memfs implements kernel/fs.Provider entirely in host memory: no
// block device, no on-disk format, just a tree of named nodes. It exists
// because this module's scope stops at kernel/fs's Provider interface (see
// DESIGN.md) and cmd/simulate needs a concrete one to drive kernel/shell's
// file-system commands without a real disk image.
package memfs

import (
	"strings"
	"sync"

	"corvid/kernel"
	"corvid/kernel/fs"
)

const subsystem = "memfs"

var (
	errNotFound     = &kernel.Error{Module: subsystem, Message: "no such file or directory"}
	errNotDirectory = &kernel.Error{Module: subsystem, Message: "not a directory"}
	errExists       = &kernel.Error{Module: subsystem, Message: "already exists"}
	errBadHandle    = &kernel.Error{Module: subsystem, Message: "invalid handle"}
)

type node struct {
	isDir    bool
	data     []byte
	children map[string]*node
}

func newDir() *node { return &node{isDir: true, children: map[string]*node{}} }

// openFile pairs a node with this provider's own read cursor into it,
// since fs.Provider's Read takes no offset argument — kernel/fs.Handle
// tracks an Offset for display purposes, but the provider underneath it
// must still remember where the last Read left off.
type openFile struct {
	n   *node
	pos int
}

// Provider is a Mount-able, in-memory root file system. The zero value is
// not usable; call New.
type Provider struct {
	mu      sync.Mutex
	root    *node
	handles map[fs.ProviderHandle]*openFile
	next    fs.ProviderHandle
}

// New returns an empty provider containing only the root directory.
func New() *Provider {
	return &Provider{root: newDir(), handles: map[fs.ProviderHandle]*openFile{}}
}

func split(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func (p *Provider) lookup(path string) *node {
	n := p.root
	for _, part := range split(path) {
		if !n.isDir {
			return nil
		}
		next, ok := n.children[part]
		if !ok {
			return nil
		}
		n = next
	}
	return n
}

// Mkdir creates path, including any missing parent directories, mirroring
// os.MkdirAll. It is a host-side setup call, not part of fs.Provider.
func (p *Provider) Mkdir(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.root
	for _, part := range split(path) {
		next, ok := n.children[part]
		if !ok {
			next = newDir()
			n.children[part] = next
		} else if !next.isDir {
			return errNotDirectory
		}
		n = next
	}
	return nil
}

// WriteFile creates path (and any missing parent directories) holding
// data. It is a host-side setup call, not part of fs.Provider.
func (p *Provider) WriteFile(path string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	parts := split(path)
	if len(parts) == 0 {
		return errExists
	}

	dir := p.root
	for _, part := range parts[:len(parts)-1] {
		next, ok := dir.children[part]
		if !ok {
			next = newDir()
			dir.children[part] = next
		} else if !next.isDir {
			return errNotDirectory
		}
		dir = next
	}

	name := parts[len(parts)-1]
	dir.children[name] = &node{data: append([]byte(nil), data...)}
	return nil
}

// ReadSectors is unused: this provider has no sector-addressed backing
// store, only the named-node tree Mount builds in place. It always
// succeeds against a zeroed dst, since nothing in kernel/fs calls it
// directly — the method exists only to satisfy fs.Provider.
func (p *Provider) ReadSectors(lba uint64, count uint32, dst []byte) *kernel.Error {
	for i := range dst {
		dst[i] = 0
	}
	return nil
}

// Mount is a no-op: the tree Mkdir/WriteFile built is already live.
func (p *Provider) Mount(baseLBA uint64) *kernel.Error {
	return nil
}

func (p *Provider) Open(path string) (fs.ProviderHandle, *kernel.Error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.lookup(path)
	if n == nil {
		return 0, errNotFound
	}
	p.next++
	h := p.next
	p.handles[h] = &openFile{n: n}
	return h, nil
}

func (p *Provider) Read(handle fs.ProviderHandle, buf []byte) (int, *kernel.Error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	of, ok := p.handles[handle]
	if !ok {
		return 0, errBadHandle
	}
	if of.n.isDir {
		return 0, errNotDirectory
	}

	n := copy(buf, of.n.data[of.pos:])
	of.pos += n
	return n, nil
}

func (p *Provider) Close(handle fs.ProviderHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.handles, handle)
}

func (p *Provider) IsDirectory(handle fs.ProviderHandle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	of, ok := p.handles[handle]
	return ok && of.n.isDir
}

func (p *Provider) List(path string, visit func(name string, isDirectory bool)) *kernel.Error {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.lookup(path)
	if n == nil {
		return errNotFound
	}
	if !n.isDir {
		return errNotDirectory
	}
	for name, child := range n.children {
		visit(name, child.isDir)
	}
	return nil
}
