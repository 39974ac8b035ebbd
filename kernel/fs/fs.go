// Package fs implements the kernel's file-system consumer (component N): a
// uniform, copyable file-handle interface layered over an external,
// block-device-backed provider, plus path resolution against a single
// current-working-directory string.
//
// The provider contract is deliberately thin, the same two layers the
// original drew between its generic VFS vtable (vfs_fs_operations_t:
// open/close/is_directory/name) and a concrete filesystem's own adapter
// (ext2's vfs_open/vfs_close/vfs_is_directory plus the read/list it exposed
// directly to callers): this package is the core's only view of storage,
// and never decodes an on-disk format itself.
package fs

import (
	"path"

	"corvid/kernel"
)

const subsystem = "fs"

// ProviderHandle is whatever identifier a Provider's Open hands back. The
// core never interprets it; it is passed back unchanged to Read, Close and
// IsDirectory.
type ProviderHandle uintptr

// Provider is the contract an external file system must satisfy, matching
// the original's read_sectors/mount/open/read/list surface plus the
// close/is_directory pair its vfs_fs_operations_t vtable carried alongside
// open — both are needed here because, unlike the original's C++ adapter,
// nothing else in this package can free or classify a handle.
type Provider interface {
	// ReadSectors transfers count 512-byte sectors starting at lba into
	// dst, which must be at least count*512 bytes long.
	ReadSectors(lba uint64, count uint32, dst []byte) *kernel.Error

	// Mount initializes whatever in-memory state the provider needs,
	// given the base LBA of its partition.
	Mount(baseLBA uint64) *kernel.Error

	// Open resolves an already-normalized absolute path to a handle.
	Open(path string) (ProviderHandle, *kernel.Error)

	// Read fills buf from handle's current position and returns the
	// number of bytes actually read.
	Read(handle ProviderHandle, buf []byte) (int, *kernel.Error)

	// Close releases any resources Open allocated for handle.
	Close(handle ProviderHandle)

	// IsDirectory reports whether handle names a directory.
	IsDirectory(handle ProviderHandle) bool

	// List invokes visit once per directory entry under an
	// already-normalized absolute path.
	List(path string, visit func(name string, isDirectory bool)) *kernel.Error
}

var (
	errNoProvider   = &kernel.Error{Module: subsystem, Message: "no file-system provider mounted"}
	errNotDirectory = &kernel.Error{Module: subsystem, Message: "not a directory"}
)

var provider Provider

// cwd is the shell's current directory, always stored normalized and
// absolute. It mirrors the original's static cwd_path, minus the fixed
// 256-byte cap — nothing in this package needs one.
var cwd = "/"

// SetProvider installs the file-system provider the rest of this package's
// operations are wrapped around. The original's register_fs kept a single
// root_fs pointer too ("could maintain a list of file systems... for now
// just use root_fs"); this kernel never grew past that either.
func SetProvider(p Provider) {
	provider = p
}

// Mount initializes the installed provider against the partition starting
// at baseLBA.
func Mount(baseLBA uint64) *kernel.Error {
	if provider == nil {
		return errNoProvider
	}
	return provider.Mount(baseLBA)
}

// Handle is the core's copyable file identifier: a provider handle plus the
// running byte offset the spec's data model calls for. Read advances
// Offset; nothing else does.
type Handle struct {
	id     ProviderHandle
	isDir  bool
	Offset int
}

// Open resolves path against the current directory (if relative) and opens
// it through the installed provider.
func Open(p string) (*Handle, *kernel.Error) {
	if provider == nil {
		return nil, errNoProvider
	}
	resolved := Resolve(p)
	id, err := provider.Open(resolved)
	if err != nil {
		return nil, err
	}
	return &Handle{id: id, isDir: provider.IsDirectory(id)}, nil
}

// Read fills buf starting at h.Offset and advances it by the number of
// bytes returned.
func Read(h *Handle, buf []byte) (int, *kernel.Error) {
	if provider == nil {
		return 0, errNoProvider
	}
	n, err := provider.Read(h.id, buf)
	if err != nil {
		return 0, err
	}
	h.Offset += n
	return n, nil
}

// Close releases h's underlying provider handle. h must not be used again
// afterward.
func Close(h *Handle) {
	if provider == nil || h == nil {
		return
	}
	provider.Close(h.id)
}

// IsDirectory reports whether h was opened on a directory.
func IsDirectory(h *Handle) bool {
	return h != nil && h.isDir
}

// List invokes visit once per entry in the directory named by p, resolving
// p the same way Open does.
func List(p string, visit func(name string, isDirectory bool)) *kernel.Error {
	if provider == nil {
		return errNoProvider
	}
	return provider.List(Resolve(p), visit)
}

// Getcwd returns the current working directory.
func Getcwd() string {
	return cwd
}

// Chdir resolves path, opens it to confirm it names a directory, and only
// then commits it as the new current directory — the same open/verify/close
// sequence the original's chdir performed before touching cwd_path.
func Chdir(p string) *kernel.Error {
	if provider == nil {
		return errNoProvider
	}
	resolved := Resolve(p)
	id, err := provider.Open(resolved)
	if err != nil {
		return err
	}
	isDir := provider.IsDirectory(id)
	provider.Close(id)
	if !isDir {
		return errNotDirectory
	}
	cwd = resolved
	return nil
}

// Resolve joins a relative path onto the current directory (absolute paths
// are returned as-is) and normalizes the result: duplicate slashes
// collapsed, "." dropped, ".." walked up, exactly as the original's
// normalize_path/resolve pair did by hand.
func Resolve(p string) string {
	if p == "" {
		return cwd
	}
	if path.IsAbs(p) {
		return normalize(p)
	}
	return normalize(path.Join(cwd, p))
}

// normalize collapses a path the way the original's normalize_path did:
// "/a/b/./c/../d/" -> "/a/b/d", "/../" -> "/", "/a//b/c" -> "/a/b/c".
func normalize(p string) string {
	cleaned := path.Clean("/" + p)
	return cleaned
}
