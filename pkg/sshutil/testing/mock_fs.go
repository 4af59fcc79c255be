// Package testing fakes a remote device for tests: an SSH client that
// answers netmon's shell commands from an in-memory filesystem.
package testing

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	errNotExist = errors.New("no such file or directory")
	errIsDir    = errors.New("is a directory")
)

type node struct {
	dir  bool
	data []byte
	mode os.FileMode
}

// MockFS is the device's filesystem. Only what bootstrap and polling touch
// is modelled.
type MockFS struct {
	mu    sync.RWMutex
	nodes map[string]*node
}

// NewMockFS returns an empty filesystem.
func NewMockFS() *MockFS {
	return &MockFS{nodes: make(map[string]*node)}
}

func isRoot(p string) bool { return p == "/" || p == "." }

func (fs *MockFS) get(path string) *node {
	return fs.nodes[filepath.Clean(path)]
}

// parentOK reports whether path's parent exists as a directory.
func (fs *MockFS) parentOK(path string) bool {
	parent := filepath.Dir(path)
	if isRoot(parent) {
		return true
	}
	n := fs.nodes[parent]
	return n != nil && n.dir
}

func (fs *MockFS) mkdirs(path string) {
	for p := path; !isRoot(p); p = filepath.Dir(p) {
		if fs.nodes[p] == nil {
			fs.nodes[p] = &node{dir: true}
		}
	}
}

// MkdirAll is `mkdir -p`.
func (fs *MockFS) MkdirAll(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path = filepath.Clean(path)
	if n := fs.nodes[path]; n != nil && !n.dir {
		return errors.New("file exists")
	}
	fs.mkdirs(path)
	return nil
}

// Mkdir is plain `mkdir`: the parent must exist and path must not.
func (fs *MockFS) Mkdir(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path = filepath.Clean(path)
	if fs.nodes[path] != nil {
		return errors.New("file exists")
	}
	if !fs.parentOK(path) {
		return errNotExist
	}
	fs.nodes[path] = &node{dir: true}
	return nil
}

// WriteFile replaces a file's content, creating parents.
func (fs *MockFS) WriteFile(path string, content []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path = filepath.Clean(path)
	n := fs.nodes[path]
	if n != nil && n.dir {
		return errIsDir
	}
	fs.mkdirs(filepath.Dir(path))
	if n == nil {
		n = &node{}
		fs.nodes[path] = n
	}
	n.data = append([]byte(nil), content...)
	return nil
}

// AppendFile behaves like a shell `>>` redirect.
func (fs *MockFS) AppendFile(path string, content []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path = filepath.Clean(path)
	n := fs.nodes[path]
	switch {
	case n != nil && n.dir:
		return errIsDir
	case n == nil && !fs.parentOK(path):
		return errNotExist
	case n == nil:
		n = &node{}
		fs.nodes[path] = n
	}
	n.data = append(n.data, content...)
	return nil
}

// Touch creates an empty file unless path already exists.
func (fs *MockFS) Touch(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path = filepath.Clean(path)
	if fs.nodes[path] != nil {
		return nil
	}
	if !fs.parentOK(path) {
		return errNotExist
	}
	fs.nodes[path] = &node{}
	return nil
}

// ReadFile is `cat`.
func (fs *MockFS) ReadFile(path string) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	n := fs.get(path)
	switch {
	case n == nil:
		return nil, errNotExist
	case n.dir:
		return nil, errIsDir
	}
	return append([]byte(nil), n.data...), nil
}

// Chmod records mode on an existing path.
func (fs *MockFS) Chmod(path string, mode os.FileMode) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n := fs.get(path)
	if n == nil {
		return errNotExist
	}
	n.mode = mode
	return nil
}

// Mode returns what Chmod recorded.
func (fs *MockFS) Mode(path string) (os.FileMode, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	n := fs.get(path)
	if n == nil || n.mode == 0 {
		return 0, false
	}
	return n.mode, true
}

// Remove is `rm -rf`.
func (fs *MockFS) Remove(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path = filepath.Clean(path)
	prefix := path + "/"
	for p := range fs.nodes {
		if p == path || strings.HasPrefix(p, prefix) {
			delete(fs.nodes, p)
		}
	}
	return nil
}

// Exists reports whether path is a file or directory.
func (fs *MockFS) Exists(path string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.get(path) != nil
}

// IsDir reports whether path is a directory.
func (fs *MockFS) IsDir(path string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	n := fs.get(path)
	return n != nil && n.dir
}

// IsFile reports whether path is a regular file.
func (fs *MockFS) IsFile(path string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	n := fs.get(path)
	return n != nil && !n.dir
}
