package bundler

import (
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"

	"github.com/book-expert/logger"
)

// Scanner walks a directory tree content-first: every descendant of a directory
// is yielded before the directory's own boundary marker, and siblings are
// visited in lexicographic order of their names.
type Scanner struct {
	log     *logger.Logger
	allowed map[string]struct{}
}

// NewScanner creates a Scanner that yields files whose extension is in
// allowedExtensions. Every allowed extension must map to a known image format.
func NewScanner(allowedExtensions []string, log *logger.Logger) (*Scanner, error) {
	allowed := make(map[string]struct{}, len(allowedExtensions))

	for _, ext := range allowedExtensions {
		normalized := normalizeExtension(ext)
		if _, ok := extensionFormats[normalized]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedExtension, ext)
		}

		allowed[normalized] = struct{}{}
	}

	return &Scanner{log: log, allowed: allowed}, nil
}

// AllowedExtensions returns the sorted extension set of the scanner.
func (s *Scanner) AllowedExtensions() []string {
	exts := make([]string, 0, len(s.allowed))
	for ext := range s.allowed {
		exts = append(exts, ext)
	}

	slices.Sort(exts)

	return exts
}

// Scan checks that root is a readable directory and returns a single-use
// sequence over its tree. The root itself is the last entry of the sequence.
// Unreadable entries below the root are skipped with a warning.
func (s *Scanner) Scan(root string) (iter.Seq[TreeEntry], error) {
	absRoot, absErr := filepath.Abs(root)
	if absErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRootUnreadable, root, absErr)
	}

	info, statErr := os.Stat(absRoot)
	if statErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrRootUnreadable, statErr)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootNotDirectory, absRoot)
	}

	children, readErr := os.ReadDir(absRoot)
	if readErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrRootUnreadable, readErr)
	}

	return func(yield func(TreeEntry) bool) {
		if !s.walkChildren(absRoot, children, yield) {
			return
		}

		yield(TreeEntry{Path: absRoot, Ext: "", Kind: EntryDir})
	}, nil
}

// walkDir yields the contents of dir followed by its boundary marker. It
// returns false once the consumer stops the iteration.
func (s *Scanner) walkDir(dir string, yield func(TreeEntry) bool) bool {
	children, readErr := os.ReadDir(dir)
	if readErr != nil {
		s.log.Warn("Skipping unreadable directory %s: %v", dir, readErr)

		return true
	}

	if !s.walkChildren(dir, children, yield) {
		return false
	}

	return yield(TreeEntry{Path: dir, Ext: "", Kind: EntryDir})
}

func (s *Scanner) walkChildren(dir string, children []os.DirEntry, yield func(TreeEntry) bool) bool {
	for _, child := range children {
		path := filepath.Join(dir, child.Name())

		switch {
		case child.IsDir():
			if !s.walkDir(path, yield) {
				return false
			}
		case child.Type()&fs.ModeSymlink != 0:
			entry, ok := s.resolveSymlink(path)
			if ok && !yield(entry) {
				return false
			}
		case child.Type().IsRegular():
			entry, ok := s.classifyFile(path)
			if ok && !yield(entry) {
				return false
			}
		default:
			// Sockets, devices and pipes are never images.
		}
	}

	return true
}

// resolveSymlink follows links to regular files. Links to directories are not
// descended, which keeps link cycles from looping the walk.
func (s *Scanner) resolveSymlink(path string) (TreeEntry, bool) {
	info, statErr := os.Stat(path)
	if statErr != nil {
		s.log.Warn("Skipping broken symlink %s: %v", path, statErr)

		return TreeEntry{}, false
	}

	if info.IsDir() {
		s.log.Warn("Skipping symlinked directory %s", path)

		return TreeEntry{}, false
	}

	if !info.Mode().IsRegular() {
		return TreeEntry{}, false
	}

	return s.classifyFile(path)
}

// classifyFile decides whether path is an eligible image.
func (s *Scanner) classifyFile(path string) (TreeEntry, bool) {
	rawExt := filepath.Ext(path)
	if rawExt == "" || rawExt == "." {
		s.log.Warn("Skipping file without extension: %s", path)

		return TreeEntry{}, false
	}

	ext := normalizeExtension(rawExt)
	if _, ok := s.allowed[ext]; ok {
		return TreeEntry{Path: path, Ext: ext, Kind: EntryFile}, true
	}

	if _, ok := otherRasterExtensions[ext]; ok {
		s.log.Warn("Skipping unsupported image format %q: %s", ext, path)
	}

	return TreeEntry{}, false
}
