package bundler

import (
	"iter"
	"path/filepath"

	"github.com/book-expert/logger"
)

// Grouper turns a content-first entry sequence into per-directory image groups.
type Grouper struct {
	log *logger.Logger
}

// NewGrouper creates a Grouper.
func NewGrouper(log *logger.Logger) *Grouper {
	return &Grouper{log: log}
}

// Group accumulates each file into the pending buffer of its parent directory
// and flushes that buffer when the directory's boundary marker arrives. Since
// a child directory is flushed before its parent sees its own marker, every
// group holds direct children only. Directories without JPEG images yield
// nothing, and files still in a non-JPEG format are left out.
func (g *Grouper) Group(entries iter.Seq[TreeEntry]) iter.Seq[DirectoryGroup] {
	return func(yield func(DirectoryGroup) bool) {
		pending := make(map[string][]ImageRecord)

		for entry := range entries {
			if entry.IsDir() {
				images := pending[entry.Path]
				delete(pending, entry.Path)

				if len(images) == 0 {
					continue
				}

				if !yield(DirectoryGroup{Dir: entry.Path, Images: images}) {
					return
				}

				continue
			}

			record, ok := entry.Image()
			if !ok {
				continue
			}

			if record.Format != FormatJPEG {
				g.log.Warn("Leaving %s out of its PDF: it was not converted to JPEG", record.Path)

				continue
			}

			dir := filepath.Dir(record.Path)
			pending[dir] = append(pending[dir], record)
		}

		for dir, images := range pending {
			g.log.Warn("Dropping %d image(s) of %s: directory marker never seen", len(images), dir)
		}
	}
}
