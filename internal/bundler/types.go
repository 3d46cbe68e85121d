// Package bundler turns directories of images into one PDF per directory.
package bundler

import (
	"context"
	"errors"
	"image"
	"io"
	"path/filepath"
	"strings"
)

var (
	// ErrNoRoots is returned when Run is called without any root path.
	ErrNoRoots = errors.New("at least one root path is required")
	// ErrUnsupportedExtension is returned when an allowed extension has no known image format.
	ErrUnsupportedExtension = errors.New("unsupported image extension")
	// ErrRootUnreadable is returned when a root path cannot be stat'ed or listed.
	ErrRootUnreadable = errors.New("root path is unreadable")
	// ErrRootNotDirectory is returned when a root path is not a directory.
	ErrRootNotDirectory = errors.New("root path is not a directory")
)

// Format is the encoding of an eligible image file.
type Format string

// Image formats recognized by the pipeline.
const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatAVIF Format = "avif"
)

// extensionFormats maps lowercase file extensions to the format they carry.
var extensionFormats = map[string]Format{
	"jpg":  FormatJPEG,
	"jpeg": FormatJPEG,
	"png":  FormatPNG,
	"avif": FormatAVIF,
}

// otherRasterExtensions name image formats the pipeline cannot bundle. Files
// carrying them are reported instead of being silently ignored.
var otherRasterExtensions = map[string]struct{}{
	"gif":  {},
	"bmp":  {},
	"tif":  {},
	"tiff": {},
	"webp": {},
	"heic": {},
	"heif": {},
}

// DefaultExtensions is the allowed extension set used when none is configured.
func DefaultExtensions() []string {
	return []string{"jpg", "jpeg", "png", "avif"}
}

// FormatForExtension returns the image format for ext. The extension may carry
// a leading dot and any letter case.
func FormatForExtension(ext string) (Format, bool) {
	format, ok := extensionFormats[normalizeExtension(ext)]

	return format, ok
}

func normalizeExtension(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// EntryKind tells directory boundary markers apart from files.
type EntryKind int

// Entry kinds produced by the Scanner.
const (
	EntryFile EntryKind = iota
	EntryDir
)

// TreeEntry is one result of a scan. Ext is set for files only, lowercase and
// without the leading dot.
type TreeEntry struct {
	Path string
	Ext  string
	Kind EntryKind
}

// IsDir reports whether the entry is a directory boundary marker.
func (e TreeEntry) IsDir() bool {
	return e.Kind == EntryDir
}

// Image returns the ImageRecord for an eligible image file entry.
func (e TreeEntry) Image() (ImageRecord, bool) {
	if e.IsDir() {
		return ImageRecord{}, false
	}

	format, ok := FormatForExtension(e.Ext)
	if !ok {
		return ImageRecord{}, false
	}

	return ImageRecord{Path: e.Path, Format: format}, true
}

// ImageRecord identifies one eligible image file.
type ImageRecord struct {
	Path   string
	Format Format
}

// DirectoryGroup holds the direct-child JPEG images of one directory, ordered
// by file name.
type DirectoryGroup struct {
	Dir    string
	Images []ImageRecord
}

// Artifact describes a PDF written by the Assembler.
type Artifact struct {
	Dir   string
	Path  string
	Pages int
	Bytes int64
}

// ArtifactPath is the output location of the PDF for dir: the directory's own
// path with ".pdf" appended.
func ArtifactPath(dir string) string {
	return filepath.Clean(dir) + pdfExtension
}

const pdfExtension = ".pdf"

// ImageCodec decodes source images and produces JPEG bytes.
type ImageCodec interface {
	Decode(data []byte) (image.Image, error)
	EncodeJPEG(img image.Image) ([]byte, error)
	ValidateJPEG(data []byte) error
}

// PDFPacker writes JPEG buffers into a PDF stream without re-encoding them.
type PDFPacker interface {
	Pack(w io.Writer, pages [][]byte) error
}

// Notifier is told about every PDF the pipeline creates.
type Notifier interface {
	PDFCreated(ctx context.Context, artifact Artifact) error
}
