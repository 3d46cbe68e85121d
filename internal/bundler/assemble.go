package bundler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/google/uuid"
)

var (
	// ErrEmptyGroup is returned when a directory has no pages to assemble.
	ErrEmptyGroup = errors.New("directory group has no pages")
	// ErrArtifactExists is returned when the target PDF exists and overwriting is off.
	ErrArtifactExists = errors.New("pdf already exists")
)

// Assembler writes the PDF of one directory.
type Assembler struct {
	packer    PDFPacker
	overwrite bool
}

// NewAssembler creates an Assembler. Existing PDFs are replaced only when
// overwrite is true.
func NewAssembler(packer PDFPacker, overwrite bool) *Assembler {
	return &Assembler{packer: packer, overwrite: overwrite}
}

// ArtifactExists reports whether the PDF for dir is already on disk.
func ArtifactExists(dir string) bool {
	_, statErr := os.Lstat(ArtifactPath(dir))

	return statErr == nil || !errors.Is(statErr, fs.ErrNotExist)
}

// Assemble packs pages, in order, into ArtifactPath(dir). The PDF is written
// to a temp file and renamed into place, so a failed pack leaves no PDF
// behind. Nothing is written once ctx is done.
func (a *Assembler) Assemble(ctx context.Context, dir string, pages [][]byte) (artifact Artifact, err error) {
	if len(pages) == 0 {
		return Artifact{}, fmt.Errorf("%w: %s", ErrEmptyGroup, dir)
	}

	ctxErr := ctx.Err()
	if ctxErr != nil {
		return Artifact{}, fmt.Errorf("assemble %s: %w", dir, ctxErr)
	}

	target := ArtifactPath(dir)
	if !a.overwrite && ArtifactExists(dir) {
		return Artifact{}, fmt.Errorf("%w: %s", ErrArtifactExists, target)
	}

	tmpPath := fmt.Sprintf("%s.%s%s", target, uuid.NewString(), tempSuffix)

	file, openErr := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if openErr != nil {
		return Artifact{}, fmt.Errorf("could not create %s: %w", tmpPath, openErr)
	}

	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	writer := bufio.NewWriter(file)

	packErr := a.packer.Pack(writer, pages)
	if packErr == nil {
		packErr = writer.Flush()
	}

	if packErr != nil {
		_ = file.Close()

		return Artifact{}, fmt.Errorf("could not pack %s: %w", target, packErr)
	}

	commitErr := commitTempFile(file, tmpPath, target)
	if commitErr != nil {
		return Artifact{}, fmt.Errorf("could not store %s: %w", target, commitErr)
	}

	artifact = Artifact{Dir: dir, Path: target, Pages: len(pages), Bytes: 0}
	if info, statErr := os.Stat(target); statErr == nil {
		artifact.Bytes = info.Size()
	}

	return artifact, nil
}
