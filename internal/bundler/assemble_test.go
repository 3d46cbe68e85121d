package bundler_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/images-to-pdf/internal/bundler"
	"github.com/book-expert/images-to-pdf/internal/pdfpack"
)

var errFakePack = errors.New("fake pack failure")

// recordingPacker writes the pages back to back and remembers every call.
type recordingPacker struct {
	err   error
	calls [][][]byte
	mu    sync.Mutex
}

func (p *recordingPacker) Pack(w io.Writer, pages [][]byte) error {
	p.mu.Lock()
	p.calls = append(p.calls, pages)
	p.mu.Unlock()

	if p.err != nil {
		_, _ = w.Write([]byte("partial"))

		return p.err
	}

	_, err := w.Write(bytes.Join(pages, nil))

	return err
}

func (p *recordingPacker) Calls() [][][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.calls
}

func TestAssemble_WritesArtifactBesideDirectory(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()
	dir := filepath.Join(parent, "ch1")
	require.NoError(t, os.MkdirAll(dir, 0o750))

	packer := &recordingPacker{}
	artifact, err := bundler.NewAssembler(packer, false).Assemble(context.Background(), dir, [][]byte{[]byte("one"), []byte("two")})
	require.NoError(t, err)

	assert.Equal(t, bundler.Artifact{
		Dir:   dir,
		Path:  filepath.Join(parent, "ch1.pdf"),
		Pages: 2,
		Bytes: int64(len("onetwo")),
	}, artifact)

	data, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, []byte("onetwo"), data)
	assert.Empty(t, tempLeftovers(t, parent))
}

func TestAssemble_EmptyGroup(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "ch1")

	_, err := bundler.NewAssembler(&recordingPacker{}, false).Assemble(context.Background(), dir, nil)
	require.ErrorIs(t, err, bundler.ErrEmptyGroup)
	assert.NoFileExists(t, bundler.ArtifactPath(dir))
}

func TestAssemble_ExistingArtifact(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "ch1")
	writeFile(t, bundler.ArtifactPath(dir), []byte("previous"))
	assert.True(t, bundler.ArtifactExists(dir))

	packer := &recordingPacker{}

	_, err := bundler.NewAssembler(packer, false).Assemble(context.Background(), dir, [][]byte{[]byte("new")})
	require.ErrorIs(t, err, bundler.ErrArtifactExists)
	assert.Empty(t, packer.Calls())

	data, err := os.ReadFile(bundler.ArtifactPath(dir))
	require.NoError(t, err)
	assert.Equal(t, []byte("previous"), data)

	_, err = bundler.NewAssembler(packer, true).Assemble(context.Background(), dir, [][]byte{[]byte("new")})
	require.NoError(t, err)

	data, err = os.ReadFile(bundler.ArtifactPath(dir))
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), data)
}

func TestAssemble_CanceledContext(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "ch1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	packer := &recordingPacker{}

	_, err := bundler.NewAssembler(packer, false).Assemble(ctx, dir, [][]byte{[]byte("x")})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, packer.Calls())
	assert.NoFileExists(t, bundler.ArtifactPath(dir))
}

func TestAssemble_PackFailureLeavesNothing(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()
	dir := filepath.Join(parent, "ch1")

	_, err := bundler.NewAssembler(&recordingPacker{err: errFakePack}, false).Assemble(context.Background(), dir, [][]byte{[]byte("x")})
	require.ErrorIs(t, err, errFakePack)
	assert.NoFileExists(t, bundler.ArtifactPath(dir))
	assert.Empty(t, tempLeftovers(t, parent))
}

func TestAssemble_RealPacker(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()
	dir := filepath.Join(parent, "scans")
	first := jpegBytes(t, 10, 20)
	second := jpegBytes(t, 30, 15)

	artifact, err := bundler.NewAssembler(pdfpack.New(), false).Assemble(context.Background(), dir, [][]byte{first, second})
	require.NoError(t, err)
	assert.Equal(t, 2, countPages(t, artifact.Path))

	data, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
	assert.True(t, bytes.Contains(data, first))
	assert.True(t, bytes.Contains(data, second))
}
