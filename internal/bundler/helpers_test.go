package bundler_test

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/require"
)

const testFilePerm = 0o600

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	return log
}

func solidImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, c)
		}
	}

	return img
}

func jpegBytes(t *testing.T, width, height int) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solidImage(width, height, color.RGBA{R: 200, G: 90, B: 40, A: 0xff}), nil))

	return buf.Bytes()
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solidImage(width, height, color.RGBA{R: 30, G: 160, B: 220, A: 0xff})))

	return buf.Bytes()
}

// writeFile creates path and its parent directories.
func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, data, testFilePerm))
}

func writeJPEG(t *testing.T, path string) {
	t.Helper()
	writeFile(t, path, jpegBytes(t, 8, 6))
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	writeFile(t, path, pngBytes(t, 8, 6))
}

// countPages counts the page objects of a PDF written by the packer.
func countPages(t *testing.T, path string) int {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return bytes.Count(data, []byte("<</Type /Page\n"))
}

// tempLeftovers lists temp files left in dir.
func tempLeftovers(t *testing.T, dir string) []string {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)

	return matches
}
