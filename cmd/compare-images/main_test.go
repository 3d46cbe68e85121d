package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/images-to-pdf/internal/codec"
)

func TestParseAndValidateArguments(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		args    []string
		want    arguments
		wantErr error
	}{
		{
			name: "valid arguments",
			args: []string{"./compare-images", "a.png", "b.jpg", "10", "0.05"},
			want: arguments{pathA: "a.png", pathB: "b.jpg", fuzzPercent: 10, maxDiffRatio: 0.05},
		},
		{
			name:    "too few arguments",
			args:    []string{"./compare-images", "a.png"},
			wantErr: ErrInvalidArguments,
		},
		{
			name:    "fuzz out of range",
			args:    []string{"./compare-images", "a", "b", "101", "0.1"},
			wantErr: codec.ErrInvalidFuzzPercent,
		},
		{
			name:    "ratio out of range",
			args:    []string{"./compare-images", "a", "b", "10", "1.5"},
			wantErr: codec.ErrInvalidDiffRatio,
		},
		{
			name:    "fuzz not a number",
			args:    []string{"./compare-images", "a", "b", "ten", "0.1"},
			wantErr: strconv.ErrSyntax,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseAndValidateArguments(testCase.args)
			if testCase.wantErr != nil {
				require.ErrorIs(t, err, testCase.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, testCase.want, got)
		})
	}
}

func writeSolidPNG(t *testing.T, path string, width, height int, c color.Color) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func TestRun_ExitCodes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	white := filepath.Join(dir, "white.png")
	almostWhite := filepath.Join(dir, "almost-white.png")
	black := filepath.Join(dir, "black.png")
	small := filepath.Join(dir, "small.png")

	writeSolidPNG(t, white, 20, 20, color.White)
	writeSolidPNG(t, almostWhite, 20, 20, color.RGBA{R: 250, G: 250, B: 250, A: 0xff})
	writeSolidPNG(t, black, 20, 20, color.Black)
	writeSolidPNG(t, small, 5, 5, color.White)

	testCases := []struct {
		name string
		args []string
		want int
	}{
		{name: "similar", args: []string{"cmp", white, almostWhite, "5", "0"}, want: exitCodeSimilar},
		{name: "different", args: []string{"cmp", white, black, "5", "0.5"}, want: exitCodeDifferent},
		{name: "size mismatch", args: []string{"cmp", white, small, "5", "0.5"}, want: exitCodeError},
		{name: "missing file", args: []string{"cmp", white, filepath.Join(dir, "nope.png"), "5", "0.5"}, want: exitCodeError},
		{name: "bad args", args: []string{"cmp", white}, want: exitCodeError},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			var stderr bytes.Buffer
			assert.Equal(t, testCase.want, run(testCase.args, &stderr))

			if testCase.want == exitCodeError {
				assert.NotEmpty(t, stderr.String())
			}
		})
	}
}
