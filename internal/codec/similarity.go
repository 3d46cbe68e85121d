package codec

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

var (
	// ErrInvalidFuzzPercent is returned when the fuzz percentage is outside 0..100.
	ErrInvalidFuzzPercent = errors.New("fuzz percentage must be between 0 and 100")
	// ErrInvalidDiffRatio is returned when the differing-pixel ratio is outside 0..1.
	ErrInvalidDiffRatio = errors.New("max diff ratio must be between 0.0 and 1.0")
	// ErrImageZeroPixels is returned when an image has no pixels to compare.
	ErrImageZeroPixels = errors.New("image has zero pixels")
	// ErrSizeMismatch is returned when two images have different dimensions.
	ErrSizeMismatch = errors.New("image dimensions differ")
)

const (
	percentToRatio = 100.0
	maxColorValue  = 255.0
)

// Similar reports whether b is a faithful lossy copy of a. A pixel differs when
// any RGB channel moves by more than fuzzPercent of the full channel range; the
// images are similar when the ratio of differing pixels is at most maxDiffRatio.
// Alpha is ignored on both sides, matching what EncodeJPEG keeps.
func Similar(a, b image.Image, fuzzPercent int, maxDiffRatio float64) (bool, error) {
	if fuzzPercent < 0 || fuzzPercent > 100 {
		return false, fmt.Errorf("got %d: %w", fuzzPercent, ErrInvalidFuzzPercent)
	}

	if maxDiffRatio < 0 || maxDiffRatio > 1.0 {
		return false, fmt.Errorf("got %f: %w", maxDiffRatio, ErrInvalidDiffRatio)
	}

	boundsA, boundsB := a.Bounds(), b.Bounds()
	if boundsA.Dx() != boundsB.Dx() || boundsA.Dy() != boundsB.Dy() {
		return false, fmt.Errorf(
			"%dx%d vs %dx%d: %w",
			boundsA.Dx(), boundsA.Dy(), boundsB.Dx(), boundsB.Dy(),
			ErrSizeMismatch,
		)
	}

	totalPixels := float64(boundsA.Dx() * boundsA.Dy())
	if totalPixels == 0 {
		return false, ErrImageZeroPixels
	}

	tolerance := uint32(float64(fuzzPercent) / percentToRatio * maxColorValue)
	diffCount := 0.0

	visitPixelPairs(a, b, func(ca, cb color.Color) {
		if channelsDiffer(ca, cb, tolerance) {
			diffCount++
		}
	})

	return diffCount/totalPixels <= maxDiffRatio, nil
}

// visitPixelPairs walks both images in lockstep from their respective origins.
func visitPixelPairs(a, b image.Image, visitor func(ca, cb color.Color)) {
	boundsA, boundsB := a.Bounds(), b.Bounds()
	for dy := range boundsA.Dy() {
		for dx := range boundsA.Dx() {
			visitor(
				a.At(boundsA.Min.X+dx, boundsA.Min.Y+dy),
				b.At(boundsB.Min.X+dx, boundsB.Min.Y+dy),
			)
		}
	}
}

func channelsDiffer(ca, cb color.Color, tolerance uint32) bool {
	na, _ := color.NRGBAModel.Convert(ca).(color.NRGBA)
	nb, _ := color.NRGBAModel.Convert(cb).(color.NRGBA)

	return absDiff(uint32(na.R), uint32(nb.R)) > tolerance ||
		absDiff(uint32(na.G), uint32(nb.G)) > tolerance ||
		absDiff(uint32(na.B), uint32(nb.B)) > tolerance
}

func absDiff(x, y uint32) uint32 {
	if x > y {
		return x - y
	}

	return y - x
}
