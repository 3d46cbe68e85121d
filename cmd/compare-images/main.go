// Command compare-images decodes two images and exits with a code telling
// whether their pixels match within a tolerance.
//
// Usage: compare-images <image_a> <image_b> <fuzz_percent> <max_diff_ratio>
// - fuzz_percent: 0..100 tolerated per-channel deviation (higher = more tolerant)
// - max_diff_ratio: 0.0..1.0 largest share of differing pixels that still matches
//
// Exit codes:
//
//	0 = images are similar
//	1 = images differ
//	2 = error (bad args, cannot open/decode an image, size mismatch)
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/book-expert/images-to-pdf/internal/codec"
)

// ErrInvalidArguments is returned for a wrong argument count.
var ErrInvalidArguments = errors.New("invalid number of arguments")

// arguments holds the parsed and validated command-line arguments.
type arguments struct {
	pathA        string
	pathB        string
	fuzzPercent  int
	maxDiffRatio float64
}

const (
	exitCodeSimilar   = 0
	exitCodeDifferent = 1
	exitCodeError     = 2

	expectedArgCount = 5
)

func main() {
	os.Exit(run(os.Args, os.Stderr))
}

// run executes the tool and returns its exit code.
func run(rawArgs []string, stderr io.Writer) int {
	// Step 1: Parse and validate the command-line arguments.
	args, err := parseAndValidateArguments(rawArgs)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Argument error: %v\n", err)

		return exitCodeError
	}

	// Step 2: Compare the two images.
	similar, err := compareImages(args)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Image comparison error: %v\n", err)

		return exitCodeError
	}

	// Step 3: Map the result to an exit code.
	if similar {
		return exitCodeSimilar
	}

	return exitCodeDifferent
}

// parseAndValidateArguments processes the raw command-line arguments.
func parseAndValidateArguments(args []string) (arguments, error) {
	if len(args) != expectedArgCount {
		return arguments{}, fmt.Errorf(
			"expected 4 arguments, but got %d. Usage: <program> <image_a> <image_b> <fuzz_percent> <max_diff_ratio>: %w",
			len(args)-1,
			ErrInvalidArguments,
		)
	}

	fuzzPercent, err := parseFuzz(args[3])
	if err != nil {
		return arguments{}, err
	}

	maxDiffRatio, err := parseRatio(args[4])
	if err != nil {
		return arguments{}, err
	}

	return arguments{
		pathA:        args[1],
		pathB:        args[2],
		fuzzPercent:  fuzzPercent,
		maxDiffRatio: maxDiffRatio,
	}, nil
}

func parseFuzz(fuzzStr string) (int, error) {
	fuzzPercent, err := strconv.Atoi(fuzzStr)
	if err != nil {
		return 0, fmt.Errorf("invalid fuzz percentage '%s': %w", fuzzStr, err)
	}

	if fuzzPercent < 0 || fuzzPercent > 100 {
		return 0, fmt.Errorf("got %d: %w", fuzzPercent, codec.ErrInvalidFuzzPercent)
	}

	return fuzzPercent, nil
}

func parseRatio(ratioStr string) (float64, error) {
	ratio, err := strconv.ParseFloat(ratioStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid max diff ratio '%s': %w", ratioStr, err)
	}

	if ratio < 0 || ratio > 1.0 {
		return 0, fmt.Errorf("got %f: %w", ratio, codec.ErrInvalidDiffRatio)
	}

	return ratio, nil
}

func compareImages(args arguments) (bool, error) {
	imgCodec := codec.New()

	imgA, err := imgCodec.LoadImage(args.pathA)
	if err != nil {
		return false, err
	}

	imgB, err := imgCodec.LoadImage(args.pathB)
	if err != nil {
		return false, err
	}

	return codec.Similar(imgA, imgB, args.fuzzPercent, args.maxDiffRatio)
}
