package bundler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"

	"github.com/book-expert/logger"

	"github.com/book-expert/images-to-pdf/internal/codec"
	"github.com/book-expert/images-to-pdf/internal/pdfpack"
)

// Options holds all configurable parameters for a Processor.
type Options struct {
	// ProgressBarOutput is the writer where progress bars are rendered.
	// Defaults to os.Stdout; set DisableProgress to silence them.
	ProgressBarOutput io.Writer
	// AllowedExtensions lists the file extensions treated as images.
	// Defaults to jpg, jpeg, png and avif.
	AllowedExtensions []string
	// Verify controls the pixel check of converted images.
	Verify VerifyOptions
	// Workers caps the number of jobs running at once across every root.
	// Defaults to the number of available CPU cores.
	Workers int
	// Overwrite regenerates PDFs that already exist instead of skipping them.
	Overwrite bool
	// DisableProgress discards progress bar output.
	DisableProgress bool
}

// Processor runs the image-to-PDF pipeline over a set of root paths.
type Processor struct {
	codec    ImageCodec
	packer   PDFPacker
	notifier Notifier
	log      *logger.Logger
	slots    chan struct{}
	config   Options
}

const (
	defaultVerifyFuzzPercent  = 10
	defaultVerifyMaxDiffRatio = 0.05
)

// NewProcessor creates a Processor with the given options and logger. Zero
// values in opts are replaced by defaults.
func NewProcessor(opts *Options, log *logger.Logger) *Processor {
	applyDefaultOptions(opts)

	return &Processor{
		config:   *opts,
		log:      log,
		codec:    codec.New(),
		packer:   pdfpack.New(),
		notifier: nil,
		slots:    make(chan struct{}, opts.Workers),
	}
}

// applyDefaultOptions fills zero-value fields in Options with defaults.
func applyDefaultOptions(opts *Options) {
	opts.Workers = defaultIntNonPositive(opts.Workers, runtime.NumCPU())
	opts.Verify.FuzzPercent = defaultIntNonPositive(opts.Verify.FuzzPercent, defaultVerifyFuzzPercent)
	opts.Verify.MaxDiffRatio = defaultFloatNonPositive(
		opts.Verify.MaxDiffRatio,
		defaultVerifyMaxDiffRatio,
	)

	if len(opts.AllowedExtensions) == 0 {
		opts.AllowedExtensions = DefaultExtensions()
	}

	opts.ProgressBarOutput = defaultWriterNil(opts.ProgressBarOutput, os.Stdout)
	if opts.DisableProgress {
		opts.ProgressBarOutput = io.Discard
	}
}

func defaultIntNonPositive(v, def int) int {
	if v <= 0 {
		return def
	}

	return v
}

func defaultFloatNonPositive(v, def float64) float64 {
	if v <= 0 {
		return def
	}

	return v
}

func defaultWriterNil(w, def io.Writer) io.Writer {
	if w == nil {
		return def
	}

	return w
}

// SetNotifier registers a Notifier called after every created PDF.
func (processor *Processor) SetNotifier(notifier Notifier) {
	processor.notifier = notifier
}

// Run processes every root concurrently and returns one report per root.
// Failures inside a root never affect another root and never make Run fail;
// Run only returns an error for invalid options.
func (processor *Processor) Run(ctx context.Context, roots []string) (Summary, error) {
	// Step 1: Validate the configuration before starting any work.
	scanner, validateErr := processor.validateConfig(roots)
	if validateErr != nil {
		return Summary{}, validateErr
	}

	processor.log.Info(
		"Processing %d root(s) with %d worker(s), extensions %v, overwrite=%t",
		len(roots),
		processor.config.Workers,
		scanner.AllowedExtensions(),
		processor.config.Overwrite,
	)

	// Step 2: One independent pipeline per root.
	reports := make([]RootReport, len(roots))

	var waitGroup sync.WaitGroup

	for index, root := range roots {
		waitGroup.Add(1)

		go func() {
			defer waitGroup.Done()

			reports[index] = processor.processRoot(ctx, scanner, root)
		}()
	}

	waitGroup.Wait()

	summary := Summary{Roots: reports}
	processor.logSummary(summary)

	return summary, nil
}

// validateConfig checks the roots and the extension set and returns the
// scanner shared by every root.
func (processor *Processor) validateConfig(roots []string) (*Scanner, error) {
	if len(roots) == 0 {
		return nil, ErrNoRoots
	}

	return NewScanner(processor.config.AllowedExtensions, processor.log)
}

// processRoot runs both phases for one root. Phase 2 starts only after every
// phase 1 job has returned.
func (processor *Processor) processRoot(ctx context.Context, scanner *Scanner, root string) RootReport {
	var counters rootCounters

	processor.log.Info("Scanning %s", root)

	// Phase 1: convert every non-JPEG image.
	entries, scanErr := scanner.Scan(root)
	if scanErr != nil {
		processor.log.Error("Cannot process root %s: %v", root, scanErr)

		return counters.report(root, scanErr)
	}

	var conversions []ImageRecord

	for entry := range entries {
		record, ok := entry.Image()
		if !ok {
			continue
		}

		counters.imagesFound.Add(1)

		if record.Format != FormatJPEG {
			conversions = append(conversions, record)
		}
	}

	conversions = processor.claimTargets(&counters, conversions)
	processor.normalizeAll(ctx, &counters, conversions)

	if ctxErr := ctx.Err(); ctxErr != nil {
		processor.log.Warn("Stopping %s before assembling PDFs: %v", root, ctxErr)

		return counters.report(root, ctxErr)
	}

	// Phase 2: group the post-conversion tree and assemble one PDF per directory.
	entries, scanErr = scanner.Scan(root)
	if scanErr != nil {
		processor.log.Error("Cannot rescan root %s: %v", root, scanErr)

		return counters.report(root, scanErr)
	}

	groups := slices.Collect(NewGrouper(processor.log).Group(entries))
	processor.assembleAll(ctx, &counters, groups)

	return counters.report(root, ctx.Err())
}

// claimTargets keeps one conversion per JPEGSibling target, the first in scan
// order. The others fail with ErrTargetCollision and keep their sources.
func (processor *Processor) claimTargets(counters *rootCounters, records []ImageRecord) []ImageRecord {
	claimed := make(map[string]string, len(records))
	kept := make([]ImageRecord, 0, len(records))

	for _, record := range records {
		target := JPEGSibling(record.Path)

		owner, taken := claimed[target]
		if taken {
			counters.convertFailed.Add(1)
			processor.log.Error(
				"Failed to convert %s: %v: %s is claimed by %s",
				record.Path,
				ErrTargetCollision,
				target,
				owner,
			)

			continue
		}

		claimed[target] = record.Path
		kept = append(kept, record)
	}

	return kept
}

// normalizeAll converts records through the worker pool and returns once
// every conversion has finished.
func (processor *Processor) normalizeAll(ctx context.Context, counters *rootCounters, records []ImageRecord) {
	if len(records) == 0 {
		return
	}

	normalizer := NewNormalizer(processor.codec, processor.config.Verify, processor.log)
	total := len(records)

	runJobs(ctx, processor, "convert", records, func(ctx context.Context, record ImageRecord) {
		converted, err := normalizer.Normalize(ctx, record)
		current := counters.processed.Add(1)

		if err != nil {
			counters.convertFailed.Add(1)
			processor.log.Error("[%d/%d] Failed to convert %s: %v", current, total, record.Path, err)

			return
		}

		counters.converted.Add(1)
		processor.log.Success("[%d/%d] Converted %s", current, total, filepath.Base(converted.Path))
	})
}

// assembleAll builds one PDF per group through the worker pool.
func (processor *Processor) assembleAll(ctx context.Context, counters *rootCounters, groups []DirectoryGroup) {
	assembler := NewAssembler(processor.packer, processor.config.Overwrite)

	runJobs(ctx, processor, "assemble", groups, func(ctx context.Context, group DirectoryGroup) {
		processor.assembleGroup(ctx, counters, assembler, group)
	})
}

func (processor *Processor) assembleGroup(
	ctx context.Context,
	counters *rootCounters,
	assembler *Assembler,
	group DirectoryGroup,
) {
	// Skip before reading any page when the PDF is already there.
	if !processor.config.Overwrite && ArtifactExists(group.Dir) {
		counters.pdfsSkipped.Add(1)
		processor.log.Info("Skipping %s: PDF already exists", ArtifactPath(group.Dir))

		return
	}

	pages := processor.loadPages(counters, group)
	if len(pages) == 0 {
		processor.log.Warn("No usable images left in %s, no PDF created", group.Dir)

		return
	}

	artifact, err := assembler.Assemble(ctx, group.Dir, pages)

	switch {
	case errors.Is(err, ErrArtifactExists):
		counters.pdfsSkipped.Add(1)
		processor.log.Info("Skipping %s: PDF already exists", ArtifactPath(group.Dir))
	case err != nil:
		counters.pdfsFailed.Add(1)
		processor.log.Error("Failed to create PDF for %s: %v", group.Dir, err)
	default:
		counters.addArtifact(artifact)
		processor.log.Success("Created %s (%d pages)", artifact.Path, artifact.Pages)
		processor.notify(ctx, artifact)
	}
}

// loadPages reads the JPEG bytes of a group in order. Unreadable files and
// buffers that are not JPEG are left out.
func (processor *Processor) loadPages(counters *rootCounters, group DirectoryGroup) [][]byte {
	pages := make([][]byte, 0, len(group.Images))

	for _, image := range group.Images {
		data, readErr := os.ReadFile(image.Path)
		if readErr != nil {
			counters.imagesExcluded.Add(1)
			processor.log.Warn("Leaving out %s: %v", image.Path, readErr)

			continue
		}

		validateErr := processor.codec.ValidateJPEG(data)
		if validateErr != nil {
			counters.imagesExcluded.Add(1)
			processor.log.Warn("Leaving out %s: %v", image.Path, validateErr)

			continue
		}

		pages = append(pages, data)
	}

	return pages
}

func (processor *Processor) notify(ctx context.Context, artifact Artifact) {
	if processor.notifier == nil {
		return
	}

	notifyErr := processor.notifier.PDFCreated(ctx, artifact)
	if notifyErr != nil {
		processor.log.Warn("Could not publish %s: %v", artifact.Path, notifyErr)
	}
}

func (processor *Processor) logSummary(summary Summary) {
	for _, report := range summary.Roots {
		if report.Err != nil {
			processor.log.Error("Root %s failed: %v", report.Root, report.Err)

			continue
		}

		processor.log.Info(
			"Root %s: %s",
			report.Root,
			fmt.Sprintf(
				"%d image(s), %d converted, %d conversion failure(s), %d excluded, "+
					"%d PDF(s) created, %d skipped, %d failed",
				report.ImagesFound,
				report.Converted,
				report.ConvertFailed,
				report.ImagesExcluded,
				report.PDFsCreated,
				report.PDFsSkipped,
				report.PDFsFailed,
			),
		)
	}
}
