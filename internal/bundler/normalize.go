package bundler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/images-to-pdf/internal/codec"
)

var (
	// ErrNoStrategy is returned when no normalization strategy is registered for a format.
	ErrNoStrategy = errors.New("no normalization strategy for format")
	// ErrTargetExists is returned when the JPEG sibling of an image already exists.
	ErrTargetExists = errors.New("jpeg target already exists")
	// ErrTargetCollision is returned when another image of the run converts to the same JPEG path.
	ErrTargetCollision = errors.New("another image converts to the same jpeg target")
	// ErrVerifyFailed is returned when a written JPEG does not match its source pixels.
	ErrVerifyFailed = errors.New("converted jpeg does not match source image")
)

const (
	jpegExtension = ".jpg"
	tempSuffix    = ".tmp"
	filePerm      = 0o644
)

// VerifyOptions controls the pixel comparison run on a converted JPEG before
// its source is deleted.
type VerifyOptions struct {
	// Enabled turns verification on.
	Enabled bool
	// FuzzPercent is the per-channel deviation (0..100) tolerated for a pixel
	// to still count as unchanged. Defaults to 10.
	FuzzPercent int
	// MaxDiffRatio is the largest share of changed pixels (0..1) that still
	// passes. Defaults to 0.05.
	MaxDiffRatio float64
}

// Strategy brings one image into JPEG form.
type Strategy interface {
	Normalize(ctx context.Context, record ImageRecord) (ImageRecord, error)
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc func(ctx context.Context, record ImageRecord) (ImageRecord, error)

// Normalize calls f.
func (f StrategyFunc) Normalize(ctx context.Context, record ImageRecord) (ImageRecord, error) {
	return f(ctx, record)
}

// passThrough leaves images that are already JPEG untouched.
type passThrough struct{}

func (passThrough) Normalize(_ context.Context, record ImageRecord) (ImageRecord, error) {
	return record, nil
}

// Normalizer dispatches an image to the strategy registered for its format.
type Normalizer struct {
	strategies map[Format]Strategy
}

// NewNormalizer registers pass-through for JPEG and transcoding through
// imageCodec for PNG and AVIF.
func NewNormalizer(imageCodec ImageCodec, verify VerifyOptions, log *logger.Logger) *Normalizer {
	transcode := &transcoder{codec: imageCodec, verify: verify, log: log}

	return &Normalizer{
		strategies: map[Format]Strategy{
			FormatJPEG: passThrough{},
			FormatPNG:  transcode,
			FormatAVIF: transcode,
		},
	}
}

// Register sets the strategy for format, replacing any previous one.
func (n *Normalizer) Register(format Format, strategy Strategy) {
	n.strategies[format] = strategy
}

// Normalize returns the JPEG form of record.
func (n *Normalizer) Normalize(ctx context.Context, record ImageRecord) (ImageRecord, error) {
	strategy, ok := n.strategies[record.Format]
	if !ok {
		return record, fmt.Errorf("%w: %s", ErrNoStrategy, record.Format)
	}

	return strategy.Normalize(ctx, record)
}

// JPEGSibling is the path a converted image is written to: the source path
// with its extension replaced by ".jpg".
func JPEGSibling(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + jpegExtension
}

// transcoder decodes an image and writes it back as a JPEG next to the source.
// The source file is removed only after the JPEG is in place.
type transcoder struct {
	codec  ImageCodec
	log    *logger.Logger
	verify VerifyOptions
}

func (t *transcoder) Normalize(_ context.Context, record ImageRecord) (ImageRecord, error) {
	target := JPEGSibling(record.Path)

	// Step 1: Refuse to clobber an existing JPEG with the same stem.
	_, statErr := os.Lstat(target)
	if statErr == nil {
		return record, fmt.Errorf("%w: %s", ErrTargetExists, target)
	}

	if !errors.Is(statErr, fs.ErrNotExist) {
		return record, fmt.Errorf("could not check target %s: %w", target, statErr)
	}

	// Step 2: Decode the source and encode the JPEG in memory.
	data, readErr := os.ReadFile(record.Path)
	if readErr != nil {
		return record, fmt.Errorf("could not read %s: %w", record.Path, readErr)
	}

	img, decodeErr := t.codec.Decode(data)
	if decodeErr != nil {
		return record, fmt.Errorf("could not decode %s: %w", record.Path, decodeErr)
	}

	encoded, encodeErr := t.codec.EncodeJPEG(img)
	if encodeErr != nil {
		return record, fmt.Errorf("could not encode %s: %w", record.Path, encodeErr)
	}

	if t.verify.Enabled {
		verifyErr := t.verifyEncoded(img, encoded)
		if verifyErr != nil {
			return record, fmt.Errorf("%s: %w", record.Path, verifyErr)
		}
	}

	// Step 3: Put the JPEG in place atomically.
	writeErr := writeFileAtomic(target, encoded)
	if writeErr != nil {
		return record, fmt.Errorf("could not write %s: %w", target, writeErr)
	}

	// Step 4: Only now is it safe to drop the source.
	removeErr := os.Remove(record.Path)
	if removeErr != nil {
		t.log.Warn("Converted %s but could not remove the source: %v", record.Path, removeErr)
	}

	return ImageRecord{Path: target, Format: FormatJPEG}, nil
}

func (t *transcoder) verifyEncoded(source image.Image, encoded []byte) error {
	decoded, decodeErr := t.codec.Decode(encoded)
	if decodeErr != nil {
		return fmt.Errorf("%w: %w", ErrVerifyFailed, decodeErr)
	}

	similar, compareErr := codec.Similar(source, decoded, t.verify.FuzzPercent, t.verify.MaxDiffRatio)
	if compareErr != nil {
		return fmt.Errorf("%w: %w", ErrVerifyFailed, compareErr)
	}

	if !similar {
		return ErrVerifyFailed
	}

	return nil
}

// writeFileAtomic writes data to a uniquely named temp file beside path and
// renames it over path. The temp file is removed on any failure.
func writeFileAtomic(path string, data []byte) (err error) {
	tmpPath := fmt.Sprintf("%s.%s%s", path, uuid.NewString(), tempSuffix)

	file, openErr := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if openErr != nil {
		return fmt.Errorf("could not create temp file: %w", openErr)
	}

	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	_, writeErr := file.Write(data)
	if writeErr != nil {
		_ = file.Close()

		return fmt.Errorf("could not write temp file: %w", writeErr)
	}

	return commitTempFile(file, tmpPath, path)
}

// commitTempFile syncs and closes file, then renames tmpPath to path.
func commitTempFile(file *os.File, tmpPath, path string) error {
	syncErr := file.Sync()
	if syncErr != nil {
		_ = file.Close()

		return fmt.Errorf("could not sync temp file: %w", syncErr)
	}

	closeErr := file.Close()
	if closeErr != nil {
		return fmt.Errorf("could not close temp file: %w", closeErr)
	}

	renameErr := os.Rename(tmpPath, path)
	if renameErr != nil {
		return fmt.Errorf("could not rename temp file: %w", renameErr)
	}

	return nil
}
