// Package pdfpack writes already-encoded JPEG buffers into a PDF, one page per image.
package pdfpack

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
)

var (
	// ErrPack is returned when the PDF document cannot be produced.
	ErrPack = errors.New("pdf packing failed")
	// ErrNoPages is returned when Pack is called without any page.
	ErrNoPages = errors.New("no pages to pack")
)

const (
	unitPoint       = "pt"
	portrait        = "P"
	jpegImageType   = "JPG"
	producerName    = "images-to-pdf"
	pageNamePattern = "page-%05d"
)

// Packer embeds JPEG streams into PDF page objects as /DCTDecode images
// without decoding them. Each page is sized to its image, one pixel per point.
type Packer struct{}

// New returns a Packer.
func New() *Packer {
	return &Packer{}
}

// Pack writes a PDF with one page per element of pages to w, preserving order.
func (p *Packer) Pack(w io.Writer, pages [][]byte) error {
	if len(pages) == 0 {
		return ErrNoPages
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: portrait,
		UnitStr:        unitPoint,
		SizeStr:        "",
		Size:           gofpdf.SizeType{Wd: 0, Ht: 0},
		FontDirStr:     "",
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetProducer(producerName, false)

	options := gofpdf.ImageOptions{
		ImageType:             jpegImageType,
		ReadDpi:               false,
		AllowNegativePosition: false,
	}

	for index, page := range pages {
		name := fmt.Sprintf(pageNamePattern, index+1)

		info := pdf.RegisterImageOptionsReader(name, options, bytes.NewReader(page))
		if pdf.Err() {
			return fmt.Errorf("%w: page %d: %w", ErrPack, index+1, pdf.Error())
		}

		width, height := info.Extent()
		pdf.AddPageFormat(portrait, gofpdf.SizeType{Wd: width, Ht: height})
		pdf.ImageOptions(name, 0, 0, width, height, false, options, 0, "")
	}

	err := pdf.Output(w)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPack, err)
	}

	return nil
}
