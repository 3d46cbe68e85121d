// Package codec decodes PNG, AVIF and JPEG images and re-encodes them as JPEG.
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png" // Register the PNG decoder with image.Decode.
	"os"

	"github.com/gen2brain/avif"
)

var (
	// ErrDecode is returned when image bytes cannot be decoded.
	ErrDecode = errors.New("image decode failed")
	// ErrEncode is returned when a JPEG cannot be produced from pixel data.
	ErrEncode = errors.New("jpeg encode failed")
	// ErrNotJPEG is returned when a buffer does not carry a JPEG stream.
	ErrNotJPEG = errors.New("data is not a jpeg image")
)

// ftypBoxOffset is where the ISO-BMFF "ftyp" box type starts in an AVIF file.
const ftypBoxOffset = 4

// Codec is the image codec used by the normalizer. The zero value is ready to use.
type Codec struct{}

// New returns a Codec.
func New() *Codec {
	return &Codec{}
}

// Decode turns encoded image bytes into pixel data. AVIF payloads are routed to
// the AVIF decoder; everything else goes through the registered stdlib decoders.
func (c *Codec) Decode(data []byte) (image.Image, error) {
	if isAVIF(data) {
		img, err := avif.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: avif: %w", ErrDecode, err)
		}

		return img, nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	if format != "png" && format != "jpeg" {
		return nil, fmt.Errorf("%w: unsupported format %q", ErrDecode, format)
	}

	return img, nil
}

// EncodeJPEG flattens img to opaque RGB and encodes it at the default JPEG quality.
func (c *Codec) EncodeJPEG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrEncode)
	}

	var buf bytes.Buffer

	err := jpeg.Encode(&buf, ToRGB(img), &jpeg.Options{Quality: jpeg.DefaultQuality})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}

	return buf.Bytes(), nil
}

// ValidateJPEG checks that data starts with a decodable JPEG header.
func (c *Codec) ValidateJPEG(data []byte) error {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotJPEG, err)
	}

	if format != "jpeg" {
		return fmt.Errorf("%w: found %s", ErrNotJPEG, format)
	}

	return nil
}

// LoadImage reads and decodes the image stored at path.
func (c *Codec) LoadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read image %s: %w", path, err)
	}

	img, err := c.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("could not decode image %s: %w", path, err)
	}

	return img, nil
}

// ToRGB drops the alpha channel of img and keeps its straight (non
// premultiplied) colour values. Opaque images are returned unchanged.
func ToRGB(img image.Image) image.Image {
	if opaque, ok := img.(interface{ Opaque() bool }); ok && opaque.Opaque() {
		return img
	}

	bounds := img.Bounds()
	rgb := image.NewRGBA(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			nrgba, _ := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			rgb.SetRGBA(x, y, color.RGBA{R: nrgba.R, G: nrgba.G, B: nrgba.B, A: 0xff})
		}
	}

	return rgb
}

// isAVIF reports whether data starts with an ISO-BMFF ftyp box naming an AVIF
// brand, either as the major brand or in the compatible brands list.
func isAVIF(data []byte) bool {
	const (
		brandLen           = 4
		majorBrandOffset   = 8
		compatibleOffset   = 16
		minimumFtypBoxSize = majorBrandOffset + brandLen
	)

	if len(data) < minimumFtypBoxSize {
		return false
	}

	if string(data[ftypBoxOffset:ftypBoxOffset+brandLen]) != "ftyp" {
		return false
	}

	if isAVIFBrand(data[majorBrandOffset : majorBrandOffset+brandLen]) {
		return true
	}

	boxEnd := min(int(binary.BigEndian.Uint32(data[:ftypBoxOffset])), len(data))
	for offset := compatibleOffset; offset+brandLen <= boxEnd; offset += brandLen {
		if isAVIFBrand(data[offset : offset+brandLen]) {
			return true
		}
	}

	return false
}

func isAVIFBrand(brand []byte) bool {
	return string(brand) == "avif" || string(brand) == "avis"
}
