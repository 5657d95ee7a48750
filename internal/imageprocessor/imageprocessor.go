// Package imageprocessor turns uploaded photos into the normalized tensors the
// classifiers score.
package imageprocessor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"

	"github.com/example/traffic-sign/internal/tensor"
)

var (
	// ErrUnsupportedFormat is returned for images the pipeline cannot use:
	// unknown encodings and images with fewer than three colour channels.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrInvalidImage is returned when a known encoding fails to decode.
	ErrInvalidImage = errors.New("invalid image data")
	// ErrImageTooLarge is returned when the declared dimensions exceed the
	// pixel limit. It is detected from the header, before pixels are decoded.
	ErrImageTooLarge = errors.New("image too large")
)

// DefaultMaxPixels bounds decoded images to about 100 MB of RGBA pixels.
const DefaultMaxPixels = 25_000_000

// PNG colour types without RGB samples.
const (
	pngColorGray      = 0
	pngColorGrayAlpha = 4
)

// Size is the fixed width and height images are resized to.
type Size struct {
	Width  int
	Height int
}

// Shape is the tensor shape Normalize produces for this size.
func (s Size) Shape() tensor.Shape {
	return tensor.ImageShape(s.Width, s.Height)
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Decode decodes a JPEG or PNG payload. Images larger than maxPixels are
// rejected from their header; maxPixels <= 0 disables the limit. Gray PNGs
// are rejected even when transparency makes the decoder promote them to NRGBA.
func Decode(data []byte, maxPixels int) (image.Image, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", classifyDecodeError(err)
	}
	if maxPixels > 0 && cfg.Width*cfg.Height > maxPixels {
		return nil, format, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, maxPixels)
	}
	if format == "png" {
		if ct, ok := pngColorType(data); ok && (ct == pngColorGray || ct == pngColorGrayAlpha) {
			return nil, format, fmt.Errorf("%w: gray png (colour type %d)", ErrUnsupportedFormat, ct)
		}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", classifyDecodeError(err)
	}
	return img, format, nil
}

func classifyDecodeError(err error) error {
	if errors.Is(err, image.ErrFormat) {
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return fmt.Errorf("%w: %v", ErrInvalidImage, err)
}

// pngColorType reads the colour type byte of the IHDR chunk, which always
// directly follows the 8 byte signature.
func pngColorType(data []byte) (byte, bool) {
	if len(data) < 26 || string(data[12:16]) != "IHDR" {
		return 0, false
	}
	return data[25], true
}

// Channels reports how many channels img carries: 1 for gray or alpha-only
// images, 3 for opaque colour images and 4 when an alpha channel is present.
func Channels(img image.Image) int {
	switch m := img.(type) {
	case *image.Gray, *image.Gray16, *image.Alpha, *image.Alpha16:
		return 1
	case *image.YCbCr, *image.CMYK:
		return 3
	case *image.NYCbCrA:
		return 4
	case *image.Paletted:
		for _, c := range m.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return 4
			}
		}
		return 3
	}
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return 3
	}
	return 4
}

// Normalize resizes img to size, drops any alpha channel, scales every value
// into [0,1] and returns a (1, height, width, 3) tensor.
func Normalize(img image.Image, size Size) (*tensor.Tensor, error) {
	if size.Width <= 0 || size.Height <= 0 {
		return nil, fmt.Errorf("imageprocessor: invalid target size %s", size)
	}
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrUnsupportedFormat)
	}
	if channels := Channels(img); channels < 3 {
		return nil, fmt.Errorf("%w: %d channel image", ErrUnsupportedFormat, channels)
	}

	resized := img
	bounds := img.Bounds()
	if bounds.Dx() != size.Width || bounds.Dy() != size.Height {
		resized = resize.Resize(uint(size.Width), uint(size.Height), img, resize.Lanczos3)
	}

	out := tensor.New(size.Shape())
	rb := resized.Bounds()
	i := 0
	for y := rb.Min.Y; y < rb.Max.Y; y++ {
		for x := rb.Min.X; x < rb.Max.X; x++ {
			// Non-premultiplied so that dropping alpha keeps the stored RGB values.
			c := color.NRGBAModel.Convert(resized.At(x, y)).(color.NRGBA)
			out.Data[i] = float32(c.R) / 255.0
			out.Data[i+1] = float32(c.G) / 255.0
			out.Data[i+2] = float32(c.B) / 255.0
			i += 3
		}
	}
	return out, nil
}
