package capture

import (
	"fmt"
	"image"
	_ "image/gif"  // GIF decoder.
	_ "image/jpeg" // JPEG decoder.
	_ "image/png"  // PNG decoder.
	"io"
	"os"

	"github.com/nfnt/resize"

	"github.com/verte-zerg/evmeter/internal/luma"
)

// DefaultMaxStillSize bounds the longer side of decoded stills.
const DefaultMaxStillSize = 1600

// LoadStill decodes a PNG, JPEG or GIF file into a grey frame.
func LoadStill(path string, maxSize int) (luma.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return luma.Frame{}, fmt.Errorf("failed to open image: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			// Best-effort close on a read-only file.
			_ = cerr
		}
	}()
	return DecodeStill(f, maxSize)
}

// DecodeStill decodes an image and shrinks it so neither side exceeds
// maxSize. A non-positive maxSize keeps the original size.
func DecodeStill(r io.Reader, maxSize int) (luma.Frame, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return luma.Frame{}, fmt.Errorf("failed to decode image: %w", err)
	}
	b := img.Bounds()
	if b.Empty() {
		return luma.Frame{}, fmt.Errorf("image has no pixels")
	}
	if maxSize > 0 && (b.Dx() > maxSize || b.Dy() > maxSize) {
		img = resize.Thumbnail(uint(maxSize), uint(maxSize), img, resize.Lanczos2)
	}
	return luma.FromImage(img), nil
}
