// Package luma samples brightness statistics from single-channel luminance planes.
package luma

import (
	"image"
	"image/draw"
)

// Frame is a read-only view over one 8-bit luminance plane.
//
// The sampler never retains a Frame or its Pix slice after a call returns,
// so capture sources may reuse the backing buffer for the next frame.
type Frame struct {
	Width  int
	Height int
	Stride int
	Pix    []byte
}

// NewFrame wraps a tightly packed plane.
func NewFrame(width, height int, pix []byte) Frame {
	return Frame{Width: width, Height: height, Stride: width, Pix: pix}
}

// At returns the luminance byte at (x, y). Callers must stay in bounds.
func (f Frame) At(x, y int) byte {
	return f.Pix[y*f.Stride+x]
}

// Valid reports whether the frame has a non-empty, fully backed plane.
func (f Frame) Valid() bool {
	if f.Width <= 0 || f.Height <= 0 || f.Stride < f.Width {
		return false
	}
	return len(f.Pix) >= (f.Height-1)*f.Stride+f.Width
}

// FromGray wraps an image.Gray without copying.
func FromGray(img *image.Gray) Frame {
	b := img.Bounds()
	pix := img.Pix[img.PixOffset(b.Min.X, b.Min.Y):]
	return Frame{Width: b.Dx(), Height: b.Dy(), Stride: img.Stride, Pix: pix}
}

// FromImage converts any image to an 8-bit grey frame.
func FromImage(img image.Image) Frame {
	if gray, ok := img.(*image.Gray); ok {
		return FromGray(gray)
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return FromGray(gray)
}
