// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package imageprep converts images to the fixed size and the float values models consume.
//
// The trainer and the classifier both go through this package, so the pixels seen at inference time are
// produced exactly as the ones seen during training.
package imageprep

import (
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// PixelRange is the range pixel intensities are mapped to.
type PixelRange int

const (
	// Unit maps intensities to [0, 1].
	Unit PixelRange = iota

	// Symmetric maps intensities to [-1, 1].
	Symmetric
)

// String implements fmt.Stringer. The values are the ones accepted by ParsePixelRange.
func (r PixelRange) String() string {
	switch r {
	case Unit:
		return "unit"
	case Symmetric:
		return "symmetric"
	}
	return "unknown"
}

// ParsePixelRange parses "unit" or "symmetric". The empty string defaults to Symmetric.
func ParsePixelRange(s string) (PixelRange, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unit", "[0,1]":
		return Unit, nil
	case "symmetric", "[-1,1]", "":
		return Symmetric, nil
	}
	return Unit, errors.Errorf("invalid pixel range %q, valid values are \"unit\" and \"symmetric\"", s)
}

// Layout of the pixel values of one image.
type Layout int

const (
	// HWC is channels-last: [height, width, 3].
	HWC Layout = iota

	// CHW is channels-first: [3, height, width].
	CHW
)

// String implements fmt.Stringer.
func (l Layout) String() string {
	if l == CHW {
		return "CHW"
	}
	return "HWC"
}

// ParseLayout parses "HWC"/"NHWC" or "CHW"/"NCHW". The empty string defaults to HWC.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HWC", "NHWC", "":
		return HWC, nil
	case "CHW", "NCHW":
		return CHW, nil
	}
	return HWC, errors.Errorf("invalid layout %q, valid values are \"HWC\" and \"CHW\"", s)
}

// NumChannels used by models: alpha is always dropped.
const NumChannels = 3

// Fit scales img so it covers a size x size square, and crops the center of it.
// The aspect ratio is preserved.
func Fit(img image.Image, size int) *image.NRGBA {
	return imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)
}

// Pixels returns the RGB values of img mapped to pixelRange, in the given layout.
// The returned slice has width*height*3 elements.
func Pixels(img image.Image, pixelRange PixelRange, layout Layout) []float32 {
	nrgba := imaging.Clone(img) // No-op conversion cost if already NRGBA with origin at 0.
	width, height := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	values := make([]float32, width*height*NumChannels)
	PixelsInto(nrgba, pixelRange, layout, values)
	return values
}

// PixelsInto is like Pixels, but writes into values, which must have width*height*3 elements.
// It's used to fill one example of a batch in place.
func PixelsInto(img *image.NRGBA, pixelRange PixelRange, layout Layout, values []float32) {
	width, height := img.Rect.Dx(), img.Rect.Dy()
	planeSize := width * height
	scale, offset := float32(1.0/255.0), float32(0)
	if pixelRange == Symmetric {
		scale, offset = float32(1.0/127.5), -1
	}
	for y := range height {
		row := img.Pix[y*img.Stride : y*img.Stride+width*4]
		for x := range width {
			pixelIdx := y*width + x
			for c := range NumChannels {
				v := float32(row[x*4+c])*scale + offset
				if layout == CHW {
					values[c*planeSize+pixelIdx] = v
				} else {
					values[pixelIdx*NumChannels+c] = v
				}
			}
		}
	}
}
