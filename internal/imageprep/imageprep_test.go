// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package imageprep

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFit(t *testing.T) {
	// A wide image: left third red, middle third green, right third blue.
	img := image.NewRGBA(image.Rect(0, 0, 90, 30))
	for y := range 30 {
		for x := range 90 {
			c := color.RGBA{A: 255}
			switch {
			case x < 30:
				c.R = 255
			case x < 60:
				c.G = 255
			default:
				c.B = 255
			}
			img.Set(x, y, c)
		}
	}
	fitted := Fit(img, 10)
	require.Equal(t, image.Rect(0, 0, 10, 10), fitted.Bounds())
	// Center crop keeps only the green part.
	r, g, b, _ := fitted.At(5, 5).RGBA()
	assert.Less(t, r, uint32(0x1000))
	assert.Greater(t, g, uint32(0xF000))
	assert.Less(t, b, uint32(0x1000))
}

func TestPixels(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 0, G: 255, B: 51, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 255, G: 0, B: 0, A: 0})

	unit := Pixels(img, Unit, HWC)
	assert.InDeltaSlice(t, []float32{0, 1, 0.2, 1, 0, 0}, unit, 1e-6)

	symmetric := Pixels(img, Symmetric, HWC)
	assert.InDeltaSlice(t, []float32{-1, 1, -0.6, 1, -1, -1}, symmetric, 1e-6)

	chw := Pixels(img, Unit, CHW)
	assert.InDeltaSlice(t, []float32{0, 1, 1, 0, 0.2, 0}, chw, 1e-6)

	// Sub-images with an origin other than (0,0).
	sub := image.NewNRGBA(image.Rect(5, 5, 7, 6))
	sub.SetNRGBA(5, 5, color.NRGBA{R: 255, A: 255})
	assert.InDeltaSlice(t, []float32{1, 0, 0, 0, 0, 0}, Pixels(sub, Unit, HWC), 1e-6)
}

func TestParse(t *testing.T) {
	for input, want := range map[string]PixelRange{"unit": Unit, "Symmetric": Symmetric, "": Symmetric, "[0,1]": Unit} {
		got, err := ParsePixelRange(input)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		if input == "unit" {
			assert.Equal(t, input, got.String())
		}
	}
	_, err := ParsePixelRange("imagenet")
	require.Error(t, err)

	layout, err := ParseLayout("nchw")
	require.NoError(t, err)
	assert.Equal(t, CHW, layout)
	layout, err = ParseLayout("")
	require.NoError(t, err)
	assert.Equal(t, HWC, layout)
	_, err = ParseLayout("HW")
	require.Error(t, err)
}
