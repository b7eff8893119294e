// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package camera

import (
	"image"

	"github.com/pkg/errors"
)

// YUYVToYCbCr converts a packed YUYV 4:2:2 frame (Y0 U Y1 V for each pair of pixels) to an image.YCbCr.
func YUYVToYCbCr(frame []byte, width, height int) (*image.YCbCr, error) {
	if width <= 0 || height <= 0 || width%2 != 0 {
		return nil, errors.Errorf("invalid YUYV frame size %dx%d", width, height)
	}
	if len(frame) < width*height*2 {
		return nil, errors.Errorf("YUYV frame has %d bytes, %dx%d needs %d", len(frame), width, height, width*height*2)
	}
	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	for y := range height {
		row := frame[y*width*2 : (y+1)*width*2]
		for x := 0; x < width; x += 2 {
			pair := row[x*2 : x*2+4]
			img.Y[y*img.YStride+x] = pair[0]
			img.Y[y*img.YStride+x+1] = pair[2]
			cIdx := y*img.CStride + x/2
			img.Cb[cIdx] = pair[1]
			img.Cr[cIdx] = pair[3]
		}
	}
	return img, nil
}
