// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

//go:build linux

package camera

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"

	"github.com/blackjack/webcam"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// V4L2 pixel formats supported.
const (
	pixFmtMJPEG webcam.PixelFormat = 0x47504A4D // 'MJPG'
	pixFmtYUYV  webcam.PixelFormat = 0x56595559 // 'YUYV'
)

// frameTimeoutSeconds is how long to wait for a frame before checking the context again.
const frameTimeoutSeconds = 1

// maxConsecutiveTimeouts before ReadFrame gives up on the device.
const maxConsecutiveTimeouts = 5

// Webcam is a V4L2 video device.
type Webcam struct {
	device        string
	cam           *webcam.Webcam
	format        webcam.PixelFormat
	width, height int
}

var _ Source = (*Webcam)(nil)

// OpenWebcam opens the V4L2 device (e.g. "/dev/video0") and starts streaming with the frame size closest
// to width x height. It prefers MJPEG, and falls back to YUYV.
func OpenWebcam(device string, width, height int) (*Webcam, error) {
	cam, err := webcam.Open(device)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %q", device)
	}
	w := &Webcam{device: device, cam: cam}
	formats := cam.GetSupportedFormats()
	switch {
	case formats[pixFmtMJPEG] != "":
		w.format = pixFmtMJPEG
	case formats[pixFmtYUYV] != "":
		w.format = pixFmtYUYV
	default:
		_ = cam.Close()
		return nil, errors.Errorf("device %q supports neither MJPEG nor YUYV: %v", device, formats)
	}
	w.width, w.height = closestFrameSize(cam.GetSupportedFrameSizes(w.format), width, height)
	format, gotWidth, gotHeight, err := cam.SetImageFormat(w.format, uint32(w.width), uint32(w.height))
	if err != nil {
		_ = cam.Close()
		return nil, errors.Wrapf(err, "failed to set image format of %q", device)
	}
	w.format, w.width, w.height = format, int(gotWidth), int(gotHeight)
	if err = cam.StartStreaming(); err != nil {
		_ = cam.Close()
		return nil, errors.Wrapf(err, "failed to start streaming from %q", device)
	}
	klog.V(1).Infof("webcam %q streaming %dx%d in %s", device, w.width, w.height, formats[w.format])
	return w, nil
}

// WebcamOpener returns an Opener for OpenWebcam.
func WebcamOpener(device string, width, height int) Opener {
	return func() (Source, error) { return OpenWebcam(device, width, height) }
}

// closestFrameSize returns the supported discrete size closest in area to width x height.
// Stepwise ranges are clamped to the requested size.
func closestFrameSize(sizes []webcam.FrameSize, width, height int) (int, int) {
	bestWidth, bestHeight := width, height
	bestDiff := -1
	for _, size := range sizes {
		w, h := int(size.MaxWidth), int(size.MaxHeight)
		if size.StepWidth != 0 || size.StepHeight != 0 {
			w = min(max(width, int(size.MinWidth)), int(size.MaxWidth))
			h = min(max(height, int(size.MinHeight)), int(size.MaxHeight))
		}
		diff := w*h - width*height
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff {
			bestWidth, bestHeight, bestDiff = w, h, diff
		}
	}
	return bestWidth, bestHeight
}

// ReadFrame implements Source.
func (w *Webcam) ReadFrame(ctx context.Context) (image.Image, error) {
	timeouts := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := w.cam.WaitForFrame(frameTimeoutSeconds)
		if err != nil {
			var timeout *webcam.Timeout
			if errors.As(err, &timeout) {
				timeouts++
				if timeouts >= maxConsecutiveTimeouts {
					return nil, errors.Errorf("no frame from %q after %d seconds", w.device, timeouts*frameTimeoutSeconds)
				}
				continue
			}
			return nil, errors.Wrapf(err, "failed waiting for frame from %q", w.device)
		}
		frame, err := w.cam.ReadFrame()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read frame from %q", w.device)
		}
		if len(frame) == 0 {
			continue
		}
		return w.decode(frame)
	}
}

func (w *Webcam) decode(frame []byte) (image.Image, error) {
	if w.format == pixFmtMJPEG {
		img, err := jpeg.Decode(bytes.NewReader(frame))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode MJPEG frame")
		}
		return img, nil
	}
	return YUYVToYCbCr(frame, w.width, w.height)
}

// Close implements Source.
func (w *Webcam) Close() error {
	_ = w.cam.StopStreaming()
	return errors.Wrapf(w.cam.Close(), "failed to close %q", w.device)
}
