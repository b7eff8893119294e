// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package camera provides sources of frames (a V4L2 webcam or a directory of images) and a Stream that
// classifies the frames of a source in the background.
package camera

import (
	"context"
	"image"

	"github.com/pkg/errors"
)

var (
	// ErrOpen is returned (wrapped) by Stream.Run when the source can't be opened.
	ErrOpen = errors.New("unable to open webcam")

	// ErrRead is returned (wrapped) by Stream.Run when the source fails to deliver a frame.
	ErrRead = errors.New("unable to read frame from webcam")

	// ErrUnsupported is returned by OpenWebcam on platforms without V4L2.
	ErrUnsupported = errors.New("webcam capture is not supported on this platform")
)

// Source of frames.
type Source interface {
	// ReadFrame blocks until the next frame is available, the context is canceled, or the source fails.
	ReadFrame(ctx context.Context) (image.Image, error)

	// Close the source, freeing the device.
	Close() error
}

// Opener opens a Source: it is called by Stream.Run, so the device is only held while streaming.
type Opener func() (Source, error)
