// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

//go:build !linux

package camera

import "github.com/pkg/errors"

// Webcam is only available on Linux.
type Webcam struct {
	Source
}

// OpenWebcam always fails with ErrUnsupported outside Linux.
func OpenWebcam(device string, width, height int) (*Webcam, error) {
	return nil, errors.Wrapf(ErrUnsupported, "can't open %q", device)
}

// WebcamOpener returns an Opener for OpenWebcam.
func WebcamOpener(device string, width, height int) Opener {
	return func() (Source, error) { return OpenWebcam(device, width, height) }
}
