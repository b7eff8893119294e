// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package camera

import (
	"context"
	"image"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/gomlx/trafficlight/dataset"
	"github.com/pkg/errors"
)

// DirectorySource replays the image files of a directory, in name order, as frames.
// It's useful to test the traffic light without a camera.
type DirectorySource struct {
	paths []string
	loop  bool
	next  int
}

var _ Source = (*DirectorySource)(nil)

// OpenDirectory creates a DirectorySource from the image files in dir.
// If loop is true it restarts from the first image after the last, otherwise ReadFrame returns a bare
// io.EOF after the last image, which Stream treats as a clean end.
func OpenDirectory(dir string, loop bool) (*DirectorySource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read frames directory")
	}
	src := &DirectorySource{loop: loop}
	for _, entry := range entries {
		if entry.Type().IsRegular() && dataset.IsImageFile(entry.Name()) {
			src.paths = append(src.paths, filepath.Join(dir, entry.Name()))
		}
	}
	if len(src.paths) == 0 {
		return nil, errors.Errorf("no image files in %q", dir)
	}
	slices.Sort(src.paths)
	return src, nil
}

// DirectoryOpener returns an Opener for OpenDirectory.
func DirectoryOpener(dir string, loop bool) Opener {
	return func() (Source, error) { return OpenDirectory(dir, loop) }
}

// ReadFrame implements Source.
func (s *DirectorySource) ReadFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.paths) {
		if !s.loop {
			return nil, io.EOF
		}
		s.next = 0
	}
	path := s.paths[s.next]
	s.next++
	return dataset.GetImageFromFilePath(path)
}

// Close implements Source.
func (s *DirectorySource) Close() error { return nil }
