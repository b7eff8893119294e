// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package camera

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource returns numFrames frames of increasing width, then fails with err (or io.EOF-like end if err is nil).
type fakeSource struct {
	numFrames int
	err       error
	read      int
	closed    bool
}

func (f *fakeSource) ReadFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.read >= f.numFrames {
		if f.err != nil {
			return nil, f.err
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f.read++
	return image.NewGray(image.Rect(0, 0, f.read, 1)), nil
}

func (f *fakeSource) Close() error { f.closed = true; return nil }

func TestStreamOpenError(t *testing.T) {
	classified := 0
	s := &Stream[int]{
		Open:     func() (Source, error) { return nil, errors.New("no device") },
		Classify: func(image.Image) (int, error) { classified++; return 0, nil },
	}
	err := s.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOpen)
	assert.Contains(t, err.Error(), "no device")
	assert.Zero(t, classified, "no frames processed")
}

func TestStreamReadError(t *testing.T) {
	src := &fakeSource{numFrames: 3, err: errors.New("unplugged")}
	var mu sync.Mutex
	var widths []int
	s := &Stream[int]{
		Open: func() (Source, error) { return src, nil },
		Classify: func(frame image.Image) (int, error) {
			return frame.Bounds().Dx(), nil
		},
		OnResult: func(_ image.Image, width int) {
			mu.Lock()
			widths = append(widths, width)
			mu.Unlock()
		},
		FrameInterval: time.Millisecond,
	}
	err := s.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRead)
	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Contains(t, streamErr.Err.Error(), "unplugged")
	assert.True(t, src.closed)
	stats := s.Stats()
	assert.Equal(t, int64(3), stats.Captured)
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, len(widths), 3)
}

func TestStreamDropsStaleFrames(t *testing.T) {
	src := &fakeSource{numFrames: 20}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	release := make(chan struct{})
	var mu sync.Mutex
	var widths []int
	s := &Stream[int]{
		Open: func() (Source, error) { return src, nil },
		Classify: func(frame image.Image) (int, error) {
			<-release // Slow classification.
			return frame.Bounds().Dx(), nil
		},
		OnResult: func(_ image.Image, width int) {
			mu.Lock()
			widths = append(widths, width)
			if width == 20 {
				cancel()
			}
			mu.Unlock()
		},
		FrameInterval: time.Millisecond,
	}
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()

	// Let the capture go through all frames while the first classification is blocked.
	require.Eventually(t, func() bool { return s.Stats().Captured == 20 }, 5*time.Second, time.Millisecond)
	close(release)
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, widths)
	assert.Equal(t, 20, widths[len(widths)-1], "latest frame is always classified")
	assert.Less(t, len(widths), 20)
	stats := s.Stats()
	assert.Equal(t, stats.Captured, stats.Classified+stats.Dropped)
	assert.Positive(t, stats.Dropped)
}

func TestStreamClassifyErrorsAreSkipped(t *testing.T) {
	src := &fakeSource{numFrames: 2, err: errors.New("end")}
	s := &Stream[int]{
		Open:          func() (Source, error) { return src, nil },
		Classify:      func(image.Image) (int, error) { return 0, errors.New("bad frame") },
		FrameInterval: time.Millisecond,
	}
	err := s.Run(context.Background())
	assert.ErrorIs(t, err, ErrRead)
	assert.Zero(t, s.Stats().Classified)
}

func TestDirectorySource(t *testing.T) {
	dir := t.TempDir()
	for ii, name := range []string{"b.png", "a.png"} {
		img := image.NewNRGBA(image.Rect(0, 0, ii+1, 1))
		img.Set(0, 0, color.White)
		f, err := os.Create(filepath.Join(dir, name))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	var widths []int
	s := &Stream[int]{
		Open:          DirectoryOpener(dir, false),
		Classify:      func(frame image.Image) (int, error) { return frame.Bounds().Dx(), nil },
		OnResult:      func(_ image.Image, width int) { widths = append(widths, width) },
		FrameInterval: 20 * time.Millisecond,
	}
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []int{2, 1}, widths, "frames in name order: a.png then b.png")

	// Without loop, the source ends with a bare io.EOF, not an ErrRead.
	src, err := OpenDirectory(dir, false)
	require.NoError(t, err)
	for range 2 {
		_, err = src.ReadFrame(context.Background())
		require.NoError(t, err)
	}
	_, err = src.ReadFrame(context.Background())
	assert.Equal(t, io.EOF, err)
	assert.False(t, errors.Is(err, ErrRead))

	_, err = OpenDirectory(t.TempDir(), true)
	require.Error(t, err)
}

func TestYUYVToYCbCr(t *testing.T) {
	// 2x1 frame: Y0=0 U=128 Y1=255 V=128 -> black and white pixels.
	img, err := YUYVToYCbCr([]byte{0, 128, 255, 128}, 2, 1)
	require.NoError(t, err)
	r, g, b, _ := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(0), r>>8)
	assert.Equal(t, r, g)
	assert.Equal(t, g, b)
	r, _, _, _ = img.At(1, 0).RGBA()
	assert.Equal(t, uint32(255), r>>8)

	_, err = YUYVToYCbCr([]byte{1, 2}, 2, 1)
	require.Error(t, err)
	_, err = YUYVToYCbCr(make([]byte, 12), 3, 1)
	require.Error(t, err)
}
