// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package camera

import (
	"context"
	"image"
	"io"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// DefaultFrameInterval is the pause between frame captures.
const DefaultFrameInterval = 50 * time.Millisecond

// StreamError is returned by Stream.Run when the source fails. Kind is ErrOpen or ErrRead, and
// errors.Is works with both the Kind and the underlying error.
type StreamError struct {
	Kind error
	Err  error
}

// Error implements error.
func (e *StreamError) Error() string {
	return e.Kind.Error() + ": " + e.Err.Error()
}

// Unwrap returns both the kind and the underlying error.
func (e *StreamError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Stream captures frames from a source and classifies them in the background.
//
// Capture and classification run in separate goroutines, connected by a mailbox of one frame: if the
// classification is slower than the capture, stale frames are dropped and only the latest one is classified.
type Stream[R any] struct {
	// Open the source of frames. It's called once per Run.
	Open Opener

	// Classify a frame. Errors are logged and the frame is skipped.
	Classify func(frame image.Image) (R, error)

	// OnResult is called with each frame classified and its result, from the classification goroutine.
	OnResult func(frame image.Image, result R)

	// FrameInterval between captures. If 0, DefaultFrameInterval is used.
	FrameInterval time.Duration

	captured, dropped, classified, failed atomic.Int64
}

// StreamStats counts the frames of a stream.
type StreamStats struct {
	Captured   int64 `json:"captured"`
	Dropped    int64 `json:"dropped"`
	Classified int64 `json:"classified"`
	Failed     int64 `json:"failed"`
}

// Stats returns the frame counters, accumulated over all runs.
func (s *Stream[R]) Stats() StreamStats {
	return StreamStats{
		Captured:   s.captured.Load(),
		Dropped:    s.dropped.Load(),
		Classified: s.classified.Load(),
		Failed:     s.failed.Load(),
	}
}

// Run opens the source and streams until ctx is canceled (it returns nil), the source is exhausted
// (io.EOF, it returns nil after classifying the last frame) or the source fails: it then returns
// a *StreamError of kind ErrOpen or ErrRead.
func (s *Stream[R]) Run(ctx context.Context) error {
	if s.Open == nil || s.Classify == nil {
		return errors.New("stream needs both Open and Classify")
	}
	src, err := s.Open()
	if err != nil {
		return &StreamError{Kind: ErrOpen, Err: err}
	}
	defer func() {
		if err := src.Close(); err != nil {
			klog.Warningf("failed to close frame source: %+v", err)
		}
	}()

	interval := s.FrameInterval
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	mailbox := make(chan image.Image, 1)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.capture(gCtx, src, mailbox, interval) })
	g.Go(func() error { return s.classify(gCtx, mailbox) })
	err = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// capture frames into the mailbox, replacing any frame not yet classified.
func (s *Stream[R]) capture(ctx context.Context, src Source, mailbox chan image.Image, interval time.Duration) error {
	defer close(mailbox)
	for {
		frame, err := src.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return &StreamError{Kind: ErrRead, Err: err}
		}
		s.captured.Add(1)
		select {
		case mailbox <- frame:
		default:
			// Mailbox is full: replace the stale frame. Only this goroutine sends, so the second send can't block.
			select {
			case <-mailbox:
				s.dropped.Add(1)
			default:
			}
			mailbox <- frame
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// classify frames from the mailbox until it's closed or the context is canceled.
func (s *Stream[R]) classify(ctx context.Context, mailbox <-chan image.Image) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-mailbox:
			if !ok {
				return nil
			}
			result, err := s.Classify(frame)
			if err != nil {
				s.failed.Add(1)
				klog.Warningf("failed to classify frame: %+v", err)
				continue
			}
			s.classified.Add(1)
			if s.OnResult != nil {
				s.OnResult(frame, result)
			}
		}
	}
}
