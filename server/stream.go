// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"image"
	"net/http"

	"github.com/gomlx/trafficlight/camera"
	"github.com/gomlx/trafficlight/classifier"
	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrNoCamera is returned by StartStream if the server has no camera configured.
var ErrNoCamera = errors.New("no camera configured")

// ErrStreaming is returned by StartStream if the live stream is already running.
var ErrStreaming = errors.New("live stream already running")

// StreamStatus is the response of the /stream routes.
type StreamStatus struct {
	Streaming bool               `json:"streaming"`
	Stats     camera.StreamStats `json:"stats"`

	// Error that stopped the last stream, if any.
	Error string `json:"error,omitempty"`
}

// StartStream starts classifying frames from the camera in the background, applying each prediction
// to the controller. Failures of the camera are published as controller error events.
func (s *Server) StartStream() error {
	if s.config.Camera == nil {
		return ErrNoCamera
	}
	s.muStream.Lock()
	defer s.muStream.Unlock()
	if s.stopStream != nil {
		return ErrStreaming
	}
	ctx, cancel := context.WithCancel(context.Background())
	stream := &camera.Stream[classifier.Prediction]{
		Open:     s.config.Camera,
		Classify: s.classify,
		OnResult: func(_ image.Image, prediction classifier.Prediction) {
			s.config.Controller.Apply(prediction)
		},
	}
	done := make(chan struct{})
	s.stream, s.stopStream, s.streamDone, s.streamErr = stream, cancel, done, nil
	go func() {
		defer close(done)
		err := stream.Run(ctx)
		cancel()
		if err != nil {
			klog.Errorf("live stream stopped: %+v", err)
			s.config.Controller.ReportError(err)
		} else {
			klog.Infof("live stream finished")
		}
		s.muStream.Lock()
		defer s.muStream.Unlock()
		s.streamErr = err
		if s.streamDone == done {
			s.stopStream = nil
		}
	}()
	klog.Infof("live stream started")
	return nil
}

// StopStream stops the live stream, if running, and waits for it to finish.
func (s *Server) StopStream() {
	s.muStream.Lock()
	stop, done := s.stopStream, s.streamDone
	s.muStream.Unlock()
	if stop == nil {
		return
	}
	stop()
	<-done
}

// StreamStatus returns whether the live stream is running and its frame counters.
func (s *Server) StreamStatus() StreamStatus {
	s.muStream.Lock()
	defer s.muStream.Unlock()
	var status StreamStatus
	status.Streaming = s.stopStream != nil
	if s.stream != nil {
		status.Stats = s.stream.Stats()
	}
	if s.streamErr != nil {
		status.Error = s.streamErr.Error()
	}
	return status
}

func (s *Server) httpStreamStatus(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	sendJSON(w, s.StreamStatus())
}

func (s *Server) httpStreamStart(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	err := s.StartStream()
	switch {
	case errors.Is(err, ErrNoCamera):
		sendError(w, err.Error(), http.StatusNotImplemented)
		return
	case errors.Is(err, ErrStreaming):
		sendError(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sendJSON(w, s.StreamStatus())
}

func (s *Server) httpStreamStop(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if s.config.Camera == nil {
		sendError(w, ErrNoCamera.Error(), http.StatusNotImplemented)
		return
	}
	s.StopStream()
	sendJSON(w, s.StreamStatus())
}
