// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package server exposes the traffic light controller over HTTP, for deployments without a display.
//
// Routes:
//
//   - GET /health: liveness.
//   - POST /predict/image: classifies the image in the multipart field "image" and applies it to the controller.
//   - GET /state: current state of the controller.
//   - GET /light.png: the traffic light rendered as a PNG image.
//   - GET /events: websocket with the controller events, as JSON text messages.
//   - GET /stream, POST /stream/start, POST /stream/stop: live stream from the camera, if one is configured.
package server

import (
	"context"
	"image"
	"net/http"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gomlx/trafficlight/camera"
	"github.com/gomlx/trafficlight/classifier"
	"github.com/gomlx/trafficlight/controller"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DefaultMaxUploadBytes is the maximum size of an image posted to /predict/image.
const DefaultMaxUploadBytes = 10 << 20

// Classifier classifies one image. It's implemented by *classifier.Classifier.
type Classifier interface {
	Classify(img image.Image) (classifier.Prediction, error)
}

// Config of a Server.
type Config struct {
	Classifier Classifier
	Controller *controller.Controller

	// Camera opens the live stream source. If nil, the /stream routes return 501 (Not Implemented).
	Camera camera.Opener

	// MaxUploadBytes for /predict/image. Defaults to DefaultMaxUploadBytes.
	MaxUploadBytes int64
}

// Server serves the controller over HTTP. Create it with New.
type Server struct {
	config     Config
	router     *httprouter.Router
	wsUpgrader websocket.Upgrader

	// muClassify serializes inference: predictors are not required to be safe for concurrent use.
	muClassify sync.Mutex

	muStream   sync.Mutex
	stream     *camera.Stream[classifier.Prediction]
	stopStream context.CancelFunc
	streamDone chan struct{}
	streamErr  error
}

// New creates a Server and its routes.
func New(config Config) (*Server, error) {
	if config.Classifier == nil || config.Controller == nil {
		return nil, errors.New("server needs a Classifier and a Controller")
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = DefaultMaxUploadBytes
	}
	s := &Server{
		config: config,
		wsUpgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	s.router = httprouter.New()
	s.handle(http.MethodGet, "/health", s.httpHealth)
	s.handle(http.MethodPost, "/predict/image", s.httpPredictImage)
	s.handle(http.MethodGet, "/state", s.httpState)
	s.handle(http.MethodGet, "/light.png", s.httpLight)
	s.handle(http.MethodGet, "/events", s.httpEvents)
	s.handle(http.MethodGet, "/stream", s.httpStreamStatus)
	s.handle(http.MethodPost, "/stream/start", s.httpStreamStart)
	s.handle(http.MethodPost, "/stream/stop", s.httpStreamStop)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handle adds a route whose handler runs with a panic handler: a panic becomes a 500 response.
func (s *Server) handle(method, path string, handle httprouter.Handle) {
	s.router.Handle(method, path, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		defer func() {
			if rec := recover(); rec != nil {
				if err, ok := rec.(runtime.Error); ok {
					klog.Errorf("runtime panic in %s %s: %v\n%s", r.Method, r.URL.Path, err, debug.Stack())
				} else {
					klog.Errorf("panic in %s %s: %v", r.Method, r.URL.Path, rec)
				}
				sendError(w, "internal error", http.StatusInternalServerError)
			}
		}()
		handle(w, r, params)
	})
}

// ListenAndServe serves on addr (e.g. ":8080") until ctx is done, then shuts down gracefully
// and stops the live stream.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		klog.Infof("listening on %s", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.StopStream()
		return errors.Wrapf(err, "http server on %q failed", addr)
	case <-ctx.Done():
	}
	klog.Infof("shutting down server")
	s.StopStream()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "failed to shutdown http server")
	}
	return nil
}

// classify serializes calls to the classifier.
func (s *Server) classify(img image.Image) (classifier.Prediction, error) {
	s.muClassify.Lock()
	defer s.muClassify.Unlock()
	return s.config.Classifier.Classify(img)
}
