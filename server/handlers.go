// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strconv"

	"github.com/gomlx/trafficlight/classifier"
	"github.com/gomlx/trafficlight/controller"
	"github.com/julienschmidt/httprouter"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	"k8s.io/klog/v2"
)

// PredictResponse is the response of /predict/image.
type PredictResponse struct {
	Prediction classifier.Prediction `json:"prediction"`
	Decision   controller.Decision   `json:"decision"`
	State      controller.State      `json:"state"`
}

func sendJSON(w http.ResponseWriter, obj any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(obj); err != nil {
		klog.Warningf("failed to send JSON response: %v", err)
	}
}

func sendError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(message))
}

func (s *Server) httpHealth(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	sendJSON(w, map[string]string{"status": "healthy"})
}

func (s *Server) httpState(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	sendJSON(w, s.config.Controller.State())
}

func (s *Server) httpPredictImage(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		sendError(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		sendError(w, "No image file provided. Use 'image' as the form field name", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	img, format, err := image.Decode(file)
	if err != nil {
		sendError(w, "Invalid image format. Supported: JPEG, PNG, GIF, BMP, WEBP", http.StatusBadRequest)
		return
	}
	klog.V(1).Infof("received %q (%s, %d bytes, %dx%d)", header.Filename, format, header.Size,
		img.Bounds().Dx(), img.Bounds().Dy())

	prediction, err := s.classify(img)
	if err != nil {
		klog.Errorf("prediction of %q failed: %+v", header.Filename, err)
		sendError(w, "Prediction failed", http.StatusInternalServerError)
		return
	}
	decision := s.config.Controller.Apply(prediction)
	sendJSON(w, PredictResponse{
		Prediction: prediction,
		Decision:   decision,
		State:      s.config.Controller.State(),
	})
}

// DefaultLightSize is the height of /light.png in pixels, if no "size" is given.
const DefaultLightSize = 240

func (s *Server) httpLight(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	size := DefaultLightSize
	if value := r.URL.Query().Get("size"); value != "" {
		var err error
		size, err = strconv.Atoi(value)
		if err != nil || size < 32 || size > 2048 {
			sendError(w, "size must be an integer between 32 and 2048", http.StatusBadRequest)
			return
		}
	}
	dc := RenderLight(s.config.Controller.State(), size)
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := dc.EncodePNG(w); err != nil {
		klog.Warningf("failed to send light image: %v", err)
	}
}
