// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package classifier

import (
	"image"
	"math"
	"os"
	"sync"

	"github.com/gomlx/trafficlight/internal/imageprep"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"k8s.io/klog/v2"
)

// ONNXRuntimeLibraryEnv is the environment variable with the path to the onnxruntime shared library.
// If not set the onnxruntime_go default is used.
const ONNXRuntimeLibraryEnv = "ONNXRUNTIME_LIB"

var (
	// ortMu protects ortUsers, the number of open ONNXPredictor: the onnxruntime environment is global,
	// initialized by the first and destroyed by the last.
	ortMu    sync.Mutex
	ortUsers int
)

func acquireONNXEnvironment() error {
	ortMu.Lock()
	defer ortMu.Unlock()
	if ortUsers == 0 && !ort.IsInitialized() {
		if libPath := os.Getenv(ONNXRuntimeLibraryEnv); libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return errors.Wrapf(err, "failed to initialize ONNX environment (set %s to the onnxruntime library)",
				ONNXRuntimeLibraryEnv)
		}
	}
	ortUsers++
	return nil
}

func releaseONNXEnvironment() {
	ortMu.Lock()
	defer ortMu.Unlock()
	ortUsers--
	if ortUsers == 0 {
		if err := ort.DestroyEnvironment(); err != nil {
			klog.Warningf("failed to destroy ONNX environment: %+v", err)
		}
	}
}

// ONNXPredictor runs an exported ONNX model with onnxruntime.
//
// The model is described by its Metadata: input and output shapes and names, image size, pixel range and layout.
// It holds one input and one output tensor, so Predict calls are serialized.
type ONNXPredictor struct {
	metadata   Metadata
	pixelRange imageprep.PixelRange
	layout     imageprep.Layout

	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	closed       bool
}

var _ Predictor = (*ONNXPredictor)(nil)

// NewONNXPredictor loads the ONNX model in modelPath, described by md.
func NewONNXPredictor(modelPath string, md Metadata) (*ONNXPredictor, error) {
	if err := md.normalize(); err != nil {
		return nil, errors.WithMessagef(err, "invalid metadata for %q", modelPath)
	}
	p := &ONNXPredictor{metadata: md}
	p.pixelRange, _ = imageprep.ParsePixelRange(md.PixelRange)
	p.layout, _ = imageprep.ParseLayout(md.Layout)
	if err := acquireONNXEnvironment(); err != nil {
		return nil, err
	}

	var err error
	p.inputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(md.InputShape...))
	if err != nil {
		releaseONNXEnvironment()
		return nil, errors.Wrapf(err, "failed to create input tensor")
	}
	p.outputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(md.OutputShape...))
	if err != nil {
		_ = p.inputTensor.Destroy()
		releaseONNXEnvironment()
		return nil, errors.Wrapf(err, "failed to create output tensor")
	}
	p.session, err = ort.NewAdvancedSession(modelPath,
		[]string{md.InputName}, []string{md.OutputName},
		[]ort.ArbitraryTensor{p.inputTensor}, []ort.ArbitraryTensor{p.outputTensor},
		nil)
	if err != nil {
		_ = p.inputTensor.Destroy()
		_ = p.outputTensor.Destroy()
		releaseONNXEnvironment()
		return nil, errors.Wrapf(err, "failed to create ONNX session for %q", modelPath)
	}
	return p, nil
}

// Metadata used by the predictor, with defaults filled in.
func (p *ONNXPredictor) Metadata() Metadata { return p.metadata }

// ImageSize implements Predictor.
func (p *ONNXPredictor) ImageSize() int { return p.metadata.ImageSize }

// PixelRange implements Predictor.
func (p *ONNXPredictor) PixelRange() imageprep.PixelRange { return p.pixelRange }

// Predict implements Predictor.
func (p *ONNXPredictor) Predict(img *image.NRGBA) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.New("ONNX predictor is closed")
	}
	input := p.inputTensor.GetData()
	if want := img.Rect.Dx() * img.Rect.Dy() * imageprep.NumChannels; want != len(input) {
		return nil, errors.Errorf("image %dx%d has %d values, model input %v takes %d",
			img.Rect.Dx(), img.Rect.Dy(), want, p.metadata.InputShape, len(input))
	}
	imageprep.PixelsInto(img, p.pixelRange, p.layout, input)
	if err := p.session.Run(); err != nil {
		return nil, errors.Wrapf(err, "inference failed")
	}
	probabilities := make([]float32, len(p.outputTensor.GetData()))
	copy(probabilities, p.outputTensor.GetData())
	if p.metadata.OutputsLogits {
		softmax(probabilities)
	}
	return probabilities, nil
}

// Close implements Predictor.
func (p *ONNXPredictor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	err := p.session.Destroy()
	_ = p.inputTensor.Destroy()
	_ = p.outputTensor.Destroy()
	releaseONNXEnvironment()
	return errors.Wrapf(err, "failed to destroy ONNX session")
}

// softmax in place.
func softmax(values []float32) {
	if len(values) == 0 {
		return
	}
	maxValue := values[0]
	for _, v := range values[1:] {
		maxValue = max(maxValue, v)
	}
	var sum float64
	for ii, v := range values {
		e := math.Exp(float64(v - maxValue))
		values[ii] = float32(e)
		sum += e
	}
	for ii := range values {
		values[ii] = float32(float64(values[ii]) / sum)
	}
}
