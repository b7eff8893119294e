// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package classifier

import (
	"image"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/checkpoints"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/trafficlight/internal/imageprep"
	"github.com/gomlx/trafficlight/model"
	"github.com/pkg/errors"
)

// CheckpointPredictor runs a model trained by the trainer package, loaded from its checkpoint directory.
// It will use XLA with GPU if available or CPU by default. But the backend can be configured with GOMLX_BACKEND.
type CheckpointPredictor struct {
	// backend is created with defaults, which uses GOMLX_BACKEND if it is set.
	backend backends.Backend

	// ctx with the model's weights.
	ctx *context.Context

	// exec is used to execute the model with a context.
	exec *context.Exec

	imageSize  int
	numClasses int
	pixelRange imageprep.PixelRange

	closeOnce sync.Once
}

var _ Predictor = (*CheckpointPredictor)(nil)

// NewCheckpointPredictor loads the model checkpoint in checkpointDir.
//
// Notice all hyperparameters are read from the checkpoint as well, so it will build the same model
// that was trained.
func NewCheckpointPredictor(checkpointDir string) (*CheckpointPredictor, error) {
	backend, err := backends.New()
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create backend for model in %q", checkpointDir)
	}
	return NewCheckpointPredictorWithBackend(backend, checkpointDir)
}

// NewCheckpointPredictorWithBackend is like NewCheckpointPredictor, but uses the given backend.
func NewCheckpointPredictorWithBackend(backend backends.Backend, checkpointDir string) (*CheckpointPredictor, error) {
	p := &CheckpointPredictor{
		backend: backend,
		ctx:     context.New(),
	}

	// We don't need to keep the checkpoint handler around, since we are not going to use it to save.
	_, err := checkpoints.Load(p.ctx).Dir(checkpointDir).Done()
	if err != nil {
		return nil, errors.WithMessagef(err, "failed while loading model from %q", checkpointDir)
	}
	p.ctx = p.ctx.Reuse() // Mark it to reuse variables: it will be an error to create a new variable.

	p.imageSize = context.GetParamOr(p.ctx, model.ParamImageSize, 0)
	p.numClasses = context.GetParamOr(p.ctx, model.ParamNumClasses, 0)
	if p.imageSize <= 0 || p.numClasses <= 0 {
		return nil, errors.Errorf("checkpoint in %q has invalid %s=%d or %s=%d", checkpointDir,
			model.ParamImageSize, p.imageSize, model.ParamNumClasses, p.numClasses)
	}
	p.pixelRange, err = imageprep.ParsePixelRange(context.GetParamOr(p.ctx, model.ParamPixelRange, "unit"))
	if err != nil {
		return nil, errors.WithMessagef(err, "checkpoint in %q", checkpointDir)
	}

	p.exec = context.NewExec(p.backend, p.ctx.In("model"), func(ctx *context.Context, image *graph.Node) *graph.Node {
		image = graph.ExpandAxes(image, 0) // Create a batch dimension of size 1.
		probabilities := model.ProbabilitiesGraph(ctx, image)
		return graph.Reshape(probabilities, -1) // Remove batch dimension.
	})
	return p, nil
}

// ImageSize implements Predictor.
func (p *CheckpointPredictor) ImageSize() int { return p.imageSize }

// PixelRange implements Predictor.
func (p *CheckpointPredictor) PixelRange() imageprep.PixelRange { return p.pixelRange }

// NumClasses the model was trained with.
func (p *CheckpointPredictor) NumClasses() int { return p.numClasses }

// Predict implements Predictor.
func (p *CheckpointPredictor) Predict(img *image.NRGBA) ([]float32, error) {
	if img.Rect.Dx() != p.imageSize || img.Rect.Dy() != p.imageSize {
		return nil, errors.Errorf("image is %dx%d, model takes %dx%d", img.Rect.Dx(), img.Rect.Dy(),
			p.imageSize, p.imageSize)
	}
	pixels := imageprep.Pixels(img, p.pixelRange, imageprep.HWC)
	input := tensors.FromFlatDataAndDimensions(pixels, p.imageSize, p.imageSize, imageprep.NumChannels)
	var outputs []*tensors.Tensor
	err := exceptions.TryCatch[error](func() { outputs = p.exec.Call(input) })
	if err != nil {
		return nil, errors.WithMessage(err, "failed to execute model")
	}
	output := outputs[0]
	if output.DType() != dtypes.Float32 {
		return nil, errors.Errorf("model output has dtype %s, expected %s", output.DType(), dtypes.Float32)
	}
	probabilities := output.Value().([]float32)
	return probabilities, nil
}

// Close implements Predictor.
func (p *CheckpointPredictor) Close() error {
	p.closeOnce.Do(func() {
		p.exec.Finalize()
	})
	return nil
}
