// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package model

import (
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/train/optimizers"
)

// Hyperparameters names, set in the context with CreateDefaultContext.
const (
	// ParamImageSize is the side of the square images the model takes as input.
	ParamImageSize = "image_size"

	// ParamNumClasses is the number of model outputs, one per label. It's set by the trainer from the dataset.
	ParamNumClasses = "num_classes"

	// ParamPixelRange is the range pixel values are mapped to before being fed to the model: "unit" or "symmetric".
	// See imageprep.ParsePixelRange.
	ParamPixelRange = "pixel_range"

	// ParamCNNChannels is the number of channels of each convolution stage. Each stage is followed by a 2x2 max-pool.
	ParamCNNChannels = "cnn_channels"

	// ParamCNNKernelSize is the side of the square convolution kernels.
	ParamCNNKernelSize = "cnn_kernel_size"

	// ParamDenseUnits is the size of the hidden dense layer between the convolutions and the readout.
	ParamDenseUnits = "dense_units"

	// ParamBatchSize used for training.
	ParamBatchSize = "batch_size"

	// ParamEvalBatchSize used for evaluation, it can be larger than training.
	ParamEvalBatchSize = "eval_batch_size"

	// ParamNumEpochs is the number of full passes over the training data.
	ParamNumEpochs = "num_epochs"

	// ParamValidationFraction of each class held out for validation, when no separate validation directory is given.
	ParamValidationFraction = "validation_fraction"

	// ParamSplitSeed seeds the train/validation split and the shuffling of the training data.
	ParamSplitSeed = "split_seed"

	// ParamNumCheckpoints to keep in the checkpoint directory.
	ParamNumCheckpoints = "num_checkpoints"
)

// ParamsExcludedFromSaving is the list of parameters (see CreateDefaultContext) that shouldn't be saved
// along on the models checkpoints, and may be overwritten in further training sessions.
var ParamsExcludedFromSaving = []string{ParamNumEpochs, ParamNumCheckpoints}

// CreateDefaultContext sets the context with the default hyperparameters of the traffic condition classifier.
func CreateDefaultContext() *context.Context {
	ctx := context.New()
	ctx.RngStateReset()
	ctx.SetParams(map[string]any{
		ParamImageSize:   224,
		ParamNumClasses:  0, // Set from the dataset.
		ParamPixelRange:  "unit",
		ParamNumEpochs:   10,
		ParamBatchSize:   32,
		ParamSplitSeed:   42,

		// eval_batch_size can be larger than training, it's more efficient.
		ParamEvalBatchSize: 64,

		// Fraction of each class held out for validation.
		ParamValidationFraction: 0.2,

		ParamNumCheckpoints: 3,

		// CNN: convolution stages of increasing width, then one hidden dense layer.
		ParamCNNChannels:   []int{32, 64, 128, 128},
		ParamCNNKernelSize: 3,
		ParamDenseUnits:    512,

		optimizers.ParamOptimizer:    "adam",
		optimizers.ParamLearningRate: 1e-3,
	})
	return ctx
}
