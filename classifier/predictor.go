// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package classifier

import (
	"image"

	"github.com/gomlx/trafficlight/internal/imageprep"
)

// Predictor runs a model on one image and returns the probability of each class.
//
// Implementations: CheckpointPredictor (models trained with trafficlight_train) and ONNXPredictor (exported models).
type Predictor interface {
	// ImageSize is the side of the square images the model takes.
	ImageSize() int

	// PixelRange the model expects pixel values to be mapped to.
	PixelRange() imageprep.PixelRange

	// Predict returns one probability per class, for an image already fitted to ImageSize x ImageSize.
	Predict(img *image.NRGBA) ([]float32, error)

	// Close frees the resources associated with the model.
	Close() error
}
