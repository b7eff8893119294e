// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package model defines the convolutional image classifier of traffic conditions, and its hyperparameters.
package model

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/activations"
)

// ModelGraph implements train.ModelFn and returns the logits, given the batch of images.
//
// inputs: only one tensor, with shape `[batch_size, height, width, 3]`.
//
// The model is a stack of convolution stages (configured by ParamCNNChannels), each one with a ReLU activation
// and followed by a 2x2 max-pooling, then the flattened features go through a hidden dense layer (ParamDenseUnits)
// and a dense readout with one output per class (ParamNumClasses).
//
// It returns the logits, not the probabilities, which works with most losses. See ProbabilitiesGraph.
//
// By convention the caller sets the "model" scope (ctx.In("model")), both when training and for inference.
func ModelGraph(ctx *context.Context, spec any, inputs []*Node) []*Node {
	_ = spec // Not used.
	images := inputs[0]
	images.AssertRank(4)
	batchSize := images.Shape().Dimensions[0]

	numClasses := context.GetParamOr(ctx, ParamNumClasses, 0)
	if numClasses <= 0 {
		exceptions.Panicf("hyperparameter %q must be set to the number of classes, got %d", ParamNumClasses, numClasses)
	}
	channels := context.GetParamOr(ctx, ParamCNNChannels, []int{32, 64, 128, 128})
	kernelSize := context.GetParamOr(ctx, ParamCNNKernelSize, 3)

	logits := images
	for stage, numChannels := range channels {
		ctx := ctx.Inf("%03d_conv", stage)
		if spatial := logits.Shape().Dimensions[1:3]; spatial[0] < kernelSize || spatial[1] < kernelSize {
			exceptions.Panicf("image too small for %d convolution stages: stage #%d gets a %dx%d feature map, "+
				"smaller than the %dx%d kernel", len(channels), stage, spatial[0], spatial[1], kernelSize, kernelSize)
		}
		logits = layers.Convolution(ctx, logits).Filters(numChannels).KernelSize(kernelSize).NoPadding().Done()
		logits = activations.Relu(logits)
		logits = MaxPool(logits).Window(2).Done()
	}

	// Flatten the resulting feature maps, and treat them as tabular.
	logits = Reshape(logits, batchSize, -1)
	logits = layers.DenseWithBias(ctx.In("dense"), logits, context.GetParamOr(ctx, ParamDenseUnits, 512))
	logits = activations.Relu(logits)
	logits = layers.DenseWithBias(ctx.In("readout"), logits, numClasses)
	logits.AssertDims(batchSize, numClasses)
	return []*Node{logits}
}

// ProbabilitiesGraph returns the probability of each class for each image: the softmax of ModelGraph logits.
// Each row sums to 1.
//
// images: shaped `[batch_size, height, width, 3]`. The output is shaped `[batch_size, num_classes]`.
func ProbabilitiesGraph(ctx *context.Context, images *Node) *Node {
	logits := ModelGraph(ctx, nil, []*Node{images})[0]
	return Softmax(logits, -1)
}

// FeatureMapSize returns the side of the feature map after all convolution stages, for square images of
// imageSize. It returns a value <= 0 if the image is too small for the configured stages.
func FeatureMapSize(imageSize, kernelSize, numStages int) int {
	size := imageSize
	for range numStages {
		size = size - kernelSize + 1
		if size <= 0 {
			return size
		}
		size /= 2
	}
	return size
}
