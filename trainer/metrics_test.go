// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package trainer

import (
	"testing"

	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/simplego"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/ml/train/losses"
	"github.com/gomlx/gomlx/ml/train/metrics"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/trafficlight/dataset"
	"github.com/gomlx/trafficlight/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricValue(t *testing.T) {
	metricsObjs := []metrics.Interface{
		metrics.NewMovingAverageSparseCategoricalAccuracy("Moving Average Accuracy", "~acc", 0.01),
		metrics.NewSparseCategoricalAccuracy("Mean Accuracy", "#acc"),
	}
	values := []*tensors.Tensor{tensors.FromValue(float32(0.25)), tensors.FromValue(float32(0.75))}

	assert.InDelta(t, 0.75, metricValue(metricsObjs, values, []string{"#acc"}, "acc"), 1e-6)
	assert.InDelta(t, 0.25, metricValue(metricsObjs, values, []string{"~acc"}, "acc"), 1e-6)
	// Falls back to the first metric with the suffix.
	assert.InDelta(t, 0.25, metricValue(metricsObjs, values, []string{"missing"}, "acc"), 1e-6)
	assert.Equal(t, -1.0, metricValue(metricsObjs, values, []string{"#loss"}, "loss"))
	// Metrics without a value are ignored.
	assert.Equal(t, -1.0, metricValue(metricsObjs, values[:1], []string{"#acc"}, "missing"))
}

// denseModelGraph is a linear classifier over the flattened pixels: it only needs ops every backend implements.
func denseModelGraph(ctx *context.Context, spec any, inputs []*Node) []*Node {
	_ = spec
	images := inputs[0]
	flat := Reshape(images, images.Shape().Dimensions[0], -1)
	return []*Node{layers.DenseWithBias(ctx.In("readout"), flat, len(classColors))}
}

// brokenDataset fails on the first Yield.
type brokenDataset struct{}

func (brokenDataset) Name() string { return "broken" }
func (brokenDataset) Reset()       {}
func (brokenDataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	return nil, nil, nil, errors.New("disk on fire")
}

func TestEvaluate(t *testing.T) {
	backend, err := backends.NewWithConfig("go")
	require.NoError(t, err)

	idx, err := dataset.Scan(createColorDataset(t, 3))
	require.NoError(t, err)
	images, err := dataset.Load(idx, dataset.LoadConfig{Size: 4})
	require.NoError(t, err)
	require.Equal(t, 6, images.Len())
	ds := dataset.New("Eval", images, 4)

	ctx := model.CreateDefaultContext().In("model")
	trainer := train.NewTrainer(backend, ctx, denseModelGraph,
		losses.SparseCategoricalCrossEntropyLogits,
		optimizers.FromContext(ctx),
		[]metrics.Interface{metrics.NewMovingAverageSparseCategoricalAccuracy("Moving Average Accuracy", "~acc", 0.01)},
		[]metrics.Interface{metrics.NewSparseCategoricalAccuracy("Mean Accuracy", "#acc")})

	evaluation, err := evaluate(trainer, ds)
	require.NoError(t, err)
	assert.Greater(t, evaluation.Loss, 0.0)
	assert.GreaterOrEqual(t, evaluation.Accuracy, 0.0)
	assert.LessOrEqual(t, evaluation.Accuracy, 1.0)

	// The values come from the "#loss" and "#acc" evaluation metrics.
	evalMetrics := trainer.EvalMetrics()
	shortNames := make([]string, len(evalMetrics))
	for ii, m := range evalMetrics {
		shortNames[ii] = m.ShortName()
	}
	require.Contains(t, shortNames, "#loss")
	require.Contains(t, shortNames, "#acc")
	ds.Reset()
	values := trainer.Eval(ds)
	for ii, m := range evalMetrics {
		value := values[ii].Value()
		switch m.ShortName() {
		case "#loss":
			assert.InDelta(t, toFloat64(value), evaluation.Loss, 1e-5)
		case "#acc":
			assert.InDelta(t, toFloat64(value), evaluation.Accuracy, 1e-5)
		}
	}

	// Dataset errors are returned, not panicked.
	_, err = evaluate(trainer, brokenDataset{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Contains(t, err.Error(), "disk on fire")
}

func toFloat64(value any) float64 {
	switch v := value.(type) {
	case float32:
		return float64(v)
	case float64:
		return v
	}
	return -1
}
