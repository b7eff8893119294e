// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package trainer

import (
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/ml/train/metrics"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/pkg/errors"
)

// metricValue returns the value of the metric whose short name is one of the given names, or whose short name
// ends with suffix. It returns -1 if no metric matches.
func metricValue(metricsObjs []metrics.Interface, values []*tensors.Tensor, names []string, suffix string) float64 {
	for _, name := range names {
		for ii, m := range metricsObjs {
			if ii < len(values) && m.ShortName() == name {
				return shapes.ConvertTo[float64](values[ii].Value())
			}
		}
	}
	for ii, m := range metricsObjs {
		if ii < len(values) && strings.HasSuffix(m.ShortName(), suffix) {
			return shapes.ConvertTo[float64](values[ii].Value())
		}
	}
	return -1
}

// trainLossAndAccuracy extracts the moving averages of loss and accuracy from the training step metrics.
func trainLossAndAccuracy(trainer *train.Trainer, values []*tensors.Tensor) (loss, accuracy float64) {
	trainMetrics := trainer.TrainMetrics()
	loss = metricValue(trainMetrics, values, []string{"~loss", "loss"}, "loss")
	accuracy = metricValue(trainMetrics, values, []string{"~acc"}, "acc")
	return
}

// evaluate the model over the dataset, returning the mean loss and accuracy.
func evaluate(trainer *train.Trainer, ds train.Dataset) (Evaluation, error) {
	ds.Reset()
	var values []*tensors.Tensor
	err := exceptions.TryCatch[error](func() { values = trainer.Eval(ds) })
	ds.Reset()
	if err != nil {
		return Evaluation{}, errors.WithMessagef(err, "failed to evaluate on %q", ds.Name())
	}
	evalMetrics := trainer.EvalMetrics()
	return Evaluation{
		Loss:     metricValue(evalMetrics, values, []string{"#loss"}, "loss"),
		Accuracy: metricValue(evalMetrics, values, []string{"#acc"}, "acc"),
	}, nil
}
