// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package trainer

import (
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// PlotHistory saves a PNG with the accuracy curves (train and validation) per epoch to path.
func PlotHistory(history []EpochRecord, path string) error {
	p := plot.New()
	p.Title.Text = "Training curve"
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "accuracy"
	p.Y.Min = 0
	p.Y.Max = 1.05

	trainPoints := make(plotter.XYs, 0, len(history))
	validationPoints := make(plotter.XYs, 0, len(history))
	for _, record := range history {
		if record.TrainAccuracy >= 0 {
			trainPoints = append(trainPoints, plotter.XY{X: float64(record.Epoch), Y: record.TrainAccuracy})
		}
		if record.Validation.Accuracy >= 0 {
			validationPoints = append(validationPoints, plotter.XY{X: float64(record.Epoch), Y: record.Validation.Accuracy})
		}
	}
	err := plotutil.AddLinePoints(p,
		"train", trainPoints,
		"validation", validationPoints)
	if err != nil {
		return errors.Wrapf(err, "failed to plot training curve")
	}
	p.Legend.Top = false
	if err = p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "failed to save training curve to %q", path)
	}
	return nil
}
