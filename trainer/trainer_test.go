// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package trainer

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/default"
	"github.com/gomlx/trafficlight/classifier"
	"github.com/gomlx/trafficlight/labels"
	"github.com/gomlx/trafficlight/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var classColors = map[string]color.NRGBA{
	"empty road":    {R: 0, G: 200, B: 0, A: 255},
	"heavy traffic": {R: 200, G: 0, B: 0, A: 255},
}

// createColorDataset writes numPerClass uniformly colored (with some noise) images per class.
func createColorDataset(t *testing.T, numPerClass int) string {
	dir := t.TempDir()
	for class, c := range classColors {
		classDir := filepath.Join(dir, class)
		require.NoError(t, os.MkdirAll(classDir, 0755))
		for ii := range numPerClass {
			img := image.NewNRGBA(image.Rect(0, 0, 20, 20))
			for y := range 20 {
				for x := range 20 {
					noise := uint8((x*7 + y*13 + ii*31) % 40)
					img.SetNRGBA(x, y, color.NRGBA{R: c.R + noise, G: c.G + noise, B: c.B + noise, A: 255})
				}
			}
			f, err := os.Create(filepath.Join(classDir, string(rune('a'+ii))+".png"))
			require.NoError(t, err)
			require.NoError(t, png.Encode(f, img))
			require.NoError(t, f.Close())
		}
	}
	return dir
}

func TestTrain(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping training test in short mode.")
	}
	dataDir := createColorDataset(t, 10)
	outputDir := t.TempDir()

	ctx := model.CreateDefaultContext()
	ctx.SetParams(map[string]any{
		model.ParamImageSize:     16,
		model.ParamCNNChannels:   []int{4},
		model.ParamDenseUnits:    8,
		model.ParamBatchSize:     4,
		model.ParamEvalBatchSize: 8,
		model.ParamNumEpochs:     3,
	})
	result, err := Train(ctx, Config{
		DataDir:   dataDir,
		OutputDir: outputDir,
		Plot:      true,
		Verbosity: -1,
		Backend:   backends.MustNew(),
	})
	require.NoError(t, err)

	// Held-out split: 20% of each class.
	assert.Equal(t, 16, result.NumTrain)
	assert.Equal(t, 4, result.NumValidation)
	assert.Equal(t, []string{"empty road", "heavy traffic"}, result.Labels)
	assert.Equal(t, 3*4, result.GlobalStep) // 16 images / batch of 4 = 4 steps per epoch.
	require.Len(t, result.History, 3)
	assert.Equal(t, 3, result.History[2].Epoch)
	assert.GreaterOrEqual(t, result.Validation.Accuracy, 0.0)
	assert.LessOrEqual(t, result.Validation.Accuracy, 1.0)

	// Artifacts.
	gotLabels, err := labels.Read(filepath.Join(outputDir, labels.DefaultFileName))
	require.NoError(t, err)
	assert.Equal(t, result.Labels, gotLabels)
	assert.FileExists(t, result.CurvePath)
	md, err := classifier.ReadMetadata(result.MetadataPath)
	require.NoError(t, err)
	assert.Equal(t, 16, md.ImageSize)
	assert.Equal(t, result.RunID, md.RunID)
	assert.Equal(t, "unit", md.PixelRange)

	// The checkpoint can be used by the classifier.
	c, err := classifier.Open(result.CheckpointDir, "")
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Close()) }()
	img := image.NewNRGBA(image.Rect(0, 0, 32, 24))
	for y := range 24 {
		for x := range 32 {
			img.SetNRGBA(x, y, classColors["empty road"])
		}
	}
	prediction, err := c.Classify(img)
	require.NoError(t, err)
	assert.True(t, prediction.Detected)
	assert.Len(t, prediction.Probabilities, 2)
	var sum float32
	for _, p := range prediction.Probabilities {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-4)
}

func TestTrainErrors(t *testing.T) {
	ctx := model.CreateDefaultContext()
	_, err := Train(ctx, Config{DataDir: "", OutputDir: t.TempDir()})
	require.Error(t, err)

	// Image too small for the convolution stages.
	ctx.SetParam(model.ParamImageSize, 8)
	_, err = Train(ctx, Config{DataDir: createColorDataset(t, 5), OutputDir: t.TempDir(), Verbosity: -1})
	require.ErrorContains(t, err, "too small")
}

func TestReportsAndPlot(t *testing.T) {
	result := &Result{
		RunID:         "test-run",
		NumValidation: 4,
		Validation:    Evaluation{Loss: 0.5, Accuracy: 0.75},
		History: []EpochRecord{
			{Epoch: 1, Step: 4, TrainLoss: 0.9, TrainAccuracy: 0.5, Validation: Evaluation{Loss: 0.8, Accuracy: 0.5}},
			{Epoch: 2, Step: 8, TrainLoss: 0.6, TrainAccuracy: 0.7, Validation: Evaluation{Loss: 0.5, Accuracy: 0.75}},
		},
	}
	report := EvaluationReport(result)
	assert.Contains(t, report, "test-run")
	assert.Contains(t, report, "75.00%")
	assert.Contains(t, report, "0.5000")

	path := filepath.Join(t.TempDir(), CurveFileName)
	require.NoError(t, PlotHistory(result.History, path))
	assert.FileExists(t, path)
}
