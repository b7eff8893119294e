// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package classifier

import (
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/trafficlight/internal/imageprep"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePredictor returns fixed probabilities and records the images it was given.
type fakePredictor struct {
	size          int
	probabilities []float32
	err           error
	inputs        []*image.NRGBA
	closed        bool
}

func (f *fakePredictor) ImageSize() int                   { return f.size }
func (f *fakePredictor) PixelRange() imageprep.PixelRange { return imageprep.Symmetric }
func (f *fakePredictor) Close() error                     { f.closed = true; return nil }

func (f *fakePredictor) Predict(img *image.NRGBA) ([]float32, error) {
	f.inputs = append(f.inputs, img)
	return f.probabilities, f.err
}

func uniformImage(width, height int, c color.Color) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestClassify(t *testing.T) {
	classLabels := []string{"empty road", "heavy traffic", "normal traffic"}
	fake := &fakePredictor{size: 8, probabilities: []float32{0.05, 0.92, 0.03}}
	c, err := New(fake, classLabels)
	require.NoError(t, err)

	prediction, err := c.Classify(uniformImage(40, 20, color.White))
	require.NoError(t, err)
	assert.True(t, prediction.Detected)
	assert.Equal(t, 1, prediction.Index)
	assert.Equal(t, "heavy traffic", prediction.Label)
	assert.InDelta(t, 0.92, prediction.Confidence, 1e-6)

	// Image was fitted to the model size.
	require.Len(t, fake.inputs, 1)
	assert.Equal(t, image.Rect(0, 0, 8, 8), fake.inputs[0].Rect)
	assert.Same(t, fake.inputs[0], prediction.Input)

	require.NoError(t, c.Close())
	assert.True(t, fake.closed)
}

func TestClassifyNotDetected(t *testing.T) {
	// Model with more outputs than labels: arg-max index 3 has no label.
	fake := &fakePredictor{size: 4, probabilities: []float32{0.1, 0.1, 0.1, 0.7}}
	c, err := New(fake, []string{"a", "b", "c"})
	require.NoError(t, err)
	prediction, err := c.Classify(uniformImage(4, 4, color.Black))
	require.NoError(t, err)
	assert.False(t, prediction.Detected)
	assert.Equal(t, 3, prediction.Index)
	assert.Empty(t, prediction.Label)
}

func TestClassifyErrors(t *testing.T) {
	fake := &fakePredictor{size: 4, err: errors.New("boom")}
	c, err := New(fake, []string{"a"})
	require.NoError(t, err)
	_, err = c.Classify(uniformImage(4, 4, color.Black))
	require.ErrorContains(t, err, "boom")

	_, err = c.Classify(image.NewNRGBA(image.Rect(0, 0, 0, 0)))
	require.Error(t, err)

	_, err = New(fake, nil)
	require.Error(t, err)
}

func TestDecodeTies(t *testing.T) {
	prediction := Decode([]float32{0.4, 0.4, 0.2}, []string{"x", "y", "z"})
	assert.Equal(t, 0, prediction.Index)
	assert.Equal(t, "x", prediction.Label)
}

func TestDecodeSkipsNaN(t *testing.T) {
	nan := float32(math.NaN())
	prediction := Decode([]float32{nan, 0.1, 0.2}, []string{"x", "y", "z"})
	assert.Equal(t, 2, prediction.Index)
	assert.Equal(t, "z", prediction.Label)
	assert.InDelta(t, 0.2, prediction.Confidence, 1e-6)

	prediction = Decode([]float32{nan, nan}, []string{"x", "y"})
	assert.Equal(t, -1, prediction.Index)
	assert.False(t, prediction.Detected)

	prediction = Decode(nil, []string{"x"})
	assert.False(t, prediction.Detected)
}

func TestSoftmax(t *testing.T) {
	values := []float32{1, 2, 3}
	softmax(values)
	var sum float32
	for _, v := range values {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.Less(t, values[0], values[1])
	assert.Less(t, values[1], values[2])
}

func TestMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, MetadataFileName)
	md := DefaultMetadata([]string{"a", "b"})
	md.RunID = "run"
	require.NoError(t, WriteMetadata(path, md))
	got, err := ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, md.Classes, got.Classes)
	assert.Equal(t, []int64{1, 2}, got.OutputShape)

	// Defaults filled from the input shape.
	partial := Metadata{InputShape: []int64{1, 3, 64, 64}, Layout: "CHW", Classes: []string{"a"}}
	require.NoError(t, partial.normalize())
	assert.Equal(t, 64, partial.ImageSize)
	assert.Equal(t, "input", partial.InputName)
	assert.Equal(t, []int64{1, 1}, partial.OutputShape)
	assert.Equal(t, imageprep.Symmetric.String(), partial.PixelRange)

	bad := Metadata{InputShape: []int64{4, 64, 64, 3}, Classes: []string{"a"}}
	require.Error(t, bad.normalize())
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(filepath.Join(dir, "missing"), "")
	require.Error(t, err)

	notAModel := filepath.Join(dir, "model.h5")
	require.NoError(t, os.WriteFile(notAModel, []byte("x"), 0644))
	_, err = Open(notAModel, "")
	require.ErrorContains(t, err, "neither")
}
