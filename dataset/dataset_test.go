// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestDataset creates a dataset directory with the given number of solid color images per class.
func createTestDataset(t *testing.T, counts map[string]int) string {
	root := t.TempDir()
	shade := uint8(10)
	for class, count := range counts {
		dir := filepath.Join(root, class)
		require.NoError(t, os.MkdirAll(dir, 0755))
		for ii := range count {
			img := image.NewRGBA(image.Rect(0, 0, 12, 8))
			for y := range 8 {
				for x := range 12 {
					img.Set(x, y, color.RGBA{R: shade, G: uint8(ii), B: 200, A: 255})
				}
			}
			f, err := os.Create(filepath.Join(dir, "img_"+string(rune('a'+ii))+".png"))
			require.NoError(t, err)
			require.NoError(t, png.Encode(f, img))
			require.NoError(t, f.Close())
		}
		shade += 40
	}
	return root
}

func TestScan(t *testing.T) {
	root := createTestDataset(t, map[string]int{"normal traffic": 3, "empty road": 2, "heavy traffic": 4})
	require.NoError(t, os.WriteFile(filepath.Join(root, "empty road", "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".cache"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("x"), 0644))

	idx, err := Scan(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"empty road", "heavy traffic", "normal traffic"}, idx.Classes)
	assert.Equal(t, 3, idx.NumClasses())
	assert.Equal(t, 9, idx.Len())
	assert.Equal(t, []int{2, 4, 3}, idx.CountsPerClass())

	// Class without images.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "zebra crossing"), 0755))
	_, err = Scan(root)
	require.Error(t, err)

	_, err = Scan(t.TempDir())
	require.Error(t, err)
	_, err = Scan(filepath.Join(root, "missing"))
	require.Error(t, err)

	assert.True(t, IsImageFile("a.JPG"))
	assert.False(t, IsImageFile("a.txt"))
}

func TestSplit(t *testing.T) {
	root := createTestDataset(t, map[string]int{"a": 10, "b": 2, "c": 1})
	idx, err := Scan(root)
	require.NoError(t, err)

	train, validation := idx.Split(0.2, 42)
	assert.Equal(t, idx.Classes, train.Classes)
	assert.Equal(t, []int{8, 1, 1}, train.CountsPerClass())
	assert.Equal(t, []int{2, 1, 0}, validation.CountsPerClass())

	// Disjoint, and together they have all examples.
	var all []string
	for _, example := range append(slices.Clone(train.Examples), validation.Examples...) {
		all = append(all, example.Path)
	}
	slices.Sort(all)
	assert.Len(t, slices.Compact(all), idx.Len())

	// Deterministic.
	train2, validation2 := idx.Split(0.2, 42)
	assert.Equal(t, train.Examples, train2.Examples)
	assert.Equal(t, validation.Examples, validation2.Examples)

	// No validation.
	train, validation = idx.Split(0, 42)
	assert.Equal(t, idx.Len(), train.Len())
	assert.Equal(t, 0, validation.Len())

	other := &Index{Root: "other", Classes: []string{"a", "b"}}
	require.Error(t, idx.AlignClasses(other))
	require.NoError(t, idx.AlignClasses(train))
}

func TestLoad(t *testing.T) {
	root := createTestDataset(t, map[string]int{"a": 3, "b": 2})
	require.NoError(t, os.WriteFile(filepath.Join(root, "b", "broken.png"), []byte("not a png"), 0644))
	idx, err := Scan(root)
	require.NoError(t, err)
	require.Equal(t, 6, idx.Len())

	images, err := Load(idx, LoadConfig{Size: 4, Parallelism: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, images.Len())
	assert.Len(t, images.Skipped, 1)
	assert.Equal(t, []int{0, 0, 0, 1, 1}, images.Labels)
	for _, img := range images.Images {
		assert.Equal(t, image.Rect(0, 0, 4, 4), img.Bounds())
	}
	assert.Equal(t, uint64(5*4*4*4), images.MemoryBytes())

	_, err = Load(idx, LoadConfig{Size: 0})
	require.Error(t, err)
}

func TestDatasetYield(t *testing.T) {
	root := createTestDataset(t, map[string]int{"a": 3, "b": 2})
	idx, err := Scan(root)
	require.NoError(t, err)
	images, err := Load(idx, LoadConfig{Size: 4})
	require.NoError(t, err)

	ds := New("test", images, 2).Shuffle(7)
	assert.Equal(t, "test", ds.Name())
	for range 2 { // Two epochs.
		var seen []int64
		var batchSizes []int
		for {
			_, inputs, labels, err := ds.Yield()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			require.Len(t, inputs, 1)
			require.Len(t, labels, 1)
			dims := inputs[0].Shape().Dimensions
			batchSizes = append(batchSizes, dims[0])
			assert.Equal(t, []int{dims[0], 4, 4, 3}, dims)
			assert.Equal(t, []int{dims[0], 1}, labels[0].Shape().Dimensions)
			for _, row := range labels[0].Value().([][]int64) {
				seen = append(seen, row[0])
			}
			pixels := inputs[0].Value().([][][][]float32)
			for _, v := range pixels[0][0][0] {
				assert.True(t, v >= 0 && v <= 1)
			}
		}
		assert.Equal(t, []int{2, 2, 1}, batchSizes)
		slices.Sort(seen)
		assert.Equal(t, []int64{0, 0, 0, 1, 1}, seen)
		ds.Reset()
	}

	// Drop incomplete batch.
	ds = New("drop", images, 2).DropIncompleteBatch(true)
	count := 0
	for {
		_, _, _, err := ds.Yield()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 2, count)

	// Infinite never ends.
	ds = New("infinite", images, 3).Infinite(true)
	for range 10 {
		_, _, _, err := ds.Yield()
		require.NoError(t, err)
	}

	// Invalid batch size.
	_, _, _, err = New("invalid", images, 0).Yield()
	require.Error(t, err)
}
