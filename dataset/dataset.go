// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dataset reads image classification datasets organized as one directory per class, and feeds them
// to a gomlx training loop.
//
// The usual flow is:
//
//	idx := must.M1(dataset.Scan(dataDir))
//	trainIdx, validationIdx := idx.Split(0.2, seed)
//	trainImages := must.M1(dataset.Load(trainIdx, dataset.LoadConfig{Size: 224}))
//	trainDS := dataset.New("train", trainImages, batchSize).Shuffle(seed)
//	loop.RunEpochs(trainDS, numEpochs)
package dataset

import (
	"io"
	"math/rand"
	"sync"

	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/trafficlight/internal/imageprep"
	"github.com/pkg/errors"
)

// Dataset implements train.Dataset over loaded images.
//
// Each Yield returns one batch:
//
//   - inputs: one tensor with the images, shaped [batch_size, size, size, 3], float32 values in [0, 1].
//   - labels: one tensor with the class indices, shaped [batch_size, 1], int64.
//
// Without Infinite it returns io.EOF after a full pass over the images (an epoch), and Reset starts a new one.
type Dataset struct {
	name   string
	images *Images

	batchSize           int
	infinite            bool
	dropIncompleteBatch bool
	pixelRange          imageprep.PixelRange

	// mu protects the fields below.
	mu       sync.Mutex
	shuffle  *rand.Rand
	order    []int
	position int
}

var (
	assertDatasetIsTrainDataset *Dataset
	_                           train.Dataset = assertDatasetIsTrainDataset
)

// New creates a Dataset that yields batches of batchSize images, in order.
func New(name string, images *Images, batchSize int) *Dataset {
	ds := &Dataset{
		name:       name,
		images:     images,
		batchSize:  batchSize,
		pixelRange: imageprep.Unit,
	}
	ds.Reset()
	return ds
}

// Shuffle the order of the images on each epoch, using the given seed.
// It returns itself, to allow cascading configuration calls.
func (ds *Dataset) Shuffle(seed int64) *Dataset {
	ds.mu.Lock()
	ds.shuffle = rand.New(rand.NewSource(seed))
	ds.mu.Unlock()
	ds.Reset()
	return ds
}

// Infinite makes the dataset loop over the images indefinitely, never returning io.EOF.
// It returns itself, to allow cascading configuration calls.
func (ds *Dataset) Infinite(infinite bool) *Dataset {
	ds.infinite = infinite
	return ds
}

// DropIncompleteBatch makes the dataset skip the last batch of an epoch if it has fewer than batchSize images.
// It returns itself, to allow cascading configuration calls.
func (ds *Dataset) DropIncompleteBatch(drop bool) *Dataset {
	ds.dropIncompleteBatch = drop
	return ds
}

// PixelRange the image values are mapped to. The default is imageprep.Unit.
// It returns itself, to allow cascading configuration calls.
func (ds *Dataset) PixelRange(pixelRange imageprep.PixelRange) *Dataset {
	ds.pixelRange = pixelRange
	return ds
}

// Name implements train.Dataset.
func (ds *Dataset) Name() string { return ds.name }

// BatchSize configured.
func (ds *Dataset) BatchSize() int { return ds.batchSize }

// Images returns the underlying loaded images.
func (ds *Dataset) Images() *Images { return ds.images }

// Reset implements train.Dataset. It restarts the epoch, with a new shuffle if Shuffle is configured.
func (ds *Dataset) Reset() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.resetLocked()
}

func (ds *Dataset) resetLocked() {
	n := ds.images.Len()
	if ds.shuffle != nil {
		ds.order = ds.shuffle.Perm(n)
	} else {
		ds.order = make([]int, n)
		for ii := range ds.order {
			ds.order[ii] = ii
		}
	}
	ds.position = 0
}

// nextIndices returns the indices of the next batch, or io.EOF at the end of the epoch.
func (ds *Dataset) nextIndices() ([]int, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.batchSize <= 0 {
		return nil, errors.Errorf("dataset %q: invalid batch size %d", ds.name, ds.batchSize)
	}
	if len(ds.order) == 0 {
		return nil, errors.Errorf("dataset %q has no images", ds.name)
	}
	remaining := len(ds.order) - ds.position
	if remaining <= 0 || (ds.dropIncompleteBatch && remaining < ds.batchSize) {
		if !ds.infinite {
			return nil, io.EOF
		}
		ds.resetLocked()
		remaining = len(ds.order)
		if ds.dropIncompleteBatch && remaining < ds.batchSize {
			return nil, errors.Errorf("dataset %q has %d images, fewer than one batch of %d",
				ds.name, remaining, ds.batchSize)
		}
	}
	n := min(ds.batchSize, remaining)
	indices := ds.order[ds.position : ds.position+n]
	ds.position += n
	return indices, nil
}

// Yield implements train.Dataset.
func (ds *Dataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	var indices []int
	indices, err = ds.nextIndices()
	if err != nil {
		return
	}
	size := ds.images.Size
	exampleSize := size * size * imageprep.NumChannels
	pixels := make([]float32, len(indices)*exampleSize)
	classes := make([]int64, len(indices))
	for ii, imgIdx := range indices {
		imageprep.PixelsInto(ds.images.Images[imgIdx], ds.pixelRange, imageprep.HWC,
			pixels[ii*exampleSize:(ii+1)*exampleSize])
		classes[ii] = int64(ds.images.Labels[imgIdx])
	}
	inputs = []*tensors.Tensor{
		tensors.FromFlatDataAndDimensions(pixels, len(indices), size, size, imageprep.NumChannels),
	}
	labels = []*tensors.Tensor{tensors.FromFlatDataAndDimensions(classes, len(indices), 1)}
	return ds, inputs, labels, nil
}
