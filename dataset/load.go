// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"runtime"
	"sync"

	"github.com/gomlx/trafficlight/internal/imageprep"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Images holds the examples of an Index decoded and resized to a fixed square size, ready to be batched.
type Images struct {
	// Index the images were loaded from. Examples that failed to load are not in Images.
	Index *Index

	// Size of the side of the square images.
	Size int

	// Images resized to Size x Size, and their class indices.
	Images []*image.NRGBA
	Labels []int

	// Skipped lists the files that could not be decoded.
	Skipped []string
}

// LoadConfig configures Load.
type LoadConfig struct {
	// Size of the side of the square the images are fitted to.
	Size int

	// Parallelism is the number of images decoded concurrently. If <= 0 it uses runtime.NumCPU().
	Parallelism int

	// ShowProgress displays a progress bar on the terminal.
	ShowProgress bool
}

// GetImageFromFilePath decodes the image file in path.
func GetImageFromFilePath(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode image %q", path)
	}
	return img, nil
}

// Load decodes every image listed in idx and fits it to config.Size.
//
// Files that can't be decoded are logged and listed in Images.Skipped, the rest of the dataset is still used.
// It returns an error only if no image of some class could be loaded.
func Load(idx *Index, config LoadConfig) (*Images, error) {
	if config.Size <= 0 {
		return nil, errors.Errorf("invalid image size %d", config.Size)
	}
	parallelism := config.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}

	var bar *progressbar.ProgressBar
	if config.ShowProgress {
		bar = progressbar.Default(int64(idx.Len()), "loading images")
	}

	fitted := make([]*image.NRGBA, idx.Len())
	var muSkipped sync.Mutex
	var skipped []string
	var group errgroup.Group
	group.SetLimit(parallelism)
	for exampleIdx, example := range idx.Examples {
		group.Go(func() error {
			if bar != nil {
				defer func() { _ = bar.Add(1) }()
			}
			img, err := GetImageFromFilePath(example.Path)
			if err != nil {
				klog.Warningf("Skipping image: %v", err)
				muSkipped.Lock()
				skipped = append(skipped, example.Path)
				muSkipped.Unlock()
				return nil
			}
			fitted[exampleIdx] = imageprep.Fit(img, config.Size)
			return nil
		})
	}
	_ = group.Wait()
	if bar != nil {
		_ = bar.Finish()
	}

	images := &Images{
		Index:   &Index{Root: idx.Root, Classes: idx.Classes},
		Size:    config.Size,
		Images:  make([]*image.NRGBA, 0, idx.Len()),
		Labels:  make([]int, 0, idx.Len()),
		Skipped: skipped,
	}
	for exampleIdx, img := range fitted {
		if img == nil {
			continue
		}
		example := idx.Examples[exampleIdx]
		images.Index.Examples = append(images.Index.Examples, example)
		images.Images = append(images.Images, img)
		images.Labels = append(images.Labels, example.Class)
	}
	originalCounts := idx.CountsPerClass()
	for classIdx, count := range images.Index.CountsPerClass() {
		if count == 0 && originalCounts[classIdx] > 0 {
			return nil, errors.Errorf("none of the images of class %q could be loaded", idx.Classes[classIdx])
		}
	}
	return images, nil
}

// Len returns the number of loaded images.
func (images *Images) Len() int { return len(images.Images) }

// MemoryBytes is the approximate memory used by the loaded images.
func (images *Images) MemoryBytes() uint64 {
	return uint64(images.Len()) * uint64(images.Size*images.Size*4)
}
