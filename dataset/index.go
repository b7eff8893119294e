// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gomlx/trafficlight/labels"
	"github.com/pkg/errors"
)

// ImageExtensions are the file extensions (lower case) recognized as images when scanning a dataset directory.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp"}

// Example is one image file of the dataset.
type Example struct {
	// Path to the image file.
	Path string

	// Class is the index of the class in Index.Classes.
	Class int
}

// Index lists the image files of a dataset organized as one subdirectory per class, without loading them.
type Index struct {
	// Root directory of the dataset.
	Root string

	// Classes are the names of the subdirectories of Root, sorted.
	// The position of a class in this list is its class index, and also the model output unit it maps to.
	Classes []string

	// Examples ordered by class and then by file name.
	Examples []Example
}

// Scan the directory root, whose immediate subdirectories are the classes (named after the directory) holding
// the image files of each class.
//
// Hidden files and directories (starting with ".") are ignored, as are files without an image extension.
// It returns an error if there are no classes, or if any class has no images.
func Scan(root string) (*Index, error) {
	classes, err := labels.FromDirectory(root)
	if err != nil {
		return nil, err
	}
	idx := &Index{Root: root, Classes: classes}
	for classIdx, class := range idx.Classes {
		classDir := filepath.Join(root, class)
		files, err := os.ReadDir(classDir)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read class directory %q", classDir)
		}
		count := 0
		for _, file := range files {
			if file.IsDir() || strings.HasPrefix(file.Name(), ".") || !IsImageFile(file.Name()) {
				continue
			}
			idx.Examples = append(idx.Examples, Example{Path: filepath.Join(classDir, file.Name()), Class: classIdx})
			count++
		}
		if count == 0 {
			return nil, errors.Errorf("class %q (directory %q) has no images", class, classDir)
		}
	}
	return idx, nil
}

// IsImageFile returns whether the file name has one of the ImageExtensions.
func IsImageFile(name string) bool {
	return slices.Contains(ImageExtensions, strings.ToLower(filepath.Ext(name)))
}

// NumClasses in the dataset.
func (idx *Index) NumClasses() int { return len(idx.Classes) }

// Len returns the number of examples.
func (idx *Index) Len() int { return len(idx.Examples) }

// CountsPerClass returns the number of examples of each class.
func (idx *Index) CountsPerClass() []int {
	counts := make([]int, len(idx.Classes))
	for _, example := range idx.Examples {
		counts[example.Class]++
	}
	return counts
}

// AlignClasses returns an error if other doesn't have exactly the same classes as idx.
// It's used when the validation data comes from a separate directory.
func (idx *Index) AlignClasses(other *Index) error {
	if !slices.Equal(idx.Classes, other.Classes) {
		return errors.Errorf("dataset %q has classes %q, but dataset %q has classes %q",
			idx.Root, idx.Classes, other.Root, other.Classes)
	}
	return nil
}

// Split the examples into a training and a held-out validation index.
//
// The selection is deterministic on the seed and on each file path, so the same file always goes to the same
// side across runs. For each class about validationFraction of its examples are held out, but at least one when
// the class has two or more examples, and never all of them.
func (idx *Index) Split(validationFraction float64, seed int32) (train, validation *Index) {
	train = &Index{Root: idx.Root, Classes: idx.Classes}
	validation = &Index{Root: idx.Root, Classes: idx.Classes}

	byClass := make([][]Example, len(idx.Classes))
	for _, example := range idx.Examples {
		byClass[example.Class] = append(byClass[example.Class], example)
	}
	for _, examples := range byClass {
		n := len(examples)
		numValidation := 0
		if validationFraction > 0 && n >= 2 {
			numValidation = int(math.Round(validationFraction * float64(n)))
			numValidation = max(1, min(numValidation, n-1))
		}
		hashes := make(map[string]uint32, n)
		for _, example := range examples {
			hashes[example.Path] = splitHash(seed, idx.relativePath(example.Path))
		}
		byHash := slices.Clone(examples)
		slices.SortStableFunc(byHash, func(a, b Example) int {
			ha, hb := hashes[a.Path], hashes[b.Path]
			switch {
			case ha < hb:
				return -1
			case ha > hb:
				return 1
			}
			return strings.Compare(a.Path, b.Path)
		})
		heldOut := make(map[string]bool, numValidation)
		for _, example := range byHash[:numValidation] {
			heldOut[example.Path] = true
		}
		// Keep the original (file name) order within each side.
		for _, example := range examples {
			if heldOut[example.Path] {
				validation.Examples = append(validation.Examples, example)
			} else {
				train.Examples = append(train.Examples, example)
			}
		}
	}
	return
}

func (idx *Index) relativePath(path string) string {
	rel, err := filepath.Rel(idx.Root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// splitHash is a stable hash of the seed and the path.
func splitHash(seed int32, path string) uint32 {
	var buffer bytes.Buffer
	_ = binary.Write(&buffer, binary.LittleEndian, seed)
	buffer.WriteString(path)
	return crc32.ChecksumIEEE(buffer.Bytes())
}
