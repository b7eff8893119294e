// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package classifier

import (
	"encoding/json"
	"os"
	"time"

	"github.com/gomlx/trafficlight/internal/imageprep"
	"github.com/pkg/errors"
)

// MetadataFileName is the name of the metadata file written by the trainer next to the label file.
const MetadataFileName = "metadata.json"

// Metadata describes how to feed a model and how to interpret its outputs.
//
// The trainer writes it along the checkpoint, and the ONNX predictor requires it to learn the input
// resolution, pixel range and tensor layout of an exported model.
type Metadata struct {
	// InputShape of the model, including the batch dimension, e.g. [1, 224, 224, 3].
	InputShape []int64 `json:"input_shape"`

	// OutputShape of the model, e.g. [1, 4].
	OutputShape []int64 `json:"output_shape"`

	// Classes in the order of the model outputs.
	Classes []string `json:"classes"`

	// ImageSize is the side of the square images the model takes.
	ImageSize int `json:"image_size"`

	// PixelRange is "unit" ([0, 1]) or "symmetric" ([-1, 1]).
	PixelRange string `json:"pixel_range,omitempty"`

	// Layout is "HWC" (channels last) or "CHW" (channels first).
	Layout string `json:"layout,omitempty"`

	// InputName and OutputName of the ONNX graph nodes. Default to "input" and "output".
	InputName  string `json:"input_name,omitempty"`
	OutputName string `json:"output_name,omitempty"`

	// OutputsLogits is set if the model outputs logits, in which case a softmax is applied to get probabilities.
	OutputsLogits bool `json:"outputs_logits,omitempty"`

	// Training information, only informative.
	RunID     string             `json:"run_id,omitempty"`
	CreatedAt time.Time          `json:"created_at,omitzero"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// DefaultMetadata returns the metadata assumed for an exported Keras-like model with the given classes:
// 224x224 RGB images, channels last, pixel values in [-1, 1], probabilities as output.
func DefaultMetadata(classes []string) Metadata {
	return Metadata{
		InputShape:  []int64{1, 224, 224, imageprep.NumChannels},
		OutputShape: []int64{1, int64(len(classes))},
		Classes:     classes,
		ImageSize:   224,
		PixelRange:  imageprep.Symmetric.String(),
		Layout:      imageprep.HWC.String(),
		InputName:   "input",
		OutputName:  "output",
	}
}

// ReadMetadata from the JSON file in path.
func ReadMetadata(path string) (Metadata, error) {
	var md Metadata
	contents, err := os.ReadFile(path)
	if err != nil {
		return md, errors.Wrapf(err, "failed to read metadata")
	}
	if err = json.Unmarshal(contents, &md); err != nil {
		return md, errors.Wrapf(err, "failed to parse metadata in %q", path)
	}
	return md, nil
}

// WriteMetadata to path as indented JSON.
func WriteMetadata(path string, md Metadata) error {
	contents, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to encode metadata")
	}
	if err = os.WriteFile(path, append(contents, '\n'), 0644); err != nil {
		return errors.Wrapf(err, "failed to write metadata")
	}
	return nil
}

// normalize fills in defaults and checks consistency of the metadata.
func (md *Metadata) normalize() error {
	if md.ImageSize <= 0 {
		if len(md.InputShape) != 4 {
			return errors.Errorf("metadata has no image_size and input_shape %v is not of rank 4", md.InputShape)
		}
		md.ImageSize = int(md.InputShape[1])
		if md.Layout == imageprep.CHW.String() {
			md.ImageSize = int(md.InputShape[2])
		}
	}
	if md.PixelRange == "" {
		md.PixelRange = imageprep.Symmetric.String()
	}
	if md.Layout == "" {
		md.Layout = imageprep.HWC.String()
	}
	if md.InputName == "" {
		md.InputName = "input"
	}
	if md.OutputName == "" {
		md.OutputName = "output"
	}
	layout, err := imageprep.ParseLayout(md.Layout)
	if err != nil {
		return err
	}
	if len(md.InputShape) == 0 {
		md.InputShape = []int64{1, int64(md.ImageSize), int64(md.ImageSize), imageprep.NumChannels}
		if layout == imageprep.CHW {
			md.InputShape = []int64{1, imageprep.NumChannels, int64(md.ImageSize), int64(md.ImageSize)}
		}
	}
	if len(md.OutputShape) == 0 {
		if len(md.Classes) == 0 {
			return errors.New("metadata has neither output_shape nor classes")
		}
		md.OutputShape = []int64{1, int64(len(md.Classes))}
	}
	if md.InputShape[0] != 1 || md.OutputShape[0] != 1 {
		return errors.Errorf("only batch size 1 is supported, got input_shape %v and output_shape %v",
			md.InputShape, md.OutputShape)
	}
	if _, err = imageprep.ParsePixelRange(md.PixelRange); err != nil {
		return err
	}
	return nil
}
