// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package classifier classifies images of a road into traffic conditions.
//
// It loads a trained model, either a checkpoint written by the trainer package or an exported ONNX model,
// and offers a Classify method that will classify any image, by first fitting it to the model's input size.
//
// To use it, open a Classifier with Open(), and then simply call its Classify method:
//
//	c := must.M1(classifier.Open(modelPath, labelsPath))
//	defer c.Close()
//	prediction := must.M1(c.Classify(img))
//	fmt.Printf("Predicted Class: %s\n", prediction.Label)
package classifier

import (
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/trafficlight/dataset"
	"github.com/gomlx/trafficlight/internal/imageprep"
	"github.com/gomlx/trafficlight/labels"
	"github.com/pkg/errors"
)

// Prediction is the result of classifying one image.
type Prediction struct {
	// Index of the class with the highest probability.
	Index int `json:"index"`

	// Label of the class with the highest probability, or empty if it was not detected.
	Label string `json:"label"`

	// Confidence is the probability of the predicted class.
	Confidence float32 `json:"confidence"`

	// Probabilities of all classes, in the order of the label list.
	Probabilities []float32 `json:"probabilities,omitempty"`

	// Detected is false if the predicted index has no corresponding label ("Not Detected").
	Detected bool `json:"detected"`

	// Input is the image fitted to the model resolution, as it was fed to the model.
	Input *image.NRGBA `json:"-"`
}

// Classifier pairs a Predictor with the ordered label list: index i of the model outputs corresponds
// to line i of the label file.
type Classifier struct {
	predictor Predictor
	labels    []string
}

// New creates a Classifier from a predictor and its labels.
// It doesn't take ownership of the predictor until the Classifier is closed.
func New(predictor Predictor, classLabels []string) (*Classifier, error) {
	if len(classLabels) == 0 {
		return nil, errors.New("empty label list")
	}
	if predictor.ImageSize() <= 0 {
		return nil, errors.Errorf("predictor has invalid image size %d", predictor.ImageSize())
	}
	return &Classifier{predictor: predictor, labels: classLabels}, nil
}

// Labels returns the ordered label list.
func (c *Classifier) Labels() []string { return c.labels }

// Predictor returns the underlying predictor.
func (c *Classifier) Predictor() Predictor { return c.predictor }

// Classify fits the image to the model resolution (centered crop, Lanczos resampling), normalizes it, runs the model
// and takes the class with the highest probability.
//
// If the class index has no corresponding label, the returned Prediction has Detected set to false,
// and it is not an error.
func (c *Classifier) Classify(img image.Image) (Prediction, error) {
	if img == nil || img.Bounds().Empty() {
		return Prediction{}, errors.New("empty image")
	}
	fitted := imageprep.Fit(img, c.predictor.ImageSize())
	probabilities, err := c.predictor.Predict(fitted)
	if err != nil {
		return Prediction{}, err
	}
	if len(probabilities) == 0 {
		return Prediction{}, errors.New("model returned no outputs")
	}
	prediction := Decode(probabilities, c.labels)
	prediction.Input = fitted
	return prediction, nil
}

// ClassifyFile reads the image in path and classifies it.
func (c *Classifier) ClassifyFile(path string) (Prediction, error) {
	img, err := dataset.GetImageFromFilePath(path)
	if err != nil {
		return Prediction{}, err
	}
	return c.Classify(img)
}

// Decode returns the Prediction for the given class probabilities: the arg-max index, its label and probability.
// Ties are broken by the lowest index. NaN probabilities are never selected: if there is no valid probability,
// Index is -1 and the prediction is not detected.
func Decode(probabilities []float32, classLabels []string) Prediction {
	prediction := Prediction{Index: -1, Probabilities: probabilities}
	for ii, p := range probabilities {
		if math.IsNaN(float64(p)) {
			continue
		}
		if prediction.Index < 0 || p > prediction.Confidence {
			prediction.Index = ii
			prediction.Confidence = p
		}
	}
	if prediction.Index >= 0 && prediction.Index < len(classLabels) {
		prediction.Label = classLabels[prediction.Index]
		prediction.Detected = true
	}
	return prediction
}

// Close the underlying predictor.
func (c *Classifier) Close() error {
	return c.predictor.Close()
}

// Open the model in modelPath along with the label file in labelsPath:
//
//   - If modelPath is a directory it's taken as a checkpoint written by the trainer.
//   - If modelPath ends with ".onnx" it's taken as an ONNX model, described by the "metadata.json" file in the
//     same directory, if there is one, or by DefaultMetadata otherwise.
//
// If labelsPath is empty, the "labels.txt" file in the model's directory (or its parent, for checkpoints) is used.
// Label files of ONNX models may carry an index prefix per line ("0 empty road"), which is removed.
func Open(modelPath, labelsPath string) (*Classifier, error) {
	fi, err := os.Stat(modelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open model")
	}
	isCheckpoint := fi.IsDir()
	if !isCheckpoint && !strings.EqualFold(filepath.Ext(modelPath), ".onnx") {
		return nil, errors.Errorf("model %q is neither a checkpoint directory nor an \".onnx\" file", modelPath)
	}
	if labelsPath == "" {
		labelsPath = findNextTo(modelPath, labels.DefaultFileName, isCheckpoint)
	}
	classLabels, err := labels.ReadWithOptions(labelsPath, labels.Options{StripIndexPrefix: !isCheckpoint})
	if err != nil {
		return nil, err
	}

	var predictor Predictor
	if isCheckpoint {
		checkpointPredictor, err := NewCheckpointPredictor(modelPath)
		if err != nil {
			return nil, err
		}
		if err = labels.Validate(classLabels, checkpointPredictor.NumClasses()); err != nil {
			_ = checkpointPredictor.Close()
			return nil, errors.WithMessagef(err, "labels in %q don't match model %q", labelsPath, modelPath)
		}
		predictor = checkpointPredictor
	} else {
		md := DefaultMetadata(classLabels)
		if mdPath := findNextTo(modelPath, MetadataFileName, false); fileExists(mdPath) {
			md, err = ReadMetadata(mdPath)
			if err != nil {
				return nil, err
			}
		}
		onnxPredictor, err := NewONNXPredictor(modelPath, md)
		if err != nil {
			return nil, err
		}
		outputShape := onnxPredictor.Metadata().OutputShape
		if numOutputs := int(outputShape[len(outputShape)-1]); numOutputs != len(classLabels) {
			_ = onnxPredictor.Close()
			return nil, errors.Errorf("labels in %q has %d entries, but model %q outputs %d classes",
				labelsPath, len(classLabels), modelPath, numOutputs)
		}
		predictor = onnxPredictor
	}
	return New(predictor, classLabels)
}

// findNextTo returns the path to fileName in the directory of modelPath.
// For checkpoints, it also looks in the parent directory, where the trainer writes its files.
func findNextTo(modelPath, fileName string, isCheckpoint bool) string {
	dir := filepath.Dir(modelPath)
	if isCheckpoint {
		if inside := filepath.Join(modelPath, fileName); fileExists(inside) {
			return inside
		}
		dir = filepath.Dir(filepath.Clean(modelPath))
	}
	return filepath.Join(dir, fileName)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
