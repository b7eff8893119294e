// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package trainer trains the traffic condition classifier on a directory-per-class image dataset, and writes
// the artifacts needed by the classifier: the label file, the model checkpoint and the model metadata.
package trainer

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/checkpoints"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/ml/train/losses"
	"github.com/gomlx/gomlx/ml/train/metrics"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/gomlx/trafficlight/classifier"
	"github.com/gomlx/trafficlight/dataset"
	"github.com/gomlx/trafficlight/internal/imageprep"
	"github.com/gomlx/trafficlight/labels"
	"github.com/gomlx/trafficlight/model"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// CheckpointDirName is the sub-directory of the output directory holding the model checkpoint.
	CheckpointDirName = "model"

	// CurveFileName is the training curve plot written to the output directory when Config.Plot is set.
	CurveFileName = "training_curve.png"
)

// Config of a training session. The hyperparameters are given separately, in a context.
type Config struct {
	// DataDir holds one sub-directory per class with the training images.
	DataDir string

	// ValidationDir optionally holds a separate validation dataset, with the same classes as DataDir.
	// If empty a fraction of DataDir (hyperparameter "validation_fraction") is held out for validation.
	ValidationDir string

	// OutputDir where the labels file, the checkpoint and the metadata are written.
	OutputDir string

	// ParamsSet are hyperparameters set in the command line: they are not overwritten by the values
	// saved in a previous checkpoint.
	ParamsSet []string

	// Eval prints an evaluation report at the end of training.
	Eval bool

	// Plot writes the training curve to CurveFileName in OutputDir.
	Plot bool

	// Verbosity: 0 shows the progress bar, < 0 is quiet, >= 1 prints extra information.
	Verbosity int

	// Parallelism used to load images. If 0 it uses the number of CPUs.
	Parallelism int

	// Backend to use. If nil one is created with backends.New, which uses GOMLX_BACKEND if it is set.
	Backend backends.Backend
}

// Result of a training session.
type Result struct {
	RunID  string
	Labels []string

	// NumTrain and NumValidation are the number of images actually used.
	NumTrain, NumValidation int

	// GlobalStep at the end of training.
	GlobalStep int

	// Validation holds the final loss and accuracy on the held-out images.
	Validation Evaluation

	// History has one entry per epoch.
	History []EpochRecord

	// Paths to the written artifacts.
	LabelsPath, CheckpointDir, MetadataPath, CurvePath string
}

// Evaluation of the model over a dataset.
type Evaluation struct {
	Loss, Accuracy float64
}

// EpochRecord holds the metrics at the end of an epoch.
type EpochRecord struct {
	Epoch, Step int

	// TrainLoss and TrainAccuracy are moving averages over the last training steps.
	TrainLoss, TrainAccuracy float64

	Validation Evaluation
}

// Train the model with hyperparameters given in ctx (see model.CreateDefaultContext).
//
// The labels file is written before training starts. If a checkpoint already exists in the output directory,
// training continues from it, up to the configured number of epochs.
func Train(ctx *context.Context, config Config) (*Result, error) {
	if config.DataDir == "" || config.OutputDir == "" {
		return nil, errors.New("trainer needs both a data directory and an output directory")
	}
	if err := os.MkdirAll(config.OutputDir, 0777); err != nil {
		return nil, errors.Wrapf(err, "failed to create output directory")
	}
	result := &Result{RunID: uuid.NewString()}

	// Scan and split the dataset.
	trainIdx, validationIdx, err := splitDataset(ctx, config)
	if err != nil {
		return nil, err
	}
	result.Labels = trainIdx.Classes
	ctx.SetParam(model.ParamNumClasses, trainIdx.NumClasses())

	// Label file is written before training starts, so it's consistent with the model outputs.
	result.LabelsPath = filepath.Join(config.OutputDir, labels.DefaultFileName)
	if err = labels.Write(result.LabelsPath, result.Labels); err != nil {
		return nil, err
	}
	klog.V(1).Infof("wrote %d labels to %q", len(result.Labels), result.LabelsPath)

	// Checkpoints saving.
	result.CheckpointDir = filepath.Join(config.OutputDir, CheckpointDirName)
	numCheckpointsToKeep := context.GetParamOr(ctx, model.ParamNumCheckpoints, 3)
	checkpoint, err := checkpoints.Build(ctx).
		Dir(result.CheckpointDir).
		Keep(numCheckpointsToKeep).
		ExcludeParams(append(config.ParamsSet, model.ParamsExcludedFromSaving...)...).
		Done()
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create checkpoint in %q", result.CheckpointDir)
	}
	if numClasses := context.GetParamOr(ctx, model.ParamNumClasses, 0); numClasses != len(result.Labels) {
		return nil, errors.Errorf("checkpoint in %q was trained with %d classes, dataset has %d",
			result.CheckpointDir, numClasses, len(result.Labels))
	}
	if config.Verbosity >= 1 {
		fmt.Printf("Checkpointing model to %q\n", checkpoint.Dir())
	}
	if config.Verbosity >= 2 {
		fmt.Println(commandline.SprintContextSettings(ctx))
	}

	// Load images.
	imageSize := context.GetParamOr(ctx, model.ParamImageSize, 224)
	kernelSize := context.GetParamOr(ctx, model.ParamCNNKernelSize, 3)
	numStages := len(context.GetParamOr(ctx, model.ParamCNNChannels, []int{}))
	if model.FeatureMapSize(imageSize, kernelSize, numStages) <= 0 {
		return nil, errors.Errorf("%s=%d is too small for %d convolution stages with kernel %d",
			model.ParamImageSize, imageSize, numStages, kernelSize)
	}
	loadConfig := dataset.LoadConfig{Size: imageSize, Parallelism: config.Parallelism, ShowProgress: config.Verbosity >= 0}
	trainImages, err := dataset.Load(trainIdx, loadConfig)
	if err != nil {
		return nil, err
	}
	validationImages, err := dataset.Load(validationIdx, loadConfig)
	if err != nil {
		return nil, err
	}
	result.NumTrain, result.NumValidation = trainImages.Len(), validationImages.Len()
	if config.Verbosity >= 0 {
		fmt.Println(DatasetReport(trainImages, validationImages))
	}

	// Backend handles creation of ML computation graphs, accelerator resources, etc.
	backend := config.Backend
	if backend == nil {
		backend, err = backends.New()
		if err != nil {
			return nil, errors.WithMessage(err, "failed to create backend")
		}
	}
	if config.Verbosity >= 1 {
		fmt.Printf("Backend %q:\t%s\n", backend.Name(), backend.Description())
	}

	// Create datasets used for training and evaluation.
	batchSize := context.GetParamOr(ctx, model.ParamBatchSize, 0)
	if batchSize <= 0 {
		return nil, errors.Errorf("batch size must be > 0 (maybe it was not set?): %d", batchSize)
	}
	evalBatchSize := context.GetParamOr(ctx, model.ParamEvalBatchSize, 0)
	if evalBatchSize <= 0 {
		evalBatchSize = batchSize
	}
	pixelRange, err := imageprep.ParsePixelRange(context.GetParamOr(ctx, model.ParamPixelRange, "unit"))
	if err != nil {
		return nil, err
	}
	seed := context.GetParamOr(ctx, model.ParamSplitSeed, 42)
	trainDS := dataset.New("Training", trainImages, batchSize).
		Shuffle(int64(seed)).Infinite(true).PixelRange(pixelRange)
	trainEvalDS := dataset.New("Training (eval)", trainImages, evalBatchSize).PixelRange(pixelRange)
	validationDS := dataset.New("Validation", validationImages, evalBatchSize).PixelRange(pixelRange)

	// Metrics we are interested.
	meanAccuracyMetric := metrics.NewSparseCategoricalAccuracy("Mean Accuracy", "#acc")
	movingAccuracyMetric := metrics.NewMovingAverageSparseCategoricalAccuracy("Moving Average Accuracy", "~acc", 0.01)

	// Create a train.Trainer: this object will orchestrate running the model, feeding
	// results to the optimizer, evaluating the metrics, etc. (all happens in trainer.TrainStep)
	ctx = ctx.In("model") // Convention scope used for model creation.
	trainer := train.NewTrainer(backend, ctx, model.ModelGraph,
		losses.SparseCategoricalCrossEntropyLogits,
		optimizers.FromContext(ctx),
		[]metrics.Interface{movingAccuracyMetric}, // trainMetrics
		[]metrics.Interface{meanAccuracyMetric})   // evalMetrics

	// Use standard training loop.
	loop := train.NewLoop(trainer)
	if config.Verbosity >= 0 {
		commandline.AttachProgressBar(loop) // Attaches a progress bar to the loop.
	}

	// Epochs are counted in steps: the training dataset is infinite and reshuffled at every pass.
	stepsPerEpoch := (trainImages.Len() + batchSize - 1) / batchSize
	numEpochs := context.GetParamOr(ctx, model.ParamNumEpochs, 10)
	numTrainSteps := numEpochs * stepsPerEpoch

	// At the end of each epoch: evaluate on the validation split, record history and save a checkpoint.
	train.EveryNSteps(loop, stepsPerEpoch, "epoch end", 100,
		func(loop *train.Loop, trainMetrics []*tensors.Tensor) error {
			step := int(optimizers.GetGlobalStep(ctx))
			record := EpochRecord{
				Epoch: (step + stepsPerEpoch - 1) / stepsPerEpoch,
				Step:  step,
			}
			record.TrainLoss, record.TrainAccuracy = trainLossAndAccuracy(trainer, trainMetrics)
			validation, err := evaluate(trainer, validationDS)
			if err != nil {
				return err
			}
			record.Validation = validation
			result.History = append(result.History, record)
			klog.V(1).Infof("epoch %d (step %d): train loss=%.4f acc=%.2f%%, validation loss=%.4f acc=%.2f%%",
				record.Epoch, record.Step, record.TrainLoss, 100*record.TrainAccuracy,
				validation.Loss, 100*validation.Accuracy)
			return checkpoint.Save()
		})

	// Loop for given number of steps.
	globalStep := int(optimizers.GetGlobalStep(ctx))
	if globalStep > 0 {
		trainer.SetContext(ctx.Reuse())
	}
	if globalStep < numTrainSteps {
		if _, err = loop.RunSteps(trainDS, numTrainSteps-globalStep); err != nil {
			return nil, errors.WithMessage(err, "training failed")
		}
		if config.Verbosity >= 1 {
			fmt.Printf("\t[Step %d] median train step: %d microseconds\n",
				loop.LoopStep, loop.MedianTrainStepDuration().Microseconds())
		}
	} else if config.Verbosity >= 0 {
		fmt.Printf("\t - target of %d epochs (%d steps) already reached. To train further, increase %q.\n",
			numEpochs, numTrainSteps, model.ParamNumEpochs)
	}
	result.GlobalStep = int(optimizers.GetGlobalStep(ctx))
	if err = checkpoint.Save(); err != nil {
		return nil, errors.WithMessage(err, "failed to save final checkpoint")
	}

	// Final evaluation on the held-out images.
	result.Validation, err = evaluate(trainer, validationDS)
	if err != nil {
		return nil, err
	}

	// Metadata for the classifier.
	result.MetadataPath = filepath.Join(config.OutputDir, classifier.MetadataFileName)
	md := classifier.Metadata{
		InputShape:    []int64{1, int64(imageSize), int64(imageSize), imageprep.NumChannels},
		OutputShape:   []int64{1, int64(len(result.Labels))},
		Classes:       result.Labels,
		ImageSize:     imageSize,
		PixelRange:    pixelRange.String(),
		Layout:        imageprep.HWC.String(),
		OutputsLogits: true,
		RunID:         result.RunID,
		CreatedAt:     time.Now().UTC(),
		Metrics: map[string]float64{
			"validation_loss":     result.Validation.Loss,
			"validation_accuracy": result.Validation.Accuracy,
			"global_step":         float64(result.GlobalStep),
		},
	}
	if err = classifier.WriteMetadata(result.MetadataPath, md); err != nil {
		return nil, err
	}

	if config.Plot && len(result.History) > 0 {
		result.CurvePath = filepath.Join(config.OutputDir, CurveFileName)
		if err = PlotHistory(result.History, result.CurvePath); err != nil {
			return nil, err
		}
	}

	// Finally, print an evaluation on train and validation datasets.
	if config.Eval {
		if config.Verbosity >= 1 {
			fmt.Println()
		}
		if err = commandline.ReportEval(trainer, trainEvalDS, validationDS); err != nil {
			return nil, err
		}
	}
	if config.Verbosity >= 0 {
		fmt.Println(EvaluationReport(result))
	}
	return result, nil
}

// splitDataset scans the training (and optionally the validation) directory, and holds out part of the
// training images for validation if no validation directory is given.
func splitDataset(ctx *context.Context, config Config) (trainIdx, validationIdx *dataset.Index, err error) {
	trainIdx, err = dataset.Scan(config.DataDir)
	if err != nil {
		return nil, nil, err
	}
	if config.ValidationDir != "" {
		validationIdx, err = dataset.Scan(config.ValidationDir)
		if err != nil {
			return nil, nil, err
		}
		if err = trainIdx.AlignClasses(validationIdx); err != nil {
			return nil, nil, err
		}
		return trainIdx, validationIdx, nil
	}
	fraction := context.GetParamOr(ctx, model.ParamValidationFraction, 0.2)
	if fraction <= 0 || fraction >= 1 {
		return nil, nil, errors.Errorf("%s=%g must be in the range (0, 1) when no validation directory is given",
			model.ParamValidationFraction, fraction)
	}
	seed := context.GetParamOr(ctx, model.ParamSplitSeed, 42)
	trainIdx, validationIdx = trainIdx.Split(fraction, int32(seed))
	if validationIdx.Len() == 0 {
		return nil, nil, errors.Errorf("dataset in %q is too small to hold out a validation split", config.DataDir)
	}
	return trainIdx, validationIdx, nil
}
