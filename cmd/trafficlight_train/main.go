// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// trafficlight_train trains the traffic condition classifier on a dataset organized with one sub-directory
// per class, and writes to the output directory the label file, the model checkpoint and its metadata.
//
// Example:
//
//	trafficlight_train -data ~/data/traffic -output ~/work/trafficlight -set "num_epochs=20;batch_size=16" -plot
package main

import (
	"flag"
	"fmt"
	"os"

	_ "github.com/gomlx/gomlx/backends/default"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/gomlx/trafficlight/model"
	"github.com/gomlx/trafficlight/trainer"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagDataDir       = flag.String("data", "", "Directory with one sub-directory of images per class.")
	flagValidationDir = flag.String("validation", "", "Optional directory with the validation images, organized as -data. If empty, a fraction of -data is held out.")
	flagOutputDir     = flag.String("output", "", "Directory where the labels file, the checkpoint and the metadata are written. Training resumes from a checkpoint found there.")
	flagEval          = flag.Bool("eval", true, "Whether to evaluate the model on the train and validation data at the end.")
	flagPlot          = flag.Bool("plot", false, "Write the training curve to "+trainer.CurveFileName+" in the output directory.")
	flagVerbosity     = flag.Int("verbosity", 0, "Level of verbosity: -1 is quiet, 0 shows a progress bar, the higher the more verbose.")
	flagParallelism   = flag.Int("parallelism", 0, "Number of images decoded in parallel. 0 uses the number of CPUs.")
)

func main() {
	ctx := model.CreateDefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	klog.InitFlags(nil)
	flag.Parse()
	if *flagDataDir == "" || *flagOutputDir == "" {
		fmt.Fprintln(os.Stderr, "Both -data and -output must be given.")
		flag.Usage()
		os.Exit(1)
	}
	paramsSet := must.M1(commandline.ParseContextSettings(ctx, *settings))

	result := must.M1(trainer.Train(ctx, trainer.Config{
		DataDir:       *flagDataDir,
		ValidationDir: *flagValidationDir,
		OutputDir:     *flagOutputDir,
		ParamsSet:     paramsSet,
		Eval:          *flagEval,
		Plot:          *flagPlot,
		Verbosity:     *flagVerbosity,
		Parallelism:   *flagParallelism,
	}))
	klog.Infof("run %s: %d classes, validation accuracy %.2f%%", result.RunID, len(result.Labels),
		100*result.Validation.Accuracy)
	fmt.Printf("Labels:     %s\n", result.LabelsPath)
	fmt.Printf("Checkpoint: %s\n", result.CheckpointDir)
	fmt.Printf("Metadata:   %s\n", result.MetadataPath)
	if result.CurvePath != "" {
		fmt.Printf("Curve:      %s\n", result.CurvePath)
	}
}
