// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// trafficlight_gui opens the traffic light control window: it classifies images selected from files or
// captured from a webcam, and displays the resulting traffic light color and countdown.
//
// Example:
//
//	trafficlight_gui -model ~/work/trafficlight/model -camera /dev/video0
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"fyne.io/fyne/v2"
	_ "github.com/gomlx/gomlx/backends/default"
	"github.com/gomlx/trafficlight/camera"
	"github.com/gomlx/trafficlight/classifier"
	"github.com/gomlx/trafficlight/controller"
	"github.com/gomlx/trafficlight/ui/fyneui"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagModel  = flag.String("model", "", "Model to use: a checkpoint directory created by trafficlight_train, or an .onnx file.")
	flagLabels = flag.String("labels", "", "Labels file, one class per line. If empty it's searched next to the model.")
	flagRules  = flag.String("rules", "", "Optional YAML file with the threshold, colors and green times, merged over the defaults.")
	flagCamera = flag.String("camera", "/dev/video0", "Webcam device used for the live stream. Set to empty to disable the live stream.")
	flagFrames = flag.String("frames", "", "Directory of images to use as the live stream instead of the webcam, played in a loop.")
	flagWidth  = flag.Int("width", 640, "Requested webcam frame width.")
	flagHeight = flag.Int("height", 480, "Requested webcam frame height.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagModel == "" {
		fmt.Fprintln(os.Stderr, "-model must be given.")
		flag.Usage()
		os.Exit(1)
	}

	rules := controller.DefaultRules()
	if *flagRules != "" {
		rules = must.M1(controller.LoadRules(*flagRules))
	}
	cls := must.M1(classifier.Open(*flagModel, *flagLabels))
	defer func() { _ = cls.Close() }()
	klog.Infof("model %q loaded with classes %q", *flagModel, cls.Labels())

	ctrl := controller.New(rules, time.Second)
	defer ctrl.Close()

	var opener camera.Opener
	switch {
	case *flagFrames != "":
		opener = camera.DirectoryOpener(*flagFrames, true)
	case *flagCamera != "":
		opener = camera.WebcamOpener(*flagCamera, *flagWidth, *flagHeight)
	}

	must.M(fyneui.RunMain(func(a fyne.App) error {
		_, err := fyneui.NewWindow(a, fyneui.Config{
			Classifier: cls,
			Controller: ctrl,
			Camera:     opener,
		})
		return err
	}))
}
