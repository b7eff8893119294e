// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// trafficlight_server serves the traffic light controller over HTTP, for deployments without a display.
//
// It reads an optional .env file from the current directory. The PORT environment variable, if set,
// overrides the port of -addr.
//
// Example:
//
//	trafficlight_server -model ~/work/trafficlight/model -addr :8080
//	curl -F image=@road.jpg http://localhost:8080/predict/image
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/gomlx/gomlx/backends/default"
	"github.com/gomlx/trafficlight/camera"
	"github.com/gomlx/trafficlight/classifier"
	"github.com/gomlx/trafficlight/controller"
	"github.com/gomlx/trafficlight/server"
	"github.com/janpfeifer/must"
	"github.com/joho/godotenv"
	"k8s.io/klog/v2"
)

var (
	flagModel  = flag.String("model", "", "Model to use: a checkpoint directory created by trafficlight_train, or an .onnx file.")
	flagLabels = flag.String("labels", "", "Labels file, one class per line. If empty it's searched next to the model.")
	flagRules  = flag.String("rules", "", "Optional YAML file with the threshold, colors and green times, merged over the defaults.")
	flagAddr   = flag.String("addr", ":8080", "Address to listen on.")
	flagCamera = flag.String("camera", "", "Webcam device for the live stream (e.g. /dev/video0). If empty, the /stream routes are disabled.")
	flagFrames = flag.String("frames", "", "Directory of images to use as the live stream instead of the webcam, played in a loop.")
	flagStream = flag.Bool("stream", false, "Start the live stream right away.")
	flagWidth  = flag.Int("width", 640, "Requested webcam frame width.")
	flagHeight = flag.Int("height", 480, "Requested webcam frame height.")
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		klog.Warningf("failed to read .env: %v", err)
	}
	klog.InitFlags(nil)
	flag.Parse()
	if *flagModel == "" {
		fmt.Fprintln(os.Stderr, "-model must be given.")
		flag.Usage()
		os.Exit(1)
	}

	addr := *flagAddr
	if port := os.Getenv("PORT"); port != "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = ""
		}
		addr = net.JoinHostPort(host, port)
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
	srv := must.M1(server.New(server.Config{
		Classifier: cls,
		Controller: ctrl,
		Camera:     opener,
	}))
	if *flagStream {
		must.M(srv.StartStream())
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	must.M(srv.ListenAndServe(ctx, addr))
}
