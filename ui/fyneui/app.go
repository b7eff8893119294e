// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fyneui implements the desktop window of the traffic light control system, using Fyne.
//
// The window shows the image being classified, the predicted class and its confidence, a traffic light
// and the countdown. Images come from a file (button "Select Image") or from a webcam stream
// (button "Start Live Stream").
//
// How to use this:
//
//	func main() {
//		flag.Parse()
//		err := fyneui.RunMain(func(a fyne.App) error {
//			_, err := fyneui.NewWindow(a, fyneui.Config{...})
//			return err
//		})
//		...
//	}
//
// Classification and streaming run in their own goroutines. The UI is only updated from events published
// by the controller, applied in the Fyne goroutine with fyne.Do.
package fyneui

import (
	"os"
	"os/signal"
	"runtime"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// AppID used for Fyne preferences.
const AppID = "io.github.gomlx.trafficlight"

// App holds the current Fyne App singleton, created by RunMain.
//
// It is here for someone who may want to customize the app.
var App fyne.App

// RunMain creates the Fyne app, calls setup to create the windows and runs the Fyne loop on the current
// goroutine (presumably the main goroutine) until all windows are closed or an interrupt (control+C) is received.
//
// It returns the error returned by setup or a panic during setup, converted to an error.
func RunMain(setup func(a fyne.App) error) error {
	if !HasWindows() {
		return errors.New("no graphical display available (is DISPLAY set?)")
	}
	App = app.NewWithID(AppID)

	err := exceptions.TryCatch[error](func() {
		if err := setup(App); err != nil {
			panic(err)
		}
	})
	if err != nil {
		App.Quit()
		return err
	}

	// Override the behavior installed by Fyne.
	onInterrupt := make(chan os.Signal, 1)
	signal.Reset(os.Interrupt)
	signal.Notify(onInterrupt, os.Interrupt)
	go func() {
		if _, ok := <-onInterrupt; ok {
			klog.Infof("Interrupt (control+C) signal received.")
			fyne.Do(App.Quit)
		}
	}()
	App.Run()
	signal.Stop(onInterrupt)
	close(onInterrupt)
	return nil
}

// HasWindows checks if the environment has a graphical display available.
// On Linux and BSDs it verifies the DISPLAY or WAYLAND_DISPLAY environment variables.
func HasWindows() bool {
	switch runtime.GOOS {
	case "windows", "darwin":
		return true
	}
	return os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != ""
}
