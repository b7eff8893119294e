// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fyneui

import (
	"context"
	"fmt"
	"image"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
	"github.com/gomlx/trafficlight/camera"
	"github.com/gomlx/trafficlight/classifier"
	"github.com/gomlx/trafficlight/controller"
	"github.com/gomlx/trafficlight/dataset"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Title of the window.
const Title = "Traffic Light Control System"

// Classifier classifies one image. It's implemented by *classifier.Classifier.
type Classifier interface {
	Classify(img image.Image) (classifier.Prediction, error)
}

// Config of the window.
type Config struct {
	// Classifier used for both files and stream frames.
	Classifier Classifier

	// Controller receives the predictions and publishes the decisions and the countdown ticks.
	Controller *controller.Controller

	// Camera opens the source of frames for the live stream. If nil the "Start Live Stream" button is disabled.
	Camera camera.Opener
}

// Window holds the Fyne window and its widgets. It can be created with NewWindow().
type Window struct {
	Win fyne.Window

	TitleLabel      *widget.Label
	Preview         *canvas.Image
	PredictedLabel  *widget.Label
	ConfidenceLabel *widget.Label
	SelectButton    *widget.Button
	StreamButton    *widget.Button
	Light           *TrafficLight
	CountdownLabel  *widget.Label

	config Config

	// muStream protects stopStream, set while the live stream runs.
	muStream   sync.Mutex
	stopStream context.CancelFunc

	unsubscribe func()
}

// NewWindow creates, lays out and shows the window, and starts applying the controller events to it.
func NewWindow(a fyne.App, config Config) (*Window, error) {
	if config.Classifier == nil || config.Controller == nil {
		return nil, errors.New("window needs both a classifier and a controller")
	}
	win := &Window{config: config}
	win.build(a)

	events, unsubscribe := config.Controller.Subscribe(0)
	win.unsubscribe = unsubscribe
	go func() {
		for event := range events {
			fyne.Do(func() { win.ApplyEvent(event) })
		}
	}()
	win.Win.SetOnClosed(win.onClosed)
	win.Win.Show()
	return win, nil
}

// build creates the widgets and the window layout.
func (win *Window) build(a fyne.App) {
	win.TitleLabel = widget.NewLabelWithStyle(Title, fyne.TextAlignCenter, fyne.TextStyle{Bold: true})
	win.Preview = canvas.NewImageFromImage(image.NewNRGBA(image.Rect(0, 0, 1, 1)))
	win.Preview.FillMode = canvas.ImageFillContain
	win.Preview.SetMinSize(fyne.NewSize(224, 224))
	win.PredictedLabel = widget.NewLabel("")
	win.ConfidenceLabel = widget.NewLabel("")
	win.ConfidenceLabel.Hide()
	win.SelectButton = widget.NewButton("Select Image", win.onSelectImage)
	win.StreamButton = widget.NewButton("Start Live Stream", win.onToggleStream)
	if win.config.Camera == nil {
		win.StreamButton.Disable()
	}
	win.Light = NewTrafficLight(120, controller.InitialState().Light)
	win.CountdownLabel = widget.NewLabel(countdownText(0))

	inputCard := widget.NewCard("Input Image", "", win.Preview)
	buttons := container.NewGridWithColumns(2, win.SelectButton, win.StreamButton)
	lightColumn := container.NewVBox(container.NewCenter(win.Light.Container), container.NewCenter(win.CountdownLabel))
	results := container.NewVBox(win.PredictedLabel, win.ConfidenceLabel)
	content := container.NewBorder(
		win.TitleLabel, container.NewVBox(results, buttons), nil, lightColumn, inputCard)

	win.Win = a.NewWindow(Title)
	win.Win.SetContent(content)
	win.Win.Resize(fyne.NewSize(600, 600))
}

func countdownText(seconds int) string {
	return fmt.Sprintf("Time remaining: %d s", seconds)
}

// ApplyEvent updates the widgets with a controller event. It must be called from the Fyne goroutine.
func (win *Window) ApplyEvent(event controller.Event) {
	switch event.Kind {
	case controller.DecisionEvent:
		if event.Decision != nil {
			win.applyDecision(*event.Decision)
		}
	case controller.TickEvent:
		win.CountdownLabel.SetText(countdownText(event.Remaining))
	case controller.ErrorEvent:
		// Errors are shown by whoever reported them.
	}
}

// applyDecision shows the result of a classification:
//
//   - Not detected: "Not Detected" and no confidence.
//   - Rejected (low confidence): both labels are cleared.
//   - Accepted: class name, confidence and the new light color.
func (win *Window) applyDecision(decision controller.Decision) {
	switch decision.Outcome {
	case controller.NotDetected:
		win.PredictedLabel.SetText("Not Detected")
		win.ConfidenceLabel.SetText("")
		win.ConfidenceLabel.Hide()
	case controller.Rejected:
		win.PredictedLabel.SetText("")
		win.ConfidenceLabel.SetText("")
		win.ConfidenceLabel.Hide()
	case controller.Accepted:
		win.PredictedLabel.SetText(fmt.Sprintf("Predicted Class: %s", decision.Label))
		win.ConfidenceLabel.SetText(fmt.Sprintf("Confidence Score: %.4f", decision.Confidence))
		win.ConfidenceLabel.Show()
		win.Light.SetColor(decision.Light)
	}
}

// ShowInput displays the image given to the model. It must be called from the Fyne goroutine.
func (win *Window) ShowInput(img image.Image) {
	win.Preview.Image = img
	win.Preview.Refresh()
}

// classifyAndApply runs in a background goroutine: it classifies the image and applies the prediction
// to the controller, whose events update the window.
func (win *Window) classifyAndApply(img image.Image) error {
	prediction, err := win.config.Classifier.Classify(img)
	if err != nil {
		return err
	}
	if prediction.Input != nil {
		input := prediction.Input
		fyne.Do(func() { win.ShowInput(input) })
	}
	win.config.Controller.Apply(prediction)
	return nil
}

func (win *Window) onSelectImage() {
	fileDialog := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil {
			dialog.ShowError(err, win.Win)
			return
		}
		if reader == nil {
			return // Canceled by the user.
		}
		path := reader.URI().Path()
		_ = reader.Close()
		go func() {
			img, err := dataset.GetImageFromFilePath(path)
			if err == nil {
				err = win.classifyAndApply(img)
			}
			if err != nil {
				klog.Errorf("failed to classify %q: %+v", path, err)
				fyne.Do(func() { dialog.ShowError(err, win.Win) })
			}
		}()
	}, win.Win)
	fileDialog.SetFilter(storage.NewExtensionFileFilter(dataset.ImageExtensions))
	fileDialog.Show()
}

func (win *Window) onToggleStream() {
	if win.IsStreaming() {
		win.StopStream()
		return
	}
	win.StartStream()
}

// IsStreaming returns whether the live stream is running.
func (win *Window) IsStreaming() bool {
	win.muStream.Lock()
	defer win.muStream.Unlock()
	return win.stopStream != nil
}

// StartStream starts classifying frames from the camera. It must be called from the Fyne goroutine.
//
// If the camera can't be opened or fails to deliver a frame, an error dialog is shown and the stream stops.
func (win *Window) StartStream() {
	win.muStream.Lock()
	if win.stopStream != nil || win.config.Camera == nil {
		win.muStream.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	win.stopStream = cancel
	win.muStream.Unlock()
	win.StreamButton.SetText("Stop Live Stream")

	stream := &camera.Stream[classifier.Prediction]{
		Open:     win.config.Camera,
		Classify: win.config.Classifier.Classify,
		OnResult: func(frame image.Image, prediction classifier.Prediction) {
			if prediction.Input != nil {
				input := prediction.Input
				fyne.Do(func() { win.ShowInput(input) })
			}
			win.config.Controller.Apply(prediction)
		},
	}
	go func() {
		err := stream.Run(ctx)
		win.muStream.Lock()
		win.stopStream = nil
		win.muStream.Unlock()
		cancel()
		if err != nil {
			klog.Errorf("live stream stopped: %+v", err)
			win.config.Controller.ReportError(err)
		}
		fyne.Do(func() {
			win.StreamButton.SetText("Start Live Stream")
			if err != nil {
				dialog.ShowError(streamErrorMessage(err), win.Win)
			}
		})
	}()
}

// StopStream stops the live stream, if running.
func (win *Window) StopStream() {
	win.muStream.Lock()
	defer win.muStream.Unlock()
	if win.stopStream != nil {
		win.stopStream()
	}
}

// streamErrorMessage returns the error to display to the user.
func streamErrorMessage(err error) error {
	switch {
	case errors.Is(err, camera.ErrOpen):
		return errors.Errorf("Unable to open webcam.\n\n%v", err)
	case errors.Is(err, camera.ErrRead):
		return errors.Errorf("Unable to read frame from webcam.\n\n%v", err)
	}
	return err
}

func (win *Window) onClosed() {
	win.StopStream()
	win.unsubscribe()
}
