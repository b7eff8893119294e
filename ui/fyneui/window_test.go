// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fyneui

import (
	"image"
	"testing"
	"time"

	"fyne.io/fyne/v2/test"
	"github.com/gomlx/trafficlight/camera"
	"github.com/gomlx/trafficlight/classifier"
	"github.com/gomlx/trafficlight/controller"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClassifier struct {
	prediction classifier.Prediction
}

func (f *fakeClassifier) Classify(img image.Image) (classifier.Prediction, error) {
	return f.prediction, nil
}

func newTestWindow(t *testing.T, opener camera.Opener) (*Window, *controller.Controller) {
	a := test.NewTempApp(t)
	ctrl := controller.New(controller.DefaultRules(), time.Millisecond)
	t.Cleanup(ctrl.Close)
	win, err := NewWindow(a, Config{
		Classifier: &fakeClassifier{},
		Controller: ctrl,
		Camera:     opener,
	})
	require.NoError(t, err)
	return win, ctrl
}

func TestApplyDecision(t *testing.T) {
	win, _ := newTestWindow(t, nil)
	assert.Equal(t, Title, win.Win.Title())
	assert.Equal(t, controller.Red, win.Light.Color())
	assert.False(t, win.ConfidenceLabel.Visible())
	assert.True(t, win.StreamButton.Disabled(), "no camera configured")
	assert.Equal(t, "Time remaining: 0 s", win.CountdownLabel.Text)

	win.ApplyEvent(controller.Event{Kind: controller.DecisionEvent, Decision: &controller.Decision{
		Outcome: controller.Accepted, Label: "heavy traffic", Confidence: 0.92, Light: controller.Green, GreenTime: 4,
	}})
	assert.Equal(t, "Predicted Class: heavy traffic", win.PredictedLabel.Text)
	assert.Equal(t, "Confidence Score: 0.9200", win.ConfidenceLabel.Text)
	assert.True(t, win.ConfidenceLabel.Visible())
	assert.Equal(t, controller.Green, win.Light.Color())

	win.ApplyEvent(controller.Event{Kind: controller.TickEvent, Remaining: 3})
	assert.Equal(t, "Time remaining: 3 s", win.CountdownLabel.Text)

	// Low confidence: both labels cleared, light and countdown untouched.
	win.ApplyEvent(controller.Event{Kind: controller.DecisionEvent, Decision: &controller.Decision{
		Outcome: controller.Rejected, Label: "empty road", Confidence: 0.5, Light: controller.Green,
	}})
	assert.Empty(t, win.PredictedLabel.Text)
	assert.False(t, win.ConfidenceLabel.Visible())
	assert.Equal(t, controller.Green, win.Light.Color())
	assert.Equal(t, "Time remaining: 3 s", win.CountdownLabel.Text)

	win.ApplyEvent(controller.Event{Kind: controller.DecisionEvent, Decision: &controller.Decision{
		Outcome: controller.NotDetected,
	}})
	assert.Equal(t, "Not Detected", win.PredictedLabel.Text)
	assert.False(t, win.ConfidenceLabel.Visible())
}

func TestStreamOpenFailure(t *testing.T) {
	win, ctrl := newTestWindow(t, func() (camera.Source, error) {
		return nil, errors.New("no such device")
	})
	events, cancel := ctrl.Subscribe(10)
	defer cancel()
	require.False(t, win.StreamButton.Disabled())

	win.StartStream()
	var event controller.Event
	select {
	case event = <-events:
	case <-time.After(5 * time.Second):
		t.Fatal("no error event received")
	}
	assert.Equal(t, controller.ErrorEvent, event.Kind)
	assert.ErrorIs(t, event.Err, camera.ErrOpen)
	require.Eventually(t, func() bool { return !win.IsStreaming() }, 5*time.Second, time.Millisecond)

	// The application remains usable.
	assert.False(t, win.SelectButton.Disabled())
	assert.Equal(t, "Unable to open webcam.", firstLine(streamErrorMessage(event.Err).Error()))
}

func firstLine(s string) string {
	for ii, r := range s {
		if r == '\n' {
			return s[:ii]
		}
	}
	return s
}
