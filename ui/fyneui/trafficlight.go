// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fyneui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"github.com/gomlx/trafficlight/controller"
)

// housingColor is the dark gray of the traffic light body.
var housingColor = color.NRGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xFF}

// TrafficLight is a colored circle on a dark rectangle.
type TrafficLight struct {
	// Container to be added to the window layout.
	Container *fyne.Container

	housing *canvas.Rectangle
	light   *canvas.Circle
	current controller.Color
}

// NewTrafficLight creates a TrafficLight of the given side, showing the initial color.
func NewTrafficLight(side float32, initial controller.Color) *TrafficLight {
	tl := &TrafficLight{
		housing: canvas.NewRectangle(housingColor),
		light:   canvas.NewCircle(initial.RGBA()),
		current: initial,
	}
	tl.housing.CornerRadius = side / 10
	tl.housing.SetMinSize(fyne.NewSize(side, side))
	padding := side / 8
	tl.Container = container.NewStack(tl.housing,
		container.New(layout.NewCustomPaddedLayout(padding, padding, padding, padding), tl.light))
	return tl
}

// SetColor of the light. It must be called from the Fyne goroutine.
func (tl *TrafficLight) SetColor(c controller.Color) {
	tl.current = c
	tl.light.FillColor = c.RGBA()
	tl.light.Refresh()
}

// Color currently displayed.
func (tl *TrafficLight) Color() controller.Color { return tl.current }
