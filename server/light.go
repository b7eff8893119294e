// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package server

import (
	"fmt"

	"github.com/fogleman/gg"
	"github.com/gomlx/trafficlight/controller"
)

// RenderLight draws the traffic light for the given state: a colored circle on a dark rectangle, with the
// countdown below it if one was started. The image is size pixels high and size/2 pixels wide.
func RenderLight(state controller.State, size int) *gg.Context {
	width, height := float64(size/2), float64(size)
	dc := gg.NewContext(size/2, size)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	margin := width * 0.08
	dc.SetRGB(0.13, 0.13, 0.13)
	dc.DrawRoundedRectangle(margin, margin, width-2*margin, height-2*margin, width*0.1)
	dc.Fill()

	radius := (width - 4*margin) / 2
	cx, cy := width/2, margin+height*0.1+radius
	dc.SetColor(state.Light.RGBA())
	dc.DrawCircle(cx, cy, radius)
	dc.Fill()

	dc.SetRGB(1, 1, 1)
	dc.DrawStringAnchored(state.Light.String(), cx, cy+radius+height*0.1, 0.5, 0.5)
	if state.Remaining >= 0 {
		dc.DrawStringAnchored(fmt.Sprintf("%d s", state.Remaining), cx, cy+radius+height*0.2, 0.5, 0.5)
	}
	return dc
}
