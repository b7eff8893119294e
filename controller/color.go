// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package controller

import (
	"image/color"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Color of the traffic light.
type Color int

const (
	Red Color = iota
	Orange
	Green
)

// Colors lists all valid colors.
var Colors = []Color{Red, Orange, Green}

var colorNames = map[Color]string{Red: "red", Orange: "orange", Green: "green"}

// String implements fmt.Stringer.
func (c Color) String() string {
	if name, found := colorNames[c]; found {
		return name
	}
	return "unknown"
}

// Hex returns the color in "#RRGGBB" notation.
func (c Color) Hex() string {
	switch c {
	case Red:
		return "#FF0000"
	case Orange:
		return "#FFA500"
	case Green:
		return "#00FF00"
	}
	return "#000000"
}

// RGBA returns the color to paint the light with.
func (c Color) RGBA() color.NRGBA {
	switch c {
	case Red:
		return color.NRGBA{R: 0xFF, A: 0xFF}
	case Orange:
		return color.NRGBA{R: 0xFF, G: 0xA5, A: 0xFF}
	case Green:
		return color.NRGBA{G: 0xFF, A: 0xFF}
	}
	return color.NRGBA{A: 0xFF}
}

// ParseColor from its name ("red", "orange" or "green"), case-insensitive.
func ParseColor(name string) (Color, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for c, cName := range colorNames {
		if cName == name {
			return c, nil
		}
	}
	return Red, errors.Errorf("unknown traffic light color %q, valid values are red, orange and green", name)
}

// MarshalText implements encoding.TextMarshaler, used for JSON.
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, used for JSON.
func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Color) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	return c.UnmarshalText([]byte(name))
}
