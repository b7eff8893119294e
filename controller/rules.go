// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package controller

import (
	"os"
	"strings"

	"github.com/gomlx/trafficlight/classifier"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultThreshold is the minimum confidence for a prediction to be acted upon.
const DefaultThreshold = 0.90

// Rules map accepted predictions to the traffic light color and the countdown (green time) to display.
//
// Class labels are matched after trimming spaces and lowercasing, so "Emergency Vehicle " and
// "emergency vehicle" are the same class.
type Rules struct {
	// Threshold is the minimum confidence (inclusive) for a prediction to be accepted.
	Threshold float32 `yaml:"threshold"`

	// Colors maps a class label to the light color. Classes not listed get DefaultColor.
	Colors map[string]Color `yaml:"colors"`

	// DefaultColor for classes not in Colors.
	DefaultColor Color `yaml:"default_color"`

	// GreenTimes maps a class label to the countdown in seconds. Classes not listed get DefaultGreenTime.
	GreenTimes map[string]int `yaml:"green_times"`

	// DefaultGreenTime for classes not in GreenTimes.
	DefaultGreenTime int `yaml:"default_green_time"`
}

// DefaultRules returns the rules for the traffic conditions "empty road", "normal traffic", "heavy traffic"
// and "emergency vehicle".
func DefaultRules() Rules {
	return Rules{
		Threshold: DefaultThreshold,
		Colors: map[string]Color{
			"empty road":        Green,
			"normal traffic":    Orange,
			"heavy traffic":     Green,
			"emergency vehicle": Green,
		},
		DefaultColor: Red,
		GreenTimes: map[string]int{
			"empty road":        2,
			"normal traffic":    3,
			"heavy traffic":     4,
			"emergency vehicle": 8,
		},
		DefaultGreenTime: 0,
	}
}

// LoadRules reads rules from a YAML file. Fields not present in the file keep the values of DefaultRules,
// and the tables in the file are merged over the default tables.
//
// Example:
//
//	threshold: 0.85
//	default_color: red
//	colors:
//	  ambulance: green
//	green_times:
//	  ambulance: 10
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	contents, err := os.ReadFile(path)
	if err != nil {
		return rules, errors.Wrapf(err, "failed to read rules")
	}
	var fileRules struct {
		Threshold        *float32         `yaml:"threshold"`
		Colors           map[string]Color `yaml:"colors"`
		DefaultColor     *Color           `yaml:"default_color"`
		GreenTimes       map[string]int   `yaml:"green_times"`
		DefaultGreenTime *int             `yaml:"default_green_time"`
	}
	if err = yaml.Unmarshal(contents, &fileRules); err != nil {
		return rules, errors.Wrapf(err, "failed to parse rules in %q", path)
	}
	if fileRules.Threshold != nil {
		rules.Threshold = *fileRules.Threshold
	}
	if fileRules.DefaultColor != nil {
		rules.DefaultColor = *fileRules.DefaultColor
	}
	if fileRules.DefaultGreenTime != nil {
		rules.DefaultGreenTime = *fileRules.DefaultGreenTime
	}
	for label, c := range fileRules.Colors {
		rules.Colors[normalizeLabel(label)] = c
	}
	for label, seconds := range fileRules.GreenTimes {
		rules.GreenTimes[normalizeLabel(label)] = seconds
	}
	if err = rules.Validate(); err != nil {
		return rules, errors.WithMessagef(err, "invalid rules in %q", path)
	}
	return rules, nil
}

// Validate checks the threshold is within [0, 1] and green times are not negative.
func (r Rules) Validate() error {
	if r.Threshold < 0 || r.Threshold > 1 {
		return errors.Errorf("threshold %g must be in [0, 1]", r.Threshold)
	}
	if r.DefaultGreenTime < 0 {
		return errors.Errorf("default green time %d must be >= 0", r.DefaultGreenTime)
	}
	for label, seconds := range r.GreenTimes {
		if seconds < 0 {
			return errors.Errorf("green time %d for %q must be >= 0", seconds, label)
		}
	}
	return nil
}

// normalizeLabel for table lookups.
func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// ColorFor returns the light color for the class label.
func (r Rules) ColorFor(label string) Color {
	if c, found := r.Colors[normalizeLabel(label)]; found {
		return c
	}
	return r.DefaultColor
}

// GreenTimeFor returns the countdown in seconds for the class label.
func (r Rules) GreenTimeFor(label string) int {
	if seconds, found := r.GreenTimes[normalizeLabel(label)]; found {
		return seconds
	}
	return r.DefaultGreenTime
}

// Outcome of a prediction.
type Outcome int

const (
	// NotDetected means the predicted class has no label.
	NotDetected Outcome = iota

	// Rejected means the confidence was below the threshold: no actionable detection.
	Rejected

	// Accepted means the prediction changes the light and starts a countdown.
	Accepted
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case NotDetected:
		return "not detected"
	case Rejected:
		return "rejected"
	case Accepted:
		return "accepted"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler, used for JSON.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, used for JSON.
func (o *Outcome) UnmarshalText(text []byte) error {
	for _, candidate := range []Outcome{NotDetected, Rejected, Accepted} {
		if candidate.String() == string(text) {
			*o = candidate
			return nil
		}
	}
	return errors.Errorf("unknown outcome %q", text)
}

// State of the traffic light controller.
type State struct {
	// Current is the label of the last accepted detection. It is cleared by a rejected prediction.
	Current string `json:"current"`

	// Confidence of the last accepted detection.
	Confidence float32 `json:"confidence"`

	// Light color. It only changes on accepted detections.
	Light Color `json:"light"`

	// Remaining seconds of the countdown, -1 if no countdown was started.
	Remaining int `json:"remaining"`
}

// InitialState of the controller: red light and no detection.
func InitialState() State {
	return State{Light: Red, Remaining: -1}
}

// Decision taken for one prediction.
type Decision struct {
	Outcome Outcome `json:"outcome"`

	// Label and Confidence of the prediction. Label is empty if not detected.
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`

	// Light color after the decision.
	Light Color `json:"light"`

	// GreenTime is the countdown to start in seconds. Only meaningful if Outcome is Accepted.
	GreenTime int `json:"green_time"`
}

// Decide what to do with a prediction, given the current state. It returns the new state and the decision.
//
//   - Not detected: nothing changes.
//   - Confidence below the threshold: the current detection is cleared, the light and countdown are untouched.
//   - Otherwise the detection is accepted: the light color and the countdown come from the tables.
//
// Decide doesn't start the countdown, the caller does, with the decision's GreenTime.
func (r Rules) Decide(state State, prediction classifier.Prediction) (State, Decision) {
	decision := Decision{
		Label:      prediction.Label,
		Confidence: prediction.Confidence,
		Light:      state.Light,
	}
	switch {
	case !prediction.Detected:
		decision.Outcome = NotDetected
		decision.Label = ""
	case !(prediction.Confidence >= r.Threshold): // Also rejects NaN.
		decision.Outcome = Rejected
		state.Current = ""
		state.Confidence = 0
	default:
		decision.Outcome = Accepted
		decision.Light = r.ColorFor(prediction.Label)
		decision.GreenTime = r.GreenTimeFor(prediction.Label)
		state.Current = prediction.Label
		state.Confidence = prediction.Confidence
		state.Light = decision.Light
		state.Remaining = decision.GreenTime
	}
	return state, decision
}
