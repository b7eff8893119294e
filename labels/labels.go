// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package labels reads and writes the ordered list of class names that goes along with a trained classifier.
//
// The file is plain UTF-8 text with one class name per line. The order is significant: the i-th line
// names the i-th output unit of the model. The trainer writes the list sorted alphabetically, which is
// also the order in which it assigns class indices.
package labels

import (
	"bufio"
	"os"
	"slices"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// DefaultFileName used by the trainer for the labels file in its output directory.
const DefaultFileName = "labels.txt"

// Options for reading a labels file.
type Options struct {
	// StripIndexPrefix removes a leading "<number> " from each line, as in files like "0 empty road".
	StripIndexPrefix bool
}

// Read the labels file at path, one label per line.
//
// Leading and trailing white spaces are trimmed, and empty lines at the end of the file are ignored.
// An empty line in the middle of the file is an error, since it would shift the indices of the following labels.
func Read(path string) ([]string, error) {
	return ReadWithOptions(path, Options{})
}

// ReadWithOptions is like Read, but accepts extra options.
func ReadWithOptions(path string, opts Options) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open labels file")
	}
	defer func() { _ = f.Close() }()

	var labels []string
	var numEmpty int
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		label := strings.TrimSpace(scanner.Text())
		if label == "" {
			numEmpty++
			continue
		}
		if numEmpty > 0 {
			return nil, errors.Errorf("labels file %q has an empty line before line %d", path, lineNum)
		}
		if opts.StripIndexPrefix {
			label = stripIndexPrefix(label)
		}
		labels = append(labels, label)
	}
	if err = scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed reading labels file %q", path)
	}
	if len(labels) == 0 {
		return nil, errors.Errorf("labels file %q is empty", path)
	}
	return labels, nil
}

// stripIndexPrefix removes a "<digits><space>" prefix, if present.
func stripIndexPrefix(label string) string {
	idx := strings.IndexFunc(label, func(r rune) bool { return !unicode.IsDigit(r) })
	if idx <= 0 || label[idx] != ' ' {
		return label
	}
	return strings.TrimSpace(label[idx:])
}

// Write labels to path, one per line, replacing any previous file.
// It validates the labels before writing: see Validate.
func Write(path string, labels []string) error {
	if err := Validate(labels, len(labels)); err != nil {
		return err
	}
	var sb strings.Builder
	for _, label := range labels {
		sb.WriteString(label)
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return errors.Wrapf(err, "failed to write labels file")
	}
	return nil
}

// Validate checks that labels are non-empty, unique, can be written one per line, and that there is
// exactly one label per model output, numClasses.
func Validate(labels []string, numClasses int) error {
	if len(labels) == 0 {
		return errors.New("no labels given")
	}
	if len(labels) != numClasses {
		return errors.Errorf("got %d labels, but the model has %d outputs", len(labels), numClasses)
	}
	seen := make(map[string]int, len(labels))
	for idx, label := range labels {
		if strings.TrimSpace(label) == "" {
			return errors.Errorf("label #%d is empty", idx)
		}
		if strings.ContainsAny(label, "\r\n") {
			return errors.Errorf("label #%d (%q) contains a line break", idx, label)
		}
		if prevIdx, found := seen[label]; found {
			return errors.Errorf("label %q is repeated at positions %d and %d", label, prevIdx, idx)
		}
		seen[label] = idx
	}
	return nil
}

// FromDirectory returns the class labels of a dataset organized with one sub-directory per class:
// the names of the immediate sub-directories of root, sorted. Hidden directories (starting with ".") are ignored.
func FromDirectory(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read dataset directory")
	}
	var labels []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		labels = append(labels, entry.Name())
	}
	if len(labels) == 0 {
		return nil, errors.Errorf("no class subdirectories found in dataset directory %q", root)
	}
	slices.Sort(labels)
	return labels, nil
}

// IsSorted returns whether the labels are in the order the trainer assigns class indices.
func IsSorted(labels []string) bool {
	return slices.IsSorted(labels)
}

// Index returns the position of label in labels, or -1 if not found.
func Index(labels []string, label string) int {
	return slices.Index(labels, label)
}
