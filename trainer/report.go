// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package trainer

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/trafficlight/dataset"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	titleStyle = lipgloss.NewStyle().Bold(true)
)

// newTable creates a table with a header row and alternating row styles, aligned per column.
func newTable(alignments ...lipgloss.Position) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			switch {
			case row < 0:
				return headerRowStyle
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			}
			return s.Align(alignment)
		})
}

// DatasetReport returns a table with the number of training and validation images per class.
func DatasetReport(trainImages, validationImages *dataset.Images) string {
	trainCounts := countLabels(trainImages)
	validationCounts := countLabels(validationImages)
	table := newTable(lipgloss.Left, lipgloss.Right, lipgloss.Right).
		Headers("Class", "Train", "Validation")
	for classIdx, class := range trainImages.Index.Classes {
		table.Row(class, humanize.Comma(int64(trainCounts[classIdx])), humanize.Comma(int64(validationCounts[classIdx])))
	}
	table.Row("Total", humanize.Comma(int64(trainImages.Len())), humanize.Comma(int64(validationImages.Len())))

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("Dataset: %dx%d images, %s in memory",
		trainImages.Size, trainImages.Size,
		humanize.Bytes(trainImages.MemoryBytes()+validationImages.MemoryBytes()))))
	sb.WriteString("\n")
	sb.WriteString(table.Render())
	if skipped := len(trainImages.Skipped) + len(validationImages.Skipped); skipped > 0 {
		sb.WriteString(fmt.Sprintf("\n%d unreadable image files were skipped.", skipped))
	}
	return sb.String()
}

func countLabels(images *dataset.Images) []int {
	counts := make([]int, images.Index.NumClasses())
	for _, label := range images.Labels {
		counts[label]++
	}
	return counts
}

// EvaluationReport returns a table with the metrics per epoch and the final validation result.
func EvaluationReport(result *Result) string {
	table := newTable(lipgloss.Right).
		Headers("Epoch", "Step", "Train Loss", "Train Acc", "Val Loss", "Val Acc")
	for _, record := range result.History {
		table.Row(
			humanize.Comma(int64(record.Epoch)), humanize.Comma(int64(record.Step)),
			formatLoss(record.TrainLoss), formatAccuracy(record.TrainAccuracy),
			formatLoss(record.Validation.Loss), formatAccuracy(record.Validation.Accuracy))
	}
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("Training run %s", result.RunID)))
	sb.WriteString("\n")
	if len(result.History) > 0 {
		sb.WriteString(table.Render())
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("Validation (%s images): loss=%s, accuracy=%s\n",
		humanize.Comma(int64(result.NumValidation)),
		formatLoss(result.Validation.Loss), formatAccuracy(result.Validation.Accuracy)))
	sb.WriteString(fmt.Sprintf("Labels: %s\nCheckpoint: %s\n", result.LabelsPath, result.CheckpointDir))
	return sb.String()
}

func formatLoss(loss float64) string {
	if loss < 0 {
		return "-"
	}
	return fmt.Sprintf("%.4f", loss)
}

func formatAccuracy(accuracy float64) string {
	if accuracy < 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", 100*accuracy)
}
