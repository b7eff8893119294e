// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// trafficlight_inspect prints what trafficlight_train wrote to an output directory: the metadata and labels
// of the model and, optionally, the hyperparameters and variables of its checkpoint.
//
// Example:
//
//	trafficlight_inspect -params -vars ~/work/trafficlight
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/checkpoints"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/trafficlight/classifier"
	"github.com/gomlx/trafficlight/labels"
	"github.com/gomlx/trafficlight/trainer"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagScope = flag.String("scope", "/model", "The scope of the checkpoint variables to inspect. "+
		"Variables outside of it, like the optimizer's, are not included in the summary and the variables report.")
	flagParams = flag.Bool("params", false, "Lists the hyperparameters saved in the checkpoint.")
	flagVars   = flag.Bool("vars", false, "Lists the variables under -scope.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		klog.Errorf("Expected exactly one argument, the output directory of trafficlight_train. See 'trafficlight_inspect -help'")
		os.Exit(1)
	}
	report(args[0])
}

func report(outputDir string) {
	checkpointDir := filepath.Join(outputDir, trainer.CheckpointDirName)
	ctx := context.New()
	_ = must.M1(checkpoints.Build(ctx).Dir(checkpointDir).Immediate().Done())
	scopedCtx := ctx
	if *flagScope != "" {
		scopedCtx = ctx.InAbsPath(*flagScope)
	}

	var md classifier.Metadata
	mdPath := filepath.Join(outputDir, classifier.MetadataFileName)
	if _, err := os.Stat(mdPath); err == nil {
		md = must.M1(classifier.ReadMetadata(mdPath))
	} else {
		klog.Warningf("No metadata in %q: training may not have finished", outputDir)
	}

	// Summary table.
	fmt.Println(titleStyle.Render("Summary"))
	table := newPlainTable()
	table.Row("checkpoint", checkpointDir)
	if md.RunID != "" {
		table.Row("run", md.RunID)
	}
	if !md.CreatedAt.IsZero() {
		table.Row("created", md.CreatedAt.Format("2006-01-02 15:04:05")+" ("+humanize.Time(md.CreatedAt)+")")
	}
	if md.ImageSize > 0 {
		table.Row("image size", fmt.Sprintf("%dx%d", md.ImageSize, md.ImageSize))
		table.Row("pixel range", md.PixelRange)
	}
	globalStep := int64(optimizers.GetGlobalStep(ctx))
	table.Row("global_step", humanize.Comma(globalStep))
	var numVars, totalSize int
	var totalMemory uintptr
	scopedCtx.EnumerateVariablesInScope(func(v *context.Variable) {
		numVars++
		totalSize += v.Shape().Size()
		totalMemory += v.Shape().Memory()
	})
	table.Row("# variables", humanize.Comma(int64(numVars)))
	table.Row("# parameters", humanize.Comma(int64(totalSize)))
	table.Row("# bytes", humanize.Bytes(uint64(totalMemory)))
	for _, name := range sortedKeys(md.Metrics) {
		value := md.Metrics[name]
		switch {
		case name == "global_step":
			continue // Already listed, from the checkpoint.
		case strings.Contains(name, "accuracy"):
			table.Row(name, fmt.Sprintf("%.2f%%", 100*value))
		default:
			table.Row(name, fmt.Sprintf("%.4f", value))
		}
	}
	fmt.Println(table.Render())

	// Labels, from the label file.
	labelsPath := filepath.Join(outputDir, labels.DefaultFileName)
	if classLabels, err := labels.Read(labelsPath); err != nil {
		klog.Warningf("Failed to read labels: %v", err)
	} else {
		fmt.Println(titleStyle.Render("Labels"))
		table = newPlainTable("Index", "Label")
		for ii, label := range classLabels {
			table.Row(fmt.Sprintf("%d", ii), label)
		}
		fmt.Println(table.Render())
		if len(md.Classes) > 0 && !slices.Equal(md.Classes, classLabels) {
			klog.Warningf("Labels in %q differ from the classes in the metadata: %q", labelsPath, md.Classes)
		}
	}

	if *flagParams {
		fmt.Println(titleStyle.Render("Hyperparameters"))
		table = newPlainTable("Scope", "Name", "Type", "Value")
		ctx.EnumerateParams(func(scope, key string, value any) {
			table.Row(scope, key, fmt.Sprintf("%T", value), fmt.Sprintf("%v", value))
		})
		fmt.Println(table.Render())
	}

	if *flagVars {
		fmt.Println(titleStyle.Render("Variables"))
		table = newPlainTable("Scope", "Name", "Shape", "Size", "Bytes")
		var rows [][]string
		scopedCtx.EnumerateVariablesInScope(func(v *context.Variable) {
			shape := v.Shape()
			rows = append(rows, []string{
				v.Scope(), v.Name(), shape.String(),
				humanize.Comma(int64(shape.Size())),
				humanize.Bytes(uint64(shape.Memory())),
			})
		})
		slices.SortFunc(rows, func(a, b []string) int {
			if cmp := strings.Compare(a[0], b[0]); cmp != 0 {
				return cmp
			}
			return strings.Compare(a[1], b[1])
		})
		for _, row := range rows {
			table.Row(row...)
		}
		fmt.Println(table.Render())
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
