// Command dirt-eval compares the aggregation output of a pipeline run with
// labelled positive and negative path pairs, and reports precision, recall
// and F1.
package main

import (
	"fmt"

	"github.com/bcongdon/dirt/internal/pkg/dirtfs"
	"github.com/bcongdon/dirt/internal/pkg/eval"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func readGold(glob string, positive bool) []eval.Example {
	fs := dirtfs.InitFilesystem(dirtfs.InferType(glob))
	examples, err := eval.ReadGold(fs, glob, positive)
	if err != nil {
		log.Fatal(err)
	}
	return examples
}

func printMetrics(m eval.Metrics) {
	fmt.Printf("%12.4f %10.4f %10.4f %10.4f\n", m.Threshold, m.Precision, m.Recall, m.F1)
}

func printSummary(name string, s eval.Summary) {
	fmt.Printf("%-9s n=%d unscored=%d mean=%.4f median=%.4f p90=%.4f\n", name, s.N, s.Zero, s.Mean, s.Median, s.P90)
}

func main() {
	pos := pflag.String("pos", "positive-preds.txt", "Positive gold pairs")
	neg := pflag.String("neg", "negative-preds.txt", "Negative gold pairs")
	system := pflag.String("system", "aggregation/output-*", "System output glob (local or s3://)")
	examplesPerClass := pflag.Int("errors", 5, "Mistakes to list per class")
	verbose := pflag.BoolP("verbose", "v", false, "Output verbose logs")
	pflag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	examples := append(readGold(*pos, true), readGold(*neg, false)...)

	fs := dirtfs.InitFilesystem(dirtfs.InferType(*system))
	scores, err := eval.ReadScores(fs, *system)
	if err != nil {
		log.Fatal(err)
	}
	log.Debugf("Loaded %d gold pairs and %d scored pairs", len(examples), len(scores))
	examples = eval.Join(examples, scores)

	fmt.Printf("%12s %10s %10s %10s\n", "Threshold", "Precision", "Recall", "F1")
	for _, t := range eval.DefaultThresholds {
		printMetrics(eval.At(examples, t))
	}

	best := eval.BestF1(examples)
	fmt.Println("\nBest F1:")
	printMetrics(best)

	fmt.Println("\nScores:")
	printSummary("positive", eval.Summarize(examples, true))
	printSummary("negative", eval.Summarize(examples, false))

	fps, fns := eval.Mistakes(examples, best.Threshold, *examplesPerClass)
	fmt.Println("\nFalse positives:")
	for _, ex := range fps {
		fmt.Printf("  %.4f\t%s\t%s\n", ex.Score, ex.A, ex.B)
	}
	fmt.Println("\nFalse negatives:")
	for _, ex := range fns {
		fmt.Printf("  %.4f\t%s\t%s\n", ex.Score, ex.A, ex.B)
	}
}
