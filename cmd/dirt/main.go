// Command dirt runs the DIRT pipeline over a corpus of dependency-parsed
// sentences:
//
//	dirt -o s3://bucket/run --lambda s3://bucket/corpus/*
//
// Every stage writes its output under the working location. Use --stage to
// re-run one stage against existing upstream output.
package main

import (
	"github.com/bcongdon/dirt"
	"github.com/bcongdon/dirt/internal/pkg/stages"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	pflag.Int("skew_cap", stages.DefaultSkewCap, "Skip features shared by more than this many paths (0 disables)")
	pflag.String("stemmer", "heuristic", "Stemmer for verbs and fillers: heuristic or porter")
	pflag.Bool("pronoun_fillers", false, "Let pronouns fill path slots")
	pflag.Bool("normalize", true, "Divide similarity scores by path totals")
	dirt.ParseFlags()

	settings, err := stages.SettingsFromConfig()
	if err != nil {
		log.Fatal(err)
	}

	driver := dirt.NewMultiStageDriver(stages.Pipeline(settings))
	driver.Main()
}
