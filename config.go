package dirt

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var configOnce sync.Once

// loadConfig reads settings from the config file and the environment. It
// is safe to call more than once.
func loadConfig() {
	configOnce.Do(func() {
		viper.SetConfigName("dirtrc")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.dirt")

		setupDefaults()

		viper.ReadInConfig()

		viper.SetEnvPrefix("dirt")
		viper.AutomaticEnv()
	})
}

func setupDefaults() {
	defaultSettings := map[string]interface{}{
		"split_size":       100 * 1024 * 1024, // Default input split size is 100Mb
		"map_bin_size":     512 * 1024 * 1024, // Default map bin size is 512Mb
		"reduce_bin_size":  512 * 1024 * 1024, // Default reduce bin size is 512Mb
		"max_concurrency":  500,               // Maximum number of concurrent executors
		"working_location": ".",
		"reduce_bins":      0, // 0 derives the count from reduce_bin_size
		"combine":          true,
		"cleanup":          false,
		"verbose":          false,

		"skew_cap":        100,
		"stemmer":         "heuristic",
		"pronoun_fillers": false,
		"normalize":       true,

		"lambda":               false,
		"lambda_function_name": "dirt_function",
		"lambda_memory":        1500,
		"lambda_timeout":       180,
		"lambda_manage_role":   true,
		"lambda_role_arn":      "",
		"lambda_max_retries":   3,
		"lambda_package":       "./cmd/dirt", // built relative to the working directory
	}
	for key, value := range defaultSettings {
		viper.SetDefault(key, value)
	}

	aliases := map[string]string{
		"verbose":          "v",
		"working_location": "o",
	}
	for key, alias := range aliases {
		viper.RegisterAlias(alias, key)
	}
}

var flagsOnce sync.Once

// ParseFlags registers the runtime's command line flags, parses the
// command line and binds the flags into the configuration. Programs that
// register flags of their own should do so before calling ParseFlags.
// Calling it again is a no-op.
func ParseFlags() {
	flagsOnce.Do(func() {
		loadConfig()

		flags := pflag.CommandLine
		flags.BoolP("verbose", "v", false, "Output verbose logs")
		flags.StringP("out", "o", "", "Working directory for stage output (can be local or in S3)")
		flags.Bool("lambda", false, "Run tasks on AWS Lambda")
		flags.Bool("undeploy", false, "Remove the Lambda function and its role, then exit")
		flags.String("stage", "", "Run only the named stage against existing upstream output")
		flags.Int("reduce_bins", 0, "Number of reduce tasks per stage (0 derives it from the input size)")
		flags.Int("max_concurrency", 0, "Maximum number of concurrent tasks")
		flags.Bool("cleanup", false, "Delete shuffle files after each stage")
		flags.String("memprofile", "", "Write a heap profile to `file`")
		pflag.Parse()

		viper.BindPFlag("verbose", flags.Lookup("verbose"))
		viper.BindPFlag("working_location", flags.Lookup("out"))
		viper.BindPFlags(flags)
	})
}

// lambdaEnvironment renders the current settings as DIRT_ environment
// variables for the worker function. Lambda deployment settings are left
// out since workers never deploy.
func lambdaEnvironment() map[string]string {
	env := make(map[string]string)
	for _, key := range viper.AllKeys() {
		if strings.HasPrefix(key, "lambda") || key == "undeploy" || key == "memprofile" || key == "stage" || key == "out" {
			continue
		}
		value := viper.Get(key)
		if value == nil {
			continue
		}
		env["DIRT_"+strings.ToUpper(key)] = fmt.Sprint(value)
	}
	return env
}
