package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	torch "github.com/wangkuiyi/gotorch"

	"traffic/config"
	"traffic/pipeline"
	"traffic/util"
)

type runFunc func(opts pipeline.Options) error

func runPipeline(opts pipeline.Options) error {
	_, err := pipeline.Run(opts)
	return err
}

func appendEnvDocs(cmd *cobra.Command, envs []config.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-30s   %s (default %v)\n", e.Name, e.Description, e.Value)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

func newRootCmd(run runFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "traffic data_directory [model_file]",
		Short: "Train a traffic sign classifier on a directory of labelled images",
		Long: `Train a convolutional traffic sign classifier.

data_directory holds one subdirectory per category, named 0 through
NUM_CATEGORIES-1, each containing image files. When model_file is given the
trained model is written there.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// arguments are valid from here on; report failures without usage
			cmd.SilenceUsage = true

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			util.InitLogger(cfg.LogLevel, cmd.ErrOrStderr())

			if cfg.PlotLog != "" {
				if err := util.InitPlotLogger(cfg.PlotLog); err != nil {
					return err
				}
				defer util.ClosePlotLogger()
			}

			opts := pipeline.Options{
				DataDir: args[0],
				Config:  cfg,
				Stdout:  cmd.OutOrStdout(),
			}
			if len(args) == 2 {
				opts.OutputPath = args[1]
			}
			return run(opts)
		},
	}
	appendEnvDocs(cmd, config.Default().EnvVars())
	return cmd
}

func main() {
	err := newRootCmd(runPipeline).Execute()
	torch.FinishGC()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
