// Command predict classifies image files with a model saved by traffic.
//
//	predict --model model.gob 'signs/*.png' other.jpg
//
// Arguments may be glob patterns; several patterns can be joined with ':'.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	torch "github.com/wangkuiyi/gotorch"

	"traffic/dataset"
	"traffic/ml"
	"traffic/util"
)

// expand resolves every pattern to the files it matches. A pattern that
// matches nothing is an error.
func expand(inputs []string) ([]string, error) {
	var files []string
	for _, in := range inputs {
		for _, pa := range strings.Split(in, ":") {
			if pa == "" {
				continue
			}
			fns, err := filepath.Glob(pa)
			if err != nil {
				return nil, fmt.Errorf("bad pattern %q: %w", pa, err)
			}
			if len(fns) == 0 {
				return nil, fmt.Errorf("no files match %q", pa)
			}
			files = append(files, fns...)
		}
	}
	return files, nil
}

func predict(w io.Writer, modelFn string, inputs []string) error {
	files, err := expand(inputs)
	if err != nil {
		return err
	}

	net, err := ml.Load(modelFn, ml.PickDevice())
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	defer net.Release()
	cfg := net.Config()

	images := make([]dataset.Image, len(files))
	for i, fn := range files {
		if images[i], err = dataset.DecodeFile(fn, cfg.ImageWidth, cfg.ImageHeight); err != nil {
			return err
		}
	}

	probs, err := net.Predict(images)
	if err != nil {
		return err
	}
	for i, p := range probs {
		best := dataset.Argmax(p)
		fmt.Fprintf(w, "%s\t%d\t%.4f\n", files[i], best, p[best])
	}
	return nil
}

func newPredictCmd() *cobra.Command {
	var modelFn, logLevel string
	cmd := &cobra.Command{
		Use:           "predict --model model_file image...",
		Short:         "Print the predicted category and its probability for each image",
		Args:          cobra.MinimumNArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			util.InitLogger(logLevel, cmd.ErrOrStderr())
			return predict(cmd.OutOrStdout(), modelFn, args)
		},
	}
	cmd.Flags().StringVar(&modelFn, "model", "model.gob", "the model file")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "debug, info, warn or error")
	return cmd
}

func main() {
	err := newPredictCmd().Execute()
	torch.FinishGC()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
