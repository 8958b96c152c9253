// Package pipeline runs one training session end to end: load the image
// tree, split it, build and fit the classifier, evaluate it on the held-out
// part and optionally save it.
package pipeline

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"traffic/config"
	"traffic/dataset"
	"traffic/ml"
	"traffic/util"
)

var ErrEmptyDataset = errors.New("empty dataset")

// Loader reads images and integer labels from a data directory.
type Loader func(dir string, cfg config.Config) ([]dataset.Image, []int, error)

// Factory returns a compiled, untrained model.
type Factory func(cfg config.Config) (ml.Model, error)

type Options struct {
	DataDir    string
	OutputPath string // empty: do not save
	Config     config.Config

	// Stdout receives the evaluation report and the save confirmation.
	Stdout io.Writer

	Loader  Loader
	Factory Factory
}

type Result struct {
	Train   int
	Test    int
	History []ml.EpochStats
	Metrics ml.Metrics
	Saved   string
}

// DefaultFactory builds the gotorch classifier on the best available device,
// drawing its progress bars on stderr.
func DefaultFactory(cfg config.Config) (ml.Model, error) {
	c, err := ml.NewModel(cfg, ml.PickDevice())
	if err != nil {
		return nil, err
	}
	c.Progress = os.Stderr
	return c, nil
}

func Run(opts Options) (*Result, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Loader == nil {
		opts.Loader = dataset.Load
	}
	if opts.Factory == nil {
		opts.Factory = DefaultFactory
	}

	images, labels, err := opts.Loader(opts.DataDir, cfg)
	if err != nil {
		return nil, fmt.Errorf("load data: %w", err)
	}
	if len(images) != len(labels) {
		return nil, fmt.Errorf("load data: %d images but %d labels", len(images), len(labels))
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("load data: %w: no images under %s", ErrEmptyDataset, opts.DataDir)
	}

	targets, err := dataset.OneHot(labels, cfg.NumCategories)
	if err != nil {
		return nil, fmt.Errorf("encode labels: %w", err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	trainIdx, testIdx := dataset.Split(len(images), cfg.TestSize, rand.New(rand.NewSource(seed)))
	if len(trainIdx) == 0 {
		return nil, fmt.Errorf("split data: %w: %d samples leave nothing to train on", ErrEmptyDataset, len(images))
	}
	xTrain, yTrain := dataset.Gather(images, targets, trainIdx)
	xTest, yTest := dataset.Gather(images, targets, testIdx)
	util.Logger.Info("split dataset", "train", len(xTrain), "test", len(xTest))

	model, err := opts.Factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("build model: %w", err)
	}
	defer model.Release()

	history, err := model.Fit(xTrain, yTrain, cfg.Epochs)
	if err != nil {
		return nil, fmt.Errorf("fit model: %w", err)
	}

	metrics, err := model.Evaluate(xTest, yTest)
	if err != nil {
		return nil, fmt.Errorf("evaluate model: %w", err)
	}
	writeReport(opts.Stdout, metrics)

	res := &Result{Train: len(xTrain), Test: len(xTest), History: history, Metrics: metrics}
	if opts.OutputPath != "" {
		if err := model.Save(opts.OutputPath); err != nil {
			return nil, fmt.Errorf("save model: %w", err)
		}
		fmt.Fprintf(opts.Stdout, "Model saved to %s.\n", opts.OutputPath)
		res.Saved = opts.OutputPath
	}
	return res, nil
}

// writeReport prints the overall test metrics followed by a row for every
// category that occurs in the test set or was predicted.
func writeReport(w io.Writer, m ml.Metrics) {
	fmt.Fprintf(w, "%d/%d - loss: %.4f - accuracy: %.4f\n", m.Samples, m.Samples, m.Loss, m.Accuracy)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Category", "Support", "Predicted", "Correct", "Recall", "Precision"})
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, s := range m.PerCategory {
		if s.Support == 0 && s.Predicted == 0 {
			continue
		}
		table.Append([]string{
			strconv.Itoa(s.Category),
			strconv.Itoa(s.Support),
			strconv.Itoa(s.Predicted),
			strconv.Itoa(s.Correct),
			fmt.Sprintf("%.3f", s.Recall()),
			fmt.Sprintf("%.3f", s.Precision()),
		})
	}
	table.Render()
}
