package ml

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/schollz/progressbar/v3"

	torch "github.com/wangkuiyi/gotorch"
	F "github.com/wangkuiyi/gotorch/nn/functional"

	"traffic/dataset"
	"traffic/util"
)

// Fit runs epochs full passes over the training data in shuffled minibatches,
// taking one Adam step per batch.
func (c *Classifier) Fit(images []dataset.Image, targets [][]float32, epochs int) ([]EpochStats, error) {
	if err := c.check(images, targets); err != nil {
		return nil, err
	}
	if epochs <= 0 {
		return nil, fmt.Errorf("%w: %d epochs", ErrBadInput, epochs)
	}

	order := make([]int, len(images))
	for i := range order {
		order[i] = i
	}
	batches := (len(order) + c.cfg.BatchSize - 1) / c.cfg.BatchSize

	history := make([]EpochStats, 0, epochs)
	for epoch := 1; epoch <= epochs; epoch++ {
		startTime := time.Now()
		c.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		bar := c.newBar(fmt.Sprintf("epoch %d/%d", epoch, epochs), batches)

		var trainLoss float64
		correct := int64(0)
		totalSamples := 0
		for start := 0; start < len(order); start += c.cfg.BatchSize {
			torch.GC()
			end := min(start+c.cfg.BatchSize, len(order))
			xs, ys := dataset.Gather(images, targets, order[start:end])
			data, label := c.batch(xs), c.labels(ys)

			c.opt.ZeroGrad()
			pred := c.net.Forward(data, true)
			loss := F.NllLoss(pred, label, torch.Tensor{}, -100, "mean")
			loss.Backward()
			c.opt.Step()

			trainLoss += float64(loss.Item().(float32)) * float64(len(xs))
			correct += countCorrect(pred, label)
			totalSamples += len(xs)
			_ = bar.Add(1)
		}
		_ = bar.Finish()

		stats := EpochStats{
			Epoch:      c.epochs + 1,
			Loss:       trainLoss / float64(totalSamples),
			Accuracy:   float64(correct) / float64(totalSamples),
			Samples:    totalSamples,
			Throughput: float64(totalSamples) / time.Since(startTime).Seconds(),
		}
		c.epochs++
		util.Logger.Info("train epoch", "epoch", stats.Epoch, "loss", fmt.Sprintf("%.4f", stats.Loss),
			"accuracy", fmt.Sprintf("%.4f", stats.Accuracy), "throughput", fmt.Sprintf("%.1f samples/sec", stats.Throughput))
		util.PlotEpoch(stats.Epoch, stats.Loss, stats.Accuracy, stats.Samples)
		history = append(history, stats)
	}
	return history, nil
}

// Evaluate reports mean loss, accuracy and per-category counts with dropout
// disabled.
func (c *Classifier) Evaluate(images []dataset.Image, targets [][]float32) (Metrics, error) {
	if err := c.check(images, targets); err != nil {
		return Metrics{}, err
	}

	perCategory := make([]CategoryStats, c.cfg.NumCategories)
	for i := range perCategory {
		perCategory[i].Category = i
	}

	host := torch.NewDevice("cpu")
	var testLoss float64
	correct := 0
	for start := 0; start < len(images); start += c.cfg.BatchSize {
		torch.GC()
		end := min(start+c.cfg.BatchSize, len(images))
		xs, ys := images[start:end], targets[start:end]
		data, label := c.batch(xs), c.labels(ys)

		output := c.net.Forward(data, false)
		loss := F.NllLoss(output, label, torch.Tensor{}, -100, "mean")
		testLoss += float64(loss.Item().(float32)) * float64(len(xs))

		pred := output.Argmax(1).To(host)
		for i := range xs {
			p := int(pred.Index(int64(i)).Item().(int64))
			truth := dataset.Argmax(ys[i])
			perCategory[truth].Support++
			perCategory[p].Predicted++
			if p == truth {
				perCategory[truth].Correct++
				correct++
			}
		}
	}

	m := Metrics{
		Loss:        testLoss / float64(len(images)),
		Accuracy:    float64(correct) / float64(len(images)),
		Samples:     len(images),
		PerCategory: perCategory,
	}
	util.Logger.Info("evaluate", "samples", m.Samples, "loss", fmt.Sprintf("%.4f", m.Loss),
		"accuracy", fmt.Sprintf("%.4f", m.Accuracy))
	return m, nil
}

// Predict returns one probability vector per image.
func (c *Classifier) Predict(images []dataset.Image) ([][]float32, error) {
	if err := c.checkImages(images); err != nil {
		return nil, err
	}

	host := torch.NewDevice("cpu")
	k := c.cfg.NumCategories
	probs := make([][]float32, 0, len(images))
	for start := 0; start < len(images); start += c.cfg.BatchSize {
		torch.GC()
		end := min(start+c.cfg.BatchSize, len(images))
		// one device copy per batch; rows are then read from host memory
		output := c.net.Forward(c.batch(images[start:end]), false).To(host)
		for i := 0; i < end-start; i++ {
			row := output.Index(int64(i))
			p := make([]float32, k)
			for j := range p {
				logp := row.Index(int64(j)).Item().(float32)
				p[j] = float32(math.Exp(float64(logp)))
			}
			probs = append(probs, p)
		}
	}
	return probs, nil
}

func countCorrect(output, label torch.Tensor) int64 {
	pred := output.Argmax(1)
	return pred.Eq(label.View(pred.Shape()...)).Sum(map[string]interface{}{"dim": 0, "keepDim": false}).Item().(int64)
}

// batch packs images into an NCHW float tensor scaled to [0, 1].
func (c *Classifier) batch(images []dataset.Image) torch.Tensor {
	h, w := c.cfg.ImageHeight, c.cfg.ImageWidth
	plane := h * w
	data := make([]float32, len(images)*dataset.Channels*plane)
	for i, img := range images {
		base := i * dataset.Channels * plane
		for p := 0; p < plane; p++ {
			for ch := 0; ch < dataset.Channels; ch++ {
				data[base+ch*plane+p] = float32(img.Pix[p*dataset.Channels+ch]) / 255
			}
		}
	}
	t := torch.NewTensor(data).View(int64(len(images)), dataset.Channels, int64(h), int64(w))
	return t.To(c.device, t.Dtype())
}

// labels turns one-hot targets into the class-index tensor NllLoss expects.
func (c *Classifier) labels(targets [][]float32) torch.Tensor {
	idx := make([]int64, len(targets))
	for i, t := range targets {
		idx[i] = int64(dataset.Argmax(t))
	}
	t := torch.NewTensor(idx)
	return t.To(c.device, t.Dtype())
}

func (c *Classifier) check(images []dataset.Image, targets [][]float32) error {
	if len(images) != len(targets) {
		return fmt.Errorf("%w: %d images but %d targets", ErrBadInput, len(images), len(targets))
	}
	if err := c.checkImages(images); err != nil {
		return err
	}
	for i, t := range targets {
		if len(t) != c.cfg.NumCategories {
			return fmt.Errorf("%w: target %d has %d entries, want %d", ErrBadInput, i, len(t), c.cfg.NumCategories)
		}
	}
	return nil
}

func (c *Classifier) checkImages(images []dataset.Image) error {
	if c.net == nil {
		return fmt.Errorf("%w: model released", ErrBadInput)
	}
	if len(images) == 0 {
		return fmt.Errorf("%w: no images", ErrBadInput)
	}
	for i, img := range images {
		if img.Width != c.cfg.ImageWidth || img.Height != c.cfg.ImageHeight ||
			len(img.Pix) != img.Width*img.Height*dataset.Channels {
			return fmt.Errorf("%w: image %d is %dx%d with %d bytes, want %dx%dx%d",
				ErrBadInput, i, img.Width, img.Height, len(img.Pix),
				c.cfg.ImageWidth, c.cfg.ImageHeight, dataset.Channels)
		}
	}
	return nil
}

func (c *Classifier) newBar(description string, steps int) *progressbar.ProgressBar {
	w := c.Progress
	if w == nil {
		w = io.Discard
	}
	return progressbar.NewOptions(steps,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}
